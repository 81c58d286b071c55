package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/fir-api/internal/dto"
	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/internal/repository"
)

const testPassword = "s3cret-pass"

type testEnv struct {
	store     *memStore
	hasher    PasswordHasher
	metrics   *MetricsService
	sessions  *repository.MemorySessionStore
	auth      *AuthService
	users     *UserService
	stations  *StationService
	firs      *FIRService
	dashboard *DashboardService
	activity  *ActivityService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newMemStore()
	hasher := NewBcryptHasher(bcrypt.MinCost)
	metrics := NewMetricsService()
	sessions := repository.NewMemorySessionStore()
	validate := NewValidator()
	logger := zap.NewNop()

	users, stations, firs, audit := memUsers{store}, memStations{store}, memFIRs{store}, memAudit{store}
	env := &testEnv{store: store, hasher: hasher, metrics: metrics, sessions: sessions}
	env.auth = NewAuthService(users, stations, audit, sessions, hasher, validate, metrics, logger, AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "fir-api-test",
	})
	env.users = NewUserService(users, stations, audit, hasher, validate, metrics, logger)
	env.users.SetAccountRevoker(env.auth)
	env.stations = NewStationService(stations, audit, nil, validate, metrics, logger, time.Minute)
	env.firs = NewFIRService(firs, stations, audit, nil, validate, metrics, logger)
	env.dashboard = NewDashboardService(DashboardServiceParams{FIRs: firs, Users: users, Stations: stations})
	env.activity = NewActivityService(audit)
	return env
}

func (e *testEnv) seedUser(t *testing.T, username string, role models.Role, stationID *string) models.User {
	t.Helper()
	hash, err := e.hasher.Hash(testPassword)
	require.NoError(t, err)
	return e.store.addUser(models.User{Username: username, PasswordHash: hash, Role: role, StationID: stationID})
}

func (e *testEnv) citizen(t *testing.T, username string) models.Principal {
	t.Helper()
	u := e.seedUser(t, username, models.RoleUser, nil)
	return models.NewCitizen(u.ID, u.Username)
}

func (e *testEnv) officer(t *testing.T, username string, station models.Station) models.Principal {
	t.Helper()
	u := e.seedUser(t, username, models.RolePolice, &station.ID)
	p, err := models.NewPolice(u.ID, u.Username, station.ID)
	require.NoError(t, err)
	return p
}

func (e *testEnv) admin(t *testing.T, username string) models.Principal {
	t.Helper()
	u := e.seedUser(t, username, models.RoleAdmin, nil)
	return models.NewAdmin(u.ID, u.Username)
}

func firRequest(stationID string) dto.FileFIRRequest {
	return dto.FileFIRRequest{
		StationID: stationID,
		CrimeType: "Theft",
		Accused:   "unknown male, approx 30",
		Name:      "Alice Rao",
		Age:       34,
		Phone:     "+91 98200 00000",
		Address:   "12 MG Road, Pune",
		Relation:  "stranger",
		Purpose:   "bicycle stolen from the society parking",
	}
}

func (e *testEnv) file(t *testing.T, filer models.Principal, station models.Station) *models.FIR {
	t.Helper()
	fir, err := e.firs.File(context.Background(), filer, firRequest(station.ID))
	require.NoError(t, err)
	return fir
}
