package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/fir-api/internal/dto"
	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/internal/policy"
	"github.com/noah-isme/fir-api/internal/repository"
	"github.com/noah-isme/fir-api/pkg/cache"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
)

type stationRepository interface {
	List(ctx context.Context) ([]models.Station, error)
	FindByID(ctx context.Context, id string) (*models.Station, error)
	Create(ctx context.Context, q sqlx.ExtContext, station *models.Station) error
	Update(ctx context.Context, q sqlx.ExtContext, station *models.Station) error
	Delete(ctx context.Context, q sqlx.ExtContext, id string) error
}

// StationService manages the station directory.
type StationService struct {
	repo      stationRepository
	audit     auditWriter
	cache     *CacheService
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cacheTTL  time.Duration
}

// NewStationService constructs a StationService. cache may be nil.
func NewStationService(repo stationRepository, audit auditWriter, cache *CacheService, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, cacheTTL time.Duration) *StationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &StationService{
		repo:      repo,
		audit:     audit,
		cache:     cache,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		cacheTTL:  cacheTTL,
	}
}

func stationListKey() string { return cache.Key("stations", "all") }

// List returns every station ordered by code. Anyone may call it.
func (s *StationService) List(ctx context.Context) ([]models.Station, error) {
	key := stationListKey()
	var stations []models.Station
	if s.cache.Get(ctx, key, &stations) {
		return stations, nil
	}
	stations, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list stations")
	}
	s.cache.Set(ctx, key, stations, s.cacheTTL)
	return stations, nil
}

// Get returns a station by id.
func (s *StationService) Get(ctx context.Context, id string) (*models.Station, error) {
	key, ok := canonicalID(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "station not found")
	}
	station, err := s.repo.FindByID(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "station not found")
		}
		return nil, appErrors.Internal(err, "failed to load station")
	}
	return station, nil
}

// Create registers a station.
func (s *StationService) Create(ctx context.Context, principal models.Principal, req dto.StationRequest) (*models.Station, error) {
	if err := policy.Decide(principal, policy.ActionManageStations, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid station payload")
	}
	station := stationFromRequest(req)

	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		if err := s.repo.Create(ctx, q, station); err != nil {
			return nil, err
		}
		return auditEntry(actorOf(principal), models.AuditActionStationCreated, models.EntityStation, station.ID,
			fmt.Sprintf("station %s created", station.Code),
			fmt.Sprintf("%s (%s, %s)", station.Name, station.City, station.State)), nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "station code already exists")
		}
		return nil, appErrors.Internal(err, "failed to create station")
	}
	s.metrics.RecordAudit(entry.Action)
	s.cache.Invalidate(ctx, stationListKey())
	return station, nil
}

// Update replaces the editable fields of a station.
func (s *StationService) Update(ctx context.Context, principal models.Principal, id string, req dto.StationRequest) (*models.Station, error) {
	if err := policy.Decide(principal, policy.ActionManageStations, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid station payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	station := stationFromRequest(req)
	station.ID = existing.ID
	station.CreatedAt = existing.CreatedAt

	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		if err := s.repo.Update(ctx, q, station); err != nil {
			return nil, err
		}
		return auditEntry(actorOf(principal), models.AuditActionStationUpdated, models.EntityStation, station.ID,
			fmt.Sprintf("station %s updated", station.Code), ""), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "station not found")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "station code already exists")
		}
		return nil, appErrors.Internal(err, "failed to update station")
	}
	s.metrics.RecordAudit(entry.Action)
	s.cache.Invalidate(ctx, stationListKey())
	return station, nil
}

// Delete removes a station that no officer or FIR references.
func (s *StationService) Delete(ctx context.Context, principal models.Principal, id string) error {
	if err := policy.Decide(principal, policy.ActionManageStations, nil); err != nil {
		return err
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	id = existing.ID

	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		if err := s.repo.Delete(ctx, q, id); err != nil {
			return nil, err
		}
		return auditEntry(actorOf(principal), models.AuditActionStationDeleted, models.EntityStation, id,
			fmt.Sprintf("station %s deleted", existing.Code), existing.Name), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "station not found")
		case errors.Is(err, repository.ErrInUse):
			return appErrors.Clone(appErrors.ErrConflict, "station still has officers or reports assigned")
		}
		return appErrors.Internal(err, "failed to delete station")
	}
	s.metrics.RecordAudit(entry.Action)
	s.cache.Invalidate(ctx, stationListKey())
	return nil
}

func stationFromRequest(req dto.StationRequest) *models.Station {
	return &models.Station{
		Code:     strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:     strings.TrimSpace(req.Name),
		City:     strings.TrimSpace(req.City),
		State:    strings.TrimSpace(req.State),
		Phone:    strings.TrimSpace(req.Phone),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Address:  strings.TrimSpace(req.Address),
		InCharge: strings.TrimSpace(req.InCharge),
	}
}
