package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fir-api/internal/middleware"
	"github.com/noah-isme/fir-api/internal/models"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
)

type authServiceStub struct {
	loginReq     models.LoginRequest
	loginErr     error
	registered   models.RegisterRequest
	registerErr  error
	changed      models.ChangePasswordRequest
	revoked      *models.JWTClaims
	profile      models.UpdateProfileRequest
	profileOwner string
}

func (s *authServiceStub) Authenticate(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	s.loginReq = req
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &models.LoginResponse{AccessToken: "token", TokenType: "Bearer", ExpiresIn: 3600, Principal: testCitizen.Info()}, nil
}

func (s *authServiceStub) Register(_ context.Context, req models.RegisterRequest) (*models.User, error) {
	s.registered = req
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &models.User{ID: "user-9", Username: req.Username, Role: models.RoleUser}, nil
}

func (s *authServiceStub) ChangePassword(_ context.Context, _ models.Principal, req models.ChangePasswordRequest) error {
	s.changed = req
	return nil
}

func (s *authServiceStub) Logout(_ context.Context, claims *models.JWTClaims) error {
	s.revoked = claims
	return nil
}

func (s *authServiceStub) Me(_ context.Context, p models.Principal) (*models.User, error) {
	return &models.User{ID: p.ID(), Username: p.Username(), Role: p.Role()}, nil
}

func (s *authServiceStub) UpdateProfile(_ context.Context, p models.Principal, req models.UpdateProfileRequest) (*models.User, error) {
	s.profile = req
	s.profileOwner = p.ID()
	return &models.User{ID: p.ID(), Email: *req.Email}, nil
}

func TestAuthHandlerLogin(t *testing.T) {
	stub := &authServiceStub{}
	h := NewAuthHandler(stub, stub)

	c, rec := newContext(http.MethodPost, "/auth/login", jsonBody(t, map[string]string{
		"username": "citizen", "password": "secret", "role": "USER",
	}), models.Principal{})
	withJSON(c)
	h.Login(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "citizen", stub.loginReq.Username)
	assert.Equal(t, "USER", stub.loginReq.Role)
	var res models.LoginResponse
	decodeData(t, rec, &res)
	assert.Equal(t, "token", res.AccessToken)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestAuthHandlerLoginMalformedPayload(t *testing.T) {
	h := NewAuthHandler(&authServiceStub{}, nil)
	c, rec := newContext(http.MethodPost, "/auth/login", strings.NewReader("{"), models.Principal{})
	withJSON(c)
	h.Login(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, rec).Error.Code)
}

func TestAuthHandlerLoginFailureIsUnauthorized(t *testing.T) {
	h := NewAuthHandler(&authServiceStub{loginErr: appErrors.ErrInvalidCredentials}, nil)
	c, rec := newContext(http.MethodPost, "/auth/login", jsonBody(t, map[string]string{
		"username": "citizen", "password": "wrong", "role": "USER",
	}), models.Principal{})
	withJSON(c)
	h.Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, decode(t, rec).Error.Code)
}

func TestAuthHandlerRegisterConflict(t *testing.T) {
	stub := &authServiceStub{registerErr: appErrors.Clone(appErrors.ErrConflict, "username already taken")}
	h := NewAuthHandler(stub, nil)
	c, rec := newContext(http.MethodPost, "/auth/register", jsonBody(t, models.RegisterRequest{
		Username: "citizen", Email: "c@example.com", Password: "secret1", Role: "USER",
	}), models.Principal{})
	withJSON(c)
	h.Register(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "citizen", stub.registered.Username)
}

func TestAuthHandlerLogoutRevokesClaims(t *testing.T) {
	stub := &authServiceStub{}
	h := NewAuthHandler(stub, nil)

	c, rec := newContext(http.MethodPost, "/auth/logout", nil, testCitizen)
	h.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, stub.revoked)

	claims := &models.JWTClaims{Username: "citizen", Role: models.RoleUser}
	claims.ID = "session-1"
	c, rec = newContext(http.MethodPost, "/auth/logout", nil, testCitizen)
	c.Set(middleware.ContextClaimsKey, claims)
	h.Logout(c)
	flush(c)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, stub.revoked)
	assert.Equal(t, "session-1", stub.revoked.ID)
}

func TestAuthHandlerMeRequiresPrincipal(t *testing.T) {
	h := NewAuthHandler(&authServiceStub{}, nil)

	c, rec := newContext(http.MethodGet, "/auth/me", nil, models.Principal{})
	h.Me(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newContext(http.MethodGet, "/auth/me", nil, testOfficer(t))
	h.Me(c)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Principal models.PrincipalInfo `json:"principal"`
	}
	decodeData(t, rec, &body)
	assert.Equal(t, models.RolePolice, body.Principal.Role)
	require.NotNil(t, body.Principal.StationID)
	assert.Equal(t, "station-1", *body.Principal.StationID)
}

func TestAuthHandlerChangePasswordAndProfile(t *testing.T) {
	stub := &authServiceStub{}
	h := NewAuthHandler(stub, stub)

	c, rec := newContext(http.MethodPost, "/auth/change-password", jsonBody(t, models.ChangePasswordRequest{
		OldPassword: "old-pass", NewPassword: "new-pass", ConfirmPassword: "new-pass",
	}), testCitizen)
	withJSON(c)
	h.ChangePassword(c)
	flush(c)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "new-pass", stub.changed.NewPassword)

	c, rec = newContext(http.MethodPut, "/auth/profile", strings.NewReader(`{"email":"new@example.com"}`), testCitizen)
	withJSON(c)
	h.UpdateProfile(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", stub.profileOwner)
	require.NotNil(t, stub.profile.Email)
	assert.Nil(t, stub.profile.Phone)
}
