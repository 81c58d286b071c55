package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/internal/repository"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
)

const tokenTypeBearer = "Bearer"

// dummyPassword is hashed once so unknown usernames cost the same bcrypt
// comparison as known ones.
const dummyPassword = "fir-api-timing-equaliser"

type authUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, q sqlx.ExtContext, user *models.User) error
	UpdateLastLogin(ctx context.Context, q sqlx.ExtContext, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, q sqlx.ExtContext, id, passwordHash string, updatedAt time.Time) error
}

type stationLookup interface {
	FindByID(ctx context.Context, id string) (*models.Station, error)
}

// SessionStore records revoked session ids until their tokens expire.
type SessionStore interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// AuthService provides authentication use cases.
type AuthService struct {
	users     authUserRepository
	stations  stationLookup
	audit     auditWriter
	sessions  SessionStore
	hasher    PasswordHasher
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	config    AuthConfig
	now       func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, stations stationLookup, audit auditWriter, sessions SessionStore, hasher PasswordHasher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	if sessions == nil {
		sessions = repository.NewMemorySessionStore()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 8 * time.Hour
	}
	return &AuthService{
		users:     users,
		stations:  stations,
		audit:     audit,
		sessions:  sessions,
		hasher:    hasher,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// Authenticate verifies a username, password and claimed role and issues a
// session token bound to the resulting principal. Unknown users, wrong
// passwords and role mismatches all yield the same error.
func (s *AuthService) Authenticate(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid login payload")
	}
	claimedRole, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, appErrors.Validation(err, "role must be one of ADMIN, POLICE, USER")
	}

	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = s.hasher.Compare(s.timingHash(), req.Password)
			s.metrics.RecordLogin("invalid")
			return nil, appErrors.ErrInvalidCredentials
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		s.metrics.RecordLogin("invalid")
		return nil, appErrors.ErrInvalidCredentials
	}
	if user.Role != claimedRole {
		s.metrics.RecordLogin("invalid")
		return nil, appErrors.ErrInvalidCredentials
	}
	if user.Role == models.RolePolice && (user.StationID == nil || *user.StationID == "") {
		s.metrics.RecordLogin("no_station")
		return nil, appErrors.ErrStationNotAssigned
	}

	principal, err := user.Principal()
	if err != nil {
		return nil, appErrors.Internal(err, "failed to build principal")
	}

	now := s.now().UTC()
	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		if err := s.users.UpdateLastLogin(ctx, q, user.ID, now); err != nil {
			return nil, err
		}
		return auditEntry(actorOf(principal), models.AuditActionLogin, models.EntityUser, user.ID,
			fmt.Sprintf("%s logged in", user.Username),
			fmt.Sprintf("%s signed in as %s", user.Username, user.Role)), nil
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to record login")
	}
	s.metrics.RecordAudit(entry.Action)

	token, err := s.generateAccessToken(principal, now)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create access token")
	}
	s.metrics.RecordLogin("success")

	return &models.LoginResponse{
		AccessToken: token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		Principal:   principal.Info(),
		IssuedAt:    now,
	}, nil
}

// Register creates a new account. It never logs the caller in.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid registration payload")
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		return nil, appErrors.Validation(err, "role must be one of ADMIN, POLICE, USER")
	}

	user := &models.User{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Role:     role,
		Phone:    optionalString(req.Phone),
	}
	stationID, err := s.resolveStation(ctx, role, req.StationID)
	if err != nil {
		return nil, err
	}
	user.StationID = stationID

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}
	user.PasswordHash = hash

	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		if err := s.users.Create(ctx, q, user); err != nil {
			return nil, err
		}
		return auditEntry(&user.ID, models.AuditActionUserCreated, models.EntityUser, user.ID,
			fmt.Sprintf("%s registered", user.Username),
			fmt.Sprintf("new %s account %s", user.Role, user.Username)), nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username or email already exists")
		}
		return nil, appErrors.Internal(err, "failed to create user")
	}
	s.metrics.RecordAudit(entry.Action)
	return user, nil
}

// resolveStation enforces that exactly police accounts carry an existing station.
func (s *AuthService) resolveStation(ctx context.Context, role models.Role, raw string) (*string, error) {
	stationID := strings.TrimSpace(raw)
	if role != models.RolePolice {
		if stationID != "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "station_id is only allowed for police accounts")
		}
		return nil, nil
	}
	if stationID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "station_id is required for police accounts")
	}
	if _, err := s.stations.FindByID(ctx, stationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "station does not exist")
		}
		return nil, appErrors.Internal(err, "failed to load station")
	}
	return &stationID, nil
}

// ChangePassword replaces the caller's password after verifying the old one.
func (s *AuthService) ChangePassword(ctx context.Context, principal models.Principal, req models.ChangePasswordRequest) error {
	if !principal.Authenticated() {
		return appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid password payload")
	}
	if req.NewPassword == req.OldPassword {
		return appErrors.Clone(appErrors.ErrValidation, "new password must differ from the current password")
	}

	user, err := s.users.FindByID(ctx, principal.ID())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrUnauthorized
		}
		return appErrors.Internal(err, "failed to fetch user")
	}
	if err := s.hasher.Compare(user.PasswordHash, req.OldPassword); err != nil {
		return appErrors.Clone(appErrors.ErrInvalidCredentials, "current password is incorrect")
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return appErrors.Internal(err, "failed to hash password")
	}
	now := s.now().UTC()
	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		if err := s.users.UpdatePassword(ctx, q, user.ID, hash, now); err != nil {
			return nil, err
		}
		return auditEntry(actorOf(principal), models.AuditActionPasswordChanged, models.EntityUser, user.ID,
			fmt.Sprintf("%s changed password", user.Username), ""), nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrUnauthorized
		}
		return appErrors.Internal(err, "failed to update password")
	}
	s.metrics.RecordAudit(entry.Action)
	return nil
}

// Logout revokes the session behind claims for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, claims *models.JWTClaims) error {
	if claims == nil || claims.ID == "" {
		return appErrors.ErrUnauthorized
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(s.now())
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.sessions.Revoke(ctx, claims.ID, ttl); err != nil {
		return appErrors.Internal(err, "failed to revoke session")
	}
	return nil
}

// RevokeAccount invalidates every token issued to userID so far. Entries
// outlive the longest token, so nothing issued before the call survives it.
func (s *AuthService) RevokeAccount(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, accountRevocationKey(userID), s.config.AccessTokenExpiry); err != nil {
		return appErrors.Internal(err, "failed to revoke account sessions")
	}
	return nil
}

func accountRevocationKey(userID string) string {
	return "account:" + userID
}

// Me returns the stored account behind principal.
func (s *AuthService) Me(ctx context.Context, principal models.Principal) (*models.User, error) {
	if !principal.Authenticated() {
		return nil, appErrors.ErrUnauthorized
	}
	user, err := s.users.FindByID(ctx, principal.ID())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	return user, nil
}

// ValidateToken parses an access token, rejects revoked sessions and rebuilds
// the principal snapshot it carries.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (models.Principal, *models.JWTClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.config.AccessTokenSecret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return models.Principal{}, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	if claims.ID == "" {
		return models.Principal{}, nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has no session id")
	}

	for _, key := range []string{claims.ID, accountRevocationKey(claims.Subject)} {
		revoked, err := s.sessions.IsRevoked(ctx, key)
		if err != nil {
			s.logger.Error("session revocation lookup failed", zap.Error(err))
			return models.Principal{}, nil, appErrors.Internal(err, "failed to verify session")
		}
		if revoked {
			return models.Principal{}, nil, appErrors.Clone(appErrors.ErrUnauthorized, "session has been logged out")
		}
	}

	principal, err := models.PrincipalFor(claims.Subject, claims.Username, claims.Role, claims.StationID)
	if err != nil {
		return models.Principal{}, nil, appErrors.Clone(appErrors.ErrUnauthorized, "token principal is invalid")
	}
	return principal, claims, nil
}

func (s *AuthService) generateAccessToken(principal models.Principal, now time.Time) (string, error) {
	info := principal.Info()
	claims := models.JWTClaims{
		Username:  info.Username,
		Role:      info.Role,
		StationID: info.StationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   info.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenExpiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.AccessTokenSecret))
}

func (s *AuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Warn("failed to prepare timing hash", zap.Error(err))
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
