package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/fir-api/internal/dto"
	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/internal/policy"
	"github.com/noah-isme/fir-api/internal/repository"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
	"github.com/noah-isme/fir-api/pkg/export"
)

// maxImportRows bounds a single bulk import file.
const maxImportRows = 1000

var importColumns = []string{"username", "email", "password", "role"}

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistingIdentities(ctx context.Context, usernames, emails []string) (map[string]bool, error)
	Create(ctx context.Context, q sqlx.ExtContext, user *models.User) error
	UpdateProfile(ctx context.Context, q sqlx.ExtContext, id string, update models.UserProfileUpdate, updatedAt time.Time) error
	Delete(ctx context.Context, q sqlx.ExtContext, id string) error
}

type stationResolver interface {
	FindByID(ctx context.Context, id string) (*models.Station, error)
	FindByCode(ctx context.Context, code string) (*models.Station, error)
}

type accountRevoker interface {
	RevokeAccount(ctx context.Context, userID string) error
}

// UserService implements account administration.
type UserService struct {
	users     userRepository
	stations  stationResolver
	audit     auditWriter
	hasher    PasswordHasher
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	revoker   accountRevoker
	now       func() time.Time
}

// NewUserService constructs a UserService.
func NewUserService(users userRepository, stations stationResolver, audit auditWriter, hasher PasswordHasher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = NewValidator()
	}
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &UserService{
		users:     users,
		stations:  stations,
		audit:     audit,
		hasher:    hasher,
		validator: validate,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// List returns a page of accounts.
func (s *UserService) List(ctx context.Context, principal models.Principal, query dto.UserQuery) ([]models.User, *models.Pagination, error) {
	if err := policy.Decide(principal, policy.ActionManageUsers, nil); err != nil {
		return nil, nil, err
	}
	page, size, _ := models.NormalizePage(query.Page, query.PageSize)
	filter := models.UserFilter{
		StationID: strings.TrimSpace(query.StationID),
		Search:    strings.TrimSpace(query.Search),
		Page:      page,
		PageSize:  size,
	}
	if query.Role != "" {
		role, err := models.ParseRole(query.Role)
		if err != nil {
			return nil, nil, appErrors.Validation(err, "unknown role filter")
		}
		filter.Role = &role
	}
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// AddPolice enrols an officer at an existing station.
func (s *UserService) AddPolice(ctx context.Context, principal models.Principal, req dto.AddPoliceRequest) (*models.User, error) {
	if err := policy.Decide(principal, policy.ActionManageUsers, nil); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid officer payload")
	}
	station, err := s.stations.FindByID(ctx, req.StationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "station does not exist")
		}
		return nil, appErrors.Internal(err, "failed to load station")
	}
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}
	user := &models.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         models.RolePolice,
		StationID:    &station.ID,
		Phone:        optionalString(req.Phone),
	}

	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		if err := s.users.Create(ctx, q, user); err != nil {
			return nil, err
		}
		return auditEntry(actorOf(principal), models.AuditActionPoliceAdded, models.EntityUser, user.ID,
			fmt.Sprintf("officer %s added", user.Username),
			fmt.Sprintf("%s assigned to station %s", user.Username, station.Code)), nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username or email already exists")
		}
		return nil, appErrors.Internal(err, "failed to add officer")
	}
	s.metrics.RecordAudit(entry.Action)
	return user, nil
}

// SetAccountRevoker makes Delete log the removed account out everywhere.
func (s *UserService) SetAccountRevoker(r accountRevoker) {
	s.revoker = r
}

// Delete removes an account. Administrators cannot remove themselves and
// citizens with filed reports cannot be removed.
func (s *UserService) Delete(ctx context.Context, principal models.Principal, id string) error {
	if err := policy.Decide(principal, policy.ActionManageUsers, nil); err != nil {
		return err
	}
	key, ok := canonicalID(id)
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	id = key
	if id == principal.ID() {
		return appErrors.Clone(appErrors.ErrForbidden, "administrators cannot delete their own account")
	}
	target, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Internal(err, "failed to load user")
	}

	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		if err := s.users.Delete(ctx, q, id); err != nil {
			return nil, err
		}
		return auditEntry(actorOf(principal), models.AuditActionUserDeleted, models.EntityUser, id,
			fmt.Sprintf("user %s deleted", target.Username),
			fmt.Sprintf("%s account %s removed", target.Role, target.Username)), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		case errors.Is(err, repository.ErrInUse):
			return appErrors.Clone(appErrors.ErrConflict, "user has filed reports and cannot be deleted")
		}
		return appErrors.Internal(err, "failed to delete user")
	}
	s.metrics.RecordAudit(entry.Action)
	if s.revoker != nil {
		if err := s.revoker.RevokeAccount(ctx, id); err != nil {
			s.logger.Error("failed to revoke deleted account sessions", zap.String("user_id", id), zap.Error(err))
		}
	}
	return nil
}

// BulkImport creates every account in a CSV file or none of them. Every row
// is validated before anything is written; errors name the offending line.
func (s *UserService) BulkImport(ctx context.Context, principal models.Principal, r io.Reader) (*dto.BulkImportResult, error) {
	if err := policy.Decide(principal, policy.ActionManageUsers, nil); err != nil {
		return nil, err
	}
	table, err := export.ReadTable(r, importColumns)
	if err != nil {
		return nil, appErrors.Validation(err, err.Error())
	}
	if len(table) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "import file has no rows")
	}
	if len(table) > maxImportRows {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("import file exceeds %d rows", maxImportRows))
	}

	rows := make([]dto.BulkImportRow, 0, len(table))
	for i, record := range table {
		row := dto.BulkImportRow{
			Line:        i + 2,
			Username:    record["username"],
			Email:       strings.ToLower(record["email"]),
			Password:    record["password"],
			Role:        record["role"],
			StationCode: record["station_code"],
			Phone:       record["phone"],
		}
		if err := s.validator.Struct(row); err != nil {
			return nil, validationError(err, fmt.Sprintf("line %d", row.Line))
		}
		rows = append(rows, row)
	}

	if err := s.checkImportDuplicates(ctx, rows); err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, len(rows))
	stationCodes := make(map[string]string)
	for _, row := range rows {
		user, err := s.importUser(ctx, row, stationCodes)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		for i, user := range users {
			if err := s.users.Create(ctx, q, user); err != nil {
				return nil, fmt.Errorf("line %d: %w", rows[i].Line, err)
			}
		}
		return auditEntry(actorOf(principal), models.AuditActionBulkUserImport, models.EntityUser, "",
			fmt.Sprintf("%d users imported", len(users)),
			fmt.Sprintf("bulk import of %d accounts", len(users))), nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, err.Error())
		}
		return nil, appErrors.Internal(err, "failed to import users")
	}
	s.metrics.RecordAudit(entry.Action)

	result := &dto.BulkImportResult{Imported: len(users), UserIDs: make([]string, 0, len(users))}
	for _, user := range users {
		result.UserIDs = append(result.UserIDs, user.ID)
	}
	return result, nil
}

func (s *UserService) checkImportDuplicates(ctx context.Context, rows []dto.BulkImportRow) error {
	seen := make(map[string]int, len(rows)*2)
	usernames := make([]string, 0, len(rows))
	emails := make([]string, 0, len(rows))
	for _, row := range rows {
		for _, key := range []string{"username:" + strings.ToLower(row.Username), "email:" + row.Email} {
			if first, ok := seen[key]; ok {
				return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("line %d duplicates line %d (%s)", row.Line, first, strings.SplitN(key, ":", 2)[0]))
			}
			seen[key] = row.Line
		}
		usernames = append(usernames, row.Username)
		emails = append(emails, row.Email)
	}

	existing, err := s.users.ExistingIdentities(ctx, usernames, emails)
	if err != nil {
		return appErrors.Internal(err, "failed to check existing users")
	}
	for _, row := range rows {
		if existing[strings.ToLower(row.Username)] || existing[strings.ToLower(row.Email)] {
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("line %d: username or email already exists", row.Line))
		}
	}
	return nil
}

func (s *UserService) importUser(ctx context.Context, row dto.BulkImportRow, stationCodes map[string]string) (*models.User, error) {
	role, _ := models.ParseRole(row.Role)
	user := &models.User{
		Username: row.Username,
		Email:    row.Email,
		Role:     role,
		Phone:    optionalString(row.Phone),
	}
	switch {
	case role == models.RolePolice && row.StationCode == "":
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("line %d: station_code is required for police", row.Line))
	case role != models.RolePolice && row.StationCode != "":
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("line %d: station_code is only allowed for police", row.Line))
	case role == models.RolePolice:
		code := strings.ToUpper(row.StationCode)
		id, ok := stationCodes[code]
		if !ok {
			station, err := s.stations.FindByCode(ctx, code)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("line %d: unknown station %s", row.Line, code))
				}
				return nil, appErrors.Internal(err, "failed to load station")
			}
			id = station.ID
			stationCodes[code] = id
		}
		user.StationID = &id
	}

	hash, err := s.hasher.Hash(row.Password)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}
	user.PasswordHash = hash
	return user, nil
}

// UpdateProfile edits the caller's own whitelisted profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, principal models.Principal, req models.UpdateProfileRequest) (*models.User, error) {
	if !principal.Authenticated() {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid profile payload")
	}
	update := models.UserProfileUpdate{Phone: req.Phone, ProfilePicRef: req.ProfilePicRef}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		update.Email = &email
	}
	if update.Email == nil && update.Phone == nil && update.ProfilePicRef == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no profile fields to update")
	}

	now := s.now().UTC()
	entry, err := s.audit.InTx(ctx, func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		if err := s.users.UpdateProfile(ctx, q, principal.ID(), update, now); err != nil {
			return nil, err
		}
		return auditEntry(actorOf(principal), models.AuditActionProfileUpdated, models.EntityUser, principal.ID(),
			fmt.Sprintf("%s updated profile", principal.Username()), profileFields(update)), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		case errors.Is(err, repository.ErrDuplicate):
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already in use")
		}
		return nil, appErrors.Internal(err, "failed to update profile")
	}
	s.metrics.RecordAudit(entry.Action)

	user, err := s.users.FindByID(ctx, principal.ID())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to reload user")
	}
	return user, nil
}

func profileFields(update models.UserProfileUpdate) string {
	var fields []string
	if update.Email != nil {
		fields = append(fields, "email")
	}
	if update.Phone != nil {
		fields = append(fields, "phone")
	}
	if update.ProfilePicRef != nil {
		fields = append(fields, "profile_pic_ref")
	}
	return "changed " + strings.Join(fields, ", ")
}
