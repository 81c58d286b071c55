package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fir-api/internal/models"
)

const userColumns = `id, username, email, password_hash, role, station_id, phone, profile_pic_ref, last_login, created_at, updated_at`

// UserRepository provides database access for principals.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByUsername returns a user by username.
func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// ExistingIdentities returns which of the given usernames and emails are already taken.
func (r *UserRepository) ExistingIdentities(ctx context.Context, usernames, emails []string) (map[string]bool, error) {
	taken := make(map[string]bool)
	if len(usernames) == 0 && len(emails) == 0 {
		return taken, nil
	}
	query, args, err := sqlx.In(`SELECT username, email FROM users WHERE username IN (?) OR email IN (?)`, withPlaceholder(usernames), withPlaceholder(emails))
	if err != nil {
		return nil, fmt.Errorf("build identity lookup: %w", err)
	}
	var rows []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("lookup identities: %w", err)
	}
	for _, row := range rows {
		taken[strings.ToLower(row.Username)] = true
		taken[strings.ToLower(row.Email)] = true
	}
	return taken, nil
}

// sqlx.In rejects empty slices; an empty string never matches a stored identity.
func withPlaceholder(values []string) []string {
	if len(values) == 0 {
		return []string{""}
	}
	return values
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	baseQuery := `FROM users WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		args = append(args, *filter.Role)
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.StationID != "" {
		args = append(args, filter.StationID)
		conditions = append(conditions, fmt.Sprintf("station_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(username) LIKE $%d OR LOWER(email) LIKE $%d)", len(args), len(args)))
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	_, pageSize, offset := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", userColumns, baseQuery, pageSize, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// Count returns the number of registered users.
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return total, nil
}

// Create inserts a new user. Unique violations surface as ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, q sqlx.ExtContext, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, username, email, password_hash, role, station_id, phone, profile_pic_ref, created_at, updated_at) VALUES (:id, :username, :email, :password_hash, :role, :station_id, :phone, :profile_pic_ref, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, user); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", user.Username, ErrDuplicate)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, q sqlx.ExtContext, id string, ts time.Time) error {
	const query = `UPDATE users SET last_login = $2 WHERE id = $1`
	return execOne(ctx, q, "update last login", query, id, ts)
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, q sqlx.ExtContext, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	return execOne(ctx, q, "update password", query, id, passwordHash, updatedAt)
}

// UpdateProfile writes only the whitelisted profile columns that are set.
func (r *UserRepository) UpdateProfile(ctx context.Context, q sqlx.ExtContext, id string, update models.UserProfileUpdate, updatedAt time.Time) error {
	const query = `UPDATE users SET email = COALESCE($2, email), phone = COALESCE($3, phone), profile_pic_ref = COALESCE($4, profile_pic_ref), updated_at = $5 WHERE id = $1`
	err := execOne(ctx, q, "update profile", query, id, update.Email, update.Phone, update.ProfilePicRef, updatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("update profile: %w", ErrDuplicate)
	}
	return err
}

// Delete removes a user that has filed no FIRs. It returns sql.ErrNoRows when
// the user does not exist and ErrInUse when reports reference it.
func (r *UserRepository) Delete(ctx context.Context, q sqlx.ExtContext, id string) error {
	const query = `DELETE FROM users WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM firs WHERE filer_id = $1)`
	err := execOne(ctx, q, "delete user", query, id)
	if !errors.Is(err, sql.ErrNoRows) {
		if isForeignKeyViolation(err) {
			return ErrInUse
		}
		return err
	}
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("check user exists: %w", err)
	}
	if exists {
		return ErrInUse
	}
	return sql.ErrNoRows
}

// execOne runs a statement that must touch exactly one row; zero rows is sql.ErrNoRows.
func execOne(ctx context.Context, q sqlx.ExecerContext, op, query string, args ...interface{}) error {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
