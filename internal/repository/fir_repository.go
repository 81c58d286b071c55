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

const firColumns = `id, filer_id, station_id, crime_type, accused, complainant_name, complainant_age, complainant_phone, complainant_address, relation, purpose, evidence_ref, status, decision_note, created_at, updated_at`

// FIRRepository persists FIR case records.
type FIRRepository struct {
	db *sqlx.DB
}

// NewFIRRepository creates a new FIR repository.
func NewFIRRepository(db *sqlx.DB) *FIRRepository {
	return &FIRRepository{db: db}
}

// Create inserts a new FIR. The status is whatever the caller set; the
// service always files with SENT.
func (r *FIRRepository) Create(ctx context.Context, q sqlx.ExtContext, fir *models.FIR) error {
	if fir.ID == "" {
		fir.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	fir.CreatedAt = now
	fir.UpdatedAt = now

	const query = `INSERT INTO firs (` + firColumns + `) VALUES (:id, :filer_id, :station_id, :crime_type, :accused, :complainant_name, :complainant_age, :complainant_phone, :complainant_address, :relation, :purpose, :evidence_ref, :status, :decision_note, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, fir); err != nil {
		switch {
		case isForeignKeyViolation(err):
			return fmt.Errorf("create fir: %w", sql.ErrNoRows)
		case isUniqueViolation(err):
			return fmt.Errorf("create fir: evidence already attached: %w", ErrDuplicate)
		}
		return fmt.Errorf("create fir: %w", err)
	}
	return nil
}

// FindByID returns a FIR by identifier.
func (r *FIRRepository) FindByID(ctx context.Context, id string) (*models.FIR, error) {
	return r.FindByIDWith(ctx, r.db, id)
}

// FindByIDWith reads a FIR through q, typically an open transaction.
func (r *FIRRepository) FindByIDWith(ctx context.Context, q sqlx.QueryerContext, id string) (*models.FIR, error) {
	var fir models.FIR
	if err := sqlx.GetContext(ctx, q, &fir, `SELECT `+firColumns+` FROM firs WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find fir by id: %w", err)
	}
	return &fir, nil
}

// CompareAndSetStatusParams describes a guarded status change.
type CompareAndSetStatusParams struct {
	ID        string
	StationID string
	From      models.FIRStatus
	To        models.FIRStatus
	Note      *string
	UpdatedAt time.Time
}

// CompareAndSetStatus moves a FIR from one status to another in a single
// conditional UPDATE. It returns sql.ErrNoRows when the row is missing, sits
// at another station, or is no longer in the expected status.
func (r *FIRRepository) CompareAndSetStatus(ctx context.Context, q sqlx.ExtContext, params CompareAndSetStatusParams) error {
	const query = `UPDATE firs SET status = $4, decision_note = COALESCE($5, decision_note), updated_at = $6 WHERE id = $1 AND station_id = $2 AND status = $3`
	return execOne(ctx, q, "compare and set fir status", query,
		params.ID, params.StationID, params.From, params.To, params.Note, params.UpdatedAt)
}

// SetStatus unconditionally overwrites the status of a FIR.
func (r *FIRRepository) SetStatus(ctx context.Context, q sqlx.ExtContext, id string, status models.FIRStatus, updatedAt time.Time) error {
	const query = `UPDATE firs SET status = $2, updated_at = $3 WHERE id = $1`
	return execOne(ctx, q, "set fir status", query, id, status, updatedAt)
}

// Delete removes a FIR.
func (r *FIRRepository) Delete(ctx context.Context, q sqlx.ExtContext, id string) error {
	return execOne(ctx, q, "delete fir", `DELETE FROM firs WHERE id = $1`, id)
}

func firConditions(filter models.FIRFilter) (string, []interface{}) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.FilerID != "" {
		args = append(args, filter.FilerID)
		conditions = append(conditions, fmt.Sprintf("filer_id = $%d", len(args)))
	}
	if filter.StationID != "" {
		args = append(args, filter.StationID)
		conditions = append(conditions, fmt.Sprintf("station_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CrimeType != "" {
		args = append(args, filter.CrimeType)
		conditions = append(conditions, fmt.Sprintf("crime_type = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(accused) LIKE $%d OR LOWER(complainant_name) LIKE $%d OR LOWER(purpose) LIKE $%d)", n, n, n))
	}
	where := "WHERE 1=1"
	if len(conditions) > 0 {
		where += " AND " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// List returns FIRs matching filter, newest first, with the total count.
func (r *FIRRepository) List(ctx context.Context, filter models.FIRFilter) ([]models.FIR, int, error) {
	where, args := firConditions(filter)
	_, pageSize, offset := models.NormalizePage(filter.Page, filter.PageSize)

	listQuery := fmt.Sprintf("SELECT %s FROM firs %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d", firColumns, where, pageSize, offset)
	var firs []models.FIR
	if err := r.db.SelectContext(ctx, &firs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list firs: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM firs "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count firs: %w", err)
	}
	return firs, total, nil
}

// ListAll returns every FIR matching filter without pagination, for exports.
func (r *FIRRepository) ListAll(ctx context.Context, filter models.FIRFilter) ([]models.FIR, error) {
	where, args := firConditions(filter)
	var firs []models.FIR
	if err := r.db.SelectContext(ctx, &firs, fmt.Sprintf("SELECT %s FROM firs %s ORDER BY created_at DESC, id", firColumns, where), args...); err != nil {
		return nil, fmt.Errorf("list all firs: %w", err)
	}
	return firs, nil
}

// CountByStatus aggregates FIRs matching filter per status.
func (r *FIRRepository) CountByStatus(ctx context.Context, filter models.FIRFilter) ([]models.StatusCount, error) {
	where, args := firConditions(filter)
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, "SELECT status, COUNT(*) AS count FROM firs "+where+" GROUP BY status ORDER BY status", args...); err != nil {
		return nil, fmt.Errorf("count firs by status: %w", err)
	}
	return counts, nil
}
