package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fir-api/internal/models"
)

const stationColumns = `id, code, name, city, state, phone, email, address, in_charge, created_at, updated_at`

// StationRepository provides database access for the station directory.
type StationRepository struct {
	db *sqlx.DB
}

// NewStationRepository creates a new station repository.
func NewStationRepository(db *sqlx.DB) *StationRepository {
	return &StationRepository{db: db}
}

// List returns every station ordered by code.
func (r *StationRepository) List(ctx context.Context) ([]models.Station, error) {
	var stations []models.Station
	if err := r.db.SelectContext(ctx, &stations, `SELECT `+stationColumns+` FROM stations ORDER BY code`); err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	return stations, nil
}

// FindByID returns a station by identifier.
func (r *StationRepository) FindByID(ctx context.Context, id string) (*models.Station, error) {
	return r.findOne(ctx, "find station by id", `SELECT `+stationColumns+` FROM stations WHERE id = $1`, id)
}

// FindByCode returns a station by its human-readable code.
func (r *StationRepository) FindByCode(ctx context.Context, code string) (*models.Station, error) {
	return r.findOne(ctx, "find station by code", `SELECT `+stationColumns+` FROM stations WHERE code = $1`, code)
}

func (r *StationRepository) findOne(ctx context.Context, op, query string, arg string) (*models.Station, error) {
	var station models.Station
	if err := r.db.GetContext(ctx, &station, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &station, nil
}

// Count returns the number of stations.
func (r *StationRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM stations`); err != nil {
		return 0, fmt.Errorf("count stations: %w", err)
	}
	return total, nil
}

// Create inserts a station. A taken code surfaces as ErrDuplicate.
func (r *StationRepository) Create(ctx context.Context, q sqlx.ExtContext, station *models.Station) error {
	if station.ID == "" {
		station.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	station.CreatedAt = now
	station.UpdatedAt = now

	const query = `INSERT INTO stations (id, code, name, city, state, phone, email, address, in_charge, created_at, updated_at) VALUES (:id, :code, :name, :city, :state, :phone, :email, :address, :in_charge, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, station); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create station %s: %w", station.Code, ErrDuplicate)
		}
		return fmt.Errorf("create station: %w", err)
	}
	return nil
}

// Update replaces the editable fields of a station.
func (r *StationRepository) Update(ctx context.Context, q sqlx.ExtContext, station *models.Station) error {
	station.UpdatedAt = time.Now().UTC()
	const query = `UPDATE stations SET code = :code, name = :name, city = :city, state = :state, phone = :phone, email = :email, address = :address, in_charge = :in_charge, updated_at = :updated_at WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, q, query, station)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update station %s: %w", station.Code, ErrDuplicate)
		}
		return fmt.Errorf("update station: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check station update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a station only when no officer and no FIR references it.
// The dependency check is part of the DELETE so a concurrent registration
// cannot slip in between check and delete; the foreign keys back it up.
func (r *StationRepository) Delete(ctx context.Context, q sqlx.ExtContext, id string) error {
	const query = `DELETE FROM stations s WHERE s.id = $1
		AND NOT EXISTS (SELECT 1 FROM users u WHERE u.station_id = s.id)
		AND NOT EXISTS (SELECT 1 FROM firs f WHERE f.station_id = s.id)`
	err := execOne(ctx, q, "delete station", query, id)
	switch {
	case err == nil:
		return nil
	case isForeignKeyViolation(err):
		return ErrInUse
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS (SELECT 1 FROM stations WHERE id = $1)`, id); err != nil {
		return fmt.Errorf("check station exists: %w", err)
	}
	if exists {
		return ErrInUse
	}
	return sql.ErrNoRows
}
