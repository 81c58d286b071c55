package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/fir-api/internal/models"
)

// auditLockKey serialises audit appends so that entry ids follow commit order.
const auditLockKey = 0x46495231

const (
	defaultAuditLimit = 10
	maxAuditLimit     = 100
)

// ErrAuditEntryMissing is returned when a transactional mutation yields no entry.
var ErrAuditEntryMissing = errors.New("mutation produced no audit entry")

// AuditTxFunc performs a mutation with q and returns the entry documenting it.
type AuditTxFunc func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error)

// AuditRepository persists the append-only audit trail.
type AuditRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db, now: time.Now}
}

// InTx runs fn inside a transaction and appends the entry it returns in that
// same transaction. If fn fails nothing is written; if it succeeds exactly one
// entry is committed together with the mutation.
func (r *AuditRepository) InTx(ctx context.Context, fn AuditTxFunc) (*models.AuditLog, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin audit tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	entry, err := fn(ctx, tx)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrAuditEntryMissing
	}
	if err := r.Append(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit audit tx: %w", err)
	}
	committed = true
	return entry, nil
}

// Append inserts entry using q, which must be the transaction that performed
// the documented mutation. Entries are never updated or deleted.
func (r *AuditRepository) Append(ctx context.Context, q sqlx.ExtContext, entry *models.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, auditLockKey); err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	const query = `INSERT INTO audit_logs (actor_id, action, summary, description, entity_type, entity_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := sqlx.GetContext(ctx, q, &entry.ID, query,
		entry.ActorID,
		entry.Action,
		entry.Summary,
		entry.Description,
		entry.EntityType,
		entry.EntityID,
		entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

// Recent returns entries newest first. Limit is clamped to 1..100 and
// defaults to 10; a non-empty ActorID restricts the feed to that actor.
func (r *AuditRepository) Recent(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", len(args)))
	}

	query := `SELECT id, actor_id, action, summary, description, entity_type, entity_id, created_at FROM audit_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", ClampAuditLimit(filter.Limit))

	var entries []models.AuditLog
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, nil
}

// ClampAuditLimit applies the activity feed bounds.
func ClampAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultAuditLimit
	case limit > maxAuditLimit:
		return maxAuditLimit
	}
	return limit
}
