package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fir-api/internal/models"
)

const appendAuditSQL = "INSERT INTO audit_logs (actor_id, action, summary, description, entity_type, entity_id, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id"

func expectAppend(mock sqlmock.Sqlmock, id int64) {
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).WithArgs(auditLockKey).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(appendAuditSQL)).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
}

func TestAuditInTxCommitsMutationAndEntry(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE firs SET status")).WillReturnResult(sqlmock.NewResult(0, 1))
	expectAppend(mock, 42)
	mock.ExpectCommit()

	actor := "pol-1"
	entry, err := repo.InTx(context.Background(), func(ctx context.Context, q sqlx.ExtContext) (*models.AuditLog, error) {
		if _, err := q.ExecContext(ctx, "UPDATE firs SET status = 'APPROVED' WHERE id = 'f-1'"); err != nil {
			return nil, err
		}
		return &models.AuditLog{ActorID: &actor, Action: models.AuditActionFIRApproved, Summary: "FIR approved", EntityType: models.EntityFIR, EntityID: "f-1"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditInTxRollsBackOnMutationError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("conflict")
	_, err := repo.InTx(context.Background(), func(context.Context, sqlx.ExtContext) (*models.AuditLog, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditInTxRequiresEntry(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := repo.InTx(context.Background(), func(context.Context, sqlx.ExtContext) (*models.AuditLog, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, ErrAuditEntryMissing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditInTxRollsBackWhenAppendFails(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(appendAuditSQL)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.InTx(context.Background(), func(context.Context, sqlx.ExtContext) (*models.AuditLog, error) {
		return &models.AuditLog{Action: models.AuditActionLogin, Summary: "login", EntityType: models.EntityUser, EntityID: "u-1"}, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append audit log")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRecent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "actor_id", "action", "summary", "description", "entity_type", "entity_id", "created_at"}).
		AddRow(int64(9), "u-1", "FIR_CREATED", "FIR filed", "", "FIR", "f-9", now).
		AddRow(int64(3), "u-1", "LOGIN", "Logged in", "", "USER", "u-1", now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, actor_id, action, summary, description, entity_type, entity_id, created_at FROM audit_logs WHERE actor_id = $1 ORDER BY id DESC LIMIT 100")).
		WithArgs("u-1").
		WillReturnRows(rows)

	entries, err := repo.Recent(context.Background(), models.AuditFilter{ActorID: "u-1", Limit: 500})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(9), entries[0].ID)
	assert.Equal(t, models.AuditActionFIRCreated, entries[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClampAuditLimit(t *testing.T) {
	assert.Equal(t, 10, ClampAuditLimit(0))
	assert.Equal(t, 10, ClampAuditLimit(-4))
	assert.Equal(t, 1, ClampAuditLimit(1))
	assert.Equal(t, 100, ClampAuditLimit(101))
}
