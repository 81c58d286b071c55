package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fir-api/internal/models"
)

type activityServiceStub struct {
	limit int
}

func (s *activityServiceStub) Recent(_ context.Context, p models.Principal, limit int) ([]models.AuditLog, error) {
	s.limit = limit
	actor := p.ID()
	return []models.AuditLog{{ID: 2, ActorID: &actor, Action: models.AuditActionFIRCreated}}, nil
}

func TestActivityHandlerRecent(t *testing.T) {
	stub := &activityServiceStub{}
	c, rec := newContext(http.MethodGet, "/activity?limit=5", nil, testCitizen)

	NewActivityHandler(stub).Recent(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, stub.limit)
	var entries []models.AuditLog
	decodeData(t, rec, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditActionFIRCreated, entries[0].Action)
}

func TestActivityHandlerIgnoresBadLimit(t *testing.T) {
	stub := &activityServiceStub{}
	c, rec := newContext(http.MethodGet, "/activity?limit=lots", nil, testAdmin)

	NewActivityHandler(stub).Recent(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, stub.limit)
}
