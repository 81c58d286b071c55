package service

import (
	"context"

	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/internal/repository"
)

// auditWriter pairs a mutation with its audit entry in one transaction.
type auditWriter interface {
	InTx(ctx context.Context, fn repository.AuditTxFunc) (*models.AuditLog, error)
}

func actorOf(p models.Principal) *string {
	if !p.Authenticated() {
		return nil
	}
	id := p.ID()
	return &id
}

func auditEntry(actor *string, action models.AuditAction, entityType, entityID, summary, description string) *models.AuditLog {
	return &models.AuditLog{
		ActorID:     actor,
		Action:      action,
		Summary:     summary,
		Description: description,
		EntityType:  entityType,
		EntityID:    entityID,
	}
}
