package service

import (
	"context"

	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/internal/policy"
	"github.com/noah-isme/fir-api/internal/repository"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
)

type auditReader interface {
	Recent(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error)
}

// ActivityService serves the audit feed.
type ActivityService struct {
	repo auditReader
}

// NewActivityService constructs an ActivityService.
func NewActivityService(repo auditReader) *ActivityService {
	return &ActivityService{repo: repo}
}

// Recent returns the newest entries first. Administrators see the whole
// trail; everyone else sees only entries they are the actor of.
func (s *ActivityService) Recent(ctx context.Context, principal models.Principal, limit int) ([]models.AuditLog, error) {
	if !principal.Authenticated() {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.AuditFilter{Limit: repository.ClampAuditLimit(limit)}
	if !policy.Allowed(principal, policy.ActionReadAllAudit, nil) {
		filter.ActorID = principal.ID()
	}
	entries, err := s.repo.Recent(ctx, filter)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load activity")
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	return entries, nil
}
