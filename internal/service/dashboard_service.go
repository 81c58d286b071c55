package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/fir-api/internal/models"
	"github.com/noah-isme/fir-api/internal/policy"
	"github.com/noah-isme/fir-api/pkg/cache"
	appErrors "github.com/noah-isme/fir-api/pkg/errors"
)

const dashboardCacheNamespace = "dashboard"

type firStatusCounter interface {
	CountByStatus(ctx context.Context, filter models.FIRFilter) ([]models.StatusCount, error)
}

type rowCounter interface {
	Count(ctx context.Context) (int, error)
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	FIRs     firStatusCounter
	Users    rowCounter
	Stations rowCounter
	Cache    *CacheService
	Logger   *zap.Logger
	CacheTTL time.Duration
}

// DashboardService composes per-scope FIR counts.
type DashboardService struct {
	firs     firStatusCounter
	users    rowCounter
	stations rowCounter
	cache    *CacheService
	logger   *zap.Logger
	cacheTTL time.Duration
	now      func() time.Time
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		firs:     params.FIRs,
		users:    params.Users,
		stations: params.Stations,
		cache:    params.Cache,
		logger:   logger,
		cacheTTL: ttl,
		now:      time.Now,
	}
}

// Summary returns FIR counts for the caller's scope and reports whether the
// result came from cache.
func (s *DashboardService) Summary(ctx context.Context, principal models.Principal) (*models.DashboardSummary, bool, error) {
	filter, ok := policy.Visibility(principal, models.FIRFilter{})
	if !ok {
		return nil, false, appErrors.ErrUnauthorized
	}
	scope := dashboardScope(principal)
	key := cache.Key(dashboardCacheNamespace, scope)

	var cached models.DashboardSummary
	if s.cache.Get(ctx, key, &cached) {
		return &cached, true, nil
	}

	counts, err := s.firs.CountByStatus(ctx, filter)
	if err != nil {
		return nil, false, appErrors.Internal(err, "failed to count firs")
	}
	summary := &models.DashboardSummary{
		Scope:       scope,
		ByStatus:    make(map[models.FIRStatus]int, len(models.AllFIRStatuses)),
		GeneratedAt: s.now().UTC(),
	}
	for _, status := range models.AllFIRStatuses {
		summary.ByStatus[status] = 0
	}
	for _, row := range counts {
		summary.ByStatus[row.Status] = row.Count
		summary.TotalFIRs += row.Count
	}

	if principal.IsAdmin() {
		users, err := s.users.Count(ctx)
		if err != nil {
			return nil, false, appErrors.Internal(err, "failed to count users")
		}
		stations, err := s.stations.Count(ctx)
		if err != nil {
			return nil, false, appErrors.Internal(err, "failed to count stations")
		}
		summary.Users = &users
		summary.Stations = &stations
	}

	s.cache.Set(ctx, key, summary, s.cacheTTL)
	return summary, false, nil
}

func dashboardScope(principal models.Principal) string {
	switch {
	case principal.IsAdmin():
		return "all"
	case principal.IsPolice():
		station, _ := principal.StationID()
		return "station:" + station
	}
	return "user:" + principal.ID()
}
