package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oculoscan/oculoscan-api/internal/dto"
	"github.com/oculoscan/oculoscan-api/internal/models"
	appErrors "github.com/oculoscan/oculoscan-api/pkg/errors"
)

type scanFacetStore interface {
	CountByStatus(ctx context.Context, filter models.ScanRequestFilter) ([]models.StatusCount, error)
	CountByPriority(ctx context.Context, filter models.ScanRequestFilter) ([]models.PriorityCount, error)
}

// DashboardService aggregates faceted counts for the filter badges. Results
// are cached per scope; every lifecycle transition invalidates the namespace.
type DashboardService struct {
	repo     scanFacetStore
	cache    *CacheService
	logger   *zap.Logger
	cacheTTL time.Duration
}

// NewDashboardService creates a dashboard aggregation service.
func NewDashboardService(repo scanFacetStore, cache *CacheService, logger *zap.Logger, cacheTTL time.Duration) *DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{repo: repo, cache: cache, logger: logger, cacheTTL: cacheTTL}
}

// Summary returns status and priority counts scoped to the actor: patients
// see only their own requests, clinicians see the whole queue.
func (s *DashboardService) Summary(ctx context.Context, actor models.Actor) (*dto.DashboardSummaryResponse, error) {
	var filter models.ScanRequestFilter
	scope := "all"
	if actor.Role == models.RolePatient {
		filter.PatientID = actor.ID
		scope = "patient:" + actor.ID
	}

	cacheKey := fmt.Sprintf("dash:scans:%s", scope)
	if s.cache != nil && s.cache.Enabled() {
		var cached dto.DashboardSummaryResponse
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	byStatus, err := s.repo.CountByStatus(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count by status")
	}
	byPriority, err := s.repo.CountByPriority(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count by priority")
	}

	total := 0
	for _, c := range byStatus {
		total += c.Count
	}
	summary := &dto.DashboardSummaryResponse{Total: total, ByStatus: byStatus, ByPriority: byPriority}

	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Set(ctx, cacheKey, summary, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache dashboard summary", zap.Error(err))
		}
	}
	return summary, nil
}
