package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tms/internal/domain"
	"tms/internal/repository"
)

// AvailabilityService resolves which drivers may take a new dispatch.
type AvailabilityService struct {
	driverRepo   repository.DriverRepository
	dispatchRepo repository.DispatchRepository
	metrics      MetricsRecorder
}

// NewAvailabilityService creates a new AvailabilityService. metrics may be nil.
func NewAvailabilityService(
	driverRepo repository.DriverRepository,
	dispatchRepo repository.DispatchRepository,
	metrics MetricsRecorder,
) *AvailabilityService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &AvailabilityService{
		driverRepo:   driverRepo,
		dispatchRepo: dispatchRepo,
		metrics:      metrics,
	}
}

// ListAvailable returns the drivers assignable at now, best rated first and
// ties broken by ascending ID. An empty result is not an error.
func (s *AvailabilityService) ListAvailable(ctx context.Context, now time.Time) ([]*domain.Driver, error) {
	candidates, err := s.driverRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active drivers: %w", err)
	}

	committedIDs, err := s.dispatchRepo.ListCommittedDriverIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list committed drivers: %w", err)
	}
	committed := make(map[string]struct{}, len(committedIDs))
	for _, id := range committedIDs {
		committed[id] = struct{}{}
	}

	available := make([]*domain.Driver, 0, len(candidates))
	for _, d := range candidates {
		if !d.Eligible(now) {
			continue
		}
		if _, busy := committed[d.ID]; busy {
			continue
		}
		available = append(available, d)
	}

	sort.SliceStable(available, func(i, j int) bool {
		if available[i].Rating != available[j].Rating {
			return available[i].Rating > available[j].Rating
		}
		return available[i].ID < available[j].ID
	})

	s.metrics.SetAvailableDrivers(len(available))
	return available, nil
}

// checkAssignable applies the full assignability rule to one driver inside
// the caller's transaction. excludeDispatchID is the dispatch being assigned,
// so re-assigning the same driver is not a conflict.
func checkAssignable(
	ctx context.Context,
	dispatchRepo repository.DispatchRepository,
	driver *domain.Driver,
	excludeDispatchID string,
	now time.Time,
) error {
	if reason := driver.IneligibleReason(now); reason != "" {
		return fmt.Errorf("%w: %s", ErrDriverUnavailable, reason)
	}

	open, err := dispatchRepo.CountOpenByDriverID(ctx, driver.ID, excludeDispatchID)
	if err != nil {
		return fmt.Errorf("count open dispatches: %w", err)
	}
	if open > 0 {
		return fmt.Errorf("%w: driver %s is assigned to another open dispatch", ErrDriverUnavailable, driver.ID)
	}
	return nil
}
