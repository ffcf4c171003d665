package service

import (
	"context"
	"log/slog"

	"github.com/fileverse/ddocs-stack/common/logging"
	"github.com/fileverse/ddocs-stack/ddocs/internal/metrics"
	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

// ListFailedEvents returns portal's failed events ("" for every portal).
func (s *Service) ListFailedEvents(ctx context.Context, portal string) ([]*models.Event, error) {
	return s.repo.ListFailed(ctx, portal)
}

// RetryEvent moves one failed event back to pending. It reports false if
// the event is missing, belongs to another portal, is not failed or has
// exhausted its retries.
func (s *Service) RetryEvent(ctx context.Context, portal, id string) (bool, error) {
	ok, err := s.repo.ResetFailedToPending(ctx, id, portal)
	if err != nil {
		return false, err
	}
	if ok {
		metrics.EventsRetried.Inc()
		s.logger.InfoContext(ctx, "failed event reset to pending", logging.EventID(id), logging.PortalAddress(portal))
	}
	return ok, nil
}

// RetryAllFailed moves every failed event of portal back to pending and
// returns how many were reset.
func (s *Service) RetryAllFailed(ctx context.Context, portal string) (int, error) {
	n, err := s.repo.ResetAllFailedToPending(ctx, portal)
	if err != nil {
		return 0, err
	}
	metrics.EventsRetried.Add(float64(n))
	s.logger.InfoContext(ctx, "failed events reset to pending", logging.PortalAddress(portal), slog.Int("retried", n))
	return n, nil
}
