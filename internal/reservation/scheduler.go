package reservation

import (
	"context"
	"time"

	"github.com/shopkit/inventory-service/internal/pkg/logger"
	"go.uber.org/zap"
)

const DefaultCleanupInterval = time.Minute

// Scheduler periodically sweeps expired holds out of a Manager. It is
// deliberately separate from the Manager's constructor so it can be started,
// stopped and tested on its own.
type Scheduler struct {
	manager  *Manager
	interval time.Duration
	logger   logger.ZapLogger
}

func NewScheduler(manager *Manager, interval time.Duration, log logger.ZapLogger) *Scheduler {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &Scheduler{
		manager:  manager,
		interval: interval,
		logger:   log,
	}
}

// Start blocks until ctx is canceled, purging expired holds once per interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting reservation cleanup scheduler", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping reservation cleanup scheduler")
			return
		case <-ticker.C:
			if n := s.manager.PurgeExpired(); n > 0 {
				s.logger.Info("Purged expired reservations", zap.Int("count", n))
			}
		}
	}
}
