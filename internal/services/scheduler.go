package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medistock/device/internal/remote"
)

const maxSyncDuration = 10 * time.Minute

// Scheduler runs a full sync on a fixed interval and on demand. Interval
// ticks while offline or unconfigured are skipped quietly; the outbox keeps
// accumulating until connectivity returns.
type Scheduler struct {
	manager  *SyncManager
	interval time.Duration
	logger   *logrus.Logger

	trigger chan string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewScheduler creates a new Scheduler
func NewScheduler(manager *SyncManager, interval time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		manager:  manager,
		interval: interval,
		logger:   logger,
		trigger:  make(chan string, 1),
	}
}

// Start begins the periodic loop. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go s.loop(loopCtx)
}

// Stop halts the periodic loop
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// TriggerImmediate requests a sync outside the regular interval. The request
// is dropped when one is already queued.
func (s *Scheduler) TriggerImmediate(reason string) {
	select {
	case s.trigger <- reason:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, "interval")
		case reason := <-s.trigger:
			s.run(ctx, reason)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, reason string) {
	log := s.logger.WithField("reason", reason)
	log.Debug("starting scheduled sync")

	// A stuck pass must not block the next interval forever
	runCtx, cancel := context.WithTimeout(ctx, maxSyncDuration)
	defer cancel()

	if _, err := s.manager.FullSync(runCtx); err != nil {
		if errors.Is(err, remote.ErrNotConfigured) {
			log.Debug("sync skipped, remote not configured")
			return
		}
		log.WithError(err).Warn("scheduled sync did not run")
	}
}
