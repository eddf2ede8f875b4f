package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medistock/device/internal/models"
	"github.com/medistock/device/internal/repository"
)

// StatusManager tracks the device-wide sync state: connectivity, in-flight
// sync, queue depth and the persisted last sync outcome.
type StatusManager struct {
	queue    *repository.SyncQueueRepository
	settings *repository.DeviceSettingsRepository
	logger   *logrus.Logger

	mu      sync.RWMutex
	online  bool
	syncing bool
}

// NewStatusManager creates a new StatusManager
func NewStatusManager(queue *repository.SyncQueueRepository, settings *repository.DeviceSettingsRepository, logger *logrus.Logger) *StatusManager {
	return &StatusManager{queue: queue, settings: settings, logger: logger}
}

// SetOnline records the current connectivity state
func (s *StatusManager) SetOnline(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online = online
}

// IsOnline reports the last observed connectivity state
func (s *StatusManager) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// SetSyncing records whether a sync pass is in flight
func (s *StatusManager) SetSyncing(syncing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncing = syncing
}

// RecordSyncSuccess persists a successful sync outcome
func (s *StatusManager) RecordSyncSuccess(ctx context.Context, at time.Time) {
	if err := s.settings.RecordSyncOutcome(ctx, at, true, ""); err != nil {
		s.logger.WithError(err).Warn("failed to persist sync outcome")
	}
}

// RecordSyncFailure persists a failed sync outcome
func (s *StatusManager) RecordSyncFailure(ctx context.Context, at time.Time, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.settings.RecordSyncOutcome(ctx, at, false, msg); err != nil {
		s.logger.WithError(err).Warn("failed to persist sync outcome")
	}
}

// Snapshot assembles the current global sync status
func (s *StatusManager) Snapshot(ctx context.Context) (models.GlobalSyncStatus, error) {
	s.mu.RLock()
	online, syncing := s.online, s.syncing
	s.mu.RUnlock()

	pending, err := s.queue.PendingCount(ctx)
	if err != nil {
		return models.GlobalSyncStatus{}, err
	}
	conflicts, err := s.queue.ConflictCount(ctx)
	if err != nil {
		return models.GlobalSyncStatus{}, err
	}
	lastSync, err := s.settings.LastSync(ctx)
	if err != nil {
		return models.GlobalSyncStatus{}, err
	}

	return models.GlobalSyncStatus{
		PendingCount:  pending,
		ConflictCount: conflicts,
		IsOnline:      online,
		IsSyncing:     syncing,
		LastSync:      lastSync,
	}, nil
}

// StatusSummary renders the one-line description shown next to the
// indicator
func (s *StatusManager) StatusSummary(ctx context.Context) (string, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return "", err
	}

	switch {
	case snapshot.ConflictCount > 0:
		return fmt.Sprintf("%d conflicts need attention", snapshot.ConflictCount), nil
	case !snapshot.LastSync.Success && snapshot.LastSync.HasEverSynced():
		return "Last sync failed: " + snapshot.LastSync.Error, nil
	case !snapshot.IsOnline && snapshot.PendingCount > 0:
		return fmt.Sprintf("Offline, %d changes waiting", snapshot.PendingCount), nil
	case !snapshot.IsOnline:
		return "Offline", nil
	case snapshot.IsSyncing:
		return "Sync in progress", nil
	case snapshot.PendingCount > 0:
		return fmt.Sprintf("%d changes pending", snapshot.PendingCount), nil
	default:
		return "Everything synced", nil
	}
}
