package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medistock/device/internal/models"
	"github.com/medistock/device/internal/observability"
	"github.com/medistock/device/internal/remote"
	"github.com/medistock/device/internal/repository"
)

// SyncManager runs full synchronization passes: first the outbox is drained
// to the remote, then every entity type is pulled back down in dependency
// order. A pull failure aborts the remaining pulls so partially written
// parents never leave children dangling.
type SyncManager struct {
	queue        *repository.SyncQueueRepository
	records      *repository.RecordRepository
	settings     *repository.DeviceSettingsRepository
	backend      remote.Backend
	processor    *QueueProcessor
	orchestrator *Orchestrator
	status       *StatusManager
	logger       *logrus.Logger
}

// NewSyncManager creates a new SyncManager
func NewSyncManager(
	queue *repository.SyncQueueRepository,
	records *repository.RecordRepository,
	settings *repository.DeviceSettingsRepository,
	backend remote.Backend,
	processor *QueueProcessor,
	orchestrator *Orchestrator,
	status *StatusManager,
	logger *logrus.Logger,
) *SyncManager {
	return &SyncManager{
		queue:        queue,
		records:      records,
		settings:     settings,
		backend:      backend,
		processor:    processor,
		orchestrator: orchestrator,
		status:       status,
		logger:       logger,
	}
}

// FullSync drains the outbox to the remote, then pulls every entity type
// back down. The outcome is persisted so the status surface can report it
// after a restart.
func (m *SyncManager) FullSync(ctx context.Context) (models.SyncResult, error) {
	ctx, span := observability.StartServiceSpan(ctx, "SyncManager", "FullSync")
	defer span.End()

	if m.backend == nil {
		return models.SyncResult{}, remote.ErrNotConfigured
	}
	if !m.status.IsOnline() {
		return models.SyncResult{}, fmt.Errorf("device is offline")
	}

	m.status.SetSyncing(true)
	defer m.status.SetSyncing(false)

	startTime := time.Now().UTC()

	m.pushLocalChanges(ctx)
	entityResults := m.pullAll(ctx)

	endTime := time.Now().UTC()
	result := m.orchestrator.CreateSyncResult(models.Bidirectional, entityResults, startTime, endTime)

	if result.IsSuccess() {
		m.status.RecordSyncSuccess(ctx, endTime)
		observability.SetSuccess(span)
	} else {
		firstErr := result.Errors()[0]
		m.status.RecordSyncFailure(ctx, endTime, firstErr.Cause)
		observability.RecordError(span, firstErr.Cause)
	}

	m.logger.WithFields(logrus.Fields{
		"duration_ms": result.DurationMs(),
		"entities_ok": result.SuccessCount(),
		"errors":      len(result.Errors()),
		"items":       result.TotalItemsProcessed(),
	}).Info(m.orchestrator.CompletionMessage(result))

	return result, nil
}

// SyncLocalToRemote drains the outbox queue and reports its summary
func (m *SyncManager) SyncLocalToRemote(ctx context.Context) (models.ProcessSummary, error) {
	if m.backend == nil {
		return models.ProcessSummary{}, remote.ErrNotConfigured
	}
	m.pushLocalChanges(ctx)
	return m.processor.Summary(), nil
}

// SyncRemoteToLocal pulls every entity type down without pushing first
func (m *SyncManager) SyncRemoteToLocal(ctx context.Context) (models.SyncResult, error) {
	if m.backend == nil {
		return models.SyncResult{}, remote.ErrNotConfigured
	}
	startTime := time.Now().UTC()
	entityResults := m.pullAll(ctx)
	return m.orchestrator.CreateSyncResult(models.RemoteToLocal, entityResults, startTime, time.Now().UTC()), nil
}

func (m *SyncManager) pushLocalChanges(ctx context.Context) {
	m.processor.Start(ctx)
	select {
	case <-m.processor.Done():
	case <-ctx.Done():
		return
	}

	summary := m.processor.Summary()
	m.logger.WithFields(logrus.Fields{
		"processed": summary.Processed,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
	}).Debug("push phase finished")
}

func (m *SyncManager) pullAll(ctx context.Context) []models.EntitySyncResult {
	entities := m.orchestrator.EntitiesToSync()
	results := make([]models.EntitySyncResult, 0, len(entities))

	aborted := false
	for i, entity := range entities {
		if aborted {
			results = append(results, models.SkippedResult(entity, "aborted after earlier failure"))
			continue
		}

		m.logger.WithFields(logrus.Fields{
			"entity":   entity,
			"progress": m.orchestrator.CalculateProgress(i, len(entities)),
		}).Debug(m.orchestrator.ProgressMessage(entity, models.RemoteToLocal))

		count, err := m.pullEntity(ctx, entity)
		if err != nil {
			results = append(results, models.ErrorResult(entity, err.Error(), err))
			aborted = true
			continue
		}
		results = append(results, models.SuccessResult(entity, count))
	}
	return results
}

func (m *SyncManager) pullEntity(ctx context.Context, entity models.EntityType) (int, error) {
	ctx, span := observability.StartServiceSpan(ctx, "SyncManager", "pullEntity")
	defer span.End()

	clientID, err := m.settings.ClientID(ctx)
	if err != nil {
		return 0, err
	}

	table := entity.Table()
	rows, err := m.backend.Select(ctx, table, nil)
	if err != nil {
		observability.RecordError(span, err)
		return 0, fmt.Errorf("pull %s: %w", table, err)
	}

	applied := 0
	for _, row := range rows {
		// Rows this device wrote are already in the local store
		if cid, ok := row["client_id"].(string); ok && cid == clientID {
			continue
		}
		if err := m.records.Upsert(ctx, table, row); err != nil {
			observability.RecordError(span, err)
			return applied, fmt.Errorf("apply %s: %w", table, err)
		}
		applied++
	}

	if entity == models.EntityUser && len(rows) > 0 {
		m.removeBootstrapAdmin(ctx)
	}

	observability.SetSuccess(span)
	return applied, nil
}

// removeBootstrapAdmin drops the locally seeded admin account once real
// users have arrived from the remote
func (m *SyncManager) removeBootstrapAdmin(ctx context.Context) {
	adminID, err := m.settings.BootstrapAdminID(ctx)
	if err != nil || adminID == "" {
		return
	}
	if err := m.records.Delete(ctx, models.EntityUser.Table(), adminID); err != nil {
		m.logger.WithError(err).Warn("failed to remove bootstrap admin")
		return
	}
	if err := m.settings.ClearBootstrapAdminID(ctx); err != nil {
		m.logger.WithError(err).Warn("failed to clear bootstrap admin marker")
		return
	}
	m.logger.WithField("user_id", adminID).Info("bootstrap admin replaced by remote users")
}
