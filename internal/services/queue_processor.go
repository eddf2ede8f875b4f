package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medistock/device/internal/config"
	"github.com/medistock/device/internal/models"
	"github.com/medistock/device/internal/observability"
	"github.com/medistock/device/internal/remote"
	"github.com/medistock/device/internal/repository"
)

type processOutcome int

const (
	outcomeSuccess processOutcome = iota
	outcomeConflict
	outcomeRetry
	outcomeSkip
	outcomeAbort
)

type processResult struct {
	outcome processOutcome
	reason  string
	err     error
}

// QueueProcessor drains the outbox queue against the remote backend. At most
// one drain runs at a time per device; concurrent Start calls are no-ops.
type QueueProcessor struct {
	queue    *repository.SyncQueueRepository
	records  *repository.RecordRepository
	backend  remote.Backend
	resolver *ConflictResolver
	retry    config.RetryConfig
	logger   *logrus.Logger

	mu          sync.Mutex
	processing  bool
	cancel      context.CancelFunc
	done        chan struct{}
	lastSummary models.ProcessSummary
}

// NewQueueProcessor creates a new QueueProcessor
func NewQueueProcessor(
	queue *repository.SyncQueueRepository,
	records *repository.RecordRepository,
	backend remote.Backend,
	resolver *ConflictResolver,
	retry config.RetryConfig,
	logger *logrus.Logger,
) *QueueProcessor {
	return &QueueProcessor{
		queue:    queue,
		records:  records,
		backend:  backend,
		resolver: resolver,
		retry:    retry,
		logger:   logger,
	}
}

// Start begins draining the queue. Returns false when a drain is already
// running (idempotent start).
func (p *QueueProcessor) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.processing {
		return false
	}

	drainCtx, cancel := context.WithCancel(ctx)
	p.processing = true
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.processQueue(drainCtx)
	return true
}

// Stop cancels the in-flight drain loop. Queued pending items are kept.
func (p *QueueProcessor) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// IsProcessing reports whether a drain is running
func (p *QueueProcessor) IsProcessing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processing
}

// Done returns a channel closed when the current drain finishes. Returns a
// closed channel when no drain is running.
func (p *QueueProcessor) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.processing {
		return p.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Summary returns the outcome of the most recent drain
func (p *QueueProcessor) Summary() models.ProcessSummary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSummary
}

func (p *QueueProcessor) processQueue(ctx context.Context) {
	ctx, span := observability.StartServiceSpan(ctx, "QueueProcessor", "processQueue")
	var summary models.ProcessSummary

	defer func() {
		// Cleanup pass: synced items have served their purpose
		if removed, err := p.queue.DeleteSynced(context.WithoutCancel(ctx)); err != nil {
			p.logger.WithError(err).Warn("failed to clean up synced queue items")
		} else if removed > 0 {
			p.logger.WithField("removed", removed).Debug("cleaned up synced queue items")
		}

		p.logger.WithFields(logrus.Fields{
			"processed":  summary.Processed,
			"succeeded":  summary.Succeeded,
			"failed":     summary.Failed,
			"conflicted": summary.Conflicted,
		}).Info("queue drain finished")

		observability.SetSuccess(span)
		span.End()

		p.mu.Lock()
		p.lastSummary = summary
		p.processing = false
		p.cancel = nil
		close(p.done)
		p.mu.Unlock()
	}()

drain:
	for ctx.Err() == nil {
		batch, err := p.queue.GetPendingBatch(ctx, p.retry.BatchSize)
		if err != nil {
			p.logger.WithError(err).Error("failed to read pending batch")
			observability.RecordError(span, err)
			return
		}
		if len(batch) == 0 {
			return
		}

		for _, item := range batch {
			if ctx.Err() != nil {
				return
			}

			result := p.processItem(ctx, item)
			summary.Processed++

			itemLog := p.logger.WithFields(logrus.Fields{
				"item_id": item.ID,
				"entity":  item.EntityType,
				"op":      item.Operation,
			})

			switch result.outcome {
			case outcomeSuccess:
				summary.Succeeded++
				if err := p.queue.UpdateStatus(ctx, item.ID, models.StatusSynced); err != nil {
					itemLog.WithError(err).Error("failed to mark item synced")
				}

			case outcomeConflict:
				summary.Conflicted++
				if err := p.queue.UpdateStatus(ctx, item.ID, models.StatusConflict); err != nil {
					itemLog.WithError(err).Error("failed to mark item conflicted")
				}
				itemLog.WithField("reason", result.reason).Warn("item parked for manual conflict resolution")

			case outcomeSkip:
				if err := p.queue.DeleteByID(ctx, item.ID); err != nil {
					itemLog.WithError(err).Error("failed to remove skipped item")
				}
				itemLog.WithField("reason", result.reason).Info("item skipped")

			case outcomeAbort:
				// Hand the item back and stop the drain; nothing is lost
				if err := p.queue.UpdateStatus(ctx, item.ID, models.StatusPending); err != nil {
					itemLog.WithError(err).Error("failed to restore aborted item")
				}
				itemLog.WithField("reason", result.reason).Warn("queue drain aborted")
				observability.RecordError(span, result.err)
				break drain

			case outcomeRetry:
				now := time.Now().UTC()
				if p.retry.ShouldRetry(item.RetryCount) {
					if err := p.queue.UpdateStatusWithRetry(ctx, item.ID, models.StatusPending, now, result.err.Error()); err != nil {
						itemLog.WithError(err).Error("failed to reschedule item")
					}
					delay := p.retry.GetDelay(item.RetryCount)
					itemLog.WithFields(logrus.Fields{
						"retry": item.RetryCount + 1,
						"delay": delay,
					}).WithError(result.err).Warn("item failed, retrying after backoff")

					select {
					case <-ctx.Done():
						return
					case <-time.After(delay):
					}
				} else {
					summary.Failed++
					if err := p.queue.UpdateStatusWithRetry(ctx, item.ID, models.StatusFailed, now, result.err.Error()); err != nil {
						itemLog.WithError(err).Error("failed to mark item failed")
					}
					itemLog.WithError(result.err).Error("item failed permanently")
				}
			}
		}
	}
}

func (p *QueueProcessor) processItem(ctx context.Context, item *models.SyncQueueItem) processResult {
	if p.backend == nil {
		return processResult{outcome: outcomeAbort, reason: "remote backend not configured", err: remote.ErrNotConfigured}
	}
	if err := p.queue.UpdateStatus(ctx, item.ID, models.StatusInProgress); err != nil {
		return processResult{outcome: outcomeRetry, err: err}
	}

	if !item.EntityType.IsKnown() {
		return processResult{outcome: outcomeSkip, reason: fmt.Sprintf("unsupported entity type %q", item.EntityType)}
	}

	obsolete, err := p.isObsolete(ctx, item)
	if err != nil {
		return processResult{outcome: outcomeRetry, err: err}
	}
	if obsolete {
		return processResult{outcome: outcomeSkip, reason: "superseded by a later delete"}
	}

	switch item.Operation {
	case models.OpInsert:
		return p.pushPayload(ctx, item, item.Payload)

	case models.OpDelete:
		err := p.backend.Delete(ctx, item.EntityType.Table(), item.EntityID)
		if errors.Is(err, remote.ErrNotFound) {
			err = nil
		}
		return p.classifyPushError(err)

	case models.OpUpdate:
		return p.processUpdate(ctx, item)

	default:
		return processResult{outcome: outcomeSkip, reason: fmt.Sprintf("unknown operation %q", item.Operation)}
	}
}

func (p *QueueProcessor) processUpdate(ctx context.Context, item *models.SyncQueueItem) processResult {
	table := item.EntityType.Table()

	remoteRecord, err := p.backend.GetByID(ctx, table, item.EntityID)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return p.classifyPushError(err)
	}
	remoteUpdatedAt := recordUpdatedAt(remoteRecord)

	if !p.resolver.DetectConflict(item.LastKnownRemoteUpdatedAt, remoteUpdatedAt) {
		return p.pushPayload(ctx, item, item.Payload)
	}

	remotePayload, _ := json.Marshal(remoteRecord)
	resolution := p.resolver.Resolve(string(item.EntityType), item.Payload, remotePayload, item.CreatedAt.UnixMilli(), remoteUpdatedAt)

	switch resolution.Resolution {
	case models.RemoteWins:
		// Remote is authoritative: take its version locally, drop ours
		if remoteRecord != nil {
			if err := p.records.Upsert(ctx, table, remoteRecord); err != nil {
				return processResult{outcome: outcomeRetry, err: err}
			}
		}
		return processResult{outcome: outcomeSkip, reason: "remote version kept"}

	case models.LocalWins:
		return p.pushPayload(ctx, item, item.Payload)

	case models.Merge:
		return p.pushPayload(ctx, item, resolution.MergedPayload)

	case models.AskUser:
		return processResult{outcome: outcomeConflict, reason: resolution.Message}

	default:
		return processResult{outcome: outcomeSkip, reason: fmt.Sprintf("resolution %s not supported", resolution.Resolution)}
	}
}

func (p *QueueProcessor) pushPayload(ctx context.Context, item *models.SyncQueueItem, payload json.RawMessage) processResult {
	if p.backend == nil {
		return processResult{outcome: outcomeAbort, reason: "remote backend not configured", err: remote.ErrNotConfigured}
	}
	var record map[string]any
	if err := json.Unmarshal(payload, &record); err != nil {
		return processResult{outcome: outcomeSkip, reason: fmt.Sprintf("malformed payload: %v", err)}
	}
	return p.classifyPushError(p.backend.Upsert(ctx, item.EntityType.Table(), record))
}

func (p *QueueProcessor) classifyPushError(err error) processResult {
	switch {
	case err == nil:
		return processResult{outcome: outcomeSuccess}
	case errors.Is(err, remote.ErrNotConfigured):
		return processResult{outcome: outcomeAbort, reason: "remote backend not configured", err: err}
	default:
		return processResult{outcome: outcomeRetry, err: err}
	}
}

// isObsolete reports whether a later pending DELETE supersedes this item
func (p *QueueProcessor) isObsolete(ctx context.Context, item *models.SyncQueueItem) (bool, error) {
	if item.Operation == models.OpDelete {
		return false, nil
	}
	siblings, err := p.queue.GetByEntity(ctx, item.EntityType, item.EntityID)
	if err != nil {
		return false, err
	}
	for _, sibling := range siblings {
		if sibling.Operation == models.OpDelete && sibling.CreatedAt.After(item.CreatedAt) {
			return true, nil
		}
	}
	return false, nil
}

// UserConflict builds the user-facing view of a parked conflict, including
// the current remote snapshot and the field differences
func (p *QueueProcessor) UserConflict(ctx context.Context, item *models.SyncQueueItem) models.UserConflict {
	var remotePayload json.RawMessage
	var remoteUpdatedAt int64

	if p.backend != nil {
		record, err := p.backend.GetByID(ctx, item.EntityType.Table(), item.EntityID)
		if err == nil && record != nil {
			remotePayload, _ = json.Marshal(record)
			if ts := recordUpdatedAt(record); ts != nil {
				remoteUpdatedAt = *ts
			}
		}
	}

	return p.resolver.CreateUserConflict(
		item.ID, item.EntityType, item.EntityID,
		item.Payload, remotePayload,
		item.CreatedAt.UnixMilli(), remoteUpdatedAt,
	)
}

// ResolveConflict applies a user's decision to a parked conflict item and
// removes it from the queue
func (p *QueueProcessor) ResolveConflict(ctx context.Context, queueItemID string, resolution models.ConflictResolution, mergedPayload json.RawMessage) error {
	item, err := p.queue.GetByID(ctx, queueItemID)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("queue item %s not found", queueItemID)
	}

	switch resolution {
	case models.LocalWins:
		if result := p.pushPayload(ctx, item, item.Payload); result.err != nil {
			return result.err
		}
	case models.Merge:
		if len(mergedPayload) > 0 {
			if result := p.pushPayload(ctx, item, mergedPayload); result.err != nil {
				return result.err
			}
		}
	}
	// RemoteWins and everything else: the local mutation is abandoned
	return p.queue.DeleteByID(ctx, queueItemID)
}

// RetryFailed flips permanently failed items back to pending and starts a
// drain
func (p *QueueProcessor) RetryFailed(ctx context.Context) error {
	reset, err := p.queue.ResetStatus(ctx, models.StatusFailed, models.StatusPending)
	if err != nil {
		return err
	}
	if reset > 0 {
		p.logger.WithField("items", reset).Info("retrying failed queue items")
		// The drain must outlive the caller's request
		p.Start(context.WithoutCancel(ctx))
	}
	return nil
}

// recordUpdatedAt extracts the updated_at timestamp from a remote record
func recordUpdatedAt(record map[string]any) *int64 {
	if record == nil {
		return nil
	}
	switch v := record["updated_at"].(type) {
	case float64:
		ts := int64(v)
		return &ts
	case int64:
		return &v
	case json.Number:
		if ts, err := v.Int64(); err == nil {
			return &ts
		}
	}
	return nil
}
