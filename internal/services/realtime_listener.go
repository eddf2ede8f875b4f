package services

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/medistock/device/internal/models"
	"github.com/medistock/device/internal/remote"
	"github.com/medistock/device/internal/repository"
)

// RealtimeListener applies the remote change feed to the local store. Events
// produced by this device's own writes are discarded so the outbox never
// echoes back onto itself.
type RealtimeListener struct {
	client   *remote.RealtimeClient
	records  *repository.RecordRepository
	settings *repository.DeviceSettingsRepository
	logger   *logrus.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// NewRealtimeListener creates a new RealtimeListener
func NewRealtimeListener(
	client *remote.RealtimeClient,
	records *repository.RecordRepository,
	settings *repository.DeviceSettingsRepository,
	logger *logrus.Logger,
) *RealtimeListener {
	return &RealtimeListener{client: client, records: records, settings: settings, logger: logger}
}

// Start subscribes to all entity tables and applies events until Stop or the
// connection drops. Returns false when already running.
func (l *RealtimeListener) Start(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return false, nil
	}

	clientID, err := l.settings.ClientID(ctx)
	if err != nil {
		return false, err
	}

	feedCtx, cancel := context.WithCancel(ctx)
	events, err := l.client.Subscribe(feedCtx, models.AllTables())
	if err != nil {
		cancel()
		return false, err
	}

	l.running = true
	l.cancel = cancel
	go l.consume(feedCtx, events, clientID)
	return true, nil
}

// Stop closes the feed subscription
func (l *RealtimeListener) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// IsRunning reports whether the feed is connected
func (l *RealtimeListener) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *RealtimeListener) consume(ctx context.Context, events <-chan remote.ChangeEvent, clientID string) {
	defer func() {
		l.mu.Lock()
		l.running = false
		l.cancel = nil
		l.mu.Unlock()
		l.logger.Info("realtime feed closed")
	}()

	for event := range events {
		if event.ClientID() == clientID {
			continue
		}
		if err := l.apply(ctx, event); err != nil {
			// One bad event must not kill the feed
			l.logger.WithError(err).WithFields(logrus.Fields{
				"table": event.Table,
				"op":    event.Operation,
				"id":    event.RecordID(),
			}).Error("failed to apply realtime event")
		}
	}
}

func (l *RealtimeListener) apply(ctx context.Context, event remote.ChangeEvent) error {
	if _, ok := models.EntityTypeForTable(event.Table); !ok {
		l.logger.WithField("table", event.Table).Debug("event for unknown table ignored")
		return nil
	}

	switch event.Table {
	case "purchase_batches":
		return l.applyPurchaseBatch(ctx, event)
	case "sales", "stock_movements":
		return l.applyAppendOnly(ctx, event)
	default:
		return l.applyDefault(ctx, event)
	}
}

func (l *RealtimeListener) applyDefault(ctx context.Context, event remote.ChangeEvent) error {
	switch event.Operation {
	case "insert", "update":
		return l.records.Upsert(ctx, event.Table, event.Record)
	case "delete":
		return l.records.Delete(ctx, event.Table, event.RecordID())
	default:
		return nil
	}
}

// applyPurchaseBatch patches only the stock counters of an existing batch.
// Remote updates must not clobber pricing fields a cashier may have edited
// offline.
func (l *RealtimeListener) applyPurchaseBatch(ctx context.Context, event remote.ChangeEvent) error {
	switch event.Operation {
	case "insert":
		return l.records.Upsert(ctx, event.Table, event.Record)
	case "update":
		patch := map[string]any{}
		if v, ok := event.Record["remaining_quantity"]; ok {
			patch["remaining_quantity"] = v
		}
		if v, ok := event.Record["is_exhausted"]; ok {
			patch["is_exhausted"] = v
		}
		if len(patch) == 0 {
			return nil
		}
		return l.records.Patch(ctx, event.Table, event.RecordID(), patch)
	case "delete":
		return l.records.Delete(ctx, event.Table, event.RecordID())
	default:
		return nil
	}
}

// applyAppendOnly handles ledger tables where rows are immutable once
// written: inserts are applied, updates and deletes are ignored
func (l *RealtimeListener) applyAppendOnly(ctx context.Context, event remote.ChangeEvent) error {
	if event.Operation != "insert" {
		return nil
	}
	return l.records.Upsert(ctx, event.Table, event.Record)
}
