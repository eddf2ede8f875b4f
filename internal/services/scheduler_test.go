package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medistock/device/internal/models"
)

func TestScheduler_TriggerImmediate(t *testing.T) {
	manager, status, f := setupSyncManager(t)
	status.SetOnline(true)

	f.backend.seed("sites", map[string]any{"id": "s1", "client_id": "other"})

	scheduler := NewScheduler(manager, time.Hour, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.Start(ctx)
	defer scheduler.Stop()

	scheduler.TriggerImmediate("test")

	require.Eventually(t, func() bool {
		record, err := f.records.Get(context.Background(), "sites", "s1")
		return err == nil && record != nil
	}, 5*time.Second, 10*time.Millisecond, "triggered sync should pull remote rows")
}

func TestScheduler_TriggerWhileQueuedIsDropped(t *testing.T) {
	manager, _, _ := setupSyncManager(t)
	scheduler := NewScheduler(manager, time.Hour, testLogger())

	// Not started: the buffered trigger fills, extras are dropped without
	// blocking
	scheduler.TriggerImmediate("first")
	scheduler.TriggerImmediate("second")
	scheduler.TriggerImmediate("third")
}

func TestScheduler_OfflineSyncIsSkipped(t *testing.T) {
	manager, status, f := setupSyncManager(t)
	status.SetOnline(false)

	scheduler := NewScheduler(manager, time.Hour, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler.Start(ctx)
	defer scheduler.Stop()

	enqueueItem(t, f, models.EntityProduct, "p1", models.OpInsert, `{"id":"p1"}`)
	scheduler.TriggerImmediate("test")

	time.Sleep(100 * time.Millisecond)
	assert.Nil(t, f.backend.get("products", "p1"), "offline devices must not push")
}
