package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medistock/device/internal/models"
)

func setupEnqueue(t *testing.T) (*EnqueueService, *processorFixture) {
	f := setupProcessor(t)
	svc := NewEnqueueService(f.db, f.queue, f.records, f.settings, testLogger())
	return svc, f
}

func TestEnqueueService_Insert(t *testing.T) {
	svc, f := setupEnqueue(t)
	ctx := context.Background()

	err := svc.EnqueueInsert(ctx, models.EntityProduct, "p1", json.RawMessage(`{"id":"p1","name":"A"}`), "u1", "s1")
	require.NoError(t, err)

	t.Run("local record is written", func(t *testing.T) {
		record, err := f.records.Get(ctx, "products", "p1")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "A", record["name"])
	})

	t.Run("payload carries the device identity", func(t *testing.T) {
		clientID, err := f.settings.ClientID(ctx)
		require.NoError(t, err)

		record, err := f.records.Get(ctx, "products", "p1")
		require.NoError(t, err)
		assert.Equal(t, clientID, record["client_id"])
	})

	t.Run("queue item is pending", func(t *testing.T) {
		item, err := f.queue.GetLatestPendingForEntity(ctx, models.EntityProduct, "p1")
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, models.OpInsert, item.Operation)
		assert.Equal(t, "u1", item.UserID)
		assert.Equal(t, "s1", item.SiteID)
		assert.Nil(t, item.LastKnownRemoteUpdatedAt)
	})
}

func TestEnqueueService_UpdateConsolidation(t *testing.T) {
	svc, f := setupEnqueue(t)
	ctx := context.Background()

	t.Run("update over pending insert refreshes in place", func(t *testing.T) {
		require.NoError(t, svc.EnqueueInsert(ctx, models.EntityProduct, "p1", json.RawMessage(`{"id":"p1","name":"A"}`), "", ""))
		require.NoError(t, svc.EnqueueUpdate(ctx, models.EntityProduct, "p1", json.RawMessage(`{"id":"p1","name":"B"}`), "", ""))

		items, err := f.queue.GetByEntity(ctx, models.EntityProduct, "p1")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, models.OpInsert, items[0].Operation, "a not-yet-uploaded insert stays an insert")

		var payload map[string]any
		require.NoError(t, json.Unmarshal(items[0].Payload, &payload))
		assert.Equal(t, "B", payload["name"])
		assert.Equal(t, int64(2), items[0].LocalVersion)
	})

	t.Run("update over pending update refreshes in place", func(t *testing.T) {
		require.NoError(t, svc.EnqueueUpdate(ctx, models.EntityCustomer, "c1", json.RawMessage(`{"id":"c1","name":"X"}`), "", ""))
		require.NoError(t, svc.EnqueueUpdate(ctx, models.EntityCustomer, "c1", json.RawMessage(`{"id":"c1","name":"Y"}`), "", ""))

		items, err := f.queue.GetByEntity(ctx, models.EntityCustomer, "c1")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, models.OpUpdate, items[0].Operation)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(items[0].Payload, &payload))
		assert.Equal(t, "Y", payload["name"])
	})
}

func TestEnqueueService_DeleteConsolidation(t *testing.T) {
	svc, f := setupEnqueue(t)
	ctx := context.Background()

	t.Run("delete cancels a pending insert", func(t *testing.T) {
		require.NoError(t, svc.EnqueueInsert(ctx, models.EntityProduct, "p1", json.RawMessage(`{"id":"p1"}`), "", ""))
		require.NoError(t, svc.EnqueueDelete(ctx, models.EntityProduct, "p1", "", ""))

		items, err := f.queue.GetByEntity(ctx, models.EntityProduct, "p1")
		require.NoError(t, err)
		assert.Empty(t, items, "the remote never saw this entity, nothing to sync")

		record, err := f.records.Get(ctx, "products", "p1")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("delete replaces a pending update", func(t *testing.T) {
		require.NoError(t, svc.EnqueueUpdate(ctx, models.EntityCustomer, "c1", json.RawMessage(`{"id":"c1","name":"X"}`), "", ""))
		require.NoError(t, svc.EnqueueDelete(ctx, models.EntityCustomer, "c1", "", ""))

		items, err := f.queue.GetByEntity(ctx, models.EntityCustomer, "c1")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, models.OpDelete, items[0].Operation)
	})

	t.Run("update after pending delete is dropped", func(t *testing.T) {
		require.NoError(t, svc.EnqueueDelete(ctx, models.EntitySale, "s1", "", ""))
		require.NoError(t, svc.EnqueueUpdate(ctx, models.EntitySale, "s1", json.RawMessage(`{"id":"s1","total":5}`), "", ""))

		items, err := f.queue.GetByEntity(ctx, models.EntitySale, "s1")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, models.OpDelete, items[0].Operation)
	})
}

func TestEnqueueService_CapturesLastKnownTimestamp(t *testing.T) {
	svc, f := setupEnqueue(t)
	ctx := context.Background()

	// Simulate a record previously pulled from the remote
	require.NoError(t, f.records.Upsert(ctx, "products", map[string]any{
		"id": "p1", "name": "synced", "updated_at": float64(1700000000000),
	}))

	require.NoError(t, svc.EnqueueUpdate(ctx, models.EntityProduct, "p1", json.RawMessage(`{"id":"p1","name":"edited"}`), "", ""))

	item, err := f.queue.GetLatestPendingForEntity(ctx, models.EntityProduct, "p1")
	require.NoError(t, err)
	require.NotNil(t, item)
	require.NotNil(t, item.LastKnownRemoteUpdatedAt)
	assert.Equal(t, int64(1700000000000), *item.LastKnownRemoteUpdatedAt)
}

func TestEnqueueService_RejectsBadInput(t *testing.T) {
	svc, _ := setupEnqueue(t)
	ctx := context.Background()

	assert.Error(t, svc.EnqueueInsert(ctx, models.EntityType("Widget"), "w1", json.RawMessage(`{}`), "", ""))
	assert.Error(t, svc.EnqueueInsert(ctx, models.EntityProduct, "", json.RawMessage(`{}`), "", ""))
	assert.Error(t, svc.EnqueueInsert(ctx, models.EntityProduct, "p1", json.RawMessage(`not json`), "", ""))
}
