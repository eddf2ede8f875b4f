package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medistock/device/internal/models"
)

func TestOrchestrator_EntitiesToSync(t *testing.T) {
	o := NewOrchestrator()
	entities := o.EntitiesToSync()
	require.Len(t, entities, 11)

	index := make(map[models.EntityType]int, len(entities))
	for i, entity := range entities {
		index[entity] = i
	}

	assert.Equal(t, models.EntitySite, entities[0])
	assert.Equal(t, models.EntityStockMovement, entities[len(entities)-1])
	assert.Less(t, index[models.EntitySite], index[models.EntityProduct])
	assert.Less(t, index[models.EntitySale], index[models.EntitySaleItem])
}

func TestOrchestrator_CalculateProgress(t *testing.T) {
	o := NewOrchestrator()

	assert.Equal(t, 10, o.CalculateProgress(0, 10))
	assert.Equal(t, 50, o.CalculateProgress(4, 10))
	assert.Equal(t, 100, o.CalculateProgress(9, 10))
	assert.Equal(t, 0, o.CalculateProgress(0, 0))
}

func TestOrchestrator_Messages(t *testing.T) {
	o := NewOrchestrator()

	t.Run("progress by direction", func(t *testing.T) {
		assert.Equal(t, "Uploading Product...", o.ProgressMessage(models.EntityProduct, models.LocalToRemote))
		assert.Equal(t, "Downloading Product...", o.ProgressMessage(models.EntityProduct, models.RemoteToLocal))
		assert.Equal(t, "Syncing Product...", o.ProgressMessage(models.EntityProduct, models.Bidirectional))
	})

	t.Run("completion summarizes items", func(t *testing.T) {
		result := o.CreateSyncResult(models.RemoteToLocal, []models.EntitySyncResult{
			models.SuccessResult(models.EntitySite, 3),
			models.SuccessResult(models.EntityProduct, 7),
		}, time.Now(), time.Now())
		assert.Equal(t, "Downloaded 10 items", o.CompletionMessage(result))
	})

	t.Run("completion reports errors", func(t *testing.T) {
		result := o.CreateSyncResult(models.Bidirectional, []models.EntitySyncResult{
			models.ErrorResult(models.EntitySite, "boom", errors.New("boom")),
		}, time.Now(), time.Now())
		assert.Equal(t, "Sync finished with 1 errors", o.CompletionMessage(result))
	})
}

func TestOrchestrator_CreateSyncResult(t *testing.T) {
	o := NewOrchestrator()
	start := time.Now().UTC()
	end := start.Add(1500 * time.Millisecond)

	result := o.CreateSyncResult(models.Bidirectional, []models.EntitySyncResult{
		models.SuccessResult(models.EntitySite, 2),
		models.SuccessResult(models.EntityProduct, 5),
		models.ErrorResult(models.EntitySale, "timeout", errors.New("timeout")),
		models.SkippedResult(models.EntitySaleItem, "aborted after earlier failure"),
	}, start, end)

	assert.Equal(t, models.Bidirectional, result.Direction)
	assert.Equal(t, int64(1500), result.DurationMs())
	assert.Equal(t, 2, result.SuccessCount())
	assert.Equal(t, 7, result.TotalItemsProcessed())
	assert.False(t, result.IsSuccess())
	require.Len(t, result.Errors(), 1)
	assert.Equal(t, models.EntitySale, result.Errors()[0].Entity)
}
