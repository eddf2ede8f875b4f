package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityType_Table(t *testing.T) {
	t.Run("maps model names to table names", func(t *testing.T) {
		assert.Equal(t, "sites", EntitySite.Table())
		assert.Equal(t, "app_users", EntityUser.Table())
		assert.Equal(t, "purchase_batches", EntityPurchaseBatch.Table())
		assert.Equal(t, "sale_batch_allocations", EntitySaleBatchAllocation.Table())
	})

	t.Run("lowers unknown types", func(t *testing.T) {
		assert.Equal(t, "widget", EntityType("Widget").Table())
	})
}

func TestParseEntityType(t *testing.T) {
	t.Run("accepts model names case-insensitively", func(t *testing.T) {
		assert.Equal(t, EntityProduct, ParseEntityType("product"))
		assert.Equal(t, EntityStockMovement, ParseEntityType("STOCKMOVEMENT"))
	})

	t.Run("accepts table names", func(t *testing.T) {
		assert.Equal(t, EntityUser, ParseEntityType("app_users"))
		assert.Equal(t, EntitySale, ParseEntityType("sales"))
	})

	t.Run("passes unknown names through", func(t *testing.T) {
		parsed := ParseEntityType("Widget")
		assert.Equal(t, EntityType("Widget"), parsed)
		assert.False(t, parsed.IsKnown())
	})
}

func TestSyncOrder(t *testing.T) {
	order := SyncOrder()
	require.Len(t, order, 11)

	index := make(map[EntityType]int, len(order))
	for i, entity := range order {
		index[entity] = i
	}

	t.Run("sites come first", func(t *testing.T) {
		assert.Equal(t, EntitySite, order[0])
	})

	t.Run("stock movements come last", func(t *testing.T) {
		assert.Equal(t, EntityStockMovement, order[len(order)-1])
	})

	t.Run("parents precede children", func(t *testing.T) {
		assert.Less(t, index[EntitySite], index[EntityProduct])
		assert.Less(t, index[EntityCategory], index[EntityProduct])
		assert.Less(t, index[EntityProduct], index[EntityPurchaseBatch])
		assert.Less(t, index[EntitySale], index[EntitySaleItem])
		assert.Less(t, index[EntityUser], index[EntityUserPermission])
	})
}

func TestAllTables(t *testing.T) {
	tables := AllTables()
	assert.Len(t, tables, 15)
	assert.Contains(t, tables, "inventories")
	assert.Contains(t, tables, "product_transfers")
}
