package models

import "strings"

// EntityType identifies a kind of synchronized record
type EntityType string

const (
	EntitySite                EntityType = "Site"
	EntityPackagingType       EntityType = "PackagingType"
	EntityCategory            EntityType = "Category"
	EntityProduct             EntityType = "Product"
	EntityCustomer            EntityType = "Customer"
	EntityUser                EntityType = "User"
	EntityUserPermission      EntityType = "UserPermission"
	EntitySupplier            EntityType = "Supplier"
	EntityPurchaseBatch       EntityType = "PurchaseBatch"
	EntitySale                EntityType = "Sale"
	EntitySaleItem            EntityType = "SaleItem"
	EntitySaleBatchAllocation EntityType = "SaleBatchAllocation"
	EntityStockMovement       EntityType = "StockMovement"
	EntityInventory           EntityType = "Inventory"
	EntityProductTransfer     EntityType = "ProductTransfer"
)

// entityTables maps every entity type to its remote table name
var entityTables = map[EntityType]string{
	EntitySite:                "sites",
	EntityPackagingType:       "packaging_types",
	EntityCategory:            "categories",
	EntityProduct:             "products",
	EntityCustomer:            "customers",
	EntityUser:                "app_users",
	EntityUserPermission:      "user_permissions",
	EntitySupplier:            "suppliers",
	EntityPurchaseBatch:       "purchase_batches",
	EntitySale:                "sales",
	EntitySaleItem:            "sale_items",
	EntitySaleBatchAllocation: "sale_batch_allocations",
	EntityStockMovement:       "stock_movements",
	EntityInventory:           "inventories",
	EntityProductTransfer:     "product_transfers",
}

// Table returns the remote/local table name for the entity type
func (e EntityType) Table() string {
	if table, ok := entityTables[e]; ok {
		return table
	}
	return strings.ToLower(string(e))
}

// IsKnown reports whether the entity type is one of the supported kinds
func (e EntityType) IsKnown() bool {
	_, ok := entityTables[e]
	return ok
}

// ParseEntityType resolves an entity type from its model name or table name,
// case-insensitively. Returns the input as-is (unknown) when no match exists.
func ParseEntityType(name string) EntityType {
	lowered := strings.ToLower(name)
	for entity, table := range entityTables {
		if lowered == strings.ToLower(string(entity)) || lowered == table {
			return entity
		}
	}
	return EntityType(name)
}

// EntityTypeForTable resolves an entity type from a table name
func EntityTypeForTable(table string) (EntityType, bool) {
	for entity, t := range entityTables {
		if t == table {
			return entity, true
		}
	}
	return "", false
}

// AllTables returns the table names of every known entity type
func AllTables() []string {
	tables := make([]string, 0, len(entityTables))
	for _, entity := range allEntityTypes {
		tables = append(tables, entityTables[entity])
	}
	return tables
}

var allEntityTypes = []EntityType{
	EntitySite,
	EntityPackagingType,
	EntityCategory,
	EntityProduct,
	EntityCustomer,
	EntityUser,
	EntityUserPermission,
	EntitySupplier,
	EntityPurchaseBatch,
	EntitySale,
	EntitySaleItem,
	EntitySaleBatchAllocation,
	EntityStockMovement,
	EntityInventory,
	EntityProductTransfer,
}

// SyncOrder returns the entity types pulled during a full sync, in
// foreign-key dependency order. Sites come first because nearly every other
// table references site_id; sale items and stock movements come last.
func SyncOrder() []EntityType {
	return []EntityType{
		EntitySite,
		EntityPackagingType,
		EntityCategory,
		EntityProduct,
		EntityCustomer,
		EntityUser,
		EntityUserPermission,
		EntityPurchaseBatch,
		EntitySale,
		EntitySaleItem,
		EntityStockMovement,
	}
}
