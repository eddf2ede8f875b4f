package services

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/medistock/device/internal/models"
)

// systemFields are server-owned identity and audit fields. The merge always
// takes them from the remote side, and field diffs never report them.
var systemFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"created_by": true,
	"updated_by": true,
	"createdAt":  true,
	"updatedAt":  true,
	"createdBy":  true,
	"updatedBy":  true,
}

// ConflictResolver decides how diverging local and remote versions of an
// entity are reconciled.
//
// Strategy by entity type:
//   - reference/master data (sites, categories, packaging types, products,
//     purchase batches, users, permissions): remote wins
//   - transactions created on this device (sales, sale items, allocations):
//     local wins
//   - collaboratively edited records (stock movements, customers,
//     transfers): merge
//   - inventory counts: ask the user
//   - anything else: remote wins
type ConflictResolver struct{}

// NewConflictResolver creates a new ConflictResolver
func NewConflictResolver() *ConflictResolver {
	return &ConflictResolver{}
}

// Strategy returns the resolution policy for an entity type. Matching is
// case-insensitive and accepts both model names and table names.
func (r *ConflictResolver) Strategy(entityType string) models.ConflictResolution {
	switch strings.ToLower(entityType) {
	case "product", "products",
		"category", "categories",
		"site", "sites",
		"packagingtype", "packaging_types",
		"purchasebatch", "purchase_batches",
		"supplier", "suppliers",
		"user", "users", "app_users",
		"userpermission", "user_permissions":
		return models.RemoteWins

	case "sale", "sales",
		"saleitem", "sale_items",
		"salebatchallocation", "sale_batch_allocations":
		return models.LocalWins

	case "stockmovement", "stock_movements",
		"customer", "customers",
		"producttransfer", "product_transfers":
		return models.Merge

	case "inventory", "inventories":
		return models.AskUser

	default:
		return models.RemoteWins
	}
}

// DetectConflict reports whether the remote has advanced past the version
// this device last observed. A nil lastKnown means the remote was never
// observed (first sync) and is not a conflict.
func (r *ConflictResolver) DetectConflict(lastKnownRemoteUpdatedAt, remoteUpdatedAt *int64) bool {
	if lastKnownRemoteUpdatedAt == nil || remoteUpdatedAt == nil {
		return false
	}
	return *remoteUpdatedAt > *lastKnownRemoteUpdatedAt
}

// CanSyncSafely reports whether an operation can be pushed without conflict
// resolution. Inserts never conflict.
func (r *ConflictResolver) CanSyncSafely(operation models.SyncOperation, lastKnownRemoteUpdatedAt, remoteUpdatedAt *int64) bool {
	switch operation {
	case models.OpInsert:
		return true
	case models.OpUpdate, models.OpDelete:
		return !r.DetectConflict(lastKnownRemoteUpdatedAt, remoteUpdatedAt)
	default:
		return false
	}
}

// Resolve applies the entity's strategy to a detected conflict
func (r *ConflictResolver) Resolve(entityType string, localPayload, remotePayload json.RawMessage, localUpdatedAt int64, remoteUpdatedAt *int64) models.ConflictResolutionResult {
	switch r.Strategy(entityType) {
	case models.LocalWins:
		return models.ConflictResolutionResult{
			Resolution:    models.LocalWins,
			MergedPayload: localPayload,
			Message:       "local version kept (valid offline transaction)",
		}

	case models.Merge:
		return models.ConflictResolutionResult{
			Resolution:    models.Merge,
			MergedPayload: r.MergePayloads(entityType, localPayload, remotePayload),
			Message:       "versions merged",
		}

	case models.AskUser:
		return models.ConflictResolutionResult{
			Resolution: models.AskUser,
			Message:    "conflict detected, user intervention required",
		}

	case models.KeepBoth:
		return models.ConflictResolutionResult{
			Resolution:    models.KeepBoth,
			MergedPayload: localPayload,
			Message:       "both versions will be kept",
		}

	default:
		return models.ConflictResolutionResult{
			Resolution:    models.RemoteWins,
			MergedPayload: remotePayload,
			Message:       "server version kept (reference data)",
		}
	}
}

// MergePayloads reconciles two JSON snapshots field by field: system fields
// come from the remote, every other top-level field takes the local value
// when present and falls back to the remote value. A missing remote degrades
// to the local payload unchanged.
func (r *ConflictResolver) MergePayloads(entityType string, localPayload, remotePayload json.RawMessage) json.RawMessage {
	if len(remotePayload) == 0 {
		return localPayload
	}

	var local, remote map[string]json.RawMessage
	if err := json.Unmarshal(localPayload, &local); err != nil {
		return localPayload
	}
	if err := json.Unmarshal(remotePayload, &remote); err != nil {
		return localPayload
	}

	merged := make(map[string]json.RawMessage, len(remote)+len(local))
	for key, value := range remote {
		merged[key] = value
	}
	for key, value := range local {
		if !systemFields[key] {
			merged[key] = value
		}
	}

	// Keep the most recent modification timestamp
	localUpdated := timestampField(local)
	remoteUpdated := timestampField(remote)
	newest := localUpdated
	if remoteUpdated > newest {
		newest = remoteUpdated
	}
	if newest > 0 {
		encoded, _ := json.Marshal(newest)
		merged["updated_at"] = encoded
	}

	result, err := json.Marshal(merged)
	if err != nil {
		return localPayload
	}
	return result
}

// ComputeFieldDifferences diffs the top-level fields of the two snapshots,
// excluding identity/audit fields. Returns nil when either snapshot is
// missing or malformed.
func (r *ConflictResolver) ComputeFieldDifferences(localPayload, remotePayload json.RawMessage) []models.FieldDifference {
	if len(localPayload) == 0 || len(remotePayload) == 0 {
		return nil
	}

	var local, remote map[string]json.RawMessage
	if err := json.Unmarshal(localPayload, &local); err != nil {
		return nil
	}
	if err := json.Unmarshal(remotePayload, &remote); err != nil {
		return nil
	}

	keys := make(map[string]bool, len(local)+len(remote))
	for key := range local {
		keys[key] = true
	}
	for key := range remote {
		keys[key] = true
	}

	names := make([]string, 0, len(keys))
	for key := range keys {
		if !systemFields[key] {
			names = append(names, key)
		}
	}
	sort.Strings(names)

	var diffs []models.FieldDifference
	for _, name := range names {
		localValue := string(local[name])
		remoteValue := string(remote[name])
		if localValue != remoteValue {
			diffs = append(diffs, models.FieldDifference{
				FieldName:   name,
				LocalValue:  localValue,
				RemoteValue: remoteValue,
			})
		}
	}
	return diffs
}

// CreateUserConflict builds the record surfaced to the UI when resolution
// requires a human decision
func (r *ConflictResolver) CreateUserConflict(queueItemID string, entityType models.EntityType, entityID string, localPayload, remotePayload json.RawMessage, localUpdatedAt, remoteUpdatedAt int64) models.UserConflict {
	return models.UserConflict{
		QueueItemID:      queueItemID,
		EntityType:       entityType,
		EntityID:         entityID,
		LocalPayload:     localPayload,
		RemotePayload:    remotePayload,
		LocalUpdatedAt:   localUpdatedAt,
		RemoteUpdatedAt:  remoteUpdatedAt,
		FieldDifferences: r.ComputeFieldDifferences(localPayload, remotePayload),
	}
}

func timestampField(record map[string]json.RawMessage) int64 {
	for _, key := range []string{"updated_at", "updatedAt"} {
		if raw, ok := record[key]; ok {
			var value int64
			if err := json.Unmarshal(raw, &value); err == nil {
				return value
			}
		}
	}
	return 0
}
