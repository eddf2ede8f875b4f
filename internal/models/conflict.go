package models

import "encoding/json"

// ConflictResolution is the policy applied when local and remote versions of
// an entity diverge
type ConflictResolution string

const (
	// LocalWins keeps the device's version (valid offline transaction)
	LocalWins ConflictResolution = "LOCAL_WINS"
	// RemoteWins keeps the server's version (reference data)
	RemoteWins ConflictResolution = "REMOTE_WINS"
	// Merge reconciles the two versions field by field
	Merge ConflictResolution = "MERGE"
	// AskUser requires a human decision before the item can sync
	AskUser ConflictResolution = "ASK_USER"
	// KeepBoth would duplicate the record; not implemented
	KeepBoth ConflictResolution = "KEEP_BOTH"
)

// ConflictResolutionResult is the outcome of resolving one conflict
type ConflictResolutionResult struct {
	Resolution    ConflictResolution `json:"resolution"`
	MergedPayload json.RawMessage    `json:"mergedPayload,omitempty"`
	Message       string             `json:"message,omitempty"`
}

// UserConflict carries everything the UI needs to present a conflict that
// requires user intervention
type UserConflict struct {
	QueueItemID      string            `json:"queueItemId"`
	EntityType       EntityType        `json:"entityType"`
	EntityID         string            `json:"entityId"`
	LocalPayload     json.RawMessage   `json:"localPayload"`
	RemotePayload    json.RawMessage   `json:"remotePayload,omitempty"`
	LocalUpdatedAt   int64             `json:"localUpdatedAt"`
	RemoteUpdatedAt  int64             `json:"remoteUpdatedAt"`
	FieldDifferences []FieldDifference `json:"fieldDifferences,omitempty"`
}

// FieldDifference is one top-level field that differs between the local and
// remote snapshots
type FieldDifference struct {
	FieldName   string `json:"fieldName"`
	LocalValue  string `json:"localValue,omitempty"`
	RemoteValue string `json:"remoteValue,omitempty"`
}
