package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SyncOperation is the kind of mutation recorded in the queue
type SyncOperation string

const (
	OpInsert SyncOperation = "INSERT"
	OpUpdate SyncOperation = "UPDATE"
	OpDelete SyncOperation = "DELETE"
)

// SyncStatus is the processing state of a queue item
type SyncStatus string

const (
	StatusPending    SyncStatus = "PENDING"
	StatusInProgress SyncStatus = "IN_PROGRESS"
	StatusSynced     SyncStatus = "SYNCED"
	StatusConflict   SyncStatus = "CONFLICT"
	StatusFailed     SyncStatus = "FAILED"
)

// SyncQueueItem is one pending mutation in the outbox queue. The payload is
// the serialized snapshot of the entity at mutation time and is opaque to the
// queue itself.
type SyncQueueItem struct {
	ID                       string          `json:"id"`
	EntityType               EntityType      `json:"entityType"`
	EntityID                 string          `json:"entityId"`
	Operation                SyncOperation   `json:"operation"`
	Payload                  json.RawMessage `json:"payload"`
	LocalVersion             int64           `json:"localVersion"`
	RemoteVersion            *int64          `json:"remoteVersion,omitempty"`
	LastKnownRemoteUpdatedAt *int64          `json:"lastKnownRemoteUpdatedAt,omitempty"`
	Status                   SyncStatus      `json:"status"`
	RetryCount               int             `json:"retryCount"`
	LastError                string          `json:"lastError,omitempty"`
	LastAttemptAt            *time.Time      `json:"lastAttemptAt,omitempty"`
	CreatedAt                time.Time       `json:"createdAt"`
	UserID                   string          `json:"userId,omitempty"`
	SiteID                   string          `json:"siteId,omitempty"`
}

// NewSyncQueueItem creates a pending queue item for an entity mutation
func NewSyncQueueItem(entityType EntityType, entityID string, operation SyncOperation, payload json.RawMessage) *SyncQueueItem {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return &SyncQueueItem{
		ID:           uuid.New().String(),
		EntityType:   entityType,
		EntityID:     entityID,
		Operation:    operation,
		Payload:      payload,
		LocalVersion: 1,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
}

// ProcessSummary reports the outcome of one queue drain
type ProcessSummary struct {
	Processed  int `json:"processed"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Conflicted int `json:"conflicted"`
}
