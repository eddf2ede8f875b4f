package models

import "time"

// SyncDirection indicates which way a sync pass moves data
type SyncDirection string

const (
	LocalToRemote SyncDirection = "LOCAL_TO_REMOTE"
	RemoteToLocal SyncDirection = "REMOTE_TO_LOCAL"
	Bidirectional SyncDirection = "BIDIRECTIONAL"
)

// EntityResultKind discriminates the EntitySyncResult variants
type EntityResultKind string

const (
	ResultSuccess EntityResultKind = "SUCCESS"
	ResultError   EntityResultKind = "ERROR"
	ResultSkipped EntityResultKind = "SKIPPED"
)

// EntitySyncResult is the outcome of syncing a single entity type. It is a
// tagged union: Kind selects which of the remaining fields are meaningful.
type EntitySyncResult struct {
	Kind           EntityResultKind `json:"kind"`
	Entity         EntityType       `json:"entity"`
	ItemsProcessed int              `json:"itemsProcessed,omitempty"`
	Message        string           `json:"message,omitempty"`
	Cause          error            `json:"-"`
}

// SuccessResult reports itemsProcessed rows synced for an entity
func SuccessResult(entity EntityType, itemsProcessed int) EntitySyncResult {
	return EntitySyncResult{Kind: ResultSuccess, Entity: entity, ItemsProcessed: itemsProcessed}
}

// ErrorResult reports a failed entity sync
func ErrorResult(entity EntityType, message string, cause error) EntitySyncResult {
	return EntitySyncResult{Kind: ResultError, Entity: entity, Message: message, Cause: cause}
}

// SkippedResult reports an entity that was not synced
func SkippedResult(entity EntityType, reason string) EntitySyncResult {
	return EntitySyncResult{Kind: ResultSkipped, Entity: entity, Message: reason}
}

// SyncResult aggregates the per-entity outcomes of one sync pass
type SyncResult struct {
	Direction     SyncDirection      `json:"direction"`
	EntityResults []EntitySyncResult `json:"entityResults"`
	StartTime     time.Time          `json:"startTime"`
	EndTime       time.Time          `json:"endTime"`
}

// DurationMs returns the elapsed time of the pass in milliseconds
func (r SyncResult) DurationMs() int64 {
	return r.EndTime.Sub(r.StartTime).Milliseconds()
}

// Errors returns the Error results of the pass
func (r SyncResult) Errors() []EntitySyncResult {
	var errs []EntitySyncResult
	for _, res := range r.EntityResults {
		if res.Kind == ResultError {
			errs = append(errs, res)
		}
	}
	return errs
}

// SuccessCount returns how many entities synced successfully
func (r SyncResult) SuccessCount() int {
	count := 0
	for _, res := range r.EntityResults {
		if res.Kind == ResultSuccess {
			count++
		}
	}
	return count
}

// TotalItemsProcessed sums the rows synced across successful entities
func (r SyncResult) TotalItemsProcessed() int {
	total := 0
	for _, res := range r.EntityResults {
		if res.Kind == ResultSuccess {
			total += res.ItemsProcessed
		}
	}
	return total
}

// IsSuccess reports whether the pass completed without entity errors
func (r SyncResult) IsSuccess() bool {
	return len(r.Errors()) == 0
}
