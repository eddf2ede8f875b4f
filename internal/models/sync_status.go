package models

import "time"

// SyncIndicatorColor is the suggested color of the sync indicator in the UI
type SyncIndicatorColor string

const (
	IndicatorSynced  SyncIndicatorColor = "SYNCED"
	IndicatorPending SyncIndicatorColor = "PENDING"
	IndicatorSyncing SyncIndicatorColor = "SYNCING"
	IndicatorOffline SyncIndicatorColor = "OFFLINE"
	IndicatorError   SyncIndicatorColor = "ERROR"
)

// LastSyncInfo records the outcome of the most recent sync pass
type LastSyncInfo struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
}

// HasEverSynced reports whether this device has completed a sync pass
func (i LastSyncInfo) HasEverSynced() bool {
	return i.Timestamp != nil
}

// GlobalSyncStatus combines all sync-related state for the status surface
type GlobalSyncStatus struct {
	PendingCount  int          `json:"pendingCount"`
	ConflictCount int          `json:"conflictCount"`
	IsOnline      bool         `json:"isOnline"`
	IsSyncing     bool         `json:"isSyncing"`
	LastSync      LastSyncInfo `json:"lastSync"`
}

// IsFullySynced reports whether nothing is pending, conflicted or in flight
func (s GlobalSyncStatus) IsFullySynced() bool {
	return s.PendingCount == 0 && s.ConflictCount == 0 && !s.IsSyncing
}

// HasIssues reports whether something needs the user's attention
func (s GlobalSyncStatus) HasIssues() bool {
	return s.ConflictCount > 0 || (!s.LastSync.Success && s.LastSync.HasEverSynced())
}

// IndicatorColor derives the indicator color. Unresolved issues outrank
// offline, which outranks an active sync, which outranks pending work.
func (s GlobalSyncStatus) IndicatorColor() SyncIndicatorColor {
	switch {
	case s.HasIssues():
		return IndicatorError
	case !s.IsOnline:
		return IndicatorOffline
	case s.IsSyncing:
		return IndicatorSyncing
	case s.PendingCount > 0:
		return IndicatorPending
	default:
		return IndicatorSynced
	}
}
