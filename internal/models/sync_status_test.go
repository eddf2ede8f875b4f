package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGlobalSyncStatus_IndicatorColor(t *testing.T) {
	now := time.Now().UTC()
	okSync := LastSyncInfo{Timestamp: &now, Success: true}
	failedSync := LastSyncInfo{Timestamp: &now, Success: false, Error: "boom"}

	tests := []struct {
		name   string
		status GlobalSyncStatus
		want   SyncIndicatorColor
	}{
		{
			name:   "all clear",
			status: GlobalSyncStatus{IsOnline: true, LastSync: okSync},
			want:   IndicatorSynced,
		},
		{
			name:   "pending work",
			status: GlobalSyncStatus{PendingCount: 3, IsOnline: true, LastSync: okSync},
			want:   IndicatorPending,
		},
		{
			name:   "sync in flight outranks pending",
			status: GlobalSyncStatus{PendingCount: 3, IsOnline: true, IsSyncing: true, LastSync: okSync},
			want:   IndicatorSyncing,
		},
		{
			name:   "offline outranks syncing",
			status: GlobalSyncStatus{IsSyncing: true, IsOnline: false, LastSync: okSync},
			want:   IndicatorOffline,
		},
		{
			name:   "conflicts outrank everything",
			status: GlobalSyncStatus{ConflictCount: 1, IsOnline: false, IsSyncing: true, LastSync: okSync},
			want:   IndicatorError,
		},
		{
			name:   "failed last sync is an issue",
			status: GlobalSyncStatus{IsOnline: true, LastSync: failedSync},
			want:   IndicatorError,
		},
		{
			name:   "never synced is not an issue",
			status: GlobalSyncStatus{IsOnline: true},
			want:   IndicatorSynced,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IndicatorColor())
		})
	}
}

func TestGlobalSyncStatus_IsFullySynced(t *testing.T) {
	assert.True(t, GlobalSyncStatus{}.IsFullySynced())
	assert.False(t, GlobalSyncStatus{PendingCount: 1}.IsFullySynced())
	assert.False(t, GlobalSyncStatus{ConflictCount: 1}.IsFullySynced())
	assert.False(t, GlobalSyncStatus{IsSyncing: true}.IsFullySynced())
}
