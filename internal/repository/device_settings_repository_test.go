package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceSettingsRepository_ClientID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDeviceSettingsRepository(db)
	ctx := context.Background()

	first, err := repo.ClientID(ctx)
	require.NoError(t, err)
	_, err = uuid.Parse(first)
	require.NoError(t, err, "client id should be a UUID")

	second, err := repo.ClientID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second, "client id must be stable across calls")
}

func TestDeviceSettingsRepository_LastSync(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDeviceSettingsRepository(db)
	ctx := context.Background()

	t.Run("never synced", func(t *testing.T) {
		info, err := repo.LastSync(ctx)
		require.NoError(t, err)
		assert.False(t, info.HasEverSynced())
		assert.True(t, info.Success)
	})

	t.Run("records a failure", func(t *testing.T) {
		at := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, repo.RecordSyncOutcome(ctx, at, false, "remote unreachable"))

		info, err := repo.LastSync(ctx)
		require.NoError(t, err)
		assert.True(t, info.HasEverSynced())
		assert.False(t, info.Success)
		assert.Equal(t, "remote unreachable", info.Error)
		assert.Equal(t, at, *info.Timestamp)
	})

	t.Run("a success overwrites the failure", func(t *testing.T) {
		require.NoError(t, repo.RecordSyncOutcome(ctx, time.Now().UTC(), true, ""))

		info, err := repo.LastSync(ctx)
		require.NoError(t, err)
		assert.True(t, info.Success)
		assert.Empty(t, info.Error)
	})
}

func TestDeviceSettingsRepository_BootstrapAdmin(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDeviceSettingsRepository(db)
	ctx := context.Background()

	id, err := repo.BootstrapAdminID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, repo.SetBootstrapAdminID(ctx, "admin-1"))
	id, err = repo.BootstrapAdminID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", id)

	require.NoError(t, repo.ClearBootstrapAdminID(ctx))
	id, err = repo.BootstrapAdminID(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)
}
