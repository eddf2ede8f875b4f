package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/medistock/device/internal/models"
)

const (
	keyClientID         = "client_id"
	keyLastSyncTime     = "last_sync_time"
	keyLastSyncSuccess  = "last_sync_success"
	keyLastSyncError    = "last_sync_error"
	keyBootstrapAdminID = "bootstrap_admin_id"
)

// DeviceSettingsRepository persists device-local key/value settings: the
// device client id, the last sync outcome and the bootstrap admin marker.
type DeviceSettingsRepository struct {
	db DBTX
}

// NewDeviceSettingsRepository creates a new DeviceSettingsRepository
func NewDeviceSettingsRepository(db DBTX) *DeviceSettingsRepository {
	return &DeviceSettingsRepository{db: db}
}

// Get returns a setting value, or "" when unset
func (r *DeviceSettingsRepository) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM device_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Set stores a setting value
func (r *DeviceSettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// Delete removes a setting
func (r *DeviceSettingsRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM device_settings WHERE key = ?`, key)
	return err
}

// ClientID returns this device's client identifier, generating and
// persisting one on first use. The id is stamped on every outgoing record so
// inbound echoes of our own changes can be discarded.
func (r *DeviceSettingsRepository) ClientID(ctx context.Context) (string, error) {
	id, err := r.Get(ctx, keyClientID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}
	id = uuid.New().String()
	if err := r.Set(ctx, keyClientID, id); err != nil {
		return "", err
	}
	return id, nil
}

// RecordSyncOutcome persists the timestamp and result of a sync pass
func (r *DeviceSettingsRepository) RecordSyncOutcome(ctx context.Context, at time.Time, success bool, errMsg string) error {
	if err := r.Set(ctx, keyLastSyncTime, strconv.FormatInt(at.UnixMilli(), 10)); err != nil {
		return err
	}
	if err := r.Set(ctx, keyLastSyncSuccess, strconv.FormatBool(success)); err != nil {
		return err
	}
	return r.Set(ctx, keyLastSyncError, errMsg)
}

// LastSync returns the persisted outcome of the most recent sync pass
func (r *DeviceSettingsRepository) LastSync(ctx context.Context) (models.LastSyncInfo, error) {
	info := models.LastSyncInfo{Success: true}

	raw, err := r.Get(ctx, keyLastSyncTime)
	if err != nil {
		return info, err
	}
	if raw == "" {
		return info, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		info.Timestamp = &t
	}

	if raw, err = r.Get(ctx, keyLastSyncSuccess); err != nil {
		return info, err
	}
	info.Success = raw != "false"

	if info.Error, err = r.Get(ctx, keyLastSyncError); err != nil {
		return info, err
	}
	return info, nil
}

// SetBootstrapAdminID marks the locally seeded admin account that must be
// removed once real users arrive from the remote
func (r *DeviceSettingsRepository) SetBootstrapAdminID(ctx context.Context, id string) error {
	return r.Set(ctx, keyBootstrapAdminID, id)
}

// BootstrapAdminID returns the marked bootstrap admin id, or ""
func (r *DeviceSettingsRepository) BootstrapAdminID(ctx context.Context) (string, error) {
	return r.Get(ctx, keyBootstrapAdminID)
}

// ClearBootstrapAdminID removes the bootstrap admin marker
func (r *DeviceSettingsRepository) ClearBootstrapAdminID(ctx context.Context) error {
	return r.Delete(ctx, keyBootstrapAdminID)
}
