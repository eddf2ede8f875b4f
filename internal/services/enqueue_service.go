package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medistock/device/internal/models"
	"github.com/medistock/device/internal/repository"
)

// EnqueueService is the outbox write path: every local mutation updates the
// record store and the sync queue in a single transaction, so a crash can
// never leave a local change without its queue entry.
//
// Successive mutations of the same entity are consolidated so the queue
// carries at most one pending item per entity:
//
//	UPDATE over pending INSERT/UPDATE refreshes the payload in place
//	UPDATE after pending DELETE is dropped
//	DELETE over pending INSERT cancels both
//	DELETE over pending UPDATE replaces it
type EnqueueService struct {
	db       *sql.DB
	queue    *repository.SyncQueueRepository
	records  *repository.RecordRepository
	settings *repository.DeviceSettingsRepository
	logger   *logrus.Logger
}

// NewEnqueueService creates a new EnqueueService
func NewEnqueueService(
	db *sql.DB,
	queue *repository.SyncQueueRepository,
	records *repository.RecordRepository,
	settings *repository.DeviceSettingsRepository,
	logger *logrus.Logger,
) *EnqueueService {
	return &EnqueueService{db: db, queue: queue, records: records, settings: settings, logger: logger}
}

// EnqueueInsert records a locally created entity and queues its upload
func (s *EnqueueService) EnqueueInsert(ctx context.Context, entityType models.EntityType, entityID string, payload json.RawMessage, userID, siteID string) error {
	return s.enqueue(ctx, entityType, entityID, models.OpInsert, payload, userID, siteID)
}

// EnqueueUpdate records a locally modified entity and queues its upload
func (s *EnqueueService) EnqueueUpdate(ctx context.Context, entityType models.EntityType, entityID string, payload json.RawMessage, userID, siteID string) error {
	return s.enqueue(ctx, entityType, entityID, models.OpUpdate, payload, userID, siteID)
}

// EnqueueDelete records a local deletion and queues its upload
func (s *EnqueueService) EnqueueDelete(ctx context.Context, entityType models.EntityType, entityID string, userID, siteID string) error {
	return s.enqueue(ctx, entityType, entityID, models.OpDelete, nil, userID, siteID)
}

func (s *EnqueueService) enqueue(ctx context.Context, entityType models.EntityType, entityID string, op models.SyncOperation, payload json.RawMessage, userID, siteID string) error {
	if !entityType.IsKnown() {
		return fmt.Errorf("unknown entity type %q", entityType)
	}
	if entityID == "" {
		return fmt.Errorf("entity id is required")
	}

	clientID, err := s.settings.ClientID(ctx)
	if err != nil {
		return err
	}
	if op != models.OpDelete {
		if payload, err = stampClientID(payload, clientID); err != nil {
			return fmt.Errorf("stamp payload: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	queue := s.queue.WithTx(tx)
	records := s.records.WithTx(tx)

	lastKnown, err := s.lastKnownRemoteUpdatedAt(ctx, records, entityType, entityID, op)
	if err != nil {
		return err
	}

	if err := s.applyLocal(ctx, records, entityType, entityID, op, payload); err != nil {
		return err
	}
	if err := s.consolidate(ctx, queue, entityType, entityID, op, payload, lastKnown, userID, siteID); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *EnqueueService) applyLocal(ctx context.Context, records *repository.RecordRepository, entityType models.EntityType, entityID string, op models.SyncOperation, payload json.RawMessage) error {
	table := entityType.Table()
	if op == models.OpDelete {
		return records.Delete(ctx, table, entityID)
	}

	var record map[string]any
	if err := json.Unmarshal(payload, &record); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	if _, ok := record["id"]; !ok {
		record["id"] = entityID
	}
	return records.Upsert(ctx, table, record)
}

func (s *EnqueueService) consolidate(ctx context.Context, queue *repository.SyncQueueRepository, entityType models.EntityType, entityID string, op models.SyncOperation, payload json.RawMessage, lastKnown *int64, userID, siteID string) error {
	pending, err := queue.GetLatestPendingForEntity(ctx, entityType, entityID)
	if err != nil {
		return err
	}

	log := s.logger.WithFields(logrus.Fields{
		"entity":    entityType,
		"entity_id": entityID,
		"op":        op,
	})

	switch op {
	case models.OpUpdate:
		if pending != nil {
			if pending.Operation == models.OpDelete {
				log.Debug("update dropped, entity already queued for deletion")
				return nil
			}
			// Keep the original operation so a not-yet-uploaded insert
			// stays an insert
			pending.Payload = payload
			pending.LocalVersion++
			return queue.Update(ctx, pending)
		}

	case models.OpDelete:
		if pending != nil {
			if err := queue.DeletePendingForEntity(ctx, entityType, entityID); err != nil {
				return err
			}
			if pending.Operation == models.OpInsert {
				log.Debug("insert and delete cancelled each other out")
				return nil
			}
		}
	}

	item := models.NewSyncQueueItem(entityType, entityID, op, payload)
	item.LastKnownRemoteUpdatedAt = lastKnown
	item.UserID = userID
	item.SiteID = siteID
	return queue.Insert(ctx, item)
}

// lastKnownRemoteUpdatedAt captures the stored record's timestamp before the
// local write overwrites it. For inserts there is no prior version to track.
func (s *EnqueueService) lastKnownRemoteUpdatedAt(ctx context.Context, records *repository.RecordRepository, entityType models.EntityType, entityID string, op models.SyncOperation) (*int64, error) {
	if op == models.OpInsert {
		return nil, nil
	}
	record, err := records.Get(ctx, entityType.Table(), entityID)
	if err != nil || record == nil {
		return nil, err
	}
	switch v := record["updated_at"].(type) {
	case int64:
		return &v, nil
	case float64:
		ts := int64(v)
		return &ts, nil
	}
	return nil, nil
}

// stampClientID tags the payload with the device identity so this device can
// recognize its own rows coming back from the remote
func stampClientID(payload json.RawMessage, clientID string) (json.RawMessage, error) {
	record := map[string]json.RawMessage{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, err
		}
	}
	encoded, err := json.Marshal(clientID)
	if err != nil {
		return nil, err
	}
	record["client_id"] = encoded
	return json.Marshal(record)
}
