package services

import (
	"fmt"
	"time"

	"github.com/medistock/device/internal/models"
)

// Orchestrator owns the ordering and progress reporting of a full sync pass.
// Entities are synced parents-first so foreign keys on the remote side always
// resolve.
type Orchestrator struct{}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{}
}

// EntitiesToSync returns the entity types of a full pass in dependency order
func (o *Orchestrator) EntitiesToSync() []models.EntityType {
	return models.SyncOrder()
}

// CalculateProgress returns the percent complete after finishing the entity
// at index (zero-based)
func (o *Orchestrator) CalculateProgress(index, total int) int {
	if total == 0 {
		return 0
	}
	return (index + 1) * 100 / total
}

// ProgressMessage describes the entity currently being synced
func (o *Orchestrator) ProgressMessage(entity models.EntityType, direction models.SyncDirection) string {
	switch direction {
	case models.LocalToRemote:
		return fmt.Sprintf("Uploading %s...", entity)
	case models.RemoteToLocal:
		return fmt.Sprintf("Downloading %s...", entity)
	default:
		return fmt.Sprintf("Syncing %s...", entity)
	}
}

// CompletionMessage summarizes a finished pass
func (o *Orchestrator) CompletionMessage(result models.SyncResult) string {
	if !result.IsSuccess() {
		return fmt.Sprintf("Sync finished with %d errors", len(result.Errors()))
	}
	switch result.Direction {
	case models.LocalToRemote:
		return fmt.Sprintf("Uploaded %d items", result.TotalItemsProcessed())
	case models.RemoteToLocal:
		return fmt.Sprintf("Downloaded %d items", result.TotalItemsProcessed())
	default:
		return fmt.Sprintf("Synced %d items", result.TotalItemsProcessed())
	}
}

// CreateSyncResult assembles the aggregate result of one pass
func (o *Orchestrator) CreateSyncResult(direction models.SyncDirection, entityResults []models.EntitySyncResult, startTime, endTime time.Time) models.SyncResult {
	return models.SyncResult{
		Direction:     direction,
		EntityResults: entityResults,
		StartTime:     startTime,
		EndTime:       endTime,
	}
}
