package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medistock/device/internal/models"
	"github.com/medistock/device/internal/repository"
	"github.com/medistock/device/internal/services"
)

// StatusHandler exposes the sync engine state over the local status API
type StatusHandler struct {
	status    *services.StatusManager
	processor *services.QueueProcessor
	scheduler *services.Scheduler
	queue     *repository.SyncQueueRepository
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(
	status *services.StatusManager,
	processor *services.QueueProcessor,
	scheduler *services.Scheduler,
	queue *repository.SyncQueueRepository,
) *StatusHandler {
	return &StatusHandler{
		status:    status,
		processor: processor,
		scheduler: scheduler,
		queue:     queue,
	}
}

// GetStatus returns the global sync status and the last drain summary
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.status.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	summary, err := h.status.StatusSummary(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]any{
		"status":      snapshot,
		"indicator":   snapshot.IndicatorColor(),
		"summary":     summary,
		"lastSummary": h.processor.Summary(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ListConflicts returns the queue items parked for manual resolution
func (h *StatusHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	items, err := h.queue.GetByStatus(r.Context(), models.StatusConflict)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conflicts := make([]models.UserConflict, 0, len(items))
	for _, item := range items {
		conflicts = append(conflicts, h.processor.UserConflict(r.Context(), item))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"conflicts": conflicts})
}

// TriggerSync requests an immediate sync pass
func (h *StatusHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	h.scheduler.TriggerImmediate("manual")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "sync requested"})
}

// ResolveConflictRequest is the body of a manual conflict resolution
type ResolveConflictRequest struct {
	Resolution    models.ConflictResolution `json:"resolution"`
	MergedPayload json.RawMessage           `json:"mergedPayload,omitempty"`
}

// ResolveConflict applies a user's decision to a parked conflict
func (h *StatusHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	var req ResolveConflictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Resolution {
	case models.LocalWins, models.RemoteWins, models.Merge:
	default:
		http.Error(w, "Unsupported resolution", http.StatusBadRequest)
		return
	}

	if err := h.processor.ResolveConflict(r.Context(), itemID, req.Resolution, req.MergedPayload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "resolved"})
}

// RetryFailed flips permanently failed items back to pending
func (h *StatusHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	if err := h.processor.RetryFailed(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "retry requested"})
}
