package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medistock/device/internal/models"
	"github.com/medistock/device/internal/repository"
	"github.com/medistock/device/internal/services"
)

// RecordHandler is the local write surface. Every mutation goes through the
// outbox enqueue path so the record store and the sync queue stay in step.
type RecordHandler struct {
	enqueue *services.EnqueueService
	records *repository.RecordRepository
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(enqueue *services.EnqueueService, records *repository.RecordRepository) *RecordHandler {
	return &RecordHandler{enqueue: enqueue, records: records}
}

// RecordRequest is the body of a local create or update
type RecordRequest struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
	UserID  string          `json:"userId,omitempty"`
	SiteID  string          `json:"siteId,omitempty"`
}

func (h *RecordHandler) entity(r *http.Request) (models.EntityType, bool) {
	entity := models.ParseEntityType(chi.URLParam(r, "entity"))
	return entity, entity.IsKnown()
}

// ListRecords returns every local record of an entity
func (h *RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.entity(r)
	if !ok {
		http.Error(w, "Unknown entity type", http.StatusNotFound)
		return
	}

	rows, err := h.records.List(r.Context(), entity.Table())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"records": rows})
}

// GetRecord returns one local record by id
func (h *RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.entity(r)
	if !ok {
		http.Error(w, "Unknown entity type", http.StatusNotFound)
		return
	}

	row, err := h.records.Get(r.Context(), entity.Table(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if row == nil {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(row)
}

// CreateRecord writes a record locally and queues its upload
func (h *RecordHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.entity(r)
	if !ok {
		http.Error(w, "Unknown entity type", http.StatusNotFound)
		return
	}

	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "Record id is required", http.StatusBadRequest)
		return
	}
	if len(req.Payload) == 0 {
		http.Error(w, "Payload is required", http.StatusBadRequest)
		return
	}

	if err := h.enqueue.EnqueueInsert(r.Context(), entity, req.ID, req.Payload, req.UserID, req.SiteID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"status": "queued", "id": req.ID})
}

// UpdateRecord modifies a record locally and queues its upload
func (h *RecordHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.entity(r)
	if !ok {
		http.Error(w, "Unknown entity type", http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "id")

	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Payload) == 0 {
		http.Error(w, "Payload is required", http.StatusBadRequest)
		return
	}

	if err := h.enqueue.EnqueueUpdate(r.Context(), entity, id, req.Payload, req.UserID, req.SiteID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "queued", "id": id})
}

// DeleteRecord removes a record locally and queues the remote delete
func (h *RecordHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	entity, ok := h.entity(r)
	if !ok {
		http.Error(w, "Unknown entity type", http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.enqueue.EnqueueDelete(r.Context(), entity, id, r.URL.Query().Get("userId"), r.URL.Query().Get("siteId")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "queued", "id": id})
}
