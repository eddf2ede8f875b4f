package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medistock/device/internal/config"
	"github.com/medistock/device/internal/models"
	"github.com/medistock/device/internal/repository"
	"github.com/medistock/device/internal/services"
)

type statusFixture struct {
	router *chi.Mux
	queue  *repository.SyncQueueRepository
}

func setupStatusAPI(t *testing.T) *statusFixture {
	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	queue := repository.NewSyncQueueRepository(db)
	records := repository.NewRecordRepository(db)
	settings := repository.NewDeviceSettingsRepository(db)

	processor := services.NewQueueProcessor(queue, records, nil, services.NewConflictResolver(), config.DefaultRetryConfig(), logger)
	statusManager := services.NewStatusManager(queue, settings, logger)
	manager := services.NewSyncManager(queue, records, settings, nil, processor, services.NewOrchestrator(), statusManager, logger)
	scheduler := services.NewScheduler(manager, time.Minute, logger)

	handler := NewStatusHandler(statusManager, processor, scheduler, queue)
	healthHandler := NewHealthHandler()

	r := chi.NewRouter()
	r.Get("/health", healthHandler.HealthCheck)
	r.Route("/api/sync", func(r chi.Router) {
		r.Get("/status", handler.GetStatus)
		r.Get("/conflicts", handler.ListConflicts)
		r.Post("/trigger", handler.TriggerSync)
		r.Post("/retry", handler.RetryFailed)
		r.Post("/conflicts/{id}/resolve", handler.ResolveConflict)
	})

	return &statusFixture{router: r, queue: queue}
}

func TestHealthHandler(t *testing.T) {
	f := setupStatusAPI(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestStatusHandler_GetStatus(t *testing.T) {
	f := setupStatusAPI(t)

	item := models.NewSyncQueueItem(models.EntityProduct, "p1", models.OpInsert, json.RawMessage(`{"id":"p1"}`))
	require.NoError(t, f.queue.Insert(context.Background(), item))

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status    models.GlobalSyncStatus `json:"status"`
		Indicator string                  `json:"indicator"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Status.PendingCount)
	assert.Equal(t, string(models.IndicatorOffline), body.Indicator)
}

func TestStatusHandler_ListConflicts(t *testing.T) {
	f := setupStatusAPI(t)
	ctx := context.Background()

	item := models.NewSyncQueueItem(models.EntityInventory, "i1", models.OpUpdate, json.RawMessage(`{"id":"i1","counted":50}`))
	require.NoError(t, f.queue.Insert(ctx, item))
	require.NoError(t, f.queue.UpdateStatus(ctx, item.ID, models.StatusConflict))

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sync/conflicts", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Conflicts []models.UserConflict `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, item.ID, body.Conflicts[0].QueueItemID)
	assert.Equal(t, models.EntityInventory, body.Conflicts[0].EntityType)
}

func TestStatusHandler_TriggerSync(t *testing.T) {
	f := setupStatusAPI(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync/trigger", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestStatusHandler_ResolveConflict_Validation(t *testing.T) {
	f := setupStatusAPI(t)

	t.Run("rejects malformed bodies", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/sync/conflicts/x/resolve", strings.NewReader("{nope"))
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects unsupported resolutions", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/sync/conflicts/x/resolve",
			strings.NewReader(`{"resolution":"KEEP_BOTH"}`))
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("remote wins removes the parked item", func(t *testing.T) {
		ctx := context.Background()
		item := models.NewSyncQueueItem(models.EntityInventory, "i1", models.OpUpdate, json.RawMessage(`{"id":"i1"}`))
		require.NoError(t, f.queue.Insert(ctx, item))
		require.NoError(t, f.queue.UpdateStatus(ctx, item.ID, models.StatusConflict))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/sync/conflicts/"+item.ID+"/resolve",
			strings.NewReader(`{"resolution":"REMOTE_WINS"}`))
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		got, err := f.queue.GetByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
