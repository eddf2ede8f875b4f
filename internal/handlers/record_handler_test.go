package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medistock/device/internal/models"
	"github.com/medistock/device/internal/repository"
	"github.com/medistock/device/internal/services"
)

type recordFixture struct {
	router  *chi.Mux
	queue   *repository.SyncQueueRepository
	records *repository.RecordRepository
}

func setupRecordAPI(t *testing.T) *recordFixture {
	db, err := repository.NewSQLiteDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	queue := repository.NewSyncQueueRepository(db)
	records := repository.NewRecordRepository(db)
	settings := repository.NewDeviceSettingsRepository(db)

	enqueue := services.NewEnqueueService(db, queue, records, settings, logger)
	handler := NewRecordHandler(enqueue, records)

	r := chi.NewRouter()
	r.Route("/api/records/{entity}", func(r chi.Router) {
		r.Get("/", handler.ListRecords)
		r.Post("/", handler.CreateRecord)
		r.Get("/{id}", handler.GetRecord)
		r.Put("/{id}", handler.UpdateRecord)
		r.Delete("/{id}", handler.DeleteRecord)
	})

	return &recordFixture{router: r, queue: queue, records: records}
}

func TestRecordHandler_CreateQueuesUpload(t *testing.T) {
	f := setupRecordAPI(t)

	body := `{"id":"p1","payload":{"id":"p1","name":"Paracetamol"},"userId":"u1","siteId":"s1"}`
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/records/products/", strings.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)

	stored, err := f.records.Get(context.Background(), "products", "p1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Paracetamol", stored["name"])

	pending, err := f.queue.GetLatestPendingForEntity(context.Background(), models.EntityProduct, "p1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, models.OpInsert, pending.Operation)
	assert.Equal(t, "u1", pending.UserID)
}

func TestRecordHandler_GetAndList(t *testing.T) {
	f := setupRecordAPI(t)

	require.NoError(t, f.records.Upsert(context.Background(), "products", map[string]any{"id": "p1", "name": "Ibuprofen"}))

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/records/products/p1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var row map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &row))
	assert.Equal(t, "Ibuprofen", row["name"])

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/records/products/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list map[string][]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list["records"], 1)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/records/products/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordHandler_DeleteCancelsPendingInsert(t *testing.T) {
	f := setupRecordAPI(t)

	body := `{"id":"p1","payload":{"id":"p1","name":"Paracetamol"}}`
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/records/products/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/records/products/p1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.records.Get(context.Background(), "products", "p1")
	require.NoError(t, err)
	assert.Nil(t, stored)

	pending, err := f.queue.GetLatestPendingForEntity(context.Background(), models.EntityProduct, "p1")
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestRecordHandler_RejectsBadInput(t *testing.T) {
	f := setupRecordAPI(t)

	t.Run("unknown entity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/records/widgets/", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/records/products/", strings.NewReader(`{"payload":{"name":"x"}}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing payload", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/records/products/p1", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
