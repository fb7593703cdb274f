package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"botadmin/internal/audit"
	"botadmin/internal/config"
	"botadmin/internal/domain"
	"botadmin/internal/ingest"
)

var testSecret = []byte("test-secret")

type nopVectorStore struct{}

func (nopVectorStore) UpsertChunks(ctx context.Context, collection string, chunks []ingest.Chunk) error {
	return nil
}
func (nopVectorStore) DeleteBySource(ctx context.Context, collection, source string) error {
	return nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, config.EnsureSchema(db))
	require.NoError(t, audit.EnsureSchema(db))
	require.NoError(t, ingest.EnsureSchema(db))

	auditLog := audit.NewLogger(db, filepath.Join(t.TempDir(), "audit.jsonl"))
	store := config.NewSQLiteStore(db)
	cache := config.NewCache(store, time.Minute)
	configs := config.NewManager(store, cache, auditLog, nil)
	sources := ingest.NewSQLiteSources(db)
	ingester := ingest.NewService(sources, nopVectorStore{}, auditLog)

	return NewServer(configs, auditLog, sources, ingester, testSecret)
}

func bearer(t *testing.T, email, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := tok.SignedString(testSecret)
	require.NoError(t, err)
	return "Bearer " + signed
}

func do(t *testing.T, h http.Handler, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

const validDoc = `{"enabled": true, "require_confirmation": true}`

func TestHealthNoAuth(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMissingTokenUnauthorized(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/config/tasks", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGarbageTokenUnauthorized(t *testing.T) {
	h := newTestServer(t)
	w := do(t, h, http.MethodGet, "/config/tasks", "Bearer not.a.token", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestViewerCannotWrite(t *testing.T) {
	h := newTestServer(t)
	viewer := bearer(t, "viewer@example.com", "viewer")

	w := do(t, h, http.MethodPut, "/config/tasks/cancel_booking", viewer, []byte(validDoc))
	require.Equal(t, http.StatusForbidden, w.Code)

	// Reads stay open to viewers.
	w = do(t, h, http.MethodGet, "/config/tasks", viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPutThenGetTask(t *testing.T) {
	h := newTestServer(t)
	editor := bearer(t, "editor@example.com", "editor")

	w := do(t, h, http.MethodPut, "/config/tasks/cancel_booking", editor, []byte(validDoc))
	require.Equal(t, http.StatusOK, w.Code)

	var put domain.TaskConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &put))
	require.Equal(t, "cancel_booking", put.TaskName)
	require.Equal(t, "editor@example.com", put.UpdatedBy)

	w = do(t, h, http.MethodGet, "/config/tasks/cancel_booking", editor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got domain.TaskConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.JSONEq(t, validDoc, string(got.Config))
}

func TestPutInvalidDocument(t *testing.T) {
	h := newTestServer(t)
	editor := bearer(t, "editor@example.com", "editor")

	w := do(t, h, http.MethodPut, "/config/tasks/cancel_booking", editor, []byte(`{"surprise": 1}`))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Issues []string `json:"issues"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Issues)
}

func TestPutUnknownTaskName(t *testing.T) {
	h := newTestServer(t)
	editor := bearer(t, "editor@example.com", "editor")
	w := do(t, h, http.MethodPut, "/config/tasks/mystery_task", editor, []byte(`{}`))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetUnknownTask(t *testing.T) {
	h := newTestServer(t)
	viewer := bearer(t, "viewer@example.com", "viewer")
	w := do(t, h, http.MethodGet, "/config/tasks/cancel_booking", viewer, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestToggleTask(t *testing.T) {
	h := newTestServer(t)
	admin := bearer(t, "admin@example.com", "admin")

	w := do(t, h, http.MethodPut, "/config/tasks/cancel_booking", admin, []byte(validDoc))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPut, "/config/tasks/cancel_booking/toggle?enabled=false", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tc domain.TaskConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tc))
	require.False(t, tc.Enabled)

	w = do(t, h, http.MethodPut, "/config/tasks/cancel_booking/toggle?enabled=banana", admin, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidateTask(t *testing.T) {
	h := newTestServer(t)
	admin := bearer(t, "admin@example.com", "admin")
	w := do(t, h, http.MethodPost, "/config/tasks/cancel_booking/invalidate", admin, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestAuditRecordsEndpoint(t *testing.T) {
	h := newTestServer(t)
	admin := bearer(t, "admin@example.com", "admin")

	w := do(t, h, http.MethodPut, "/config/tasks/cancel_booking", admin, []byte(validDoc))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodGet, "/audit/records?action_name=update_task_config&success=true", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []domain.AuditRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	require.Equal(t, "admin@example.com", records[0].Actor)
}

func TestContentSourceLifecycle(t *testing.T) {
	h := newTestServer(t)
	editor := bearer(t, "editor@example.com", "editor")

	file := filepath.Join(t.TempDir(), "faq.md")
	require.NoError(t, os.WriteFile(file, []byte("# FAQ\nWe open at nine."), 0o644))

	body, _ := json.Marshal(map[string]any{
		"name":        "faq",
		"source_type": "file",
		"location":    file,
		"enabled":     true,
	})
	w := do(t, h, http.MethodPost, "/content/sources", editor, body)
	require.Equal(t, http.StatusCreated, w.Code)
	var src domain.ContentSource
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &src))

	w = do(t, h, http.MethodGet, "/content/sources", editor, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, h, http.MethodPost, "/content/sources/"+src.ID+"/ingest", editor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats ingest.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.FilesProcessed)

	w = do(t, h, http.MethodPost, "/content/sources/src_missing/ingest", editor, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSourceValidation(t *testing.T) {
	h := newTestServer(t)
	editor := bearer(t, "editor@example.com", "editor")

	w := do(t, h, http.MethodPost, "/content/sources", editor, []byte(`{"name": ""}`))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/content/sources", editor,
		[]byte(`{"name": "x", "location": "/tmp/x", "source_type": "ftp"}`))
	require.Equal(t, http.StatusBadRequest, w.Code)
}
