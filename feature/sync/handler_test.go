package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"directory-sync/core/database"
	"directory-sync/core/reconcile"
	reconcilemocks "directory-sync/core/reconcile/mocks"
	storagemocks "directory-sync/core/storage/mocks"
	"directory-sync/feature/users"

	"github.com/gofiber/fiber/v2"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var directoryRecords = []reconcile.Record{
	{"id": "u1", "mail": "john@corp.example", "givenName": "John", "department": "IT"},
	{"id": "u2", "mail": "jane@corp.example", "givenName": "Jane", "department": "Sales"},
}

type testEnv struct {
	app       *fiber.App
	directory *reconcilemocks.Directory
	repo      *users.Repository
	storage   *storagemocks.Client
	service   *Service
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
	require.NoError(t, err)
	repo := users.NewRepository(db, nil)
	require.NoError(t, repo.Prepare(context.Background()))

	dir := new(reconcilemocks.Directory)
	engine, err := reconcile.New(reconcile.DefaultConfig(), reconcile.Dependencies{Directory: dir, Mirror: repo})
	require.NoError(t, err)

	client := new(storagemocks.Client)
	svc := NewService(engine, client, ArchiveOptions{Bucket: "bucket", Prefix: "audit", Retention: 2}, nil)

	app := fiber.New()
	feature := NewFeature(svc)
	require.True(t, feature.IsEnabled())
	require.NoError(t, feature.Load(app))

	return &testEnv{app: app, directory: dir, repo: repo, storage: client, service: svc}
}

func do(t *testing.T, app *fiber.App, method, target string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestHandleRun(t *testing.T) {
	env := setupTestApp(t)
	env.directory.On("LoadAll", mock.Anything, reconcile.LoadFull).Return(directoryRecords, nil)

	status, body := do(t, env.app, "POST", "/sync/run", nil)
	require.Equal(t, fiber.StatusOK, status, string(body))

	var result reconcile.Result
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 2, result.Synced)

	records, err := env.repo.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)

	status, body = do(t, env.app, "GET", "/sync/metrics", nil)
	require.Equal(t, fiber.StatusOK, status)
	var metrics reconcile.MetricsSnapshot
	require.NoError(t, json.Unmarshal(body, &metrics))
	assert.Equal(t, 1, metrics.TotalSyncs)

	status, body = do(t, env.app, "GET", "/sync/history?limit=1", nil)
	require.Equal(t, fiber.StatusOK, status)
	var history []reconcile.HistoryEntry
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history, 1)
	assert.Regexp(t, reconcile.SessionIDPattern, history[0].SessionID)

	status, body = do(t, env.app, "GET", "/sync/status", nil)
	require.Equal(t, fiber.StatusOK, status)
	var report reconcile.StatusReport
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, reconcile.StatusIdle, report.State)
	assert.Equal(t, reconcile.StatusCompleted, report.LastStatus)
}

func TestHandleRun_DirectoryUnreachable(t *testing.T) {
	env := setupTestApp(t)
	env.directory.On("LoadAll", mock.Anything, reconcile.LoadFull).Return(nil, errors.New("connection refused"))

	status, _ := do(t, env.app, "POST", "/sync/run", nil)
	assert.Equal(t, fiber.StatusBadGateway, status)
}

func TestHandleRun_InProgress(t *testing.T) {
	env := setupTestApp(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	env.directory.On("LoadAll", mock.Anything, reconcile.LoadFull).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(directoryRecords, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := env.service.Run(context.Background())
		done <- err
	}()
	<-entered

	status, _ := do(t, env.app, "POST", "/sync/run", nil)
	assert.Equal(t, fiber.StatusConflict, status)

	close(release)
	assert.NoError(t, <-done)
}

func TestConflictRoutes(t *testing.T) {
	ctx := context.Background()
	env := setupTestApp(t)
	require.NoError(t, env.repo.Create(ctx, reconcile.Record{
		"id": "u1", "email": "john@corp.example", "firstName": "John", "department": "Finance",
	}))
	require.NoError(t, env.repo.Create(ctx, reconcile.Record{
		"id": "u2", "email": "jane@corp.example", "firstName": "Jane", "department": "Sales",
	}))
	env.directory.On("LoadAll", mock.Anything, reconcile.LoadFull).Return(directoryRecords, nil)

	status, _ := do(t, env.app, "POST", "/sync/run", nil)
	require.Equal(t, fiber.StatusOK, status)

	status, body := do(t, env.app, "GET", "/sync/conflicts", nil)
	require.Equal(t, fiber.StatusOK, status)
	var pending []reconcile.Conflict
	require.NoError(t, json.Unmarshal(body, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "u1", pending[0].Key)

	status, _ = do(t, env.app, "POST", "/sync/conflicts/u1/resolve", reconcile.Decision{
		Fields: map[string]reconcile.FieldDecision{"department": {Choice: "sideways"}},
	})
	assert.Equal(t, fiber.StatusBadRequest, status)

	// The directory is read-only, so keeping the mirror value cannot be written.
	status, _ = do(t, env.app, "POST", "/sync/conflicts/u1/resolve", reconcile.Decision{
		Fields: map[string]reconcile.FieldDecision{"department": {Choice: reconcile.ChoiceKeepMirror}},
	})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, body = do(t, env.app, "POST", "/sync/conflicts/u1/resolve", reconcile.Decision{
		Fields: map[string]reconcile.FieldDecision{"department": {Choice: reconcile.ChoiceKeepDirectory}},
	})
	require.Equal(t, fiber.StatusOK, status, string(body))

	u, err := env.repo.User(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u.Department)
	assert.Equal(t, "IT", *u.Department)

	status, _ = do(t, env.app, "POST", "/sync/conflicts/u1/resolve", reconcile.Decision{})
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = do(t, env.app, "DELETE", "/sync/conflicts/u1", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestHandleExportAudit(t *testing.T) {
	env := setupTestApp(t)

	tests := []struct {
		name        string
		format      string
		status      int
		contentType string
	}{
		{"Default json", "", fiber.StatusOK, "application/json"},
		{"CSV", "csv", fiber.StatusOK, "text/csv"},
		{"YAML", "yaml", fiber.StatusOK, "application/yaml"},
		{"Unsupported", "xml", fiber.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/sync/audit"
			if tt.format != "" {
				target += "?format=" + tt.format
			}
			resp, err := env.app.Test(httptest.NewRequest("GET", target, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			}
		})
	}
}

func TestHandleArchiveAudit(t *testing.T) {
	env := setupTestApp(t)

	env.storage.On("PutObject", mock.Anything, "bucket", mock.MatchedBy(func(name string) bool {
		return len(name) > len("audit/sync-") && name[:len("audit/sync-")] == "audit/sync-"
	}), mock.Anything, mock.Anything, mock.Anything).Return(minio.UploadInfo{}, nil)

	ch := make(chan minio.ObjectInfo, 3)
	ch <- minio.ObjectInfo{Key: "audit/sync-20240103T000000.000Z.json"}
	ch <- minio.ObjectInfo{Key: "audit/sync-20240101T000000.000Z.json"}
	ch <- minio.ObjectInfo{Key: "audit/sync-20240102T000000.000Z.json"}
	close(ch)
	env.storage.On("ListObjects", mock.Anything, "bucket", mock.Anything).Return((<-chan minio.ObjectInfo)(ch))
	env.storage.On("RemoveObject", mock.Anything, "bucket", "audit/sync-20240101T000000.000Z.json", mock.Anything).Return(nil)

	status, body := do(t, env.app, "POST", "/sync/audit/archive", nil)
	require.Equal(t, fiber.StatusCreated, status, string(body))

	var out map[string]string
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Contains(t, out["object"], "audit/sync-")
	assert.Contains(t, out["object"], ".json")
	env.storage.AssertCalled(t, "RemoveObject", mock.Anything, "bucket", "audit/sync-20240101T000000.000Z.json", mock.Anything)
}

func TestHandleUpdateConfig(t *testing.T) {
	env := setupTestApp(t)

	status, body := do(t, env.app, "PATCH", "/sync/config", map[string]any{
		"syncInterval":            60000,
		"defaultResolutionPolicy": "keep_directory",
	})
	require.Equal(t, fiber.StatusOK, status, string(body))

	var cfg configResponse
	require.NoError(t, json.Unmarshal(body, &cfg))
	assert.Equal(t, int64(60000), cfg.SyncIntervalMs)
	assert.Equal(t, reconcile.PolicyKeepDirectory, cfg.DefaultPolicy)

	status, _ = do(t, env.app, "PATCH", "/sync/config", map[string]any{
		"fieldMapping": []map[string]string{{"mirror": "nickname", "directory": "displayName"}},
	})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = do(t, env.app, "PATCH", "/sync/config", map[string]any{
		"defaultResolutionPolicy": "coin_flip",
	})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = do(t, env.app, "GET", "/sync/config", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &cfg))
	assert.Equal(t, int64(60000), cfg.SyncIntervalMs)
}
