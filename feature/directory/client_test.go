package directory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"directory-sync/core/reconcile"
	"directory-sync/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const exportJSON = `{"exportedAt":"2024-05-01T08:00:00Z","users":[
	{"objectGUID":"g-1","mail":"john@corp.example","givenName":"John","whenChanged":"20240501080000.0Z"},
	{"id":"u-2","mail":"jane@corp.example","givenName":"Jane"}
]}`

var testKeys = []string{"id", "mail", "userPrincipalName"}

func testConfig() Config {
	return Config{
		ExportObject:       "directory/users.json",
		KeyAttribute:       "objectGUID",
		TimestampAttribute: "whenChanged",
	}
}

func body(s string) io.ReadCloser { return io.NopCloser(strings.NewReader(s)) }

func expectStat(client *mocks.Client, etag string) *mock.Call {
	return client.On("StatObject", mock.Anything, "bucket", "directory/users.json", mock.Anything).
		Return(minio.ObjectInfo{Key: "directory/users.json", ETag: etag}, nil)
}

func TestClient_LoadAll(t *testing.T) {
	client := new(mocks.Client)
	expectStat(client, "e1")
	client.On("GetObject", mock.Anything, "bucket", "directory/users.json", mock.Anything).
		Return(body(exportJSON), nil).Once()

	c := NewClient(client, "bucket", testConfig(), testKeys, nil)
	records, err := c.LoadAll(context.Background(), reconcile.LoadFull)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "g-1", records[0]["id"], "key attribute is copied into id")
	assert.Equal(t, "u-2", records[1]["id"])

	// Callers get copies.
	records[0]["givenName"] = "Changed"
	again, ok := c.cachedIfUnchanged(context.Background())
	require.True(t, ok)
	assert.Equal(t, "John", again[0]["givenName"])
}

func TestClient_LoadAllBareArray(t *testing.T) {
	client := new(mocks.Client)
	expectStat(client, "e1")
	client.On("GetObject", mock.Anything, "bucket", "directory/users.json", mock.Anything).
		Return(body(`[{"id":"u-1"},null]`), nil).Once()

	records, err := NewClient(client, "bucket", testConfig(), testKeys, nil).LoadAll(context.Background(), reconcile.LoadFull)
	require.NoError(t, err)
	assert.Equal(t, []reconcile.Record{{"id": "u-1"}}, records)
}

func TestClient_LoadAllInvalidExport(t *testing.T) {
	client := new(mocks.Client)
	expectStat(client, "e1")
	client.On("GetObject", mock.Anything, "bucket", "directory/users.json", mock.Anything).
		Return(body(`not json`), nil).Once()

	_, err := NewClient(client, "bucket", testConfig(), testKeys, nil).LoadAll(context.Background(), reconcile.LoadFull)
	assert.ErrorContains(t, err, "failed to decode directory export")
}

func TestClient_IncrementalReusesUnchangedExport(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	expectStat(client, "e1")
	client.On("GetObject", mock.Anything, "bucket", "directory/users.json", mock.Anything).
		Return(body(exportJSON), nil).Once()

	c := NewClient(client, "bucket", testConfig(), testKeys, nil)
	first, err := c.LoadAll(ctx, reconcile.LoadIncremental)
	require.NoError(t, err)
	second, err := c.LoadAll(ctx, reconcile.LoadIncremental)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	client.AssertNumberOfCalls(t, "GetObject", 1)
}

func TestClient_FullModeAlwaysDownloads(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	expectStat(client, "e1")
	client.On("GetObject", mock.Anything, "bucket", "directory/users.json", mock.Anything).
		Return(body(exportJSON), nil).Once()
	client.On("GetObject", mock.Anything, "bucket", "directory/users.json", mock.Anything).
		Return(body(exportJSON), nil).Once()

	c := NewClient(client, "bucket", testConfig(), testKeys, nil)
	_, err := c.LoadAll(ctx, reconcile.LoadFull)
	require.NoError(t, err)
	_, err = c.LoadAll(ctx, reconcile.LoadFull)
	require.NoError(t, err)

	client.AssertNumberOfCalls(t, "GetObject", 2)
}

func TestClient_HealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		client := new(mocks.Client)
		expectStat(client, "e1")
		client.On("GetObject", mock.Anything, "bucket", "directory/users.json", mock.Anything).
			Return(body(exportJSON), nil).Once()

		health, err := NewClient(client, "bucket", testConfig(), testKeys, nil).HealthCheck(context.Background())
		require.NoError(t, err)
		assert.True(t, health.Healthy)
		assert.Equal(t, 2, health.RecordCount)
	})

	t.Run("unreachable", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("StatObject", mock.Anything, "bucket", "directory/users.json", mock.Anything).
			Return(minio.ObjectInfo{}, errors.New("dial tcp: connection refused"))

		health, err := NewClient(client, "bucket", testConfig(), testKeys, nil).HealthCheck(context.Background())
		require.NoError(t, err)
		assert.False(t, health.Healthy)
		assert.Contains(t, health.Error, "connection refused")
	})
}

func TestClient_Disconnect(t *testing.T) {
	client := new(mocks.Client)
	expectStat(client, "e1")
	client.On("GetObject", mock.Anything, "bucket", "directory/users.json", mock.Anything).
		Return(body(exportJSON), nil).Once()

	c := NewClient(client, "bucket", testConfig(), testKeys, nil)
	_, err := c.LoadAll(context.Background(), reconcile.LoadFull)
	require.NoError(t, err)

	require.NoError(t, c.Disconnect(context.Background()))
	_, ok := c.cachedIfUnchanged(context.Background())
	assert.False(t, ok)
}

func TestNew_SelectsWritableClient(t *testing.T) {
	cfg := testConfig()
	_, updatable := New(new(mocks.Client), "bucket", cfg, testKeys, nil).(reconcile.DirectoryUpdater)
	assert.False(t, updatable)

	cfg.Writable = true
	_, updatable = New(new(mocks.Client), "bucket", cfg, testKeys, nil).(reconcile.DirectoryUpdater)
	assert.True(t, updatable)
}

func TestWritableClient_Update(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	expectStat(client, "e1")
	client.On("GetObject", mock.Anything, "bucket", "directory/users.json", mock.Anything).
		Return(body(exportJSON), nil).Once()
	client.On("GetObject", mock.Anything, "bucket", "directory/users.json", mock.Anything).
		Return(body(exportJSON), nil).Once()

	var written []byte
	client.On("PutObject", mock.Anything, "bucket", "directory/users.json", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			written, _ = io.ReadAll(args.Get(3).(io.Reader))
		}).
		Return(minio.UploadInfo{ETag: "e2"}, nil)

	cfg := testConfig()
	cfg.Writable = true
	w := New(client, "bucket", cfg, testKeys, nil).(*WritableClient)

	require.NoError(t, w.Update(ctx, "u-2", reconcile.Record{"mail": "jane.doe@corp.example"}))

	var doc export
	require.NoError(t, json.Unmarshal(written, &doc))
	require.Len(t, doc.Users, 2)
	assert.Equal(t, "jane.doe@corp.example", doc.Users[1]["mail"])
	_, stamped := reconcile.ParseTimestamp(doc.Users[1]["whenChanged"])
	assert.True(t, stamped)
	assert.Equal(t, "john@corp.example", doc.Users[0]["mail"])

	err := w.Update(ctx, "missing", reconcile.Record{"mail": "x"})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}
