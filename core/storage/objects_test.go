package storage_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"directory-sync/core/storage"
	"directory-sync/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// failingReader fails on first read, the way minio reports missing objects.
type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }
func (r failingReader) Close() error             { return nil }

func TestIsNotFound(t *testing.T) {
	assert.True(t, storage.IsNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, storage.IsNotFound(minio.ErrorResponse{Code: "NoSuchBucket"}))
	assert.False(t, storage.IsNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, storage.IsNotFound(nil))
}

func TestKV_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("GetObject", mock.Anything, "bucket", "sync/state/sync.config.json", mock.Anything).
			Return(io.NopCloser(strings.NewReader(`{"a":1}`)), nil)

		value, found, err := storage.NewKV(client, "bucket", "sync/state").Get(ctx, "sync.config")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, `{"a":1}`, value)
	})

	t.Run("missing", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("GetObject", mock.Anything, "bucket", "sync/state/sync.cache.json", mock.Anything).
			Return(failingReader{err: minio.ErrorResponse{Code: "NoSuchKey"}}, nil)

		_, found, err := storage.NewKV(client, "bucket", "sync/state/").Get(ctx, "sync.cache")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("error", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("GetObject", mock.Anything, "bucket", mock.Anything, mock.Anything).
			Return(nil, errors.New("connection reset"))

		_, _, err := storage.NewKV(client, "bucket", "sync/state/").Get(ctx, "sync.cache")
		assert.ErrorContains(t, err, "connection reset")
	})
}

func TestKV_Set(t *testing.T) {
	client := new(mocks.Client)
	client.On("PutObject", mock.Anything, "bucket", "state/k.json", mock.Anything, int64(5), mock.MatchedBy(func(o minio.PutObjectOptions) bool {
		return o.ContentType == "application/json"
	})).Return(minio.UploadInfo{}, nil)

	err := storage.NewKV(client, "bucket", "state/").Set(context.Background(), "k", "hello")
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()

	t.Run("exists", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "b").Return(true, nil)
		require.NoError(t, storage.EnsureBucket(ctx, client, "b", ""))
		client.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("created", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "b").Return(false, nil)
		client.On("MakeBucket", mock.Anything, "b", minio.MakeBucketOptions{Region: "eu-west-1"}).Return(nil)
		require.NoError(t, storage.EnsureBucket(ctx, client, "b", "eu-west-1"))
		client.AssertExpectations(t)
	})
}

func TestListObjects(t *testing.T) {
	ch := make(chan minio.ObjectInfo, 2)
	ch <- minio.ObjectInfo{Key: "audit/sync-2.json"}
	ch <- minio.ObjectInfo{Key: "audit/sync-1.json"}
	close(ch)

	client := new(mocks.Client)
	client.On("ListObjects", mock.Anything, "b", minio.ListObjectsOptions{Prefix: "audit/", Recursive: true}).
		Return((<-chan minio.ObjectInfo)(ch))

	objects, err := storage.ListObjects(context.Background(), client, "b", "audit/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "audit/sync-1.json", objects[0].Key)

	failing := make(chan minio.ObjectInfo, 1)
	failing <- minio.ObjectInfo{Err: errors.New("denied")}
	close(failing)
	client = new(mocks.Client)
	client.On("ListObjects", mock.Anything, "b", mock.Anything).Return((<-chan minio.ObjectInfo)(failing))

	_, err = storage.ListObjects(context.Background(), client, "b", "audit/")
	assert.ErrorContains(t, err, "denied")
}
