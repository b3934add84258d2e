package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"directory-sync/core/reconcile"
	reconcilemocks "directory-sync/core/reconcile/mocks"
	storagemocks "directory-sync/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, client *storagemocks.Client, retention int) *Service {
	t.Helper()
	engine, err := reconcile.New(reconcile.DefaultConfig(), reconcile.Dependencies{
		Directory: new(reconcilemocks.Directory),
		Mirror:    new(reconcilemocks.Mirror),
	})
	require.NoError(t, err)

	var sc *Service
	if client == nil {
		sc = NewService(engine, nil, ArchiveOptions{}, nil)
	} else {
		sc = NewService(engine, client, ArchiveOptions{Bucket: "bucket", Prefix: "audit/", Retention: retention}, nil)
	}
	sc.now = func() time.Time { return time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC) }
	return sc
}

func TestService_ArchiveWithoutStorage(t *testing.T) {
	svc := newTestService(t, nil, 0)

	_, err := svc.ArchiveAuditLog(context.Background(), reconcile.FormatJSON)
	assert.ErrorContains(t, err, "requires object storage")

	archives, err := svc.Archives(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, archives)
}

func TestService_ArchiveNamesObjectAfterFormat(t *testing.T) {
	client := new(storagemocks.Client)
	client.On("PutObject", mock.Anything, "bucket", "audit/sync-20240501T083000.000Z.csv", mock.Anything, mock.Anything,
		mock.MatchedBy(func(o minio.PutObjectOptions) bool { return o.ContentType == "text/csv" })).
		Return(minio.UploadInfo{}, nil)

	name, err := newTestService(t, client, 0).ArchiveAuditLog(context.Background(), reconcile.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "audit/sync-20240501T083000.000Z.csv", name)
	client.AssertNotCalled(t, "ListObjects", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_ArchiveRejectsUnknownFormat(t *testing.T) {
	client := new(storagemocks.Client)
	_, err := newTestService(t, client, 0).ArchiveAuditLog(context.Background(), "xml")
	assert.ErrorIs(t, err, reconcile.ErrUnsupportedFormat)
	client.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_PruneFailureIsNotFatal(t *testing.T) {
	client := new(storagemocks.Client)
	client.On("PutObject", mock.Anything, "bucket", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, nil)

	ch := make(chan minio.ObjectInfo, 1)
	ch <- minio.ObjectInfo{Err: errors.New("access denied")}
	close(ch)
	client.On("ListObjects", mock.Anything, "bucket", mock.Anything).Return((<-chan minio.ObjectInfo)(ch))

	_, err := newTestService(t, client, 5).ArchiveAuditLog(context.Background(), reconcile.FormatYAML)
	assert.NoError(t, err)
}
