package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"directory-sync/core/reconcile"
	"directory-sync/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// contentTypes maps audit formats to object content types.
var contentTypes = map[string]string{
	reconcile.FormatJSON: "application/json",
	reconcile.FormatCSV:  "text/csv",
	reconcile.FormatYAML: "application/yaml",
}

// Archive describes one archived audit log.
type Archive struct {
	Object       string    `json:"object"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// ArchiveOptions locates archived audit logs.
type ArchiveOptions struct {
	Bucket    string
	Prefix    string
	Retention int
}

// Service exposes the sync engine to HTTP handlers and CLI commands.
type Service struct {
	engine  *reconcile.Engine
	client  storage.Client
	archive ArchiveOptions
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new sync service. client may be nil, which disables archiving.
func NewService(engine *reconcile.Engine, client storage.Client, archive ArchiveOptions, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:  engine,
		client:  client,
		archive: archive,
		logger:  logger,
		now:     time.Now,
	}
}

// Run performs one synchronization pass.
func (s *Service) Run(ctx context.Context) (reconcile.Result, error) {
	return s.engine.StartSync(ctx)
}

// ArchiveAuditLog exports the audit log in format, uploads it and prunes old archives.
func (s *Service) ArchiveAuditLog(ctx context.Context, format string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("audit archiving requires object storage")
	}

	data, err := s.engine.ExportAuditLog(format)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%ssync-%s.%s", s.prefix(), s.now().UTC().Format("20060102T150405.000Z"), format)
	if err := storage.WriteObject(ctx, s.client, s.archive.Bucket, name, contentTypes[format], data); err != nil {
		return "", err
	}
	s.logger.Info("Audit log archived", zap.String("object", name), zap.Int("bytes", len(data)))

	if err := s.prune(ctx); err != nil {
		s.logger.Warn("Pruning audit archives failed", zap.Error(err))
	}
	return name, nil
}

// Archives lists archived audit logs, oldest first.
func (s *Service) Archives(ctx context.Context) ([]Archive, error) {
	if s.client == nil {
		return nil, nil
	}
	objects, err := storage.ListObjects(ctx, s.client, s.archive.Bucket, s.prefix()+"sync-")
	if err != nil {
		return nil, err
	}
	out := make([]Archive, len(objects))
	for i, obj := range objects {
		out[i] = Archive{Object: obj.Key, Size: obj.Size, LastModified: obj.LastModified}
	}
	return out, nil
}

// prune removes the oldest archives beyond the retention limit.
func (s *Service) prune(ctx context.Context) error {
	if s.archive.Retention <= 0 {
		return nil
	}
	archives, err := s.Archives(ctx)
	if err != nil {
		return err
	}
	excess := len(archives) - s.archive.Retention
	for i := 0; i < excess; i++ {
		if err := s.client.RemoveObject(ctx, s.archive.Bucket, archives[i].Object, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove %s: %w", archives[i].Object, err)
		}
	}
	return nil
}

func (s *Service) prefix() string {
	p := s.archive.Prefix
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
