package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"directory-sync/core/reconcile"
	"directory-sync/core/storage"
	"directory-sync/core/utils"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrEntryNotFound is returned by Update when no exported entry has the key.
var ErrEntryNotFound = errors.New("directory entry not found")

// export is the document layout of the directory export object.
type export struct {
	ExportedAt string             `json:"exportedAt,omitempty"`
	Users      []reconcile.Record `json:"users"`
}

// Client reads directory entries from an export object in object storage.
type Client struct {
	client    storage.Client
	bucket    string
	cfg       Config
	keyFields []string
	logger    *zap.Logger

	mu      sync.RWMutex
	records []reconcile.Record
	etag    string
	sf      singleflight.Group
}

// WritableClient is a Client that also writes fields back to the export.
type WritableClient struct {
	*Client
	writeMu sync.Mutex
}

// NewClient creates a read-only directory client.
// keyFields lists the attributes identifying an entry, in priority order.
func NewClient(client storage.Client, bucket string, cfg Config, keyFields []string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		client:    client,
		bucket:    bucket,
		cfg:       cfg,
		keyFields: keyFields,
		logger:    logger,
	}
}

// New returns a WritableClient when the configuration allows writes and a
// read-only Client otherwise.
func New(client storage.Client, bucket string, cfg Config, keyFields []string, logger *zap.Logger) reconcile.Directory {
	c := NewClient(client, bucket, cfg, keyFields, logger)
	if cfg.Writable {
		return &WritableClient{Client: c}
	}
	return c
}

// HealthCheck verifies the export object is reachable and readable.
func (c *Client) HealthCheck(ctx context.Context) (reconcile.Health, error) {
	start := time.Now()
	records, err := c.LoadAll(ctx, reconcile.LoadIncremental)
	health := reconcile.Health{ResponseTimeMs: time.Since(start).Milliseconds()}
	if err != nil {
		health.Error = err.Error()
		return health, nil
	}
	health.Healthy = true
	health.RecordCount = len(records)
	return health, nil
}

// LoadAll returns every exported entry. In incremental mode the previous
// download is reused while the object's ETag is unchanged. Concurrent calls
// share one download.
func (c *Client) LoadAll(ctx context.Context, mode reconcile.LoadMode) ([]reconcile.Record, error) {
	result, err, _ := c.sf.Do(string(mode), func() (any, error) {
		if mode == reconcile.LoadIncremental {
			if records, ok := c.cachedIfUnchanged(ctx); ok {
				return records, nil
			}
		}
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return cloneRecords(result.([]reconcile.Record)), nil
}

// Disconnect drops the cached export.
func (c *Client) Disconnect(context.Context) error {
	c.mu.Lock()
	c.records = nil
	c.etag = ""
	c.mu.Unlock()
	return nil
}

func (c *Client) cachedIfUnchanged(ctx context.Context) ([]reconcile.Record, bool) {
	c.mu.RLock()
	etag, records := c.etag, c.records
	c.mu.RUnlock()
	if etag == "" {
		return nil, false
	}

	info, err := c.client.StatObject(ctx, c.bucket, c.cfg.ExportObject, minio.StatObjectOptions{})
	if err != nil || info.ETag != etag {
		return nil, false
	}
	return records, true
}

func (c *Client) fetch(ctx context.Context) ([]reconcile.Record, error) {
	info, err := c.client.StatObject(ctx, c.bucket, c.cfg.ExportObject, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to stat directory export %s: %w", c.cfg.ExportObject, err)
	}

	data, err := storage.ReadObject(ctx, c.client, c.bucket, c.cfg.ExportObject)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory export %s: %w", c.cfg.ExportObject, err)
	}

	records, err := c.decode(data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.records = records
	c.etag = info.ETag
	c.mu.Unlock()

	c.logger.Debug("Directory export loaded",
		zap.String("object", c.cfg.ExportObject),
		zap.Int("entries", len(records)))
	return records, nil
}

// decode accepts either {"users": [...]} or a bare array of entries.
func (c *Client) decode(data []byte) ([]reconcile.Record, error) {
	var doc export
	if err := json.Unmarshal(data, &doc); err != nil {
		var list []reconcile.Record
		if listErr := json.Unmarshal(data, &list); listErr != nil {
			return nil, fmt.Errorf("failed to decode directory export: %w", err)
		}
		doc.Users = list
	}

	records := make([]reconcile.Record, 0, len(doc.Users))
	for _, r := range doc.Users {
		if r == nil {
			continue
		}
		if _, ok := r["id"]; !ok && c.cfg.KeyAttribute != "" {
			if v, ok := r[c.cfg.KeyAttribute]; ok && v != nil {
				r["id"] = utils.ToString(v)
			}
		}
		records = append(records, r)
	}
	return records, nil
}

func (c *Client) keyOf(r reconcile.Record) string {
	for _, f := range c.keyFields {
		if v, ok := r[f]; ok && v != nil {
			if s := utils.ToString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// Update merges fields into the entry identified by key and rewrites the export.
func (w *WritableClient) Update(ctx context.Context, key string, fields reconcile.Record) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	records, err := w.fetch(ctx)
	if err != nil {
		return err
	}

	records = cloneRecords(records)
	found := false
	for _, r := range records {
		if w.keyOf(r) != key {
			continue
		}
		for k, v := range fields {
			r[k] = v
		}
		if w.cfg.TimestampAttribute != "" {
			r[w.cfg.TimestampAttribute] = time.Now().UTC().Format("20060102150405") + ".0Z"
		}
		found = true
		break
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, key)
	}

	data, err := json.Marshal(export{ExportedAt: time.Now().UTC().Format(time.RFC3339), Users: records})
	if err != nil {
		return fmt.Errorf("failed to encode directory export: %w", err)
	}
	if err := storage.WriteObject(ctx, w.client, w.bucket, w.cfg.ExportObject, "application/json", data); err != nil {
		return err
	}

	// Force the next incremental load to download the rewritten object.
	w.mu.Lock()
	w.records = records
	w.etag = ""
	w.mu.Unlock()
	return nil
}

func cloneRecords(records []reconcile.Record) []reconcile.Record {
	out := make([]reconcile.Record, len(records))
	for i, r := range records {
		cp := make(reconcile.Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
