package reconcile

import (
	"context"
)

// LoadMode tells the directory client how much to load.
type LoadMode string

const (
	// LoadFull loads every directory record.
	LoadFull LoadMode = "full"
	// LoadIncremental lets the client serve records changed since its last load
	// when it can. The engine still treats the result as a complete snapshot.
	LoadIncremental LoadMode = "incremental"
)

// Health is the directory client's health report.
type Health struct {
	Healthy        bool   `json:"healthy"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
	RecordCount    int    `json:"recordCount"`
	Error          string `json:"error,omitempty"`
}

// Directory is the authoritative directory service client.
type Directory interface {
	// HealthCheck reports whether the directory is reachable.
	HealthCheck(ctx context.Context) (Health, error)

	// LoadAll returns every directory user record in directory attribute names.
	LoadAll(ctx context.Context, mode LoadMode) ([]Record, error)

	// Disconnect releases the client's resources.
	Disconnect(ctx context.Context) error
}

// DirectoryUpdater is implemented by directory clients that accept writes.
// Directory-targeted actions are skipped for clients that do not implement it.
type DirectoryUpdater interface {
	Update(ctx context.Context, key string, fields Record) error
}

// Mirror is the secondary datastore client.
type Mirror interface {
	// LoadAll returns every mirror user record in mirror field names.
	LoadAll(ctx context.Context) ([]Record, error)

	// Create inserts a new record.
	Create(ctx context.Context, record Record) error

	// Update writes the given fields to the record identified by key.
	Update(ctx context.Context, key string, fields Record) error
}

// CacheInvalidator is implemented by mirror clients that keep caches derived
// from their records. It is called after every successful pass.
type CacheInvalidator interface {
	InvalidateDependentCaches(ctx context.Context) error
}

// Store is the persistent key-value store used for configuration and cache snapshots.
type Store interface {
	// Get returns the value for key; found is false when the key does not exist.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set stores value under key.
	Set(ctx context.Context, key, value string) error
}

// Keys used in the Store.
const (
	ConfigKey = "sync.config"
	CacheKey  = "sync.cache"
)
