package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Dependencies are the external collaborators of an Engine.
type Dependencies struct {
	Directory Directory
	Mirror    Mirror
	// Store is optional. Without it nothing is persisted.
	Store  Store
	Logger *zap.Logger
}

// Engine keeps the directory and the mirror convergent.
type Engine struct {
	directory Directory
	mirror    Mirror
	store     Store
	logger    *zap.Logger
	mapper    *Mapper

	mu       sync.RWMutex
	cfg      Config
	detector *Detector
	resolver *Resolver

	cache     *Cache
	metrics   *Metrics
	bus       *Bus
	machine   *stateMachine
	pending   *pendingRegistry
	scheduler *Scheduler
	now       func() time.Time
}

// New validates cfg and builds an engine. Configuration problems are returned
// as *ConfigurationError and are never recovered.
func New(cfg Config, deps Dependencies) (*Engine, error) {
	if deps.Directory == nil {
		return nil, &ConfigurationError{Field: "directory", Reason: "directory client is required"}
	}
	if deps.Mirror == nil {
		return nil, &ConfigurationError{Field: "mirror", Reason: "mirror client is required"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mapper, err := NewMapper(cfg.FieldMapping, cfg.DirectoryKeyFields, cfg.MirrorKeyFields)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		directory: deps.Directory,
		mirror:    deps.Mirror,
		store:     deps.Store,
		logger:    logger,
		mapper:    mapper,
		cache:     NewCache(),
		metrics:   NewMetrics(cfg.HistorySize),
		bus:       NewBus(logger),
		machine:   newStateMachine(),
		pending:   newPendingRegistry(),
		now:       time.Now,
	}
	if err := e.setConfig(cfg); err != nil {
		return nil, err
	}
	e.scheduler = NewScheduler(func(ctx context.Context) error {
		_, err := e.StartSync(ctx)
		return err
	}, e.machine.idle, e.log)

	return e, nil
}

// setConfig rebuilds the detector and resolver for cfg.
func (e *Engine) setConfig(cfg Config) error {
	policies := PolicySet{Default: cfg.DefaultPolicy, Fields: cfg.FieldPolicies, Missing: cfg.MissingRecordPolicy}
	detector, err := NewDetector(e.mapper, policies)
	if err != nil {
		return err
	}
	detector.now = e.now
	resolver := NewResolver(e.mapper, policies, cfg.DirectoryTimestampField, cfg.MirrorTimestampField)
	resolver.now = e.now

	e.mu.Lock()
	e.cfg = cfg
	e.detector = detector
	e.resolver = resolver
	e.mu.Unlock()
	return nil
}

func (e *Engine) components() (Config, *Detector, *Resolver) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg, e.detector, e.resolver
}

func (e *Engine) log() *zap.Logger {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.cfg.EnableLogging {
		return zap.NewNop()
	}
	return e.logger
}

// Initialize checks the directory, restores persisted configuration and cache,
// and starts the scheduler when auto sync is enabled.
// Only an unreachable directory fails initialization. Persistence problems are logged.
func (e *Engine) Initialize(ctx context.Context) error {
	cfg, _, _ := e.components()

	callCtx, cancel := withTimeout(ctx, cfg.CallTimeout)
	health, err := e.directory.HealthCheck(callCtx)
	cancel()
	if err != nil {
		return callError(SideDirectory, "health check", cfg.CallTimeout, err)
	}
	if !health.Healthy {
		reason := health.Error
		if reason == "" {
			reason = "directory reported unhealthy"
		}
		return &ConnectionError{Side: SideDirectory, Err: errors.New(reason)}
	}
	e.log().Info("Directory reachable",
		zap.Int64("response_time_ms", health.ResponseTimeMs),
		zap.Int("record_count", health.RecordCount))

	if e.store != nil {
		if err := e.loadConfig(ctx); err != nil {
			e.log().Warn("Failed to restore configuration", zap.Error(err))
		}
		pending, err := e.cache.Load(ctx, e.store)
		if err != nil {
			e.log().Warn("Failed to restore cache", zap.Error(err))
		} else {
			e.pending.restore(pending)
		}
	}

	cfg, _, _ = e.components()
	if last := e.cache.LastSync(); !last.IsZero() && e.cache.IsStale(cfg.CacheTTL) {
		e.log().Warn("Restored cache is stale", zap.Time("last_sync", last), zap.Duration("ttl", cfg.CacheTTL))
	}

	if cfg.AutoSyncEnabled {
		if err := e.scheduler.Start(cfg.SyncInterval); err != nil {
			return err
		}
	}

	e.log().Info("Sync engine initialized",
		zap.Bool("auto_sync", cfg.AutoSyncEnabled),
		zap.Int("pending_conflicts", e.pending.size()))
	return nil
}

// loadConfig merges the persisted runtime configuration over the current one.
func (e *Engine) loadConfig(ctx context.Context) error {
	raw, found, err := e.store.Get(ctx, ConfigKey)
	if err != nil {
		return &PersistenceError{Op: "load", Key: ConfigKey, Err: err}
	}
	if !found || raw == "" {
		return nil
	}

	var saved persistedConfig
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		return &PersistenceError{Op: "decode", Key: ConfigKey, Err: err}
	}

	cfg, _, _ := e.components()
	next, _, err := saved.update().apply(cfg)
	if err != nil {
		return fmt.Errorf("persisted configuration rejected: %w", err)
	}
	return e.setConfig(next)
}

func (e *Engine) saveConfig(ctx context.Context) error {
	cfg, _, _ := e.components()
	data, err := json.Marshal(persistedFrom(cfg))
	if err != nil {
		return &PersistenceError{Op: "encode", Key: ConfigKey, Err: err}
	}
	if err := e.store.Set(ctx, ConfigKey, string(data)); err != nil {
		return &PersistenceError{Op: "save", Key: ConfigKey, Err: err}
	}
	return nil
}

// UpdateConfiguration applies a partial configuration change, persists it,
// emits configChanged and starts, restarts or stops the scheduler as needed.
// The field mapping cannot be changed.
func (e *Engine) UpdateConfiguration(ctx context.Context, update ConfigUpdate) (Config, error) {
	current, _, _ := e.components()
	next, changed, err := update.apply(current)
	if err != nil {
		return current, err
	}
	if err := e.setConfig(next); err != nil {
		return current, err
	}

	e.log().Info("Configuration updated", zap.Strings("changed", changed))

	if e.store != nil {
		if err := e.saveConfig(ctx); err != nil {
			e.log().Warn("Failed to persist configuration", zap.Error(err))
		}
	}

	e.bus.Emit(EventConfigChanged, next)

	switch {
	case !next.AutoSyncEnabled:
		e.scheduler.Stop()
	case !e.scheduler.Running() || e.scheduler.Interval() != next.SyncInterval:
		if err := e.scheduler.Start(next.SyncInterval); err != nil {
			return next, err
		}
	}
	return next, nil
}

// Configuration returns the active configuration.
func (e *Engine) Configuration() Config {
	cfg, _, _ := e.components()
	return cfg
}

// Metrics returns the counters together with cache and pending registry figures.
func (e *Engine) Metrics() MetricsSnapshot {
	cfg, _, _ := e.components()
	m := e.metrics.Snapshot()
	m.DirectoryRecords, m.MirrorRecords = e.cache.Sizes()
	m.CacheStale = e.cache.IsStale(cfg.CacheTTL)
	m.PendingConflicts = e.pending.size()
	m.LastSyncTime = e.cache.LastSync()
	return m
}

// StatusReport describes the engine state.
type StatusReport struct {
	State            Status    `json:"state"`
	LastStatus       Status    `json:"lastStatus"`
	SessionID        string    `json:"sessionId,omitempty"`
	LastSyncTime     time.Time `json:"lastSyncTime,omitempty"`
	PendingConflicts int       `json:"pendingConflicts"`
	AutoSyncEnabled  bool      `json:"autoSyncEnabled"`
	SchedulerRunning bool      `json:"schedulerRunning"`
}

// Status returns the controller state and scheduling information.
func (e *Engine) Status() StatusReport {
	state, last, id := e.machine.snapshot()
	cfg, _, _ := e.components()
	return StatusReport{
		State:            state,
		LastStatus:       last,
		SessionID:        id,
		LastSyncTime:     e.cache.LastSync(),
		PendingConflicts: e.pending.size(),
		AutoSyncEnabled:  cfg.AutoSyncEnabled,
		SchedulerRunning: e.scheduler.Running(),
	}
}

// DefaultHistoryLimit is used by History when no limit is given.
const DefaultHistoryLimit = 50

// History returns the most recent passes, oldest first.
func (e *Engine) History(limit int) []HistoryEntry {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return e.metrics.History(limit)
}

// PendingConflicts returns the conflicts awaiting a manual decision, sorted by key.
func (e *Engine) PendingConflicts() []Conflict {
	return e.pending.list()
}

// ResolveConflict applies a manual decision to a pending conflict.
// No pass can start until it returns.
func (e *Engine) ResolveConflict(ctx context.Context, key string, decision Decision) (*Resolution, error) {
	if !e.machine.acquire() {
		return nil, ErrSyncInProgress
	}
	defer e.machine.release()

	c, ok := e.pending.get(key)
	if !ok {
		return nil, ErrConflictNotFound
	}

	cfg, _, resolver := e.components()
	res, err := resolver.Decide(c, decision)
	if err != nil {
		return nil, err
	}
	if _, writable := e.directory.(DirectoryUpdater); !writable && targetsDirectory(res) {
		return nil, readOnlyReason(key)
	}

	var result Result
	directory, mirror := e.cache.Directory(), e.cache.Mirror()
	a := &applier{directory: e.directory, mirror: e.mirror, timeout: cfg.CallTimeout}
	applied := a.apply(ctx, res, &result, directory, mirror)
	e.cache.Update(directory, mirror, e.cache.LastSync())
	if !applied {
		if len(result.Errors) > 0 {
			return nil, fmt.Errorf("failed to apply decision for %s: %s", key, result.Errors[0].Error)
		}
		return nil, readOnlyReason(key)
	}

	e.pending.remove(key)
	e.metrics.AddManual()
	e.log().Info("Conflict resolved manually", zap.String("key", key), zap.Int("actions", len(res.Actions)))
	e.bus.Emit(EventConflictResolved, res)
	return res, nil
}

// ClearConflict drops a pending conflict without applying anything.
func (e *Engine) ClearConflict(key string) error {
	if !e.pending.remove(key) {
		return ErrConflictNotFound
	}
	e.log().Info("Conflict cleared", zap.String("key", key))
	return nil
}

// On subscribes handler to event.
func (e *Engine) On(event EventType, handler Handler) Subscription {
	return e.bus.On(event, handler)
}

// Off removes a subscription.
func (e *Engine) Off(sub Subscription) {
	e.bus.Off(sub)
}

// Cleanup stops the scheduler, waits for a pass in flight, persists the cache
// and configuration and disconnects the directory. Failures are logged, never returned.
func (e *Engine) Cleanup(ctx context.Context) {
	e.scheduler.Stop()
	e.scheduler.Wait()

	cfg, _, _ := e.components()
	var errs error
	if e.store != nil {
		errs = multierr.Append(errs, e.cache.Save(ctx, e.store, e.pending.list()))
		errs = multierr.Append(errs, e.saveConfig(ctx))
	}

	callCtx, cancel := withTimeout(ctx, cfg.CallTimeout)
	if err := e.directory.Disconnect(callCtx); err != nil {
		errs = multierr.Append(errs, callError(SideDirectory, "disconnect", cfg.CallTimeout, err))
	}
	cancel()

	for _, err := range multierr.Errors(errs) {
		e.log().Warn("Cleanup step failed", zap.Error(err))
	}
	e.log().Info("Sync engine stopped")
}
