package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// StartSync runs one pass and returns its result summary.
// It returns ErrSyncInProgress when a pass is already running.
func (e *Engine) StartSync(ctx context.Context) (Result, error) {
	session, err := e.machine.begin(e.now())
	if err != nil {
		return Result{}, err
	}

	log := e.log().With(zap.String("session_id", session.ID))
	log.Info("Sync started")
	e.bus.Emit(EventSyncStarted, session)

	result, err := e.pass(ctx, log)
	session.Result = result

	if err != nil {
		session.Err = err
		e.machine.finish(session, StatusFailed, e.now())
		e.metrics.RecordPass(historyEntry(session), false)
		log.Error("Sync failed", zap.Duration("duration", session.Duration()), zap.Error(err))
		e.bus.Emit(EventSyncFailed, session)
		return Result{}, err
	}

	e.machine.finish(session, StatusCompleted, e.now())
	e.metrics.RecordPass(historyEntry(session), true)
	log.Info("Sync completed",
		zap.Duration("duration", session.Duration()),
		zap.Int("synced", result.Synced),
		zap.Int("conflicts_detected", result.ConflictsDetected),
		zap.Int("conflicts_resolved", result.ConflictsResolved),
		zap.Int("conflicts_pending", result.ConflictsPending),
		zap.Int("errors", len(result.Errors)))
	e.bus.Emit(EventSyncCompleted, session)
	return result, nil
}

func historyEntry(s *Session) HistoryEntry {
	entry := HistoryEntry{
		SessionID:  s.ID,
		DurationMs: s.Duration().Milliseconds(),
		Timestamp:  s.EndedAt,
		Status:     s.Status,
		Result:     s.Result,
	}
	if s.Err != nil {
		entry.Error = s.Err.Error()
	}
	return entry
}

// pass loads both sides, detects and resolves conflicts, applies the results and refreshes the cache.
func (e *Engine) pass(ctx context.Context, log *zap.Logger) (Result, error) {
	cfg, detector, resolver := e.components()

	directoryRecords, mirrorRecords, err := e.load(ctx, cfg)
	if err != nil {
		return Result{}, err
	}

	directory := e.mapper.DirectorySnapshot(directoryRecords)
	mirror := e.mapper.MirrorSnapshot(mirrorRecords)
	log.Debug("Loaded snapshots",
		zap.Int("directory_records", len(directory)),
		zap.Int("mirror_records", len(mirror)))

	conflicts := detector.Detect(directory, mirror)

	_, writable := e.directory.(DirectoryUpdater)

	var result Result
	var resolutions []*Resolution
	for _, c := range conflicts {
		res := resolver.AutoResolve(c)
		var unresolved *ConflictUnresolvedError
		switch {
		case res == nil:
			unresolved = unresolvedReason(c)
		case !writable && targetsDirectory(res):
			unresolved = readOnlyReason(c.Key)
			result.Skipped++
		}
		if unresolved != nil {
			c.Reason = unresolved.Error()
			if e.pending.add(c) {
				result.ConflictsDetected++
				result.ConflictsPending++
				log.Debug("Conflict queued for manual resolution", zap.String("key", c.Key), zap.String("reason", c.Reason))
				e.bus.Emit(EventConflictDetected, c)
			}
			continue
		}

		result.ConflictsDetected++
		e.bus.Emit(EventConflictDetected, c)
		resolutions = append(resolutions, res)
	}

	a := &applier{directory: e.directory, mirror: e.mirror, timeout: cfg.CallTimeout}
	applied := a.applyAll(ctx, resolutions, &result, directory, mirror)
	for _, res := range resolutions {
		if !applied[res.Key] {
			continue
		}
		result.ConflictsResolved++
		e.pending.remove(res.Key)
		e.bus.Emit(EventConflictResolved, res)
	}
	for _, re := range result.Errors {
		log.Warn("Failed to apply resolution", zap.String("key", re.Key), zap.String("action", string(re.Action)), zap.String("error", re.Error))
	}

	e.cache.Update(directory, mirror, e.now())
	e.metrics.AddResolved(result.ConflictsResolved)

	if cfg.PersistEachPass && e.store != nil {
		if err := e.cache.Save(ctx, e.store, e.pending.list()); err != nil {
			log.Warn("Failed to persist cache", zap.Error(err))
		}
	}

	if inv, ok := e.mirror.(CacheInvalidator); ok {
		callCtx, cancel := withTimeout(ctx, cfg.CallTimeout)
		if err := inv.InvalidateDependentCaches(callCtx); err != nil {
			log.Warn("Failed to invalidate dependent caches", zap.Error(err))
		}
		cancel()
	}

	return result, nil
}

// load fetches both sides concurrently. The first failure cancels the other call.
func (e *Engine) load(ctx context.Context, cfg Config) ([]Record, []Record, error) {
	var directory, mirror []Record

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		callCtx, cancel := withTimeout(gctx, cfg.CallTimeout)
		defer cancel()
		records, err := e.directory.LoadAll(callCtx, cfg.LoadMode)
		if err != nil {
			return callError(SideDirectory, "load directory", cfg.CallTimeout, err)
		}
		directory = records
		return nil
	})
	g.Go(func() error {
		callCtx, cancel := withTimeout(gctx, cfg.CallTimeout)
		defer cancel()
		records, err := e.mirror.LoadAll(callCtx)
		if err != nil {
			return callError(SideMirror, "load mirror", cfg.CallTimeout, err)
		}
		mirror = records
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return directory, mirror, nil
}

func readOnlyReason(key string) *ConflictUnresolvedError {
	return &ConflictUnresolvedError{Key: key, Reason: "directory is read-only"}
}

func unresolvedReason(c Conflict) *ConflictUnresolvedError {
	if c.Type == ConflictMissingRecord {
		return &ConflictUnresolvedError{Key: c.Key, Reason: fmt.Sprintf("record missing from %s and missing record policy is manual", c.MissingSide)}
	}
	for _, f := range c.Fields {
		if f.Policy == PolicyManual {
			return &ConflictUnresolvedError{Key: c.Key, Reason: fmt.Sprintf("field %s requires manual resolution", f.Field)}
		}
	}
	return &ConflictUnresolvedError{Key: c.Key, Reason: "no automatic resolution"}
}
