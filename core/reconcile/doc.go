// Package reconcile keeps an authoritative directory service and a secondary
// mirror datastore convergent.
//
// A pass loads both sides, translates directory records into mirror field
// names, detects disagreements, resolves what the configured policies allow
// and applies the resulting writes through the collaborators. Conflicts that
// need a human decision are kept in a pending registry until they are resolved
// or cleared.
//
// # Components
//
//   - Mapper: pure translation between directory attributes and mirror fields.
//   - Detector: union-of-keys comparison producing at most one Conflict per key.
//   - Resolver: turns a Conflict into a Resolution, or nil for manual handling.
//   - Cache: last loaded snapshots and sync time, persisted through a Store.
//   - Engine: session state machine, pass orchestration and the public API.
//   - Scheduler: fixed-rate-if-idle background trigger.
//   - Metrics and audit export.
//   - Bus: synchronous publish/subscribe for lifecycle events.
//
// # Policies
//
// Each mapped field resolves with keep_directory, keep_mirror, keep_newer or
// manual. A field mismatch containing any manual field is never applied
// automatically. For keep_newer the directory change timestamp is compared to
// the mirror update timestamp and ties favor the directory.
//
// A mismatch whose winners fall on both sides produces two independent
// actions: one mirror update with every directory-won field and one directory
// update with every mirror-won field. Records present only in the mirror are
// deactivated rather than created in the directory.
//
// # Usage Example
//
//	cfg := reconcile.DefaultConfig()
//	engine, err := reconcile.New(cfg, reconcile.Dependencies{
//	    Directory: directoryClient,
//	    Mirror:    mirrorClient,
//	    Store:     store,
//	    Logger:    logger,
//	})
//	if err := engine.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer engine.Cleanup(context.Background())
//
//	result, err := engine.StartSync(ctx)
package reconcile
