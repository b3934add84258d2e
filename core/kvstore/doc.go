// Package kvstore implements a small key-value store on a database table.
//
// The sync engine persists its runtime configuration and its cache snapshot as
// opaque strings under two keys. This package keeps them in the sync_kv table of
// the mirror database, next to the users table, so one connection serves both.
//
// Writes are upserts (clause.OnConflict): ON DUPLICATE KEY UPDATE on MySQL and
// ON CONFLICT on SQLite.
//
// # Usage
//
//	store := kvstore.New(db)
//	if err := store.Migrate(ctx); err != nil { ... }
//	value, found, err := store.Get(ctx, "sync.config")
package kvstore
