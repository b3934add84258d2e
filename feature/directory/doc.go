// Package directory implements the directory client of the sync engine.
//
// The authoritative directory is consumed through an export: a JSON document
// kept in object storage, either {"exportedAt": ..., "users": [...]} or a bare
// array of entries. Each entry is a flat map of directory attributes (givenName,
// sn, mail, telephoneNumber, whenChanged, ...).
//
// # Loading
//
// LoadAll downloads and decodes the export. Concurrent loads share one download
// through singleflight. In incremental mode the last download is reused while
// the object's ETag is unchanged, so the engine still receives a complete
// snapshot on every pass.
//
// # Writes
//
// When directory.writable is set, New returns a WritableClient which implements
// reconcile.DirectoryUpdater: fields won by the mirror are merged into the entry
// and the export object is rewritten. Otherwise those updates are skipped by the
// engine.
//
// # Health
//
// HealthCheck reports reachability, response time and entry count. An
// unreachable export is reported as unhealthy rather than as an error.
package directory
