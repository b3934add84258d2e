// Package users implements the mirror datastore of the sync engine.
//
// Mirrored users live in the users table (gorm, MySQL or SQLite). Optional
// attributes are nullable columns; a NULL column is simply absent from the
// engine record, so it compares equal to an absent directory attribute.
//
// # Components
//
//   - Repository: reconcile.Mirror implementation (LoadAll, Create, Update),
//     plus CreateBatch for transactional bulk inserts and
//     InvalidateDependentCaches, called by the engine after every completed pass.
//   - Prepare: migrates the table and checks every profiled column exists.
//   - Service / Handler: read-only HTTP access backed by a lookup cache.
//   - Loader: registers the feature with the application.
//
// Duplicate keys (MySQL error 1062, SQLite UNIQUE constraint) surface as
// ErrDuplicate.
//
// # HTTP Endpoints
//
//   - GET /users            : List users (?active=true|false, ?department=).
//   - GET /users/:key       : Get one user by id or email.
package users
