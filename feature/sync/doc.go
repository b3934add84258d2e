// Package sync exposes the directory sync engine over HTTP.
//
// # Components
//
//   - Service: runs passes and archives audit logs to object storage, pruning
//     archives beyond the configured retention.
//   - Handler: maps engine operations to routes and engine errors to status
//     codes (409 while a pass runs, 502 when a side is unreachable or slow,
//     400 for invalid decisions and configuration, 404 for unknown conflicts).
//   - Loader: registers the feature with the application.
//
// # HTTP Endpoints
//
//   - POST   /sync/run                     : Run one pass.
//   - GET    /sync/status                  : Controller state and pending count.
//   - GET    /sync/metrics                 : Metrics snapshot.
//   - GET    /sync/history?limit=          : Recent passes (default 50).
//   - GET    /sync/conflicts               : Conflicts awaiting a decision.
//   - POST   /sync/conflicts/:key/resolve  : Apply a manual decision.
//   - DELETE /sync/conflicts/:key          : Drop a conflict without applying it.
//   - GET    /sync/audit?format=           : Export the audit log (json, csv, yaml).
//   - POST   /sync/audit/archive?format=   : Upload the audit log to object storage.
//   - GET    /sync/audit/archives          : List archived audit logs.
//   - GET    /sync/config                  : Active configuration.
//   - PATCH  /sync/config                  : Partial configuration update.
//
// Durations in configuration bodies are milliseconds.
package sync
