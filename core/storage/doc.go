// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client behind the Client interface so storage
// interactions can be mocked in unit tests (see core/storage/mocks). Both AWS S3
// and self-hosted MinIO are supported.
//
// # Uses
//
//   - The directory export object read by the directory client.
//   - KV, an object-per-key store for the sync configuration and cache
//     snapshot when the storage backend is selected.
//   - Archived audit logs.
//
// # Usage
//
//	client, err := storage.NewClient(config)
//	kv := storage.NewKV(client, config.Bucket, config.StatePrefix)
//	value, found, err := kv.Get(ctx, "sync.config")
package storage
