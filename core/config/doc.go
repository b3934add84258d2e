// Package config provides configuration management for the directory sync service.
//
// It loads an optional .env file with godotenv and then reads environment
// variables through Viper. Defaults come from the `default` struct tags of every
// section, registered by reflection so each key is also bound to its environment
// variable (SECTION_KEY, e.g. SYNC_SYNC_INTERVAL -> sync.sync_interval).
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Server: HTTP listener and API key
//   - Log: Logging level and format
//   - Database: MySQL or SQLite connection for the mirror and the key-value store
//   - Storage: S3/MinIO credentials, bucket and object prefixes
//   - Sync: reconciliation engine settings (reconcile.Settings)
//   - Directory: directory export object and key attribute
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engineCfg, err := cfg.Sync.Config()
package config
