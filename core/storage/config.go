package storage

// Config holds configuration for the storage provider.
type Config struct {
	// Endpoint is the URL of the storage service.
	Endpoint string `mapstructure:"endpoint" default:"localhost:9000"`
	// AccessKey is the access key ID for authentication.
	AccessKey string `mapstructure:"access_key" default:"minioadmin"`
	// SecretKey is the secret access key for authentication.
	SecretKey string `mapstructure:"secret_key" default:"minioadmin"`
	// UseSSL indicates whether to use SSL/TLS for connections.
	UseSSL bool `mapstructure:"use_ssl" default:"false"`
	// Bucket holds the directory export, persisted sync state and audit archives.
	Bucket string `mapstructure:"bucket" default:"directory-sync"`
	// Region is the location of the bucket (e.g., us-east-1).
	Region string `mapstructure:"region" default:""`
	// TimeoutSeconds is the connection timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// StatePrefix is the object prefix used by the object-backed key-value store.
	StatePrefix string `mapstructure:"state_prefix" default:"sync/state/"`
	// AuditPrefix is the object prefix for archived audit logs.
	AuditPrefix string `mapstructure:"audit_prefix" default:"audit/"`
	// AuditRetention is how many archived audit logs are kept. Zero keeps all.
	AuditRetention int `mapstructure:"audit_retention" default:"30"`
}
