package directory

// Config holds configuration for the directory export client.
type Config struct {
	// ExportObject is the object holding the directory export.
	ExportObject string `mapstructure:"export_object" default:"directory/users.json"`
	// KeyAttribute is copied into "id" when an exported entry has no id.
	KeyAttribute string `mapstructure:"key_attribute" default:"objectGUID"`
	// TimestampAttribute is stamped on entries changed through Update.
	TimestampAttribute string `mapstructure:"timestamp_attribute" default:"whenChanged"`
	// Writable allows the engine to write mirror-won fields back to the export.
	Writable bool `mapstructure:"writable" default:"false"`
}
