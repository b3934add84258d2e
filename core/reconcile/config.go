package reconcile

import (
	"fmt"
	"strings"
	"time"
)

// FieldPair maps one mirror field to one directory attribute.
type FieldPair struct {
	Mirror    string `json:"mirror" yaml:"mirror"`
	Directory string `json:"directory" yaml:"directory"`
}

// Config is the typed engine configuration.
type Config struct {
	// AutoSyncEnabled starts the scheduler on Initialize.
	AutoSyncEnabled bool `json:"autoSyncEnabled" yaml:"autoSyncEnabled"`

	// SyncInterval is the scheduler period.
	SyncInterval time.Duration `json:"syncInterval" yaml:"syncInterval"`

	// DefaultPolicy applies to every field without an override.
	DefaultPolicy Policy `json:"defaultResolutionPolicy" yaml:"defaultResolutionPolicy"`

	// FieldPolicies overrides the policy per mirror field.
	FieldPolicies map[string]Policy `json:"perFieldPolicyOverrides" yaml:"perFieldPolicyOverrides"`

	// MissingRecordPolicy controls missing records. Manual queues them, anything else applies them.
	MissingRecordPolicy Policy `json:"missingRecordPolicy" yaml:"missingRecordPolicy"`

	// FieldMapping is the ordered mirror to directory field correspondence.
	FieldMapping []FieldPair `json:"fieldMapping" yaml:"fieldMapping"`

	// EnableLogging turns engine logging on or off.
	EnableLogging bool `json:"enableLogging" yaml:"enableLogging"`

	// CallTimeout bounds each collaborator call. Zero disables the bound.
	CallTimeout time.Duration `json:"callTimeout" yaml:"callTimeout"`

	// HistorySize bounds the rolling pass history.
	HistorySize int `json:"historySize" yaml:"historySize"`

	// DirectoryKeyFields are tried in order to find a directory record's key.
	DirectoryKeyFields []string `json:"directoryKeyFields" yaml:"directoryKeyFields"`

	// MirrorKeyFields are tried in order to find a mirror record's key.
	MirrorKeyFields []string `json:"mirrorKeyFields" yaml:"mirrorKeyFields"`

	// DirectoryTimestampField holds the directory change timestamp.
	DirectoryTimestampField string `json:"directoryTimestampField" yaml:"directoryTimestampField"`

	// MirrorTimestampField holds the mirror update timestamp.
	MirrorTimestampField string `json:"mirrorTimestampField" yaml:"mirrorTimestampField"`

	// LoadMode is passed to the directory client.
	LoadMode LoadMode `json:"loadMode" yaml:"loadMode"`

	// PersistEachPass saves the cache at the end of every completed pass.
	PersistEachPass bool `json:"persistEachPass" yaml:"persistEachPass"`

	// CacheTTL is how old the cache may get before it is reported stale.
	CacheTTL time.Duration `json:"cacheTTL" yaml:"cacheTTL"`
}

// DefaultFieldMapping is the mapping used when none is configured.
const DefaultFieldMapping = "firstName=givenName,lastName=sn,email=mail,phone=telephoneNumber,mobile=mobile,department=department,title=title"

// DefaultConfig returns a configuration with the stock mapping and policies.
func DefaultConfig() Config {
	mapping, _ := ParseFieldMapping(DefaultFieldMapping)
	return Config{
		SyncInterval:        5 * time.Minute,
		DefaultPolicy:       PolicyKeepNewer,
		MissingRecordPolicy: PolicyKeepDirectory,
		FieldPolicies: map[string]Policy{
			"email":      PolicyKeepMirror,
			"phone":      PolicyKeepDirectory,
			"department": PolicyManual,
		},
		FieldMapping:            mapping,
		EnableLogging:           true,
		CallTimeout:             30 * time.Second,
		HistorySize:             100,
		DirectoryKeyFields:      []string{"id", "mail", "userPrincipalName"},
		MirrorKeyFields:         []string{"id", "email"},
		DirectoryTimestampField: "whenChanged",
		MirrorTimestampField:    "updatedAt",
		LoadMode:                LoadFull,
		PersistEachPass:         true,
		CacheTTL:                time.Hour,
	}
}

// Settings is the environment-facing form of Config, loaded by viper.
type Settings struct {
	// AutoSyncEnabled starts background synchronization on startup.
	AutoSyncEnabled bool `mapstructure:"auto_sync_enabled" default:"false"`
	// SyncInterval is the background synchronization period.
	SyncInterval time.Duration `mapstructure:"sync_interval" default:"5m"`
	// DefaultPolicy is the global resolution policy.
	DefaultPolicy string `mapstructure:"default_policy" default:"keep_newer"`
	// MissingRecordPolicy controls whether missing records are applied or queued.
	MissingRecordPolicy string `mapstructure:"missing_record_policy" default:"keep_directory"`
	// FieldPolicies is a comma separated list of field=policy overrides.
	FieldPolicies string `mapstructure:"field_policies" default:"email=keep_mirror,phone=keep_directory,department=manual"`
	// FieldMapping is a comma separated list of mirror=directory pairs.
	FieldMapping string `mapstructure:"field_mapping" default:"firstName=givenName,lastName=sn,email=mail,phone=telephoneNumber,mobile=mobile,department=department,title=title"`
	// EnableLogging toggles engine logging.
	EnableLogging bool `mapstructure:"enable_logging" default:"true"`
	// CallTimeout bounds each collaborator call.
	CallTimeout time.Duration `mapstructure:"call_timeout" default:"30s"`
	// HistorySize bounds the pass history.
	HistorySize int `mapstructure:"history_size" default:"100"`
	// DirectoryTimestampField is the directory change timestamp attribute.
	DirectoryTimestampField string `mapstructure:"directory_timestamp_field" default:"whenChanged"`
	// MirrorTimestampField is the mirror update timestamp field.
	MirrorTimestampField string `mapstructure:"mirror_timestamp_field" default:"updatedAt"`
	// LoadMode is full or incremental.
	LoadMode string `mapstructure:"load_mode" default:"full"`
	// PersistEachPass saves the cache after every completed pass.
	PersistEachPass bool `mapstructure:"persist_each_pass" default:"true"`
	// CacheTTL is the cache staleness threshold.
	CacheTTL time.Duration `mapstructure:"cache_ttl" default:"1h"`
	// StoreBackend selects where configuration and cache are persisted (database, storage).
	StoreBackend string `mapstructure:"store_backend" default:"database"`
}

// Config converts settings to a typed Config.
func (s Settings) Config() (Config, error) {
	cfg := DefaultConfig()
	cfg.AutoSyncEnabled = s.AutoSyncEnabled
	cfg.EnableLogging = s.EnableLogging
	cfg.PersistEachPass = s.PersistEachPass
	if s.SyncInterval > 0 {
		cfg.SyncInterval = s.SyncInterval
	}
	if s.CallTimeout > 0 {
		cfg.CallTimeout = s.CallTimeout
	}
	if s.HistorySize > 0 {
		cfg.HistorySize = s.HistorySize
	}
	if s.CacheTTL > 0 {
		cfg.CacheTTL = s.CacheTTL
	}
	if s.DirectoryTimestampField != "" {
		cfg.DirectoryTimestampField = s.DirectoryTimestampField
	}
	if s.MirrorTimestampField != "" {
		cfg.MirrorTimestampField = s.MirrorTimestampField
	}
	if s.LoadMode != "" {
		cfg.LoadMode = LoadMode(s.LoadMode)
	}
	if s.DefaultPolicy != "" {
		cfg.DefaultPolicy = Policy(s.DefaultPolicy)
	}
	if s.MissingRecordPolicy != "" {
		cfg.MissingRecordPolicy = Policy(s.MissingRecordPolicy)
	}

	mapping, err := ParseFieldMapping(s.FieldMapping)
	if err != nil {
		return Config{}, err
	}
	cfg.FieldMapping = mapping

	policies, err := ParseFieldPolicies(s.FieldPolicies)
	if err != nil {
		return Config{}, err
	}
	cfg.FieldPolicies = policies

	return cfg, cfg.Validate()
}

// ParseFieldMapping parses "mirror=directory,..." into ordered pairs.
func ParseFieldMapping(raw string) ([]FieldPair, error) {
	var pairs []FieldPair
	seen := make(map[string]bool)
	for _, entry := range splitList(raw) {
		mirror, directory, ok := strings.Cut(entry, "=")
		mirror, directory = strings.TrimSpace(mirror), strings.TrimSpace(directory)
		if !ok || mirror == "" || directory == "" {
			return nil, &ConfigurationError{Field: "field_mapping", Reason: fmt.Sprintf("malformed entry %q", entry)}
		}
		if seen[mirror] {
			return nil, &ConfigurationError{Field: "field_mapping", Reason: fmt.Sprintf("duplicate mirror field %q", mirror)}
		}
		seen[mirror] = true
		pairs = append(pairs, FieldPair{Mirror: mirror, Directory: directory})
	}
	if len(pairs) == 0 {
		return nil, &ConfigurationError{Field: "field_mapping", Reason: "no field mapping configured"}
	}
	return pairs, nil
}

// ParseFieldPolicies parses "field=policy,..." into a map.
func ParseFieldPolicies(raw string) (map[string]Policy, error) {
	policies := make(map[string]Policy)
	for _, entry := range splitList(raw) {
		field, policy, ok := strings.Cut(entry, "=")
		field, policy = strings.TrimSpace(field), strings.TrimSpace(policy)
		if !ok || field == "" {
			return nil, &ConfigurationError{Field: "field_policies", Reason: fmt.Sprintf("malformed entry %q", entry)}
		}
		p := Policy(policy)
		if !p.Valid() {
			return nil, &ConfigurationError{Field: "field_policies", Reason: fmt.Sprintf("unknown policy %q for %s", policy, field)}
		}
		policies[field] = p
	}
	return policies, nil
}

// Validate checks that every mapped field resolves to a valid policy.
func (c Config) Validate() error {
	if len(c.FieldMapping) == 0 {
		return &ConfigurationError{Field: "fieldMapping", Reason: "no field mapping configured"}
	}
	if c.DefaultPolicy != "" && !c.DefaultPolicy.Valid() {
		return &ConfigurationError{Field: "defaultResolutionPolicy", Reason: fmt.Sprintf("unknown policy %q", c.DefaultPolicy)}
	}
	if c.DefaultPolicy == "" {
		for _, pair := range c.FieldMapping {
			if _, ok := c.FieldPolicies[pair.Mirror]; !ok {
				return &ConfigurationError{Field: "defaultResolutionPolicy", Reason: fmt.Sprintf("field %s has no resolution policy", pair.Mirror)}
			}
		}
	}
	mapped := make(map[string]bool, len(c.FieldMapping))
	for _, pair := range c.FieldMapping {
		if pair.Mirror == "" || pair.Directory == "" {
			return &ConfigurationError{Field: "fieldMapping", Reason: "empty field name"}
		}
		mapped[pair.Mirror] = true
	}
	for field, p := range c.FieldPolicies {
		if !mapped[field] {
			return &ConfigurationError{Field: "perFieldPolicyOverrides", Reason: fmt.Sprintf("field %s is not mapped", field)}
		}
		if !p.Valid() {
			return &ConfigurationError{Field: "perFieldPolicyOverrides", Reason: fmt.Sprintf("unknown policy %q for %s", p, field)}
		}
	}
	if c.MissingRecordPolicy != "" && !c.MissingRecordPolicy.Valid() {
		return &ConfigurationError{Field: "missingRecordPolicy", Reason: fmt.Sprintf("unknown policy %q", c.MissingRecordPolicy)}
	}
	if c.AutoSyncEnabled && c.SyncInterval <= 0 {
		return &ConfigurationError{Field: "syncInterval", Reason: "must be positive when auto sync is enabled"}
	}
	if len(c.DirectoryKeyFields) == 0 || len(c.MirrorKeyFields) == 0 {
		return &ConfigurationError{Field: "keyFields", Reason: "no key fields configured"}
	}
	return nil
}

// ConfigUpdate is a partial configuration change. Nil fields are left untouched.
type ConfigUpdate struct {
	AutoSyncEnabled     *bool             `json:"autoSyncEnabled,omitempty"`
	SyncInterval        *time.Duration    `json:"syncInterval,omitempty"`
	DefaultPolicy       *Policy           `json:"defaultResolutionPolicy,omitempty"`
	FieldPolicies       map[string]Policy `json:"perFieldPolicyOverrides,omitempty"`
	MissingRecordPolicy *Policy           `json:"missingRecordPolicy,omitempty"`
	FieldMapping        []FieldPair       `json:"fieldMapping,omitempty"`
	EnableLogging       *bool             `json:"enableLogging,omitempty"`
	CallTimeout         *time.Duration    `json:"callTimeout,omitempty"`
}

// apply returns a copy of c with the update applied and the names of the changed options.
func (u ConfigUpdate) apply(c Config) (Config, []string, error) {
	if len(u.FieldMapping) > 0 {
		return c, nil, ErrImmutableMapping
	}
	next := c
	var changed []string
	if u.AutoSyncEnabled != nil {
		next.AutoSyncEnabled = *u.AutoSyncEnabled
		changed = append(changed, "autoSyncEnabled")
	}
	if u.SyncInterval != nil {
		next.SyncInterval = *u.SyncInterval
		changed = append(changed, "syncInterval")
	}
	if u.DefaultPolicy != nil {
		next.DefaultPolicy = *u.DefaultPolicy
		changed = append(changed, "defaultResolutionPolicy")
	}
	if u.FieldPolicies != nil {
		next.FieldPolicies = make(map[string]Policy, len(u.FieldPolicies))
		for k, v := range u.FieldPolicies {
			next.FieldPolicies[k] = v
		}
		changed = append(changed, "perFieldPolicyOverrides")
	}
	if u.MissingRecordPolicy != nil {
		next.MissingRecordPolicy = *u.MissingRecordPolicy
		changed = append(changed, "missingRecordPolicy")
	}
	if u.EnableLogging != nil {
		next.EnableLogging = *u.EnableLogging
		changed = append(changed, "enableLogging")
	}
	if u.CallTimeout != nil {
		next.CallTimeout = *u.CallTimeout
		changed = append(changed, "callTimeout")
	}
	if err := next.Validate(); err != nil {
		return c, nil, err
	}
	return next, changed, nil
}

// persistedConfig is the runtime-mutable part of Config saved in the Store.
type persistedConfig struct {
	AutoSyncEnabled     bool              `json:"autoSyncEnabled"`
	SyncInterval        time.Duration     `json:"syncInterval"`
	DefaultPolicy       Policy            `json:"defaultResolutionPolicy"`
	FieldPolicies       map[string]Policy `json:"perFieldPolicyOverrides"`
	MissingRecordPolicy Policy            `json:"missingRecordPolicy"`
	EnableLogging       bool              `json:"enableLogging"`
	CallTimeout         time.Duration     `json:"callTimeout"`
}

func persistedFrom(c Config) persistedConfig {
	return persistedConfig{
		AutoSyncEnabled:     c.AutoSyncEnabled,
		SyncInterval:        c.SyncInterval,
		DefaultPolicy:       c.DefaultPolicy,
		FieldPolicies:       c.FieldPolicies,
		MissingRecordPolicy: c.MissingRecordPolicy,
		EnableLogging:       c.EnableLogging,
		CallTimeout:         c.CallTimeout,
	}
}

func (p persistedConfig) update() ConfigUpdate {
	return ConfigUpdate{
		AutoSyncEnabled:     &p.AutoSyncEnabled,
		SyncInterval:        &p.SyncInterval,
		DefaultPolicy:       &p.DefaultPolicy,
		FieldPolicies:       p.FieldPolicies,
		MissingRecordPolicy: &p.MissingRecordPolicy,
		EnableLogging:       &p.EnableLogging,
		CallTimeout:         &p.CallTimeout,
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
