package sync

import (
	"time"

	"directory-sync/core/reconcile"
)

// configRequest is the body of PATCH /sync/config. Durations are milliseconds.
type configRequest struct {
	AutoSyncEnabled     *bool                       `json:"autoSyncEnabled"`
	SyncIntervalMs      *int64                      `json:"syncInterval"`
	DefaultPolicy       *reconcile.Policy           `json:"defaultResolutionPolicy"`
	FieldPolicies       map[string]reconcile.Policy `json:"perFieldPolicyOverrides"`
	MissingRecordPolicy *reconcile.Policy           `json:"missingRecordPolicy"`
	FieldMapping        []reconcile.FieldPair       `json:"fieldMapping"`
	EnableLogging       *bool                       `json:"enableLogging"`
	CallTimeoutMs       *int64                      `json:"callTimeout"`
}

func (r configRequest) update() reconcile.ConfigUpdate {
	u := reconcile.ConfigUpdate{
		AutoSyncEnabled:     r.AutoSyncEnabled,
		DefaultPolicy:       r.DefaultPolicy,
		FieldPolicies:       r.FieldPolicies,
		MissingRecordPolicy: r.MissingRecordPolicy,
		FieldMapping:        r.FieldMapping,
		EnableLogging:       r.EnableLogging,
	}
	if r.SyncIntervalMs != nil {
		d := time.Duration(*r.SyncIntervalMs) * time.Millisecond
		u.SyncInterval = &d
	}
	if r.CallTimeoutMs != nil {
		d := time.Duration(*r.CallTimeoutMs) * time.Millisecond
		u.CallTimeout = &d
	}
	return u
}

// configResponse renders the active configuration with millisecond durations.
type configResponse struct {
	AutoSyncEnabled     bool                        `json:"autoSyncEnabled"`
	SyncIntervalMs      int64                       `json:"syncInterval"`
	DefaultPolicy       reconcile.Policy            `json:"defaultResolutionPolicy"`
	FieldPolicies       map[string]reconcile.Policy `json:"perFieldPolicyOverrides"`
	MissingRecordPolicy reconcile.Policy            `json:"missingRecordPolicy"`
	FieldMapping        []reconcile.FieldPair       `json:"fieldMapping"`
	EnableLogging       bool                        `json:"enableLogging"`
	CallTimeoutMs       int64                       `json:"callTimeout"`
	LoadMode            reconcile.LoadMode          `json:"loadMode"`
}

func newConfigResponse(c reconcile.Config) configResponse {
	return configResponse{
		AutoSyncEnabled:     c.AutoSyncEnabled,
		SyncIntervalMs:      c.SyncInterval.Milliseconds(),
		DefaultPolicy:       c.DefaultPolicy,
		FieldPolicies:       c.FieldPolicies,
		MissingRecordPolicy: c.MissingRecordPolicy,
		FieldMapping:        c.FieldMapping,
		EnableLogging:       c.EnableLogging,
		CallTimeoutMs:       c.CallTimeout.Milliseconds(),
		LoadMode:            c.LoadMode,
	}
}
