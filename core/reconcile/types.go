package reconcile

import (
	"time"
)

// Record is a user record from either side, keyed by field name.
// Directory records use directory attribute names (givenName, sn, mail),
// mirror records use mirror field names (firstName, lastName, email).
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Snapshot is a keyed view of one side at a point in time.
type Snapshot map[string]Record

// Clone returns a copy of the snapshot with cloned records.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, r := range s {
		out[k] = r.Clone()
	}
	return out
}

// Side identifies one of the two reconciled stores.
type Side string

const (
	// SideDirectory is the authoritative directory service.
	SideDirectory Side = "directory"
	// SideMirror is the secondary business datastore.
	SideMirror Side = "mirror"
)

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideDirectory {
		return SideMirror
	}
	return SideDirectory
}

// Policy is the rule used to pick a winning value when the two sides disagree.
type Policy string

const (
	// PolicyKeepDirectory always takes the directory value.
	PolicyKeepDirectory Policy = "keep_directory"
	// PolicyKeepMirror always takes the mirror value.
	PolicyKeepMirror Policy = "keep_mirror"
	// PolicyKeepNewer takes the value from the side with the most recent change timestamp.
	PolicyKeepNewer Policy = "keep_newer"
	// PolicyManual is never applied automatically.
	PolicyManual Policy = "manual"
)

// Valid reports whether p is one of the known policies.
func (p Policy) Valid() bool {
	switch p {
	case PolicyKeepDirectory, PolicyKeepMirror, PolicyKeepNewer, PolicyManual:
		return true
	default:
		return false
	}
}

// ConflictType distinguishes the two kinds of disagreement.
type ConflictType string

const (
	// ConflictMissingRecord means a key exists on only one side.
	ConflictMissingRecord ConflictType = "missing_record"
	// ConflictFieldMismatch means a key exists on both sides with differing fields.
	ConflictFieldMismatch ConflictType = "field_mismatch"
)

// FieldDiff is a single differing field inside a field mismatch.
type FieldDiff struct {
	// Field is the mirror field name.
	Field string `json:"field" yaml:"field"`

	// DirectoryField is the directory attribute the field maps to.
	DirectoryField string `json:"directoryField" yaml:"directoryField"`

	// DirectoryValue is the directory value, nil when absent.
	DirectoryValue any `json:"directoryValue" yaml:"directoryValue"`

	// MirrorValue is the mirror value, nil when absent.
	MirrorValue any `json:"mirrorValue" yaml:"mirrorValue"`

	// Policy is the resolution policy configured for the field.
	Policy Policy `json:"policy" yaml:"policy"`

	// Priority orders diffs inside a conflict, highest first.
	Priority int `json:"priority" yaml:"priority"`
}

// Conflict is a detected disagreement for one record key.
// There is at most one Conflict per key per pass.
type Conflict struct {
	// Type is the conflict kind.
	Type ConflictType `json:"type" yaml:"type"`

	// Key is the record identifier shared by both sides.
	Key string `json:"key" yaml:"key"`

	// MissingSide names the absent side. Only set for missing records.
	MissingSide Side `json:"missingSide,omitempty" yaml:"missingSide,omitempty"`

	// Fields holds every differing field. Only set for field mismatches.
	Fields []FieldDiff `json:"fields,omitempty" yaml:"fields,omitempty"`

	// Directory is the directory record, nil if missing.
	Directory Record `json:"directory,omitempty" yaml:"directory,omitempty"`

	// Mirror is the mirror record, nil if missing.
	Mirror Record `json:"mirror,omitempty" yaml:"mirror,omitempty"`

	// DetectedAt is when the conflict was first detected.
	DetectedAt time.Time `json:"detectedAt" yaml:"detectedAt"`

	// Reason explains why the conflict is pending. Only set on pending conflicts.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// ActionType is the kind of mutation produced by resolution.
type ActionType string

const (
	// ActionCreateMirror creates a record on the mirror from the directory record.
	ActionCreateMirror ActionType = "create_mirror"
	// ActionUpdateMirror writes the directory-won fields to the mirror.
	ActionUpdateMirror ActionType = "update_mirror"
	// ActionDeactivateMirror marks a mirror-only record inactive.
	ActionDeactivateMirror ActionType = "deactivate_mirror"
	// ActionUpdateDirectory writes the mirror-won fields to the directory.
	ActionUpdateDirectory ActionType = "update_directory"
)

// Action is a single independently applicable mutation.
type Action struct {
	// Type specifies the mutation.
	Type ActionType `json:"type" yaml:"type"`

	// Key is the record identifier.
	Key string `json:"key" yaml:"key"`

	// Target is the side being written.
	Target Side `json:"target" yaml:"target"`

	// Fields holds the values to write, in the target side's field names.
	// For creations it holds the complete record.
	Fields Record `json:"fields" yaml:"fields"`

	// Reason explains why the action was planned.
	Reason string `json:"reason" yaml:"reason"`
}

// Resolution is the outcome of resolving one conflict.
type Resolution struct {
	// Key is the record identifier.
	Key string `json:"key" yaml:"key"`

	// Actions are the mutations to apply, one per losing side.
	Actions []Action `json:"actions" yaml:"actions"`
}

// RecordError is a per-record failure inside an otherwise successful pass.
type RecordError struct {
	Key    string     `json:"key" yaml:"key"`
	Action ActionType `json:"action" yaml:"action"`
	Error  string     `json:"error" yaml:"error"`
}

// Result summarizes a single pass.
type Result struct {
	// Synced counts records written on either side.
	Synced int `json:"syncedUsers" yaml:"syncedUsers"`

	// Created counts records created on the mirror.
	Created int `json:"createdUsers" yaml:"createdUsers"`

	// Updated counts records updated on either side.
	Updated int `json:"updatedUsers" yaml:"updatedUsers"`

	// Deactivated counts mirror records marked inactive.
	Deactivated int `json:"deactivatedUsers" yaml:"deactivatedUsers"`

	// Skipped counts actions that could not be applied because the target is read-only.
	Skipped int `json:"skippedActions" yaml:"skippedActions"`

	// ConflictsDetected counts conflicts that were new or changed in this pass.
	ConflictsDetected int `json:"conflictsDetected" yaml:"conflictsDetected"`

	// ConflictsResolved counts conflicts resolved automatically in this pass.
	ConflictsResolved int `json:"conflictsResolved" yaml:"conflictsResolved"`

	// ConflictsPending counts conflicts added to the pending registry in this pass.
	ConflictsPending int `json:"conflictsPending" yaml:"conflictsPending"`

	// Errors lists per-record failures.
	Errors []RecordError `json:"errors" yaml:"errors"`
}
