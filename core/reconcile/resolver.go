package reconcile

import (
	"strconv"
	"strings"
	"time"
)

// Fields written when a mirror record is deactivated.
const (
	ActiveField         = "active"
	InactiveReasonField = "inactiveReason"
	InactiveDateField   = "inactiveDate"

	inactiveReason = "Not found in directory"
)

// mirrorFallbackTimestamp is consulted when the configured mirror timestamp field is absent.
const mirrorFallbackTimestamp = "lastModified"

// Resolver turns conflicts into actions.
type Resolver struct {
	mapper        *Mapper
	policies      PolicySet
	directoryTime string
	mirrorTime    string
	now           func() time.Time
}

// NewResolver creates a resolver. Timestamp fields are used by keep_newer.
func NewResolver(mapper *Mapper, policies PolicySet, directoryTimestamp, mirrorTimestamp string) *Resolver {
	return &Resolver{
		mapper:        mapper,
		policies:      policies,
		directoryTime: directoryTimestamp,
		mirrorTime:    mirrorTimestamp,
		now:           time.Now,
	}
}

// AutoResolve returns the actions for a conflict, or nil when it needs a manual decision.
func (r *Resolver) AutoResolve(c Conflict) *Resolution {
	switch c.Type {
	case ConflictMissingRecord:
		if r.policies.Missing == PolicyManual {
			return nil
		}
		return r.resolveMissing(c, false)
	case ConflictFieldMismatch:
		for _, f := range c.Fields {
			if f.Policy == PolicyManual {
				return nil
			}
		}
		return r.resolveMismatch(c)
	default:
		return nil
	}
}

// resolveMissing creates the record on the mirror or deactivates the mirror-only record.
func (r *Resolver) resolveMissing(c Conflict, manual bool) *Resolution {
	reason := "record missing from mirror"
	if manual {
		reason = "manual decision"
	}
	if c.MissingSide == SideMirror {
		return &Resolution{Key: c.Key, Actions: []Action{{
			Type:   ActionCreateMirror,
			Key:    c.Key,
			Target: SideMirror,
			Fields: r.mapper.ToMirror(c.Directory),
			Reason: reason,
		}}}
	}
	if !manual {
		reason = "record missing from directory"
	}
	return &Resolution{Key: c.Key, Actions: []Action{deactivation(c.Key, r.now(), reason)}}
}

func deactivation(key string, at time.Time, reason string) Action {
	return Action{
		Type:   ActionDeactivateMirror,
		Key:    key,
		Target: SideMirror,
		Fields: Record{
			ActiveField:         false,
			InactiveReasonField: inactiveReason,
			InactiveDateField:   at.UTC().Format(time.RFC3339),
		},
		Reason: reason,
	}
}

// resolveMismatch picks a winner per field and groups the losers' writes.
func (r *Resolver) resolveMismatch(c Conflict) *Resolution {
	toMirror := Record{}
	toDirectory := Record{}

	for _, f := range c.Fields {
		if r.Winner(f, c.Directory, c.Mirror) == SideDirectory {
			toMirror[f.Field] = f.DirectoryValue
		} else {
			toDirectory[f.DirectoryField] = f.MirrorValue
		}
	}

	return r.resolution(c.Key, toMirror, toDirectory, "policy")
}

func (r *Resolver) resolution(key string, toMirror, toDirectory Record, reason string) *Resolution {
	res := &Resolution{Key: key}
	if len(toMirror) > 0 {
		res.Actions = append(res.Actions, Action{
			Type:   ActionUpdateMirror,
			Key:    key,
			Target: SideMirror,
			Fields: toMirror,
			Reason: reason,
		})
	}
	if len(toDirectory) > 0 {
		res.Actions = append(res.Actions, Action{
			Type:   ActionUpdateDirectory,
			Key:    key,
			Target: SideDirectory,
			Fields: toDirectory,
			Reason: reason,
		})
	}
	return res
}

// Winner returns the side whose value wins for a single field diff.
func (r *Resolver) Winner(f FieldDiff, directory, mirror Record) Side {
	switch f.Policy {
	case PolicyKeepMirror:
		return SideMirror
	case PolicyKeepNewer:
		return r.newer(directory, mirror)
	default:
		return SideDirectory
	}
}

// newer compares change timestamps. Ties and unparseable timestamps favor the directory.
func (r *Resolver) newer(directory, mirror Record) Side {
	dirTime, ok := ParseTimestamp(directory[r.directoryTime])
	if !ok {
		return SideDirectory
	}
	mirrorValue, present := mirror[r.mirrorTime]
	if !present || mirrorValue == nil {
		mirrorValue = mirror[mirrorFallbackTimestamp]
	}
	mirrorTime, ok := ParseTimestamp(mirrorValue)
	if !ok {
		return SideDirectory
	}
	if mirrorTime.After(dirTime) {
		return SideMirror
	}
	return SideDirectory
}

// Decision is a manual resolution for a pending conflict.
type Decision struct {
	// Fields maps mirror field names to keep_directory, keep_mirror or custom. Field mismatches only.
	Fields map[string]FieldDecision `json:"fields,omitempty"`

	// Action is create, deactivate or skip. Missing records only.
	Action string `json:"action,omitempty"`
}

// FieldDecision is the manual choice for one field.
type FieldDecision struct {
	Choice string `json:"choice"`
	Value  any    `json:"value,omitempty"`
}

// Manual decision choices.
const (
	ChoiceKeepDirectory = "keep_directory"
	ChoiceKeepMirror    = "keep_mirror"
	ChoiceCustom        = "custom"

	DecisionCreate     = "create"
	DecisionDeactivate = "deactivate"
	DecisionSkip       = "skip"
)

// Decide turns a manual decision into a resolution. Fields without a decision are left untouched.
func (r *Resolver) Decide(c Conflict, d Decision) (*Resolution, error) {
	if c.Type == ConflictMissingRecord {
		switch d.Action {
		case DecisionSkip:
			return &Resolution{Key: c.Key}, nil
		case DecisionCreate:
			if c.MissingSide != SideMirror {
				return nil, &ConfigurationError{Field: "action", Reason: "records cannot be created in the directory"}
			}
			return r.resolveMissing(c, true), nil
		case DecisionDeactivate:
			if c.MissingSide != SideDirectory {
				return nil, &ConfigurationError{Field: "action", Reason: "only mirror-only records can be deactivated"}
			}
			return r.resolveMissing(c, true), nil
		default:
			return nil, &ConfigurationError{Field: "action", Reason: "unknown action " + strconv.Quote(d.Action)}
		}
	}

	toMirror := Record{}
	toDirectory := Record{}
	for _, f := range c.Fields {
		fd, ok := d.Fields[f.Field]
		if !ok {
			continue
		}
		switch fd.Choice {
		case ChoiceKeepDirectory:
			toMirror[f.Field] = f.DirectoryValue
		case ChoiceKeepMirror:
			toDirectory[f.DirectoryField] = f.MirrorValue
		case ChoiceCustom:
			toMirror[f.Field] = fd.Value
			toDirectory[f.DirectoryField] = fd.Value
		default:
			return nil, &ConfigurationError{Field: f.Field, Reason: "unknown choice " + strconv.Quote(fd.Choice)}
		}
	}
	return r.resolution(c.Key, toMirror, toDirectory, "manual decision"), nil
}

// generalizedTime is the directory's generalized time layout without fraction or zone.
const generalizedTime = "20060102150405"

// ParseTimestamp reads time.Time, RFC 3339 strings, directory generalized time and unix milliseconds.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return *t, true
	case int64:
		return time.UnixMilli(t), true
	case int:
		return time.UnixMilli(int64(t)), true
	case float64:
		return time.UnixMilli(int64(t)), true
	case string:
		return parseTimestampString(t)
	case *string:
		if t == nil {
			return time.Time{}, false
		}
		return parseTimestampString(*t)
	default:
		return time.Time{}, false
	}
}

func parseTimestampString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if len(s) >= len(generalizedTime) {
		if t, err := time.Parse(generalizedTime, s[:len(generalizedTime)]); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}
