package reconcile

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"directory-sync/core/utils"
)

// fieldPriorities orders diffs inside a field mismatch. Unlisted fields get defaultPriority.
var fieldPriorities = map[string]int{
	"email":      100,
	"firstName":  90,
	"lastName":   90,
	"department": 80,
	"title":      70,
	"phone":      60,
	"mobile":     50,
}

const defaultPriority = 50

// PolicySet holds the resolution policies for every mapped field.
type PolicySet struct {
	Default Policy
	Fields  map[string]Policy
	Missing Policy
}

// For returns the policy for a mirror field.
func (p PolicySet) For(field string) Policy {
	if policy, ok := p.Fields[field]; ok {
		return policy
	}
	return p.Default
}

// Detector compares directory and mirror snapshots.
type Detector struct {
	mapper   *Mapper
	policies PolicySet
	now      func() time.Time
}

// NewDetector validates that every mapped field has a policy.
func NewDetector(mapper *Mapper, policies PolicySet) (*Detector, error) {
	if mapper == nil {
		return nil, &ConfigurationError{Field: "fieldMapping", Reason: "no field mapping configured"}
	}
	for field, p := range policies.Fields {
		if _, ok := mapper.DirectoryField(field); !ok {
			return nil, &ConfigurationError{Field: "perFieldPolicyOverrides", Reason: fmt.Sprintf("field %s is not mapped", field)}
		}
		if !p.Valid() {
			return nil, &ConfigurationError{Field: "perFieldPolicyOverrides", Reason: fmt.Sprintf("unknown policy %q for %s", p, field)}
		}
	}
	for _, pair := range mapper.Pairs() {
		if !policies.For(pair.Mirror).Valid() {
			return nil, &ConfigurationError{Field: "defaultResolutionPolicy", Reason: fmt.Sprintf("field %s has no resolution policy", pair.Mirror)}
		}
	}
	return &Detector{mapper: mapper, policies: policies, now: time.Now}, nil
}

// Detect returns one conflict per disagreeing key, sorted by key.
func (d *Detector) Detect(directory, mirror Snapshot) []Conflict {
	keys := make(map[string]struct{}, len(directory)+len(mirror))
	for k := range directory {
		keys[k] = struct{}{}
	}
	for k := range mirror {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	now := d.now()
	var conflicts []Conflict
	for _, key := range sorted {
		dirRecord, inDirectory := directory[key]
		mirrorRecord, inMirror := mirror[key]

		switch {
		case inDirectory && !inMirror:
			conflicts = append(conflicts, Conflict{
				Type:        ConflictMissingRecord,
				Key:         key,
				MissingSide: SideMirror,
				Directory:   dirRecord,
				DetectedAt:  now,
			})
		case inMirror && !inDirectory:
			if isInactive(mirrorRecord) {
				continue
			}
			conflicts = append(conflicts, Conflict{
				Type:        ConflictMissingRecord,
				Key:         key,
				MissingSide: SideDirectory,
				Mirror:      mirrorRecord,
				DetectedAt:  now,
			})
		default:
			if fields := d.Compare(dirRecord, mirrorRecord); len(fields) > 0 {
				conflicts = append(conflicts, Conflict{
					Type:       ConflictFieldMismatch,
					Key:        key,
					Fields:     fields,
					Directory:  dirRecord,
					Mirror:     mirrorRecord,
					DetectedAt: now,
				})
			}
		}
	}

	return conflicts
}

// Compare returns the differing mapped fields of two records, highest priority first.
func (d *Detector) Compare(directory, mirror Record) []FieldDiff {
	var diffs []FieldDiff
	for _, pair := range d.mapper.pairs {
		dv := directory[pair.Directory]
		mv := mirror[pair.Mirror]
		if valuesEqual(dv, mv) {
			continue
		}
		diffs = append(diffs, FieldDiff{
			Field:          pair.Mirror,
			DirectoryField: pair.Directory,
			DirectoryValue: dv,
			MirrorValue:    mv,
			Policy:         d.policies.For(pair.Mirror),
			Priority:       priorityOf(pair.Mirror),
		})
	}
	sort.SliceStable(diffs, func(i, j int) bool {
		return diffs[i].Priority > diffs[j].Priority
	})
	return diffs
}

// isInactive reports whether a mirror record was already deactivated.
func isInactive(r Record) bool {
	v, ok := r[ActiveField]
	return ok && v != nil && !utils.ToBool(v)
}

func priorityOf(field string) int {
	if p, ok := fieldPriorities[field]; ok {
		return p
	}
	return defaultPriority
}

// valuesEqual compares exactly. Absent and nil are equal to each other and
// differ from everything else, including the empty string.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) == reflect.TypeOf(b) {
		if reflect.TypeOf(a).Comparable() {
			return a == b
		}
		return reflect.DeepEqual(a, b)
	}
	// Numbers decoded from JSON come back as float64 while drivers return int64.
	return utils.ToString(a) == utils.ToString(b)
}
