package reconcile

import (
	"fmt"

	"directory-sync/core/utils"
)

// SourceField is the provenance marker added to records produced by ToMirror.
const SourceField = "source"

// Mapper translates records between directory and mirror field names.
type Mapper struct {
	pairs       []FieldPair
	toDirectory map[string]string
	toMirror    map[string]string
	dirKeys     []string
	mirrorKeys  []string
}

// NewMapper builds a mapper from an ordered field mapping.
// The key field lists are tried in order when extracting a record's key.
func NewMapper(pairs []FieldPair, directoryKeys, mirrorKeys []string) (*Mapper, error) {
	if len(pairs) == 0 {
		return nil, &ConfigurationError{Field: "fieldMapping", Reason: "no field mapping configured"}
	}

	m := &Mapper{
		pairs:       make([]FieldPair, len(pairs)),
		toDirectory: make(map[string]string, len(pairs)),
		toMirror:    make(map[string]string, len(pairs)),
		dirKeys:     directoryKeys,
		mirrorKeys:  mirrorKeys,
	}
	copy(m.pairs, pairs)

	for _, p := range pairs {
		if p.Mirror == "" || p.Directory == "" {
			return nil, &ConfigurationError{Field: "fieldMapping", Reason: "empty field name"}
		}
		if _, dup := m.toDirectory[p.Mirror]; dup {
			return nil, &ConfigurationError{Field: "fieldMapping", Reason: fmt.Sprintf("duplicate mirror field %q", p.Mirror)}
		}
		if _, dup := m.toMirror[p.Directory]; dup {
			return nil, &ConfigurationError{Field: "fieldMapping", Reason: fmt.Sprintf("duplicate directory field %q", p.Directory)}
		}
		m.toDirectory[p.Mirror] = p.Directory
		m.toMirror[p.Directory] = p.Mirror
	}

	return m, nil
}

// Pairs returns the mapping in configuration order.
func (m *Mapper) Pairs() []FieldPair {
	out := make([]FieldPair, len(m.pairs))
	copy(out, m.pairs)
	return out
}

// DirectoryField returns the directory attribute for a mirror field.
func (m *Mapper) DirectoryField(mirrorField string) (string, bool) {
	f, ok := m.toDirectory[mirrorField]
	return f, ok
}

// ToMirror translates a directory record to mirror field names.
// Unmapped attributes are dropped, absent attributes stay absent.
// The result carries the record key and a provenance marker.
func (m *Mapper) ToMirror(directory Record) Record {
	if directory == nil {
		return nil
	}
	out := make(Record, len(m.pairs)+2)
	for _, p := range m.pairs {
		if v, ok := directory[p.Directory]; ok {
			out[p.Mirror] = v
		}
	}
	if key := m.DirectoryKey(directory); key != "" && len(m.mirrorKeys) > 0 {
		if _, ok := out[m.mirrorKeys[0]]; !ok {
			out[m.mirrorKeys[0]] = key
		}
	}
	out[SourceField] = string(SideDirectory)
	return out
}

// ToDirectory translates a mirror record to directory attribute names.
func (m *Mapper) ToDirectory(mirror Record) Record {
	if mirror == nil {
		return nil
	}
	out := make(Record, len(m.pairs))
	for _, p := range m.pairs {
		if v, ok := mirror[p.Mirror]; ok {
			out[p.Directory] = v
		}
	}
	return out
}

// DirectoryKey returns the key of a directory record, or "" if none of the key fields is set.
func (m *Mapper) DirectoryKey(r Record) string {
	return firstKey(r, m.dirKeys)
}

// MirrorKey returns the key of a mirror record, or "" if none of the key fields is set.
func (m *Mapper) MirrorKey(r Record) string {
	return firstKey(r, m.mirrorKeys)
}

func firstKey(r Record, fields []string) string {
	for _, f := range fields {
		v, ok := r[f]
		if !ok || v == nil {
			continue
		}
		if s := utils.ToString(v); s != "" {
			return s
		}
	}
	return ""
}

// DirectorySnapshot indexes directory records by key. Records without a key are dropped.
func (m *Mapper) DirectorySnapshot(records []Record) Snapshot {
	return index(records, m.DirectoryKey)
}

// MirrorSnapshot indexes mirror records by key. Records without a key are dropped.
func (m *Mapper) MirrorSnapshot(records []Record) Snapshot {
	return index(records, m.MirrorKey)
}

func index(records []Record, key func(Record) string) Snapshot {
	out := make(Snapshot, len(records))
	for _, r := range records {
		if k := key(r); k != "" {
			out[k] = r
		}
	}
	return out
}
