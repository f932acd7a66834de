package node

import (
	"time"

	"github.com/ValentinKolb/dTree/lib/path"
)

// Record is the unit persisted at one path, in its wire form. For objects and
// arrays Value holds the inline children only (arrays are keyed by decimal index),
// for all other types it holds the scalar in its wire representation.
type Record struct {
	Type       ValueType `json:"type" msgpack:"type"`
	Value      any       `json:"value" msgpack:"value"`
	Revision   string    `json:"revision" msgpack:"revision"`
	RevisionNr int64     `json:"revision_nr" msgpack:"revision_nr"`
	Created    int64     `json:"created" msgpack:"created"`
	Modified   int64     `json:"modified" msgpack:"modified"`
}

// RecordMeta is a Record without its value. Decoding it skips the body.
type RecordMeta struct {
	Type       ValueType `json:"type" msgpack:"type"`
	Revision   string    `json:"revision" msgpack:"revision"`
	RevisionNr int64     `json:"revision_nr" msgpack:"revision_nr"`
	Created    int64     `json:"created" msgpack:"created"`
	Modified   int64     `json:"modified" msgpack:"modified"`
}

// record is a decoded Record. For containers body holds the native inline
// children, for scalars value holds the native value.
type record struct {
	typ        ValueType
	body       map[string]any
	value      any
	revision   string
	revisionNr int64
	created    int64
	modified   int64
}

// inlineKeys returns the keys of the inline children (unordered).
func (r *record) inlineKeys() []string {
	keys := make([]string, 0, len(r.body))
	for k := range r.body {
		keys = append(keys, k)
	}
	return keys
}

// Node is the result of a read: the reconstructed value at a path plus the
// metadata of the record that holds it.
type Node struct {
	Path       string    `json:"path"`
	Type       ValueType `json:"type"`
	Value      any       `json:"value"`
	Revision   string    `json:"revision"`
	RevisionNr int64     `json:"revision_nr"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
}

// NodeInfo describes where and how a path is stored.
type NodeInfo struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
	// Address is the path of the record owning the value. It equals Path for
	// dedicated records and is the parent path for inline values.
	Address    string    `json:"address"`
	Inline     bool      `json:"inline"`
	Type       ValueType `json:"type,omitempty"`
	Value      any       `json:"value,omitempty"` // only set for inline values
	Revision   string    `json:"revision,omitempty"`
	RevisionNr int64     `json:"revision_nr,omitempty"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
}

// ChildInfo describes one child yielded by the children iterator. Inline children
// carry their Value, dedicated children carry the metadata of their record.
type ChildInfo struct {
	Path       string    `json:"path"`
	Key        string    `json:"key"`
	Index      int       `json:"index"`
	IsIndex    bool      `json:"is_index"`
	Type       ValueType `json:"type"`
	Inline     bool      `json:"inline"`
	Value      any       `json:"value,omitempty"`
	Revision   string    `json:"revision,omitempty"`
	RevisionNr int64     `json:"revision_nr,omitempty"`
	Created    time.Time `json:"created"`
	Modified   time.Time `json:"modified"`
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// childPath returns the path of the body key k of the record at p.
// Keys of array records are decimal indices.
func childPath(p string, k string, isArray bool) string {
	if isArray {
		if key, err := path.BodyKey(k, true); err == nil {
			return path.Child(p, key)
		}
	}
	return path.ChildName(p, k)
}
