package node

import (
	"context"
	"sort"

	"github.com/ValentinKolb/dTree/lib/backend"
	"github.com/ValentinKolb/dTree/lib/path"
)

// --------------------------------------------------------------------------
// Record I/O
// --------------------------------------------------------------------------

// readNode loads and decodes the record stored at exactly p.
func (s *Storage) readNode(ctx context.Context, p string) (*record, bool, error) {
	data, ok, err := s.backend.Get(ctx, p)
	if err != nil {
		return nil, false, wrapError(p, "failed to read record", err)
	}
	if !ok {
		return nil, false, nil
	}
	rec, err := s.decode(p, data)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

// readMeta loads only the metadata of the record at p, the body is not decoded.
func (s *Storage) readMeta(ctx context.Context, p string) (*RecordMeta, bool, error) {
	data, ok, err := s.backend.Get(ctx, p)
	if err != nil {
		return nil, false, wrapError(p, "failed to read record", err)
	}
	if !ok {
		return nil, false, nil
	}
	var meta RecordMeta
	if err := s.ser.DeserializeMeta(data, &meta); err != nil {
		return nil, false, &Error{Code: RetCDecodeError, Path: p, Msg: "failed to deserialize record", Err: err}
	}
	if !meta.Type.Valid() {
		return nil, false, newError(RetCDecodeError, p, "unknown record type %d", uint8(meta.Type))
	}
	return &meta, true, nil
}

func (s *Storage) decode(p string, data []byte) (*record, error) {
	var wire Record
	if err := s.ser.Deserialize(data, &wire); err != nil {
		return nil, &Error{Code: RetCDecodeError, Path: p, Msg: "failed to deserialize record", Err: err}
	}
	return decodeRecord(p, &wire)
}

// writeRecord encodes and stores the record at p.
func (s *Storage) writeRecord(ctx context.Context, p string, r *record) error {
	wire, err := encodeRecord(p, r)
	if err != nil {
		return err
	}
	data, err := s.ser.Serialize(wire)
	if err != nil {
		return wrapError(p, "failed to serialize record", err)
	}
	if err := s.backend.Set(ctx, p, data); err != nil {
		return wrapError(p, "failed to write record", err)
	}
	recordsWritten.Inc()
	return nil
}

// readInline loads the record at parentPath and returns the inline value of p in it.
func (s *Storage) readInline(ctx context.Context, parentPath, p string) (*record, any, bool, error) {
	parent, exists, err := s.readNode(ctx, parentPath)
	if err != nil || !exists || !parent.typ.IsContainer() {
		return nil, nil, false, err
	}
	key, _ := path.LastKey(p)
	if key.IsIndex != (parent.typ == TypeArray) {
		return nil, nil, false, nil
	}
	v, ok := parent.body[key.String()]
	if !ok {
		return nil, nil, false, nil
	}
	return parent, cloneInline(v), true, nil
}

// cloneInline copies the mutable inline values.
func cloneInline(v any) any {
	switch val := v.(type) {
	case []byte:
		return append([]byte(nil), val...)
	case map[string]any:
		return map[string]any{}
	case []any:
		return []any{}
	default:
		return v
	}
}

// --------------------------------------------------------------------------
// Node Reader
// --------------------------------------------------------------------------

// container is an object or array under reconstruction. Entries hold native
// values or nested containers.
type container struct {
	isArray bool
	entries map[string]any
}

// getNode reconstructs the value at p. The caller holds a shared lock on p, which
// is moved to the parent if p is stored inline.
func (s *Storage) getNode(ctx context.Context, p string, lock *heldLock, opts GetOptions) (*Node, error) {
	target, exists, err := s.readNode(ctx, p)
	if err != nil {
		return nil, err
	}
	if !exists {
		if path.IsRoot(p) {
			return nil, newError(RetCNotFound, p, "root record does not exist")
		}
		if err := lock.moveToParent(ctx); err != nil {
			return nil, err
		}
		parent, v, ok, err := s.readInline(ctx, path.Parent(p), p)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newError(RetCNotFound, p, "node does not exist")
		}
		t, _, _ := classify(p, v)
		return &Node{
			Path:       p,
			Type:       t,
			Value:      v,
			Revision:   parent.revision,
			RevisionNr: parent.revisionNr,
			Created:    millisToTime(parent.created),
			Modified:   millisToTime(parent.modified),
		}, nil
	}

	n := &Node{
		Path:       p,
		Type:       target.typ,
		Revision:   target.revision,
		RevisionNr: target.revisionNr,
		Created:    millisToTime(target.created),
		Modified:   millisToTime(target.modified),
	}

	descendants, err := s.backend.DescendantsOf(ctx, p)
	if err != nil {
		return nil, wrapError(p, "failed to list descendants", err)
	}

	if !target.typ.IsContainer() {
		if len(descendants) > 0 {
			return nil, newError(RetCConsistencyViolation, p, "record of type %s has %d dedicated descendants", target.typ, len(descendants))
		}
		n.Value = cloneInline(target.value)
		return n, nil
	}

	filter := newPathFilter(opts.Include, opts.Exclude)

	// path level filtering
	load := make([]string, 0, len(descendants))
	rels := make(map[string][]string, len(descendants))
	for _, d := range descendants {
		rel := relativeSegments(p, d)
		if len(rel) == 0 {
			continue
		}
		if opts.NoChildObjects && len(rel) > 1 {
			continue
		}
		if !filter.keep(rel) {
			continue
		}
		load = append(load, d)
		rels[d] = rel
	}

	root := &container{isArray: target.typ == TypeArray, entries: s.filterBody(target, nil, filter)}

	if len(load) > 0 {
		raw, err := backend.GetMultiple(ctx, s.backend, load)
		if err != nil {
			return nil, wrapError(p, "failed to load descendants", err)
		}

		// shallow records first, so containers exist before their dedicated children are spliced
		sort.Slice(load, func(i, j int) bool {
			if len(rels[load[i]]) != len(rels[load[j]]) {
				return len(rels[load[i]]) < len(rels[load[j]])
			}
			return load[i] < load[j]
		})

		for _, d := range load {
			data, ok := raw[d]
			if !ok {
				continue // removed after listing
			}
			rec, err := s.decode(d, data)
			if err != nil {
				return nil, err
			}
			if opts.NoChildObjects && rec.typ.IsContainer() {
				continue
			}
			if err := splice(root, d, rels[d], s.recordValue(rec, rels[d], filter)); err != nil {
				return nil, err
			}
		}
	}

	if opts.NoChildObjects {
		for k, v := range root.entries {
			if isEmptyEntry(v) {
				delete(root.entries, k)
			}
		}
	}
	filter.excludeTree(root, nil)

	v, err := root.toValue(p)
	if err != nil {
		return nil, err
	}
	n.Value = v
	return n, nil
}

// filterBody copies the inline children of a container record that pass the include filter.
func (s *Storage) filterBody(rec *record, rel []string, filter *pathFilter) map[string]any {
	entries := make(map[string]any, len(rec.body))
	for k, v := range rec.body {
		if filter.included(append(rel[:len(rel):len(rel)], k)) {
			entries[k] = cloneInline(v)
		}
	}
	return entries
}

// recordValue returns the value a descendant record contributes to the tree.
func (s *Storage) recordValue(rec *record, rel []string, filter *pathFilter) any {
	if rec.typ.IsContainer() {
		return &container{isArray: rec.typ == TypeArray, entries: s.filterBody(rec, rel, filter)}
	}
	return cloneInline(rec.value)
}

// splice inserts the value of the descendant record at d into the tree. Missing
// intermediate containers are created, arrays when the next key is an index.
func splice(root *container, d string, rel []string, v any) error {
	keys := path.Keys(d)
	keys = keys[len(keys)-len(rel):]

	cur := root
	for i, k := range keys[:len(keys)-1] {
		entry, ok := cur.entries[k.String()]
		if !ok {
			next := &container{isArray: keys[i+1].IsIndex, entries: map[string]any{}}
			cur.entries[k.String()] = next
			cur = next
			continue
		}
		next, ok := entry.(*container)
		if !ok {
			return newError(RetCConsistencyViolation, d, "ancestor key %q is stored inline", k.String())
		}
		cur = next
	}

	last := keys[len(keys)-1].String()
	if _, ok := cur.entries[last]; ok {
		return newError(RetCConsistencyViolation, d, "key %q is stored inline and as dedicated record", last)
	}
	cur.entries[last] = v
	return nil
}

// toValue converts the tree into native maps and slices.
func (c *container) toValue(p string) (any, error) {
	if !c.isArray {
		m := make(map[string]any, len(c.entries))
		for k, v := range c.entries {
			native, err := entryValue(childPath(p, k, false), v)
			if err != nil {
				return nil, err
			}
			m[k] = native
		}
		return m, nil
	}

	size := 0
	indices := make(map[int]any, len(c.entries))
	for k, v := range c.entries {
		key, err := path.BodyKey(k, true)
		if err != nil {
			return nil, &Error{Code: RetCDecodeError, Path: p, Msg: "array with non-numeric key", Err: err}
		}
		native, err := entryValue(path.Child(p, key), v)
		if err != nil {
			return nil, err
		}
		indices[key.Index] = native
		if key.Index+1 > size {
			size = key.Index + 1
		}
	}
	arr := make([]any, size)
	for i, v := range indices {
		arr[i] = v
	}
	return arr, nil
}

func entryValue(p string, v any) (any, error) {
	if c, ok := v.(*container); ok {
		return c.toValue(p)
	}
	return v, nil
}

// isEmptyEntry reports whether a tree entry is an empty object or array.
func isEmptyEntry(v any) bool {
	switch val := v.(type) {
	case *container:
		return len(val.entries) == 0
	case map[string]any:
		return len(val) == 0
	case []any:
		return len(val) == 0
	default:
		return false
	}
}
