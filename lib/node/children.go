package node

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTree/lib/path"
)

// ChildrenOptions configures GetChildren.
type ChildrenOptions struct {
	// KeyFilter limits the children to the given keys (array indices in decimal form).
	KeyFilter []string
	// Tid is the transaction id to lock with (a new one if empty).
	Tid string
}

// ChildrenIterator enumerates the children of a node. It can be used once.
type ChildrenIterator struct {
	s    *Storage
	path string
	opts ChildrenOptions
	used atomic.Bool
}

// GetChildren returns an iterator over the direct children of p. Nothing is read
// before Each is called.
func (s *Storage) GetChildren(p string, opts ChildrenOptions) *ChildrenIterator {
	return &ChildrenIterator{s: s, path: p, opts: opts}
}

// Each calls fn for every child until fn returns false. Inline children are
// visited first (with their value), then the dedicated children (metadata only).
// canceled is true if fn stopped the enumeration.
func (it *ChildrenIterator) Each(ctx context.Context, fn func(child ChildInfo) bool) (canceled bool, err error) {
	if it.used.Swap(true) {
		return false, ErrIteratorUsed
	}
	defer observe(opChildren, time.Now(), &err)

	s := it.s
	lock, err := s.lock(ctx, it.path, tidOrNew(it.opts.Tid), false)
	if err != nil {
		return false, err
	}
	defer lock.release()

	target, exists, err := s.readNode(ctx, it.path)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, newError(RetCNotFound, it.path, "node does not exist")
	}

	var allowed map[string]bool
	if it.opts.KeyFilter != nil {
		allowed = make(map[string]bool, len(it.opts.KeyFilter))
		for _, k := range it.opts.KeyFilter {
			allowed[k] = true
		}
	}
	pass := func(key string) bool {
		return allowed == nil || allowed[key]
	}

	if target.typ.IsContainer() {
		isArray := target.typ == TypeArray
		keys := target.inlineKeys()
		sort.Slice(keys, func(i, j int) bool { return sortKey(keys[i], keys[j], isArray) })
		for _, k := range keys {
			if !pass(k) {
				continue
			}
			cp := childPath(it.path, k, isArray)
			v := cloneInline(target.body[k])
			t, _, _ := classify(cp, v)
			info := childInfo(cp)
			info.Type = t
			info.Inline = true
			info.Value = v
			if !fn(info) {
				return true, nil
			}
		}
	}

	dedicated, err := s.backend.ChildrenOf(ctx, it.path)
	if err != nil {
		return false, wrapError(it.path, "failed to list children", err)
	}
	sort.Slice(dedicated, func(i, j int) bool {
		a, _ := path.LastKey(dedicated[i])
		b, _ := path.LastKey(dedicated[j])
		return sortKey(a.String(), b.String(), a.IsIndex && b.IsIndex)
	})
	for _, cp := range dedicated {
		key, _ := path.LastKey(cp)
		if !pass(key.String()) {
			continue
		}
		meta, ok, err := s.readMeta(ctx, cp)
		if err != nil {
			return false, err
		}
		if !ok {
			continue
		}
		info := childInfo(cp)
		info.Type = meta.Type
		info.Revision = meta.Revision
		info.RevisionNr = meta.RevisionNr
		info.Created = millisToTime(meta.Created)
		info.Modified = millisToTime(meta.Modified)
		if !fn(info) {
			return true, nil
		}
	}
	return false, nil
}

func childInfo(cp string) ChildInfo {
	key, _ := path.LastKey(cp)
	return ChildInfo{
		Path:    cp,
		Key:     key.String(),
		Index:   key.Index,
		IsIndex: key.IsIndex,
	}
}
