package node

import (
	"context"
	"errors"
	"time"

	"github.com/ValentinKolb/dTree/lib/backend"
	"github.com/ValentinKolb/dTree/lib/lockmgr"
	"github.com/ValentinKolb/dTree/lib/path"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("node")

// --------------------------------------------------------------------------
// Storage
// --------------------------------------------------------------------------

// Storage maps a JSON-like document tree onto a flat key-value backend.
// Every path is either stored inline in its parent's record or as its own
// dedicated record, depending on the size of its value.
//
// Thread-safety: all methods may be called concurrently. Every operation holds
// a lock on the path it works on for its whole duration.
type Storage struct {
	cfg     Config
	backend backend.IBackend
	locks   lockmgr.ILockManager
	ser     IRecordSerializer
}

// Open creates a Storage on top of the given backend. The root record is
// created if it does not exist yet.
func Open(ctx context.Context, b backend.IBackend, cfg Config) (*Storage, error) {
	if cfg.Serializer == nil {
		cfg.Serializer = NewJSONSerializer()
	}
	if cfg.MaxInlineValueSize <= 0 {
		cfg.MaxInlineValueSize = DefaultConfig().MaxInlineValueSize
	}
	s := &Storage{
		cfg:     cfg,
		backend: b,
		locks:   lockmgr.NewLockManager(),
		ser:     cfg.Serializer,
	}

	_, exists, err := s.readNode(ctx, "")
	if err != nil {
		return nil, err
	}
	if !exists {
		log.Infof("creating root record")
		if err := s.writeNode(ctx, "", map[string]any{}, writeOptions{}); err != nil {
			return nil, err
		}
	}
	log.Infof("storage opened (max inline size %d, serializer %s)", cfg.MaxInlineValueSize, s.ser.Name())
	return s, nil
}

// Close tears down the lock table and closes the backend.
func (s *Storage) Close() error {
	lockErr := s.locks.Close()
	if err := s.backend.Close(); err != nil {
		return err
	}
	return lockErr
}

// Locks returns the lock manager of this storage.
func (s *Storage) Locks() lockmgr.ILockManager {
	return s.locks
}

// Config returns the configuration the storage was opened with.
func (s *Storage) Config() Config {
	return s.cfg
}

// --------------------------------------------------------------------------
// Options
// --------------------------------------------------------------------------

// GetOptions configures GetNode.
type GetOptions struct {
	// Include limits the result to the given paths (relative to the read path).
	// "*" matches a single path segment, "[*]" any array index.
	Include []string
	// Exclude removes the given paths (relative to the read path) from the result.
	Exclude []string
	// NoChildObjects only returns the scalar children of the read path.
	NoChildObjects bool
	// Tid is the transaction id to lock with (a new one if empty).
	Tid string
}

// SetOptions configures SetNode.
type SetOptions struct {
	// AssertRevision makes the write fail if the current revision differs.
	AssertRevision string
	// Tid is the transaction id to lock with (a new one if empty).
	Tid string
}

// TxOptions carries the transaction id of operations without further options.
type TxOptions struct {
	Tid string
}

func tidOrNew(tid string) string {
	if tid == "" {
		return uuid.NewString()
	}
	return tid
}

// --------------------------------------------------------------------------
// Locking
// --------------------------------------------------------------------------

// heldLock owns the lock guard of one operation. The guard changes when the
// operation moves to the parent path.
type heldLock struct {
	l *lockmgr.Lock
}

func (s *Storage) lock(ctx context.Context, p, tid string, exclusive bool) (*heldLock, error) {
	l, err := s.locks.Lock(ctx, p, tid, exclusive)
	if err != nil {
		return nil, wrapError(p, "failed to acquire lock", err)
	}
	return &heldLock{l: l}, nil
}

func (h *heldLock) moveToParent(ctx context.Context) error {
	p := h.l.Path()
	moved, err := h.l.MoveToParent(ctx)
	if err != nil {
		h.l = nil
		return wrapError(p, "failed to move lock to parent", err)
	}
	h.l = moved
	return nil
}

func (h *heldLock) release() {
	if h.l == nil {
		return
	}
	if err := h.l.Release(); err != nil && !errors.Is(err, lockmgr.ErrReleased) {
		log.Warningf("failed to release lock on %q: %v", h.l.Path(), err)
	}
	h.l = nil
}

// --------------------------------------------------------------------------
// Public Node Operations
// --------------------------------------------------------------------------

// GetNode reconstructs the full value at p, merging all dedicated descendant
// records into it.
func (s *Storage) GetNode(ctx context.Context, p string, opts GetOptions) (node *Node, err error) {
	defer observe(opGet, time.Now(), &err)

	lock, err := s.lock(ctx, p, tidOrNew(opts.Tid), false)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	return s.getNode(ctx, p, lock, opts)
}

// GetNodeValue is a shortcut for GetNode that returns the value only.
func (s *Storage) GetNodeValue(ctx context.Context, p string, opts GetOptions) (any, error) {
	n, err := s.GetNode(ctx, p, opts)
	if err != nil {
		return nil, err
	}
	return n.Value, nil
}

// GetNodeInfo returns whether p exists and where it is stored.
func (s *Storage) GetNodeInfo(ctx context.Context, p string, opts TxOptions) (info *NodeInfo, err error) {
	defer observe(opInfo, time.Now(), &err)

	lock, err := s.lock(ctx, p, tidOrNew(opts.Tid), false)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	return s.nodeInfo(ctx, p, lock.moveToParent)
}

// nodeInfo probes p and, if p has no record, its parent record. beforeParent is
// called before the parent is read, nil if the caller's lock already covers it.
func (s *Storage) nodeInfo(ctx context.Context, p string, beforeParent func(context.Context) error) (*NodeInfo, error) {
	rec, exists, err := s.readNode(ctx, p)
	if err != nil {
		return nil, err
	}
	if exists {
		return &NodeInfo{
			Path:       p,
			Exists:     true,
			Address:    p,
			Type:       rec.typ,
			Revision:   rec.revision,
			RevisionNr: rec.revisionNr,
			Created:    millisToTime(rec.created),
			Modified:   millisToTime(rec.modified),
		}, nil
	}

	info := &NodeInfo{Path: p}
	if path.IsRoot(p) {
		return info, nil
	}
	if beforeParent != nil {
		if err := beforeParent(ctx); err != nil {
			return nil, err
		}
	}
	parentPath := path.Parent(p)
	parent, v, ok, err := s.readInline(ctx, parentPath, p)
	if err != nil || !ok {
		return info, err
	}
	t, _, _ := classify(p, v)
	info.Exists = true
	info.Inline = true
	info.Address = parentPath
	info.Type = t
	info.Value = v
	info.Revision = parent.revision
	info.RevisionNr = parent.revisionNr
	info.Created = millisToTime(parent.created)
	info.Modified = millisToTime(parent.modified)
	return info, nil
}

// SetNode stores value at p. Other values of the tree are not changed.
// Setting nil removes the node. At the root only objects are accepted.
func (s *Storage) SetNode(ctx context.Context, p string, value any, opts SetOptions) (err error) {
	defer observe(opSet, time.Now(), &err)
	if err := checkKeys(p, value); err != nil {
		return err
	}
	tid := tidOrNew(opts.Tid)

	if path.IsRoot(p) {
		if _, ok := value.(map[string]any); !ok {
			return newError(RetCInvalidValue, p, "invalid value for root node: %T", value)
		}
		lock, err := s.lock(ctx, p, tid, true)
		if err != nil {
			return err
		}
		defer lock.release()
		return s.writeNode(ctx, p, value, writeOptions{merge: false})
	}

	key, _ := path.LastKey(p)
	parentPath := path.Parent(p)

	if opts.AssertRevision == "" {
		return s.updateNode(ctx, parentPath, map[string]any{key.String(): value}, tid)
	}

	// the parent lock covers p and the parent record that may be rewritten
	lock, err := s.lock(ctx, parentPath, tid, true)
	if err != nil {
		return err
	}
	defer lock.release()

	info, err := s.nodeInfo(ctx, p, nil)
	if err != nil {
		return err
	}
	if info.Revision != opts.AssertRevision {
		return newError(RetCRevisionMismatch, p, "revision %q does not match requested revision %q", info.Revision, opts.AssertRevision)
	}
	if info.Exists && !info.Inline && value != nil {
		t, v, err := classify(p, value)
		if err != nil {
			return err
		}
		if !s.fitsInline(t, v) {
			return s.writeNode(ctx, p, v, writeOptions{merge: false})
		}
	}
	return s.updateNode(ctx, parentPath, map[string]any{key.String(): value}, tid)
}

// UpdateNode merges updates into the object at p. Keys set to nil are removed,
// all other keys of p are left untouched.
func (s *Storage) UpdateNode(ctx context.Context, p string, updates map[string]any, opts TxOptions) (err error) {
	defer observe(opUpdate, time.Now(), &err)
	if err := checkKeys(p, updates); err != nil {
		return err
	}
	return s.updateNode(ctx, p, updates, tidOrNew(opts.Tid))
}

// updateNode walks up from p until it finds the record the updates belong to.
// Only one lock is held at a time, it only moves up through MoveToParent.
func (s *Storage) updateNode(ctx context.Context, p string, updates map[string]any, tid string) error {
	if updates == nil {
		return newError(RetCInvalidValue, p, "updates must be an object")
	}
	lock, err := s.lock(ctx, p, tid, true)
	if err != nil {
		return err
	}
	defer lock.release()

	cur := p
	for {
		info, err := s.nodeInfo(ctx, cur, nil)
		if err != nil {
			return err
		}
		if info.Exists && !info.Inline {
			return s.writeNode(ctx, cur, updates, writeOptions{merge: true})
		}
		if lock.l.Path() == cur {
			// the value lives in (or belongs to) the parent record, check again
			// once the parent is locked
			if err := lock.moveToParent(ctx); err != nil {
				return err
			}
			continue
		}

		key, _ := path.LastKey(cur)
		wrapped := map[string]any{key.String(): withoutNil(updates)}
		if info.Exists {
			// stored inline, the value is replaced in the parent record
			return s.writeNode(ctx, info.Address, wrapped, writeOptions{merge: true})
		}
		// neither cur nor its parent record know the node, update the parent instead
		cur, updates = path.Parent(cur), wrapped
	}
}

// RemoveNode removes p and all its children. Removing the root is not allowed,
// removing a node that does not exist is a no-op.
func (s *Storage) RemoveNode(ctx context.Context, p string, opts TxOptions) (err error) {
	defer observe(opRemove, time.Now(), &err)

	if path.IsRoot(p) {
		return newError(RetCInvalidValue, p, "the root node can not be removed")
	}
	tid := tidOrNew(opts.Tid)
	parentPath := path.Parent(p)
	lock, err := s.lock(ctx, parentPath, tid, true)
	if err != nil {
		return err
	}
	defer lock.release()

	info, err := s.nodeInfo(ctx, p, nil)
	if err != nil {
		return err
	}
	if !info.Exists {
		return nil
	}
	key, _ := path.LastKey(p)
	return s.updateNode(ctx, parentPath, map[string]any{key.String(): nil}, tid)
}

// withoutNil returns a copy of m without the nil values.
func withoutNil(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// checkKeys rejects object keys that can not be mapped to a path segment before
// anything is written. Nested values are checked too.
func checkKeys(p string, v any) error {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if !path.ValidName(k) {
				return newError(RetCInvalidValue, p, "invalid key %q (keys must not be empty or contain '/', '[' or ']')", k)
			}
			if err := checkKeys(path.ChildName(p, k), child); err != nil {
				return err
			}
		}
	case []any:
		for i, item := range val {
			if err := checkKeys(path.Child(p, path.IndexKey(i)), item); err != nil {
				return err
			}
		}
	}
	return nil
}
