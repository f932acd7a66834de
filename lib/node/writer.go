package node

import (
	"context"
	"strconv"
	"time"

	"github.com/ValentinKolb/dTree/lib/path"
	"github.com/maruel/ksid"
	"golang.org/x/sync/errgroup"
)

// maxTaskConcurrency limits the number of child writes and deletes of one
// writeNode call that run at the same time.
const maxTaskConcurrency = 16

type writeOptions struct {
	// merge keeps all keys of the current record that are not part of the value
	merge bool
	// revision is used for the record (and all new child records) instead of a new one
	revision string
}

// writeTask writes a value as dedicated record.
type writeTask struct {
	path  string
	value any
	opts  writeOptions
}

// deleteTask removes a dedicated record and its descendants.
type deleteTask struct {
	path string
}

// runTasks executes all tasks concurrently and waits for them. The tasks are
// independent of each other, the first error cancels the others.
func (s *Storage) runTasks(ctx context.Context, writes []writeTask, deletes []deleteTask) error {
	if len(writes) == 0 && len(deletes) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxTaskConcurrency)
	for _, t := range deletes {
		g.Go(func() error {
			return s.deleteNode(gctx, t.path)
		})
	}
	for _, t := range writes {
		g.Go(func() error {
			return s.writeNode(gctx, t.path, t.value, t.opts)
		})
	}
	return g.Wait()
}

// --------------------------------------------------------------------------
// Node Writer
// --------------------------------------------------------------------------

// writeNode stores value as the record at p and reconciles the dedicated child
// records with it. The caller must hold an exclusive lock covering p.
func (s *Storage) writeNode(ctx context.Context, p string, value any, opts writeOptions) error {
	if value == nil {
		return newError(RetCInvalidValue, p, "null can not be stored as its own record")
	}
	typ, val, err := classify(p, value)
	if err != nil {
		return err
	}
	if path.IsRoot(p) && typ != TypeObject {
		return newError(RetCInvalidValue, p, "the root value must be an object, got %s", typ)
	}
	if !path.IsRoot(p) && !opts.merge && s.fitsInline(typ, val) {
		return newError(RetCInvalidValue, p, "a value of type %s that fits inline must be stored in its parent record", typ)
	}
	if opts.merge && !typ.IsContainer() {
		return newError(RetCInvalidValue, p, "can not merge a value of type %s", typ)
	}

	current, exists, err := s.readNode(ctx, p)
	if err != nil {
		return err
	}

	revision := opts.revision
	if revision == "" {
		revision = ksid.NewID().String()
	}

	mainType := typ
	if exists && opts.merge && current.typ.IsContainer() {
		if current.typ == TypeObject && typ == TypeArray {
			return newError(RetCInvalidValue, p, "can not merge an array into an object")
		}
		// objects with index keys merged into an array keep the array
		mainType = current.typ
	}

	newRec := &record{typ: mainType}
	var (
		childValues = map[string]any{} // body key -> value of the new dedicated record
		explicitNil = map[string]bool{}
		mentioned   = map[string]bool{} // body keys that are part of the value
	)

	if mainType.IsContainer() {
		isArray := mainType == TypeArray
		entries, err := containerEntries(p, typ, val, isArray)
		if err != nil {
			return err
		}

		newRec.body = map[string]any{}
		if exists && opts.merge && current.typ.IsContainer() {
			for k, v := range current.body {
				newRec.body[k] = v
			}
		}

		for k, v := range entries {
			cp := childPath(p, k, isArray)
			if v == nil {
				delete(newRec.body, k)
				explicitNil[k] = true
				mentioned[k] = true
				continue
			}
			if _, ok := v.(UndefinedValue); ok {
				if s.cfg.RemoveVoidProperties {
					continue
				}
				return newError(RetCInvalidValue, cp, "property %q is undefined", k)
			}
			mentioned[k] = true
			ct, cv, err := classify(cp, v)
			if err != nil {
				return err
			}
			if s.fitsInline(ct, cv) {
				newRec.body[k] = cv
			} else {
				delete(newRec.body, k)
				childValues[k] = cv
			}
		}
	} else {
		newRec.value = val
	}

	var (
		writes  []writeTask
		deletes []deleteTask
	)
	childOpts := writeOptions{merge: false, revision: revision}
	isArray := mainType == TypeArray
	for k, v := range childValues {
		writes = append(writes, writeTask{path: childPath(p, k, isArray), value: v, opts: childOpts})
	}

	now := time.Now().UnixMilli()

	if !exists {
		// creation, the children are stored first
		if err := s.runTasks(ctx, writes, nil); err != nil {
			return err
		}
		newRec.revision = revision
		newRec.revisionNr = 1
		newRec.created = now
		newRec.modified = now
		return s.writeRecord(ctx, p, newRec)
	}

	if current.typ.IsContainer() || mainType.IsContainer() {
		dedicated, err := s.backend.ChildrenOf(ctx, p)
		if err != nil {
			return wrapError(p, "failed to list children", err)
		}
		newChildPaths := make(map[string]bool, len(writes))
		for _, w := range writes {
			newChildPaths[w.path] = true
		}
		var kept []string
		for _, cp := range dedicated {
			if newChildPaths[cp] {
				continue // overwritten by a write task
			}
			key, _ := path.LastKey(cp)
			if opts.merge && !mentioned[key.String()] {
				kept = append(kept, key.String()) // untouched by the merge
				continue
			}
			deletes = append(deletes, deleteTask{path: cp})
		}
		if mainType == TypeArray {
			if err := checkDense(p, newRec.body, childValues, kept); err != nil {
				return err
			}
		}
	}
	if len(explicitNil) > 0 || len(deletes) > 0 || len(writes) > 0 {
		log.Debugf("write %q: %d child writes, %d child deletes", "/"+p, len(writes), len(deletes))
	}

	if err := s.runTasks(ctx, writes, deletes); err != nil {
		return err
	}

	newRec.revision = revision
	if opts.merge {
		newRec.revision = current.revision
	}
	newRec.revisionNr = current.revisionNr + 1
	newRec.created = current.created
	newRec.modified = now
	return s.writeRecord(ctx, p, newRec)
}

// checkDense verifies that the indices of an array record after a write are
// exactly 0..n-1. Removing an element other than the last one or setting an
// index past the end would leave a hole.
func checkDense(p string, body, childValues map[string]any, kept []string) error {
	seen := make(map[int]bool, len(body)+len(childValues)+len(kept))
	add := func(k string) error {
		key, err := path.BodyKey(k, true)
		if err != nil {
			return newError(RetCInvalidValue, p, "array with non-numeric key %q", k)
		}
		seen[key.Index] = true
		return nil
	}
	for k := range body {
		if err := add(k); err != nil {
			return err
		}
	}
	for k := range childValues {
		if err := add(k); err != nil {
			return err
		}
	}
	for _, k := range kept {
		if err := add(k); err != nil {
			return err
		}
	}
	for i := 0; i < len(seen); i++ {
		if !seen[i] {
			return newError(RetCInvalidValue, p, "array index %d would be missing, only the last element can be removed (rewrite the whole array instead)", i)
		}
	}
	return nil
}

// containerEntries returns the body keys of an object or array value. Arrays are
// keyed by their decimal index and must not contain nil or Undefined. An object
// merged into an array must only use index keys.
func containerEntries(p string, t ValueType, v any, intoArray bool) (map[string]any, error) {
	switch t {
	case TypeArray:
		arr := v.([]any)
		entries := make(map[string]any, len(arr))
		for i, item := range arr {
			if item == nil {
				return nil, newError(RetCInvalidValue, p, "arrays can not contain null values (index %d)", i)
			}
			if _, ok := item.(UndefinedValue); ok {
				return nil, newError(RetCInvalidValue, p, "arrays can not contain undefined values (index %d)", i)
			}
			entries[strconv.Itoa(i)] = item
		}
		return entries, nil
	case TypeObject:
		obj := v.(map[string]any)
		for k := range obj {
			if intoArray {
				if _, err := path.BodyKey(k, true); err != nil {
					return nil, newError(RetCInvalidValue, p, "can not merge key %q into an array", k)
				}
			} else if !path.ValidName(k) {
				return nil, newError(RetCInvalidValue, p, "invalid key %q (keys must not be empty or contain '/', '[' or ']')", k)
			}
		}
		return obj, nil
	default:
		return nil, newError(RetCInvalidValue, p, "type %s has no children", t)
	}
}
