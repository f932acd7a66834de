package lockmgr

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ValentinKolb/dTree/lib/path"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/rcrowley/go-metrics"
)

var log = logger.GetLogger("lockmgr")

// --------------------------------------------------------------------------
// Lock table
// --------------------------------------------------------------------------

type lockMgrImpl struct {
	mu       sync.Mutex
	nextID   uint64
	held     map[uint64]*Lock
	tidLocks map[string]int // number of held locks per tid
	queue    []*request     // waiters in arrival order
	closed   bool

	registry   metrics.Registry
	waitTimer  metrics.Timer
	contention metrics.Counter
}

// request is a waiting lock request.
type request struct {
	lock    *Lock
	ready   chan error // buffered, receives exactly one value
	granted bool
}

// NewLockManager creates an empty lock table.
func NewLockManager() ILockManager {
	m := &lockMgrImpl{
		held:       make(map[uint64]*Lock),
		tidLocks:   make(map[string]int),
		registry:   metrics.NewRegistry(),
		waitTimer:  metrics.NewTimer(),
		contention: metrics.NewCounter(),
	}
	_ = m.registry.Register("lock.wait", m.waitTimer)
	_ = m.registry.Register("lock.contention", m.contention)
	return m
}

// conflicts reports whether two locks can not be held at the same time.
func conflicts(a, b *Lock) bool {
	return a.tid != b.tid && (a.exclusive || b.exclusive) && path.IsOnTrail(a.path, b.path)
}

// grantable reports whether l can be granted given the held locks and the waiters
// ahead of it. A tid that already holds locks is not queued behind waiters, otherwise
// two escalating operations could wait on each other.
//
// Thread-safety: must be called with m.mu held.
func (m *lockMgrImpl) grantable(l *Lock, ahead []*request) bool {
	for _, h := range m.held {
		if conflicts(h, l) {
			return false
		}
	}
	if m.tidLocks[l.tid] > 0 {
		return true
	}
	for _, r := range ahead {
		if conflicts(r.lock, l) {
			return false
		}
	}
	return true
}

// grant marks l as held.
//
// Thread-safety: must be called with m.mu held.
func (m *lockMgrImpl) grant(l *Lock) {
	m.held[l.id] = l
	m.tidLocks[l.tid]++
}

// drop removes a held lock and serves the queue.
//
// Thread-safety: must be called with m.mu held.
func (m *lockMgrImpl) drop(l *Lock) {
	l.released = true
	if _, ok := m.held[l.id]; ok {
		delete(m.held, l.id)
		if m.tidLocks[l.tid]--; m.tidLocks[l.tid] <= 0 {
			delete(m.tidLocks, l.tid)
		}
	}
	m.serve()
}

// serve grants every waiter that became grantable, in arrival order.
//
// Thread-safety: must be called with m.mu held.
func (m *lockMgrImpl) serve() {
	waiting := m.queue[:0]
	for _, r := range m.queue {
		if m.grantable(r.lock, waiting) {
			m.grant(r.lock)
			r.granted = true
			r.ready <- nil
			continue
		}
		waiting = append(waiting, r)
	}
	// clear the tail so granted requests can be collected
	for i := len(waiting); i < len(m.queue); i++ {
		m.queue[i] = nil
	}
	m.queue = waiting
}

func (m *lockMgrImpl) newLock(p, tid string, exclusive bool) *Lock {
	m.nextID++
	return &Lock{
		mgr:       m,
		id:        m.nextID,
		path:      p,
		tid:       tid,
		exclusive: exclusive,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr/interface.go)
// --------------------------------------------------------------------------

func (m *lockMgrImpl) Lock(ctx context.Context, p string, tid string, exclusive bool) (*Lock, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	l := m.newLock(p, tid, exclusive)
	if m.grantable(l, m.queue) {
		m.grant(l)
		m.mu.Unlock()
		return l, nil
	}

	r := &request{lock: l, ready: make(chan error, 1)}
	m.queue = append(m.queue, r)
	m.contention.Inc(1)
	m.mu.Unlock()

	log.Debugf("waiting for lock on %q (tid=%s, exclusive=%t)", p, tid, exclusive)
	start := time.Now()
	defer m.waitTimer.UpdateSince(start)

	select {
	case err := <-r.ready:
		if err != nil {
			return nil, err
		}
		return l, nil
	case <-ctx.Done():
		m.mu.Lock()
		defer m.mu.Unlock()
		if r.granted {
			// granted concurrently with the cancellation
			m.drop(l)
		} else {
			m.removeWaiter(r)
			m.serve()
		}
		return nil, ctx.Err()
	}
}

func (m *lockMgrImpl) removeWaiter(r *request) {
	for i, w := range m.queue {
		if w == r {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

func (m *lockMgrImpl) Locks() []LockInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]LockInfo, 0, len(m.held))
	for _, l := range m.held {
		infos = append(infos, LockInfo{Path: l.path, Tid: l.tid, Exclusive: l.exclusive})
	}
	return infos
}

func (m *lockMgrImpl) WriteStats(w io.Writer) {
	metrics.WriteJSONOnce(m.registry, w)
}

func (m *lockMgrImpl) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for _, r := range m.queue {
		r.ready <- ErrClosed
	}
	m.queue = nil

	if n := len(m.held); n > 0 {
		log.Warningf("closing lock table with %d outstanding locks", n)
		return fmt.Errorf("%w: %d locks still held", ErrLocksOutstanding, n)
	}
	return nil
}

// --------------------------------------------------------------------------
// Lock guard
// --------------------------------------------------------------------------

// Lock is a granted lock. It is an owned guard: it must be released exactly once,
// and MoveToParent consumes it and hands out a new guard.
//
// Thread-safety: a Lock belongs to one operation. Release and MoveToParent must
// not be called concurrently on the same guard.
type Lock struct {
	mgr       *lockMgrImpl
	id        uint64
	path      string
	tid       string
	exclusive bool
	released  bool // guarded by mgr.mu
}

// Path returns the locked path.
func (l *Lock) Path() string { return l.path }

// Tid returns the transaction id the lock belongs to.
func (l *Lock) Tid() string { return l.tid }

// Exclusive returns whether this is an exclusive lock.
func (l *Lock) Exclusive() bool { return l.exclusive }

// Release releases the lock and wakes waiters that became grantable.
// A second release returns ErrReleased.
func (l *Lock) Release() error {
	m := l.mgr
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.released {
		return ErrReleased
	}
	m.drop(l)
	return nil
}

// MoveToParent consumes the lock and returns a lock of the same mode on the parent
// path. If the parent lock is grantable right away the swap happens atomically,
// otherwise the lock is released first and the parent lock is awaited like a new
// request of the same tid.
func (l *Lock) MoveToParent(ctx context.Context) (*Lock, error) {
	if path.IsRoot(l.path) {
		return nil, ErrNoParent
	}
	m := l.mgr
	parent := path.Parent(l.path)

	m.mu.Lock()
	if l.released {
		m.mu.Unlock()
		return nil, ErrReleased
	}
	if m.closed {
		m.drop(l)
		m.mu.Unlock()
		return nil, ErrClosed
	}

	moved := m.newLock(parent, l.tid, l.exclusive)

	// the child lock is covered by the parent lock, so only foreign held locks matter
	free := true
	for _, h := range m.held {
		if h != l && conflicts(h, moved) {
			free = false
			break
		}
	}
	if free {
		m.grant(moved)
		m.drop(l)
		m.mu.Unlock()
		return moved, nil
	}

	m.drop(l)
	m.mu.Unlock()
	return m.Lock(ctx, parent, l.tid, l.exclusive)
}
