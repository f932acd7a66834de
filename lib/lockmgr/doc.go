// Package lockmgr implements the hierarchical path lock coordinator of the node
// storage. It grants shared and exclusive locks on tree paths, every lock is tagged
// with the transaction id (tid) of the operation that requested it.
//
// Core Functionality:
//   - Shared locks (any number of holders) and exclusive locks (one holder)
//   - Hierarchical conflicts: a lock on "users" conflicts with a lock on "users/ann"
//   - Re-entrance per tid: locks of the same tid never conflict
//   - Moving a held lock to the parent path (MoveToParent)
//
// Conflict Rule:
//
//	Two locks conflict when all of the following hold:
//	- they belong to different tids
//	- at least one of them is exclusive
//	- their paths are equal or one is an ancestor of the other
//
// Fairness:
//
//	Waiters are served in FIFO order. A request of a tid that holds no lock yet must
//	also wait for every earlier conflicting waiter, so a steady stream of readers can
//	not starve a writer. A request of a tid that already holds locks (an operation
//	that escalates, e.g. via MoveToParent) is only blocked by held locks. Queuing it
//	behind other waiters could deadlock, since those waiters may be waiting for the
//	lock the tid already holds.
//
// Lock Guards:
//
//	Lock returns an owned *Lock guard. Release must be called exactly once on every
//	exit path, a second call returns ErrReleased. MoveToParent consumes the guard:
//	the old guard is released and a new guard on the parent path is returned. When
//	the parent lock can be granted right away the swap is atomic, otherwise the child
//	lock is released before waiting for the parent.
//
// Lifecycle:
//
//	A lock table belongs to one open storage. Close wakes all waiters with ErrClosed
//	and returns ErrLocksOutstanding (after logging a warning) if locks are still held.
//
// Thread Safety:
//
//	The table is guarded by a single mutex. Waiting happens outside of it on a
//	per-request channel, so cancellation via context works for every waiter.
//
// Metrics:
//
//	Wait times (timer "lock.wait") and the number of requests that had to wait
//	(counter "lock.contention") are kept in a go-metrics registry, WriteStats dumps
//	it as JSON.
//
// Usage Example:
//
//	locks := lockmgr.NewLockManager()
//	defer locks.Close()
//
//	l, err := locks.Lock(ctx, "users/ann", tid, false)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = l.Release() }()
package lockmgr
