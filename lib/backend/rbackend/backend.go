package rbackend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dTree/lib/backend"
	"github.com/ValentinKolb/dTree/lib/backend/rbackend/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("backend")
)

// RaftBackend is a backend.IBackend whose records are replicated with Dragonboat.
// It encapsulates a NodeHost which is used to communicate with the state machine.
type RaftBackend struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewRaftBackend creates a backend on top of an already started shard. Writes are
// proposed to the RAFT log, reads are linearizable (SyncRead).
func NewRaftBackend(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) *RaftBackend {
	return &RaftBackend{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
	}
}

// retryable reports whether a dragonboat error is transient.
func retryable(err error) bool {
	return errors.Is(err, dragonboat.ErrSystemBusy) || errors.Is(err, dragonboat.ErrShardNotReady)
}

// --------------------------------------------------------------------------
// Internal write and read operations (used by interface methods)
// --------------------------------------------------------------------------

// write sends a serialized Command via SyncPropose.
// It returns a *backend.Error if an error occurs, or nil on success.
func (r *RaftBackend) write(ctx context.Context, cmd internal.Command) error {
	data := cmd.Serialize()
	for i := 0; i < retries; i++ {
		pctx, cancel := context.WithTimeout(ctx, r.timeout)
		res, err := r.nh.SyncPropose(pctx, r.cs, data)
		cancel()

		if retryable(err) {
			log.Infof("SyncPropose: shard %d busy, retrying (%d/%d)...", r.shardID, i+1, retries)
			if err := sleep(ctx, r.timeout/10); err != nil {
				return err
			}
			continue
		}

		if err != nil {
			return backend.NewError(backend.RetCInternalError, err.Error())
		}
		if res.Value != uint64(backend.RetCSuccess) {
			return backend.NewError(backend.RetCode(res.Value), string(res.Data))
		}
		return nil
	}
	return backend.NewError(backend.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// If the read operation fails due to a transient error, the function retries up to 5 times.
func read[R any](ctx context.Context, r *RaftBackend, q internal.Query) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		rctx, cancel := context.WithTimeout(ctx, r.timeout)
		res, err := r.nh.SyncRead(rctx, r.shardID, q)
		cancel()

		if retryable(err) {
			log.Infof("SyncRead: shard %d busy, retrying (%d/%d)...", r.shardID, i+1, retries)
			if err := sleep(ctx, r.timeout/10); err != nil {
				return zero, err
			}
			continue
		}

		if err != nil {
			var bErr *backend.Error
			if errors.As(err, &bErr) {
				return zero, bErr
			}
			return zero, backend.NewError(backend.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, backend.NewError(backend.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, backend.NewError(backend.RetCInternalError, "timeout")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backend/interface.go)
// --------------------------------------------------------------------------

func (r *RaftBackend) Get(ctx context.Context, path string) ([]byte, bool, error) {
	res, err := read[internal.QueryResult](ctx, r, internal.Query{
		Type: internal.QueryTGet,
		Path: path,
	})
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

func (r *RaftBackend) Set(ctx context.Context, path string, data []byte) error {
	return r.write(ctx, internal.Command{
		Type:  internal.CommandTSet,
		Paths: []string{path},
		Value: data,
	})
}

func (r *RaftBackend) Remove(ctx context.Context, path string) error {
	return r.write(ctx, internal.Command{
		Type:  internal.CommandTRemove,
		Paths: []string{path},
	})
}

func (r *RaftBackend) ChildrenOf(ctx context.Context, path string) ([]string, error) {
	return read[[]string](ctx, r, internal.Query{
		Type: internal.QueryTChildrenOf,
		Path: path,
	})
}

func (r *RaftBackend) DescendantsOf(ctx context.Context, path string) ([]string, error) {
	return read[[]string](ctx, r, internal.Query{
		Type: internal.QueryTDescendantsOf,
		Path: path,
	})
}

// Close does not stop the shard, the NodeHost is owned by the caller.
func (r *RaftBackend) Close() error {
	return nil
}

// GetMultiple implements backend.IMultiGetter with a single read.
func (r *RaftBackend) GetMultiple(ctx context.Context, paths []string) (map[string][]byte, error) {
	return read[map[string][]byte](ctx, r, internal.Query{
		Type:  internal.QueryTGetMultiple,
		Paths: paths,
	})
}

// RemoveMultiple implements backend.IMultiRemover with a single log entry.
func (r *RaftBackend) RemoveMultiple(ctx context.Context, paths []string) error {
	return r.write(ctx, internal.Command{
		Type:  internal.CommandTRemoveMultiple,
		Paths: paths,
	})
}
