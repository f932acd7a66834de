package rbackend

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dTree/lib/backend"
	"github.com/ValentinKolb/dTree/lib/backend/mbackend"
	"github.com/ValentinKolb/dTree/lib/backend/rbackend/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// TreeStateMachine is a state machine implementation for Dragonboat RAFT.
// The replicated records live in an in-memory backend.
type TreeStateMachine struct {
	replicaID uint64
	shardID   uint64
	records   *mbackend.MemoryBackend
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host.
func CreateStateMachineFactory() func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &TreeStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			records:   mbackend.NewMemoryBackend(),
		}
	}
}

// Lookup handles read-only queries by mapping each Query operation to the corresponding backend method.
func (fsm *TreeStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, backend.NewError(backend.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	ctx := context.Background()
	switch q.Type {
	case internal.QueryTGet:
		val, ok, err := fsm.records.Get(ctx, q.Path)
		if err != nil {
			return nil, err
		}
		return internal.QueryResult{
			Value: val,
			Ok:    ok,
		}, nil
	case internal.QueryTGetMultiple:
		return fsm.records.GetMultiple(ctx, q.Paths)
	case internal.QueryTChildrenOf:
		return fsm.records.ChildrenOf(ctx, q.Path)
	case internal.QueryTDescendantsOf:
		return fsm.records.DescendantsOf(ctx, q.Path)
	default:
		return nil, backend.NewError(backend.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update handles write commands on the in-memory backend.
// All write operations are serialized into []byte and are accessible via the entries struct
func (fsm *TreeStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()
	ctx := context.Background()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(backend.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{
				Value: uint64(backend.RetCInternalError),
				Data:  []byte(fmt.Sprintf("failed to deserialize command: %v", err)),
			}
			continue
		}

		entries[idx].Result = fsm.apply(ctx, cmd)
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

func (fsm *TreeStateMachine) apply(ctx context.Context, cmd internal.Command) sm.Result {
	var err error
	switch cmd.Type {
	case internal.CommandTSet, internal.CommandTRemove:
		if len(cmd.Paths) != 1 {
			return sm.Result{
				Value: uint64(backend.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("%s expects exactly one path, got %d", cmd.Type, len(cmd.Paths))),
			}
		}
		if cmd.Type == internal.CommandTSet {
			err = fsm.records.Set(ctx, cmd.Paths[0], cmd.Value)
		} else {
			err = fsm.records.Remove(ctx, cmd.Paths[0])
		}
	case internal.CommandTRemoveMultiple:
		err = fsm.records.RemoveMultiple(ctx, cmd.Paths)
	default:
		return sm.Result{
			Value: uint64(backend.RetCInvalidOperation),
			Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
		}
	}

	if err != nil {
		return sm.Result{Value: uint64(backend.RetCInternalError), Data: []byte(err.Error())}
	}
	return sm.Result{
		Value: uint64(backend.RetCSuccess),
		Data:  []byte(fmt.Sprintf("%s: paths=%d", cmd.Type, len(cmd.Paths))),
	}
}

// PrepareSnapshot is not used. We don't need to prepare anything since we use fuzzy snapshotting
func (fsm *TreeStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot saves a fuzzy snapshot of all records to the writer
func (fsm *TreeStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	return fsm.records.Save(writer)
}

// RecoverFromSnapshot replaces all records with the snapshot content.
func (fsm *TreeStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	return fsm.records.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *TreeStateMachine) Close() error {
	return fsm.records.Close()
}
