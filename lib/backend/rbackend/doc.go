// Package rbackend implements a replicated backend.IBackend using the Dragonboat
// RAFT consensus library. Every replica holds the complete record set in an
// in-memory backend (mbackend), the RAFT log orders all writes across replicas.
//
// Architecture:
//
//   - RaftBackend: implements backend.IBackend on top of a NodeHost. Writes are
//     serialized into a Command and proposed with SyncPropose, reads are sent as a
//     Query via SyncRead, which makes them linearizable.
//
//   - TreeStateMachine: a Dragonboat IConcurrentStateMachine that applies the
//     commands to its mbackend and answers the queries. Snapshots are the binary
//     Save/Load format of mbackend.
//
//   - Protocol: the internal package defines Command (Set, Remove, RemoveMultiple)
//     and Query (Get, GetMultiple, ChildrenOf, DescendantsOf).
//
// Command wire format:
//
//	1 byte    command type
//	4 bytes   number of paths (big endian)
//	per path  4 bytes length (big endian) + path bytes
//	rest      value bytes (Set only)
//
// Error Handling and Retries:
//
//	Transient errors (ErrSystemBusy, ErrShardNotReady) are retried up to 5 times
//	with a short pause. Every attempt has its own timeout, the caller's context
//	bounds the whole operation.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	err = nh.StartConcurrentReplica(members, false, rbackend.CreateStateMachineFactory(), shardConfig)
//	if err != nil { ... }
//
//	b := rbackend.NewRaftBackend(nh, shardID, 5*time.Second)
//
// Note that RaftBackend.Close does not stop the NodeHost, the caller owns it.
package rbackend
