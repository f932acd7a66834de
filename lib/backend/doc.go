// Package backend defines the contract between the node storage and a concrete
// key-value store. It is a pure boundary: the node storage never looks inside a
// backend and a backend never interprets the records it stores.
//
// Key Components:
//
//   - IBackend Interface: Get, Set, Remove plus the two directory queries
//     ChildrenOf and DescendantsOf. Every backend must implement all of them,
//     there are no defaults for the directory queries.
//
//   - Bulk Hooks: IMultiGetter and IMultiRemover are optional. The helpers
//     GetMultiple and RemoveMultiple use them when present and otherwise fan
//     out to Get and Remove concurrently.
//
//   - Predicates: ChildrenWhere and DescendantsWhere produce SQL predicates for
//     backends whose directory queries are filter expressions, IsChildPath and
//     IsDescendantPath are the equivalent matchers for backends that scan keys.
//
//   - Error System: Error carries a RetCode and a message, in the same way for
//     all implementations.
//
// Implementations:
//
//   - mbackend: in-memory backend with binary snapshots
//   - bbackend: single file backend on top of bbolt
//   - rbackend: replicated backend using Dragonboat RAFT, the state machine
//     wraps an mbackend
//
// The testing subpackage contains the conformance suite every implementation
// runs (RunBackendTests).
package backend
