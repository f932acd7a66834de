// Package mbackend implements an in-memory backend.IBackend.
//
// Records are kept in a concurrent xsync.MapOf keyed by their full path. Point
// operations go straight to the map, the directory queries ChildrenOf and
// DescendantsOf range over all keys and filter them with the matchers of the
// backend package. This is fine for the sizes an in-memory tree is used for
// (tests, caches, the state of a single RAFT replica) but it is linear in the
// number of records.
//
// Persistence Format: Save and Load use a compact binary format:
//  1. Magic number "DTREEMEM" to identify the format
//  2. Version number (currently 1)
//  3. Number of records
//  4. For each record: path length, path bytes, value length, value bytes
//
// Save does not stop writers. The snapshot is fuzzy, so callers that need a
// consistent cut (the RAFT state machine) must make sure no writes happen
// concurrently.
package mbackend
