// Package bbackend implements a persistent backend.IBackend on top of a single
// bbolt database file.
//
// All records live in one bucket ("nodes"). bbolt does not accept empty keys, so
// every path is stored with a leading '/' ("" becomes "/", "users/ann" becomes
// "/users/ann"). Keys are kept sorted by bbolt, which lets the directory queries
// seek to "/p/" and "/p[" and stop at the first key that no longer shares the
// prefix, instead of scanning the whole bucket.
//
// Every call runs in its own bbolt transaction. bbolt serialises writers itself,
// readers run concurrently against a consistent view.
package bbackend
