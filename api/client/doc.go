// Package client is the Go client of the dTree HTTP api (see package server).
//
// Failed requests are returned as *node.Error, so errors.Is(err, node.ErrNotFound)
// works the same way as against a local node.Storage. Requests are spread over all
// configured endpoints round-robin and retried when the server can not be reached.
package client
