// Package common holds what the dTree server and the command line share: the
// server configuration (ServerConfig), the creation of the configured backend and
// the logger setup.
//
// Backends:
//
//	mem   in-memory records, lost on shutdown
//	bolt  a single bbolt file (BoltFile)
//	raft  records replicated by a dragonboat shard (ShardID, ClusterMembers, ...)
//
// Logging:
//
//	All packages log through the dragonboat logger package. InitLoggers installs
//	CreateLogger as logger factory and sets the level of the dTree and dragonboat
//	loggers. Dragonboat's own loggers are kept at warning level when the level is info.
package common
