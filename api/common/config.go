package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/dTree/lib/backend"
	"github.com/ValentinKolb/dTree/lib/backend/bbackend"
	"github.com/ValentinKolb/dTree/lib/backend/mbackend"
	"github.com/ValentinKolb/dTree/lib/backend/rbackend"
	"github.com/ValentinKolb/dTree/lib/node"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions to interface with Dragonboat
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

type BackendType string

const (
	BackendMemory BackendType = "mem"
	BackendBolt   BackendType = "bolt"
	BackendRaft   BackendType = "raft"
)

// ParseBackendType validates a backend name from the command line.
func ParseBackendType(s string) (BackendType, error) {
	switch t := BackendType(strings.ToLower(strings.TrimSpace(s))); t {
	case BackendMemory, BackendBolt, BackendRaft:
		return t, nil
	default:
		return "", fmt.Errorf("invalid backend %q (expected one of: mem, bolt, raft)", s)
	}
}

// ServerConfig holds all configuration parameters of a dTree server.
type ServerConfig struct {
	// Backend selects where the records are stored
	Backend BackendType

	// bbolt parameters
	BoltFile   string
	BoltNoSync bool

	// Dragonboat parameters
	ShardID            uint64
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string
	TimeoutSecond      int64

	// node storage parameters
	MaxInlineValueSize   int
	RemoveVoidProperties bool
	Serializer           string

	// HTTP api settings
	Endpoint string

	// Logging configuration
	LogLevel string
}

// NodeConfig returns the node storage configuration.
func (c *ServerConfig) NodeConfig() (node.Config, error) {
	ser, err := node.NewSerializer(c.Serializer)
	if err != nil {
		return node.Config{}, err
	}
	cfg := node.DefaultConfig()
	if c.MaxInlineValueSize > 0 {
		cfg.MaxInlineValueSize = c.MaxInlineValueSize
	}
	cfg.RemoveVoidProperties = c.RemoveVoidProperties
	cfg.Serializer = ser
	return cfg, nil
}

// OpenBackend creates the configured backend. For the raft backend a node host is
// started and the shard is joined; the returned cleanup function stops it.
func (c *ServerConfig) OpenBackend() (backend.IBackend, func(), error) {
	switch c.Backend {
	case BackendMemory, "":
		return mbackend.NewMemoryBackend(), func() {}, nil
	case BackendBolt:
		b, err := bbackend.Open(c.BoltFile, bbackend.Options{Timeout: time.Duration(c.TimeoutSecond) * time.Second, NoSync: c.BoltNoSync})
		if err != nil {
			return nil, nil, err
		}
		return b, func() {}, nil
	case BackendRaft:
		nh, err := dragonboat.NewNodeHost(c.ToNodeHostConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create node host: %w", err)
		}
		if err := nh.StartConcurrentReplica(c.ClusterMembers, false, rbackend.CreateStateMachineFactory(), c.ToDragonboatConfig()); err != nil {
			nh.Close()
			return nil, nil, fmt.Errorf("failed to start shard %d: %w", c.ShardID, err)
		}
		timeout := time.Duration(c.TimeoutSecond) * time.Second
		return rbackend.NewRaftBackend(nh, c.ShardID, timeout), nh.Close, nil
	default:
		return nil, nil, fmt.Errorf("invalid backend %q", c.Backend)
	}
}

// Validate checks the cluster settings of the raft backend.
func (c *ServerConfig) Validate() error {
	if c.Backend != BackendRaft {
		return nil
	}
	if len(c.ClusterMembers) == 0 {
		return fmt.Errorf("ClusterMembers is required for the raft backend")
	}
	if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
		return fmt.Errorf("no address found for replica ID %d in cluster members", c.ReplicaID)
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("HTTP Server")
	addField("Endpoint", c.Endpoint)

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Node Storage")
	addField("Max Inline Size", strconv.Itoa(c.MaxInlineValueSize))
	addField("Remove Void Props", strconv.FormatBool(c.RemoveVoidProperties))
	addField("Serializer", c.Serializer)

	addSection("Backend")
	addField("Type", string(c.Backend))

	switch c.Backend {
	case BackendBolt:
		addField("File", c.BoltFile)
		addField("No Sync", strconv.FormatBool(c.BoltNoSync))
	case BackendRaft:
		addField("Shard ID", strconv.FormatUint(c.ShardID, 10))
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
		addField("Data Directory", c.DataDir)

		sb.WriteString("  Initial Cluster Members:\n")
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	default:
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// HashString maps a human readable replica name (e.g. "node-1") to a replica id.
// This function uses the FNV-1a hash algorithm with the seed mixed into the offset.
func HashString(s string, seed uint64) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}
