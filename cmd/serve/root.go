package serve

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ValentinKolb/dTree/api/common"
	"github.com/ValentinKolb/dTree/api/server"
	cmdUtil "github.com/ValentinKolb/dTree/cmd/util"
	"github.com/ValentinKolb/dTree/lib/node"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dTree server",
		Long:    `Start the dTree server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DTREE_<flag> (e.g. DTREE_MAX_INLINE_SIZE=128)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "backend"
	ServeCmd.PersistentFlags().String(key, "mem", cmdUtil.WrapString("Backend storing the records (mem, bolt, raft)"))

	key = "bolt-file"
	ServeCmd.PersistentFlags().String(key, "dtree.db", cmdUtil.WrapString("(bolt backend) Path of the bbolt database file"))

	key = "bolt-no-sync"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("(bolt backend) Skip fsync after every commit. Faster but a crash may lose the last writes"))

	key = "shard-id"
	ServeCmd.PersistentFlags().Uint64(key, 100, cmdUtil.WrapString("(raft backend) ID of the RAFT shard holding the records"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(raft backend) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value*10, HeartbeatRTT=value*1) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(raft backend) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. SnapshotEntries can be set to 0 to disable such automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(raft backend) CompactionOverhead defines the number of snapshots that should be retained in the system. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(raft backend) DataDir is the directory used for storing the RAFT log and snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft backend) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(raft backend) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds of backend operations (raft proposals, bbolt file lock)"))

	key = "max-inline-size"
	ServeCmd.PersistentFlags().Int(key, node.DefaultConfig().MaxInlineValueSize, cmdUtil.WrapString("Values up to this size (characters or bytes) are stored inline in their parent record"))

	key = "remove-void-properties"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Silently drop undefined properties instead of rejecting the write"))

	key = "serializer"
	ServeCmd.PersistentFlags().String(key, "json", cmdUtil.WrapString("Serializer of the stored records (json, msgpack)"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the HTTP API will listen"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error). Single loggers can be overridden, e.g. info,lockmgr=debug,raft=error"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	backendType, err := common.ParseBackendType(viper.GetString("backend"))
	if err != nil {
		return err
	}
	serveCmdConfig.Backend = backendType

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.BoltFile = viper.GetString("bolt-file")
	serveCmdConfig.BoltNoSync = viper.GetBool("bolt-no-sync")
	serveCmdConfig.ShardID = viper.GetUint64("shard-id")
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MaxInlineValueSize = viper.GetInt("max-inline-size")
	serveCmdConfig.RemoveVoidProperties = viper.GetBool("remove-void-properties")
	serveCmdConfig.Serializer = viper.GetString("serializer")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	// parse replica id
	if id := viper.GetString("replica-id"); id != "" {
		serveCmdConfig.ReplicaID = common.HashString(id, 0)
	} else if serveCmdConfig.Backend == common.BackendRaft {
		return fmt.Errorf("ReplicaId is required for the raft backend")
	}

	// parse cluster members
	if clusterMembers := viper.GetString("cluster-members"); clusterMembers != "" {
		members, err := parseClusterMembers(clusterMembers)
		if err != nil {
			return err
		}
		serveCmdConfig.ClusterMembers = members
	}

	return serveCmdConfig.Validate()
}

// parseClusterMembers parses 'node-1=localhost:63001,node-2=...' into replica ids and addresses
func parseClusterMembers(s string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, member := range strings.Split(s, ",") {
		parts := strings.Split(member, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		members[common.HashString(strings.TrimSpace(parts[0]), 0)] = strings.TrimSpace(parts[1])
	}
	return members, nil
}

// run starts the dTree server
func run(cmd *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.LogLevel); err != nil {
		return err
	}
	log := logger.GetLogger("cmd")
	log.Infof("starting dTree with configuration:\n%s", serveCmdConfig)

	nodeConfig, err := serveCmdConfig.NodeConfig()
	if err != nil {
		return err
	}

	b, cleanup, err := serveCmdConfig.OpenBackend()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := node.Open(ctx, b, nodeConfig)
	if err != nil {
		_ = b.Close()
		return err
	}
	defer func() {
		if err := storage.Close(); err != nil {
			log.Warningf("failed to close storage: %v", err)
		}
	}()

	return server.NewServer(storage, *serveCmdConfig).Listen(ctx)
}

