package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,  // = c.RTTMillisecond * 10
		HeartbeatRTT:       heartbeatRTTFactor, // = c.RTTMillisecond * 1
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
// RPC server configuration struct
// --------------------------------------------------------------------------

// EngineType selects the storage engine of a shard
type EngineType string

const (
	EngineMaple  EngineType = "maple"  // in memory
	EngineBolt   EngineType = "bolt"   // file in the data directory
	EngineDstore EngineType = "dstore" // raft replicated
)

// ServerShard describes one document store served by the server
type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Engine is the storage engine of the shard
	Engine EngineType
	// Limited keeps only the versions running transactions can still observe
	Limited bool
}

// String returns the shard in the format accepted by ParseShard
func (s ServerShard) String() string {
	out := fmt.Sprintf("%d=%s", s.ShardID, s.Engine)
	if s.Limited {
		out += ":limited"
	}
	return out
}

// ParseShard parses a shard definition of the form ID=ENGINE[:limited],
// e.g. "100=bolt" or "7=maple:limited".
func ParseShard(def string) (ServerShard, error) {
	id, rest, ok := strings.Cut(strings.TrimSpace(def), "=")
	if !ok {
		return ServerShard{}, fmt.Errorf("invalid shard %q, expected ID=ENGINE[:limited]", def)
	}
	shardID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return ServerShard{}, fmt.Errorf("invalid shard id %q: %w", id, err)
	}

	engine, option, _ := strings.Cut(rest, ":")
	shard := ServerShard{ShardID: shardID, Engine: EngineType(strings.ToLower(engine))}
	switch shard.Engine {
	case EngineMaple, EngineBolt, EngineDstore:
	default:
		return ServerShard{}, fmt.Errorf("invalid engine %q for shard %d, must be one of maple, bolt, dstore", engine, shardID)
	}
	switch option {
	case "":
	case "limited":
		shard.Limited = true
	default:
		return ServerShard{}, fmt.Errorf("invalid option %q for shard %d", option, shardID)
	}
	return shard, nil
}

// ServerConfig holds all configuration parameters of the server.
type ServerConfig struct {
	// the document stores served by the server
	Shards []ServerShard

	// Dragonboat parameters (dstore shards only)
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// DataDir holds bolt files and the raft data
	DataDir string

	// engine timeout (dstore shards only)
	TimeoutSecond int64

	// api settings, Endpoint is an address for http and tcp, a socket path for unix
	Endpoint    string
	MetricsPath string

	// MetricsEndpoint is the address of the HTTP listener that serves
	// MetricsPath for the tcp and unix transports, empty to disable
	MetricsEndpoint string

	// socket transports (tcp, unix)
	Socket         SocketConf
	WorkersPerConn int

	// Logging configuration
	LogLevel string
}

// HasReplicatedShard checks if the configuration contains any dstore shards
func (c *ServerConfig) HasReplicatedShard() bool {
	for _, shard := range c.Shards {
		if shard.Engine == EngineDstore {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Metrics Path", c.MetricsPath)
	if c.MetricsEndpoint != "" {
		addField("Metrics Endpoint", c.MetricsEndpoint)
	}
	addField("Workers Per Conn", strconv.Itoa(c.WorkersPerConn))
	c.Socket.addFields(addField)

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		retention := "full history"
		if shard.Limited {
			retention = "limited history"
		}
		addField(strconv.FormatUint(shard.ShardID, 10), fmt.Sprintf("%s (%s)", shard.Engine, retention))
	}

	// Storage
	addSection("Storage")
	addField("Data Directory", c.DataDir)

	if c.HasReplicatedShard() {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

		// Cluster configuration
		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// Socket configuration (tcp, unix)
// --------------------------------------------------------------------------

// SocketConf holds the socket options applied by the tcp and unix transports
// to every connection. Zero values keep the operating system defaults.
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
	// tcp only
	TCPNoDelay      bool
	TCPKeepAliveSec int
	// TCPLingerSec < 0 keeps the default close behaviour
	TCPLingerSec int
}

func (c SocketConf) addFields(addField func(name, value string)) {
	addField("Write Buffer", fmt.Sprintf("%d bytes", c.WriteBufferSize))
	addField("Read Buffer", fmt.Sprintf("%d bytes", c.ReadBufferSize))
	addField("TCP No Delay", strconv.FormatBool(c.TCPNoDelay))
	addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.TCPKeepAliveSec))
	addField("TCP Linger", fmt.Sprintf("%d sec", c.TCPLingerSec))
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints              []string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
	// Socket is used by the tcp and unix transports
	Socket SocketConf
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.ConnectionsPerEndpoint)))))
	c.Socket.addFields(addField)

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
