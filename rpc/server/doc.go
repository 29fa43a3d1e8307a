// Package server implements the RPC server of the document store. It opens one
// document store per configured shard and dispatches requests to it.
//
// The package focuses on:
//   - Server-side RPC request handling for document store operations
//   - Adapter pattern to decouple application logic from RPC mechanisms
//   - Flexible shard configuration with a storage engine per shard
//   - Metrics of all shards on the transport's metrics endpoint
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a
//     docstore.IDocStore.
//
//   - NewDocStoreServerAdapter: Factory function creating an adapter that
//     translates RPC requests to docstore.IDocStore method calls.
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms.
//
// Usage Example:
//
//	// Create server configuration
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 1, Engine: common.EngineMaple},
//	    {ShardID: 2, Engine: common.EngineBolt, Limited: true},
//	  },
//	  DataDir:     "./data",
//	  Endpoint:    "0.0.0.0:8080",
//	  MetricsPath: "/metrics",
//	  LogLevel:    "info",
//	}
//
//	// Create and start the server, it stops when ctx is done
//	s := server.NewRPCServer(
//	  config,
//	  http.NewHttpServerTransport(),
//	  serializer.NewJSONSerializer(),
//	)
//	if err := s.Serve(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Engines:
//
//   - maple: in-memory engine, the shard starts empty on every start.
//
//   - bolt: bbolt file "shard-<id>.db" in the data directory, the shard
//     reloads its versions on start.
//
//   - dstore: raft replicated engine (Dragonboat). When using this engine,
//     the RAFT configuration (RTTMillisecond, SnapshotEntries, CompactionOverhead,
//     DataDir, ReplicaID, and ClusterMembers) must be properly configured.
//     The version cache of a server only follows its own commits, clients
//     of one shard should therefore talk to a single server.
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent requests.
//	Serve must be called only once.
package server
