package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/cKV/lib/continuous"
	"github.com/ValentinKolb/cKV/lib/db"
	"github.com/ValentinKolb/cKV/lib/db/engines/bolt"
	"github.com/ValentinKolb/cKV/lib/db/engines/dstore"
	"github.com/ValentinKolb/cKV/lib/db/engines/maple"
	"github.com/ValentinKolb/cKV/lib/docstore"
	"github.com/ValentinKolb/cKV/rpc/common"
	"github.com/ValentinKolb/cKV/rpc/serializer"
	"github.com/ValentinKolb/cKV/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("rpc")

const (
	// leaderTimeout bounds the wait for a replicated shard to elect a leader
	leaderTimeout = 30 * time.Second
	// reportInterval is the period of the shard summary in the debug log
	reportInterval = time.Minute
)

// serverShard is a struct that represents a shard in the RPC server
// It contains the document store it encapsulates, the adapter
// that handles requests for the store and the metrics of its database
type serverShard struct {
	Store   docstore.IDocStore
	Adapter IRPCServerAdapter
	Metrics *metrics.Set
}

// RPCServer serves the configured document stores over a transport.
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
	nodeHost   *dragonboat.NodeHost
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	// Create the RPC server
	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     xsync.NewMapOf[uint64, serverShard](),
	}
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(shardId uint64, req []byte) []byte {
		var msg common.Message
		var respMsg common.Message

		// Get appropriate shard
		shard, ok := s.shards.Load(shardId)

		// Case shard does not exist -> error
		if !ok {
			respMsg = common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("shard %d not found", shardId),
			}
		} else {
			// Decode the request
			err := s.serializer.Deserialize(req, &msg)

			if err != nil {
				respMsg = common.Message{
					MsgType: common.MsgTError,
					Err:     fmt.Sprintf("failed to deserialize request: %s", err),
				}
			} else {
				// Let the adapter handle the request
				respMsg = *shard.Adapter.Handle(&msg, shard.Store)
			}
		}

		// Return result
		val, err := s.serializer.Serialize(respMsg)
		if err != nil {
			val, _ = s.serializer.Serialize(common.Message{
				MsgType: common.MsgTError,
				Err:     fmt.Sprintf("failed to serialize response: %s", err),
			})
		}
		return val
	})
	s.transport.RegisterMetrics(s.writeMetrics)
}

// writeMetrics writes the process metrics followed by the metrics of every shard
func (s *RPCServer) writeMetrics(w io.Writer) {
	metrics.WritePrometheus(w, true)
	s.shards.Range(func(_ uint64, shard serverShard) bool {
		shard.Metrics.WritePrometheus(w)
		return true
	})
}

// openEngine creates the storage engine of a shard
func (s *RPCServer) openEngine(shard common.ServerShard) (db.ObjectDB, error) {
	switch shard.Engine {
	case common.EngineMaple:
		return maple.NewMapleDB(nil), nil

	case common.EngineBolt:
		if err := os.MkdirAll(s.config.DataDir, 0o755); err != nil {
			return nil, err
		}
		path := filepath.Join(s.config.DataDir, fmt.Sprintf("shard-%d.db", shard.ShardID))
		return bolt.NewBoltDB(path, bolt.DefaultOptions())

	case common.EngineDstore:
		if s.nodeHost == nil {
			return nil, fmt.Errorf("node host is nil, cannot create replicated shard")
		}

		// Every replica applies the raft log to a local maple engine
		factory := dstore.CreateStateMachineFactory(func() (db.ObjectDB, error) {
			return maple.NewMapleDB(nil), nil
		})
		if err := s.nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, factory, s.config.ToDragonboatConfig(shard.ShardID)); err != nil {
			return nil, fmt.Errorf("failed to start shard %d: %w", shard.ShardID, err)
		}
		if err := waitForLeader(s.nodeHost, shard.ShardID); err != nil {
			return nil, err
		}
		if len(s.config.ClusterMembers) > 1 {
			Logger.Warningf("shard %d is replicated, documents committed through other replicas are loaded on restart", shard.ShardID)
		}
		timeout := time.Duration(s.config.TimeoutSecond) * time.Second
		return dstore.NewDistributedDB(s.nodeHost, shard.ShardID, timeout), nil

	default:
		return nil, fmt.Errorf("invalid engine %q for shard %d", shard.Engine, shard.ShardID)
	}
}

// waitForLeader blocks until the shard has a leader
func waitForLeader(nh *dragonboat.NodeHost, shardID uint64) error {
	deadline := time.Now().Add(leaderTimeout)
	for time.Now().Before(deadline) {
		if _, _, valid, err := nh.GetLeaderID(shardID); err == nil && valid {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("shard %d did not elect a leader within %s", shardID, leaderTimeout)
}

// Setup creates the shards and registers the transport handlers.
// Serve calls Setup, it is exported for servers driven by an external transport loop.
func (s *RPCServer) Setup() error {
	// Create the Dragonboat NodeHost
	if s.config.HasReplicatedShard() {
		// Only create the NodeHost if we have replicated shards
		nodeHost, err := dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
		s.nodeHost = nodeHost
	}

	// CREATE SHARDS

	/*
		Note: A single RPC Server can serve any number of shards, each with its
		own engine. Every shard is an independent continuous database, the
		transaction ids of different shards are unrelated.
	*/

	for _, shardConfig := range s.config.Shards {
		if _, exists := s.shards.Load(shardConfig.ShardID); exists {
			return fmt.Errorf("shard %d configured twice", shardConfig.ShardID)
		}

		engine, err := s.openEngine(shardConfig)
		if err != nil {
			return err
		}

		set := metrics.NewSet()
		opts := continuous.DefaultOptions()
		opts.Name = fmt.Sprintf("shard-%d", shardConfig.ShardID)
		opts.Limited = shardConfig.Limited
		opts.Metrics = set

		store, err := docstore.NewLocalDocStore(engine, opts)
		if err != nil {
			_ = engine.Close()
			return fmt.Errorf("failed to open shard %d: %w", shardConfig.ShardID, err)
		}

		s.shards.Store(shardConfig.ShardID, serverShard{
			Store:   store,
			Adapter: NewDocStoreServerAdapter(),
			Metrics: set,
		})
		Logger.Infof("created %s store for shard %d", shardConfig.Engine, shardConfig.ShardID)
	}

	Logger.Infof("cKV setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// Serve starts the RPC server
// This function will also initialize the shards and start the transport layer.
// It returns when ctx is done or the transport fails, the shards are closed afterwards.
func (s *RPCServer) Serve(ctx context.Context) error {
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	if err := s.Setup(); err != nil {
		s.Close()
		return err
	}
	defer s.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.transport.Listen(ctx, s.config)
	})
	g.Go(func() error {
		s.report(ctx)
		return nil
	})
	return g.Wait()
}

// report periodically logs a summary of every shard until ctx is done
func (s *RPCServer) report(ctx context.Context) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.shards.Range(func(id uint64, shard serverShard) bool {
				info, err := shard.Store.Info()
				if err != nil {
					Logger.Warningf("shard %d: %v", id, err)
					return true
				}
				Logger.Debugf("shard %d: %d histories, %d versions, %d active transactions, last transaction %d",
					id, info.Histories, info.Versions, info.ActiveTransactions, info.LastTransID)
				return true
			})
		}
	}
}

// Close closes all shards and the node host
func (s *RPCServer) Close() {
	s.shards.Range(func(id uint64, shard serverShard) bool {
		if err := shard.Store.Close(); err != nil {
			Logger.Errorf("failed to close shard %d: %v", id, err)
		}
		s.shards.Delete(id)
		return true
	})
	if s.nodeHost != nil {
		s.nodeHost.Close()
		s.nodeHost = nil
	}
	Logger.Infof("cKV server stopped")
}
