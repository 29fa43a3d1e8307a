package unix

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/cKV/lib/docstore"
	dstesting "github.com/ValentinKolb/cKV/lib/docstore/testing"
	"github.com/ValentinKolb/cKV/rpc/client"
	"github.com/ValentinKolb/cKV/rpc/common"
	"github.com/ValentinKolb/cKV/rpc/serializer"
	"github.com/ValentinKolb/cKV/rpc/server"
	"github.com/ValentinKolb/cKV/rpc/transport/base"
)

// listenerConnector serves on a listener opened by the test
type listenerConnector struct {
	serverConnector
	listener net.Listener
}

func (c *listenerConnector) Listen(common.ServerConfig) (net.Listener, error) {
	return c.listener, nil
}

// startServer serves a single in-memory shard with id 1 on a socket in a temp dir
func startServer(t *testing.T, ser serializer.IRPCSerializer) string {
	t.Helper()
	cfg := common.ServerConfig{
		Shards:   []common.ServerShard{{ShardID: 1, Engine: common.EngineMaple}},
		Endpoint: filepath.Join(t.TempDir(), "ckv.sock"),
	}

	// the listener exists before the first client dials
	l, err := (&serverConnector{}).Listen(cfg)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	tr := base.NewBaseServerTransport(&listenerConnector{listener: l}, defaultBufferSize, 4)
	s := server.NewRPCServer(cfg, tr, ser)
	if err := s.Setup(); err != nil {
		_ = l.Close()
		t.Fatalf("Setup failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Listen(ctx, cfg) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Listen returned %v", err)
		}
		s.Close()
	})
	return cfg.Endpoint
}

func connect(t *testing.T, path string, ser serializer.IRPCSerializer) docstore.IDocStore {
	t.Helper()
	s, err := client.NewRPCDocStore(1, common.ClientConfig{
		Endpoints:     []string{path},
		TimeoutSecond: 5,
		RetryCount:    1,
	}, NewUnixClientTransport(), ser)
	if err != nil {
		t.Fatalf("NewRPCDocStore failed: %v", err)
	}
	return s
}

func TestRemoteDocStore(t *testing.T) {
	for name, newSerializer := range map[string]func() serializer.IRPCSerializer{
		"JSON": serializer.NewJSONSerializer,
		"GOB":  serializer.NewGOBSerializer,
	} {
		dstesting.RunDocStoreTests(t, name, func(t *testing.T) docstore.IDocStore {
			ser := newSerializer()
			return connect(t, startServer(t, ser), ser)
		})
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.sock")
	if err := os.WriteFile(path, []byte("left over"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	l, err := (&serverConnector{}).Listen(common.ServerConfig{Endpoint: path})
	if err != nil {
		t.Fatalf("Listen over a stale socket failed: %v", err)
	}
	defer l.Close()

	conn, err := (&clientConnector{}).Connect(path, 0)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	if err := upgrade(conn, common.SocketConf{WriteBufferSize: 32 * 1024, ReadBufferSize: 32 * 1024}); err != nil {
		t.Errorf("upgrade failed: %v", err)
	}
}
