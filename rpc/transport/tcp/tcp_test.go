package tcp

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/ValentinKolb/cKV/lib/docstore"
	dstesting "github.com/ValentinKolb/cKV/lib/docstore/testing"
	"github.com/ValentinKolb/cKV/rpc/client"
	"github.com/ValentinKolb/cKV/rpc/common"
	"github.com/ValentinKolb/cKV/rpc/serializer"
	"github.com/ValentinKolb/cKV/rpc/server"
	"github.com/ValentinKolb/cKV/rpc/transport/base"
)

var socketConf = common.SocketConf{TCPNoDelay: true, TCPKeepAliveSec: 30, TCPLingerSec: -1}

// listenerConnector serves on a listener opened by the test
type listenerConnector struct {
	serverConnector
	listener net.Listener
}

func (c *listenerConnector) Listen(common.ServerConfig) (net.Listener, error) {
	return c.listener, nil
}

// startServer serves a single in-memory shard with id 1 on a free loopback port
func startServer(t *testing.T, ser serializer.IRPCSerializer) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	cfg := common.ServerConfig{
		Shards:   []common.ServerShard{{ShardID: 1, Engine: common.EngineMaple}},
		Endpoint: l.Addr().String(),
		Socket:   socketConf,
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
	return l.Addr().String()
}

func connect(t *testing.T, addr string, shard uint64, ser serializer.IRPCSerializer) docstore.IDocStore {
	t.Helper()
	s, err := client.NewRPCDocStore(shard, common.ClientConfig{
		Endpoints:              []string{addr},
		TimeoutSecond:          5,
		RetryCount:             1,
		ConnectionsPerEndpoint: 2,
		Socket:                 socketConf,
	}, NewTCPClientTransport(), ser)
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
			return connect(t, startServer(t, ser), 1, ser)
		})
	}
}

func TestUnknownShard(t *testing.T) {
	ser := serializer.NewJSONSerializer()
	s := connect(t, startServer(t, ser), 9, ser)
	defer s.Close()

	if _, err := s.Begin(); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected a shard not found error, got %v", err)
	}
}

func TestConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()

	err = NewTCPClientTransport().Connect(common.ClientConfig{Endpoints: []string{addr}, TimeoutSecond: 1})
	if err == nil {
		t.Errorf("Connect to a closed port must fail")
	}
}

func TestUpgradeConnection(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer l.Close()

	conn, err := (&clientConnector{}).Connect(l.Addr().String(), 0)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	sc := common.SocketConf{
		WriteBufferSize: 64 * 1024,
		ReadBufferSize:  64 * 1024,
		TCPNoDelay:      true,
		TCPKeepAliveSec: 10,
		TCPLingerSec:    1,
	}
	if err := upgrade(conn, sc); err != nil {
		t.Errorf("upgrade failed: %v", err)
	}

	// other connection types are left alone
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	if err := upgrade(a, sc); err != nil {
		t.Errorf("upgrade of a pipe failed: %v", err)
	}
}
