package http

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ValentinKolb/cKV/lib/docstore"
	dstesting "github.com/ValentinKolb/cKV/lib/docstore/testing"
	"github.com/ValentinKolb/cKV/rpc/client"
	"github.com/ValentinKolb/cKV/rpc/common"
	"github.com/ValentinKolb/cKV/rpc/serializer"
	"github.com/ValentinKolb/cKV/rpc/server"
)

// startServer serves a single in-memory shard with id 1 over httptest
func startServer(t *testing.T, ser serializer.IRPCSerializer) *httptest.Server {
	t.Helper()
	cfg := common.ServerConfig{
		Shards:      []common.ServerShard{{ShardID: 1, Engine: common.EngineMaple}},
		MetricsPath: "/metrics",
	}
	tr := &httpServerTransport{}
	s := server.NewRPCServer(cfg, tr, ser)
	if err := s.Setup(); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	ts := httptest.NewServer(tr.mux(cfg))
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return ts
}

func connect(t *testing.T, url string, shard uint64, ser serializer.IRPCSerializer) docstore.IDocStore {
	t.Helper()
	s, err := client.NewRPCDocStore(shard, common.ClientConfig{
		Endpoints:     []string{url},
		TimeoutSecond: 5,
		RetryCount:    1,
	}, NewHttpClientTransport(), ser)
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
			ts := startServer(t, ser)
			return connect(t, ts.URL, 1, ser)
		})
	}
}

func TestUnknownShard(t *testing.T) {
	ser := serializer.NewJSONSerializer()
	ts := startServer(t, ser)
	s := connect(t, ts.URL, 9, ser)
	defer s.Close()

	if _, err := s.Begin(); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected a shard not found error, got %v", err)
	}
}

func TestInvalidShardPath(t *testing.T) {
	ts := startServer(t, serializer.NewJSONSerializer())

	resp, err := http.Post(ts.URL+"/not-a-number", "application/octet-stream", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ser := serializer.NewJSONSerializer()
	ts := startServer(t, ser)
	s := connect(t, ts.URL, 1, ser)
	defer s.Close()

	if _, err := s.Put(docstore.AutoCommit, docstore.Doc{Key: "a", Content: "text"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`ckv_commits_total{db="shard-1"} 1`,
		`ckv_histories{db="shard-1"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Metrics output misses %q", want)
		}
	}
}

func TestClientWithoutEndpoints(t *testing.T) {
	if err := NewHttpClientTransport().Connect(common.ClientConfig{}); err == nil {
		t.Errorf("Connect must fail without endpoints")
	}
	if _, err := NewHttpClientTransport().Send(1, nil); err == nil {
		t.Errorf("Send must fail before Connect")
	}
}
