package base

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ValentinKolb/cKV/rpc/common"
	"github.com/ValentinKolb/cKV/rpc/transport"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the time the metrics listener gets after the context is done
const shutdownTimeout = 5 * time.Second

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector         IServerConnector
	handler           transport.ServerHandleFunc
	metrics           transport.MetricsWriteFunc
	bufferPool        *sync.Pool
	maxWorkersPerConn int

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	connsWg sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with a worker
// pool per connection. Request buffers of bufferSize bytes are pooled.
func NewBaseServerTransport(connector IServerConnector, bufferSize int, maxWorkersPerConn int) transport.IRPCServerTransport {
	return &serverTransport{
		connector:         connector,
		maxWorkersPerConn: max(maxWorkersPerConn, 1),
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return make([]byte, max(bufferSize, headerSize))
			},
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

// RegisterMetrics registers the metrics writer. Socket transports serve it on
// a separate HTTP listener at config.MetricsEndpoint.
func (t *serverTransport) RegisterMetrics(write transport.MetricsWriteFunc) {
	t.metrics = write
}

func (t *serverTransport) Listen(ctx context.Context, config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("%s transport: no handler registered", t.connector.GetName())
	}

	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	t.connsMu.Lock()
	t.conns = make(map[net.Conn]struct{})
	t.connsMu.Unlock()

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		t.connector.GetName(), config.Endpoint, t.maxWorkersPerConn)

	g, ctx := errgroup.WithContext(ctx)

	// stop accepting and drop open connections once ctx is done
	g.Go(func() error {
		<-ctx.Done()
		_ = listener.Close()
		t.closeConnections()
		return nil
	})

	if t.metrics != nil && config.MetricsEndpoint != "" && config.MetricsPath != "" {
		t.serveMetrics(ctx, g, config)
	}

	g.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%s transport: accept: %w", t.connector.GetName(), err)
			}
			if !t.trackConnection(conn) {
				_ = conn.Close()
				return nil
			}
			go t.handleConnection(conn, config)
		}
	})

	err = g.Wait()

	// running requests finish before the shards are closed by the caller
	t.connsWg.Wait()
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// serveMetrics starts the HTTP listener of the metrics endpoint within g
func (t *serverTransport) serveMetrics(ctx context.Context, g *errgroup.Group, config common.ServerConfig) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+config.MetricsPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		t.metrics(w)
	})
	srv := &http.Server{Addr: config.MetricsEndpoint, Handler: mux}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			Logger.Errorf("Metrics server shutdown: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		Logger.Infof("Serving metrics on http://%s%s", config.MetricsEndpoint, config.MetricsPath)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
}

// trackConnection registers an accepted connection, it returns false once
// the transport is shutting down
func (t *serverTransport) trackConnection(conn net.Conn) bool {
	t.connsMu.Lock()
	defer t.connsMu.Unlock()
	if t.conns == nil {
		return false
	}
	t.conns[conn] = struct{}{}
	t.connsWg.Add(1)
	return true
}

func (t *serverTransport) untrackConnection(conn net.Conn) {
	t.connsMu.Lock()
	if t.conns != nil {
		delete(t.conns, conn)
	}
	t.connsMu.Unlock()
	t.connsWg.Done()
}

// closeConnections closes all open connections and refuses new ones
func (t *serverTransport) closeConnections() {
	t.connsMu.Lock()
	defer t.connsMu.Unlock()
	for conn := range t.conns {
		_ = conn.Close()
	}
	t.conns = nil
}

// handleConnection handles incoming requests for one connection
func (t *serverTransport) handleConnection(conn net.Conn, config common.ServerConfig) {
	defer t.untrackConnection(conn)
	defer conn.Close()

	if err := t.connector.UpgradeConnection(conn, config); err != nil {
		Logger.Errorf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
		return
	}

	// The buffered channel acts as a counting semaphore for the workers
	workerSemaphore := make(chan struct{}, t.maxWorkersPerConn)
	var wg sync.WaitGroup
	var connMutex sync.Mutex

	// handleResponse processes one request and writes the response with the same requestID
	handleResponse := func(shardID, requestID uint64, data []byte) {
		start := time.Now()
		resp := t.handler(shardID, data)
		Logger.Debugf("Processed request for shard %d with requestID %d took %s", shardID, requestID, time.Since(start))

		connMutex.Lock()
		defer connMutex.Unlock()
		if err := writeFrame(conn, shardID, requestID, resp); err != nil {
			Logger.Errorf("Failed to write response: %v", err)
		}
	}

	for {
		buf := t.bufferPool.Get().([]byte)
		shardID, requestID, data, err := readFrame(conn, buf)
		if err != nil {
			t.bufferPool.Put(buf)
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				Logger.Debugf("Connection from %s closed", conn.RemoteAddr())
			default:
				Logger.Errorf("Error handling request: %v", err)
			}
			break
		}

		// blocks while maxWorkersPerConn requests of this connection are running
		workerSemaphore <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				t.bufferPool.Put(buf)
				<-workerSemaphore
				wg.Done()
			}()
			handleResponse(shardID, requestID, data)
		}()
	}

	// Wait for all workers to finish before closing the connection
	wg.Wait()
}
