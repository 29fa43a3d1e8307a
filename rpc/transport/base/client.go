package base

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/cKV/rpc/common"
	"github.com/ValentinKolb/cKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// initialBackoff is the pause before the first retry, it doubles on every further retry
const initialBackoff = 50 * time.Millisecond

var errTransportClosed = errors.New("transport is closed")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint, a zero timeout waits forever
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// socket is one established net connection and the requests waiting for
// a response on it
type socket struct {
	conn    net.Conn
	pending *xsync.MapOf[uint64, chan responseResult]
}

// clientConnection is a slot of the connection pool, it redials its endpoint
// when the socket broke
type clientConnection struct {
	endpoint string
	parent   *clientTransport
	mu       sync.Mutex // guards sock and writes to it
	sock     *socket
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	connections   []*clientConnection
	connectionsMu sync.RWMutex
	nextConnIndex atomic.Uint64 // Round Robin
	nextRequestID atomic.Uint64
	stopping      atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{connector: connector}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Endpoints) == 0 {
		return fmt.Errorf("%s transport: no endpoints configured", t.connector.GetName())
	}

	t.closeConnections()
	t.config = config
	t.stopping.Store(false)

	connectionsPerEP := max(config.ConnectionsPerEndpoint, 1)
	connections := make([]*clientConnection, 0, len(config.Endpoints)*connectionsPerEP)
	connected := 0

	for _, endpoint := range config.Endpoints {
		for i := 0; i < connectionsPerEP; i++ {
			c := &clientConnection{endpoint: endpoint, parent: t}
			connections = append(connections, c)

			// failed slots redial on their next request
			c.mu.Lock()
			_, err := c.socketLocked()
			c.mu.Unlock()
			if err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			connected++
		}
	}

	t.connectionsMu.Lock()
	t.connections = connections
	t.connectionsMu.Unlock()

	if connected == 0 {
		t.closeConnections()
		return fmt.Errorf("%s transport: failed to connect to any endpoint", t.connector.GetName())
	}

	Logger.Infof("Connected %d out of %d connections to %d endpoints using %s transport",
		connected, len(connections), len(config.Endpoints), t.connector.GetName())
	return nil
}

func (t *clientTransport) Send(shardId uint64, req []byte) (resp []byte, err error) {
	maxRetries := max(t.config.RetryCount, 1)
	backoff := initialBackoff

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		conn := t.getNextConnection()
		if conn == nil {
			return nil, fmt.Errorf("%s transport: not connected", t.connector.GetName())
		}

		data, err := conn.send(shardId, t.nextRequestID.Add(1), req)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, errTransportClosed) {
			return nil, err
		}

		lastErr = err
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)

		if i+1 < maxRetries {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoff) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter))
			backoff *= 2
		}
	}

	return nil, fmt.Errorf("failed to send request after %d attempts: %w", maxRetries, lastErr)
}

func (t *clientTransport) Close() error {
	t.stopping.Store(true)
	t.closeConnections()
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// timeout returns the configured request timeout, zero means none
func (t *clientTransport) timeout() time.Duration {
	return time.Duration(t.config.TimeoutSecond) * time.Second
}

// getNextConnection selects the next connection via Round Robin
func (t *clientTransport) getNextConnection() *clientConnection {
	t.connectionsMu.RLock()
	defer t.connectionsMu.RUnlock()

	switch len(t.connections) {
	case 0:
		return nil
	case 1:
		return t.connections[0]
	default:
		return t.connections[t.nextConnIndex.Add(1)%uint64(len(t.connections))]
	}
}

// closeConnections closes all sockets and empties the pool
func (t *clientTransport) closeConnections() {
	t.connectionsMu.Lock()
	connections := t.connections
	t.connections = nil
	t.connectionsMu.Unlock()

	for _, c := range connections {
		c.mu.Lock()
		s := c.sock
		c.sock = nil
		c.mu.Unlock()
		if s != nil {
			s.fail(errTransportClosed)
		}
	}
}

// send writes one request and waits for its response or the timeout
func (c *clientConnection) send(shardID, requestID uint64, req []byte) ([]byte, error) {
	timeout := c.parent.timeout()
	respCh := make(chan responseResult, 1)

	c.mu.Lock()
	s, err := c.socketLocked()
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	s.pending.Store(requestID, respCh)
	if timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	err = writeFrame(s.conn, shardID, requestID, req)
	c.mu.Unlock()
	defer s.pending.Delete(requestID)

	if err != nil {
		c.drop(s, err)
		return nil, err
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case result := <-respCh:
		return result.data, result.err
	case <-timeoutCh:
		return nil, fmt.Errorf("request %d to %s timed out after %s", requestID, c.endpoint, timeout)
	}
}

// socketLocked returns the current socket and dials a new one if there is none.
// c.mu must be held.
func (c *clientConnection) socketLocked() (*socket, error) {
	if c.sock != nil {
		return c.sock, nil
	}
	if c.parent.stopping.Load() {
		return nil, errTransportClosed
	}

	conn, err := c.parent.connector.Connect(c.endpoint, c.parent.timeout())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", c.endpoint, err)
	}

	s := &socket{conn: conn, pending: xsync.NewMapOf[uint64, chan responseResult]()}
	c.sock = s
	go c.readResponses(s)
	return s, nil
}

// drop closes a broken socket, the next request dials a new one
func (c *clientConnection) drop(s *socket, cause error) {
	c.mu.Lock()
	if c.sock == s {
		c.sock = nil
	}
	c.mu.Unlock()
	s.fail(cause)
}

// readResponses reads responses in a loop and distributes them to waiting requests
func (c *clientConnection) readResponses(s *socket) {
	for {
		shardID, requestID, data, err := readFrame(s.conn, nil)
		if err != nil {
			if !c.parent.stopping.Load() && !errors.Is(err, net.ErrClosed) {
				Logger.Warningf("Connection to %s lost: %v", c.endpoint, err)
			}
			c.drop(s, fmt.Errorf("error reading response: %w", err))
			return
		}

		if respCh, found := s.pending.Load(requestID); found {
			select {
			case respCh <- responseResult{data: data}:
			default:
			}
		} else {
			// the request timed out before the response arrived
			Logger.Warningf("Received response for unknown request ID %d with shard ID %d", requestID, shardID)
		}
	}
}

// fail closes the socket and fails every waiting request with err
func (s *socket) fail(err error) {
	_ = s.conn.Close()
	s.pending.Range(func(_ uint64, respCh chan responseResult) bool {
		select {
		case respCh <- responseResult{err: err}:
		default:
		}
		return true
	})
}
