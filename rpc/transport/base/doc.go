// Package base provides the socket transport shared by the tcp and unix
// transports. It frames requests, pools connections and correlates responses
// independent of the network protocol; protocol specifics are injected
// through connectors.
//
// Frame format (all integers big endian):
//
//	8 bytes shardID | 8 bytes requestID | 4 bytes length | payload
//
// Key Components:
//
//   - IClientConnector/IServerConnector: dial, listen and tune sockets for
//     one network protocol.
//
//   - clientTransport: keeps ConnectionsPerEndpoint sockets per endpoint and
//     picks one round robin per request. Requests on a socket are pipelined,
//     a reader goroutine hands each response to the caller waiting for its
//     requestID. A broken socket fails its waiting requests and is redialed
//     by the next request; Send retries with exponential backoff.
//
//   - serverTransport: accepts connections and runs up to WorkersPerConn
//     requests of one connection concurrently. Request buffers come from a
//     sync.Pool. Metrics are served by a separate HTTP listener on
//     MetricsEndpoint. When the context passed to Listen is done the
//     listener and all connections are closed and Listen returns after the
//     running requests finished.
//
// All public methods are safe for concurrent use.
package base
