// Package http implements an HTTP-based transport layer for the RPC
// communication of the document store. It provides concrete implementations
// of the transport interfaces defined in the parent package.
//
// The package focuses on:
//   - Client-side HTTP transport for sending RPC requests to servers
//   - Server-side HTTP transport for receiving and handling RPC requests
//   - Round-robin load balancing across multiple server endpoints
//   - Request routing based on shard IDs
//
// Routes:
//
//	POST /{shardId}   serialized request in, serialized response out
//	GET  <metrics>    Prometheus text format (path from ServerConfig.MetricsPath)
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport interface, managing
//     connections to server endpoints, handling request routing, and implementing
//     retry mechanisms. Every attempt goes to the next endpoint (round-robin).
//
//   - httpServerTransport: Implements IRPCServerTransport interface, setting up
//     an HTTP server that routes incoming requests to the appropriate handler
//     based on the shard ID specified in the URL path. The server shuts down
//     gracefully when the context passed to Listen is done.
//
// Thread Safety:
//
//	The client transport is thread-safe and can be used concurrently. It uses
//	atomic operations for the round-robin counter to ensure thread safety when
//	selecting server endpoints.
package http
