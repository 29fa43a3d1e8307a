// Package transport defines the interfaces and abstractions for RPC communication
// of the document store. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Supporting shard-based request routing
//   - Exposing the metrics of the served databases
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
// Implementations: http (one POST per request, metrics on the same server),
// tcp and unix (framed sockets on top of the base subpackage, metrics on a
// separate HTTP listener).
package transport
