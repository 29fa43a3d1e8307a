// Package rpc provides remote access to the document store. It acts as the
// communication layer between clients and servers, enabling transactions that
// live on a server and are driven by a client across network boundaries.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions, implemented over HTTP, TCP and Unix sockets.
//
//   - serializer: Message serialization (JSON, GOB) for converting between
//     Message objects and byte arrays.
//
//   - client: RPC client implementing docstore.IDocStore, allowing applications
//     to use a remote store exactly like a local one.
//
//   - server: RPC server that opens one document store per configured shard and
//     dispatches incoming requests to it.
package rpc
