// Package unix implements the Unix domain socket transport of the cKV RPC
// system for clients on the same machine. The endpoint is the socket path,
// a stale socket file is removed before listening.
//
// The framing, connection pooling and request routing come from the base
// package. The default server buffer size is 64 KB.
package unix
