// Package tcp implements the TCP socket transport of the cKV RPC system. It
// provides the TCP connectors of the base package, which does the framing,
// connection pooling and request routing.
//
// Both sides apply the common.SocketConf options (TCP_NODELAY, keep alive,
// linger, socket buffer sizes) to every connection. The default server
// buffer size is 512 KB.
package tcp
