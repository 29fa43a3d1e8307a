// Package client implements the RPC client of the document store. It provides
// an implementation of docstore.IDocStore that forwards every call to a server
// via the configured transport and serializer.
//
// Key Components:
//
//   - NewRPCDocStore: Factory function that creates a client implementing the
//     docstore.IDocStore interface for one shard of a server.
//
// Transactions live on the server and are addressed by the TxID returned by
// Begin. Errors of the continuous layer keep their code across the wire, so
// errors.Is(err, continuous.ErrConflict) works for remote commits as well.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  Endpoints:     []string{"http://localhost:8080"},
//	  TimeoutSecond: 5,
//	  RetryCount:    3,
//	}
//
//	// Create the document store client
//	store, _ := client.NewRPCDocStore(1, config, tcp.NewTCPClientTransport(), serializer.NewJSONSerializer())
//
//	// Use the store
//	tx, _ := store.Begin()
//	store.Put(tx, docstore.Doc{Key: "readme", Content: "hello"})
//	if err := store.Commit(tx); errors.Is(err, continuous.ErrConflict) {
//	  // retry
//	}
//
// Thread Safety:
//
//	All client implementations are thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
