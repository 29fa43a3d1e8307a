// Package common provides the data structures shared by the RPC server, the
// client and the transports of the document store.
//
// The package focuses on:
//   - Message protocol definition for client/server communication
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat
//   - Utilities for Dragonboat (RAFT) integration
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication, with a flexible
//     structure that adapts to the different docstore operations. Includes
//     factory methods for requests and responses. Errors of the continuous
//     layer travel as message plus ErrCode and are rebuilt by AsError, so a
//     remote conflict is still errors.Is(err, continuous.ErrConflict).
//
//   - MessageType: Enumeration of all supported operations (the IDocStore
//     methods) plus control messages.
//
//   - ServerConfig: Configuration of a server: the shards it serves
//     (ID=ENGINE[:limited]), RAFT parameters for replicated shards, storage
//     and network settings. Provides conversion to Dragonboat configurations.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
