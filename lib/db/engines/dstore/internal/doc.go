// Package internal provides the communication protocol structures and serialization
// logic for the dstore engine. It defines the wire format used to transmit write
// batches between the engine client and the replicated state machine.
//
// This package is intended for internal use by the dstore implementation and should
// not be imported directly by external code.
//
// The package consists of two main components:
//
//   - Command System: A Command carries the complete write batch of one committed
//     transaction (Put and Delete operations over arbitrary buckets). Commands are
//     serialized, proposed to the RAFT cluster and applied atomically by every replica.
//
//   - Query System: Defines read operations (Get, Scan, GetDBInfo). Queries are
//     executed locally on the state machine and therefore do not require serialization.
//
// Command Format:
//
//	- 1 byte: Command type (Apply)
//	- 4 bytes: number of writes (uint32, big endian)
//	- per write:
//	  - 1 byte: write type (Put, Delete)
//	  - 2 bytes: bucket length (uint16, big endian)
//	  - 4 bytes: key length (uint32, big endian)
//	  - 4 bytes: value length (uint32, big endian, 0 for Delete)
//	  - bucket, key and value data
//
// Scan queries are paged: the client asks for at most Limit entries and continues
// after the last returned key while More is set.
//
// Thread Safety:
//
//	The types in this package are not thread-safe and should not be shared
//	across goroutines without external synchronization.
package internal
