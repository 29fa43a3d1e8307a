// Package serializer provides message serialization for the document store
// RPC system. It defines a common interface and two implementations for
// serializing and deserializing messages between client and server.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - jsonSerializerImpl: JSON encoding via goccy/go-json, human-readable and
//     the default of the CLI. Message types are written as strings.
//
//   - gobSerializerImpl: Go's gob encoding. Smaller payloads for document
//     lists, only usable between Go peers.
//
// Engine metadata inside database info has no fixed type, the Info payload
// of a message is therefore always JSON, independent of the serializer.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	Serializers are typically created once and reused throughout the application:
//
//	  serializer := serializer.NewJSONSerializer()
//	  data, err := serializer.Serialize(message)
//	  // ... send data ...
//	  var receivedMsg common.Message
//	  err = serializer.Deserialize(receivedData, &receivedMsg)
package serializer
