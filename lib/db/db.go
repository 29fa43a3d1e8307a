package db

import (
	"bytes"
	"fmt"
	"io"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplMaple  Implementation = "maple"
	ImplBolt   Implementation = "bolt"
	ImplDStore Implementation = "dstore"
)

// Feature represents database features as bit flags
type Feature uint64

const (
	FeatureGet        Feature = 1 << iota // Support for Get operations
	FeaturePut                            // Support for Put operations
	FeatureDelete                         // Support for Delete operations
	FeatureScan                           // Support for ordered range scans
	FeatureSave                           // Support for Save operations
	FeatureLoad                           // Support for Load operations
	FeatureDurable                        // Committed data survives a process restart
	FeatureReplicated                     // Committed data is replicated to other nodes
)

func (f Feature) String() string {
	switch f {
	case FeatureGet:
		return "Get"
	case FeaturePut:
		return "Put"
	case FeatureDelete:
		return "Delete"
	case FeatureScan:
		return "Scan"
	case FeatureSave:
		return "Save"
	case FeatureLoad:
		return "Load"
	case FeatureDurable:
		return "Durable"
	case FeatureReplicated:
		return "Replicated"
	default:
		return "Unknown"
	}
}

type DatabaseInfo struct {
	SizeBytes         int            `json:"size_bytes"`
	DbType            Implementation `json:"db_type"`
	SupportedFeatures []Feature      `json:"supported_features"`
	Metadata          interface{}    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// ObjectDB defines the interface of an embedded, transactional object engine.
// Data is organised in named buckets of ordered byte keys. All reads and writes
// happen inside a Tx. Buckets are created implicitly by the first Put.
type ObjectDB interface {

	// Begin starts a new engine transaction.
	// A read-only transaction (writable=false) rejects Put and Delete.
	Begin(writable bool) (tx Tx, err error)

	// --------------------------------------------------------------------------
	// Persistence Operations
	// --------------------------------------------------------------------------

	// Save persists the current committed state of the database to the provided io.Writer.
	Save(w io.Writer) (err error)

	// Load restores the database state from data provided by an io.Reader.
	// All existing data is replaced.
	Load(r io.Reader) (err error)

	// --------------------------------------------------------------------------
	// Feature Support
	// --------------------------------------------------------------------------

	// SupportsFeature checks if the database implementation supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)

	// GetInfo returns information about the database.
	GetInfo() (info DatabaseInfo)

	// Close closes the database.
	Close() (err error)
}

// Tx is a single engine transaction.
//
// Writes become visible to other transactions atomically on Commit. Whether a
// writable Tx observes its own uncommitted writes is implementation specific,
// callers must not depend on it. A Tx is not safe for concurrent use.
type Tx interface {
	// Get returns a copy of the value stored for key in bucket.
	Get(bucket string, key []byte) (value []byte, ok bool, err error)

	// Put stores value for key in bucket, creating the bucket if needed.
	Put(bucket string, key, value []byte) (err error)

	// Delete removes key from bucket. Deleting a missing key is not an error.
	Delete(bucket string, key []byte) (err error)

	// Scan calls fn for every entry with from <= key < to in ascending key order
	// until fn returns false. A nil bound is open. Key and value passed to fn
	// are copies.
	Scan(bucket string, from, to []byte, fn func(key, value []byte) bool) (err error)

	// Commit applies all writes of the transaction.
	Commit() (err error)

	// Rollback discards the transaction. Calling Rollback after Commit is a no-op.
	Rollback() (err error)
}

// Factory creates a new ObjectDB instance.
type Factory func() (ObjectDB, error)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type returned by all engine implementations.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("ObjectDBError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new engine error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the engine.
	RetCInvalidOperation                    // 3: Invalid operation (e.g. write in a read-only tx).
	RetCTxClosed                            // 4: The transaction was already committed or rolled back.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCTxClosed:
		return "TxClosed"
	default:
		return "Unknown"
	}
}

// ErrTxClosed is returned by every operation on a finished transaction.
var ErrTxClosed = NewError(RetCTxClosed, "transaction already closed")

// ErrReadOnly is returned by writes in a read-only transaction.
var ErrReadOnly = NewError(RetCInvalidOperation, "write in read-only transaction")

// --------------------------------------------------------------------------
// Range Helpers
// --------------------------------------------------------------------------

// PrefixRange returns the scan bounds [from, to) covering all keys with the given prefix.
// An empty prefix covers the whole bucket.
func PrefixRange(prefix []byte) (from, to []byte) {
	if len(prefix) == 0 {
		return nil, nil
	}
	from = append([]byte(nil), prefix...)
	to = append([]byte(nil), prefix...)
	for i := len(to) - 1; i >= 0; i-- {
		if to[i] < 0xff {
			to[i]++
			return from, to[:i+1]
		}
	}
	// prefix is all 0xff -> no upper bound
	return from, nil
}

// InRange reports whether from <= key < to (nil bounds are open).
func InRange(key, from, to []byte) bool {
	if from != nil && bytes.Compare(key, from) < 0 {
		return false
	}
	if to != nil && bytes.Compare(key, to) >= 0 {
		return false
	}
	return true
}
