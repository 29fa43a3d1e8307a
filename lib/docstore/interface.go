package docstore

import (
	"time"

	"github.com/ValentinKolb/cKV/lib/continuous"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// TxID addresses an open transaction of a document store.
// The empty TxID runs the call in its own transaction that commits on return.
type TxID string

// AutoCommit is the TxID of one-shot transactions.
const AutoCommit TxID = ""

// Doc is a document and the version it was read from.
type Doc struct {
	Key     string    `json:"key"`
	Content string    `json:"content"`
	Tags    []string  `json:"tags,omitempty"`
	OID     uint64    `json:"oid,omitempty"`
	Seq     uint32    `json:"seq,omitempty"`
	TransID uint64    `json:"trans_id,omitempty"`
	Created time.Time `json:"created,omitempty"`
	Draft   bool      `json:"draft,omitempty"`   // uncommitted working copy of the transaction
	Deleted bool      `json:"deleted,omitempty"` // deletion marker (History only)
}

// IDocStore is a versioned document store.
//
// Reads inside a transaction see its snapshot plus its own uncommitted
// writes. Errors are *continuous.Error values, so callers can test them with
// errors.Is(err, continuous.ErrConflict) and friends.
type IDocStore interface {
	// Begin opens a transaction and returns its id.
	Begin() (TxID, error)
	// Put inserts the document or updates the document with the same key.
	Put(tx TxID, doc Doc) (Doc, error)
	// Get returns the current document with the given key.
	Get(tx TxID, key string) (doc Doc, ok bool, err error)
	// Delete deletes the document with the given key. It reports whether a
	// document existed.
	Delete(tx TxID, key string) (ok bool, err error)
	// Range returns the documents with from <= key <= till ordered by key.
	// An empty bound is open.
	Range(tx TxID, from, till string) ([]Doc, error)
	// Tagged returns the documents carrying the tag ordered by object id.
	Tagged(tx TxID, tag string) ([]Doc, error)
	// Search returns the documents containing all terms of the query, best
	// match first. A limit <= 0 returns all matches.
	Search(tx TxID, query string, limit int) ([]Doc, error)
	// History returns all retained committed versions of the documents that
	// used the key, oldest first, deletion markers included.
	History(key string) ([]Doc, error)
	// Commit commits the transaction.
	Commit(tx TxID) error
	// Rollback discards the transaction.
	Rollback(tx TxID) error
	// Info returns the state of the underlying database.
	Info() (continuous.Info, error)
	// Close releases the store. Open transactions are discarded.
	Close() error
}
