package internal

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/btree"
)

// btreeDegree is the branching factor of every bucket tree
const btreeDegree = 32

// --------------------------------------------------------------------------
// Op Types are used to describe buffered writes of a transaction
// --------------------------------------------------------------------------

type OpType int

const (
	OpTPut OpType = iota
	OpTDelete
)

func (o OpType) String() string {
	switch o {
	case OpTPut:
		return "Put"
	case OpTDelete:
		return "Delete"
	default:
		return "Unknown"
	}
}

// Write is a single buffered write of a transaction
type Write struct {
	Type   OpType
	Bucket string
	Key    []byte
	Value  []byte
}

func (w Write) String() string {
	return fmt.Sprintf("Write{Type: %s, Bucket: %s, Key: %x}", w.Type, w.Bucket, w.Key)
}

// --------------------------------------------------------------------------
// Entry Type (key-value pair)
// --------------------------------------------------------------------------

// Entry stores a key-value pair inside a bucket tree
type Entry struct {
	Key   []byte
	Value []byte
}

func lessEntry(a, b Entry) bool {
	return bytes.Compare(a.Key, b.Key) < 0
}

// --------------------------------------------------------------------------
// Bucket Type (ordered key space)
// --------------------------------------------------------------------------

// Bucket is one named, ordered key space of the database
type Bucket struct {
	Mu   sync.RWMutex
	Tree *btree.BTreeG[Entry]
}

// NewBucket creates an empty bucket
func NewBucket() *Bucket {
	return &Bucket{
		Tree: btree.NewG[Entry](btreeDegree, lessEntry),
	}
}

// Get returns the value stored for key.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (b *Bucket) Get(key []byte) ([]byte, bool) {
	b.Mu.RLock()
	defer b.Mu.RUnlock()
	e, ok := b.Tree.Get(Entry{Key: key})
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Snapshot returns a lazily copied tree that can be iterated without holding
// the bucket lock. Later writes to the bucket are not visible in the copy.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (b *Bucket) Snapshot() *btree.BTreeG[Entry] {
	// Clone mutates the copy-on-write context of the source, readers are not enough
	b.Mu.Lock()
	defer b.Mu.Unlock()
	return b.Tree.Clone()
}

// Len returns the number of entries in the bucket
func (b *Bucket) Len() int {
	b.Mu.RLock()
	defer b.Mu.RUnlock()
	return b.Tree.Len()
}

// Apply executes a write. The caller must hold the write lock.
func (b *Bucket) Apply(w Write) {
	switch w.Type {
	case OpTPut:
		b.Tree.ReplaceOrInsert(Entry{Key: w.Key, Value: w.Value})
	case OpTDelete:
		b.Tree.Delete(Entry{Key: w.Key})
	}
}

// Ascend calls fn for all entries with from <= key < to (nil = open) on the given tree
func Ascend(tree *btree.BTreeG[Entry], from, to []byte, fn func(e Entry) bool) {
	switch {
	case from == nil && to == nil:
		tree.Ascend(fn)
	case from == nil:
		tree.AscendLessThan(Entry{Key: to}, fn)
	case to == nil:
		tree.AscendGreaterOrEqual(Entry{Key: from}, fn)
	default:
		tree.AscendRange(Entry{Key: from}, Entry{Key: to}, fn)
	}
}
