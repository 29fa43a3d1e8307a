// Package maple implements an in-memory, transactional object engine (db.ObjectDB)
// with ordered buckets. It is the default engine of the continuous layer and the
// local state of every dstore replica.
//
// The package focuses on:
//   - Ordered key spaces (buckets) backed by copy-on-write B-trees
//   - Atomic application of buffered write batches
//   - Consistent range scans that never block committers
//   - Persistent snapshots with an efficient binary encoding
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.ObjectDB. It owns a
//     registry of buckets (xsync.MapOf keyed by bucket name) and serializes commits.
//     A monotonically increasing write index counts the committed batches.
//
//   - Bucket: One ordered key space. Each bucket holds a google/btree BTreeG guarded by
//     its own RWMutex. Buckets are created on the first write that touches them.
//
//   - mapleTx: A transaction handle. Reads go straight to the committed state, writes
//     are buffered as internal.Write values and applied by Commit.
//
// Internal Mechanisms:
//
//   - Commit: All buckets touched by a batch are write locked in name order before
//     the first write is applied and released after the last one. Readers therefore
//     observe either the complete batch or none of it. Later writes of the same key in
//     one batch win.
//
//   - Scan: A scan takes a lazy clone of the bucket tree (O(1), copy-on-write) and
//     iterates the clone without holding any lock. The callback may therefore start
//     and commit other transactions, and the scan keeps seeing the state at its start.
//
//   - Read-your-writes: A writable transaction does not observe its own buffered
//     writes. The continuous layer never relies on it.
//
// Persistence Format:
//
// The database can be saved to and loaded from a binary format with the following structure:
//   - Magic Number: "MAPLEDB\0" (8 bytes) to identify the file format
//   - Version: A single byte indicating the format version (currently 4)
//   - Write Index: The number of committed batches (8 bytes)
//   - Bucket Count: The number of buckets (4 bytes)
//   - For each bucket (sorted by name):
//   - Name: length (4 bytes) followed by the name
//   - Entry Count: (8 bytes)
//   - For each entry (ascending key order): key length, key, value length, value
//
// Save copies all buckets while commits are blocked, so the snapshot is consistent.
// Load builds the complete new state before swapping it in.
//
// Usage Example:
//
//	engine := maple.NewMapleDB(nil)
//	defer engine.Close()
//
//	tx, _ := engine.Begin(true)
//	_ = tx.Put("users", []byte("alice"), []byte("..."))
//	_ = tx.Commit()
//
//	tx, _ = engine.Begin(false)
//	defer tx.Rollback()
//	_ = tx.Scan("users", nil, nil, func(k, v []byte) bool {
//		fmt.Printf("%s=%s\n", k, v)
//		return true
//	})
package maple
