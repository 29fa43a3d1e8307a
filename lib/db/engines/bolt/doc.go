// Package bolt implements a durable, single node db.ObjectDB on top of bbolt
// (go.etcd.io/bbolt).
//
// Every db.Tx maps to exactly one bbolt transaction. Buckets map to top level
// bbolt buckets and are created on the first Put. Scans use a bbolt cursor
// (Seek, Next). bbolt allows many concurrent readers and one writer, so a
// writable Begin blocks until the previous writer committed or rolled back.
//
// Unlike maple, a writable transaction observes its own uncommitted writes.
//
// Notes:
//   - bbolt only hands out values that are valid inside their transaction. All
//     values returned by this package are copies.
//   - A read-only and a writable transaction must not be open in the same
//     goroutine at the same time, bbolt may need to remap the file on commit.
//   - Save streams a consistent copy of the file (Tx.WriteTo). Load is not
//     supported, restore by placing a saved file at the path before opening it.
package bolt
