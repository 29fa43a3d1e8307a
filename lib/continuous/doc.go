// Package continuous implements multi-version records with optimistic
// concurrency control on top of a db.ObjectDB engine.
//
// Every record lives in a VersionHistory, an append-only list of committed
// Versions. A transaction (Tx) reads the database as of its snapshot, the id
// of the last transaction committed when it began, and collects its writes as
// working copies: at most one per history. Nothing is locked while a
// transaction runs. Commit serializes on the exclusive root lock and
//
//  1. rejects the transaction if a touched record got a newer version after
//     the snapshot (ErrConflict),
//  2. checks unique indices against the latest committed state (ErrNotUnique),
//  3. retires the transaction from the active set, which advances the
//     watermark below which limited histories may drop old versions,
//  4. allocates the next transaction id,
//  5. stamps and appends the working copies, links new records into the
//     extents of their table and all super tables, prunes limited histories
//     and maintains secondary and full-text indices,
//  6. commits the engine transaction and publishes the full-text changes,
//  7. applies the result in memory.
//
// Any failure aborts the transaction, nothing is persisted. Readers take the
// shared root lock for the duration of a single call.
//
// Engine Layout:
//
//	root                  trans-id, next-oid
//	versions              oid|seq -> header|record
//	extent/<table>        oid
//	index/<table>/<index> escaped key|00 01|oid|seq
//
// Open replays the versions bucket into memory and rebuilds the full-text
// indices, extents and secondary indices are used as stored.
//
// Usage Example:
//
//	schema := continuous.NewSchema()
//	people := schema.MustRegister(continuous.TableDef{
//		Name: "person",
//		New:  func() continuous.Record { return &Person{} },
//		Indices: []continuous.IndexDef{{
//			Name:   "name",
//			Unique: true,
//			Key: func(r continuous.Record) [][]byte {
//				return continuous.Keys(continuous.StringKey(r.(*Person).Name))
//			},
//		}},
//	})
//
//	database, err := continuous.Open(engine, schema, continuous.DefaultOptions())
//	tx, err := database.Begin()
//	v, err := tx.Insert(people, &Person{Name: "Ada"})
//	err = tx.Commit()
//
// Reads outside a transaction (Database.Select, VersionHistory.Current with
// a nil Tx, ...) observe the latest committed state and are not snapshot
// consistent.
package continuous
