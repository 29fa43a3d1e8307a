// Package docstore is a versioned document store on top of the continuous
// transaction layer. Documents are addressed by a unique string key, carry a
// set of tags and a text body that is indexed for full-text search.
//
// Key Components:
//
//   - IDocStore: the interface shared by the local store and the RPC client.
//     Open transactions are addressed by a TxID so they can live on a server
//     while a client drives them. The empty TxID (AutoCommit) runs a single
//     call in its own transaction.
//
//   - Local Store: NewLocalDocStore opens a continuous.Database on any
//     db.ObjectDB engine and keeps open transactions in a concurrent map keyed
//     by random UUIDs.
//
//   - Doc: a plain value describing one version of a document (key, content,
//     tags and the version metadata oid, seq, transaction id, creation time).
//
// Errors are *continuous.Error values: a lost race surfaces as
// continuous.ErrConflict or continuous.ErrNotUnique at commit time and the
// transaction is gone afterwards.
//
// Usage Example:
//
//	s, _ := docstore.NewLocalDocStore(maple.NewMapleDB(nil), continuous.DefaultOptions())
//	tx, _ := s.Begin()
//	s.Put(tx, docstore.Doc{Key: "readme", Content: "hello", Tags: []string{"docs"}})
//	if err := s.Commit(tx); errors.Is(err, continuous.ErrConflict) {
//		// retry
//	}
package docstore
