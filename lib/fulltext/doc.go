// Package fulltext provides an in-memory full-text index on top of bleve.
//
// Documents are identified by an opaque string id. Text is split into terms
// by Tokenize (Unicode decomposition, mark removal and case folding via
// golang.org/x/text) before it reaches bleve, so indexing and the draft
// matching of the continuous package agree on what a term is. Search
// combines query terms with AND (a bleve conjunction of term queries) and
// orders hits by bleve's score, ties by id.
//
// Index writes are staged and applied by Flush as one bleve batch, which lets
// a caller add and delete documents while preparing a transaction and publish
// them only once the transaction is durable:
//
//	ix, err := fulltext.NewIndex()
//	if err != nil { ... }
//	ix.Add("doc-1", "The quick brown fox")
//	if err := ix.Flush(); err != nil { ... }
//	hits, err := ix.Search("quick fox", 10)
package fulltext
