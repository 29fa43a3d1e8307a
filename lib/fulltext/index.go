package fulltext

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// analyzerName splits the pre-folded text produced by Tokenize on spaces
	analyzerName = "ckv_folded"
	textField    = "text"
)

// Hit is a single search result
type Hit struct {
	ID    string  // Document identifier
	Score float64 // Relevance as computed by bleve, higher is better
}

type opType uint8

const (
	opTAdd opType = iota
	opTDelete
)

type op struct {
	typ  opType
	id   string
	text string
}

// Index is an in-memory full-text index backed by bleve.
//
// Writes are staged: Add and Delete only record the operation, Flush applies
// all staged operations as one bleve batch and Discard drops them. Staged
// operations are invisible to Search.
//
// Thread-safety: all methods are safe for concurrent use. Staging and flushing
// is expected to be driven by a single writer at a time.
type Index struct {
	idx bleve.Index

	pendingMu sync.Mutex
	pending   []op
}

// NewIndex creates an empty index
func NewIndex() (*Index, error) {
	m := bleve.NewIndexMapping()
	if err := m.AddCustomAnalyzer(analyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": whitespace.Name,
	}); err != nil {
		return nil, fmt.Errorf("fulltext: register analyzer: %w", err)
	}
	m.DefaultAnalyzer = analyzerName
	m.StoreDynamic = false
	m.DocValuesDynamic = false

	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("fulltext: create index: %w", err)
	}
	return &Index{idx: idx}, nil
}

// Add stages indexing text under id. An existing document with the same id
// is replaced on Flush.
func (ix *Index) Add(id, text string) {
	ix.pendingMu.Lock()
	ix.pending = append(ix.pending, op{typ: opTAdd, id: id, text: text})
	ix.pendingMu.Unlock()
}

// Delete stages removing the document with the given id.
func (ix *Index) Delete(id string) {
	ix.pendingMu.Lock()
	ix.pending = append(ix.pending, op{typ: opTDelete, id: id})
	ix.pendingMu.Unlock()
}

// Pending returns the number of staged operations.
func (ix *Index) Pending() int {
	ix.pendingMu.Lock()
	defer ix.pendingMu.Unlock()
	return len(ix.pending)
}

// Discard drops all staged operations.
func (ix *Index) Discard() {
	ix.pendingMu.Lock()
	ix.pending = nil
	ix.pendingMu.Unlock()
}

// Flush applies all staged operations atomically. Within one flush the last
// operation on an id wins. The staged operations are dropped even if the
// batch fails.
func (ix *Index) Flush() error {
	ix.pendingMu.Lock()
	ops := ix.pending
	ix.pending = nil
	ix.pendingMu.Unlock()

	if len(ops) == 0 {
		return nil
	}

	b := ix.idx.NewBatch()
	for _, o := range ops {
		if o.typ == opTDelete {
			b.Delete(o.id)
			continue
		}
		tokens := Tokenize(o.text)
		if len(tokens) == 0 {
			// nothing searchable, drop a previous version of the document
			b.Delete(o.id)
			continue
		}
		if err := b.Index(o.id, map[string]interface{}{textField: strings.Join(tokens, " ")}); err != nil {
			return fmt.Errorf("fulltext: index %s: %w", o.id, err)
		}
	}
	if err := ix.idx.Batch(b); err != nil {
		return fmt.Errorf("fulltext: apply batch: %w", err)
	}
	return nil
}

// Search returns the documents containing every term of query, ordered by
// score (descending) and id. A limit <= 0 returns all hits. A query without
// any searchable term returns no hits.
func (ix *Index) Search(q string, limit int) ([]Hit, error) {
	tokens := Tokenize(q)
	if len(tokens) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(tokens))
	terms := make([]query.Query, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tq := bleve.NewTermQuery(t)
		tq.SetField(textField)
		terms = append(terms, tq)
	}

	size := limit
	if size <= 0 {
		n, err := ix.idx.DocCount()
		if err != nil {
			return nil, fmt.Errorf("fulltext: count documents: %w", err)
		}
		size = int(n)
	}
	if size == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(terms...), size, 0, false)
	req.SortBy([]string{"-_score", "_id"})
	res, err := ix.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("fulltext: search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	n, err := ix.idx.DocCount()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close releases the index.
func (ix *Index) Close() error {
	return ix.idx.Close()
}
