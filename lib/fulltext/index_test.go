package fulltext

import (
	"reflect"
	"testing"

	"github.com/blevesearch/bleve/v2"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"Empty", "", nil},
		{"Simple", "Hello World", []string{"hello", "world"}},
		{"Punctuation", "key=value, other;thing", []string{"key", "value", "other", "thing"}},
		{"Accents", "Crème BRÛLÉE", []string{"creme", "brulee"}},
		{"ShortDropped", "a b cd e", []string{"cd"}},
		{"Digits", "v2 release 2024", []string{"v2", "release", "2024"}},
		{"Duplicates", "go go GO", []string{"go", "go", "go"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func newIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := NewIndex()
	if err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

func mustFlush(t *testing.T, ix *Index) {
	t.Helper()
	if err := ix.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
}

func mustSearch(t *testing.T, ix *Index, q string, limit int) []Hit {
	t.Helper()
	hits, err := ix.Search(q, limit)
	if err != nil {
		t.Fatalf("Search(%q) failed: %v", q, err)
	}
	return hits
}

func ids(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}

// contains reports whether a document with id is indexed (flushed)
func contains(ix *Index, id string) bool {
	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{id}), 1, 0, false)
	res, err := ix.idx.Search(req)
	return err == nil && res.Total > 0
}

func TestStagedWrites(t *testing.T) {
	ix := newIndex(t)
	ix.Add("1", "alpha beta")

	if hits := mustSearch(t, ix, "alpha", 0); len(hits) != 0 {
		t.Fatalf("Staged document must be invisible, got %v", hits)
	}
	if ix.Pending() != 1 {
		t.Errorf("Expected 1 pending operation, got %d", ix.Pending())
	}

	mustFlush(t, ix)
	if ix.Pending() != 0 {
		t.Errorf("Flush must clear pending operations")
	}
	if hits := mustSearch(t, ix, "alpha", 0); len(hits) != 1 || hits[0].ID != "1" {
		t.Fatalf("Expected hit for document 1, got %v", hits)
	}

	ix.Delete("1")
	ix.Add("2", "alpha")
	ix.Discard()
	mustFlush(t, ix)
	if !contains(ix, "1") || contains(ix, "2") {
		t.Errorf("Discarded operations must not be applied")
	}
}

func TestSearch(t *testing.T) {
	ix := newIndex(t)
	ix.Add("a", "fox dog")
	ix.Add("b", "fox fox")
	ix.Add("c", "Fox, dog!")
	ix.Add("d", "dog")
	ix.Add("e", "Crème brûlée")
	mustFlush(t, ix)

	t.Run("TermFrequencyRanks", func(t *testing.T) {
		got := mustSearch(t, ix, "fox", 0)
		if want := []string{"b", "a", "c"}; !reflect.DeepEqual(ids(got), want) {
			t.Fatalf("got %v, want %v", ids(got), want)
		}
		if got[0].Score <= got[1].Score {
			t.Errorf("More occurrences must score higher: %v", got)
		}
		if got[1].Score != got[2].Score {
			t.Errorf("Equal documents must score equal: %v", got)
		}
	})

	t.Run("AndTerms", func(t *testing.T) {
		got := mustSearch(t, ix, "dog FOX", 0)
		if want := []string{"a", "c"}; !reflect.DeepEqual(ids(got), want) {
			t.Errorf("got %v, want %v", ids(got), want)
		}
	})

	t.Run("Limit", func(t *testing.T) {
		got := mustSearch(t, ix, "fox fox", 1)
		if want := []string{"b"}; !reflect.DeepEqual(ids(got), want) {
			t.Errorf("got %v, want %v", ids(got), want)
		}
	})

	t.Run("Folding", func(t *testing.T) {
		got := mustSearch(t, ix, "CREME", 0)
		if want := []string{"e"}; !reflect.DeepEqual(ids(got), want) {
			t.Errorf("got %v, want %v", ids(got), want)
		}
	})

	t.Run("UnknownTerm", func(t *testing.T) {
		if got := mustSearch(t, ix, "fox cat", 0); len(got) != 0 {
			t.Errorf("Expected no hits, got %v", got)
		}
	})

	t.Run("NoTerms", func(t *testing.T) {
		if got := mustSearch(t, ix, "! ?", 0); got != nil {
			t.Errorf("Expected nil, got %v", got)
		}
	})
}

func TestReplaceAndDelete(t *testing.T) {
	ix := newIndex(t)
	ix.Add("1", "red green")
	mustFlush(t, ix)

	ix.Add("1", "blue")
	mustFlush(t, ix)

	if hits := mustSearch(t, ix, "red", 0); len(hits) != 0 {
		t.Errorf("Replaced terms must be gone, got %v", hits)
	}
	if hits := mustSearch(t, ix, "blue", 0); len(hits) != 1 {
		t.Errorf("Expected new term to be indexed, got %v", hits)
	}
	if ix.Len() != 1 {
		t.Errorf("Expected 1 document, got %d", ix.Len())
	}

	// the last staged operation on an id wins
	ix.Add("2", "yellow")
	ix.Delete("2")
	ix.Delete("1")
	ix.Delete("missing")
	mustFlush(t, ix)
	if ix.Len() != 0 {
		t.Errorf("Expected empty index, got %d docs", ix.Len())
	}

	// text without searchable terms removes the document
	ix.Add("3", "purple")
	mustFlush(t, ix)
	ix.Add("3", "! ?")
	mustFlush(t, ix)
	if contains(ix, "3") {
		t.Errorf("Document without terms must not stay indexed")
	}
}
