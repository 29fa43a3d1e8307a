package testing

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/cKV/lib/continuous"
	"github.com/ValentinKolb/cKV/lib/docstore"
)

// StoreFactory is a function that creates a new, empty document store
type StoreFactory func(t *testing.T) docstore.IDocStore

// RunDocStoreTests runs the conformance test suite for an IDocStore implementation.
func RunDocStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, open(t, factory))
		})

		t.Run("Transaction", func(t *testing.T) {
			testTransaction(t, open(t, factory))
		})

		t.Run("Rollback", func(t *testing.T) {
			testRollback(t, open(t, factory))
		})

		t.Run("Conflict", func(t *testing.T) {
			testConflict(t, open(t, factory))
		})

		t.Run("Unique", func(t *testing.T) {
			testUnique(t, open(t, factory))
		})

		t.Run("Delete&History", func(t *testing.T) {
			testDeleteHistory(t, open(t, factory))
		})

		t.Run("Queries", func(t *testing.T) {
			testQueries(t, open(t, factory))
		})

		t.Run("UnknownTransaction", func(t *testing.T) {
			testUnknownTransaction(t, open(t, factory))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, open(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func open(t *testing.T, factory StoreFactory) docstore.IDocStore {
	s := factory(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustPut(t *testing.T, s docstore.IDocStore, tx docstore.TxID, key, content string, tags ...string) docstore.Doc {
	t.Helper()
	doc, err := s.Put(tx, docstore.Doc{Key: key, Content: content, Tags: tags})
	if err != nil {
		t.Fatalf("Put(%s) failed: %v", key, err)
	}
	return doc
}

func mustBegin(t *testing.T, s docstore.IDocStore) docstore.TxID {
	t.Helper()
	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	return tx
}

func keys(docs []docstore.Doc) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Key)
	}
	return out
}

func expectKeys(t *testing.T, what string, docs []docstore.Doc, err error, want ...string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s failed: %v", what, err)
	}
	got := keys(docs)
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", what, got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("%s = %v, want %v", what, got, want)
		}
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, s docstore.IDocStore) {
	first := mustPut(t, s, docstore.AutoCommit, "a", "hello", "x")
	if first.OID == 0 || first.Seq != 1 || first.TransID == 0 || first.Draft {
		t.Errorf("Unexpected committed document %+v", first)
	}

	doc, ok, err := s.Get(docstore.AutoCommit, "a")
	if err != nil || !ok {
		t.Fatalf("Get failed: %v (found %v)", err, ok)
	}
	if doc.Content != "hello" || len(doc.Tags) != 1 || doc.Tags[0] != "x" {
		t.Errorf("Unexpected document %+v", doc)
	}

	second := mustPut(t, s, docstore.AutoCommit, "a", "world")
	if second.OID != first.OID || second.Seq != 2 || second.TransID <= first.TransID {
		t.Errorf("Update must append to the same history, got %+v", second)
	}

	if _, ok, _ := s.Get(docstore.AutoCommit, "missing"); ok {
		t.Errorf("Get of a missing key must not find a document")
	}
	if _, err := s.Put(docstore.AutoCommit, docstore.Doc{}); err == nil {
		t.Errorf("Put without key must fail")
	}
}

func testTransaction(t *testing.T, s docstore.IDocStore) {
	tx := mustBegin(t, s)

	draft := mustPut(t, s, tx, "a", "draft")
	if !draft.Draft {
		t.Errorf("Document written in a transaction must be a draft")
	}
	if doc, ok, _ := s.Get(tx, "a"); !ok || doc.Content != "draft" {
		t.Errorf("Transaction must read its own writes")
	}
	if _, ok, _ := s.Get(docstore.AutoCommit, "a"); ok {
		t.Errorf("Uncommitted document visible outside the transaction")
	}

	// a second put in the same transaction reuses the working copy
	mustPut(t, s, tx, "a", "final")

	if err := s.Commit(tx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	doc, ok, _ := s.Get(docstore.AutoCommit, "a")
	if !ok || doc.Content != "final" || doc.Seq != 1 {
		t.Errorf("Unexpected committed document %+v", doc)
	}

	if err := s.Commit(tx); !errors.Is(err, continuous.ErrTransactionNotStarted) {
		t.Errorf("Second commit must fail with ErrTransactionNotStarted, got %v", err)
	}
}

func testRollback(t *testing.T, s docstore.IDocStore) {
	mustPut(t, s, docstore.AutoCommit, "a", "kept")

	tx := mustBegin(t, s)
	mustPut(t, s, tx, "a", "discarded")
	mustPut(t, s, tx, "b", "discarded")
	if err := s.Rollback(tx); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if doc, _, _ := s.Get(docstore.AutoCommit, "a"); doc.Content != "kept" {
		t.Errorf("Rollback must keep the committed content, got %q", doc.Content)
	}
	if _, ok, _ := s.Get(docstore.AutoCommit, "b"); ok {
		t.Errorf("Rolled back insert must not be visible")
	}
	if _, _, err := s.Get(tx, "a"); err == nil {
		t.Errorf("Rolled back transaction must not be usable")
	}
}

func testConflict(t *testing.T, s docstore.IDocStore) {
	mustPut(t, s, docstore.AutoCommit, "a", "v1")

	tx1 := mustBegin(t, s)
	tx2 := mustBegin(t, s)
	mustPut(t, s, tx1, "a", "from tx1")
	mustPut(t, s, tx2, "a", "from tx2")

	if err := s.Commit(tx1); err != nil {
		t.Fatalf("First commit failed: %v", err)
	}
	if err := s.Commit(tx2); !errors.Is(err, continuous.ErrConflict) {
		t.Fatalf("Expected ErrConflict, got %v", err)
	}

	if doc, _, _ := s.Get(docstore.AutoCommit, "a"); doc.Content != "from tx1" {
		t.Errorf("Losing transaction must not change the document, got %q", doc.Content)
	}
}

func testUnique(t *testing.T, s docstore.IDocStore) {
	tx1 := mustBegin(t, s)
	tx2 := mustBegin(t, s)
	mustPut(t, s, tx1, "a", "one")
	mustPut(t, s, tx2, "a", "two")

	if err := s.Commit(tx1); err != nil {
		t.Fatalf("First commit failed: %v", err)
	}
	if err := s.Commit(tx2); !errors.Is(err, continuous.ErrNotUnique) {
		t.Fatalf("Expected ErrNotUnique, got %v", err)
	}
}

func testDeleteHistory(t *testing.T, s docstore.IDocStore) {
	first := mustPut(t, s, docstore.AutoCommit, "a", "v1")
	mustPut(t, s, docstore.AutoCommit, "a", "v2")

	ok, err := s.Delete(docstore.AutoCommit, "a")
	if err != nil || !ok {
		t.Fatalf("Delete failed: %v (found %v)", err, ok)
	}
	if _, ok, _ := s.Get(docstore.AutoCommit, "a"); ok {
		t.Errorf("Deleted document must not be found")
	}
	if ok, err := s.Delete(docstore.AutoCommit, "a"); ok || err != nil {
		t.Errorf("Deleting a missing document must report false, got %v (%v)", ok, err)
	}

	// the key can be reused after a delete
	again := mustPut(t, s, docstore.AutoCommit, "a", "v3")
	if again.OID == first.OID {
		t.Errorf("Reinserted document must start a new history")
	}

	history, err := s.History("a")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("Expected 4 versions, got %+v", history)
	}
	contents := []string{history[0].Content, history[1].Content, history[3].Content}
	if contents[0] != "v1" || contents[1] != "v2" || contents[2] != "v3" {
		t.Errorf("Unexpected history contents %v", contents)
	}
	if !history[2].Deleted || history[2].OID != first.OID {
		t.Errorf("Expected the deletion marker of the first history, got %+v", history[2])
	}
}

func testQueries(t *testing.T, s docstore.IDocStore) {
	mustPut(t, s, docstore.AutoCommit, "a", "hello world", "x")
	mustPut(t, s, docstore.AutoCommit, "b", "hello hello", "x", "y")
	mustPut(t, s, docstore.AutoCommit, "c", "goodbye", "y")

	docs, err := s.Range(docstore.AutoCommit, "a", "b")
	expectKeys(t, "Range(a, b)", docs, err, "a", "b")

	docs, err = s.Range(docstore.AutoCommit, "b", "")
	expectKeys(t, "Range(b, )", docs, err, "b", "c")

	docs, err = s.Tagged(docstore.AutoCommit, "y")
	expectKeys(t, "Tagged(y)", docs, err, "b", "c")

	docs, err = s.Search(docstore.AutoCommit, "Hello", 0)
	expectKeys(t, "Search(hello)", docs, err, "b", "a")

	docs, err = s.Search(docstore.AutoCommit, "hello", 1)
	expectKeys(t, "Search(hello, 1)", docs, err, "b")

	// queries inside a transaction see its working copies
	tx := mustBegin(t, s)
	defer s.Rollback(tx)
	mustPut(t, s, tx, "d", "hello again", "x")
	if _, err := s.Delete(tx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	docs, err = s.Range(tx, "", "")
	expectKeys(t, "Range in tx", docs, err, "b", "c", "d")

	docs, err = s.Tagged(tx, "x")
	expectKeys(t, "Tagged in tx", docs, err, "b", "d")

	docs, err = s.Search(tx, "again", 0)
	expectKeys(t, "Search in tx", docs, err, "d")
}

func testUnknownTransaction(t *testing.T, s docstore.IDocStore) {
	const unknown docstore.TxID = "00000000-0000-0000-0000-000000000000"

	if _, err := s.Put(unknown, docstore.Doc{Key: "a"}); !errors.Is(err, continuous.ErrTransactionNotStarted) {
		t.Errorf("Put: expected ErrTransactionNotStarted, got %v", err)
	}
	if err := s.Commit(unknown); !errors.Is(err, continuous.ErrTransactionNotStarted) {
		t.Errorf("Commit: expected ErrTransactionNotStarted, got %v", err)
	}
	if err := s.Rollback(unknown); !errors.Is(err, continuous.ErrTransactionNotStarted) {
		t.Errorf("Rollback: expected ErrTransactionNotStarted, got %v", err)
	}
}

func testInfo(t *testing.T, s docstore.IDocStore) {
	mustPut(t, s, docstore.AutoCommit, "a", "one")
	mustPut(t, s, docstore.AutoCommit, "a", "two")
	mustPut(t, s, docstore.AutoCommit, "b", "three")

	tx := mustBegin(t, s)
	defer s.Rollback(tx)

	info, err := s.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Histories != 2 || info.Versions != 3 || info.ActiveTransactions != 1 {
		t.Errorf("Unexpected info %+v", info)
	}
	if info.LastTransID != 3 {
		t.Errorf("Expected last transaction id 3, got %d", info.LastTransID)
	}
}
