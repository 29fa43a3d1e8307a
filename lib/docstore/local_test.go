package docstore_test

import (
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/cKV/lib/continuous"
	"github.com/ValentinKolb/cKV/lib/db/engines/bolt"
	"github.com/ValentinKolb/cKV/lib/db/engines/maple"
	"github.com/ValentinKolb/cKV/lib/docstore"
	dstesting "github.com/ValentinKolb/cKV/lib/docstore/testing"
)

func TestLocalDocStore(t *testing.T) {
	dstesting.RunDocStoreTests(t, "Maple", func(t *testing.T) docstore.IDocStore {
		s, err := docstore.NewLocalDocStore(maple.NewMapleDB(nil), continuous.DefaultOptions())
		if err != nil {
			t.Fatalf("NewLocalDocStore failed: %v", err)
		}
		return s
	})

	dstesting.RunDocStoreTests(t, "Bolt", func(t *testing.T) docstore.IDocStore {
		engine, err := bolt.NewBoltDB(filepath.Join(t.TempDir(), "docs.db"), &bolt.DBOptions{NoSync: true})
		if err != nil {
			t.Fatalf("NewBoltDB failed: %v", err)
		}
		s, err := docstore.NewLocalDocStore(engine, continuous.DefaultOptions())
		if err != nil {
			t.Fatalf("NewLocalDocStore failed: %v", err)
		}
		return s
	})
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.db")
	open := func() docstore.IDocStore {
		engine, err := bolt.NewBoltDB(path, &bolt.DBOptions{NoSync: true})
		if err != nil {
			t.Fatalf("NewBoltDB failed: %v", err)
		}
		s, err := docstore.NewLocalDocStore(engine, continuous.DefaultOptions())
		if err != nil {
			t.Fatalf("NewLocalDocStore failed: %v", err)
		}
		return s
	}

	s := open()
	if _, err := s.Put(docstore.AutoCommit, docstore.Doc{Key: "a", Content: "persisted text"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// open transactions are discarded on close
	tx, _ := s.Begin()
	if _, err := s.Put(tx, docstore.Doc{Key: "b", Content: "lost"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s = open()
	defer s.Close()
	doc, ok, err := s.Get(docstore.AutoCommit, "a")
	if err != nil || !ok || doc.Content != "persisted text" {
		t.Fatalf("Reopened store lost the document: %+v (%v)", doc, err)
	}
	if _, ok, _ := s.Get(docstore.AutoCommit, "b"); ok {
		t.Errorf("Uncommitted document survived a reopen")
	}
	if docs, err := s.Search(docstore.AutoCommit, "persisted", 0); err != nil || len(docs) != 1 {
		t.Errorf("Search after reopen = %v (%v)", docs, err)
	}
}
