package docstore

import (
	"sync"

	"github.com/ValentinKolb/cKV/lib/continuous"
	"github.com/ValentinKolb/cKV/lib/db"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("docstore")

// handle is an open transaction. A continuous.Tx must not be used
// concurrently, remote clients may still send overlapping calls.
type handle struct {
	mu sync.Mutex
	tx *continuous.Tx
}

type localStore struct {
	db    *continuous.Database
	table *continuous.Table
	txs   *xsync.MapOf[string, *handle]
}

// NewLocalDocStore opens a document store on top of the engine.
// The engine may already hold documents of an earlier run.
func NewLocalDocStore(engine db.ObjectDB, opts continuous.Options) (IDocStore, error) {
	d, err := continuous.Open(engine, NewSchema(), opts)
	if err != nil {
		return nil, err
	}
	table, _ := d.Schema().Table(tableDocument)
	return &localStore{
		db:    d,
		table: table,
		txs:   xsync.NewMapOf[string, *handle](),
	}, nil
}

// withTx runs fn in the transaction tx, or in a one-shot transaction that
// commits when fn succeeds.
func (s *localStore) withTx(id TxID, fn func(tx *continuous.Tx) error) error {
	if id == AutoCommit {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}

	h, ok := s.txs.Load(string(id))
	if !ok {
		return continuous.NewError(continuous.ErrCTransactionNotStarted, "unknown transaction "+string(id))
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.tx.Active() {
		return continuous.NewError(continuous.ErrCTransactionNotStarted, "transaction "+string(id)+" has ended")
	}
	return fn(h.tx)
}

// end removes the transaction id and hands out its handle.
func (s *localStore) end(id TxID) (*handle, error) {
	h, ok := s.txs.LoadAndDelete(string(id))
	if !ok {
		return nil, continuous.NewError(continuous.ErrCTransactionNotStarted, "unknown transaction "+string(id))
	}
	return h, nil
}

// current returns the current version of the document with the given key
func (s *localStore) current(tx *continuous.Tx, key string) (*continuous.Version, error) {
	return tx.FindOne(s.table, indexKey, continuous.StringKey(key))
}

// --------------------------------------------------------------------------
// Interface Methods (docu see docstore/interface.go)
// --------------------------------------------------------------------------

func (s *localStore) Begin() (TxID, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	s.txs.Store(id, &handle{tx: tx})
	return TxID(id), nil
}

func (s *localStore) Put(id TxID, doc Doc) (Doc, error) {
	if doc.Key == "" {
		return Doc{}, continuous.NewError(continuous.ErrCSchema, "document key must not be empty")
	}
	var v *continuous.Version
	err := s.withTx(id, func(tx *continuous.Tx) (err error) {
		if v, err = s.current(tx, doc.Key); err != nil {
			return err
		}
		if v == nil {
			v, err = tx.Insert(s.table, &document{Key: doc.Key})
		} else {
			v, err = tx.Update(v)
		}
		if err != nil {
			return err
		}
		r := v.Record().(*document)
		r.Content = doc.Content
		r.Tags = append([]string(nil), doc.Tags...)
		return nil
	})
	if err != nil {
		return Doc{}, err
	}
	// after an auto commit v is the committed version
	return toDoc(v), nil
}

func (s *localStore) Get(id TxID, key string) (doc Doc, ok bool, err error) {
	err = s.withTx(id, func(tx *continuous.Tx) error {
		v, err := s.current(tx, key)
		if v != nil {
			doc, ok = toDoc(v), true
		}
		return err
	})
	return doc, ok, err
}

func (s *localStore) Delete(id TxID, key string) (ok bool, err error) {
	err = s.withTx(id, func(tx *continuous.Tx) error {
		v, err := s.current(tx, key)
		if err != nil || v == nil {
			return err
		}
		ok = true
		_, err = tx.Delete(v)
		return err
	})
	return ok, err
}

func (s *localStore) Range(id TxID, from, till string) (docs []Doc, err error) {
	var lo, hi []byte
	if from != "" {
		lo = continuous.StringKey(from)
	}
	if till != "" {
		hi = continuous.StringKey(till)
	}
	err = s.withTx(id, func(tx *continuous.Tx) error {
		vs, err := tx.Find(s.table, indexKey, lo, hi, continuous.Current()).Collect()
		docs = toDocs(vs)
		return err
	})
	return docs, err
}

func (s *localStore) Tagged(id TxID, tag string) (docs []Doc, err error) {
	k := continuous.StringKey(tag)
	err = s.withTx(id, func(tx *continuous.Tx) error {
		vs, err := tx.Find(s.table, indexTag, k, k, continuous.Current()).Collect()
		docs = toDocs(vs)
		return err
	})
	return docs, err
}

func (s *localStore) Search(id TxID, query string, limit int) (docs []Doc, err error) {
	err = s.withTx(id, func(tx *continuous.Tx) error {
		vs, err := tx.Search(s.table, query, continuous.Current(), limit).Collect()
		docs = toDocs(vs)
		return err
	})
	return docs, err
}

func (s *localStore) History(key string) ([]Doc, error) {
	k := continuous.StringKey(key)
	vs, err := s.db.Find(s.table, indexKey, k, k, continuous.All()).Collect()
	if err != nil {
		return nil, err
	}

	var (
		docs []Doc
		seen = make(map[*continuous.VersionHistory]struct{})
	)
	for _, v := range vs {
		h := v.History()
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		for _, hv := range h.Versions() {
			docs = append(docs, toDoc(hv))
		}
	}
	return docs, nil
}

func (s *localStore) Commit(id TxID) error {
	h, err := s.end(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tx.Commit()
}

func (s *localStore) Rollback(id TxID) error {
	h, err := s.end(id)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tx.Rollback()
}

func (s *localStore) Info() (continuous.Info, error) {
	return s.db.Info(), nil
}

func (s *localStore) Close() error {
	discarded := 0
	s.txs.Range(func(id string, h *handle) bool {
		s.txs.Delete(id)
		h.mu.Lock()
		if h.tx.Active() {
			_ = h.tx.Rollback()
			discarded++
		}
		h.mu.Unlock()
		return true
	})
	if discarded > 0 {
		log.Infof("discarded %d open transactions on close", discarded)
	}
	return s.db.Close()
}
