package continuous

import (
	"bytes"
	"math"
	"time"

	"github.com/ValentinKolb/cKV/lib/db"
	"github.com/ValentinKolb/cKV/lib/db/util"
	"github.com/ValentinKolb/cKV/lib/fulltext"
)

// --------------------------------------------------------------------------
// Selectors
// --------------------------------------------------------------------------

// SelectorKind chooses which versions of a record a query yields.
type SelectorKind uint8

const (
	SelectCurrent   SelectorKind = iota // The version live at the snapshot
	SelectAll                           // Every version committed at or before the snapshot
	SelectTimeSlice                     // Versions of SelectAll created within [From, Till]
)

// Selector filters the versions of query results. Deletion markers are
// never yielded.
type Selector struct {
	Kind SelectorKind
	From time.Time // TimeSlice only, zero means open
	Till time.Time // TimeSlice only, zero means open
}

// Current selects the version live at the reader's snapshot. Inside a
// transaction its working copies replace their committed versions.
func Current() Selector { return Selector{Kind: SelectCurrent} }

// All selects every visible version.
func All() Selector { return Selector{Kind: SelectAll} }

// TimeSlice selects the visible versions created within [from, till].
func TimeSlice(from, till time.Time) Selector {
	return Selector{Kind: SelectTimeSlice, From: from, Till: till}
}

// matches reports whether the committed version v passes the selector for
// a reader at snapshot.
func (s Selector) matches(v *Version, snapshot uint64) bool {
	if v.state != StateCommitted || v.transID > snapshot {
		return false
	}
	switch s.Kind {
	case SelectCurrent:
		return v.history.IsCurrentForTransaction(v, snapshot)
	case SelectAll:
		return true
	case SelectTimeSlice:
		if !s.From.IsZero() && v.created.Before(s.From) {
			return false
		}
		if !s.Till.IsZero() && v.created.After(s.Till) {
			return false
		}
		return true
	default:
		return false
	}
}

// --------------------------------------------------------------------------
// Iterator
// --------------------------------------------------------------------------

// candidate is a raw engine hit: a whole history (seq 0, from an extent) or
// a single version (from an index or the full-text index).
type candidate struct {
	oid uint64
	seq uint32
}

// Iterator yields the versions of a query.
//
// The raw candidates are read from the engine when the query is created.
// Every call to Next holds the shared root lock while it resolves the next
// candidate against the in-memory histories, so results reflect commits that
// happened between calls only as far as the snapshot allows.
//
//	it := tx.Select(table, continuous.Current())
//	for it.Next() {
//		rec := it.Version().Record()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	r     reader
	table *Table
	sel   Selector
	limit int

	cands []candidate
	pos   int
	vpos  int // position within the history of cands[pos]

	drafts []*Version // working copies appended after the committed results
	dpos   int

	seen    map[*Version]struct{}
	yielded int
	cur     *Version
	err     error
}

// Next advances to the next version and reports whether there is one.
func (it *Iterator) Next() bool {
	it.cur = nil
	if it.err != nil || (it.limit > 0 && it.yielded >= it.limit) {
		return false
	}

	it.r.db.root.SharedLock()
	v := it.advance()
	it.r.db.root.SharedUnlock()

	if v == nil {
		return false
	}
	it.cur = v
	it.yielded++
	return true
}

// Version returns the current version.
func (it *Iterator) Version() *Version { return it.cur }

// Record returns the record of the current version.
func (it *Iterator) Record() Record {
	if it.cur == nil {
		return nil
	}
	return it.cur.record
}

// Err returns the error that stopped the iteration.
func (it *Iterator) Err() error { return it.err }

// Collect drains the iterator.
func (it *Iterator) Collect() ([]*Version, error) {
	var out []*Version
	for it.Next() {
		out = append(out, it.cur)
	}
	return out, it.err
}

func (it *Iterator) advance() *Version {
	snapshot := it.r.snapshot
	for it.pos < len(it.cands) {
		c := it.cands[it.pos]
		h, ok := it.r.db.histories.Load(c.oid)
		if !ok || !h.table.IsA(it.table) {
			it.pos, it.vpos = it.pos+1, 0
			continue
		}
		d, hasDraft := it.r.draft(h)

		if c.seq == 0 {
			if it.sel.Kind == SelectCurrent {
				it.pos++
				var v *Version
				if hasDraft {
					if d.state != StateDeleting {
						v = d
					}
				} else if cur := h.GetCurrentAt(snapshot); cur != nil && cur.state == StateCommitted {
					v = cur
				}
				if v != nil {
					return v
				}
				continue
			}
			l := h.list()
			for it.vpos < len(l) {
				v := l[it.vpos]
				it.vpos++
				if it.sel.matches(v, snapshot) {
					return v
				}
			}
			it.pos, it.vpos = it.pos+1, 0
			continue
		}

		it.pos++
		// working copies replace their committed versions
		if it.sel.Kind == SelectCurrent && hasDraft {
			continue
		}
		v := h.Version(c.seq)
		if v == nil || !it.sel.matches(v, snapshot) {
			continue
		}
		if _, dup := it.seen[v]; dup {
			continue
		}
		it.seen[v] = struct{}{}
		return v
	}

	for it.dpos < len(it.drafts) {
		d := it.drafts[it.dpos]
		it.dpos++
		if d.IsDraft() && d.state != StateDeleting {
			return d
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Readers
// --------------------------------------------------------------------------

// reader resolves queries for a transaction or, without one, against the
// latest committed state.
type reader struct {
	db       *Database
	tx       *Tx
	snapshot uint64
}

func (tx *Tx) reader() reader {
	return reader{db: tx.db, tx: tx, snapshot: tx.snapshot}
}

func (d *Database) latest() reader {
	return reader{db: d, snapshot: math.MaxUint64}
}

func (r reader) draft(h *VersionHistory) (*Version, bool) {
	if r.tx == nil || !r.tx.Active() {
		return nil, false
	}
	d, ok := r.tx.drafts[h]
	return d, ok
}

// drafts returns the working copies of table (and its sub tables) that pass
// keep, only for Current queries inside a transaction.
func (r reader) drafts(table *Table, sel Selector, keep func(d *Version) bool) []*Version {
	if r.tx == nil || !r.tx.Active() || sel.Kind != SelectCurrent {
		return nil
	}
	var out []*Version
	for _, d := range r.tx.Drafts() {
		if d.state != StateDeleting && d.history.table.IsA(table) && keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func (r reader) newIterator(table *Table, sel Selector) *Iterator {
	it := &Iterator{
		r:     r,
		table: table,
		sel:   sel,
		seen:  make(map[*Version]struct{}),
	}
	if table == nil {
		it.err = newErrorf(ErrCSchema, "table is nil")
	} else if table.schema != r.db.schema {
		it.err = newErrorf(ErrCSchema, "table %q does not belong to the database schema", table.Name())
	} else if r.tx != nil && !r.tx.Active() {
		it.err = ErrTransactionNotStarted
	}
	return it
}

// load runs fn in a read-only engine transaction under the shared root lock.
func (r reader) load(fn func(etx db.Tx) error) error {
	r.db.root.SharedLock()
	defer r.db.root.SharedUnlock()

	if err := r.db.checkOpen(); err != nil {
		return err
	}
	etx, err := r.db.engine.Begin(false)
	if err != nil {
		return fatal("begin engine transaction", err)
	}
	defer etx.Rollback()
	if err := fn(etx); err != nil {
		return fatal("read engine", err)
	}
	return nil
}

func (r reader) selectExtent(table *Table, sel Selector) *Iterator {
	it := r.newIterator(table, sel)
	if it.err != nil {
		return it
	}
	it.err = r.load(func(etx db.Tx) error {
		var decodeErr error
		err := etx.Scan(table.extentBucket(), nil, nil, func(k, _ []byte) bool {
			oid, err := util.DecodeUint64(k)
			if err != nil {
				decodeErr = err
				return false
			}
			it.cands = append(it.cands, candidate{oid: oid})
			return true
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	if it.err == nil && r.tx != nil && sel.Kind == SelectCurrent {
		it.drafts = r.tx.pendingInserts(table)
	}
	return it
}

// scanIndex collects the index entries between lo and hi whose user key
// passes match.
func (r reader) scanIndex(table *Table, index string, lo, hi []byte, match func(k []byte) bool, sel Selector) *Iterator {
	it := r.newIterator(table, sel)
	if it.err != nil {
		return it
	}
	ix, ok := table.Index(index)
	if !ok {
		it.err = newErrorf(ErrCSchema, "table %q has no index %q", table.Name(), index)
		return it
	}

	it.err = r.load(func(etx db.Tx) error {
		var decodeErr error
		err := etx.Scan(ix.bucket, lo, hi, func(k, _ []byte) bool {
			key, oid, seq, err := util.SplitIndexKey(k)
			if err != nil {
				decodeErr = err
				return false
			}
			if match(key) {
				it.cands = append(it.cands, candidate{oid: oid, seq: seq})
			}
			return true
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	if it.err == nil {
		it.drafts = r.drafts(table, sel, func(d *Version) bool {
			for _, k := range ix.keys(d.record) {
				if match(k) {
					return true
				}
			}
			return false
		})
	}
	return it
}

func (r reader) find(table *Table, index string, from, till []byte, sel Selector) *Iterator {
	lo, hi := util.IndexRange(from, till)
	return r.scanIndex(table, index, lo, hi, func(k []byte) bool {
		return (from == nil || bytes.Compare(k, from) >= 0) && (till == nil || bytes.Compare(k, till) <= 0)
	}, sel)
}

func (r reader) findPrefix(table *Table, index string, prefix []byte, sel Selector) *Iterator {
	lo, hi := util.IndexPrefixRange(prefix)
	return r.scanIndex(table, index, lo, hi, func(k []byte) bool {
		return bytes.HasPrefix(k, prefix)
	}, sel)
}

func (r reader) findOne(table *Table, index string, key []byte) (*Version, error) {
	if key == nil {
		key = []byte{}
	}
	it := r.find(table, index, key, key, Current())
	it.limit = 2
	found, err := it.Collect()
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, &Error{Code: ErrCSingleton, Msg: ErrSingleton.Msg, Version: found[1]}
	}
}

func (r reader) search(table *Table, query string, sel Selector, limit int) *Iterator {
	it := r.newIterator(table, sel)
	if it.err != nil {
		return it
	}
	it.limit = limit

	r.db.root.SharedLock()
	hits, err := r.db.fulltext[table.id].Search(query, 0)
	r.db.root.SharedUnlock()
	if err != nil {
		it.err = fatal("full-text search", err)
		return it
	}

	for _, hit := range hits {
		oid, seq, err := util.SplitVersionKey([]byte(hit.ID))
		if err != nil {
			continue
		}
		it.cands = append(it.cands, candidate{oid: oid, seq: seq})
	}

	terms := fulltext.Tokenize(query)
	it.drafts = r.drafts(table, sel, func(d *Version) bool {
		text := d.history.table.text
		if text == nil || len(terms) == 0 {
			return false
		}
		have := make(map[string]struct{})
		for _, t := range fulltext.Tokenize(text(d.record)) {
			have[t] = struct{}{}
		}
		for _, t := range terms {
			if _, ok := have[t]; !ok {
				return false
			}
		}
		return true
	})
	return it
}

// --------------------------------------------------------------------------
// Transaction Queries
// --------------------------------------------------------------------------

// Select iterates the extent of table (including sub tables) in object id
// order, followed by the records inserted by tx.
func (tx *Tx) Select(table *Table, sel Selector) *Iterator {
	return tx.reader().selectExtent(table, sel)
}

// Find iterates the versions whose key in index lies within [from, till].
// A nil bound is open. Results are ordered by key, working copies of tx
// follow the committed results.
func (tx *Tx) Find(table *Table, index string, from, till []byte, sel Selector) *Iterator {
	return tx.reader().find(table, index, from, till, sel)
}

// FindPrefix iterates the versions whose key in index starts with prefix.
func (tx *Tx) FindPrefix(table *Table, index string, prefix []byte, sel Selector) *Iterator {
	return tx.reader().findPrefix(table, index, prefix, sel)
}

// FindOne returns the current version with key in index, nil if there is
// none and ErrSingleton if there is more than one.
func (tx *Tx) FindOne(table *Table, index string, key []byte) (*Version, error) {
	return tx.reader().findOne(table, index, key)
}

// Search iterates the versions whose full text contains every term of query,
// best matches first. A limit <= 0 yields all matches.
func (tx *Tx) Search(table *Table, query string, sel Selector, limit int) *Iterator {
	return tx.reader().search(table, query, sel, limit)
}

// --------------------------------------------------------------------------
// Queries Without Transaction
// --------------------------------------------------------------------------
//
// These read the latest committed state. They are not snapshot consistent:
// consecutive calls may observe different commits.

// Select is Tx.Select on the latest committed state.
func (d *Database) Select(table *Table, sel Selector) *Iterator {
	return d.latest().selectExtent(table, sel)
}

// Find is Tx.Find on the latest committed state.
func (d *Database) Find(table *Table, index string, from, till []byte, sel Selector) *Iterator {
	return d.latest().find(table, index, from, till, sel)
}

// FindPrefix is Tx.FindPrefix on the latest committed state.
func (d *Database) FindPrefix(table *Table, index string, prefix []byte, sel Selector) *Iterator {
	return d.latest().findPrefix(table, index, prefix, sel)
}

// FindOne is Tx.FindOne on the latest committed state.
func (d *Database) FindOne(table *Table, index string, key []byte) (*Version, error) {
	return d.latest().findOne(table, index, key)
}

// Search is Tx.Search on the latest committed state.
func (d *Database) Search(table *Table, query string, sel Selector, limit int) *Iterator {
	return d.latest().search(table, query, sel, limit)
}
