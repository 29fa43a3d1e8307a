package continuous

import (
	"sort"
)

// TxState is the lifecycle state of a transaction.
type TxState uint8

const (
	TxInactive   TxState = iota // Never started
	TxActive                    // Accepting reads and writes
	TxCommitting                // Inside the commit critical section
	TxCommitted                 // Committed successfully
	TxAborted                   // Rolled back or failed to commit
)

func (s TxState) String() string {
	switch s {
	case TxInactive:
		return "Inactive"
	case TxActive:
		return "Active"
	case TxCommitting:
		return "Committing"
	case TxCommitted:
		return "Committed"
	case TxAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// noCopy makes go vet flag copies of a Tx
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Tx is a transaction handle.
//
// A transaction reads the database as of its snapshot (the id of the last
// transaction committed when it began) and collects its writes as working
// copies, at most one per history. Nothing is locked before Commit.
//
// Thread-safety: a Tx belongs to one goroutine at a time and must not be
// used concurrently.
type Tx struct {
	noCopy noCopy

	db       *Database
	session  *Session
	snapshot uint64
	seqNo    uint64
	state    TxState

	drafts map[*VersionHistory]*Version
	order  []*VersionHistory // histories in the order their working copy was created
}

// Snapshot returns the id of the newest transaction visible to tx.
func (tx *Tx) Snapshot() uint64 { return tx.snapshot }

// SeqNo returns the begin sequence number of tx.
func (tx *Tx) SeqNo() uint64 { return tx.seqNo }

func (tx *Tx) State() TxState { return tx.state }

// Active reports whether tx accepts operations.
func (tx *Tx) Active() bool { return tx != nil && tx.state == TxActive }

// IsEmpty reports whether tx holds no working copies.
func (tx *Tx) IsEmpty() bool { return len(tx.drafts) == 0 }

// Drafts returns the working copies of tx in creation order.
func (tx *Tx) Drafts() []*Version {
	out := make([]*Version, 0, len(tx.drafts))
	for _, h := range tx.order {
		if d, ok := tx.drafts[h]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (tx *Tx) checkActive() error {
	if !tx.Active() {
		return ErrTransactionNotStarted
	}
	return nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

// Insert adds a new record to table. The record must not belong to a
// history yet. The returned working copy has sequence id 1.
func (tx *Tx) Insert(table *Table, r Record) (*Version, error) {
	if err := tx.checkActive(); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, newErrorf(ErrCSchema, "cannot insert nil record")
	}
	if table == nil || table.schema != tx.db.schema {
		return nil, newErrorf(ErrCSchema, "table does not belong to the database schema")
	}
	if r.base().version != nil {
		return nil, ErrObjectAlreadyInserted
	}

	h := newHistory(tx.db.nextOID.Add(1), table, table.Limited() || tx.db.opts.Limited)
	d := &Version{
		seq:     1,
		transID: tx.snapshot,
		state:   StateInserting,
		history: h,
		record:  r,
	}
	r.base().version = d
	tx.addDraft(h, d)
	return d, nil
}

// Update returns the working copy of v's history, creating it from v if the
// transaction has none. A new working copy requires v to be the version
// current for the snapshot (ErrNotCurrentVersion otherwise). If a working
// copy exists, v must be that copy or its predecessor, otherwise
// ErrAmbiguousVersion is returned.
func (tx *Tx) Update(v *Version) (*Version, error) {
	if err := tx.checkActive(); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, newErrorf(ErrCNotCurrentVersion, "cannot update nil version")
	}
	h := v.history
	if d, ok := tx.drafts[h]; ok {
		if v == d || v == d.pred {
			return d, nil
		}
		return nil, &Error{Code: ErrCAmbiguousVersion, Msg: ErrAmbiguousVersion.Msg, Version: d}
	}
	if v.IsDraft() {
		return nil, newErrorf(ErrCNotCurrentVersion, "version %d of record %d is a working copy of another transaction", v.seq, h.oid)
	}
	if v.state == StateDeleted {
		return nil, newErrorf(ErrCNotCurrentVersion, "record %d is deleted", h.oid)
	}
	if v.transID > tx.snapshot {
		return nil, newErrorf(ErrCNotCurrentVersion, "version %d of record %d is newer than the snapshot", v.seq, h.oid)
	}
	if !h.IsCurrentForTransaction(v, tx.snapshot) {
		return nil, &Error{Code: ErrCNotCurrentVersion, Msg: ErrNotCurrentVersion.Msg, Version: v}
	}
	return tx.newDraft(v, StateUpdating), nil
}

// UpdateHistory is Update applied to the version of h the transaction
// currently observes.
func (tx *Tx) UpdateHistory(h *VersionHistory) (*Version, error) {
	if err := tx.checkActive(); err != nil {
		return nil, err
	}
	v := h.Current(tx)
	if v == nil {
		return nil, newErrorf(ErrCNotCurrentVersion, "record %d is not visible to the transaction", h.oid)
	}
	return tx.Update(v)
}

// Delete marks the record of v deleted. v must be the version current for
// the transaction (or the transaction's working copy of it). Deleting a
// record inserted by the same transaction drops the insert and returns nil,
// the record is released and may be inserted again.
func (tx *Tx) Delete(v *Version) (*Version, error) {
	if err := tx.checkActive(); err != nil {
		return nil, err
	}
	if v == nil {
		return nil, newErrorf(ErrCNotCurrentVersion, "cannot delete nil version")
	}
	h := v.history

	if d, ok := tx.drafts[h]; ok {
		if v != d && v != d.pred {
			return nil, &Error{Code: ErrCAmbiguousVersion, Msg: ErrAmbiguousVersion.Msg, Version: d}
		}
		if d.state == StateInserting {
			tx.dropDraft(h)
			return nil, nil
		}
		if !h.IsCurrentForTransaction(d.pred, tx.snapshot) {
			return nil, &Error{Code: ErrCNotCurrentVersion, Msg: ErrNotCurrentVersion.Msg, Version: d.pred}
		}
		d.state = StateDeleting
		return d, nil
	}

	if v.state != StateCommitted || !h.IsCurrentForTransaction(v, tx.snapshot) {
		return nil, &Error{Code: ErrCNotCurrentVersion, Msg: ErrNotCurrentVersion.Msg, Version: v}
	}
	return tx.newDraft(v, StateDeleting), nil
}

// Current returns the version of h the transaction observes.
func (tx *Tx) Current(h *VersionHistory) *Version {
	return h.Current(tx)
}

func (tx *Tx) newDraft(pred *Version, state State) *Version {
	r := pred.record.Snapshot()
	d := &Version{
		seq:     pred.seq + 1,
		transID: tx.snapshot,
		state:   state,
		history: pred.history,
		record:  r,
		pred:    pred,
	}
	r.base().version = d
	tx.addDraft(pred.history, d)
	return d
}

func (tx *Tx) addDraft(h *VersionHistory, d *Version) {
	tx.drafts[h] = d
	tx.order = append(tx.order, h)
}

// dropDraft forgets the working copy of h. A dropped insert releases its
// record, which can then be inserted again.
func (tx *Tx) dropDraft(h *VersionHistory) {
	if d, ok := tx.drafts[h]; ok && d.state == StateInserting {
		d.record.base().version = nil
	}
	delete(tx.drafts, h)
	for i, o := range tx.order {
		if o == h {
			tx.order = append(tx.order[:i], tx.order[i+1:]...)
			break
		}
	}
}

// pendingInserts returns the working copies of records inserted by tx whose
// table is table or one of its sub tables, ordered by object id.
func (tx *Tx) pendingInserts(table *Table) []*Version {
	var out []*Version
	for _, h := range tx.order {
		d := tx.drafts[h]
		if d.state == StateInserting && h.table.IsA(table) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].history.oid < out[j].history.oid })
	return out
}

// --------------------------------------------------------------------------
// Termination
// --------------------------------------------------------------------------

// Commit makes the working copies durable and visible. A transaction without
// working copies commits without allocating a transaction id. On any error
// the transaction is aborted and its working copies are discarded.
func (tx *Tx) Commit() error {
	if err := tx.checkActive(); err != nil {
		return err
	}
	return tx.db.commit(tx)
}

// Rollback discards all working copies and ends the transaction.
func (tx *Tx) Rollback() error {
	if err := tx.checkActive(); err != nil {
		return err
	}
	tx.db.retire(tx)
	tx.end(TxAborted)
	tx.db.metrics.rollbacks.Inc()
	return nil
}

// end clears the transaction. The records of discarded inserts stay bound
// to their (never committed) version and cannot be inserted again.
func (tx *Tx) end(state TxState) {
	tx.state = state
	tx.drafts = nil
	tx.order = nil
	if tx.session != nil && tx.session.tx == tx {
		tx.session.tx = nil
	}
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// Session holds at most one running transaction, the explicit replacement
// of a per-thread transaction slot.
//
// Thread-safety: a Session must not be used concurrently.
type Session struct {
	db *Database
	tx *Tx
}

// Tx returns the running transaction or nil.
func (s *Session) Tx() *Tx {
	if s.tx != nil && s.tx.Active() {
		return s.tx
	}
	return nil
}

// Begin starts a transaction on the latest committed state.
//
// If the session runs a transaction with the same snapshot, that transaction
// is returned. A running transaction with a different snapshot is ended
// silently when it holds no working copies, otherwise Begin fails with
// ErrTransactionAlreadyStarted.
func (s *Session) Begin() (*Tx, error) {
	if err := s.db.checkOpen(); err != nil {
		return nil, err
	}

	if cur := s.Tx(); cur != nil {
		if cur.snapshot == s.db.LastTransID() {
			return cur, nil
		}
		if !cur.IsEmpty() {
			return nil, ErrTransactionAlreadyStarted
		}
		s.db.retire(cur)
		cur.end(TxAborted)
	}

	tx := s.db.begin()
	tx.session = s
	s.tx = tx
	return tx, nil
}
