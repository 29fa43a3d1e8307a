package continuous

import (
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/cKV/lib/db"
	"github.com/ValentinKolb/cKV/lib/db/util"
)

// empty is the value of extent and index entries
var empty = []byte{}

// commit runs the commit protocol for tx.
func (d *Database) commit(tx *Tx) error {
	// read-only transactions allocate nothing and never touch the engine
	if tx.IsEmpty() {
		d.retire(tx)
		tx.end(TxCommitted)
		d.metrics.readOnly.Inc()
		return nil
	}

	owner, err := d.root.ExclusiveLock()
	if err != nil {
		d.retire(tx)
		tx.end(TxAborted)
		return fatal("acquire root lock", err)
	}

	start := time.Now()
	tx.state = TxCommitting
	err = d.commitLocked(tx)
	if err != nil {
		d.retire(tx)
	}
	d.metrics.commitTimer.UpdateSince(start)

	if unlockErr := d.root.ExclusiveUnlock(owner); unlockErr != nil {
		log.Errorf("release root lock: %v", unlockErr)
	}

	if err != nil {
		tx.end(TxAborted)
		var e *Error
		if errors.As(err, &e) {
			switch e.Code {
			case ErrCConflict:
				d.metrics.conflicts.Inc()
			case ErrCNotUnique:
				d.metrics.notUnique.Inc()
			}
		}
		return err
	}

	tx.end(TxCommitted)
	d.metrics.commits.Inc()
	return nil
}

// staged is the outcome of one working copy, applied in memory only after
// the engine commit succeeded.
type staged struct {
	draft   *Version
	stamped Version // draft with its commit stamp
	list    []*Version
	insert  bool
}

// commitLocked validates and applies tx. The caller holds the exclusive
// root lock.
func (d *Database) commitLocked(tx *Tx) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	drafts := tx.Drafts()

	// 1. conflicts
	for _, dv := range drafts {
		if dv.state == StateInserting {
			continue
		}
		last := dv.history.Latest()
		if last == nil || last.transID > tx.snapshot || last != dv.pred {
			log.Debugf("conflict on record %d: snapshot %d, last version %v", dv.history.oid, tx.snapshot, last)
			return &Error{
				Code:    ErrCConflict,
				Msg:     fmt.Sprintf("record %d was modified after snapshot %d", dv.history.oid, tx.snapshot),
				Version: last,
			}
		}
	}

	etx, err := d.engine.Begin(true)
	if err != nil {
		return fatal("begin engine transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = etx.Rollback()
			d.discardFullText()
		}
	}()

	// 2. uniqueness
	if err := d.checkUnique(etx, tx, drafts); err != nil {
		return err
	}

	// 3. watermark
	newTransID := d.transID.Load() + 1
	d.activeMu.Lock()
	d.active.RemoveByKey(tx.seqNo)
	watermark := d.watermarkLocked(newTransID)
	d.activeMu.Unlock()

	// 4. transaction id
	if err := etx.Put(bucketRoot, keyTransID, util.EncodeUint64(newTransID)); err != nil {
		return fatal("write transaction id", err)
	}
	if err := etx.Put(bucketRoot, keyNextOID, util.EncodeUint64(d.nextOID.Load())); err != nil {
		return fatal("write next object id", err)
	}

	// 5. stamp, link, prune and index
	now := d.opts.Clock()
	results := make([]staged, 0, len(drafts))
	pruned := 0
	for _, dv := range drafts {
		s, n, err := d.applyDraft(etx, dv, newTransID, now, watermark)
		if err != nil {
			return err
		}
		results = append(results, s)
		pruned += n
	}

	// 6. engine commit, then publish the full-text changes
	if err := etx.Commit(); err != nil {
		log.Errorf("engine commit of transaction %d failed: %v", newTransID, err)
		return fatal("commit engine transaction", err)
	}
	committed = true
	if err := d.flushFullText(); err != nil {
		// the transaction is durable, the index catches up on the next open
		log.Errorf("full-text update of transaction %d failed: %v", newTransID, err)
	}

	// 7. apply in memory
	for i := range results {
		s := &results[i]
		dv := s.draft
		dv.seq = s.stamped.seq
		dv.transID = s.stamped.transID
		dv.created = s.stamped.created
		dv.state = s.stamped.state
		dv.pred = nil
		dv.history.publish(s.list)
		if s.insert {
			d.histories.Store(dv.history.oid, dv.history)
		}
	}
	d.transID.Store(newTransID)

	d.activeMu.Lock()
	if watermark > d.lastActiveTransID {
		d.lastActiveTransID = watermark
	}
	d.activeMu.Unlock()

	if pruned > 0 {
		d.metrics.pruned.Add(pruned)
		log.Debugf("transaction %d pruned %d versions (watermark %d)", newTransID, pruned, watermark)
	}
	return nil
}

// applyDraft writes one working copy to the engine and returns the in-memory
// result together with the number of pruned versions.
func (d *Database) applyDraft(etx db.Tx, dv *Version, transID uint64, now time.Time, watermark uint64) (staged, int, error) {
	h := dv.history
	table := h.table
	old := h.list()

	s := staged{
		draft:  dv,
		insert: dv.state == StateInserting,
	}
	s.stamped = Version{
		seq:     1,
		transID: transID,
		created: now,
		state:   StateCommitted,
		history: h,
		record:  dv.record,
	}
	if len(old) > 0 {
		last := old[len(old)-1]
		s.stamped.seq = last.seq + 1
		// timestamps never decrease within a history
		if now.Before(last.created) {
			s.stamped.created = last.created
		}
	}
	if dv.state == StateDeleting {
		s.stamped.state = StateDeleted
	}
	oid := h.oid

	data, err := encodeVersion(&s.stamped)
	if err != nil {
		return s, 0, fatal("encode version", err)
	}
	if err := etx.Put(bucketVersions, util.VersionKey(oid, s.stamped.seq), data); err != nil {
		return s, 0, fatal("write version", err)
	}

	// new records join the extents of their table and all super tables
	if s.insert {
		for _, t := range table.Chain() {
			if err := etx.Put(t.extentBucket(), util.EncodeUint64(oid), empty); err != nil {
				return s, 0, fatal("link extent", err)
			}
		}
	}

	// evict versions no running transaction can observe
	n := 0
	if h.limited && !s.insert {
		candidate := append(append(make([]*Version, 0, len(old)+1), old...), &s.stamped)
		n = prunable(candidate, watermark)
		for _, ev := range old[:n] {
			if err := d.evict(etx, ev); err != nil {
				return s, 0, err
			}
		}
	}
	s.list = append(append(make([]*Version, 0, len(old)-n+1), old[n:]...), dv)

	if s.stamped.state == StateCommitted {
		for _, ix := range table.indices {
			for _, k := range ix.keys(dv.record) {
				if err := etx.Put(ix.bucket, util.IndexKey(k, oid, s.stamped.seq), empty); err != nil {
					return s, 0, fatal("write index "+ix.def.Name, err)
				}
			}
		}
		d.stageFullText(&s.stamped, true)
	}
	return s, n, nil
}

// evict removes a pruned version from the engine and the full-text indices.
func (d *Database) evict(etx db.Tx, v *Version) error {
	oid := v.history.oid
	if err := etx.Delete(bucketVersions, util.VersionKey(oid, v.seq)); err != nil {
		return fatal("delete version", err)
	}
	if v.state != StateCommitted {
		return nil
	}
	for _, ix := range v.history.table.indices {
		for _, k := range ix.keys(v.record) {
			if err := etx.Delete(ix.bucket, util.IndexKey(k, oid, v.seq)); err != nil {
				return fatal("delete index "+ix.def.Name, err)
			}
		}
	}
	d.stageFullText(v, false)
	return nil
}

// checkUnique verifies the unique indices of all working copies against the
// latest committed versions of other records and against each other.
func (d *Database) checkUnique(etx db.Tx, tx *Tx, drafts []*Version) error {
	type claim struct {
		bucket string
		key    string
	}
	claims := make(map[claim]*Version)

	for _, dv := range drafts {
		if dv.state == StateDeleting {
			continue
		}
		for _, ix := range dv.history.table.indices {
			if !ix.def.Unique {
				continue
			}
			for _, k := range ix.keys(dv.record) {
				c := claim{bucket: ix.bucket, key: string(k)}
				if other, ok := claims[c]; ok && other.history != dv.history {
					return &Error{
						Code:    ErrCNotUnique,
						Msg:     fmt.Sprintf("index %s: key %q used twice in transaction", ix.def.Name, k),
						Version: other,
					}
				}
				claims[c] = dv

				clash, err := d.findCommittedKey(etx, tx, ix, k, dv.history)
				if err != nil {
					return err
				}
				if clash != nil {
					return &Error{
						Code:    ErrCNotUnique,
						Msg:     fmt.Sprintf("index %s: key %q already used by record %d", ix.def.Name, k, clash.history.oid),
						Version: clash,
					}
				}
			}
		}
	}
	return nil
}

// findCommittedKey returns the latest committed version of another record
// that holds key in ix and is not changed by tx.
func (d *Database) findCommittedKey(etx db.Tx, tx *Tx, ix *Index, key []byte, self *VersionHistory) (*Version, error) {
	var clash *Version
	lo, hi := util.IndexRange(key, key)
	err := etx.Scan(ix.bucket, lo, hi, func(k, _ []byte) bool {
		_, oid, seq, err := util.SplitIndexKey(k)
		if err != nil || oid == self.oid {
			return true
		}
		h, ok := d.histories.Load(oid)
		if !ok {
			return true
		}
		last := h.Latest()
		if last == nil || last.seq != seq || last.state != StateCommitted {
			return true
		}
		// the other record's working copy is checked through its own claims
		if _, changed := tx.drafts[h]; changed {
			return true
		}
		clash = last
		return false
	})
	if err != nil {
		return nil, fatal("scan index "+ix.def.Name, err)
	}
	return clash, nil
}
