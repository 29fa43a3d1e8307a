package continuous

import (
	"sort"
	"sync/atomic"
	"time"
)

// VersionHistory is the ordered, append-only list of committed versions of
// one record.
//
// Thread-safety: readers work on an immutable snapshot of the version list.
// Only the commit protocol replaces the list (append, and for limited
// histories trimming from the front).
type VersionHistory struct {
	oid      uint64
	table    *Table
	limited  bool
	versions atomic.Pointer[[]*Version]
}

func newHistory(oid uint64, table *Table, limited bool) *VersionHistory {
	h := &VersionHistory{
		oid:     oid,
		table:   table,
		limited: limited,
	}
	h.versions.Store(&[]*Version{})
	return h
}

// OID returns the object id of the record.
func (h *VersionHistory) OID() uint64 { return h.oid }

func (h *VersionHistory) Table() *Table { return h.table }

// Limited reports whether old versions are pruned.
func (h *VersionHistory) Limited() bool { return h.limited }

func (h *VersionHistory) list() []*Version {
	return *h.versions.Load()
}

// Len returns the number of committed versions still held.
func (h *VersionHistory) Len() int {
	return len(h.list())
}

// Versions returns the committed versions, oldest first.
func (h *VersionHistory) Versions() []*Version {
	return append([]*Version(nil), h.list()...)
}

// Latest returns the newest committed version or nil.
func (h *VersionHistory) Latest() *Version {
	l := h.list()
	if len(l) == 0 {
		return nil
	}
	return l[len(l)-1]
}

// Version returns the version with the given sequence id or nil if it does
// not exist (or was pruned).
func (h *VersionHistory) Version(seq uint32) *Version {
	l := h.list()
	if len(l) == 0 || seq < l[0].seq {
		return nil
	}
	i := int(seq - l[0].seq)
	if i >= len(l) {
		return nil
	}
	return l[i]
}

// GetCurrentAt returns the newest version committed by a transaction with
// an id <= transID, or nil if the record did not exist at that point.
func (h *VersionHistory) GetCurrentAt(transID uint64) *Version {
	l := h.list()
	for i := len(l) - 1; i >= 0; i-- {
		if l[i].transID <= transID {
			return l[i]
		}
	}
	return nil
}

// Current returns the version the transaction observes: its working copy if
// it has one, else the version current at its snapshot. Without an active
// transaction the latest committed version is returned, which is not
// snapshot consistent.
func (h *VersionHistory) Current(tx *Tx) *Version {
	if tx == nil || !tx.Active() {
		return h.Latest()
	}
	if d, ok := tx.drafts[h]; ok {
		return d
	}
	return h.GetCurrentAt(tx.snapshot)
}

// Update returns the working copy of the record in tx, creating it if needed.
func (h *VersionHistory) Update(tx *Tx) (*Version, error) {
	return tx.UpdateHistory(h)
}

// Delete marks the record deleted in tx.
func (h *VersionHistory) Delete(tx *Tx) (*Version, error) {
	if err := tx.checkActive(); err != nil {
		return nil, err
	}
	v := h.Current(tx)
	if v == nil {
		return nil, newErrorf(ErrCNotCurrentVersion, "record %d is not visible to the transaction", h.oid)
	}
	return tx.Delete(v)
}

// IsCurrentForTransaction reports whether v was the current version as of
// transID: v is committed at or before transID and is either the last
// version or its successor was committed after transID.
func (h *VersionHistory) IsCurrentForTransaction(v *Version, transID uint64) bool {
	if v == nil || v.history != h || v.IsDraft() || v.transID > transID {
		return false
	}
	l := h.list()
	if len(l) == 0 || v.seq < l[0].seq {
		return false
	}
	i := int(v.seq - l[0].seq)
	if i >= len(l) || l[i] != v {
		return false
	}
	return i == len(l)-1 || l[i+1].transID > transID
}

// LatestBefore returns the newest version created at or before t, or nil.
func (h *VersionHistory) LatestBefore(t time.Time) *Version {
	l := h.list()
	// first version created after t
	i := sort.Search(len(l), func(i int) bool { return l[i].created.After(t) })
	if i == 0 {
		return nil
	}
	return l[i-1]
}

// EarliestAfter returns the oldest version created at or after t, or nil.
func (h *VersionHistory) EarliestAfter(t time.Time) *Version {
	l := h.list()
	i := sort.Search(len(l), func(i int) bool { return !l[i].created.Before(t) })
	if i == len(l) {
		return nil
	}
	return l[i]
}

// --------------------------------------------------------------------------
// Commit Side (called under the exclusive root lock)
// --------------------------------------------------------------------------

// publish replaces the version list.
func (h *VersionHistory) publish(l []*Version) {
	h.versions.Store(&l)
}

// prunable returns how many versions can be evicted from the front of l so
// that every transaction with a snapshot >= watermark still finds its
// current version: the oldest version goes while the second oldest was
// committed at or before the watermark.
func prunable(l []*Version, watermark uint64) int {
	n := 0
	for len(l)-n >= 2 && l[n+1].transID <= watermark {
		n++
	}
	return n
}
