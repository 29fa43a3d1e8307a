package continuous

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/cKV/lib/db/util"
)

// State is the lifecycle state of a version.
type State uint8

const (
	StateInserting State = iota // Working copy of a new record
	StateUpdating               // Working copy of an existing record
	StateDeleting               // Working copy marking a record deleted
	StateCommitted              // Committed version
	StateDeleted                // Committed deletion marker
)

func (s State) String() string {
	switch s {
	case StateInserting:
		return "Inserting"
	case StateUpdating:
		return "Updating"
	case StateDeleting:
		return "Deleting"
	case StateCommitted:
		return "Committed"
	case StateDeleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}

// Version is one state of a record.
//
// A working copy (IsDraft) is private to the transaction that created it and
// may be mutated through Record until the transaction ends. Committing turns
// the working copy itself into the new committed version. Committed versions
// and their records are immutable, callers must not modify them.
type Version struct {
	seq     uint32
	transID uint64
	created time.Time
	state   State
	history *VersionHistory
	record  Record
	pred    *Version // predecessor of a working copy, nil for inserts
}

// Seq returns the 1-based position of the version in its history.
func (v *Version) Seq() uint32 { return v.seq }

// TransID returns the id of the committing transaction. A working copy
// carries the snapshot id of its transaction instead.
func (v *Version) TransID() uint64 { return v.transID }

// Created returns the commit timestamp (zero for working copies).
func (v *Version) Created() time.Time { return v.created }

func (v *Version) State() State { return v.state }

func (v *Version) History() *VersionHistory { return v.history }

func (v *Version) Record() Record { return v.record }

// OID returns the object id of the owning history.
func (v *Version) OID() uint64 { return v.history.oid }

// Predecessor returns the version a working copy was created from.
func (v *Version) Predecessor() *Version { return v.pred }

// IsDraft reports whether v is an uncommitted working copy.
func (v *Version) IsDraft() bool {
	return v.state == StateInserting || v.state == StateUpdating || v.state == StateDeleting
}

// IsDeleted reports whether v marks (or will mark) its record as deleted.
func (v *Version) IsDeleted() bool {
	return v.state == StateDeleted || v.state == StateDeleting
}

func (v *Version) String() string {
	return fmt.Sprintf("Version{oid: %d, seq: %d, trans: %d, state: %s}", v.history.oid, v.seq, v.transID, v.state)
}

// docID identifies a version in the full-text indices.
func (v *Version) docID() string {
	return string(util.VersionKey(v.history.oid, v.seq))
}
