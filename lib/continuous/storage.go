package continuous

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/cKV/lib/db"
	"github.com/ValentinKolb/cKV/lib/db/util"
)

// --------------------------------------------------------------------------
// Engine Layout
// --------------------------------------------------------------------------
//
//	root                  trans-id -> u64, next-oid -> u64
//	versions              oid|seq -> header|record
//	extent/<table>        oid -> (empty)
//	index/<table>/<index> escaped key|00 01|oid|seq -> (empty)

const (
	bucketRoot     = "root"
	bucketVersions = "versions"
)

var (
	keyTransID = []byte("trans-id")
	keyNextOID = []byte("next-oid")
)

// header: state (1) + trans id (8) + created (8) + table name length (2)
const versionHeaderSize = 1 + 8 + 8 + 2

// encodeVersion serializes a committed version.
func encodeVersion(v *Version) ([]byte, error) {
	table := v.history.table
	body, err := table.codec().Marshal(v.record)
	if err != nil {
		return nil, fmt.Errorf("marshal record %d: %w", v.history.oid, err)
	}
	name := table.Name()
	if len(name) > 0xFFFF {
		return nil, fmt.Errorf("table name too long: %d bytes", len(name))
	}

	buf := make([]byte, versionHeaderSize+len(name)+len(body))
	buf[0] = byte(v.state)
	binary.BigEndian.PutUint64(buf[1:9], v.transID)
	binary.BigEndian.PutUint64(buf[9:17], uint64(v.created.UnixNano()))
	binary.BigEndian.PutUint16(buf[17:19], uint16(len(name)))
	copy(buf[versionHeaderSize:], name)
	copy(buf[versionHeaderSize+len(name):], body)
	return buf, nil
}

// storedVersion is a decoded versions entry, not yet attached to a history.
type storedVersion struct {
	table   *Table
	seq     uint32
	transID uint64
	created time.Time
	state   State
	record  Record
}

func decodeVersion(schema *Schema, seq uint32, data []byte) (*storedVersion, error) {
	if len(data) < versionHeaderSize {
		return nil, fmt.Errorf("version entry too short: %d bytes", len(data))
	}
	state := State(data[0])
	if state != StateCommitted && state != StateDeleted {
		return nil, fmt.Errorf("invalid stored state %d", data[0])
	}
	nameLen := int(binary.BigEndian.Uint16(data[17:19]))
	if len(data) < versionHeaderSize+nameLen {
		return nil, fmt.Errorf("version entry truncated")
	}
	name := string(data[versionHeaderSize : versionHeaderSize+nameLen])
	table, ok := schema.Table(name)
	if !ok {
		return nil, newErrorf(ErrCSchema, "stored version references unknown table %q", name)
	}

	r := table.def.New()
	if err := table.codec().Unmarshal(data[versionHeaderSize+nameLen:], r); err != nil {
		return nil, fmt.Errorf("unmarshal record of table %q: %w", name, err)
	}

	return &storedVersion{
		table:   table,
		seq:     seq,
		transID: binary.BigEndian.Uint64(data[1:9]),
		created: time.Unix(0, int64(binary.BigEndian.Uint64(data[9:17]))),
		state:   state,
		record:  r,
	}, nil
}

func getUint64(etx db.Tx, bucket string, key []byte) (uint64, error) {
	val, ok, err := etx.Get(bucket, key)
	if err != nil || !ok {
		return 0, err
	}
	return util.DecodeUint64(val)
}

// --------------------------------------------------------------------------
// Reload
// --------------------------------------------------------------------------

// load rebuilds the in-memory state from the engine: the root counters, all
// histories (from the versions bucket) and the full-text indices.
func (d *Database) load() error {
	etx, err := d.engine.Begin(false)
	if err != nil {
		return fatal("begin engine transaction", err)
	}
	defer etx.Rollback()

	transID, err := getUint64(etx, bucketRoot, keyTransID)
	if err != nil {
		return fatal("read transaction id", err)
	}
	nextOID, err := getUint64(etx, bucketRoot, keyNextOID)
	if err != nil {
		return fatal("read next object id", err)
	}

	var (
		cur     *VersionHistory
		list    []*Version
		loadErr error
		count   int
	)
	flush := func() {
		if cur != nil {
			cur.publish(list)
			d.histories.Store(cur.oid, cur)
		}
	}

	err = etx.Scan(bucketVersions, nil, nil, func(key, value []byte) bool {
		oid, seq, err := util.SplitVersionKey(key)
		if err != nil {
			loadErr = fatal("corrupt version key", err)
			return false
		}
		sv, err := decodeVersion(d.schema, seq, value)
		if err != nil {
			var e *Error
			if errors.As(err, &e) {
				loadErr = e
			} else {
				loadErr = fatal(fmt.Sprintf("corrupt version %d/%d", oid, seq), err)
			}
			return false
		}

		if cur == nil || cur.oid != oid {
			flush()
			cur = newHistory(oid, sv.table, sv.table.Limited() || d.opts.Limited)
			list = nil
		} else {
			last := list[len(list)-1]
			if sv.seq != last.seq+1 || sv.transID < last.transID {
				loadErr = newErrorf(ErrCFatal, "history %d is not contiguous at seq %d", oid, sv.seq)
				return false
			}
		}

		v := &Version{
			seq:     sv.seq,
			transID: sv.transID,
			created: sv.created,
			state:   sv.state,
			history: cur,
			record:  sv.record,
		}
		sv.record.base().version = v
		list = append(list, v)
		if sv.state == StateCommitted {
			d.stageFullText(v, true)
		}
		if oid > nextOID {
			nextOID = oid
		}
		count++
		return true
	})
	if err != nil {
		return fatal("scan versions", err)
	}
	if loadErr != nil {
		d.discardFullText()
		return loadErr
	}
	flush()
	if err := d.flushFullText(); err != nil {
		return fatal("rebuild full-text index", err)
	}

	d.transID.Store(transID)
	d.nextOID.Store(nextOID)
	d.lastActiveTransID = transID

	log.Infof("loaded %d histories with %d versions (last transaction %d)", d.histories.Size(), count, transID)
	return nil
}
