package continuous

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/cKV/lib/db"
	"github.com/ValentinKolb/cKV/lib/db/util"
	"github.com/ValentinKolb/cKV/lib/fulltext"
	"github.com/ValentinKolb/cKV/lib/lockmgr"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("continuous")

// rootResource is the lock resource serializing commits against reads.
const rootResource = "root"

// Options configures a Database.
type Options struct {
	// Name labels the metrics of the database.
	Name string
	// Limited makes every history limited, regardless of its table.
	Limited bool
	// Clock returns the commit timestamp, defaults to time.Now.
	Clock func() time.Time
	// Metrics receives the database metrics. A private set is created when nil.
	Metrics *metrics.Set
}

// DefaultOptions returns the default options
func DefaultOptions() Options {
	return Options{
		Name:  "default",
		Clock: time.Now,
	}
}

// Database coordinates versioned records stored in an engine.
//
// Reads hold the shared root lock for the duration of one call, commits hold
// the exclusive root lock for the whole validation and apply sequence. All
// committed histories are kept in memory, the engine provides durability,
// extents and secondary indices.
//
// Thread-safety: a Database is safe for concurrent use. Transactions are not.
type Database struct {
	engine db.ObjectDB
	schema *Schema
	opts   Options

	locks lockmgr.ILockManager
	root  lockmgr.IResource

	histories *xsync.MapOf[uint64, *VersionHistory]
	fulltext  []*fulltext.Index // by TableID

	transID atomic.Uint64 // last committed transaction id
	nextOID atomic.Uint64 // last allocated object id

	// watermark state, guarded by activeMu
	activeMu          sync.Mutex
	active            *util.MapHeap // seqNo -> snapshot of running transactions
	maxTransSeqNo     uint64
	lastActiveTransID uint64

	metrics *dbMetrics
	closed  atomic.Bool
}

// Open creates a database on top of engine and reloads its stored state.
func Open(engine db.ObjectDB, schema *Schema, opts Options) (*Database, error) {
	if engine == nil || schema == nil {
		return nil, newErrorf(ErrCSchema, "engine and schema are required")
	}
	if !engine.SupportsFeature(db.FeatureGet | db.FeaturePut | db.FeatureDelete | db.FeatureScan) {
		return nil, newErrorf(ErrCFatal, "engine %s lacks required features", engine.GetInfo().DbType)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Name == "" {
		opts.Name = "default"
	}

	locks := lockmgr.NewLockManager()
	d := &Database{
		engine:    engine,
		schema:    schema,
		opts:      opts,
		locks:     locks,
		root:      locks.Resource(rootResource),
		histories: xsync.NewMapOf[uint64, *VersionHistory](),
		active:    util.NewMapHeap(),
	}
	tables := schema.Tables()
	d.fulltext = make([]*fulltext.Index, 0, len(tables))
	for range tables {
		ix, err := fulltext.NewIndex()
		if err != nil {
			d.closeFullText()
			return nil, fatal("create full-text index", err)
		}
		d.fulltext = append(d.fulltext, ix)
	}
	d.metrics = newDBMetrics(opts.Metrics, opts.Name, d)

	if err := d.load(); err != nil {
		d.metrics.commitTimer.Stop()
		d.closeFullText()
		return nil, err
	}
	return d, nil
}

// Close closes the database and its engine. Running transactions can no
// longer commit.
func (d *Database) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	owner, err := d.root.ExclusiveLock()
	if err != nil {
		return fatal("acquire root lock", err)
	}
	defer d.root.ExclusiveUnlock(owner)

	d.metrics.commitTimer.Stop()
	d.closeFullText()
	if err := d.engine.Close(); err != nil {
		return fatal("close engine", err)
	}
	return nil
}

func (d *Database) checkOpen() error {
	if d.closed.Load() {
		return newErrorf(ErrCFatal, "database closed")
	}
	return nil
}

// Schema returns the schema of the database.
func (d *Database) Schema() *Schema { return d.schema }

// Engine returns the underlying engine.
func (d *Database) Engine() db.ObjectDB { return d.engine }

// Metrics returns the metric set of the database.
func (d *Database) Metrics() *metrics.Set { return d.metrics.set }

// LastTransID returns the id of the last committed transaction.
func (d *Database) LastTransID() uint64 { return d.transID.Load() }

// History returns the history of the record with the given object id.
func (d *Database) History(oid uint64) (*VersionHistory, bool) {
	return d.histories.Load(oid)
}

// NewSession creates a session.
func (d *Database) NewSession() *Session {
	return &Session{db: d}
}

// Begin starts a transaction in a fresh session.
func (d *Database) Begin() (*Tx, error) {
	return d.NewSession().Begin()
}

// --------------------------------------------------------------------------
// Watermark Bookkeeping
// --------------------------------------------------------------------------

// begin registers a new transaction. The shared root lock keeps the
// snapshot from being taken in the middle of a commit.
func (d *Database) begin() *Tx {
	d.root.SharedLock()
	defer d.root.SharedUnlock()

	d.activeMu.Lock()
	defer d.activeMu.Unlock()

	d.maxTransSeqNo++
	tx := &Tx{
		db:       d,
		snapshot: d.transID.Load(),
		seqNo:    d.maxTransSeqNo,
		state:    TxActive,
		drafts:   make(map[*VersionHistory]*Version),
	}
	d.active.AddItem(tx.seqNo, tx.snapshot)
	return tx
}

// retire removes a transaction that ends without commit from the active set
// and advances the watermark.
func (d *Database) retire(tx *Tx) {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	d.active.RemoveByKey(tx.seqNo)
	d.lastActiveTransID = d.watermarkLocked(d.transID.Load())
}

// watermarkLocked returns the oldest snapshot still observable: the oldest
// snapshot of a running transaction, or fallback when none runs. The result
// never decreases. The caller holds activeMu.
func (d *Database) watermarkLocked(fallback uint64) uint64 {
	w := fallback
	if oldest, ok := d.active.Peek(); ok {
		w = oldest.Priority
	}
	if w < d.lastActiveTransID {
		w = d.lastActiveTransID
	}
	return w
}

func (d *Database) activeCount() int {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	return d.active.Len()
}

// --------------------------------------------------------------------------
// Full-Text Helpers
// --------------------------------------------------------------------------

// stageFullText stages adding (or removing) v in the full-text index of its
// table and all super tables.
func (d *Database) stageFullText(v *Version, add bool) {
	table := v.history.table
	if table.text == nil {
		return
	}
	id := v.docID()
	var text string
	if add {
		text = table.text(v.record)
	}
	for _, t := range table.Chain() {
		if add {
			d.fulltext[t.id].Add(id, text)
		} else {
			d.fulltext[t.id].Delete(id)
		}
	}
}

func (d *Database) flushFullText() error {
	var first error
	for _, ix := range d.fulltext {
		if err := ix.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (d *Database) closeFullText() {
	for _, ix := range d.fulltext {
		if err := ix.Close(); err != nil {
			log.Warningf("closing full-text index failed: %v", err)
		}
	}
}

func (d *Database) discardFullText() {
	for _, ix := range d.fulltext {
		ix.Discard()
	}
}

// --------------------------------------------------------------------------
// Info
// --------------------------------------------------------------------------

// Info describes the state of a database.
type Info struct {
	Histories          int             `json:"histories"`
	Versions           int             `json:"versions"`
	ActiveTransactions int             `json:"active_transactions"`
	LastTransID        uint64          `json:"last_trans_id"`
	LastActiveTransID  uint64          `json:"last_active_trans_id"`
	MinTransSeqNo      uint64          `json:"min_trans_seq_no"`
	MaxTransSeqNo      uint64          `json:"max_trans_seq_no"`
	FullTextDocuments  map[string]int  `json:"fulltext_documents"`
	Commits            CommitStats     `json:"commits"`
	Engine             db.DatabaseInfo `json:"engine"`
}

// Info returns a summary of the database state.
func (d *Database) Info() Info {
	info := Info{
		LastTransID:       d.transID.Load(),
		FullTextDocuments: make(map[string]int),
		Commits:           d.metrics.commitStats(),
		Engine:            d.engine.GetInfo(),
	}

	d.histories.Range(func(_ uint64, h *VersionHistory) bool {
		info.Histories++
		info.Versions += h.Len()
		return true
	})
	for _, t := range d.schema.Tables() {
		if t.text != nil {
			info.FullTextDocuments[t.Name()] = d.fulltext[t.id].Len()
		}
	}

	d.activeMu.Lock()
	info.ActiveTransactions = d.active.Len()
	info.LastActiveTransID = d.lastActiveTransID
	info.MaxTransSeqNo = d.maxTransSeqNo
	// snapshots grow with sequence numbers, so the oldest snapshot also
	// carries the lowest sequence number
	if oldest, ok := d.active.Peek(); ok {
		info.MinTransSeqNo = oldest.Key
	} else {
		info.MinTransSeqNo = d.maxTransSeqNo + 1
	}
	d.activeMu.Unlock()

	return info
}
