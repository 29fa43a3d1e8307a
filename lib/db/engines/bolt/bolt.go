package bolt

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/cKV/lib/db"
	"github.com/lni/dragonboat/v4/logger"
	"go.etcd.io/bbolt"
)

var log = logger.GetLogger("engine/bolt")

// --------------------------------------------------------------------------
// Core Bolt database structure
// --------------------------------------------------------------------------

// boltImpl implements db.ObjectDB on top of a single bbolt file
type boltImpl struct {
	bdb *bbolt.DB
}

// DBOptions configures the bolt engine
type DBOptions struct {
	Timeout time.Duration // How long Open waits for the file lock (0 = forever)
	NoSync  bool          // Skip fsync after commit (tests and benchmarks only)
}

// DefaultOptions returns the default bolt options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		Timeout: time.Second,
	}
}

// NewBoltDB opens (or creates) the bbolt file at path
//
// Thread-safety: The returned database is safe for concurrent use. bbolt allows
// one writable transaction at a time, Begin(true) blocks until it is free.
func NewBoltDB(path string, opts *DBOptions) (db.ObjectDB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	bdb, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: opts.Timeout,
		NoSync:  opts.NoSync,
	})
	if err != nil {
		return nil, db.NewError(db.RetCInternalError, fmt.Sprintf("open %s: %v", path, err))
	}
	log.Debugf("opened bolt file %s", path)
	return &boltImpl{bdb: bdb}, nil
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

func (b *boltImpl) Begin(writable bool) (db.Tx, error) {
	btx, err := b.bdb.Begin(writable)
	if err != nil {
		return nil, db.NewError(db.RetCInternalError, err.Error())
	}
	return &boltTx{btx: btx, writable: writable}, nil
}

// boltTx wraps a bbolt transaction. Values handed out by bbolt are only valid
// for the life of the transaction, so every returned slice is a copy.
type boltTx struct {
	btx      *bbolt.Tx
	writable bool
	closed   bool
}

func (tx *boltTx) Get(bucket string, key []byte) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, db.ErrTxClosed
	}
	bkt := tx.btx.Bucket([]byte(bucket))
	if bkt == nil {
		return nil, false, nil
	}
	// Cursor.Seek distinguishes empty values from missing keys
	k, v := bkt.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (tx *boltTx) Put(bucket string, key, value []byte) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	bkt, err := tx.btx.CreateBucketIfNotExists([]byte(bucket))
	if err != nil {
		return db.NewError(db.RetCInternalError, err.Error())
	}
	if value == nil {
		value = []byte{}
	}
	if err := bkt.Put(key, value); err != nil {
		return db.NewError(db.RetCInternalError, err.Error())
	}
	return nil
}

func (tx *boltTx) Delete(bucket string, key []byte) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	bkt := tx.btx.Bucket([]byte(bucket))
	if bkt == nil {
		return nil
	}
	if err := bkt.Delete(key); err != nil {
		return db.NewError(db.RetCInternalError, err.Error())
	}
	return nil
}

func (tx *boltTx) checkWritable() error {
	if tx.closed {
		return db.ErrTxClosed
	}
	if !tx.writable {
		return db.ErrReadOnly
	}
	return nil
}

func (tx *boltTx) Scan(bucket string, from, to []byte, fn func(key, value []byte) bool) error {
	if tx.closed {
		return db.ErrTxClosed
	}
	bkt := tx.btx.Bucket([]byte(bucket))
	if bkt == nil {
		return nil
	}

	c := bkt.Cursor()
	var k, v []byte
	if from == nil {
		k, v = c.First()
	} else {
		k, v = c.Seek(from)
	}
	for ; k != nil; k, v = c.Next() {
		if to != nil && bytes.Compare(k, to) >= 0 {
			break
		}
		if !fn(append([]byte(nil), k...), append([]byte(nil), v...)) {
			break
		}
	}
	return nil
}

func (tx *boltTx) Commit() error {
	if tx.closed {
		return db.ErrTxClosed
	}
	tx.closed = true
	if !tx.writable {
		return tx.btx.Rollback()
	}
	if err := tx.btx.Commit(); err != nil {
		return db.NewError(db.RetCInternalError, err.Error())
	}
	return nil
}

func (tx *boltTx) Rollback() error {
	if tx.closed {
		return nil
	}
	tx.closed = true
	if err := tx.btx.Rollback(); err != nil {
		return db.NewError(db.RetCInternalError, err.Error())
	}
	return nil
}

// --------------------------------------------------------------------------
// ObjectDB Interface Implementation - Persistence
// --------------------------------------------------------------------------

// Save writes a consistent copy of the bbolt file to w. The output is itself
// a valid bbolt file.
func (b *boltImpl) Save(w io.Writer) error {
	return b.bdb.View(func(btx *bbolt.Tx) error {
		_, err := btx.WriteTo(w)
		return err
	})
}

// Load is not supported: a bbolt file cannot be replaced while it is open.
// Restore by copying a saved file into place before opening it.
func (b *boltImpl) Load(_ io.Reader) error {
	return db.NewError(db.RetCUnsupportedOperation, "bolt engine does not support Load")
}

// --------------------------------------------------------------------------
// ObjectDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

func (b *boltImpl) GetInfo() db.DatabaseInfo {
	type bucketInfo struct {
		Name    string `json:"name"`
		Keys    int    `json:"keys"`
		Depth   int    `json:"depth"`
		LeafUse int    `json:"leaf_inuse_bytes"`
	}

	var (
		size    int64
		buckets []bucketInfo
	)
	_ = b.bdb.View(func(btx *bbolt.Tx) error {
		size = btx.Size()
		return btx.ForEach(func(name []byte, bkt *bbolt.Bucket) error {
			s := bkt.Stats()
			buckets = append(buckets, bucketInfo{
				Name:    string(name),
				Keys:    s.KeyN,
				Depth:   s.Depth,
				LeafUse: s.LeafInuse,
			})
			return nil
		})
	})

	stats := b.bdb.Stats()
	meta := &struct {
		Path        string       `json:"path"`
		Buckets     []bucketInfo `json:"buckets"`
		FreePages   int          `json:"free_pages"`
		OpenReadTxs int          `json:"open_read_txs"`
		WriteTxs    int          `json:"write_txs"`
	}{
		Path:        b.bdb.Path(),
		Buckets:     buckets,
		FreePages:   stats.FreePageN,
		OpenReadTxs: stats.OpenTxN,
		WriteTxs:    int(stats.TxStats.Write),
	}

	return db.DatabaseInfo{
		SizeBytes: int(size),
		DbType:    db.ImplBolt,
		SupportedFeatures: []db.Feature{
			db.FeatureGet, db.FeaturePut, db.FeatureDelete, db.FeatureScan,
			db.FeatureSave, db.FeatureDurable,
		},
		Metadata: meta,
	}
}

func (b *boltImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureGet |
		db.FeaturePut |
		db.FeatureDelete |
		db.FeatureScan |
		db.FeatureSave |
		db.FeatureDurable
	return supportedFeatures&feature == feature
}

// Close closes the bbolt file
func (b *boltImpl) Close() error {
	return b.bdb.Close()
}

