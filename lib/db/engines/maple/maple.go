package maple

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/cKV/lib/db"
	"github.com/ValentinKolb/cKV/lib/db/engines/maple/internal"
	"github.com/ValentinKolb/cKV/lib/db/util"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

// Constants for database behavior and structure
const (
	magicNum         = "MAPLEDB\x00" // File format identifier
	mapleVersion     = 4             // Database version
	samplesPerBucket = 100           // Entries sampled per bucket by GetInfo
)

// --------------------------------------------------------------------------
// Core Maple database structure
// --------------------------------------------------------------------------

// mapleImpl implements an in-memory engine with ordered buckets
type mapleImpl struct {
	buckets  *xsync.MapOf[string, *internal.Bucket] // Bucket registry
	commitMu sync.Mutex                             // Serializes commits and Load
	writeIdx atomic.Uint64                          // Number of committed write batches
}

// DBOptions configures the mapleImpl behavior during initialization
type DBOptions struct {
	PresizeBuckets int // Expected number of buckets (0 = default)
}

// DefaultOptions returns the default mapleImpl options
func DefaultOptions() *DBOptions {
	return &DBOptions{
		PresizeBuckets: 16,
	}
}

// --------------------------------------------------------------------------
// Initialization and Setup
// --------------------------------------------------------------------------

// NewMapleDB creates a new MapleDB instance with the specified options (optional)
//
// Thread-safety: This function is not thread-safe and should only be called once
// during initialization.
func NewMapleDB(opts *DBOptions) db.ObjectDB {
	return newMaple(opts)
}

func newMaple(opts *DBOptions) *mapleImpl {
	if opts == nil {
		opts = DefaultOptions()
	}
	presize := opts.PresizeBuckets
	if presize <= 0 {
		presize = DefaultOptions().PresizeBuckets
	}
	return &mapleImpl{
		buckets: xsync.NewMapOf[string, *internal.Bucket](xsync.WithPresize(presize)),
	}
}

// bucket returns the bucket with the given name, optionally creating it
func (maple *mapleImpl) bucket(name string, create bool) *internal.Bucket {
	if !create {
		b, _ := maple.buckets.Load(name)
		return b
	}
	b, _ := maple.buckets.LoadOrCompute(name, internal.NewBucket)
	return b
}

// WriteIdx returns the number of committed write batches
func (maple *mapleImpl) WriteIdx() uint64 {
	return maple.writeIdx.Load()
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

// Begin starts a new transaction.
// Reads always observe the latest committed state, writes are buffered and
// applied atomically by Commit.
//
// Thread-safety: This method is thread-safe, the returned Tx is not.
func (maple *mapleImpl) Begin(writable bool) (db.Tx, error) {
	return &mapleTx{maple: maple, writable: writable}, nil
}

// apply executes a batch of writes atomically. All touched buckets are write
// locked (in name order) before the first write is applied, so concurrent
// readers either see the complete batch or nothing of it.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (maple *mapleImpl) apply(writes []internal.Write) {
	if len(writes) == 0 {
		return
	}

	maple.commitMu.Lock()
	defer maple.commitMu.Unlock()

	names := make([]string, 0, 4)
	seen := make(map[string]*internal.Bucket, 4)
	for _, w := range writes {
		if _, ok := seen[w.Bucket]; !ok {
			seen[w.Bucket] = maple.bucket(w.Bucket, true)
			names = append(names, w.Bucket)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		seen[name].Mu.Lock()
	}
	for _, w := range writes {
		seen[w.Bucket].Apply(w)
	}
	for _, name := range names {
		seen[name].Mu.Unlock()
	}

	maple.writeIdx.Add(1)
}

// mapleTx is a single maple transaction
type mapleTx struct {
	maple    *mapleImpl
	writable bool
	closed   bool
	writes   []internal.Write
}

func (tx *mapleTx) Get(bucket string, key []byte) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, db.ErrTxClosed
	}
	b := tx.maple.bucket(bucket, false)
	if b == nil {
		return nil, false, nil
	}
	v, ok := b.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (tx *mapleTx) Put(bucket string, key, value []byte) error {
	return tx.buffer(internal.Write{
		Type:   internal.OpTPut,
		Bucket: bucket,
		Key:    append([]byte(nil), key...),
		Value:  append([]byte(nil), value...),
	})
}

func (tx *mapleTx) Delete(bucket string, key []byte) error {
	return tx.buffer(internal.Write{
		Type:   internal.OpTDelete,
		Bucket: bucket,
		Key:    append([]byte(nil), key...),
	})
}

func (tx *mapleTx) buffer(w internal.Write) error {
	if tx.closed {
		return db.ErrTxClosed
	}
	if !tx.writable {
		return db.ErrReadOnly
	}
	tx.writes = append(tx.writes, w)
	return nil
}

func (tx *mapleTx) Scan(bucket string, from, to []byte, fn func(key, value []byte) bool) error {
	if tx.closed {
		return db.ErrTxClosed
	}
	b := tx.maple.bucket(bucket, false)
	if b == nil {
		return nil
	}
	internal.Ascend(b.Snapshot(), from, to, func(e internal.Entry) bool {
		return fn(append([]byte(nil), e.Key...), append([]byte(nil), e.Value...))
	})
	return nil
}

func (tx *mapleTx) Commit() error {
	if tx.closed {
		return db.ErrTxClosed
	}
	tx.closed = true
	tx.maple.apply(tx.writes)
	tx.writes = nil
	return nil
}

func (tx *mapleTx) Rollback() error {
	tx.closed = true
	tx.writes = nil
	return nil
}

// --------------------------------------------------------------------------
// ObjectDB Interface Implementation - Persistence
// --------------------------------------------------------------------------

// Save writes the committed state of all buckets to w.
//
// Thread-safety: This function is thread-safe. Each bucket is saved from a
// lazy copy, concurrent commits are blocked while the copies are taken.
func (maple *mapleImpl) Save(w io.Writer) error {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	type bucketToSave struct {
		name    string
		entries []internal.Entry
	}

	// take consistent copies of all buckets
	maple.commitMu.Lock()
	var toSave []bucketToSave
	maple.buckets.Range(func(name string, b *internal.Bucket) bool {
		snap := b.Snapshot()
		entries := make([]internal.Entry, 0, snap.Len())
		snap.Ascend(func(e internal.Entry) bool {
			entries = append(entries, e)
			return true
		})
		toSave = append(toSave, bucketToSave{name: name, entries: entries})
		return true
	})
	writeIdx := maple.writeIdx.Load()
	maple.commitMu.Unlock()

	sort.Slice(toSave, func(i, j int) bool { return toSave[i].name < toSave[j].name })

	// Write file header
	if _, err := bw.WriteString(magicNum); err != nil {
		return err
	}

	// Write maple version
	if err := binary.Write(bw, binary.LittleEndian, uint8(mapleVersion)); err != nil {
		return err
	}

	// Write committed batch counter
	if err := binary.Write(bw, binary.LittleEndian, writeIdx); err != nil {
		return err
	}

	// Write bucket count
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(toSave))); err != nil {
		return err
	}

	for _, b := range toSave {
		if err := writeBytes(bw, []byte(b.name)); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, uint64(len(b.entries))); err != nil {
			return err
		}
		for _, e := range b.entries {
			if err := writeBytes(bw, e.Key); err != nil {
				return err
			}
			if err := writeBytes(bw, e.Value); err != nil {
				return err
			}
		}
	}

	// Flush buffer to ensure all data is written
	return bw.Flush()
}

// Load replaces the database content with the data read from r
//
// Thread-safety: This function blocks concurrent commits. It must not run
// concurrently with readers that expect a stable state.
func (maple *mapleImpl) Load(r io.Reader) error {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(magicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return err
	}
	if string(magicBytes) != magicNum {
		return fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return err
	}
	if int(version) != mapleVersion {
		return fmt.Errorf("unsupported version: %d (expected %d)", version, mapleVersion)
	}

	var writeIdx uint64
	if err := binary.Read(br, binary.LittleEndian, &writeIdx); err != nil {
		return err
	}

	var bucketCount uint32
	if err := binary.Read(br, binary.LittleEndian, &bucketCount); err != nil {
		return err
	}

	// build the new registry completely before swapping it in
	loaded := make(map[string]*internal.Bucket, bucketCount)
	for i := uint32(0); i < bucketCount; i++ {
		name, err := readBytes(br)
		if err != nil {
			return err
		}
		var count uint64
		if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
			return err
		}
		b := internal.NewBucket()
		for j := uint64(0); j < count; j++ {
			key, err := readBytes(br)
			if err != nil {
				return err
			}
			value, err := readBytes(br)
			if err != nil {
				return err
			}
			b.Tree.ReplaceOrInsert(internal.Entry{Key: key, Value: value})
		}
		loaded[string(name)] = b
	}

	maple.commitMu.Lock()
	defer maple.commitMu.Unlock()
	maple.buckets.Clear()
	for name, b := range loaded {
		maple.buckets.Store(name, b)
	}
	maple.writeIdx.Store(writeIdx)
	return nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// --------------------------------------------------------------------------
// ObjectDB Interface Implementation - Features and Metadata
// --------------------------------------------------------------------------

// GetInfo returns statistics about the database
func (maple *mapleImpl) GetInfo() db.DatabaseInfo {

	// create a size histogram for the info
	histogram := util.NewSizeHistogram()

	var (
		bucketNames []string
		bucketSizes []float64
		entries     int
	)

	maple.buckets.Range(func(name string, b *internal.Bucket) bool {
		size := b.Len()
		bucketNames = append(bucketNames, name)
		bucketSizes = append(bucketSizes, float64(size))
		entries += size

		// only sample a few entries per bucket
		count := 0
		b.Mu.RLock()
		b.Tree.Ascend(func(e internal.Entry) bool {
			histogram.AddSample(len(e.Key) + len(e.Value))
			count++
			return count < samplesPerBucket
		})
		b.Mu.RUnlock()
		return true
	})

	// calculate size
	entryOverhead := 48 // slice headers of key and value
	medianSize := histogram.MedianEstimate() + entryOverhead
	avgSize := histogram.AverageSize() + entryOverhead

	// weighted estimate (60% median, 40% average)
	sizeBytes := entries * ((medianSize*60 + avgSize*40) / 100)

	sort.Strings(bucketNames)

	// Metadata for this specific database implementation
	meta := &struct {
		WriteIndex         uint64                 `json:"write_index"`
		BucketCount        int                    `json:"bucket_count"`
		Buckets            []string               `json:"buckets"`
		EntryCount         int                    `json:"entry_count"`
		BucketDistribution util.DistributionStats `json:"bucket_distribution"`
		Info               string                 `json:"info"`
	}{
		WriteIndex:         maple.writeIdx.Load(),
		BucketCount:        len(bucketNames),
		Buckets:            bucketNames,
		EntryCount:         entries,
		BucketDistribution: util.NewDistributionStats(bucketSizes),
		Info:               "SizeBytes is an estimate based on sampled entries.",
	}

	return db.DatabaseInfo{
		SizeBytes: sizeBytes,
		DbType:    db.ImplMaple,
		SupportedFeatures: []db.Feature{
			db.FeatureGet, db.FeaturePut, db.FeatureDelete, db.FeatureScan,
			db.FeatureSave, db.FeatureLoad,
		},
		Metadata: meta,
	}
}

// SupportsFeature checks if this implementation supports a specific feature
func (maple *mapleImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureGet |
		db.FeaturePut |
		db.FeatureDelete |
		db.FeatureScan |
		db.FeatureSave |
		db.FeatureLoad
	return supportedFeatures&feature == feature
}

// Close releases all buckets
func (maple *mapleImpl) Close() error {
	maple.buckets.Clear()
	return nil
}
