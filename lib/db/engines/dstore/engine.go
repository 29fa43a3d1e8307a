package dstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/cKV/lib/db"
	"github.com/ValentinKolb/cKV/lib/db/engines/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries  = 5
	scanPage = 256
	log      = logger.GetLogger("engine/dstore")
)

// dstoreImpl is the concrete implementation of db.ObjectDB for a raft shard.
// It encapsulates a Dragonboat NodeHost which is used to communicate with the state machine.
type dstoreImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewDistributedDB creates a new engine client for a shard started with
// CreateStateMachineFactory. Writes are linearizable raft proposals, reads are
// linearizable lookups on the local replica.
func NewDistributedDB(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) db.ObjectDB {
	cs := nh.GetNoOPSession(shardID)
	return &dstoreImpl{
		nh:      nh,
		shardID: shardID,
		cs:      cs,
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Internal write and read operations
// --------------------------------------------------------------------------

// write proposes a Command via SyncPropose.
// It returns a *db.Error if an error occurs, or nil on success.
func (s *dstoreImpl) write(cmd internal.Command) error {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)

		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			return db.NewError(db.RetCInternalError, err.Error())
		}
		if res.Value != uint64(db.RetCSuccess) {
			return db.NewError(db.RetCode(res.Value), string(res.Data))
		}
		return nil
	}
	return db.NewError(db.RetCInternalError, "timeout")
}

// read is a generic helper function that queries the state machine
// and attempts to convert the response into the expected type R.
//
// If the read operation fails due to a system busy error, the function retries.
func read[R any](s *dstoreImpl, q internal.Query) (R, error) {
	var zero R
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.nh.SyncRead(ctx, s.shardID, q)
		cancel()

		// Check for system busy errors
		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: System busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}

		if err != nil {
			var dbErr *db.Error
			if errors.As(err, &dbErr) {
				return zero, dbErr
			}
			return zero, db.NewError(db.RetCInternalError, err.Error())
		}

		// The state machine is expected to return the response in the expected type R.
		casted, ok := res.(R)
		if !ok {
			return zero, db.NewError(db.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T, expected %T", res, zero))
		}
		return casted, nil
	}
	return zero, db.NewError(db.RetCInternalError, "timeout")
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

func (s *dstoreImpl) Begin(writable bool) (db.Tx, error) {
	return &dstoreTx{store: s, writable: writable}, nil
}

// dstoreTx buffers writes and proposes them as one raft entry on Commit.
// Reads are served from the replicated state and do not see buffered writes.
type dstoreTx struct {
	store    *dstoreImpl
	writable bool
	closed   bool
	writes   []internal.Write
}

func (tx *dstoreTx) Get(bucket string, key []byte) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, db.ErrTxClosed
	}
	res, err := read[internal.QueryResult](tx.store, internal.Query{
		Type:   internal.QueryTGet,
		Bucket: bucket,
		Key:    key,
	})
	if err != nil {
		return nil, false, err
	}
	return res.Value, res.Ok, nil
}

func (tx *dstoreTx) Put(bucket string, key, value []byte) error {
	return tx.buffer(internal.Write{
		Type:   internal.WriteTPut,
		Bucket: bucket,
		Key:    append([]byte(nil), key...),
		Value:  append([]byte(nil), value...),
	})
}

func (tx *dstoreTx) Delete(bucket string, key []byte) error {
	return tx.buffer(internal.Write{
		Type:   internal.WriteTDelete,
		Bucket: bucket,
		Key:    append([]byte(nil), key...),
	})
}

func (tx *dstoreTx) buffer(w internal.Write) error {
	if tx.closed {
		return db.ErrTxClosed
	}
	if !tx.writable {
		return db.ErrReadOnly
	}
	if len(w.Bucket) > 0xFFFF {
		return db.NewError(db.RetCInvalidOperation, "bucket name too long")
	}
	tx.writes = append(tx.writes, w)
	return nil
}

// Scan reads the range page by page. Each page is a separate linearizable read,
// so a long scan may observe commits that happened between pages.
func (tx *dstoreTx) Scan(bucket string, from, to []byte, fn func(key, value []byte) bool) error {
	if tx.closed {
		return db.ErrTxClosed
	}
	for {
		res, err := read[internal.ScanResult](tx.store, internal.Query{
			Type:   internal.QueryTScan,
			Bucket: bucket,
			From:   from,
			To:     to,
			Limit:  scanPage,
		})
		if err != nil {
			return err
		}
		for i := range res.Keys {
			if !fn(res.Keys[i], res.Values[i]) {
				return nil
			}
		}
		if !res.More || len(res.Keys) == 0 {
			return nil
		}
		// smallest key after the last one
		last := res.Keys[len(res.Keys)-1]
		from = append(append([]byte(nil), last...), 0x00)
	}
}

func (tx *dstoreTx) Commit() error {
	if tx.closed {
		return db.ErrTxClosed
	}
	tx.closed = true
	if len(tx.writes) == 0 {
		return nil
	}
	err := tx.store.write(internal.Command{
		Type:   internal.CommandTApply,
		Writes: tx.writes,
	})
	tx.writes = nil
	return err
}

func (tx *dstoreTx) Rollback() error {
	tx.closed = true
	tx.writes = nil
	return nil
}

// --------------------------------------------------------------------------
// ObjectDB Interface Implementation
// --------------------------------------------------------------------------

// Save is not supported by the client. Raft snapshots are taken by the
// state machine of every replica.
func (s *dstoreImpl) Save(_ io.Writer) error {
	return db.NewError(db.RetCUnsupportedOperation, "dstore engine does not support Save")
}

// Load is not supported by the client, see Save.
func (s *dstoreImpl) Load(_ io.Reader) error {
	return db.NewError(db.RetCUnsupportedOperation, "dstore engine does not support Load")
}

func (s *dstoreImpl) SupportsFeature(feature db.Feature) bool {
	supportedFeatures := db.FeatureGet |
		db.FeaturePut |
		db.FeatureDelete |
		db.FeatureScan |
		db.FeatureDurable |
		db.FeatureReplicated
	return supportedFeatures&feature == feature
}

// GetInfo returns the info of the local replica's engine with dstore metadata
func (s *dstoreImpl) GetInfo() db.DatabaseInfo {
	local, err := read[db.DatabaseInfo](s, internal.Query{Type: internal.QueryTGetDBInfo})

	meta := &struct {
		ShardID   uint64      `json:"shard_id"`
		Timeout   string      `json:"timeout"`
		LocalType string      `json:"local_type"`
		Local     interface{} `json:"local"`
		Error     string      `json:"error,omitempty"`
	}{
		ShardID:   s.shardID,
		Timeout:   s.timeout.String(),
		LocalType: string(local.DbType),
		Local:     local.Metadata,
	}
	if err != nil {
		meta.Error = err.Error()
	}

	return db.DatabaseInfo{
		SizeBytes: local.SizeBytes,
		DbType:    db.ImplDStore,
		SupportedFeatures: []db.Feature{
			db.FeatureGet, db.FeaturePut, db.FeatureDelete, db.FeatureScan,
			db.FeatureDurable, db.FeatureReplicated,
		},
		Metadata: meta,
	}
}

// Close does nothing, the NodeHost is owned by the caller
func (s *dstoreImpl) Close() error {
	return nil
}
