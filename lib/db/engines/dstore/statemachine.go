package dstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/cKV/lib/db"
	"github.com/ValentinKolb/cKV/lib/db/engines/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// ObjectStateMachine is a state machine implementation for Dragonboat RAFT.
// Every replica keeps the full state in a local engine (maple by default) and
// applies committed write batches to it.
type ObjectStateMachine struct {
	replicaID uint64
	shardID   uint64
	database  db.ObjectDB // the actual data storage
}

// CreateStateMachineFactory returns a function that can be used by dragonboat to create a new state machine for a node host
// The factory pattern is used to enable the caller to pass an interchangeable engine factory
func CreateStateMachineFactory(dbFactory db.Factory) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		database, err := dbFactory()
		if err != nil {
			// dragonboat offers no error path for state machine creation
			panic(fmt.Sprintf("dstore: failed to create local engine for shard %d: %v", shardID, err))
		}
		return &ObjectStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			database:  database,
		}
	}
}

// Lookup handles read-only queries against the local engine.
func (fsm *ObjectStateMachine) Lookup(itf interface{}) (interface{}, error) {

	// try to parse Query into Query struct
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, db.NewError(db.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTGet:
		tx, err := fsm.database.Begin(false)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()
		val, ok, err := tx.Get(q.Bucket, q.Key)
		if err != nil {
			return nil, err
		}
		return internal.QueryResult{
			Value: val,
			Ok:    ok,
		}, nil

	case internal.QueryTScan:
		tx, err := fsm.database.Begin(false)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()
		var res internal.ScanResult
		err = tx.Scan(q.Bucket, q.From, q.To, func(k, v []byte) bool {
			if q.Limit > 0 && len(res.Keys) == q.Limit {
				res.More = true
				return false
			}
			res.Keys = append(res.Keys, k)
			res.Values = append(res.Values, v)
			return true
		})
		if err != nil {
			return nil, err
		}
		return res, nil

	case internal.QueryTGetDBInfo:
		return fsm.database.GetInfo(), nil

	default:
		return nil, db.NewError(db.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update applies committed write batches to the local engine.
// Each entry is applied in its own engine transaction so a batch is atomic.
func (fsm *ObjectStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {

	// Nothing to do
	if len(entries) == 0 {
		return entries, nil
	}

	// Stats
	start := time.Now()
	writes := 0

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(db.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}

		// Deserialize the command
		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{
				Value: uint64(db.RetCInternalError),
				Data:  []byte(fmt.Sprintf("failed to deserialize command: %v", err)),
			}
			continue
		}

		switch cmd.Type {
		case internal.CommandTApply:
			if err := fsm.apply(cmd.Writes); err != nil {
				// a replica that cannot apply a committed entry diverges from the others
				return nil, fmt.Errorf("shard %d replica %d: apply index %d: %w", fsm.shardID, fsm.replicaID, e.Index, err)
			}
			writes += len(cmd.Writes)
			entries[idx].Result = sm.Result{
				Value: uint64(db.RetCSuccess),
				Data:  []byte(fmt.Sprintf("applied %d writes", len(cmd.Writes))),
			}
		default:
			entries[idx].Result = sm.Result{
				Value: uint64(db.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
			}
		}
	}

	// Log if the update took long
	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch applied %d entries (%d writes), took %.2fms", len(entries), writes, float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// apply executes one write batch in a single engine transaction
func (fsm *ObjectStateMachine) apply(writes []internal.Write) error {
	tx, err := fsm.database.Begin(true)
	if err != nil {
		return err
	}
	for _, w := range writes {
		switch w.Type {
		case internal.WriteTPut:
			err = tx.Put(w.Bucket, w.Key, w.Value)
		case internal.WriteTDelete:
			err = tx.Delete(w.Bucket, w.Key)
		default:
			err = fmt.Errorf("unknown write type %s", w.Type)
		}
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// PrepareSnapshot is not used. The local engine takes consistent copies itself
func (fsm *ObjectStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot writes the local engine state to the writer
func (fsm *ObjectStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureSave) {
		return fmt.Errorf("the used engine does not support Save() operations")
	}
	return fsm.database.Save(writer)
}

// RecoverFromSnapshot replaces the local engine state with the snapshot
func (fsm *ObjectStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	if !fsm.database.SupportsFeature(db.FeatureLoad) {
		return fmt.Errorf("the used engine does not support Load() operations")
	}
	return fsm.database.Load(r)
}

// Close performs any necessary cleanup.
func (fsm *ObjectStateMachine) Close() error {
	return fsm.database.Close()
}
