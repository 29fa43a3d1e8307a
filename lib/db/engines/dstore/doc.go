// Package dstore implements a replicated, fault-tolerant db.ObjectDB using the
// Dragonboat RAFT consensus library. Every replica of a shard holds the complete
// state in a local engine (maple by default), committed transactions are
// replicated as single raft entries.
//
// Architecture:
//
//   - Engine Client (dstoreImpl, dstoreTx): Implements db.ObjectDB. A transaction
//     buffers its writes and proposes them as one Command on Commit. Reads are
//     answered by the state machine of the local replica.
//
//   - State Machine (ObjectStateMachine): A Dragonboat IConcurrentStateMachine that
//     applies each Command in one transaction of its local engine, so a committed
//     batch is atomic on every replica.
//
//   - Communication Protocol: Defined in the internal package (Command, Query).
//
// Write Operations:
//
//	1. Put and Delete calls are buffered in the transaction
//	2. Commit serializes the buffer into one Command and proposes it via SyncPropose
//	3. The leader replicates the entry to a majority of replicas
//	4. Every replica applies the batch to its local engine (Update in statemachine.go)
//	5. The result is returned to the client
//
//	A transaction without writes never touches the raft log.
//
// Read Operations:
//
//	Get and Scan use SyncRead, the replica applies all committed entries before it
//	answers. Scans are paged (scanPage entries per read). Buffered writes of an
//	open transaction are not visible to its own reads.
//
// Error Handling and Retries:
//
//	- System Busy: When Dragonboat returns ErrSystemBusy, the operation is retried
//	  after a short delay, up to a fixed number of attempts.
//	- Timeouts: All operations use the configured timeout.
//	- A replica that fails to apply a committed entry stops the shard instead of
//	  diverging from the other replicas.
//
// Snapshotting and Recovery:
//
//	Raft snapshots delegate to Save and Load of the local engine, which must
//	therefore support FeatureSave and FeatureLoad. After restoring a snapshot a
//	replica receives the entries committed after it from the other replicas.
//
// Usage:
//
//	nh, err := dragonboat.NewNodeHost(nodeHostConfig)
//	if err != nil { ... }
//
//	engineFactory := func() (db.ObjectDB, error) { return maple.NewMapleDB(nil), nil }
//
//	err = nh.StartConcurrentReplica(
//	    clusterMembers,
//	    false,
//	    dstore.CreateStateMachineFactory(engineFactory),
//	    shardConfig)
//	if err != nil { ... }
//
//	engine := dstore.NewDistributedDB(nh, shardID, 5*time.Second)
//
// Limitations:
//
//   - Majority Requirement: Operations cannot proceed if a majority of replicas are unavailable
//   - Save and Load are not available on the client, snapshots are a replica concern
//   - Pages of a long scan are separate reads
package dstore
