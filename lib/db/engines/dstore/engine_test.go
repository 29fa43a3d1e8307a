package dstore

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/cKV/lib/db"
	"github.com/ValentinKolb/cKV/lib/db/engines/maple"
	dbtesting "github.com/ValentinKolb/cKV/lib/db/testing"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/config"
)

const testRaftAddress = "localhost:26301"

// startNodeHost starts a single replica node host for tests
func startNodeHost(t *testing.T) *dragonboat.NodeHost {
	dir := t.TempDir()
	nh, err := dragonboat.NewNodeHost(config.NodeHostConfig{
		WALDir:         dir,
		NodeHostDir:    dir,
		RTTMillisecond: 5,
		RaftAddress:    testRaftAddress,
	})
	if err != nil {
		t.Fatalf("failed to create node host: %v", err)
	}
	t.Cleanup(nh.Close)
	return nh
}

// startShard starts a single replica shard and waits until it has a leader
func startShard(nh *dragonboat.NodeHost, shardID uint64) db.ObjectDB {
	factory := CreateStateMachineFactory(func() (db.ObjectDB, error) {
		return maple.NewMapleDB(nil), nil
	})
	err := nh.StartConcurrentReplica(map[uint64]string{1: testRaftAddress}, false, factory, config.Config{
		ReplicaID:       1,
		ShardID:         shardID,
		ElectionRTT:     10,
		HeartbeatRTT:    1,
		CheckQuorum:     true,
		SnapshotEntries: 50,
	})
	if err != nil {
		panic(err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		leader, _, valid, err := nh.GetLeaderID(shardID)
		if err == nil && valid && leader == 1 {
			return NewDistributedDB(nh, shardID, 3*time.Second)
		}
		time.Sleep(10 * time.Millisecond)
	}
	panic("shard did not elect a leader")
}

func Test(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a raft node host")
	}

	nh := startNodeHost(t)
	var shardID atomic.Uint64

	dbtesting.RunObjectDBTests(t, "DStore", func() db.ObjectDB {
		return startShard(nh, 100+shardID.Add(1))
	})
}

func TestScanPaging(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a raft node host")
	}

	nh := startNodeHost(t)
	database := startShard(nh, 1)

	n := scanPage*2 + 17
	tx, _ := database.Begin(true)
	for i := 0; i < n; i++ {
		_ = tx.Put("paged", []byte{byte(i >> 8), byte(i)}, []byte{byte(i)})
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	tx, _ = database.Begin(false)
	defer tx.Rollback()
	count := 0
	err := tx.Scan("paged", nil, nil, func(k, _ []byte) bool {
		if want := []byte{byte(count >> 8), byte(count)}; string(k) != string(want) {
			t.Fatalf("Unexpected key order at %d: %x", count, k)
		}
		count++
		return true
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if count != n {
		t.Errorf("Expected %d keys across pages, got %d", n, count)
	}

	info := database.GetInfo()
	if info.DbType != db.ImplDStore || !database.SupportsFeature(db.FeatureReplicated) {
		t.Errorf("Unexpected info %+v", info)
	}
}
