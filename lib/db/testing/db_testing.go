package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/cKV/lib/db"
)

// DBFactory is a function that creates a new instance of an ObjectDB implementation
type DBFactory func() db.ObjectDB

// RunObjectDBTests runs a comprehensive test suite for an ObjectDB implementation.
func RunObjectDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Buckets", func(t *testing.T) {
			testBuckets(t, factory())
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, factory())
		})

		t.Run("ScanPrefix", func(t *testing.T) {
			testScanPrefix(t, factory())
		})

		t.Run("Rollback", func(t *testing.T) {
			testRollback(t, factory())
		})

		t.Run("CommitVisibility", func(t *testing.T) {
			testCommitVisibility(t, factory())
		})

		t.Run("ReadOnly", func(t *testing.T) {
			testReadOnly(t, factory())
		})

		t.Run("TxClosed", func(t *testing.T) {
			testTxClosed(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("ConcurrentCommits", func(t *testing.T) {
			testConcurrentCommits(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.ObjectDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// update runs fn in a writable transaction and commits it
func update(t testing.TB, database db.ObjectDB, fn func(tx db.Tx)) {
	t.Helper()
	tx, err := database.Begin(true)
	if err != nil {
		t.Fatalf("Begin(true) failed: %v", err)
	}
	fn(tx)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

// get reads a single key in its own read-only transaction
func get(t testing.TB, database db.ObjectDB, bucket string, key []byte) ([]byte, bool) {
	t.Helper()
	tx, err := database.Begin(false)
	if err != nil {
		t.Fatalf("Begin(false) failed: %v", err)
	}
	defer tx.Rollback()
	v, ok, err := tx.Get(bucket, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	return v, ok
}

// scan collects all keys of a range in its own read-only transaction
func scan(t testing.TB, database db.ObjectDB, bucket string, from, to []byte) []string {
	t.Helper()
	tx, err := database.Begin(false)
	if err != nil {
		t.Fatalf("Begin(false) failed: %v", err)
	}
	defer tx.Rollback()
	var keys []string
	err = tx.Scan(bucket, from, to, func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return keys
}

func mustPut(t testing.TB, tx db.Tx, bucket string, key, value []byte) {
	t.Helper()
	if err := tx.Put(bucket, key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, database db.ObjectDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	testKey := []byte("test-key")
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	update(t, database, func(tx db.Tx) { mustPut(t, tx, "b", testKey, testValue1) })

	result, exists := get(t, database, "b", testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Put", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	update(t, database, func(tx db.Tx) { mustPut(t, tx, "b", testKey, testValue2) })

	result, exists = get(t, database, "b", testKey)
	if !exists || !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s (exists=%v)", testValue2, result, exists)
	}

	if _, exists = get(t, database, "b", []byte("nonexistent-key")); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	if _, exists = get(t, database, "missing-bucket", testKey); exists {
		t.Errorf("Expected key in missing bucket to return exists=false")
	}

	// returned values are copies
	retrievedValue, _ := get(t, database, "b", testKey)
	retrievedValue[0] = 'X'
	result, _ = get(t, database, "b", testKey)
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Modifying a returned value changed the stored value: %s", result)
	}
}

func testDelete(t *testing.T, database db.ObjectDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete)

	update(t, database, func(tx db.Tx) {
		mustPut(t, tx, "b", []byte("k1"), []byte("v1"))
		mustPut(t, tx, "b", []byte("k2"), []byte("v2"))
	})

	update(t, database, func(tx db.Tx) {
		if err := tx.Delete("b", []byte("k1")); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		// deleting missing keys and keys of missing buckets is not an error
		if err := tx.Delete("b", []byte("missing")); err != nil {
			t.Fatalf("Delete of missing key failed: %v", err)
		}
		if err := tx.Delete("missing-bucket", []byte("k1")); err != nil {
			t.Fatalf("Delete in missing bucket failed: %v", err)
		}
	})

	if _, exists := get(t, database, "b", []byte("k1")); exists {
		t.Errorf("Expected k1 to be deleted")
	}
	if _, exists := get(t, database, "b", []byte("k2")); !exists {
		t.Errorf("Expected k2 to still exist")
	}
}

func testBuckets(t *testing.T, database db.ObjectDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	key := []byte("same-key")
	update(t, database, func(tx db.Tx) {
		mustPut(t, tx, "bucket-a", key, []byte("a"))
		mustPut(t, tx, "bucket-b", key, []byte("b"))
	})

	a, _ := get(t, database, "bucket-a", key)
	b, _ := get(t, database, "bucket-b", key)
	if string(a) != "a" || string(b) != "b" {
		t.Errorf("Buckets are not independent: a=%s b=%s", a, b)
	}
}

func testScan(t *testing.T, database db.ObjectDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureScan)

	// insert out of order
	update(t, database, func(tx db.Tx) {
		for _, k := range []string{"d", "a", "c", "e", "b"} {
			mustPut(t, tx, "s", []byte(k), []byte("value-"+k))
		}
	})

	cases := []struct {
		name     string
		from, to []byte
		want     []string
	}{
		{"Open", nil, nil, []string{"a", "b", "c", "d", "e"}},
		{"From", []byte("c"), nil, []string{"c", "d", "e"}},
		{"To", nil, []byte("c"), []string{"a", "b"}},
		{"Range", []byte("b"), []byte("d"), []string{"b", "c"}},
		{"BetweenKeys", []byte("bb"), []byte("dd"), []string{"c", "d"}},
		{"Empty", []byte("x"), []byte("z"), nil},
		{"Inverted", []byte("d"), []byte("b"), nil},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := scan(t, database, "s", c.from, c.to)
			if !equalKeys(got, c.want) {
				t.Errorf("Expected %v, got %v", c.want, got)
			}
		})
	}

	t.Run("EarlyStop", func(t *testing.T) {
		tx, _ := database.Begin(false)
		defer tx.Rollback()
		var keys []string
		_ = tx.Scan("s", nil, nil, func(k, v []byte) bool {
			if string(v) != "value-"+string(k) {
				t.Errorf("Unexpected value %s for key %s", v, k)
			}
			keys = append(keys, string(k))
			return len(keys) < 2
		})
		if !equalKeys(keys, []string{"a", "b"}) {
			t.Errorf("Expected scan to stop after 2 keys, got %v", keys)
		}
	})

	t.Run("MissingBucket", func(t *testing.T) {
		if got := scan(t, database, "missing", nil, nil); len(got) != 0 {
			t.Errorf("Expected no keys, got %v", got)
		}
	})
}

func testScanPrefix(t *testing.T, database db.ObjectDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureScan)

	update(t, database, func(tx db.Tx) {
		for _, k := range []string{"user/1", "user/2", "user/10", "users", "group/1", "user\xff"} {
			mustPut(t, tx, "p", []byte(k), []byte(k))
		}
		mustPut(t, tx, "p", []byte{0xff, 0xff}, []byte("max"))
		mustPut(t, tx, "p", []byte{0xff, 0xff, 0x01}, []byte("max+1"))
	})

	from, to := db.PrefixRange([]byte("user/"))
	got := scan(t, database, "p", from, to)
	if want := []string{"user/1", "user/10", "user/2"}; !equalKeys(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	from, to = db.PrefixRange([]byte{0xff, 0xff})
	got = scan(t, database, "p", from, to)
	if len(got) != 2 {
		t.Errorf("Expected 2 keys for all-0xff prefix, got %d", len(got))
	}
}

func testRollback(t *testing.T, database db.ObjectDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	tx, err := database.Begin(true)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	mustPut(t, tx, "b", []byte("k"), []byte("v"))
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if _, exists := get(t, database, "b", []byte("k")); exists {
		t.Errorf("Rolled back write must not be visible")
	}

	// Rollback after Commit is a no-op
	tx, _ = database.Begin(true)
	mustPut(t, tx, "b", []byte("k"), []byte("v"))
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback after Commit should be a no-op, got %v", err)
	}
	if _, exists := get(t, database, "b", []byte("k")); !exists {
		t.Errorf("Committed write must survive a Rollback after Commit")
	}
}

func testCommitVisibility(t *testing.T, database db.ObjectDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	// seed the bucket so engines that create buckets lazily do not block readers
	update(t, database, func(tx db.Tx) { mustPut(t, tx, "vis", []byte("seed"), []byte("s")) })

	writer, err := database.Begin(true)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		mustPut(t, writer, "vis", []byte(fmt.Sprintf("k%02d", i)), []byte("v"))
	}
	if err := writer.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// the whole batch is visible after commit
	keys := scan(t, database, "vis", []byte("k"), []byte("l"))
	if len(keys) != 10 {
		t.Errorf("Expected 10 keys after commit, got %d", len(keys))
	}
}

func testReadOnly(t *testing.T, database db.ObjectDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut)

	tx, err := database.Begin(false)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Rollback()

	err = tx.Put("b", []byte("k"), []byte("v"))
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Code != db.RetCInvalidOperation {
		t.Errorf("Expected RetCInvalidOperation for Put in read-only tx, got %v", err)
	}

	err = tx.Delete("b", []byte("k"))
	if !errors.As(err, &dbErr) || dbErr.Code != db.RetCInvalidOperation {
		t.Errorf("Expected RetCInvalidOperation for Delete in read-only tx, got %v", err)
	}
}

func testTxClosed(t *testing.T, database db.ObjectDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	tx, _ := database.Begin(true)
	mustPut(t, tx, "b", []byte("k"), []byte("v"))
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	var dbErr *db.Error
	checks := map[string]error{
		"Put":    tx.Put("b", []byte("k2"), []byte("v")),
		"Delete": tx.Delete("b", []byte("k")),
		"Commit": tx.Commit(),
	}
	_, _, getErr := tx.Get("b", []byte("k"))
	checks["Get"] = getErr
	checks["Scan"] = tx.Scan("b", nil, nil, func(_, _ []byte) bool { return true })

	for op, err := range checks {
		if !errors.As(err, &dbErr) || dbErr.Code != db.RetCTxClosed {
			t.Errorf("%s on closed tx: expected RetCTxClosed, got %v", op, err)
		}
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)
	requireFeature(t, database, db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	update(t, database, func(tx db.Tx) {
		for i := 0; i < numEntries; i++ {
			bucket := fmt.Sprintf("bucket-%d", i%3)
			mustPut(t, tx, bucket, []byte(fmt.Sprintf("key-%04d", i)), []byte(fmt.Sprintf("value-%d", i)))
		}
	})

	// stale data in the target must be replaced
	update(t, database2, func(tx db.Tx) { mustPut(t, tx, "stale", []byte("k"), []byte("v")) })

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}
	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		bucket := fmt.Sprintf("bucket-%d", i%3)
		key := []byte(fmt.Sprintf("key-%04d", i))
		value, exists := get(t, database2, bucket, key)
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}
		if want := fmt.Sprintf("value-%d", i); string(value) != want {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", key, want, value)
		}
	}

	if _, exists := get(t, database2, "stale", []byte("k")); exists {
		t.Errorf("Load must replace existing data")
	}

	if err := database2.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Expected Load of invalid data to fail")
	}
}

func testEdgeCases(t *testing.T, database db.ObjectDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureGet)

	binaryKey := []byte{0x00, 0x01, 0x00}
	update(t, database, func(tx db.Tx) {
		mustPut(t, tx, "e", []byte("empty-value"), nil)
		mustPut(t, tx, "e", binaryKey, []byte("binary"))
		mustPut(t, tx, "e", []byte("dup"), []byte("first"))
		mustPut(t, tx, "e", []byte("dup"), []byte("second"))
	})

	if v, exists := get(t, database, "e", []byte("empty-value")); !exists || len(v) != 0 {
		t.Errorf("Expected empty value to exist and be empty, got %v (exists=%v)", v, exists)
	}
	if v, _ := get(t, database, "e", binaryKey); string(v) != "binary" {
		t.Errorf("Binary key mismatch: %s", v)
	}
	if v, _ := get(t, database, "e", []byte("dup")); string(v) != "second" {
		t.Errorf("Last write in a batch must win, got %s", v)
	}

	// put and delete of the same key in one batch
	update(t, database, func(tx db.Tx) {
		mustPut(t, tx, "e", []byte("short-lived"), []byte("v"))
		if err := tx.Delete("e", []byte("short-lived")); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	})
	if _, exists := get(t, database, "e", []byte("short-lived")); exists {
		t.Errorf("Put followed by Delete in one batch must leave no key")
	}

	largeValue := make([]byte, 1024*1024)
	for i := range largeValue {
		largeValue[i] = byte(i % 256)
	}
	update(t, database, func(tx db.Tx) { mustPut(t, tx, "e", []byte("large"), largeValue) })
	if v, _ := get(t, database, "e", []byte("large")); !bytes.Equal(v, largeValue) {
		t.Errorf("Large value mismatch (len %d)", len(v))
	}
}

func testConcurrentCommits(t *testing.T, database db.ObjectDB) {
	defer database.Close()

	requireFeature(t, database, db.FeaturePut|db.FeatureScan)

	numWorkers := 8
	perWorker := 25

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	errs := make(chan error, numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tx, err := database.Begin(true)
				if err != nil {
					errs <- err
					return
				}
				key := []byte(fmt.Sprintf("w%d-%03d", workerId, i))
				if err := tx.Put("c", key, key); err != nil {
					errs <- err
					return
				}
				if err := tx.Commit(); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Concurrent commit failed: %v", err)
	}

	if got := scan(t, database, "c", nil, nil); len(got) != numWorkers*perWorker {
		t.Errorf("Expected %d keys, got %d", numWorkers*perWorker, len(got))
	}
}
