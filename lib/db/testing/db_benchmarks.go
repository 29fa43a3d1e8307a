package testing

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/cKV/lib/db"
)

// RunObjectDBBenchmarks runs all benchmarks for an ObjectDB implementation
func RunObjectDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Put", func(b *testing.B) {
		benchmarkPut(b, factory())
	})

	b.Run("PutBatch", func(b *testing.B) {
		benchmarkPutBatch(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Scan", func(b *testing.B) {
		benchmarkScan(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// fill writes n keys in a single transaction
func fill(b *testing.B, database db.ObjectDB, n int) {
	update(b, database, func(tx db.Tx) {
		for i := 0; i < n; i++ {
			key := []byte(fmt.Sprintf("test-key-%08d", i))
			mustPut(b, tx, "bench", key, []byte(fmt.Sprintf("test-value-%d", i)))
		}
	})
}

// Benchmark for one Put per transaction
func benchmarkPut(b *testing.B, database db.ObjectDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	var counter int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := atomic.AddInt64(&counter, 1)
			tx, _ := database.Begin(true)
			_ = tx.Put("bench", []byte(fmt.Sprintf("test-key-%d", i)), []byte(fmt.Sprintf("test-value-%d", i)))
			_ = tx.Commit()
		}
	})
}

// Benchmark for 100 Puts per transaction
func benchmarkPutBatch(b *testing.B, database db.ObjectDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx, _ := database.Begin(true)
		for j := 0; j < 100; j++ {
			_ = tx.Put("bench", []byte(fmt.Sprintf("test-key-%d-%d", i, j)), []byte("test-value"))
		}
		_ = tx.Commit()
	}
}

// Benchmark for Get operation
func benchmarkGet(b *testing.B, database db.ObjectDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureGet)

	numKeys := 10000
	fill(b, database, numKeys)

	var counter int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		tx, _ := database.Begin(false)
		defer tx.Rollback()
		for pb.Next() {
			i := int(atomic.AddInt64(&counter, 1)) % numKeys
			_, _, _ = tx.Get("bench", []byte(fmt.Sprintf("test-key-%08d", i)))
		}
	})
}

// Benchmark for scanning 100 keys
func benchmarkScan(b *testing.B, database db.ObjectDB) {

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureScan)

	numKeys := 10000
	fill(b, database, numKeys)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx, _ := database.Begin(false)
		from := []byte(fmt.Sprintf("test-key-%08d", (i*100)%numKeys))
		count := 0
		_ = tx.Scan("bench", from, nil, func(_, _ []byte) bool {
			count++
			return count < 100
		})
		_ = tx.Rollback()
	}
}

// Benchmark for Save and Load operations
// For these operations, parallelization is not meaningful as they typically
// block the entire database
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {

	database := factory()

	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureSave|db.FeatureLoad)

	// Create a database with some data
	fill(b, database, 10000)

	b.Run("Save", func(b *testing.B) {
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			var buf bytes.Buffer
			_ = database.Save(&buf)
		}
	})

	// Prepare a data buffer for Load benchmark
	var loadBuf bytes.Buffer
	_ = database.Save(&loadBuf)
	data := loadBuf.Bytes()

	b.Run("Load", func(b *testing.B) {
		loadDB := factory()
		defer loadDB.Close()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_ = loadDB.Load(bytes.NewReader(data))
		}
	})
}

// Benchmark for mixed usage patterns
func benchmarkMixedUsage(b *testing.B, database db.ObjectDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeaturePut|db.FeatureGet|db.FeatureDelete|db.FeatureScan)

	numKeys := 10000
	fill(b, database, numKeys)

	// Counter for atomic access
	var counter int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			i := int(atomic.AddInt64(&counter, 1))
			key := []byte(fmt.Sprintf("test-key-%08d", i%numKeys))

			// Select operation (0-1: get, 2: put, 3: delete, 4: scan)
			switch i % 5 {
			case 0, 1:
				tx, _ := database.Begin(false)
				_, _, _ = tx.Get("bench", key)
				_ = tx.Rollback()
			case 2:
				tx, _ := database.Begin(true)
				_ = tx.Put("bench", key, []byte("mixed-value"))
				_ = tx.Commit()
			case 3:
				tx, _ := database.Begin(true)
				_ = tx.Delete("bench", key)
				_ = tx.Commit()
			case 4:
				tx, _ := database.Begin(false)
				count := 0
				_ = tx.Scan("bench", key, nil, func(_, _ []byte) bool {
					count++
					return count < 10
				})
				_ = tx.Rollback()
			}
		}
	})
}
