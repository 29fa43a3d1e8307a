package document

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/cKV/cmd/util"
	"github.com/ValentinKolb/cKV/lib/continuous"
	dbUtil "github.com/ValentinKolb/cKV/lib/db/util"
	"github.com/ValentinKolb/cKV/lib/docstore"
	"github.com/ValentinKolb/cKV/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for cKV servers",
		Long:    "Runs put, get, range, search, transaction and mixed benchmarks against a shard. All documents are written below a random key prefix and deleted afterwards, their history remains.",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        string
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the content for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(1, viper.GetInt("keys"))
	perfNumThreads = max(1, viper.GetInt("threads"))
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	perfKeyPrefix = fmt.Sprintf("__perf-%x", dbUtil.GenerateSeed())

	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for cKV servers")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Shard: %d\n", util.GetShardID())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Printf("Key prefix: %s\n", perfKeyPrefix)
	fmt.Println()

	fmt.Println("starting tests...")

	// conflicts are expected when threads write the same keys, they are counted, not logged
	var conflicts atomic.Int64
	report := func(test string, err error) {
		if errors.Is(err, continuous.ErrConflict) {
			conflicts.Add(1)
			return
		}
		log.Printf("(%s) - %v\n", test, err)
	}

	results := make(map[string]testing.BenchmarkResult)
	bench := func(name string, fn func(b *testing.B)) {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(name) {
				return
			}
			fn(b)
		})
		results[name] = result
		printResult(name, result)
	}

	bench("put", func(b *testing.B) {
		getKey, iter := getKeys("put")
		b.Cleanup(func() { deleteKeys(iter, report) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := rpcStore.Put(docstore.AutoCommit, docstore.Doc{Key: getKey(counter), Content: "test"}); err != nil {
					report("put", err)
				}
				counter++
			}
		})
	})

	bench("put-large", func(b *testing.B) {
		content := strings.Repeat("x", perfLargeValueSizeKB*1024)
		getKey, iter := getKeys("put-large")
		b.Cleanup(func() { deleteKeys(iter, report) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, err := rpcStore.Put(docstore.AutoCommit, docstore.Doc{Key: getKey(counter), Content: content}); err != nil {
					report("put-large", err)
				}
				counter++
			}
		})
	})

	bench("get", func(b *testing.B) {
		getKey, iter := getKeys("get")
		seedKeys(iter, report)
		b.Cleanup(func() { deleteKeys(iter, report) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				if _, _, err := rpcStore.Get(docstore.AutoCommit, getKey(counter)); err != nil {
					report("get", err)
				}
				counter++
			}
		})
	})

	bench("range", func(b *testing.B) {
		_, iter := getKeys("range")
		seedKeys(iter, report)
		b.Cleanup(func() { deleteKeys(iter, report) })

		from, till := perfKeyPrefix+"-range", perfKeyPrefix+"-range\xff"
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				if _, err := rpcStore.Range(docstore.AutoCommit, from, till); err != nil {
					report("range", err)
				}
			}
		})
	})

	bench("search", func(b *testing.B) {
		_, iter := getKeys("search")
		seedKeys(iter, report)
		b.Cleanup(func() { deleteKeys(iter, report) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				if _, err := rpcStore.Search(docstore.AutoCommit, "benchmark content", 10); err != nil {
					report("search", err)
				}
			}
		})
	})

	bench("transaction", func(b *testing.B) {
		getKey, iter := getKeys("tx")
		b.Cleanup(func() { deleteKeys(iter, report) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				tx, err := rpcStore.Begin()
				if err != nil {
					report("transaction", err)
					continue
				}
				_, err = rpcStore.Put(tx, docstore.Doc{Key: getKey(counter), Content: "first"})
				if err == nil {
					_, err = rpcStore.Put(tx, docstore.Doc{Key: getKey(counter + 1), Content: "second"})
				}
				if err != nil {
					report("transaction", err)
					_ = rpcStore.Rollback(tx)
				} else if err := rpcStore.Commit(tx); err != nil {
					report("transaction", err)
				}
				counter += 2
			}
		})
	})

	bench("mixed", func(b *testing.B) {
		getKey, iter := getKeys("mixed")
		seedKeys(iter, report)
		b.Cleanup(func() { deleteKeys(iter, report) })

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				var err error
				switch counter % 4 {
				case 0:
					_, err = rpcStore.Put(docstore.AutoCommit, docstore.Doc{Key: getKey(counter), Content: "mixed benchmark content"})
				case 1:
					_, _, err = rpcStore.Get(docstore.AutoCommit, getKey(counter))
				case 2:
					_, err = rpcStore.Search(docstore.AutoCommit, "mixed", 10)
				case 3:
					_, err = rpcStore.History(getKey(counter))
				}
				if err != nil {
					report("mixed", err)
				}
				counter++
			}
		})
	})

	fmt.Printf("\n%d commits failed with a conflict\n", conflicts.Load())

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// seedKeys writes all keys in a single transaction
func seedKeys(iter func(func(string)), report func(string, error)) {
	tx, err := rpcStore.Begin()
	if err != nil {
		report("seed", err)
		return
	}
	iter(func(k string) {
		if _, err := rpcStore.Put(tx, docstore.Doc{Key: k, Content: "benchmark content " + k}); err != nil {
			report("seed", err)
		}
	})
	if err := rpcStore.Commit(tx); err != nil {
		report("seed", err)
	}
}

func deleteKeys(iter func(func(string)), report func(string, error)) {
	iter(func(k string) {
		if _, err := rpcStore.Delete(docstore.AutoCommit, k); err != nil {
			report("cleanup", err)
		}
	})
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Endpoints", "TimeoutSec", "RetryCount",
		"ShardID", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	tests := make([]string, 0, len(results))
	for test := range results {
		tests = append(tests, test)
	}
	sort.Strings(tests)

	for _, test := range tests {
		result := results[test]
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.RetryCount),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
