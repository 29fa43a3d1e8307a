package continuous

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// dbMetrics groups the counters of one database.
type dbMetrics struct {
	set         *metrics.Set
	commits     *metrics.Counter
	readOnly    *metrics.Counter
	conflicts   *metrics.Counter
	notUnique   *metrics.Counter
	rollbacks   *metrics.Counter
	pruned      *metrics.Counter
	commitTimer gometrics.Timer
}

func newDBMetrics(set *metrics.Set, name string, d *Database) *dbMetrics {
	if set == nil {
		set = metrics.NewSet()
	}
	metric := func(base string) string {
		return fmt.Sprintf("%s{db=%q}", base, name)
	}

	m := &dbMetrics{
		set:         set,
		commits:     set.NewCounter(metric("ckv_commits_total")),
		readOnly:    set.NewCounter(metric("ckv_readonly_commits_total")),
		conflicts:   set.NewCounter(metric("ckv_conflicts_total")),
		notUnique:   set.NewCounter(metric("ckv_not_unique_total")),
		rollbacks:   set.NewCounter(metric("ckv_rollbacks_total")),
		pruned:      set.NewCounter(metric("ckv_pruned_versions_total")),
		commitTimer: gometrics.NewTimer(),
	}
	set.NewGauge(metric("ckv_active_transactions"), func() float64 {
		return float64(d.activeCount())
	})
	set.NewGauge(metric("ckv_histories"), func() float64 {
		return float64(d.histories.Size())
	})
	set.NewGauge(metric("ckv_last_transaction_id"), func() float64 {
		return float64(d.transID.Load())
	})
	return m
}

// CommitStats summarizes the latency of the commit critical section.
type CommitStats struct {
	Count  int64   `json:"count"`
	MeanMs float64 `json:"mean_ms"`
	P99Ms  float64 `json:"p99_ms"`
	MaxMs  float64 `json:"max_ms"`
}

func (m *dbMetrics) commitStats() CommitStats {
	snap := m.commitTimer.Snapshot()
	const ms = 1e6
	return CommitStats{
		Count:  snap.Count(),
		MeanMs: snap.Mean() / ms,
		P99Ms:  snap.Percentile(0.99) / ms,
		MaxMs:  float64(snap.Max()) / ms,
	}
}
