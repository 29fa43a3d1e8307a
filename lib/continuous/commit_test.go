package continuous

import (
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/cKV/lib/db/engines/maple"
	"github.com/ValentinKolb/cKV/lib/db/util"
	"golang.org/x/sync/errgroup"
)

func TestScenarioUpdateAfterInsert(t *testing.T) {
	d, ts := newTestDB(t)

	// A inserts R
	a := mustBegin(t, d)
	if a.Snapshot() != 0 {
		t.Fatalf("Expected empty snapshot, got %d", a.Snapshot())
	}
	r, err := a.Insert(ts.person, &Person{Name: "R"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	mustCommit(t, a)
	t1 := d.LastTransID()
	if r.Seq() != 1 || r.TransID() != t1 {
		t.Fatalf("Expected seq 1 at transaction %d, got %v", t1, r)
	}
	h := r.History()

	// C keeps the snapshot T1, B updates R
	c := mustBegin(t, d)
	defer c.Rollback()
	b := mustBegin(t, d)
	w, err := b.Update(r)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	w.Record().(*Person).Age = 42
	mustCommit(t, b)
	t2 := d.LastTransID()

	versions := h.Versions()
	if len(versions) != 2 || versions[0].TransID() != t1 || versions[1].Seq() != 2 || versions[1].TransID() != t2 {
		t.Fatalf("Unexpected history %v", versions)
	}
	if got := h.GetCurrentAt(t1); got != r {
		t.Errorf("GetCurrentAt(T1) = %v, want seq 1", got)
	}
	if got := c.Current(h); got != r || got.Record().(*Person).Age != 0 {
		t.Errorf("Transaction with snapshot T1 must observe seq 1, got %v", got)
	}
}

func TestScenarioConflict(t *testing.T) {
	d, ts := newTestDB(t)
	r := insert(t, d, ts.person, &Person{Name: "R"})
	h := r.History()
	update(t, d, h, func(r Record) { r.(*Person).Age = 1 })
	t2 := d.LastTransID()

	txD := mustBegin(t, d)
	txE := mustBegin(t, d)
	if txD.Snapshot() != t2 || txE.Snapshot() != t2 {
		t.Fatalf("Both transactions must start at T2")
	}
	wd, _ := txD.UpdateHistory(h)
	we, _ := txE.UpdateHistory(h)
	if wd.Predecessor().Seq() != 2 || we.Predecessor().Seq() != 2 {
		t.Fatalf("Working copies must derive from seq 2")
	}

	mustCommit(t, txD)
	if latest := h.Latest(); latest.Seq() != 3 || latest.TransID() != t2+1 {
		t.Fatalf("Expected seq 3 at T3, got %v", latest)
	}

	err := txE.Commit()
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Expected ErrConflict, got %v", err)
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Version != h.Latest() {
		t.Errorf("Conflict must carry the offending version")
	}
	if txE.State() != TxAborted || txE.Active() {
		t.Errorf("Failed commit must abort the transaction, got %s", txE.State())
	}
	if h.Len() != 3 || d.LastTransID() != t2+1 {
		t.Errorf("Conflicting commit must not change state")
	}
	if d.Info().ActiveTransactions != 0 {
		t.Errorf("Aborted transaction must leave the active set")
	}
}

func TestAtMostOneWriter(t *testing.T) {
	d, ts := newTestDB(t)
	h := insert(t, d, ts.person, &Person{Name: "R"}).History()

	const n = 8
	txs := make([]*Tx, n)
	for i := range txs {
		txs[i] = mustBegin(t, d)
		w, err := txs[i].UpdateHistory(h)
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		w.Record().(*Person).Age = int64(i)
	}

	var ok, conflicts atomic.Int32
	var g errgroup.Group
	start := make(chan struct{})
	for _, tx := range txs {
		g.Go(func() error {
			<-start
			err := tx.Commit()
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	close(start)
	if err := g.Wait(); err != nil {
		t.Fatalf("Unexpected commit error: %v", err)
	}

	if ok.Load() != 1 || conflicts.Load() != n-1 {
		t.Errorf("Expected 1 success and %d conflicts, got %d/%d", n-1, ok.Load(), conflicts.Load())
	}
	if h.Len() != 2 {
		t.Errorf("Expected 2 versions, got %d", h.Len())
	}
}

func TestConcurrentDisjointCommits(t *testing.T) {
	d, ts := newTestDB(t)

	const workers, perWorker = 6, 20
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				tx, err := d.Begin()
				if err != nil {
					return err
				}
				if _, err := tx.Insert(ts.person, &Person{Name: fmt.Sprintf("w%d-%d", w, i)}); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Concurrent commit failed: %v", err)
	}

	if got := d.LastTransID(); got != workers*perWorker {
		t.Errorf("Expected %d transactions, got %d", workers*perWorker, got)
	}
	if vs := collect(t, d.Select(ts.person, Current())); len(vs) != workers*perWorker {
		t.Errorf("Expected %d records, got %d", workers*perWorker, len(vs))
	}
}

func TestReadOnlyCommit(t *testing.T) {
	engine := &faultyEngine{ObjectDB: maple.NewMapleDB(nil)}
	ts := newTestSchema()
	d := openTestDB(t, engine, ts)
	defer d.Close()

	h := insert(t, d, ts.person, &Person{Name: "R"}).History()
	last := d.LastTransID()
	writes := engine.writable.Load()

	tx := mustBegin(t, d)
	_ = tx.Current(h)
	_ = collect(t, tx.Select(ts.person, Current()))
	if err := tx.Commit(); err != nil {
		t.Fatalf("Read-only commit failed: %v", err)
	}

	if tx.State() != TxCommitted {
		t.Errorf("Expected committed state, got %s", tx.State())
	}
	if d.LastTransID() != last {
		t.Errorf("Read-only commit allocated a transaction id")
	}
	if engine.writable.Load() != writes {
		t.Errorf("Read-only commit opened a writable engine transaction")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	d, ts := newTestDB(t)
	r := insert(t, d, ts.person, &Person{Name: "R", Bio: "first text"})
	h := r.History()

	reader := mustBegin(t, d)
	defer reader.Rollback()

	// commit a rename and a new record while reader runs
	update(t, d, h, func(r Record) {
		p := r.(*Person)
		p.Name = "R2"
		p.Bio = "second text"
	})
	insert(t, d, ts.person, &Person{Name: "S"})

	if got := reader.Current(h); got != r {
		t.Errorf("Current = %v, want the version of the snapshot", got)
	}
	if got := names(collect(t, reader.Select(ts.person, Current()))); !equalStrings(got, []string{"R"}) {
		t.Errorf("Select = %v, want [R]", got)
	}
	if v, err := reader.FindOne(ts.person, "name", StringKey("R2")); err != nil || v != nil {
		t.Errorf("FindOne(R2) = %v (%v), want nil", v, err)
	}
	if v, err := reader.FindOne(ts.person, "name", StringKey("R")); err != nil || v != r {
		t.Errorf("FindOne(R) = %v (%v), want seq 1", v, err)
	}
	if got := collect(t, reader.Search(ts.person, "second", Current(), 0)); len(got) != 0 {
		t.Errorf("Search must not see later commits, got %v", got)
	}
	if got := collect(t, reader.Search(ts.person, "first", Current(), 0)); len(got) != 1 || got[0] != r {
		t.Errorf("Search(first) = %v, want seq 1", got)
	}
	if got := collect(t, reader.Select(ts.person, All())); len(got) != 1 {
		t.Errorf("All must stop at the snapshot, got %d versions", len(got))
	}
}

func TestMonotonicHistory(t *testing.T) {
	d, ts := newTestDB(t)
	rnd := rand.New(rand.NewSource(7))

	var histories []*VersionHistory
	for i := 0; i < 5; i++ {
		histories = append(histories, insert(t, d, ts.person, &Person{Name: fmt.Sprintf("p%d", i)}).History())
	}
	for round := 0; round < 40; round++ {
		tx := mustBegin(t, d)
		for _, h := range histories {
			if rnd.Intn(3) == 0 {
				w, err := tx.UpdateHistory(h)
				if err != nil {
					t.Fatalf("Update failed: %v", err)
				}
				w.Record().(*Person).Age++
			}
		}
		mustCommit(t, tx)
	}

	for _, h := range histories {
		vs := h.Versions()
		if vs[0].Seq() != 1 {
			t.Errorf("History %d must start at seq 1", h.OID())
		}
		for i := 1; i < len(vs); i++ {
			if vs[i].Seq() != vs[i-1].Seq()+1 {
				t.Errorf("History %d: seq %d follows %d", h.OID(), vs[i].Seq(), vs[i-1].Seq())
			}
			if vs[i].TransID() < vs[i-1].TransID() {
				t.Errorf("History %d: transaction id decreased", h.OID())
			}
			if vs[i].Created().Before(vs[i-1].Created()) {
				t.Errorf("History %d: timestamp decreased", h.OID())
			}
			if vs[i].Record().(*Person).Age != vs[i-1].Record().(*Person).Age+1 {
				t.Errorf("History %d: lost update", h.OID())
			}
		}
	}
}

func TestUniqueness(t *testing.T) {
	d, ts := newTestDB(t)
	alice := insert(t, d, ts.person, &Person{Name: "alice"})

	t.Run("AgainstCommitted", func(t *testing.T) {
		tx := mustBegin(t, d)
		_, _ = tx.Insert(ts.person, &Person{Name: "alice"})
		if err := tx.Commit(); !errors.Is(err, ErrNotUnique) {
			t.Fatalf("Expected ErrNotUnique, got %v", err)
		}
	})

	t.Run("WithinTransaction", func(t *testing.T) {
		tx := mustBegin(t, d)
		_, _ = tx.Insert(ts.person, &Person{Name: "bob"})
		_, _ = tx.Insert(ts.person, &Person{Name: "bob"})
		if err := tx.Commit(); !errors.Is(err, ErrNotUnique) {
			t.Fatalf("Expected ErrNotUnique, got %v", err)
		}
	})

	t.Run("SubTableSharesSuperIndex", func(t *testing.T) {
		tx := mustBegin(t, d)
		_, _ = tx.Insert(ts.employee, &Employee{Person: Person{Name: "alice"}})
		if err := tx.Commit(); !errors.Is(err, ErrNotUnique) {
			t.Fatalf("Expected ErrNotUnique, got %v", err)
		}
	})

	t.Run("ConcurrentInserts", func(t *testing.T) {
		t1 := mustBegin(t, d)
		t2 := mustBegin(t, d)
		_, _ = t1.Insert(ts.person, &Person{Name: "carol"})
		_, _ = t2.Insert(ts.person, &Person{Name: "carol"})
		mustCommit(t, t1)
		if err := t2.Commit(); !errors.Is(err, ErrNotUnique) {
			t.Fatalf("Expected ErrNotUnique, got %v", err)
		}
	})

	t.Run("UpdateKeepsOwnKey", func(t *testing.T) {
		update(t, d, alice.History(), func(r Record) { r.(*Person).Age = 30 })
	})

	t.Run("RenameFreesKey", func(t *testing.T) {
		tx := mustBegin(t, d)
		w, _ := tx.UpdateHistory(alice.History())
		w.Record().(*Person).Name = "alice2"
		_, _ = tx.Insert(ts.person, &Person{Name: "alice"})
		mustCommit(t, tx)
	})

	t.Run("DeleteFreesKey", func(t *testing.T) {
		tx := mustBegin(t, d)
		if _, err := tx.Delete(tx.Current(alice.History())); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		mustCommit(t, tx)
		insert(t, d, ts.person, &Person{Name: "alice2"})
	})

	if n := d.Info().ActiveTransactions; n != 0 {
		t.Errorf("Expected no active transactions, got %d", n)
	}
}

func TestPruningSafety(t *testing.T) {
	d, ts := newTestDB(t)
	setBody := func(body string) func(r Record) {
		return func(r Record) { r.(*Note).Body = body }
	}

	v1 := insert(t, d, ts.note, &Note{Title: "n", Body: "alpha"})
	h := v1.History()
	if !h.Limited() {
		t.Fatalf("Note histories must be limited")
	}

	// old keeps snapshot T1 alive
	old := mustBegin(t, d)
	update(t, d, h, setBody("beta"))
	update(t, d, h, setBody("gamma"))
	if h.Len() != 3 {
		t.Fatalf("Versions observable by a running transaction must be kept, got %d", h.Len())
	}
	if got := old.Current(h); got != v1 || got.Record().(*Note).Body != "alpha" {
		t.Fatalf("Old snapshot must still read seq 1, got %v", got)
	}
	if got := collect(t, old.Search(ts.note, "alpha", Current(), 0)); len(got) != 1 {
		t.Errorf("Old snapshot must still find seq 1, got %v", got)
	}
	if err := old.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	// mid keeps snapshot T3 alive
	mid := mustBegin(t, d)
	update(t, d, h, setBody("delta"))
	if h.Len() != 2 || h.Versions()[0].Seq() != 3 {
		t.Fatalf("Expected seq 3 and 4 to remain, got %v", h.Versions())
	}
	if got := mid.Current(h); got == nil || got.Seq() != 3 {
		t.Fatalf("Mid snapshot must read seq 3, got %v", got)
	}
	if h.Version(1) != nil || h.Version(2) != nil {
		t.Errorf("Pruned versions must be gone")
	}
	_ = mid.Rollback()

	update(t, d, h, setBody("epsilon"))
	if h.Len() != 1 || h.Latest().Seq() != 5 {
		t.Fatalf("Without running transactions only the latest version remains, got %v", h.Versions())
	}

	// pruned versions leave the engine and the full-text index
	etx, err := d.engine.Begin(false)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer etx.Rollback()
	for seq := uint32(1); seq <= 4; seq++ {
		if _, ok, _ := etx.Get(bucketVersions, util.VersionKey(h.OID(), seq)); ok {
			t.Errorf("Version %d still stored", seq)
		}
	}
	if got := collect(t, d.Search(ts.note, "alpha", All(), 0)); len(got) != 0 {
		t.Errorf("Pruned version still searchable: %v", got)
	}
	if got := collect(t, d.Search(ts.note, "epsilon", Current(), 0)); len(got) != 1 {
		t.Errorf("Latest version must be searchable, got %v", got)
	}

	// unlimited histories keep everything
	p := insert(t, d, ts.person, &Person{Name: "p"}).History()
	update(t, d, p, func(r Record) { r.(*Person).Age = 1 })
	update(t, d, p, func(r Record) { r.(*Person).Age = 2 })
	if p.Len() != 3 {
		t.Errorf("Unlimited history lost versions: %d", p.Len())
	}
}

func TestCommitFailureAborts(t *testing.T) {
	engine := &faultyEngine{ObjectDB: maple.NewMapleDB(nil)}
	ts := newTestSchema()
	d := openTestDB(t, engine, ts)
	defer d.Close()

	v := insert(t, d, ts.person, &Person{Name: "R", Bio: "stable"})
	h := v.History()
	last := d.LastTransID()

	tx := mustBegin(t, d)
	w, _ := tx.Update(v)
	w.Record().(*Person).Bio = "broken"
	engine.failCommit.Store(true)

	err := tx.Commit()
	if !errors.Is(err, ErrFatal) || !errors.Is(err, errInjected) {
		t.Fatalf("Expected fatal error wrapping the engine error, got %v", err)
	}
	if tx.State() != TxAborted {
		t.Errorf("Expected aborted state, got %s", tx.State())
	}
	if h.Len() != 1 || d.LastTransID() != last || w.IsDraft() != true {
		t.Errorf("Failed commit must not change in-memory state")
	}
	if got := collect(t, d.Search(ts.person, "broken", All(), 0)); len(got) != 0 {
		t.Errorf("Failed commit leaked into the full-text index")
	}

	engine.failCommit.Store(false)
	v2 := update(t, d, h, func(r Record) { r.(*Person).Bio = "fixed" })
	if v2.Seq() != 2 || v2.TransID() != last+1 {
		t.Errorf("Expected seq 2 at %d after recovery, got %v", last+1, v2)
	}
}

func TestClosedDatabase(t *testing.T) {
	ts := newTestSchema()
	d := openTestDB(t, maple.NewMapleDB(nil), ts)
	tx := mustBegin(t, d)
	_, _ = tx.Insert(ts.person, &Person{Name: "x"})

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, ErrFatal) {
		t.Errorf("Commit after Close must fail, got %v", err)
	}
	if _, err := d.Begin(); !errors.Is(err, ErrFatal) {
		t.Errorf("Begin after Close must fail, got %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Second Close must be a no-op, got %v", err)
	}
}
