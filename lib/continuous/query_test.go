package continuous

import (
	"errors"
	"testing"
	"time"
)

// seedPeople commits alice, bob and the employee carol
func seedPeople(t *testing.T, d *Database, ts *testSchema) (alice, bob, carol *Version) {
	t.Helper()
	alice = insert(t, d, ts.person, &Person{Name: "alice", Age: 30, Tags: []string{"a", "b"}, Bio: "likes go and rust"})
	bob = insert(t, d, ts.person, &Person{Name: "bob", Age: 40, Tags: []string{"b"}, Bio: "rust only"})
	carol = insert(t, d, ts.employee, &Employee{
		Person:  Person{Name: "carol", Age: 35, Tags: []string{"c"}, Bio: "go developer"},
		Company: "acme",
	})
	return alice, bob, carol
}

func TestQueriesWithoutTransaction(t *testing.T) {
	d, ts := newTestDB(t)
	seedPeople(t, d, ts)

	tests := []struct {
		name string
		it   *Iterator
		want []string
	}{
		{"SelectIncludesSubTables", d.Select(ts.person, Current()), []string{"alice", "bob", "carol"}},
		{"SelectSubTable", d.Select(ts.employee, Current()), []string{"carol"}},
		{"FindRange", d.Find(ts.person, "age", Int64Key(30), Int64Key(35), Current()), []string{"alice", "carol"}},
		{"FindOpenRange", d.Find(ts.person, "age", Int64Key(31), nil, Current()), []string{"carol", "bob"}},
		{"FindInheritedIndex", d.Find(ts.employee, "age", nil, nil, Current()), []string{"carol"}},
		{"FindOwnIndex", d.Find(ts.employee, "company", StringKey("acme"), StringKey("acme"), Current()), []string{"carol"}},
		{"FindMultiValued", d.Find(ts.person, "tag", StringKey("b"), StringKey("b"), Current()), []string{"alice", "bob"}},
		{"FindPrefix", d.FindPrefix(ts.person, "name", StringKey("b"), Current()), []string{"bob"}},
		{"FindPrefixAll", d.FindPrefix(ts.person, "name", nil, Current()), []string{"alice", "bob", "carol"}},
		{"SearchRankedByScore", d.Search(ts.person, "GO", Current(), 0), []string{"carol", "alice"}},
		{"SearchAllTerms", d.Search(ts.person, "go rust", Current(), 0), []string{"alice"}},
		{"SearchSubTable", d.Search(ts.employee, "go", Current(), 0), []string{"carol"}},
		{"SearchLimit", d.Search(ts.person, "rust", Current(), 1), []string{"bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := names(collect(t, tt.it))
			if !equalStrings(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindOne(t *testing.T) {
	d, ts := newTestDB(t)
	alice, _, _ := seedPeople(t, d, ts)

	if v, err := d.FindOne(ts.person, "name", StringKey("alice")); err != nil || v != alice {
		t.Errorf("FindOne(alice) = %v (%v)", v, err)
	}
	if v, err := d.FindOne(ts.person, "name", StringKey("zed")); err != nil || v != nil {
		t.Errorf("FindOne(zed) = %v (%v), want nil", v, err)
	}
	if _, err := d.FindOne(ts.person, "tag", StringKey("b")); !errors.Is(err, ErrSingleton) {
		t.Errorf("Expected ErrSingleton, got %v", err)
	}
	if _, err := d.FindOne(ts.person, "missing", StringKey("b")); !errors.Is(err, ErrSchema) {
		t.Errorf("Expected ErrSchema for unknown index, got %v", err)
	}
	if it := d.Find(ts.note, "name", nil, nil, Current()); !errors.Is(it.Err(), ErrSchema) || it.Next() {
		t.Errorf("Iterator of an invalid query must fail, got %v", it.Err())
	}
}

func TestQueriesSeeWorkingCopies(t *testing.T) {
	d, ts := newTestDB(t)
	alice, bob, _ := seedPeople(t, d, ts)

	tx := mustBegin(t, d)
	defer tx.Rollback()

	w, _ := tx.Update(bob)
	w.Record().(*Person).Age = 31
	if _, err := tx.Delete(alice); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := tx.Insert(ts.person, &Person{Name: "dave", Age: 33, Bio: "rust and go"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	t.Run("Select", func(t *testing.T) {
		vs := collect(t, tx.Select(ts.person, Current()))
		if got := names(vs); !equalStrings(got, []string{"bob", "carol", "dave"}) {
			t.Fatalf("got %v", got)
		}
		if vs[0] != w {
			t.Errorf("Select must yield the working copy of bob")
		}
	})

	t.Run("Find", func(t *testing.T) {
		got := names(collect(t, tx.Find(ts.person, "age", Int64Key(30), Int64Key(35), Current())))
		if !equalStrings(got, []string{"carol", "bob", "dave"}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("FindOne", func(t *testing.T) {
		if v, err := tx.FindOne(ts.person, "name", StringKey("alice")); err != nil || v != nil {
			t.Errorf("Deleted record must be hidden, got %v (%v)", v, err)
		}
		if v, err := tx.FindOne(ts.person, "name", StringKey("dave")); err != nil || v == nil || !v.IsDraft() {
			t.Errorf("Pending insert must be found, got %v (%v)", v, err)
		}
	})

	t.Run("Search", func(t *testing.T) {
		got := names(collect(t, tx.Search(ts.person, "rust", Current(), 0)))
		if !equalStrings(got, []string{"bob", "dave"}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("AllIgnoresWorkingCopies", func(t *testing.T) {
		got := names(collect(t, tx.Select(ts.person, All())))
		if !equalStrings(got, []string{"alice", "bob", "carol"}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("OutsideUnchanged", func(t *testing.T) {
		got := names(collect(t, d.Select(ts.person, Current())))
		if !equalStrings(got, []string{"alice", "bob", "carol"}) {
			t.Errorf("got %v", got)
		}
	})
}

func TestSelectors(t *testing.T) {
	d, ts := newTestDB(t)
	v1 := insert(t, d, ts.person, &Person{Name: "r1"})
	h := v1.History()
	v2 := update(t, d, h, func(r Record) { r.(*Person).Name = "r2" })
	v3 := update(t, d, h, func(r Record) { r.(*Person).Name = "r3" })

	tx := mustBegin(t, d)
	defer tx.Rollback()

	t.Run("All", func(t *testing.T) {
		got := collect(t, tx.Select(ts.person, All()))
		if len(got) != 3 || got[0] != v1 || got[1] != v2 || got[2] != v3 {
			t.Errorf("got %v", got)
		}
	})

	t.Run("AllByIndex", func(t *testing.T) {
		got := names(collect(t, tx.Find(ts.person, "name", nil, nil, All())))
		if !equalStrings(got, []string{"r1", "r2", "r3"}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("CurrentByIndex", func(t *testing.T) {
		got := names(collect(t, tx.Find(ts.person, "name", nil, nil, Current())))
		if !equalStrings(got, []string{"r3"}) {
			t.Errorf("got %v", got)
		}
	})

	t.Run("TimeSlice", func(t *testing.T) {
		got := collect(t, tx.Select(ts.person, TimeSlice(v2.Created(), v3.Created())))
		if len(got) != 2 || got[0] != v2 || got[1] != v3 {
			t.Errorf("got %v", got)
		}
		got = collect(t, tx.Select(ts.person, TimeSlice(time.Time{}, v1.Created())))
		if len(got) != 1 || got[0] != v1 {
			t.Errorf("Open lower bound: got %v", got)
		}
		got = collect(t, tx.Select(ts.person, TimeSlice(v3.Created().Add(time.Millisecond), time.Time{})))
		if len(got) != 0 {
			t.Errorf("Slice after the last version: got %v", got)
		}
	})

	t.Run("TimeLookups", func(t *testing.T) {
		if got := h.LatestBefore(v2.Created()); got != v2 {
			t.Errorf("LatestBefore = %v, want seq 2", got)
		}
		if got := h.EarliestAfter(v2.Created().Add(time.Millisecond)); got != v3 {
			t.Errorf("EarliestAfter = %v, want seq 3", got)
		}
	})

	t.Run("DeletionMarkersHidden", func(t *testing.T) {
		del := mustBegin(t, d)
		if _, err := del.Delete(del.Current(h)); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		mustCommit(t, del)

		if got := collect(t, d.Select(ts.person, All())); len(got) != 3 {
			t.Errorf("All must yield the three record versions, got %d", len(got))
		}
		if got := collect(t, d.Select(ts.person, Current())); len(got) != 0 {
			t.Errorf("Deleted record must not be current, got %v", got)
		}
		// the running transaction still sees its snapshot
		if got := names(collect(t, tx.Select(ts.person, Current()))); !equalStrings(got, []string{"r3"}) {
			t.Errorf("Snapshot read after delete: got %v", got)
		}
	})
}

func TestIteratorResumesAcrossCommits(t *testing.T) {
	d, ts := newTestDB(t)
	seedPeople(t, d, ts)

	tx := mustBegin(t, d)
	defer tx.Rollback()

	it := tx.Select(ts.person, Current())
	if !it.Next() {
		t.Fatalf("Expected a first result: %v", it.Err())
	}
	first := it.Version()

	// commits between steps do not affect the snapshot of tx
	other := mustBegin(t, d)
	for _, v := range collect(t, other.Select(ts.person, Current())) {
		w, err := other.Update(v)
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		w.Record().(*Person).Age += 100
	}
	mustCommit(t, other)

	rest, err := it.Collect()
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	all := append([]*Version{first}, rest...)
	if got := names(all); !equalStrings(got, []string{"alice", "bob", "carol"}) {
		t.Fatalf("got %v", got)
	}
	for _, v := range all {
		if personOf(v.Record()).Age >= 100 {
			t.Errorf("Iterator yielded a version committed after the snapshot: %v", v)
		}
	}
}
