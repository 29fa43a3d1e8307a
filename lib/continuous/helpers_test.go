package continuous

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/cKV/lib/db"
	"github.com/ValentinKolb/cKV/lib/db/engines/maple"
)

// --------------------------------------------------------------------------
// Test Records
// --------------------------------------------------------------------------

type Person struct {
	Base
	Name string   `json:"name"`
	Age  int64    `json:"age"`
	Tags []string `json:"tags"`
	Bio  string   `json:"bio"`
}

func (p *Person) Snapshot() Record {
	c := *p
	c.Tags = append([]string(nil), p.Tags...)
	return &c
}

type Employee struct {
	Person
	Company string `json:"company"`
}

func (e *Employee) Snapshot() Record {
	c := *e
	c.Tags = append([]string(nil), e.Tags...)
	return &c
}

type Note struct {
	Base
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (n *Note) Snapshot() Record {
	c := *n
	return &c
}

func personOf(r Record) *Person {
	switch p := r.(type) {
	case *Person:
		return p
	case *Employee:
		return &p.Person
	}
	return nil
}

type testSchema struct {
	schema   *Schema
	person   *Table
	employee *Table
	note     *Table
}

func newTestSchema() *testSchema {
	s := NewSchema()
	ts := &testSchema{schema: s}

	ts.person = s.MustRegister(TableDef{
		Name: "person",
		New:  func() Record { return &Person{} },
		Indices: []IndexDef{
			{
				Name:   "name",
				Unique: true,
				Key: func(r Record) [][]byte {
					return Keys(StringKey(personOf(r).Name))
				},
			},
			{
				Name: "age",
				Key: func(r Record) [][]byte {
					return Keys(Int64Key(personOf(r).Age))
				},
			},
			{
				Name: "tag",
				Key: func(r Record) [][]byte {
					var keys [][]byte
					for _, t := range personOf(r).Tags {
						keys = append(keys, StringKey(t))
					}
					return keys
				},
			},
		},
		FullText: func(r Record) string { return personOf(r).Bio },
	})

	ts.employee = s.MustRegister(TableDef{
		Name:  "employee",
		Super: "person",
		New:   func() Record { return &Employee{} },
		Indices: []IndexDef{{
			Name: "company",
			Key: func(r Record) [][]byte {
				return Keys(StringKey(r.(*Employee).Company))
			},
		}},
	})

	ts.note = s.MustRegister(TableDef{
		Name:     "note",
		New:      func() Record { return &Note{} },
		Limited:  true,
		FullText: func(r Record) string { return r.(*Note).Body },
	})
	return ts
}

// --------------------------------------------------------------------------
// Clock and Engine Wrappers
// --------------------------------------------------------------------------

// testClock advances one second per call
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

var errInjected = errors.New("injected engine failure")

// faultyEngine counts writable transactions and can fail commits.
type faultyEngine struct {
	db.ObjectDB
	writable   atomic.Int32
	failCommit atomic.Bool
}

func (f *faultyEngine) Begin(writable bool) (db.Tx, error) {
	tx, err := f.ObjectDB.Begin(writable)
	if err != nil {
		return nil, err
	}
	if writable {
		f.writable.Add(1)
	}
	return &faultyTx{Tx: tx, engine: f}, nil
}

type faultyTx struct {
	db.Tx
	engine *faultyEngine
}

func (t *faultyTx) Commit() error {
	if t.engine.failCommit.Load() {
		_ = t.Tx.Rollback()
		return errInjected
	}
	return t.Tx.Commit()
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func openTestDB(t testing.TB, engine db.ObjectDB, ts *testSchema) *Database {
	t.Helper()
	opts := DefaultOptions()
	opts.Clock = newTestClock().Now
	d, err := Open(engine, ts.schema, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return d
}

func newTestDB(t testing.TB) (*Database, *testSchema) {
	t.Helper()
	ts := newTestSchema()
	d := openTestDB(t, maple.NewMapleDB(nil), ts)
	t.Cleanup(func() { _ = d.Close() })
	return d, ts
}

func mustBegin(t testing.TB, d *Database) *Tx {
	t.Helper()
	tx, err := d.Begin()
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	return tx
}

func mustCommit(t testing.TB, tx *Tx) {
	t.Helper()
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
}

// insert commits a single record and returns its version
func insert(t testing.TB, d *Database, table *Table, r Record) *Version {
	t.Helper()
	tx := mustBegin(t, d)
	v, err := tx.Insert(table, r)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	mustCommit(t, tx)
	return v
}

// update commits a change of the current version of h
func update(t testing.TB, d *Database, h *VersionHistory, fn func(r Record)) *Version {
	t.Helper()
	tx := mustBegin(t, d)
	v, err := tx.UpdateHistory(h)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	fn(v.Record())
	mustCommit(t, tx)
	return v
}

func collect(t testing.TB, it *Iterator) []*Version {
	t.Helper()
	out, err := it.Collect()
	if err != nil {
		t.Fatalf("Iteration failed: %v", err)
	}
	return out
}

func names(vs []*Version) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		switch r := v.Record().(type) {
		case *Note:
			out = append(out, r.Title)
		default:
			out = append(out, personOf(r).Name)
		}
	}
	return out
}

func equalStrings(a, b []string) bool {
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
