package continuous

import (
	"sync"
)

// --------------------------------------------------------------------------
// Definitions
// --------------------------------------------------------------------------

// TableID is the stable position of a table in its schema.
type TableID int

// NoTable marks a table without super table.
const NoTable TableID = -1

// IndexDef declares a secondary index.
type IndexDef struct {
	Name   string
	Unique bool
	// Key returns the index keys of a record. A record may have any number
	// of keys (including none).
	Key func(r Record) [][]byte
}

// TableDef declares a table.
type TableDef struct {
	Name string
	// Super is the name of an already registered super table. The extent of
	// a super table contains the records of all its sub tables, and sub
	// tables inherit its indices.
	Super string
	// New returns an empty record, used when loading stored versions.
	New func() Record
	// Indices are the table's own secondary indices.
	Indices []IndexDef
	// FullText returns the searchable text of a record. Inherited from the
	// nearest super table when nil.
	FullText func(r Record) string
	// Limited histories only keep versions still observable by an active
	// transaction.
	Limited bool
	// Codec defaults to JSONCodec.
	Codec Codec
}

// --------------------------------------------------------------------------
// Registered Tables
// --------------------------------------------------------------------------

// Table is a registered table.
type Table struct {
	id      TableID
	super   TableID
	schema  *Schema
	def     TableDef
	indices []*Index // own indices first, then inherited ones
	text    func(r Record) string
}

// Index is a secondary index owned by a table.
type Index struct {
	owner  *Table
	def    IndexDef
	bucket string
}

func (t *Table) ID() TableID { return t.id }
func (t *Table) Name() string { return t.def.Name }
func (t *Table) Limited() bool { return t.def.Limited }
func (t *Table) Indices() []*Index {
	return append([]*Index(nil), t.indices...)
}

// Super returns the super table or nil.
func (t *Table) Super() *Table {
	if t.super == NoTable {
		return nil
	}
	return t.schema.tables[t.super]
}

// Chain returns the table followed by all its super tables.
func (t *Table) Chain() []*Table {
	chain := []*Table{t}
	for s := t.Super(); s != nil; s = s.Super() {
		chain = append(chain, s)
	}
	return chain
}

// IsA reports whether t is other or one of its sub tables.
func (t *Table) IsA(other *Table) bool {
	for c := t; c != nil; c = c.Super() {
		if c == other {
			return true
		}
	}
	return false
}

// Index returns the own or inherited index with the given name.
func (t *Table) Index(name string) (*Index, bool) {
	for _, ix := range t.indices {
		if ix.def.Name == name {
			return ix, true
		}
	}
	return nil, false
}

// HasFullText reports whether records of the table are full-text indexed.
func (t *Table) HasFullText() bool {
	return t.text != nil
}

func (t *Table) codec() Codec {
	if t.def.Codec != nil {
		return t.def.Codec
	}
	return JSONCodec{}
}

func (t *Table) extentBucket() string {
	return "extent/" + t.def.Name
}

func (ix *Index) Name() string { return ix.def.Name }
func (ix *Index) Unique() bool { return ix.def.Unique }
func (ix *Index) Owner() *Table { return ix.owner }

// keys returns the index keys of r, nil entries are dropped.
func (ix *Index) keys(r Record) [][]byte {
	if ix.def.Key == nil {
		return nil
	}
	keys := ix.def.Key(r)
	out := keys[:0:0]
	for _, k := range keys {
		if k != nil {
			out = append(out, k)
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Schema
// --------------------------------------------------------------------------

// Schema is an arena of tables indexed by TableID. Tables are registered
// once, super tables before their sub tables.
//
// Thread-safety: registration and lookups may run concurrently. A schema
// must not change after it has been passed to Open.
type Schema struct {
	mu     sync.RWMutex
	tables []*Table
	byName map[string]TableID
}

// NewSchema creates an empty schema
func NewSchema() *Schema {
	return &Schema{
		byName: make(map[string]TableID),
	}
}

// Register adds a table.
func (s *Schema) Register(def TableDef) (*Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if def.Name == "" {
		return nil, newErrorf(ErrCSchema, "table name must not be empty")
	}
	if def.New == nil {
		return nil, newErrorf(ErrCSchema, "table %q: New must be set", def.Name)
	}
	if _, exists := s.byName[def.Name]; exists {
		return nil, newErrorf(ErrCSchema, "table %q already registered", def.Name)
	}

	t := &Table{
		id:     TableID(len(s.tables)),
		super:  NoTable,
		schema: s,
		def:    def,
	}

	var inherited []*Index
	if def.Super != "" {
		superID, ok := s.byName[def.Super]
		if !ok {
			return nil, newErrorf(ErrCSchema, "table %q: unknown super table %q", def.Name, def.Super)
		}
		super := s.tables[superID]
		t.super = superID
		inherited = super.indices
		if def.FullText == nil {
			t.text = super.text
		}
	}
	if def.FullText != nil {
		t.text = def.FullText
	}

	seen := make(map[string]struct{})
	for _, ix := range inherited {
		seen[ix.def.Name] = struct{}{}
	}
	for _, idef := range def.Indices {
		if idef.Name == "" || idef.Key == nil {
			return nil, newErrorf(ErrCSchema, "table %q: index needs a name and a key function", def.Name)
		}
		if _, dup := seen[idef.Name]; dup {
			return nil, newErrorf(ErrCSchema, "table %q: duplicate index %q", def.Name, idef.Name)
		}
		seen[idef.Name] = struct{}{}
		t.indices = append(t.indices, &Index{
			owner:  t,
			def:    idef,
			bucket: "index/" + def.Name + "/" + idef.Name,
		})
	}
	t.indices = append(t.indices, inherited...)

	s.tables = append(s.tables, t)
	s.byName[def.Name] = t.id
	return t, nil
}

// MustRegister is like Register but panics on error.
func (s *Schema) MustRegister(def TableDef) *Table {
	t, err := s.Register(def)
	if err != nil {
		panic(err)
	}
	return t
}

// Table returns the table with the given name.
func (s *Schema) Table(name string) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return nil, false
	}
	return s.tables[id], true
}

// Tables returns all tables in registration order.
func (s *Schema) Tables() []*Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Table(nil), s.tables...)
}
