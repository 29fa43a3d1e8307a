package continuous

import (
	"github.com/ValentinKolb/cKV/lib/db/util"
	"github.com/goccy/go-json"
)

// --------------------------------------------------------------------------
// Records
// --------------------------------------------------------------------------

// Record is an object stored in a version history.
//
// Implementations embed Base and supply Snapshot, which is called to create
// a working copy. Snapshot must deep-copy container fields (slices, maps,
// pointers to mutable structs) while scalar and immutable fields may be
// shared:
//
//	type Person struct {
//		continuous.Base
//		Name string
//		Tags []string
//	}
//
//	func (p *Person) Snapshot() continuous.Record {
//		c := *p
//		c.Tags = append([]string(nil), p.Tags...)
//		return &c
//	}
type Record interface {
	Snapshot() Record
	base() *Base
}

// Base links a record to the version that holds it. The zero value belongs
// to no version.
type Base struct {
	version *Version
}

func (b *Base) base() *Base { return b }

// Version returns the version holding the record or nil for a record that
// was never inserted.
func (b *Base) Version() *Version { return b.version }

// --------------------------------------------------------------------------
// Codec
// --------------------------------------------------------------------------

// Codec converts records to and from their stored representation.
type Codec interface {
	Marshal(r Record) ([]byte, error)
	Unmarshal(data []byte, r Record) error
}

// JSONCodec stores records as JSON. Unexported fields (including Base) are
// not stored.
type JSONCodec struct{}

func (JSONCodec) Marshal(r Record) ([]byte, error) {
	return json.Marshal(r)
}

func (JSONCodec) Unmarshal(data []byte, r Record) error {
	return json.Unmarshal(data, r)
}

// --------------------------------------------------------------------------
// Index Keys
// --------------------------------------------------------------------------

// StringKey returns the index key of a string.
func StringKey(s string) []byte {
	return []byte(s)
}

// Int64Key returns an index key that orders like the integer.
func Int64Key(v int64) []byte {
	return util.EncodeInt64(v)
}

// Uint64Key returns an index key that orders like the integer.
func Uint64Key(v uint64) []byte {
	return util.EncodeUint64(v)
}

// Keys is shorthand for building the result of an IndexDef.Key function.
func Keys(keys ...[]byte) [][]byte {
	return keys
}
