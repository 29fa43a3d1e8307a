package docstore

import (
	"github.com/ValentinKolb/cKV/lib/continuous"
)

const (
	tableDocument = "document"
	indexKey      = "key"
	indexTag      = "tag"
)

// document is the stored record of a Doc.
type document struct {
	continuous.Base
	Key     string   `json:"key"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

func (d *document) Snapshot() continuous.Record {
	c := *d
	c.Tags = append([]string(nil), d.Tags...)
	return &c
}

// NewSchema returns the schema of a document store.
func NewSchema() *continuous.Schema {
	s := continuous.NewSchema()
	s.MustRegister(continuous.TableDef{
		Name: tableDocument,
		New:  func() continuous.Record { return &document{} },
		Indices: []continuous.IndexDef{
			{
				Name:   indexKey,
				Unique: true,
				Key: func(r continuous.Record) [][]byte {
					return continuous.Keys(continuous.StringKey(r.(*document).Key))
				},
			},
			{
				Name: indexTag,
				Key: func(r continuous.Record) [][]byte {
					tags := r.(*document).Tags
					keys := make([][]byte, 0, len(tags))
					for _, t := range tags {
						keys = append(keys, continuous.StringKey(t))
					}
					return keys
				},
			},
		},
		FullText: func(r continuous.Record) string { return r.(*document).Content },
	})
	return s
}

// toDoc converts a version of a document record.
func toDoc(v *continuous.Version) Doc {
	r := v.Record().(*document)
	return Doc{
		Key:     r.Key,
		Content: r.Content,
		Tags:    append([]string(nil), r.Tags...),
		OID:     v.OID(),
		Seq:     v.Seq(),
		TransID: v.TransID(),
		Created: v.Created(),
		Draft:   v.IsDraft(),
		Deleted: v.IsDeleted(),
	}
}

func toDocs(vs []*continuous.Version) []Doc {
	out := make([]Doc, 0, len(vs))
	for _, v := range vs {
		out = append(out, toDoc(v))
	}
	return out
}
