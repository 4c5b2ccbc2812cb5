package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/quill/internal/schema"
	"github.com/roach88/quill/internal/value"
)

// Record is one materialized row of a relation, plus any eager-loaded
// related records. Records are built by the engine and read-only after.
type Record struct {
	relation string
	fields   map[string]value.Value
	one      map[string]*Record
	many     map[string][]*Record
}

// newRecord hydrates a raw storage row into a Record, converting each
// driver value through the relation's declared field kinds. Columns the
// relation doesn't declare are ignored (join machinery adds synthetic
// ones).
func newRecord(rel *schema.Relation, row map[string]any) (*Record, error) {
	fields := make(map[string]value.Value, len(rel.Fields()))
	for _, f := range rel.Fields() {
		raw, ok := row[f.Name]
		if !ok {
			return nil, fmt.Errorf("relation %s: storage row missing column %s", rel.Name(), f.Name)
		}
		v, err := value.FromDriver(raw, f.Kind)
		if err != nil {
			return nil, fmt.Errorf("relation %s field %s: %w", rel.Name(), f.Name, err)
		}
		fields[f.Name] = v
	}
	return &Record{relation: rel.Name(), fields: fields}, nil
}

// Relation returns the name of the relation this record belongs to.
func (r *Record) Relation() string {
	return r.relation
}

// Get returns the value of a field. The second return is false when the
// record has no such field.
func (r *Record) Get(field string) (value.Value, bool) {
	v, ok := r.fields[field]
	return v, ok
}

// One returns an eager-loaded to-one related record. The record is nil
// when the foreign key was null; ok is false when the relationship was
// never loaded.
func (r *Record) One(relationship string) (rec *Record, ok bool) {
	rec, ok = r.one[relationship]
	return rec, ok
}

// Many returns the eager-loaded records of a to-many or many-to-many
// relationship. The slice is empty (not nil-ok=false) for a loaded
// relationship with no children; ok is false when the relationship was
// never loaded.
func (r *Record) Many(relationship string) (recs []*Record, ok bool) {
	recs, ok = r.many[relationship]
	return recs, ok
}

// Fields returns the record's field names in sorted order.
func (r *Record) Fields() []string {
	out := make([]string, 0, len(r.fields))
	for name := range r.fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// String renders the record compactly for logs and CLI output.
func (r *Record) String() string {
	var b strings.Builder
	b.WriteString(r.relation)
	b.WriteString("{")
	for i, name := range r.Fields() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(value.Format(r.fields[name]))
	}
	b.WriteString("}")
	return b.String()
}

// OneNames returns the loaded to-one relationship names in sorted order.
func (r *Record) OneNames() []string {
	out := make([]string, 0, len(r.one))
	for name := range r.one {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ManyNames returns the loaded to-many and many-to-many relationship
// names in sorted order.
func (r *Record) ManyNames() []string {
	out := make([]string, 0, len(r.many))
	for name := range r.many {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Record) setOne(name string, rec *Record) {
	if r.one == nil {
		r.one = make(map[string]*Record)
	}
	r.one[name] = rec
}

func (r *Record) setMany(name string, recs []*Record) {
	if r.many == nil {
		r.many = make(map[string][]*Record)
	}
	if recs == nil {
		recs = []*Record{}
	}
	r.many[name] = recs
}
