package schema

import (
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/quill/internal/value"
)

// Cardinality describes how many related records a relationship yields.
type Cardinality string

const (
	// ToOne links each source record to at most one target record
	// via a foreign key column on the source relation.
	ToOne Cardinality = "to-one"

	// ToMany links each source record to zero or more target records
	// via a foreign key column on the target relation.
	ToMany Cardinality = "to-many"

	// ManyToMany links records through a join table carrying a foreign
	// key to each side.
	ManyToMany Cardinality = "many-to-many"
)

// Strategy identifies how related records are fetched during eager-loading.
type Strategy string

const (
	// StrategyJoined fetches parent and child in a single joined query.
	// Legal only for to-one relationships - joining a to-many relationship
	// would duplicate parent rows.
	StrategyJoined Strategy = "joined"

	// StrategyBatched fetches children with one additional query filtered
	// to the collected parent identifiers, then merges in memory.
	// Legal for every cardinality.
	StrategyBatched Strategy = "batched"
)

// DefaultStrategy returns the loading strategy used when the caller does
// not force one: joined for to-one, batched otherwise.
func (c Cardinality) DefaultStrategy() Strategy {
	if c == ToOne {
		return StrategyJoined
	}
	return StrategyBatched
}

// Allows reports whether a strategy is legal for this cardinality.
func (c Cardinality) Allows(s Strategy) bool {
	if s == StrategyJoined {
		return c == ToOne
	}
	return true
}

// Field describes one typed column of a Relation.
type Field struct {
	Name     string
	Kind     value.Kind
	Nullable bool
}

// Relationship declares a named link from one Relation to another.
//
// Foreign key placement depends on cardinality:
//   - ToOne: ForeignKey is a column on the source relation referencing
//     the target's primary key.
//   - ToMany: ForeignKey is a column on the target relation referencing
//     the source's primary key.
//   - ManyToMany: JoinTable carries SourceKey and TargetKey columns
//     referencing the two primary keys; ForeignKey is unused.
type Relationship struct {
	Name        string
	Cardinality Cardinality
	Target      string

	ForeignKey string

	JoinTable string
	SourceKey string
	TargetKey string
}

// Relation is a named source of uniform records. Immutable once registered:
// built at process start from the schema and never mutated at runtime.
type Relation struct {
	name       string
	table      string
	primaryKey string

	fields     map[string]Field
	fieldOrder []string

	relationships map[string]Relationship
}

// NewRelation builds a Relation from its declared fields and relationships.
// Field and relationship names are NFC-normalized so that lookups are not
// sensitive to Unicode composition differences in schema files.
func NewRelation(name, table, primaryKey string, fields []Field, relationships []Relationship) (*Relation, error) {
	if name == "" {
		return nil, fmt.Errorf("relation name must not be empty")
	}
	if table == "" {
		return nil, fmt.Errorf("relation %q: table must not be empty", name)
	}

	r := &Relation{
		name:          norm.NFC.String(name),
		table:         table,
		primaryKey:    norm.NFC.String(primaryKey),
		fields:        make(map[string]Field, len(fields)),
		fieldOrder:    make([]string, 0, len(fields)),
		relationships: make(map[string]Relationship, len(relationships)),
	}

	for _, f := range fields {
		f.Name = norm.NFC.String(f.Name)
		if f.Name == "" {
			return nil, fmt.Errorf("relation %q: field name must not be empty", name)
		}
		if _, dup := r.fields[f.Name]; dup {
			return nil, fmt.Errorf("relation %q: duplicate field %q", name, f.Name)
		}
		if f.Kind == "" || f.Kind == value.KindNull {
			return nil, fmt.Errorf("relation %q: field %q has invalid kind %q", name, f.Name, f.Kind)
		}
		r.fields[f.Name] = f
		r.fieldOrder = append(r.fieldOrder, f.Name)
	}

	if _, ok := r.fields[r.primaryKey]; !ok {
		return nil, fmt.Errorf("relation %q: primary key %q is not a declared field", name, primaryKey)
	}

	for _, rel := range relationships {
		rel.Name = norm.NFC.String(rel.Name)
		if rel.Name == "" {
			return nil, fmt.Errorf("relation %q: relationship name must not be empty", name)
		}
		if _, dup := r.relationships[rel.Name]; dup {
			return nil, fmt.Errorf("relation %q: duplicate relationship %q", name, rel.Name)
		}
		switch rel.Cardinality {
		case ToOne, ToMany:
			if rel.ForeignKey == "" {
				return nil, fmt.Errorf("relation %q: relationship %q requires a foreign key", name, rel.Name)
			}
		case ManyToMany:
			if rel.JoinTable == "" || rel.SourceKey == "" || rel.TargetKey == "" {
				return nil, fmt.Errorf("relation %q: relationship %q requires join table, source key and target key", name, rel.Name)
			}
		default:
			return nil, fmt.Errorf("relation %q: relationship %q has unknown cardinality %q", name, rel.Name, rel.Cardinality)
		}
		if rel.Target == "" {
			return nil, fmt.Errorf("relation %q: relationship %q requires a target relation", name, rel.Name)
		}
		r.relationships[rel.Name] = rel
	}

	return r, nil
}

// Name returns the relation name.
func (r *Relation) Name() string { return r.name }

// Table returns the backing table name.
func (r *Relation) Table() string { return r.table }

// PrimaryKey returns the primary key field name.
func (r *Relation) PrimaryKey() string { return r.primaryKey }

// Field looks up a declared field by name.
func (r *Relation) Field(name string) (Field, bool) {
	f, ok := r.fields[norm.NFC.String(name)]
	return f, ok
}

// Fields returns the declared fields in declaration order.
func (r *Relation) Fields() []Field {
	out := make([]Field, 0, len(r.fieldOrder))
	for _, name := range r.fieldOrder {
		out = append(out, r.fields[name])
	}
	return out
}

// FieldNames returns the declared field names in declaration order.
func (r *Relation) FieldNames() []string {
	out := make([]string, len(r.fieldOrder))
	copy(out, r.fieldOrder)
	return out
}

// Relationship looks up a declared relationship by name.
func (r *Relation) Relationship(name string) (Relationship, bool) {
	rel, ok := r.relationships[norm.NFC.String(name)]
	return rel, ok
}

// RelationshipNames returns the declared relationship names, sorted.
func (r *Relation) RelationshipNames() []string {
	out := make([]string, 0, len(r.relationships))
	for name := range r.relationships {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Registry holds every registered Relation. Populated once at startup and
// read-only afterwards; safe for concurrent readers without locking.
type Registry struct {
	relations map[string]*Relation
	sealed    bool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{relations: make(map[string]*Relation)}
}

// Register adds a Relation. Fails on duplicates or after Seal.
func (g *Registry) Register(r *Relation) error {
	if g.sealed {
		return fmt.Errorf("registry is sealed")
	}
	if _, dup := g.relations[r.name]; dup {
		return fmt.Errorf("relation %q already registered", r.name)
	}
	g.relations[r.name] = r
	return nil
}

// Seal validates cross-relation references and freezes the registry.
// Every relationship target must name a registered relation, and every
// foreign key must be a declared field on the relation that carries it.
func (g *Registry) Seal() error {
	for _, r := range g.relations {
		for _, name := range r.RelationshipNames() {
			rel, _ := r.Relationship(name)
			target, ok := g.relations[norm.NFC.String(rel.Target)]
			if !ok {
				return fmt.Errorf("relation %q: relationship %q targets unknown relation %q", r.name, rel.Name, rel.Target)
			}
			switch rel.Cardinality {
			case ToOne:
				if _, ok := r.Field(rel.ForeignKey); !ok {
					return fmt.Errorf("relation %q: relationship %q foreign key %q is not a field of %q", r.name, rel.Name, rel.ForeignKey, r.name)
				}
			case ToMany:
				if _, ok := target.Field(rel.ForeignKey); !ok {
					return fmt.Errorf("relation %q: relationship %q foreign key %q is not a field of %q", r.name, rel.Name, rel.ForeignKey, target.name)
				}
			}
		}
	}
	g.sealed = true
	return nil
}

// Relation looks up a registered relation by name.
func (g *Registry) Relation(name string) (*Relation, bool) {
	r, ok := g.relations[norm.NFC.String(name)]
	return r, ok
}

// RelationNames returns the registered relation names, sorted.
func (g *Registry) RelationNames() []string {
	out := make([]string, 0, len(g.relations))
	for name := range g.relations {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
