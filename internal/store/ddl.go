package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/quill/internal/schema"
	"github.com/roach88/quill/internal/value"
)

// EnsureSchema creates the backing tables for every registered relation,
// plus the join tables of many-to-many relationships. Idempotent: uses
// CREATE TABLE IF NOT EXISTS throughout.
func (s *Store) EnsureSchema(ctx context.Context, registry *schema.Registry) error {
	joinTables := map[string]string{}

	for _, name := range registry.RelationNames() {
		rel, _ := registry.Relation(name)

		cols := make([]string, 0, len(rel.Fields()))
		for _, f := range rel.Fields() {
			col := f.Name + " " + sqliteType(f.Kind)
			if f.Name == rel.PrimaryKey() {
				col += " PRIMARY KEY"
			} else if !f.Nullable {
				col += " NOT NULL"
			}
			cols = append(cols, col)
		}

		ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", rel.Table(), strings.Join(cols, ", "))
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", rel.Table(), err)
		}

		for _, rn := range rel.RelationshipNames() {
			r, _ := rel.Relationship(rn)
			if r.Cardinality != schema.ManyToMany {
				continue
			}
			joinTables[r.JoinTable] = fmt.Sprintf(
				"CREATE TABLE IF NOT EXISTS %s (%s INTEGER NOT NULL, %s INTEGER NOT NULL)",
				r.JoinTable, r.SourceKey, r.TargetKey)
		}
	}

	// Deterministic creation order for join tables.
	names := make([]string, 0, len(joinTables))
	for n := range joinTables {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if _, err := s.db.ExecContext(ctx, joinTables[n]); err != nil {
			return fmt.Errorf("create join table %s: %w", n, err)
		}
	}
	return nil
}

// sqliteType maps a field kind to a SQLite column type. Time fields are
// stored as RFC 3339 text.
func sqliteType(k value.Kind) string {
	switch k {
	case value.KindInt, value.KindBool:
		return "INTEGER"
	case value.KindFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}
