package engine

import (
	"context"
	"fmt"

	"github.com/roach88/quill/internal/query"
	"github.com/roach88/quill/internal/schema"
	"github.com/roach88/quill/internal/value"
)

// hydrateJoined fills in the to-one records a joined eager load folded
// into the root rows. Joined columns arrive aliased <name>__<field>; a
// null target primary key means the foreign key was null and the related
// record is nil.
func (e *Engine) hydrateJoined(plan query.Plan, rel *schema.Relation, rows []map[string]any, records []*Record) error {
	for _, load := range plan.EagerLoads() {
		rship, ok := rel.Relationship(load.Name)
		if !ok || !load.Joined(rship.Cardinality) {
			continue
		}
		target, ok := e.registry.Relation(rship.Target)
		if !ok {
			return query.NewInvalidPlanError(plan.RelationName(), "unknown relation "+rship.Target)
		}

		prefix := load.Name + "__"
		for i, row := range rows {
			if raw, ok := row[prefix+target.PrimaryKey()]; !ok {
				return newStorageError(plan.RelationName(),
					fmt.Errorf("joined load %s: row missing column %s", load.Name, prefix+target.PrimaryKey()))
			} else if raw == nil {
				records[i].setOne(load.Name, nil)
				continue
			}

			sub := make(map[string]any, len(target.Fields()))
			for _, f := range target.Fields() {
				sub[f.Name] = row[prefix+f.Name]
			}
			child, err := newRecord(target, sub)
			if err != nil {
				return newStorageError(plan.RelationName(), err)
			}
			records[i].setOne(load.Name, child)
		}
	}
	return nil
}

// loadBatched resolves the root plan's batched eager loads. Joined loads
// were already hydrated from the root rows and are skipped here.
func (e *Engine) loadBatched(ctx context.Context, plan query.Plan, rel *schema.Relation, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, load := range plan.EagerLoads() {
		rship, ok := rel.Relationship(load.Name)
		if !ok {
			return query.NewUnknownRelationshipError(plan.RelationName(), load.Name)
		}
		if load.Joined(rship.Cardinality) {
			continue
		}
		if err := e.resolveLoad(ctx, rel, rship, load, records); err != nil {
			return err
		}
	}
	return nil
}

// resolveAllBatched resolves every eager load of a plan through the
// batched path, including to-one loads that would join at the root.
// Used for children of a many-to-many load, whose rows come from the
// join machinery and carry no joined columns.
func (e *Engine) resolveAllBatched(ctx context.Context, plan query.Plan, rel *schema.Relation, records []*Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, load := range plan.EagerLoads() {
		rship, ok := rel.Relationship(load.Name)
		if !ok {
			return query.NewUnknownRelationshipError(plan.RelationName(), load.Name)
		}
		if err := e.resolveLoad(ctx, rel, rship, load, records); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) resolveLoad(ctx context.Context, rel *schema.Relation, rship schema.Relationship, load query.EagerLoad, records []*Record) error {
	switch rship.Cardinality {
	case schema.ToOne:
		return e.loadToOne(ctx, rship, load.Sub, records)
	case schema.ToMany:
		return e.loadToMany(ctx, rship, load.Sub, records)
	case schema.ManyToMany:
		return e.loadManyToMany(ctx, rel, rship, load.Sub, records)
	default:
		return query.NewInvalidPlanError(rel.Name(), "unknown cardinality for "+rship.Name)
	}
}

// loadToOne batches a to-one relationship: collect the parents' foreign
// keys, fetch the targets by primary key in chunks, index by id, attach.
// A parent whose foreign key is null, or whose target a sub-plan
// predicate filtered out, gets a nil related record.
func (e *Engine) loadToOne(ctx context.Context, rship schema.Relationship, sub *query.Plan, records []*Record) error {
	target, ok := e.registry.Relation(rship.Target)
	if !ok {
		return query.NewInvalidPlanError(rship.Target, "unknown relation")
	}

	ids := make([]value.Value, 0, len(records))
	seen := make(map[value.Value]bool, len(records))
	for _, rec := range records {
		fk, ok := rec.Get(rship.ForeignKey)
		if !ok || value.KindOf(fk) == value.KindNull || seen[fk] {
			continue
		}
		seen[fk] = true
		ids = append(ids, fk)
	}

	byID := make(map[value.Value]*Record, len(ids))
	for _, chunk := range chunkValues(ids, query.MaxBatchIdentifiers) {
		children, err := e.run(ctx, e.childPlan(rship.Target, sub).Filter(query.In(target.PrimaryKey(), chunk...)))
		if err != nil {
			return err
		}
		for _, child := range children {
			id, _ := child.Get(target.PrimaryKey())
			byID[id] = child
		}
	}

	for _, rec := range records {
		fk, ok := rec.Get(rship.ForeignKey)
		if !ok || value.KindOf(fk) == value.KindNull {
			rec.setOne(rship.Name, nil)
			continue
		}
		rec.setOne(rship.Name, byID[fk])
	}
	return nil
}

// loadToMany batches a to-many relationship: one IN query per chunk of
// parent identifiers against the child's foreign key, then children are
// grouped back onto their parents. Parents with no children get an
// empty slice, so callers can tell "loaded, none" from "never loaded".
func (e *Engine) loadToMany(ctx context.Context, rship schema.Relationship, sub *query.Plan, records []*Record) error {
	parents, ids, err := e.parentIndex(rship.Name, records)
	if err != nil {
		return err
	}

	grouped := make(map[value.Value][]*Record, len(ids))
	for _, chunk := range chunkValues(ids, query.MaxBatchIdentifiers) {
		children, err := e.run(ctx, e.childPlan(rship.Target, sub).Filter(query.In(rship.ForeignKey, chunk...)))
		if err != nil {
			return err
		}
		for _, child := range children {
			fk, ok := child.Get(rship.ForeignKey)
			if !ok {
				return newStorageError(rship.Target,
					fmt.Errorf("batched load %s: child missing foreign key %s", rship.Name, rship.ForeignKey))
			}
			grouped[fk] = append(grouped[fk], child)
		}
	}

	for id, recs := range parents {
		for _, rec := range recs {
			rec.setMany(rship.Name, grouped[id])
		}
	}
	return nil
}

// loadManyToMany batches through the join table: storage compiles one
// query per chunk that joins link rows to target rows and tags each
// result with its parent identifier under ParentCol.
func (e *Engine) loadManyToMany(ctx context.Context, rel *schema.Relation, rship schema.Relationship, sub *query.Plan, records []*Record) error {
	target, ok := e.registry.Relation(rship.Target)
	if !ok {
		return query.NewInvalidPlanError(rship.Target, "unknown relation")
	}
	pkField, _ := rel.Field(rel.PrimaryKey())

	parents, ids, err := e.parentIndex(rship.Name, records)
	if err != nil {
		return err
	}

	child := e.childPlan(rship.Target, sub)
	if err := child.Err(); err != nil {
		return err
	}

	grouped := make(map[value.Value][]*Record, len(ids))
	var children []*Record
	for _, chunk := range chunkValues(ids, query.MaxBatchIdentifiers) {
		sp, err := e.storage.CompileJoin(rship, child, chunk, ParentCol)
		if err != nil {
			return newStorageError(rel.Name(), err)
		}
		rows, err := e.storage.Run(ctx, sp)
		if err != nil {
			return newStorageError(rel.Name(), err)
		}
		for _, row := range rows {
			rec, err := newRecord(target, row)
			if err != nil {
				return newStorageError(rel.Name(), err)
			}
			parentID, err := value.FromDriver(row[ParentCol], pkField.Kind)
			if err != nil {
				return newStorageError(rel.Name(), fmt.Errorf("batched load %s: %w", rship.Name, err))
			}
			grouped[parentID] = append(grouped[parentID], rec)
			children = append(children, rec)
		}
	}

	// The join path bypasses run(), so nested loads of the sub-plan are
	// resolved here, all batched.
	if err := e.resolveAllBatched(ctx, child, target, children); err != nil {
		return err
	}

	for id, recs := range parents {
		for _, rec := range recs {
			rec.setMany(rship.Name, grouped[id])
		}
	}
	return nil
}

// childPlan returns the sub-plan of an eager load, or a bare plan over
// the target relation when the load carried none.
func (e *Engine) childPlan(target string, sub *query.Plan) query.Plan {
	if sub != nil {
		return *sub
	}
	return query.NewPlan(e.registry, target)
}

// parentIndex groups records by primary key and returns the distinct
// identifiers in first-seen order.
func (e *Engine) parentIndex(load string, records []*Record) (map[value.Value][]*Record, []value.Value, error) {
	parents := make(map[value.Value][]*Record, len(records))
	ids := make([]value.Value, 0, len(records))
	for _, rec := range records {
		rel, ok := e.registry.Relation(rec.Relation())
		if !ok {
			return nil, nil, query.NewInvalidPlanError(rec.Relation(), "unknown relation")
		}
		id, ok := rec.Get(rel.PrimaryKey())
		if !ok {
			return nil, nil, newStorageError(rec.Relation(),
				fmt.Errorf("batched load %s: record missing primary key %s", load, rel.PrimaryKey()))
		}
		if _, dup := parents[id]; !dup {
			ids = append(ids, id)
		}
		parents[id] = append(parents[id], rec)
	}
	return parents, ids, nil
}

func chunkValues(vs []value.Value, size int) [][]value.Value {
	if len(vs) == 0 {
		return nil
	}
	var out [][]value.Value
	for start := 0; start < len(vs); start += size {
		end := start + size
		if end > len(vs) {
			end = len(vs)
		}
		out = append(out, vs[start:end])
	}
	return out
}
