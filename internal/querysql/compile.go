package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/quill/internal/query"
	"github.com/roach88/quill/internal/schema"
	"github.com/roach88/quill/internal/value"
)

// Statement is a compiled, parameterized SQL statement. It is the concrete
// form of the opaque storage plan the engine hands back to Run.
//
// CRITICAL: all values are parameterized, never interpolated.
type Statement struct {
	SQL  string
	Args []any
}

// JoinAliasSep separates the relationship name from the field name in the
// column aliases of a joined eager-load (e.g. "advisor__name"). Part of
// the storage contract with the engine.
const JoinAliasSep = "__"

// Compiler compiles query plans to parameterized SQL for SQLite.
//
// Every statement carries a deterministic ORDER BY: caller orderings
// first, then the base relation's primary key as a tiebreaker, so repeated
// runs of the same plan return rows in the same order.
type Compiler struct {
	registry *schema.Registry
}

// NewCompiler creates a Compiler over a sealed schema registry.
func NewCompiler(registry *schema.Registry) *Compiler {
	return &Compiler{registry: registry}
}

// compileCtx tracks table aliases and join clauses for one statement.
type compileCtx struct {
	c       *Compiler
	rel     *schema.Relation
	aliases map[string]string // traversal path → table alias
	joins   []string
	next    int
}

func (c *Compiler) newCtx(rel *schema.Relation) *compileCtx {
	return &compileCtx{
		c:       c,
		rel:     rel,
		aliases: map[string]string{"": "t0"},
	}
}

// aliasFor returns the table alias for a relationship traversal path,
// adding a LEFT JOIN clause for each hop seen for the first time. Only
// to-one hops are joinable; plan validation rejects anything else long
// before compile.
func (cc *compileCtx) aliasFor(path []string) (string, error) {
	current := cc.rel
	key := ""
	alias := "t0"
	for _, hop := range path {
		r, ok := current.Relationship(hop)
		if !ok {
			return "", fmt.Errorf("unknown relationship %q on %q", hop, current.Name())
		}
		if r.Cardinality != schema.ToOne {
			return "", fmt.Errorf("cannot traverse %s relationship %q in a field reference", r.Cardinality, hop)
		}
		target, ok := cc.c.registry.Relation(r.Target)
		if !ok {
			return "", fmt.Errorf("unknown relation %q", r.Target)
		}

		parentAlias := alias
		if key == "" {
			key = hop
		} else {
			key = key + "." + hop
		}
		if existing, ok := cc.aliases[key]; ok {
			alias = existing
		} else {
			cc.next++
			alias = fmt.Sprintf("t%d", cc.next)
			cc.aliases[key] = alias
			cc.joins = append(cc.joins, fmt.Sprintf("LEFT JOIN %s %s ON %s.%s = %s.%s",
				target.Table(), alias, alias, target.PrimaryKey(), parentAlias, r.ForeignKey))
		}
		current = target
	}
	return alias, nil
}

// column renders a field reference as alias.column.
func (cc *compileCtx) column(ref query.FieldRef) (string, error) {
	alias, err := cc.aliasFor(ref.Path)
	if err != nil {
		return "", err
	}
	return alias + "." + ref.Name, nil
}

// Compile converts a query plan to a parameterized SELECT.
//
// The projection covers every declared field of the plan's relation, plus
// the fields of each joined eager-load aliased "<relationship>__<field>"
// through a LEFT JOIN, so absent to-one rows still yield the parent.
// Batched eager-loads are the engine's concern and are skipped here.
func (c *Compiler) Compile(plan query.Plan) (*Statement, error) {
	if err := plan.Err(); err != nil {
		return nil, fmt.Errorf("cannot compile invalid plan: %w", err)
	}
	rel, ok := plan.Relation()
	if !ok {
		return nil, fmt.Errorf("unknown relation %q", plan.RelationName())
	}

	cc := c.newCtx(rel)

	cols := make([]string, 0, len(rel.FieldNames()))
	for _, f := range rel.FieldNames() {
		cols = append(cols, fmt.Sprintf("t0.%s AS %s", f, f))
	}

	for _, load := range plan.EagerLoads() {
		r, ok := rel.Relationship(load.Name)
		if !ok {
			return nil, fmt.Errorf("unknown relationship %q on %q", load.Name, rel.Name())
		}
		if !load.Joined(r.Cardinality) {
			continue
		}
		alias, err := cc.aliasFor([]string{load.Name})
		if err != nil {
			return nil, err
		}
		target, _ := c.registry.Relation(r.Target)
		for _, f := range target.FieldNames() {
			cols = append(cols, fmt.Sprintf("%s.%s AS %s%s%s", alias, f, load.Name, JoinAliasSep, f))
		}
	}

	var whereSQL string
	var args []any
	if plan.Predicate() != nil {
		sql, params, err := cc.compilePredicate(plan.Predicate())
		if err != nil {
			return nil, fmt.Errorf("compile predicate: %w", err)
		}
		whereSQL = " WHERE " + sql
		args = params
	}

	orderSQL, err := cc.orderBy(plan)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s t0", strings.Join(cols, ", "), rel.Table())
	for _, j := range cc.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	b.WriteString(whereSQL)
	b.WriteString(orderSQL)

	windowSQL, windowArgs := windowClause(plan)
	b.WriteString(windowSQL)
	args = append(args, windowArgs...)

	return &Statement{SQL: b.String(), Args: args}, nil
}

// CompileAggregate converts a plan's reduction requests into a single
// aggregate SELECT. When the plan carries a window the filtered rows are
// wrapped in a subquery first, so the reductions see exactly the windowed
// set.
func (c *Compiler) CompileAggregate(plan query.Plan) (*Statement, error) {
	if err := plan.Err(); err != nil {
		return nil, fmt.Errorf("cannot compile invalid plan: %w", err)
	}
	rel, ok := plan.Relation()
	if !ok {
		return nil, fmt.Errorf("unknown relation %q", plan.RelationName())
	}
	aggs := plan.Aggregations()
	if len(aggs) == 0 {
		return nil, fmt.Errorf("plan has no aggregation requests")
	}

	var b strings.Builder
	if plan.Offset() == 0 && plan.Limit() == query.NoLimit {
		cc := c.newCtx(rel)
		cols, err := aggregateColumns(cc, aggs)
		if err != nil {
			return nil, err
		}

		var whereSQL string
		var args []any
		if plan.Predicate() != nil {
			sql, params, err := cc.compilePredicate(plan.Predicate())
			if err != nil {
				return nil, fmt.Errorf("compile predicate: %w", err)
			}
			whereSQL = " WHERE " + sql
			args = params
		}

		fmt.Fprintf(&b, "SELECT %s FROM %s t0", strings.Join(cols, ", "), rel.Table())
		for _, j := range cc.joins {
			b.WriteString(" ")
			b.WriteString(j)
		}
		b.WriteString(whereSQL)
		return &Statement{SQL: b.String(), Args: args}, nil
	}

	// Windowed aggregate: reduce over the sliced row set. The subquery
	// handles the predicate, ordering and window itself and projects
	// every base field (foreign keys included), so re-aliasing it as t0
	// lets the aggregate columns and any traversal joins they need
	// resolve against it. The columns compile in a fresh context so only
	// their own joins attach to the outer query.
	inner, err := c.Compile(plan.WithoutEagerLoads())
	if err != nil {
		return nil, err
	}
	cc := c.newCtx(rel)
	cols, err := aggregateColumns(cc, aggs)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(&b, "SELECT %s FROM (%s) t0", strings.Join(cols, ", "), inner.SQL)
	for _, j := range cc.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	return &Statement{SQL: b.String(), Args: inner.Args}, nil
}

// aggregateColumns renders each reduction request as an aliased select
// expression, collecting traversal joins into cc.
func aggregateColumns(cc *compileCtx, aggs []query.Aggregation) ([]string, error) {
	cols := make([]string, 0, len(aggs))
	for _, a := range aggs {
		var expr string
		switch {
		case a.Fn == query.AggCount && a.Field == "":
			expr = "COUNT(*)"
		default:
			col, err := cc.column(query.Ref(a.Field))
			if err != nil {
				return nil, err
			}
			expr = fmt.Sprintf("%s(%s)", aggFns[a.Fn], col)
			// Empty sets reduce to 0 for sums; avg/min/max stay NULL.
			if a.Fn == query.AggSum {
				expr = "COALESCE(" + expr + ", 0)"
			}
		}
		cols = append(cols, fmt.Sprintf("%s AS %s", expr, a.Name))
	}
	return cols, nil
}

var aggFns = map[query.AggregateFn]string{
	query.AggCount: "COUNT",
	query.AggSum:   "SUM",
	query.AggAvg:   "AVG",
	query.AggMin:   "MIN",
	query.AggMax:   "MAX",
}

// CompileJoin builds the batched child query for a many-to-many load: the
// target relation joined through the link table, filtered to the collected
// parent identifiers, each row tagged with the parent identifier under
// parentCol so the engine can group children in memory.
func (c *Compiler) CompileJoin(link schema.Relationship, target query.Plan, parentIDs []value.Value, parentCol string) (*Statement, error) {
	if err := target.Err(); err != nil {
		return nil, fmt.Errorf("cannot compile invalid plan: %w", err)
	}
	rel, ok := target.Relation()
	if !ok {
		return nil, fmt.Errorf("unknown relation %q", target.RelationName())
	}
	if link.Cardinality != schema.ManyToMany {
		return nil, fmt.Errorf("CompileJoin requires a many-to-many relationship, got %s", link.Cardinality)
	}

	cc := c.newCtx(rel)

	cols := make([]string, 0, len(rel.FieldNames())+1)
	for _, f := range rel.FieldNames() {
		cols = append(cols, fmt.Sprintf("t0.%s AS %s", f, f))
	}
	cols = append(cols, fmt.Sprintf("j.%s AS %s", link.SourceKey, parentCol))

	placeholders := make([]string, len(parentIDs))
	args := make([]any, 0, len(parentIDs))
	for i, id := range parentIDs {
		placeholders[i] = "?"
		p, err := value.ToParam(id)
		if err != nil {
			return nil, err
		}
		args = append(args, p)
	}

	whereSQL := fmt.Sprintf(" WHERE j.%s IN (%s)", link.SourceKey, strings.Join(placeholders, ", "))
	if target.Predicate() != nil {
		sql, params, err := cc.compilePredicate(target.Predicate())
		if err != nil {
			return nil, fmt.Errorf("compile predicate: %w", err)
		}
		whereSQL += " AND (" + sql + ")"
		args = append(args, params...)
	}

	orderSQL, err := cc.orderBy(target)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s j JOIN %s t0 ON t0.%s = j.%s",
		strings.Join(cols, ", "), link.JoinTable, rel.Table(), rel.PrimaryKey(), link.TargetKey)
	for _, j := range cc.joins {
		b.WriteString(" ")
		b.WriteString(j)
	}
	b.WriteString(whereSQL)
	b.WriteString(orderSQL)

	return &Statement{SQL: b.String(), Args: args}, nil
}

// orderBy renders the plan's orderings plus the mandatory primary-key
// tiebreaker for deterministic results.
func (cc *compileCtx) orderBy(plan query.Plan) (string, error) {
	parts := make([]string, 0, len(plan.Orderings())+1)
	for _, o := range plan.Orderings() {
		col, err := cc.column(o.Field)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if o.Direction == query.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	parts = append(parts, "t0."+cc.rel.PrimaryKey()+" ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

// windowClause renders LIMIT/OFFSET. SQLite requires a LIMIT before an
// OFFSET, so an offset-only window uses LIMIT -1.
func windowClause(plan query.Plan) (string, []any) {
	limit := plan.Limit()
	offset := plan.Offset()
	switch {
	case limit == query.NoLimit && offset == 0:
		return "", nil
	case limit == query.NoLimit:
		return " LIMIT -1 OFFSET ?", []any{offset}
	case offset == 0:
		return " LIMIT ?", []any{limit}
	default:
		return " LIMIT ? OFFSET ?", []any{limit, offset}
	}
}

// compilePredicate compiles a predicate tree to a WHERE fragment.
// Returns (sql, params, error).
// CRITICAL: values are NEVER interpolated - always ? placeholders.
func (cc *compileCtx) compilePredicate(p query.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case query.Cmp:
		return cc.compileCmp(pred)
	case *query.Cmp:
		return cc.compileCmp(*pred)
	case query.And:
		return cc.compileJunction("AND", "1 = 1", pred.Preds)
	case *query.And:
		return cc.compileJunction("AND", "1 = 1", pred.Preds)
	case query.Or:
		return cc.compileJunction("OR", "1 = 0", pred.Preds)
	case *query.Or:
		return cc.compileJunction("OR", "1 = 0", pred.Preds)
	case query.Not:
		sql, params, err := cc.compilePredicate(pred.Pred)
		if err != nil {
			return "", nil, err
		}
		return "NOT (" + sql + ")", params, nil
	case *query.Not:
		return cc.compilePredicate(query.Not{Pred: pred.Pred})
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (cc *compileCtx) compileJunction(op, empty string, preds []query.Predicate) (string, []any, error) {
	if len(preds) == 0 {
		return empty, nil, nil
	}
	var parts []string
	var allParams []any
	for _, pred := range preds {
		sql, params, err := cc.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		allParams = append(allParams, params...)
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")", allParams, nil
}

// compileCmp compiles one leaf comparison.
func (cc *compileCtx) compileCmp(c query.Cmp) (string, []any, error) {
	col, err := cc.column(c.Field)
	if err != nil {
		return "", nil, err
	}

	switch c.Op {
	case query.OpIsNull:
		return col + " IS NULL", nil, nil

	case query.OpIn:
		if len(c.Set) == 0 {
			// Never matches. The engine short-circuits before compile;
			// this keeps the compiled form correct regardless.
			return "1 = 0", nil, nil
		}
		placeholders := make([]string, len(c.Set))
		params := make([]any, len(c.Set))
		for i, v := range c.Set {
			placeholders[i] = "?"
			p, err := value.ToParam(v)
			if err != nil {
				return "", nil, err
			}
			params[i] = p
		}
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")), params, nil

	case query.OpRange:
		lo, err := value.ToParam(c.Lo)
		if err != nil {
			return "", nil, err
		}
		hi, err := value.ToParam(c.Hi)
		if err != nil {
			return "", nil, err
		}
		return col + " BETWEEN ? AND ?", []any{lo, hi}, nil

	case query.OpContains, query.OpStartsWith, query.OpEndsWith:
		s, ok := c.Value.(value.String)
		if !ok {
			return "", nil, fmt.Errorf("%s requires a string operand", c.Op)
		}
		pattern := escapeLike(string(s))
		switch c.Op {
		case query.OpContains:
			pattern = "%" + pattern + "%"
		case query.OpStartsWith:
			pattern = pattern + "%"
		case query.OpEndsWith:
			pattern = "%" + pattern
		}
		return col + ` LIKE ? ESCAPE '\'`, []any{pattern}, nil

	default:
		sqlOp, ok := sqlOperators[c.Op]
		if !ok {
			return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
		if c.Ref != nil {
			other, err := cc.column(*c.Ref)
			if err != nil {
				return "", nil, err
			}
			return fmt.Sprintf("%s %s %s", col, sqlOp, other), nil, nil
		}
		p, err := value.ToParam(c.Value)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("%s %s ?", col, sqlOp), []any{p}, nil
	}
}

var sqlOperators = map[query.Operator]string{
	query.OpEquals:         "=",
	query.OpNotEquals:      "!=",
	query.OpGreater:        ">",
	query.OpGreaterOrEqual: ">=",
	query.OpLess:           "<",
	query.OpLessOrEqual:    "<=",
}

// escapeLike escapes LIKE wildcards in a literal substring.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
