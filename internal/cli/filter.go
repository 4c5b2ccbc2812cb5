package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/quill/internal/query"
	"github.com/roach88/quill/internal/schema"
	"github.com/roach88/quill/internal/value"
)

// parseFilter turns one --filter expression into a predicate.
//
// Expressions are "<field> <op> <value>", e.g.
//
//	age gte 18
//	name contains li
//	grade in A,B
//	score range 60,90
//	advisor_id isnull true
//	score gt @previous_score
//
// A value starting with "@" names another field of the same relation
// (field-to-field comparison). Dotted fields traverse to-one
// relationships ("advisor.subject eq Math").
func parseFilter(registry *schema.Registry, relation, expr string) (query.Predicate, error) {
	parts := strings.SplitN(strings.TrimSpace(expr), " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("filter %q: want \"<field> <op> <value>\"", expr)
	}
	field, op := parts[0], parts[1]
	var raw string
	if len(parts) == 3 {
		raw = parts[2]
	}

	kind, err := fieldKind(registry, relation, field)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", expr, err)
	}

	switch op {
	case "isnull":
		switch raw {
		case "", "true":
			return query.IsNull(field), nil
		case "false":
			return query.Not{Pred: query.IsNull(field)}, nil
		}
		return nil, fmt.Errorf("filter %q: isnull takes true or false", expr)

	case "in":
		var set []value.Value
		for _, s := range strings.Split(raw, ",") {
			v, err := parseValue(kind, s)
			if err != nil {
				return nil, fmt.Errorf("filter %q: %w", expr, err)
			}
			set = append(set, v)
		}
		return query.In(field, set...), nil

	case "range":
		bounds := strings.SplitN(raw, ",", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("filter %q: range takes \"lo,hi\"", expr)
		}
		lo, err := parseValue(kind, bounds[0])
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", expr, err)
		}
		hi, err := parseValue(kind, bounds[1])
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", expr, err)
		}
		return query.InRange(field, lo, hi), nil

	case "contains":
		return query.Contains(field, raw), nil
	case "startswith":
		return query.StartsWith(field, raw), nil
	case "endswith":
		return query.EndsWith(field, raw), nil
	}

	cmpOp, ok := comparisonOps[op]
	if !ok {
		return nil, fmt.Errorf("filter %q: unknown operator %q", expr, op)
	}

	if other, isRef := strings.CutPrefix(raw, "@"); isRef {
		return query.CmpRef(field, cmpOp, other), nil
	}

	v, err := parseValue(kind, raw)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", expr, err)
	}
	switch cmpOp {
	case query.OpEquals:
		return query.Eq(field, v), nil
	case query.OpNotEquals:
		return query.Neq(field, v), nil
	case query.OpGreater:
		return query.Gt(field, v), nil
	case query.OpGreaterOrEqual:
		return query.Gte(field, v), nil
	case query.OpLess:
		return query.Lt(field, v), nil
	default:
		return query.Lte(field, v), nil
	}
}

var comparisonOps = map[string]query.Operator{
	"eq":  query.OpEquals,
	"ne":  query.OpNotEquals,
	"gt":  query.OpGreater,
	"gte": query.OpGreaterOrEqual,
	"lt":  query.OpLess,
	"lte": query.OpLessOrEqual,
}

// fieldKind resolves a possibly dotted field to its declared kind by
// walking to-one relationships from the root relation.
func fieldKind(registry *schema.Registry, relation, field string) (value.Kind, error) {
	rel, ok := registry.Relation(relation)
	if !ok {
		return value.KindNull, fmt.Errorf("unknown relation %s", relation)
	}

	ref := query.Ref(field)
	for _, hop := range ref.Path {
		rship, ok := rel.Relationship(hop)
		if !ok {
			return value.KindNull, fmt.Errorf("unknown relationship %s on %s", hop, rel.Name())
		}
		rel, ok = registry.Relation(rship.Target)
		if !ok {
			return value.KindNull, fmt.Errorf("unknown relation %s", rship.Target)
		}
	}

	f, ok := rel.Field(ref.Name)
	if !ok {
		return value.KindNull, fmt.Errorf("unknown field %s on %s", ref.Name, rel.Name())
	}
	return f.Kind, nil
}

// parseValue converts a literal token to the field's kind.
func parseValue(kind value.Kind, s string) (value.Value, error) {
	s = strings.TrimSpace(s)
	switch kind {
	case value.KindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		return value.Int(n), nil
	case value.KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return value.Float(f), nil
	case value.KindBool:
		switch s {
		case "true":
			return value.Bool(true), nil
		case "false":
			return value.Bool(false), nil
		}
		return nil, fmt.Errorf("%q is not a boolean", s)
	case value.KindTime:
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%q is not an RFC 3339 timestamp", s)
		}
		return value.Time(ts), nil
	default:
		return value.String(s), nil
	}
}
