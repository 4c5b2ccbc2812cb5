package query

import "strings"

// FieldRef identifies a field on a relation, optionally reached through a
// chain of relationship traversals.
//
// Examples:
//
//	Ref("age")                  → the age field of the plan's relation
//	Ref("advisor.name")         → the name field of the relation reached
//	                              through the advisor relationship
//	Ref("advisor.school.city")  → two traversals, then the city field
//
// FieldRefs are used both for filtering and for ordering. Traversal hops
// are resolved against declared relationships at plan-build time.
type FieldRef struct {
	// Path holds the relationship traversals, outermost first.
	// Empty for a direct field of the plan's relation.
	Path []string

	// Name is the terminal field name.
	Name string
}

// Ref parses a dotted field reference. The last segment is the field name;
// every preceding segment is a relationship traversal.
func Ref(s string) FieldRef {
	parts := strings.Split(s, ".")
	if len(parts) == 1 {
		return FieldRef{Name: parts[0]}
	}
	return FieldRef{Path: parts[:len(parts)-1], Name: parts[len(parts)-1]}
}

// String renders the reference in dotted form.
func (f FieldRef) String() string {
	if len(f.Path) == 0 {
		return f.Name
	}
	return strings.Join(f.Path, ".") + "." + f.Name
}

// Direct reports whether the reference names a field of the plan's own
// relation (no traversals).
func (f FieldRef) Direct() bool {
	return len(f.Path) == 0
}
