package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/quill/internal/engine"
	"github.com/roach88/quill/internal/value"
)

// recordJSON flattens a record and its loaded relationships into a
// json-encodable map. Value variants marshal as their natural JSON
// types (Null as null, Time as RFC 3339).
func recordJSON(rec *engine.Record) map[string]any {
	out := make(map[string]any)
	for _, name := range rec.Fields() {
		v, _ := rec.Get(name)
		out[name] = v
	}
	for _, name := range rec.OneNames() {
		child, _ := rec.One(name)
		if child == nil {
			out[name] = nil
			continue
		}
		out[name] = recordJSON(child)
	}
	for _, name := range rec.ManyNames() {
		children, _ := rec.Many(name)
		list := make([]map[string]any, 0, len(children))
		for _, child := range children {
			list = append(list, recordJSON(child))
		}
		out[name] = list
	}
	return out
}

// renderRecord renders a record for text output, with loaded
// relationships indented under it.
func renderRecord(rec *engine.Record) string {
	var b strings.Builder
	b.WriteString(rec.String())
	for _, name := range rec.OneNames() {
		child, _ := rec.One(name)
		if child == nil {
			fmt.Fprintf(&b, "\n  %s: <none>", name)
			continue
		}
		fmt.Fprintf(&b, "\n  %s: %s", name, child.String())
	}
	for _, name := range rec.ManyNames() {
		children, _ := rec.Many(name)
		fmt.Fprintf(&b, "\n  %s (%d):", name, len(children))
		for _, child := range children {
			fmt.Fprintf(&b, "\n    %s", child.String())
		}
	}
	return b.String()
}

// formatValues renders an aggregate result row for text output.
func formatValues(values map[string]value.Value, order []string) string {
	var b strings.Builder
	for i, name := range order {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s = %s", name, value.Format(values[name]))
	}
	return b.String()
}
