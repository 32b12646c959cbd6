package nubodb

import "github.com/kartikbazzad/nubodb/internal/schema"

// refFields returns the names of schema fields declaring a Ref, purely
// for informational surfacing (e.g. Stats()); the core never follows
// them (design note 9(c): "ref fields are advisory only; no join logic
// in the core").
func refFields(s schema.Schema) []string {
	out := make([]string, 0, len(s))
	for name, f := range s {
		if f.Ref != "" {
			out = append(out, name)
		}
	}
	return out
}
