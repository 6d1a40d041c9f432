package categorization

import (
	"sort"

	"headlines/internal/core"
)

// Prototypes turns a name → description map into category prototypes,
// sorted by name so every run sees the same order.
func Prototypes(categories map[string]string) []core.CategoryPrototype {
	out := make([]core.CategoryPrototype, 0, len(categories))
	for name, description := range categories {
		out = append(out, core.CategoryPrototype{Name: name, Description: description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
