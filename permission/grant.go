package permission

import (
	"fmt"
	"strings"
)

// Grant is what a role may do: either every permission ([All]) or an explicit
// [Subset]. The set of variants is closed.
type Grant interface {
	allows(bit int) bool
	grant()
}

// All grants every permission, including ones registered later.
type All struct{}

func (All) allows(int) bool { return true }
func (All) grant()          {}

// Subset grants exactly the permissions whose bits are set in Mask.
type Subset struct {
	Mask Mask64
}

func (s Subset) allows(bit int) bool { return s.Mask.Has(bit) }
func (Subset) grant()                {}

// Describe renders g for logs, listing permission names for a [Subset].
func Describe(r *Registry, g Grant) string {
	switch v := g.(type) {
	case All:
		return "all"
	case Subset:
		names := make([]string, 0, 8)
		for bit := 0; bit < 64; bit++ {
			if !v.Mask.Has(bit) {
				continue
			}
			if name, ok := r.Name(bit); ok {
				names = append(names, name)
			} else {
				names = append(names, fmt.Sprintf("bit%d", bit))
			}
		}
		return "subset(" + strings.Join(names, ",") + ")"
	case nil:
		return "none"
	default:
		panic(fmt.Sprintf("permission: unknown grant %T", g))
	}
}
