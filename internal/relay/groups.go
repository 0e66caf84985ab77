package relay

import "fmt"

// ErrUnknownGroup maps to spec §4.5's invalid_argument failure for an
// unrecognized fan-out target.
type ErrUnknownGroup struct {
	Group string
}

func (e *ErrUnknownGroup) Error() string {
	return fmt.Sprintf("relay: unknown group %q", e.Group)
}

// GroupRegistry is the fixed in-memory group-name -> member-program table
// spec §4.5 names ("A fixed in-memory table maps group name -> member
// program ids").
type GroupRegistry struct {
	groups map[string][]string
}

// NewGroupRegistry builds the default registry. "all" always expands to
// every known program class (spec §8's boundary scenario: "group target
// 'all' -> one row per member").
func NewGroupRegistry() *GroupRegistry {
	return &GroupRegistry{
		groups: map[string][]string{
			"all":          {"orchestrator", "admin", "builder", "legacy", "mobile"},
			"orchestrators": {"orchestrator"},
			"builders":     {"builder"},
		},
	}
}

// Members returns the member program ids for group, or an ErrUnknownGroup.
func (g *GroupRegistry) Members(group string) ([]string, error) {
	members, ok := g.groups[group]
	if !ok {
		return nil, &ErrUnknownGroup{Group: group}
	}
	out := make([]string, len(members))
	copy(out, members)
	return out, nil
}

// IsGroup reports whether target names a registered group.
func (g *GroupRegistry) IsGroup(target string) bool {
	_, ok := g.groups[target]
	return ok
}
