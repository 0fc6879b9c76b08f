package checkdef

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/checkdef/pkg/checkdef/check"
	"github.com/randalmurphal/checkdef/pkg/checkdef/config"
)

// AllChecklist names the aggregate of every declared checklist.
const AllChecklist = "all"

// checklistPrefix is accepted in front of checklist names, matching the
// names the build-system wrappers expose (checklist-foo).
const checklistPrefix = "checklist-"

// Checklist is a named, ordered list of checks.
type Checklist struct {
	Name   string
	Checks []check.Check
}

// Catalog holds the declared checklists in declaration order.
type Catalog struct {
	lists []Checklist
	index map[string]int
}

// NewCatalog validates lists and builds a catalog. Check names must be
// unique within a checklist and checklist names unique overall.
func NewCatalog(lists ...Checklist) (*Catalog, error) {
	c := &Catalog{index: make(map[string]int, len(lists))}
	for _, l := range lists {
		if l.Name == "" {
			return nil, fmt.Errorf("%w: checklist name required", ErrInvalidDefinition)
		}
		if _, dup := c.index[l.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateChecklist, l.Name)
		}
		seen := make(map[string]bool, len(l.Checks))
		for _, chk := range l.Checks {
			if err := chk.Validate(); err != nil {
				return nil, fmt.Errorf("checklist %s: %w: %w", l.Name, ErrInvalidDefinition, err)
			}
			if seen[chk.Name] {
				return nil, fmt.Errorf("%w: %s in %s", ErrDuplicateCheck, chk.Name, l.Name)
			}
			seen[chk.Name] = true
		}
		c.index[l.Name] = len(c.lists)
		c.lists = append(c.lists, l)
	}
	return c, nil
}

// CatalogFromWorkspace builds a catalog from a loaded workspace.
func CatalogFromWorkspace(ws *config.Workspace) (*Catalog, error) {
	lists := make([]Checklist, len(ws.Checklists))
	for i, l := range ws.Checklists {
		lists[i] = Checklist{Name: l.Name, Checks: l.Checks}
	}
	return NewCatalog(lists...)
}

// Names returns the declared checklist names in order, followed by "all"
// when it is synthesized.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.lists)+1)
	for _, l := range c.lists {
		names = append(names, l.Name)
	}
	if _, declared := c.index[AllChecklist]; !declared {
		names = append(names, AllChecklist)
	}
	return names
}

// Checklists returns the declared checklists.
func (c *Catalog) Checklists() []Checklist {
	return c.lists
}

// Resolve returns the checklists a name expands to. A "checklist-" prefix is
// stripped. "all" expands to every declared checklist unless the workspace
// declares its own "all".
func (c *Catalog) Resolve(name string) (string, []Checklist, error) {
	name = NormalizeName(name)
	if i, ok := c.index[name]; ok {
		return name, []Checklist{c.lists[i]}, nil
	}
	if name == AllChecklist {
		return name, c.lists, nil
	}
	return name, nil, fmt.Errorf("%w: %q", ErrUnknownChecklist, name)
}

// NormalizeName strips the "checklist-" prefix.
func NormalizeName(name string) string {
	return strings.TrimPrefix(name, checklistPrefix)
}
