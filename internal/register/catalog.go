package register

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidCatalog = errors.New("register: invalid catalog")

// Catalog is the ordered, read-only register table that drives both
// polling and discovery.
type Catalog struct {
	defs   []Definition
	byName map[string]int
}

func NewCatalog(defs []Definition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no registers defined", ErrInvalidCatalog)
	}
	var problems []string
	byName := make(map[string]int, len(defs))
	for i, d := range defs {
		if err := validName(d.Name); err != nil {
			problems = append(problems, fmt.Sprintf("registers[%d]: %v", i, err))
		} else if j, dup := byName[d.Name]; dup {
			problems = append(problems, fmt.Sprintf("registers[%d]: duplicate name %q (also at registers[%d])", i, d.Name, j))
		} else {
			byName[d.Name] = i
		}
		if d.Width != Single && d.Width != Float32 {
			problems = append(problems, fmt.Sprintf("registers[%d/%s]: unsupported width %v", i, d.Name, d.Width))
		}
		if d.Function != InputRegister && d.Function != HoldingRegister {
			problems = append(problems, fmt.Sprintf("registers[%d/%s]: unsupported function %v", i, d.Name, d.Function))
		}
		if uint32(d.Address)+uint32(d.Width) > 1<<16 {
			problems = append(problems, fmt.Sprintf("registers[%d/%s]: address %d overflows register space", i, d.Name, d.Address))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
	}
	own := make([]Definition, len(defs))
	copy(own, defs)
	return &Catalog{defs: own, byName: byName}, nil
}

// validName rejects names that would break topic derivation.
func validName(name string) error {
	if name == "" {
		return errors.New("name is required")
	}
	if strings.ContainsAny(name, "/+# \t\r\n") {
		return fmt.Errorf("name %q must be a single topic segment", name)
	}
	return nil
}

// Definitions returns a copy in catalog order.
func (c *Catalog) Definitions() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

func (c *Catalog) Len() int { return len(c.defs) }

func (c *Catalog) Lookup(name string) (Definition, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}
