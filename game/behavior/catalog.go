package behavior

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateID         = errors.New("behavior: duplicate id")
	ErrInvalidDefinition   = errors.New("behavior: invalid definition")
	ErrMissingFallback     = errors.New("behavior: fallback behavior not registered")
	ErrFallbackConditional = errors.New("behavior: fallback behavior must not have a precondition")
	ErrSealed              = errors.New("behavior: catalog is sealed")
)

// ConfigError collects every catalog problem found at startup.
type ConfigError struct {
	Problems []error
}

func (e *ConfigError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return fmt.Sprintf("behavior catalog has %d problem(s): %s", len(e.Problems), strings.Join(msgs, "; "))
}

func (e *ConfigError) Unwrap() []error { return e.Problems }

// Catalog holds the registered behaviors in registration order. The order
// is the decision engine's tie-break, so it is part of the contract.
type Catalog struct {
	fallbackID string
	defs       []Definition
	index      map[string]int
	problems   []error
	sealed     bool
}

func NewCatalog(fallbackID string) *Catalog {
	return &Catalog{fallbackID: fallbackID, index: make(map[string]int)}
}

// Register adds def. Rejections are returned and also remembered so Seal
// can report them together.
func (c *Catalog) Register(def Definition) error {
	if err := c.check(def); err != nil {
		c.problems = append(c.problems, err)
		return err
	}
	c.index[def.ID()] = len(c.defs)
	c.defs = append(c.defs, def)
	return nil
}

func (c *Catalog) check(def Definition) error {
	if c.sealed {
		return ErrSealed
	}
	if def == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidDefinition)
	}
	id := def.ID()
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDefinition)
	}
	if _, dup := c.index[id]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	p := def.Profile()
	if p.Duration <= 0 {
		return fmt.Errorf("%w: %q has non-positive duration %s", ErrInvalidDefinition, id, p.Duration)
	}
	if p.Hint.Speed < 0 {
		return fmt.Errorf("%w: %q has negative speed", ErrInvalidDefinition, id)
	}
	if _, ok := movementNames[p.Hint.Movement]; !ok {
		return fmt.Errorf("%w: %q has unknown movement %d", ErrInvalidDefinition, id, p.Hint.Movement)
	}
	return nil
}

// Seal validates the catalog and freezes it. Any problem, including ones
// reported earlier by Register, yields a *ConfigError.
func (c *Catalog) Seal() error {
	problems := append([]error(nil), c.problems...)
	if i, ok := c.index[c.fallbackID]; !ok {
		problems = append(problems, fmt.Errorf("%w: %q", ErrMissingFallback, c.fallbackID))
	} else if cond, ok := c.defs[i].(Conditional); ok && cond.HasPrecondition() {
		problems = append(problems, fmt.Errorf("%w: %q", ErrFallbackConditional, c.fallbackID))
	}
	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	c.sealed = true
	return nil
}

func (c *Catalog) Sealed() bool { return c.sealed }

// All returns the definitions in registration order. The slice is shared;
// callers must not modify it.
func (c *Catalog) All() []Definition { return c.defs }

func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.defs[i], true
}

// Order returns the registration position of id, or -1.
func (c *Catalog) Order(id string) int {
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

// Fallback returns the always-eligible behavior. Valid after Seal.
func (c *Catalog) Fallback() Definition {
	d, _ := c.Get(c.fallbackID)
	return d
}

func (c *Catalog) FallbackID() string { return c.fallbackID }

func (c *Catalog) Len() int { return len(c.defs) }

// IDs lists behavior ids in registration order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.defs))
	for i, d := range c.defs {
		ids[i] = d.ID()
	}
	return ids
}
