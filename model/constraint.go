package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ConstraintKind enumerates the closed set of argument constraints.
type ConstraintKind string

const (
	ConstraintExact   ConstraintKind = "exact"
	ConstraintPattern ConstraintKind = "pattern"
	ConstraintAny     ConstraintKind = "any"
)

// Constraint restricts a single argument of a call. Only the field matching
// Kind is meaningful: Value for exact, Pattern for pattern.
type Constraint struct {
	Kind    ConstraintKind `json:"kind" yaml:"kind"`
	Value   interface{}    `json:"value,omitempty" yaml:"value,omitempty"`
	Pattern string         `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Exact returns a constraint requiring strict equality.
func Exact(value interface{}) Constraint {
	return Constraint{Kind: ConstraintExact, Value: value}
}

// Pattern returns a glob constraint (* and ? wildcards).
func Pattern(glob string) Constraint {
	return Constraint{Kind: ConstraintPattern, Pattern: glob}
}

// Any returns a constraint satisfied by any present value.
func Any() Constraint {
	return Constraint{Kind: ConstraintAny}
}

// UnmarshalJSON decodes a constraint keeping an exact numeric value precise.
func (c *Constraint) UnmarshalJSON(data []byte) error {
	type plain Constraint
	var ret plain
	if err := DecodeJSON(data, &ret); err != nil {
		return err
	}
	*c = Constraint(ret)
	return nil
}

// IsNarrowing returns true for exact and pattern constraints.
func (c Constraint) IsNarrowing() bool {
	return c.Kind == ConstraintExact || c.Kind == ConstraintPattern
}

func (c Constraint) String() string {
	switch c.Kind {
	case ConstraintExact:
		data, err := json.Marshal(c.Value)
		if err != nil {
			return fmt.Sprintf("exact:%v", c.Value)
		}
		return "exact:" + string(data)
	case ConstraintPattern:
		return "pattern:" + c.Pattern
	case ConstraintAny:
		return "any"
	}
	return "invalid:" + string(c.Kind)
}

// ParseConstraint parses "exact:<json|text>", "pattern:<glob>" or "any".
// An exact value that is not valid JSON is taken as a plain string.
func ParseConstraint(expr string) (Constraint, error) {
	expr = strings.TrimSpace(expr)
	if strings.EqualFold(expr, string(ConstraintAny)) {
		return Any(), nil
	}
	kind, value, ok := strings.Cut(expr, ":")
	if !ok {
		return Constraint{}, fmt.Errorf("invalid constraint %q: expected exact:<value>, pattern:<glob> or any", expr)
	}
	switch ConstraintKind(strings.ToLower(strings.TrimSpace(kind))) {
	case ConstraintExact:
		var decoded interface{}
		if err := DecodeJSON([]byte(value), &decoded); err == nil {
			return Exact(decoded), nil
		}
		return Exact(value), nil
	case ConstraintPattern:
		if value == "" {
			return Constraint{}, fmt.Errorf("invalid constraint %q: empty pattern", expr)
		}
		return Pattern(value), nil
	}
	return Constraint{}, fmt.Errorf("invalid constraint kind %q", kind)
}

// Constraints maps argument names to their constraint.
type Constraints map[string]Constraint

// Names returns constrained argument names in sorted order.
func (c Constraints) Names() []string {
	ret := make([]string, 0, len(c))
	for name := range c {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Specificity counts exact and pattern constraints.
func (c Constraints) Specificity() int {
	count := 0
	for _, constraint := range c {
		if constraint.IsNarrowing() {
			count++
		}
	}
	return count
}

// Narrowing counts constraints that actually restrict a value: exact ones and
// patterns other than a bare run of '*'.
func (c Constraints) Narrowing() int {
	count := 0
	for _, constraint := range c {
		switch constraint.Kind {
		case ConstraintExact:
			count++
		case ConstraintPattern:
			if strings.Trim(constraint.Pattern, "*") != "" {
				count++
			}
		}
	}
	return count
}

// Clone returns a shallow copy.
func (c Constraints) Clone() Constraints {
	if c == nil {
		return nil
	}
	ret := make(Constraints, len(c))
	for k, v := range c {
		ret[k] = v
	}
	return ret
}
