package version

import (
	"errors"
	"fmt"
)

// Operator is one of the five Debian relational operators.
type Operator string

const (
	OpStrictlyLess    Operator = "<<"
	OpLessOrEqual     Operator = "<="
	OpEqual           Operator = "="
	OpGreaterOrEqual  Operator = ">="
	OpStrictlyGreater Operator = ">>"
)

// ErrInvalidOperator is returned for an operator outside the five above.
var ErrInvalidOperator = errors.New("invalid version operator")

// Constraint is a (operator, version) pair, e.g. ">= 1.2.3-1".
type Constraint struct {
	Op      Operator
	Version Version
}

// ParseOperator validates an operator token.
func ParseOperator(s string) (Operator, error) {
	switch Operator(s) {
	case OpStrictlyLess, OpLessOrEqual, OpEqual, OpGreaterOrEqual, OpStrictlyGreater:
		return Operator(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOperator, s)
	}
}

// Meets reports whether installed satisfies the constraint, per the decoding
// table in spec §4.1.
func (c Constraint) Meets(installed Version) bool {
	cmp := Compare(installed, c.Version)
	switch c.Op {
	case OpStrictlyLess:
		return cmp < 0
	case OpLessOrEqual:
		return cmp <= 0
	case OpEqual:
		return cmp == 0
	case OpGreaterOrEqual:
		return cmp >= 0
	case OpStrictlyGreater:
		return cmp > 0
	default:
		return false
	}
}

// String renders "op version", e.g. ">= 1.0-1".
func (c Constraint) String() string {
	return string(c.Op) + " " + c.Version.String()
}

// Dependency is a single package name with an optional version constraint.
type Dependency struct {
	Name       string
	Constraint *Constraint
}

// String renders "name" or "name (op version)".
func (d Dependency) String() string {
	if d.Constraint == nil {
		return d.Name
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.Constraint.String())
}

// AlternativeGroup is a non-empty set of Dependency alternatives joined by "|".
type AlternativeGroup []Dependency

// String renders alternatives joined by " | ".
func (g AlternativeGroup) String() string {
	s := ""
	for i, d := range g {
		if i > 0 {
			s += " | "
		}
		s += d.String()
	}
	return s
}

// DependencyList is an ordered list of alternative-groups, textually joined
// by ", ". Invariant (spec §3): within a group, names are unique after
// pruning; empty groups are elided from the textual form and from Groups().
type DependencyList struct {
	groups []AlternativeGroup
}

// NewDependencyList builds a DependencyList from raw groups, eliding empty
// groups and de-duplicating names within each surviving group (first
// occurrence wins).
func NewDependencyList(raw []AlternativeGroup) DependencyList {
	var dl DependencyList
	for _, g := range raw {
		if len(g) == 0 {
			continue
		}
		seen := make(map[string]bool, len(g))
		var deduped AlternativeGroup
		for _, d := range g {
			if seen[d.Name] {
				continue
			}
			seen[d.Name] = true
			deduped = append(deduped, d)
		}
		dl.groups = append(dl.groups, deduped)
	}
	return dl
}

// Groups returns the non-empty alternative-groups in declaration order.
func (dl DependencyList) Groups() []AlternativeGroup {
	return dl.groups
}

// Add appends a single-dependency group.
func (dl *DependencyList) Add(d Dependency) {
	dl.groups = append(dl.groups, AlternativeGroup{d})
}

// AddGroup appends a multi-alternative group, applying the same elision and
// de-duplication rules as NewDependencyList.
func (dl *DependencyList) AddGroup(g AlternativeGroup) {
	merged := NewDependencyList([]AlternativeGroup{g})
	dl.groups = append(dl.groups, merged.groups...)
}

// String renders the textual control-file form: groups joined by ", ",
// alternatives within a group joined by " | ".
func (dl DependencyList) String() string {
	s := ""
	for i, g := range dl.groups {
		if i > 0 {
			s += ", "
		}
		s += g.String()
	}
	return s
}

// Len returns the number of non-empty groups.
func (dl DependencyList) Len() int {
	return len(dl.groups)
}
