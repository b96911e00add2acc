// Package milp describes binary integer programs in an engine-neutral form.
//
// A Model is a flat list of binary variables, a linear objective and a set of
// linear constraints. Variables are addressed by a dense VarID that doubles as
// their position in Model.Variables, so backends can translate a model into
// their own numbering without hashing. Constraints carry a Tag and a Subject so
// that callers can tell which domain rule a row encodes, but solvers treat every
// row the same way. Constraint order carries no meaning.
package milp

import (
	"fmt"
	"math"
)

// VarID indexes Model.Variables.
type VarID int

// VarKind tells apart the two families of binaries a model may contain.
type VarKind uint8

const (
	KindAssignment VarKind = iota + 1
	KindOpen
)

func (k VarKind) String() string {
	switch k {
	case KindAssignment:
		return "assignment"
	case KindOpen:
		return "open"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Variable is a named binary decision variable.
type Variable struct {
	ID   VarID
	Name string
	Kind VarKind
}

// Term is one coefficient × variable product.
type Term struct {
	Var  VarID
	Coef float64
}

// Sense is the relation of a constraint row.
type Sense uint8

const (
	LE Sense = iota + 1
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	case EQ:
		return "="
	default:
		return "?"
	}
}

// Tag names the rule a constraint row encodes.
type Tag uint8

const (
	TagAtMostOne Tag = iota + 1
	TagSemicontinuousLower
	TagSemicontinuousUpper
)

func (t Tag) String() string {
	switch t {
	case TagAtMostOne:
		return "at-most-one"
	case TagSemicontinuousLower:
		return "semicontinuous-lower"
	case TagSemicontinuousUpper:
		return "semicontinuous-upper"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Constraint is a linear row Σ Terms Sense RHS. Subject is the requester or
// slot the row belongs to, depending on Tag.
type Constraint struct {
	Name    string
	Tag     Tag
	Subject int
	Terms   []Term
	Sense   Sense
	RHS     float64
}

// Model is a binary integer program.
type Model struct {
	Name        string
	Maximize    bool
	Variables   []Variable
	Objective   []Term
	Constraints []Constraint
}

// NumVars returns the number of binaries.
func (m *Model) NumVars() int { return len(m.Variables) }

// CountKind returns how many variables have kind k.
func (m *Model) CountKind(k VarKind) int {
	n := 0
	for _, v := range m.Variables {
		if v.Kind == k {
			n++
		}
	}
	return n
}

// CountTag returns how many constraints carry tag t.
func (m *Model) CountTag(t Tag) int {
	n := 0
	for _, c := range m.Constraints {
		if c.Tag == t {
			n++
		}
	}
	return n
}

// Assignment maps variables to their realised value.
type Assignment map[VarID]bool

// ObjectiveValue evaluates the objective under a.
func (m *Model) ObjectiveValue(a Assignment) float64 {
	return evaluate(m.Objective, a)
}

// LHS evaluates the left-hand side of c under a.
func (c Constraint) LHS(a Assignment) float64 {
	return evaluate(c.Terms, a)
}

// Satisfied reports whether c holds under a within tol.
func (c Constraint) Satisfied(a Assignment, tol float64) bool {
	lhs := c.LHS(a)
	switch c.Sense {
	case LE:
		return lhs <= c.RHS+tol
	case GE:
		return lhs >= c.RHS-tol
	case EQ:
		return math.Abs(lhs-c.RHS) <= tol
	default:
		return false
	}
}

// Feasible returns the first constraint violated by a, if any.
func (m *Model) Feasible(a Assignment, tol float64) (Constraint, bool) {
	for _, c := range m.Constraints {
		if !c.Satisfied(a, tol) {
			return c, false
		}
	}
	return Constraint{}, true
}

func evaluate(terms []Term, a Assignment) float64 {
	var sum float64
	for _, t := range terms {
		if a[t.Var] {
			sum += t.Coef
		}
	}
	return sum
}
