package milp

import (
	"fmt"
	"math"
)

// ValidationError reports a structurally broken model.
type ValidationError struct {
	Where  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid model at %s: %s", e.Where, e.Reason)
}

// Validate checks that ids are dense, names unique, every term references an
// existing variable at most once per row and every number is finite.
func (m *Model) Validate() error {
	names := make(map[string]struct{}, len(m.Variables))
	for i, v := range m.Variables {
		where := fmt.Sprintf("variable %d", i)
		if v.ID != VarID(i) {
			return &ValidationError{Where: where, Reason: fmt.Sprintf("id %d does not match position", v.ID)}
		}
		if v.Name == "" {
			return &ValidationError{Where: where, Reason: "empty name"}
		}
		if _, dup := names[v.Name]; dup {
			return &ValidationError{Where: where, Reason: fmt.Sprintf("duplicate name %q", v.Name)}
		}
		names[v.Name] = struct{}{}
	}

	if err := m.checkTerms("objective", m.Objective); err != nil {
		return err
	}
	rows := make(map[string]struct{}, len(m.Constraints))
	for _, c := range m.Constraints {
		where := fmt.Sprintf("constraint %q", c.Name)
		if c.Name == "" {
			return &ValidationError{Where: "constraint", Reason: "empty name"}
		}
		if _, dup := rows[c.Name]; dup {
			return &ValidationError{Where: where, Reason: "duplicate name"}
		}
		rows[c.Name] = struct{}{}
		if c.Sense != LE && c.Sense != GE && c.Sense != EQ {
			return &ValidationError{Where: where, Reason: "unknown sense"}
		}
		if !finite(c.RHS) {
			return &ValidationError{Where: where, Reason: "right-hand side is not finite"}
		}
		if err := m.checkTerms(where, c.Terms); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) checkTerms(where string, terms []Term) error {
	seen := make(map[VarID]struct{}, len(terms))
	for _, t := range terms {
		if t.Var < 0 || int(t.Var) >= len(m.Variables) {
			return &ValidationError{Where: where, Reason: fmt.Sprintf("unknown variable %d", t.Var)}
		}
		if _, dup := seen[t.Var]; dup {
			return &ValidationError{Where: where, Reason: fmt.Sprintf("variable %s repeated", m.Variables[t.Var].Name)}
		}
		seen[t.Var] = struct{}{}
		if !finite(t.Coef) {
			return &ValidationError{Where: where, Reason: fmt.Sprintf("coefficient of %s is not finite", m.Variables[t.Var].Name)}
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
