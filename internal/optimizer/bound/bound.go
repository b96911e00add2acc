// Package bound computes the linear-programming relaxation of a binary model.
// For a maximisation it is an upper bound on any integer objective and turns
// a feasible incumbent into a reportable optimality gap.
package bound

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
)

const (
	// DefaultMaxVars caps the relaxation size; the tableau is dense.
	DefaultMaxVars = 1000
	tolerance      = 1e-10
)

// ErrInfeasible means even the relaxation has no solution.
var ErrInfeasible = errors.New("relaxation is infeasible")

// Bound is the relaxed objective of a model.
type Bound struct {
	Value   float64 `json:"value"`
	Skipped bool    `json:"skipped,omitempty"`
	Reason  string  `json:"reason,omitempty"`
}

// Relax solves the relaxation of m with every binary widened to [0, 1].
// Models with more than maxVars variables are skipped rather than solved.
func Relax(ctx context.Context, m *milp.Model, maxVars int) (Bound, error) {
	if maxVars <= 0 {
		maxVars = DefaultMaxVars
	}
	n := m.NumVars()
	if n == 0 {
		return Bound{}, nil
	}
	if n > maxVars {
		return Bound{Skipped: true, Reason: fmt.Sprintf("%d variables exceed relaxation cap %d", n, maxVars)}, nil
	}
	if err := ctx.Err(); err != nil {
		return Bound{}, err
	}

	rows := 0
	for _, c := range m.Constraints {
		if len(c.Terms) == 0 {
			if !emptyRowHolds(c) {
				return Bound{}, fmt.Errorf("%w: row %s", ErrInfeasible, c.Name)
			}
			continue
		}
		rows++
	}

	// Standard form: one row per constraint plus x ≤ 1 per variable, each
	// inequality closed by its own slack column.
	mRows := rows + n
	cols := n
	for _, c := range m.Constraints {
		if len(c.Terms) > 0 && c.Sense != milp.EQ {
			cols++
		}
	}
	cols += n

	A := mat.NewDense(mRows, cols, nil)
	b := make([]float64, mRows)
	basis := make([]int, 0, mRows)
	feasibleBasis := true

	r, slack := 0, n
	for _, c := range m.Constraints {
		if len(c.Terms) == 0 {
			continue
		}
		for _, t := range c.Terms {
			A.Set(r, int(t.Var), t.Coef)
		}
		b[r] = c.RHS
		switch c.Sense {
		case milp.LE:
			A.Set(r, slack, 1)
			basis = append(basis, slack)
			feasibleBasis = feasibleBasis && c.RHS >= 0
			slack++
		case milp.GE:
			A.Set(r, slack, -1)
			basis = append(basis, slack)
			feasibleBasis = feasibleBasis && c.RHS <= 0
			slack++
		default:
			feasibleBasis = false
		}
		r++
	}
	for v := 0; v < n; v++ {
		A.Set(r, v, 1)
		A.Set(r, slack, 1)
		b[r] = 1
		basis = append(basis, slack)
		r++
		slack++
	}

	c := make([]float64, cols)
	for _, t := range m.Objective {
		if m.Maximize {
			c[t.Var] -= t.Coef
		} else {
			c[t.Var] += t.Coef
		}
	}

	var initial []int
	if feasibleBasis {
		initial = basis
	}
	opt, _, err := lp.Simplex(c, A, b, tolerance, initial)
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return Bound{}, ErrInfeasible
	case err != nil:
		return Bound{}, fmt.Errorf("relaxation: %w", err)
	}
	if m.Maximize {
		opt = -opt
	}
	return Bound{Value: opt}, nil
}

// Gap returns the relative distance between an incumbent objective and its
// bound, using max(|bound|, |objective|, 1) as the denominator.
func Gap(b Bound, objective float64) (float64, bool) {
	if b.Skipped {
		return 0, false
	}
	den := math.Max(1, math.Max(math.Abs(b.Value), math.Abs(objective)))
	gap := math.Abs(b.Value-objective) / den
	if gap < tolerance {
		gap = 0
	}
	return gap, true
}

func emptyRowHolds(c milp.Constraint) bool {
	switch c.Sense {
	case milp.LE:
		return c.RHS >= 0
	case milp.GE:
		return c.RHS <= 0
	default:
		return c.RHS == 0
	}
}
