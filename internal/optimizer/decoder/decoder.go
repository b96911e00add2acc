// Package decoder turns an engine's raw variable values back into domain
// assignments and re-verifies them against the model's rules. A solver status
// is never taken on trust: every decoded solution is checked for single
// assignment, own-list membership, closed-or-in-range occupancy, indicator
// consistency and agreement with the reported objective.
package decoder

import (
	"errors"
	"fmt"
	"math"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/builder"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
	"github.com/noah-isme/workshop-scheduler/internal/solver"
)

// ErrNoSolution is returned when the result carries no values to decode.
var ErrNoSolution = errors.New("solver result has no solution")

const (
	DefaultAbsTolerance = 1e-6
	DefaultRelTolerance = 1e-9
)

// Assignment places one requester in one slot.
type Assignment struct {
	RequesterID int     `json:"requesterId"`
	Label       string  `json:"label,omitempty"`
	Slot        int     `json:"slot"`
	Rank        int     `json:"rank"`
	Size        int     `json:"size"`
	Score       float64 `json:"score"`
}

// SlotState is the realised state of one slot.
type SlotState struct {
	Slot      int           `json:"slot"`
	Open      bool          `json:"open"`
	Occupancy int           `json:"occupancy"`
	Groups    int           `json:"groups"`
	Bounds    policy.Bounds `json:"bounds"`
}

// Solution is a validated assignment set.
type Solution struct {
	Status            solver.Status `json:"-"`
	Assignments       []Assignment  `json:"assignments"`
	Unassigned        []int         `json:"unassigned"`
	Slots             []SlotState   `json:"slots"`
	Satisfaction      float64       `json:"satisfaction"`
	ReportedObjective float64       `json:"reportedObjective"`
}

// SlotOf returns the slot requester id was assigned to.
func (s *Solution) SlotOf(requesterID int) (int, bool) {
	for _, a := range s.Assignments {
		if a.RequesterID == requesterID {
			return a.Slot, true
		}
	}
	return 0, false
}

// Occupancy returns the realised occupancy of slot.
func (s *Solution) Occupancy(slot int) int {
	for _, st := range s.Slots {
		if st.Slot == slot {
			return st.Occupancy
		}
	}
	return 0
}

type options struct {
	abs, rel float64
}

// Option tunes Decode.
type Option func(*options)

// WithTolerance sets the absolute and relative objective tolerances.
func WithTolerance(abs, rel float64) Option {
	return func(o *options) {
		if abs >= 0 {
			o.abs = abs
		}
		if rel >= 0 {
			o.rel = rel
		}
	}
}

// Decode validates res against f and returns the domain solution. Any broken
// rule yields a *SolutionIntegrityError.
func Decode(f *builder.Formulation, res *solver.Result, opts ...Option) (*Solution, error) {
	o := options{abs: DefaultAbsTolerance, rel: DefaultRelTolerance}
	for _, opt := range opts {
		opt(&o)
	}
	if res == nil || !res.Status.HasSolution() || res.Values == nil {
		return nil, ErrNoSolution
	}
	m := f.Model

	for id := range res.Values {
		if id < 0 || int(id) >= m.NumVars() {
			return nil, &SolutionIntegrityError{Kind: KindVariable, Reason: fmt.Sprintf("value for unknown variable %d", id)}
		}
	}
	for _, v := range m.Variables {
		if _, ok := res.Values[v.ID]; !ok {
			return nil, missing(f, v)
		}
	}

	sol := &Solution{Status: res.Status, ReportedObjective: res.Objective}
	placed := make(map[int]int, f.Index.Len())
	for _, r := range f.Index.Requesters() {
		var chosen []builder.Edge
		for _, id := range f.EdgeVars(r.ID) {
			if res.Values[id] {
				e, _ := f.Edge(id)
				chosen = append(chosen, e)
			}
		}
		switch len(chosen) {
		case 0:
			sol.Unassigned = append(sol.Unassigned, r.ID)
		case 1:
			e := chosen[0]
			placed[r.ID] = e.Slot
			sol.Assignments = append(sol.Assignments, Assignment{
				RequesterID: r.ID,
				Label:       r.Label,
				Slot:        e.Slot,
				Rank:        e.Rank,
				Size:        e.Size,
				Score:       e.Score,
			})
			sol.Satisfaction += e.Score
		default:
			slots := make([]int, len(chosen))
			for i, e := range chosen {
				slots[i] = e.Slot
			}
			return nil, &SolutionIntegrityError{Kind: KindRequester, RequesterID: r.ID,
				Reason: fmt.Sprintf("assigned to %d slots %v", len(chosen), slots)}
		}
	}

	report := Audit(f.Index, f.Policy, placed)
	if len(report.Violations) > 0 {
		return nil, report.Violations[0].Err()
	}
	sol.Slots = report.Slots

	for i, st := range sol.Slots {
		z, _ := f.OpenVar(st.Slot)
		open := res.Values[z]
		switch {
		case open && st.Occupancy == 0:
			return nil, &SolutionIntegrityError{Kind: KindSlot, Slot: st.Slot, Reason: "open indicator set with zero occupancy"}
		case !open && st.Occupancy > 0:
			return nil, &SolutionIntegrityError{Kind: KindSlot, Slot: st.Slot,
				Reason: fmt.Sprintf("open indicator clear with occupancy %d", st.Occupancy)}
		}
		sol.Slots[i].Open = open
	}

	diff := math.Abs(sol.Satisfaction - res.Objective)
	scale := math.Max(math.Abs(sol.Satisfaction), math.Abs(res.Objective))
	if diff > o.abs+o.rel*scale {
		return nil, &SolutionIntegrityError{Kind: KindObjective,
			Reason: fmt.Sprintf("decoded satisfaction %g differs from reported objective %g", sol.Satisfaction, res.Objective)}
	}
	return sol, nil
}

func missing(f *builder.Formulation, v milp.Variable) error {
	if e, ok := f.Edge(v.ID); ok && v.Kind == milp.KindAssignment {
		return &SolutionIntegrityError{Kind: KindRequester, RequesterID: e.RequesterID, Slot: e.Slot, HasSlot: true,
			Reason: fmt.Sprintf("no value for variable %s", v.Name)}
	}
	return &SolutionIntegrityError{Kind: KindVariable, Reason: fmt.Sprintf("no value for variable %s", v.Name)}
}
