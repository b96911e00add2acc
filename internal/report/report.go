// Package report summarises a solve outcome as workshop capacity figures.
package report

import (
	"fmt"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/decoder"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/pipeline"
)

// Summary holds the capacity figures of one outcome.
type Summary struct {
	Kind         string   `json:"kind"`
	Status       string   `json:"status"`
	Engine       string   `json:"engine"`
	Fingerprint  string   `json:"fingerprint"`
	Slots        int      `json:"slots"`
	MinOccupancy int      `json:"minOccupancy"`
	MaxOccupancy int      `json:"maxOccupancy"`
	AvgOccupancy float64  `json:"avgOccupancy"`
	EmptySlots   int      `json:"emptySlots"`
	BelowMinimum int      `json:"belowMinimum"`
	OverMaximum  int      `json:"overMaximum"`
	Assigned     int      `json:"assigned"`
	Unassigned   int      `json:"unassigned"`
	People       int      `json:"people"`
	Satisfaction float64  `json:"satisfaction"`
	Bound        *float64 `json:"bound,omitempty"`
	Gap          *float64 `json:"gap,omitempty"`
}

// Summarize computes the summary of out. Occupancy figures are zero when the
// outcome carries no solution.
func Summarize(out *pipeline.Outcome) Summary {
	s := Summary{
		Kind:        string(out.Kind),
		Status:      out.Status.String(),
		Engine:      out.Engine,
		Fingerprint: out.Fingerprint.String(),
		Slots:       out.Stats.Slots,
	}
	if out.Bound != nil && !out.Bound.Skipped {
		v := out.Bound.Value
		s.Bound = &v
	}
	s.Gap = out.Gap
	if out.Solution != nil {
		fill(&s, out.Solution)
	}
	return s
}

// FromSolution summarises a solution without engine context.
func FromSolution(sol *decoder.Solution) Summary {
	var s Summary
	fill(&s, sol)
	return s
}

func fill(s *Summary, sol *decoder.Solution) {
	s.Slots = len(sol.Slots)
	s.Assigned = len(sol.Assignments)
	s.Unassigned = len(sol.Unassigned)
	s.Satisfaction = sol.Satisfaction
	s.MinOccupancy, s.MaxOccupancy = 0, 0
	total := 0
	for i, st := range sol.Slots {
		occ := st.Occupancy
		total += occ
		if i == 0 || occ < s.MinOccupancy {
			s.MinOccupancy = occ
		}
		if occ > s.MaxOccupancy {
			s.MaxOccupancy = occ
		}
		switch {
		case occ == 0:
			s.EmptySlots++
		case occ < st.Bounds.Min:
			s.BelowMinimum++
		case occ > st.Bounds.Max:
			s.OverMaximum++
		}
	}
	s.People = total
	if len(sol.Slots) > 0 {
		s.AvgOccupancy = float64(total) / float64(len(sol.Slots))
	}
}

// Line is one labelled figure of a summary.
type Line struct {
	Label string
	Value string
}

// Lines returns the summary as ordered label/value pairs.
func (s Summary) Lines() []Line {
	lines := []Line{
		{"Outcome", s.Kind},
		{"Engine status", s.Status},
		{"Engine", s.Engine},
		{"Model fingerprint", s.Fingerprint},
		{"Families assigned", fmt.Sprintf("%d", s.Assigned)},
		{"Families without slot", fmt.Sprintf("%d", s.Unassigned)},
		{"Total satisfaction", fmt.Sprintf("%.2f", s.Satisfaction)},
		{"Minimum occupancy", fmt.Sprintf("%d", s.MinOccupancy)},
		{"Maximum occupancy", fmt.Sprintf("%d", s.MaxOccupancy)},
		{"Average occupancy", fmt.Sprintf("%.1f", s.AvgOccupancy)},
		{"Empty days", fmt.Sprintf("%d", s.EmptySlots)},
		{"Days below minimum", fmt.Sprintf("%d", s.BelowMinimum)},
		{"Days over maximum", fmt.Sprintf("%d", s.OverMaximum)},
	}
	if s.Bound != nil {
		lines = append(lines, Line{"Relaxation bound", fmt.Sprintf("%.2f", *s.Bound)})
	}
	if s.Gap != nil {
		lines = append(lines, Line{"Optimality gap", fmt.Sprintf("%.2f%%", *s.Gap*100)})
	}
	return lines
}
