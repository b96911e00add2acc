// Package builder turns a preference index and a capacity policy into a sparse
// binary program.
//
// Only pairs present in the index become assignment variables. They live in an
// arena whose position is the variable id; each requester owns a contiguous run
// of the arena in rank order, so the variable of (requester, rank) is found by
// offset rather than by hashing. One open indicator per slot follows the arena.
//
// Rows generated:
//
//	one_<r>: Σ x[r,·] <= 1                         for every requester with choices
//	lo_<d>:  Σ size·x[·,d] - L(d)·z[d] >= 0        for every slot
//	up_<d>:  Σ size·x[·,d] - U(d)·z[d] <= 0        for every slot
//
// The lo/up pair forces occupancy to zero while z is 0 and into [L, U] while z
// is 1. Both rows are emitted even for slots nobody listed.
package builder

import (
	"fmt"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/milp"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/preference"
)

// Edge is the domain meaning of one assignment variable.
type Edge struct {
	RequesterID int
	Slot        int
	Rank        int
	Size        int
	Score       float64
}

type span struct {
	start, end int
}

// Formulation is a built model together with the maps needed to decode it.
type Formulation struct {
	Model  *milp.Model
	Edges  []Edge
	Index  *preference.Index
	Policy policy.Policy

	open  []milp.VarID
	spans map[int]span
}

// OpenVar returns the open indicator of slot.
func (f *Formulation) OpenVar(slot int) (milp.VarID, bool) {
	pos, ok := f.Policy.Position(slot)
	if !ok {
		return 0, false
	}
	return f.open[pos], true
}

// EdgeVars returns the variables of requester's edges in rank order.
func (f *Formulation) EdgeVars(requesterID int) []milp.VarID {
	s, ok := f.spans[requesterID]
	if !ok {
		return nil
	}
	out := make([]milp.VarID, 0, s.end-s.start)
	for i := s.start; i < s.end; i++ {
		out = append(out, milp.VarID(i))
	}
	return out
}

// Edge returns the edge behind an assignment variable.
func (f *Formulation) Edge(id milp.VarID) (Edge, bool) {
	if id < 0 || int(id) >= len(f.Edges) {
		return Edge{}, false
	}
	return f.Edges[id], true
}

// UnreachableSlots lists slots whose total interested demand is below their
// minimum occupancy; such slots can only ever be closed.
func (f *Formulation) UnreachableSlots() []int {
	var out []int
	for _, slot := range f.Policy.Slots() {
		if f.Index.Demand(slot) < f.Policy.Bounds(slot).Min {
			out = append(out, slot)
		}
	}
	return out
}

type options struct {
	name    string
	workers int
}

// Option tunes Build.
type Option func(*options)

// WithName sets the model name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithWorkers bounds the goroutines used for per-slot rows.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// Build generates the formulation. The result is identical for identical inputs
// regardless of the worker count.
func Build(idx *preference.Index, p policy.Policy, opts ...Option) (*Formulation, error) {
	o := options{name: "workshop", workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers <= 0 {
		o.workers = 1
	}
	if idx == nil {
		return nil, &ModelConstructionError{Reason: "preference index is nil"}
	}
	if p.NumSlots() == 0 {
		return nil, &ModelConstructionError{Reason: "policy has no slots"}
	}

	nEdges := idx.EdgeCount()
	slots := p.Slots()
	f := &Formulation{
		Index:  idx,
		Policy: p,
		Edges:  make([]Edge, 0, nEdges),
		open:   make([]milp.VarID, len(slots)),
		spans:  make(map[int]span, idx.Len()),
	}
	m := &milp.Model{
		Name:      o.name,
		Maximize:  true,
		Variables: make([]milp.Variable, 0, nEdges+len(slots)),
		Objective: make([]milp.Term, 0, nEdges),
	}

	withChoices := 0
	for _, r := range idx.Requesters() {
		start := len(f.Edges)
		for rank, c := range r.Choices {
			if !p.Has(c.Slot) {
				return nil, &ModelConstructionError{Slot: c.Slot, HasSlot: true,
					Reason: fmt.Sprintf("requester %d lists a slot outside the policy", r.ID)}
			}
			id := milp.VarID(len(m.Variables))
			m.Variables = append(m.Variables, milp.Variable{ID: id, Name: edgeName(r.ID, c.Slot), Kind: milp.KindAssignment})
			m.Objective = append(m.Objective, milp.Term{Var: id, Coef: c.Score})
			f.Edges = append(f.Edges, Edge{RequesterID: r.ID, Slot: c.Slot, Rank: rank, Size: r.Size, Score: c.Score})
		}
		f.spans[r.ID] = span{start: start, end: len(f.Edges)}
		if len(r.Choices) > 0 {
			withChoices++
		}
	}
	for pos, slot := range slots {
		id := milp.VarID(len(m.Variables))
		m.Variables = append(m.Variables, milp.Variable{ID: id, Name: "z_" + label(slot), Kind: milp.KindOpen})
		f.open[pos] = id
	}

	m.Constraints = make([]milp.Constraint, withChoices+2*len(slots))
	row := 0
	for _, r := range idx.Requesters() {
		s := f.spans[r.ID]
		if s.end == s.start {
			continue
		}
		terms := make([]milp.Term, 0, s.end-s.start)
		for i := s.start; i < s.end; i++ {
			terms = append(terms, milp.Term{Var: milp.VarID(i), Coef: 1})
		}
		m.Constraints[row] = milp.Constraint{
			Name:    "one_" + label(r.ID),
			Tag:     milp.TagAtMostOne,
			Subject: r.ID,
			Terms:   terms,
			Sense:   milp.LE,
			RHS:     1,
		}
		row++
	}

	var g errgroup.Group
	g.SetLimit(o.workers)
	base := row
	for pos, slot := range slots {
		g.Go(func() error {
			lo, up, err := f.slotRows(slot, f.open[pos])
			if err != nil {
				return err
			}
			m.Constraints[base+2*pos] = lo
			m.Constraints[base+2*pos+1] = up
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, &ModelConstructionError{Reason: err.Error()}
	}
	f.Model = m
	return f, nil
}

func (f *Formulation) slotRows(slot int, open milp.VarID) (milp.Constraint, milp.Constraint, error) {
	bounds := f.Policy.Bounds(slot)
	interested := f.Index.Interested(slot)
	occupancy := make([]milp.Term, 0, len(interested))
	for _, in := range interested {
		s, ok := f.spans[in.RequesterID]
		if !ok || s.start+in.Rank >= s.end {
			return milp.Constraint{}, milp.Constraint{}, &ModelConstructionError{Slot: slot, HasSlot: true,
				Reason: fmt.Sprintf("requester %d is indexed for the slot but has no matching edge", in.RequesterID)}
		}
		occupancy = append(occupancy, milp.Term{Var: milp.VarID(s.start + in.Rank), Coef: float64(in.Size)})
	}

	lower := make([]milp.Term, len(occupancy), len(occupancy)+1)
	copy(lower, occupancy)
	lower = append(lower, milp.Term{Var: open, Coef: -float64(bounds.Min)})
	upper := append(occupancy, milp.Term{Var: open, Coef: -float64(bounds.Max)})

	name := label(slot)
	return milp.Constraint{
			Name: "lo_" + name, Tag: milp.TagSemicontinuousLower, Subject: slot,
			Terms: lower, Sense: milp.GE, RHS: 0,
		}, milp.Constraint{
			Name: "up_" + name, Tag: milp.TagSemicontinuousUpper, Subject: slot,
			Terms: upper, Sense: milp.LE, RHS: 0,
		}, nil
}

func edgeName(requesterID, slot int) string {
	return "x_" + label(requesterID) + "_" + label(slot)
}

// label keeps LP identifiers free of '-'.
func label(i int) string {
	if i < 0 {
		return "n" + strconv.Itoa(-i)
	}
	return strconv.Itoa(i)
}
