// Package policy holds the capacity rules a model is built against: the maximum
// preference-list length, the occupancy range an open slot must respect and the
// finite set of slot identifiers. A Policy is immutable once constructed so the
// same value can be shared by concurrent solves.
package policy

import (
	"errors"
	"fmt"
)

// ErrInvalidPolicy is wrapped by every validation failure returned from New.
var ErrInvalidPolicy = errors.New("invalid policy")

const (
	DefaultMaxChoices   = 10
	DefaultMinOccupancy = 100
	DefaultMaxOccupancy = 300
	DefaultFirstSlot    = 1
	DefaultLastSlot     = 100
)

// Bounds is the occupancy range of an open slot.
type Bounds struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Contains reports whether occupancy satisfies the closed-or-in-range rule.
func (b Bounds) Contains(occupancy int) bool {
	return occupancy == 0 || (occupancy >= b.Min && occupancy <= b.Max)
}

// Override replaces the global bounds for a single slot.
type Override struct {
	Slot int `json:"slot" yaml:"slot"`
	Min  int `json:"min" yaml:"min"`
	Max  int `json:"max" yaml:"max"`
}

// Spec is the mutable description a Policy is built from.
type Spec struct {
	MaxChoices   int        `json:"maxChoices" yaml:"maxChoices"`
	MinOccupancy int        `json:"minOccupancy" yaml:"minOccupancy"`
	MaxOccupancy int        `json:"maxOccupancy" yaml:"maxOccupancy"`
	Slots        []int      `json:"slots" yaml:"slots"`
	Overrides    []Override `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// Policy is the validated, read-only form of a Spec.
type Policy struct {
	maxChoices int
	defaults   Bounds
	slots      []int
	position   map[int]int
	overrides  map[int]Bounds
}

// New validates spec and returns the corresponding Policy.
func New(spec Spec) (Policy, error) {
	if spec.MaxChoices <= 0 {
		return Policy{}, fmt.Errorf("%w: max choices must be positive, got %d", ErrInvalidPolicy, spec.MaxChoices)
	}
	defaults := Bounds{Min: spec.MinOccupancy, Max: spec.MaxOccupancy}
	if err := checkBounds(defaults); err != nil {
		return Policy{}, err
	}
	if len(spec.Slots) == 0 {
		return Policy{}, fmt.Errorf("%w: at least one slot is required", ErrInvalidPolicy)
	}

	slots := make([]int, len(spec.Slots))
	position := make(map[int]int, len(spec.Slots))
	for i, slot := range spec.Slots {
		if _, dup := position[slot]; dup {
			return Policy{}, fmt.Errorf("%w: duplicate slot %d", ErrInvalidPolicy, slot)
		}
		position[slot] = i
		slots[i] = slot
	}

	overrides := make(map[int]Bounds, len(spec.Overrides))
	for _, o := range spec.Overrides {
		if _, ok := position[o.Slot]; !ok {
			return Policy{}, fmt.Errorf("%w: override for unknown slot %d", ErrInvalidPolicy, o.Slot)
		}
		if _, dup := overrides[o.Slot]; dup {
			return Policy{}, fmt.Errorf("%w: duplicate override for slot %d", ErrInvalidPolicy, o.Slot)
		}
		b := Bounds{Min: o.Min, Max: o.Max}
		if err := checkBounds(b); err != nil {
			return Policy{}, fmt.Errorf("slot %d: %w", o.Slot, err)
		}
		overrides[o.Slot] = b
	}

	return Policy{
		maxChoices: spec.MaxChoices,
		defaults:   defaults,
		slots:      slots,
		position:   position,
		overrides:  overrides,
	}, nil
}

// MustNew is New for statically known specs.
func MustNew(spec Spec) Policy {
	p, err := New(spec)
	if err != nil {
		panic(err)
	}
	return p
}

// Default mirrors the workshop defaults: 10 choices, days 1..100, 100..300 people.
func Default() Policy {
	return MustNew(DefaultSpec())
}

// DefaultSpec returns the Spec behind Default.
func DefaultSpec() Spec {
	return Spec{
		MaxChoices:   DefaultMaxChoices,
		MinOccupancy: DefaultMinOccupancy,
		MaxOccupancy: DefaultMaxOccupancy,
		Slots:        Range(DefaultFirstSlot, DefaultLastSlot),
	}
}

// Range returns the inclusive slot sequence first..last.
func Range(first, last int) []int {
	if last < first {
		return nil
	}
	out := make([]int, 0, last-first+1)
	for s := first; s <= last; s++ {
		out = append(out, s)
	}
	return out
}

func (p Policy) MaxChoices() int { return p.maxChoices }

func (p Policy) NumSlots() int { return len(p.slots) }

// Slots returns the slot identifiers in policy order.
func (p Policy) Slots() []int {
	out := make([]int, len(p.slots))
	copy(out, p.slots)
	return out
}

// Has reports whether slot belongs to the policy.
func (p Policy) Has(slot int) bool {
	_, ok := p.position[slot]
	return ok
}

// Position returns the index of slot in policy order.
func (p Policy) Position(slot int) (int, bool) {
	i, ok := p.position[slot]
	return i, ok
}

// Bounds returns the occupancy range for slot, honouring overrides.
func (p Policy) Bounds(slot int) Bounds {
	if b, ok := p.overrides[slot]; ok {
		return b
	}
	return p.defaults
}

// Spec returns a Spec that rebuilds an equivalent Policy.
func (p Policy) Spec() Spec {
	spec := Spec{
		MaxChoices:   p.maxChoices,
		MinOccupancy: p.defaults.Min,
		MaxOccupancy: p.defaults.Max,
		Slots:        p.Slots(),
	}
	for _, slot := range p.slots {
		if b, ok := p.overrides[slot]; ok {
			spec.Overrides = append(spec.Overrides, Override{Slot: slot, Min: b.Min, Max: b.Max})
		}
	}
	return spec
}

func checkBounds(b Bounds) error {
	if b.Min <= 0 {
		return fmt.Errorf("%w: minimum occupancy must be positive, got %d", ErrInvalidPolicy, b.Min)
	}
	if b.Max < b.Min {
		return fmt.Errorf("%w: maximum occupancy %d below minimum %d", ErrInvalidPolicy, b.Max, b.Min)
	}
	return nil
}
