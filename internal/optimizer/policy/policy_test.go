package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := Default()
	assert.Equal(t, 10, p.MaxChoices())
	assert.Equal(t, 100, p.NumSlots())
	assert.True(t, p.Has(1))
	assert.True(t, p.Has(100))
	assert.False(t, p.Has(0))
	assert.Equal(t, Bounds{Min: 100, Max: 300}, p.Bounds(42))
}

func TestNewRejectsInvalidSpecs(t *testing.T) {
	cases := map[string]Spec{
		"zero choices":      {MaxChoices: 0, MinOccupancy: 1, MaxOccupancy: 2, Slots: []int{1}},
		"zero minimum":      {MaxChoices: 1, MinOccupancy: 0, MaxOccupancy: 2, Slots: []int{1}},
		"inverted bounds":   {MaxChoices: 1, MinOccupancy: 5, MaxOccupancy: 2, Slots: []int{1}},
		"no slots":          {MaxChoices: 1, MinOccupancy: 1, MaxOccupancy: 2},
		"duplicate slot":    {MaxChoices: 1, MinOccupancy: 1, MaxOccupancy: 2, Slots: []int{1, 1}},
		"unknown override":  {MaxChoices: 1, MinOccupancy: 1, MaxOccupancy: 2, Slots: []int{1}, Overrides: []Override{{Slot: 9, Min: 1, Max: 1}}},
		"bad override":      {MaxChoices: 1, MinOccupancy: 1, MaxOccupancy: 2, Slots: []int{1}, Overrides: []Override{{Slot: 1, Min: 3, Max: 1}}},
		"repeated override": {MaxChoices: 1, MinOccupancy: 1, MaxOccupancy: 2, Slots: []int{1}, Overrides: []Override{{Slot: 1, Min: 1, Max: 1}, {Slot: 1, Min: 1, Max: 2}}},
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPolicy))
		})
	}
}

func TestOverridesAndSpecRoundTrip(t *testing.T) {
	spec := Spec{
		MaxChoices:   3,
		MinOccupancy: 10,
		MaxOccupancy: 20,
		Slots:        []int{5, 3, 9},
		Overrides:    []Override{{Slot: 9, Min: 1, Max: 4}},
	}
	p, err := New(spec)
	require.NoError(t, err)

	assert.Equal(t, Bounds{Min: 1, Max: 4}, p.Bounds(9))
	assert.Equal(t, Bounds{Min: 10, Max: 20}, p.Bounds(3))
	pos, ok := p.Position(3)
	require.True(t, ok)
	assert.Equal(t, 1, pos)

	slots := p.Slots()
	slots[0] = 99
	assert.Equal(t, []int{5, 3, 9}, p.Slots())

	assert.Equal(t, spec, p.Spec())
}

func TestBoundsContains(t *testing.T) {
	b := Bounds{Min: 100, Max: 300}
	assert.True(t, b.Contains(0))
	assert.True(t, b.Contains(100))
	assert.True(t, b.Contains(300))
	assert.False(t, b.Contains(99))
	assert.False(t, b.Contains(1))
	assert.False(t, b.Contains(301))
}
