package preference

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
)

func testPolicy(t *testing.T) policy.Policy {
	t.Helper()
	p, err := policy.New(policy.Spec{MaxChoices: 3, MinOccupancy: 1, MaxOccupancy: 10, Slots: policy.Range(1, 5)})
	require.NoError(t, err)
	return p
}

func TestBuildIndexesForwardAndReverse(t *testing.T) {
	records := []Record{
		{RequesterID: 7, Size: 4, Choices: []Choice{{Slot: 2, Score: 100}, {Slot: 5, Score: 90}}},
		{RequesterID: 3, Size: 2, Choices: []Choice{{Slot: 5, Score: 100}}},
		{RequesterID: 9, Size: 1},
	}
	idx, err := Build(records, testPolicy(t))
	require.NoError(t, err)

	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, 3, idx.EdgeCount())

	r, ok := idx.Requester(7)
	require.True(t, ok)
	assert.Equal(t, 4, r.Size)
	assert.Equal(t, []Choice{{Slot: 2, Score: 100}, {Slot: 5, Score: 90}}, r.Choices)

	assert.Equal(t, []Interest{
		{RequesterID: 7, Rank: 1, Size: 4, Score: 90},
		{RequesterID: 3, Rank: 0, Size: 2, Score: 100},
	}, idx.Interested(5))
	assert.Empty(t, idx.Interested(1))
	assert.Equal(t, 6, idx.Demand(5))

	score, ok := idx.Score(7, 5)
	require.True(t, ok)
	assert.Equal(t, 90.0, score)
	_, ok = idx.Score(3, 2)
	assert.False(t, ok)
}

func TestBuildCopiesCallerChoices(t *testing.T) {
	choices := []Choice{{Slot: 1, Score: 10}}
	idx, err := Build([]Record{{RequesterID: 1, Size: 1, Choices: choices}}, testPolicy(t))
	require.NoError(t, err)

	choices[0].Slot = 4
	r, _ := idx.Requester(1)
	assert.Equal(t, 1, r.Choices[0].Slot)
}

func TestBuildRejectsMalformedRecords(t *testing.T) {
	cases := []struct {
		name    string
		records []Record
		reason  Reason
		slot    int
	}{
		{"zero size", []Record{{RequesterID: 1, Size: 0}}, ReasonNonPositiveSize, 0},
		{"negative size", []Record{{RequesterID: 1, Size: -3}}, ReasonNonPositiveSize, 0},
		{"unknown slot", []Record{{RequesterID: 1, Size: 1, Choices: []Choice{{Slot: 6}}}}, ReasonUnknownSlot, 6},
		{"duplicate slot", []Record{{RequesterID: 1, Size: 1, Choices: []Choice{{Slot: 2}, {Slot: 2}}}}, ReasonDuplicateSlot, 2},
		{"too many", []Record{{RequesterID: 1, Size: 1, Choices: []Choice{{Slot: 1}, {Slot: 2}, {Slot: 3}, {Slot: 4}}}}, ReasonTooManyChoices, 0},
		{"nan score", []Record{{RequesterID: 1, Size: 1, Choices: []Choice{{Slot: 1, Score: math.NaN()}}}}, ReasonInvalidScore, 1},
		{"duplicate requester", []Record{{RequesterID: 1, Size: 1}, {RequesterID: 1, Size: 2}}, ReasonDuplicateRequester, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.records, testPolicy(t))
			var malformed *MalformedPreferenceError
			require.True(t, errors.As(err, &malformed), "got %v", err)
			assert.Equal(t, tc.reason, malformed.Reason)
			assert.Equal(t, 1, malformed.RequesterID)
			assert.Equal(t, tc.slot, malformed.Slot)
		})
	}
}

func TestMalformedPreferenceErrorMessage(t *testing.T) {
	err := &MalformedPreferenceError{RequesterID: 4, Slot: 12, HasSlot: true, Reason: ReasonDuplicateSlot}
	assert.Equal(t, "malformed preference for requester 4: duplicate slot (slot 12)", err.Error())

	err = &MalformedPreferenceError{RequesterID: 4, Reason: ReasonDuplicateRequester}
	assert.Equal(t, "malformed preference for requester 4: duplicate requester", err.Error())
}

func TestMalformedPreferenceNamesSlotZero(t *testing.T) {
	p, err := policy.New(policy.Spec{MaxChoices: 3, MinOccupancy: 1, MaxOccupancy: 10, Slots: policy.Range(0, 4)})
	require.NoError(t, err)

	_, err = Build([]Record{{RequesterID: 2, Size: 1, Choices: []Choice{{Slot: 0}, {Slot: 0}}}}, p)
	var malformed *MalformedPreferenceError
	require.True(t, errors.As(err, &malformed), "got %v", err)
	assert.True(t, malformed.HasSlot)
	assert.Equal(t, 0, malformed.Slot)
	assert.Equal(t, "malformed preference for requester 2: duplicate slot (slot 0)", err.Error())

	_, err = Build([]Record{{RequesterID: 2, Size: 0}}, p)
	require.True(t, errors.As(err, &malformed))
	assert.False(t, malformed.HasSlot)
	assert.NotContains(t, err.Error(), "(slot")
}
