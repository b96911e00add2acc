// Package preference indexes each requester's ranked slot choices. The index is
// the only source of (requester, slot) pairs that may become decision variables,
// so every record is validated on the way in and nothing is silently dropped.
package preference

import (
	"fmt"
	"math"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
)

// Choice is one ranked entry of a preference list.
type Choice struct {
	Slot  int     `json:"slot"`
	Score float64 `json:"score"`
}

// Record is the raw per-requester input handed over by a loader.
type Record struct {
	RequesterID int      `json:"requesterId"`
	Label       string   `json:"label,omitempty"`
	Size        int      `json:"size"`
	Choices     []Choice `json:"choices"`
}

// Requester is a validated record. Choices keep the caller's rank order.
type Requester struct {
	ID      int
	Label   string
	Size    int
	Choices []Choice
}

// Interest is an entry of the reverse slot → requester mapping.
type Interest struct {
	RequesterID int
	Rank        int
	Size        int
	Score       float64
}

// Index is immutable after Build; slices returned by its accessors must not be modified.
type Index struct {
	requesters []Requester
	byID       map[int]int
	bySlot     map[int][]Interest
	demand     map[int]int
	edges      int
}

// Build validates records against p and indexes them in input order.
func Build(records []Record, p policy.Policy) (*Index, error) {
	idx := &Index{
		requesters: make([]Requester, 0, len(records)),
		byID:       make(map[int]int, len(records)),
		bySlot:     make(map[int][]Interest),
		demand:     make(map[int]int),
	}

	for _, rec := range records {
		if err := validate(rec, p); err != nil {
			return nil, err
		}
		if _, dup := idx.byID[rec.RequesterID]; dup {
			return nil, &MalformedPreferenceError{RequesterID: rec.RequesterID, Reason: ReasonDuplicateRequester}
		}

		choices := make([]Choice, len(rec.Choices))
		copy(choices, rec.Choices)
		idx.byID[rec.RequesterID] = len(idx.requesters)
		idx.requesters = append(idx.requesters, Requester{
			ID:      rec.RequesterID,
			Label:   rec.Label,
			Size:    rec.Size,
			Choices: choices,
		})

		for rank, c := range choices {
			idx.bySlot[c.Slot] = append(idx.bySlot[c.Slot], Interest{
				RequesterID: rec.RequesterID,
				Rank:        rank,
				Size:        rec.Size,
				Score:       c.Score,
			})
			idx.demand[c.Slot] += rec.Size
		}
		idx.edges += len(choices)
	}

	return idx, nil
}

func validate(rec Record, p policy.Policy) error {
	if rec.Size <= 0 {
		return &MalformedPreferenceError{RequesterID: rec.RequesterID, Reason: ReasonNonPositiveSize,
			Detail: fmt.Sprintf("size %d", rec.Size)}
	}
	if len(rec.Choices) > p.MaxChoices() {
		return &MalformedPreferenceError{RequesterID: rec.RequesterID, Reason: ReasonTooManyChoices,
			Detail: fmt.Sprintf("%d choices, limit %d", len(rec.Choices), p.MaxChoices())}
	}
	seen := make(map[int]struct{}, len(rec.Choices))
	for _, c := range rec.Choices {
		if !p.Has(c.Slot) {
			return &MalformedPreferenceError{RequesterID: rec.RequesterID, Slot: c.Slot, HasSlot: true, Reason: ReasonUnknownSlot}
		}
		if _, dup := seen[c.Slot]; dup {
			return &MalformedPreferenceError{RequesterID: rec.RequesterID, Slot: c.Slot, HasSlot: true, Reason: ReasonDuplicateSlot}
		}
		if math.IsNaN(c.Score) || math.IsInf(c.Score, 0) {
			return &MalformedPreferenceError{RequesterID: rec.RequesterID, Slot: c.Slot, HasSlot: true, Reason: ReasonInvalidScore}
		}
		seen[c.Slot] = struct{}{}
	}
	return nil
}

// Len returns the number of requesters.
func (i *Index) Len() int { return len(i.requesters) }

// EdgeCount is the sum of all preference-list lengths.
func (i *Index) EdgeCount() int { return i.edges }

// Requesters returns requesters in input order.
func (i *Index) Requesters() []Requester { return i.requesters }

// Requester looks up a requester by id.
func (i *Index) Requester(id int) (Requester, bool) {
	pos, ok := i.byID[id]
	if !ok {
		return Requester{}, false
	}
	return i.requesters[pos], true
}

// Interested lists the requesters that ranked slot, in input order.
func (i *Index) Interested(slot int) []Interest { return i.bySlot[slot] }

// Demand is the occupancy slot would reach if every interested requester were assigned to it.
func (i *Index) Demand(slot int) int { return i.demand[slot] }

// Score returns the score requester id attached to slot.
func (i *Index) Score(id, slot int) (float64, bool) {
	r, ok := i.Requester(id)
	if !ok {
		return 0, false
	}
	for _, c := range r.Choices {
		if c.Slot == slot {
			return c.Score, true
		}
	}
	return 0, false
}
