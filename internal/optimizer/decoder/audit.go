package decoder

import (
	"fmt"
	"sort"

	"github.com/noah-isme/workshop-scheduler/internal/optimizer/policy"
	"github.com/noah-isme/workshop-scheduler/internal/optimizer/preference"
)

// Violation is one broken rule found by Audit.
type Violation struct {
	Kind        Kind
	RequesterID int
	Slot        int
	HasSlot     bool
	Reason      string
}

// Err converts v into the error Decode reports.
func (v Violation) Err() *SolutionIntegrityError {
	return &SolutionIntegrityError{Kind: v.Kind, RequesterID: v.RequesterID, Slot: v.Slot, HasSlot: v.HasSlot, Reason: v.Reason}
}

// AuditReport lists realised slot states and every violation found.
type AuditReport struct {
	Slots      []SlotState
	Violations []Violation
}

// Audit checks a requester → slot placement against idx and p without a model.
// It is used both by Decode and for placements produced elsewhere, such as a
// submission file.
func Audit(idx *preference.Index, p policy.Policy, placed map[int]int) AuditReport {
	var report AuditReport
	occupancy := make(map[int]int, p.NumSlots())
	groups := make(map[int]int, p.NumSlots())

	for _, r := range idx.Requesters() {
		slot, ok := placed[r.ID]
		if !ok {
			continue
		}
		if _, listed := idx.Score(r.ID, slot); !listed {
			report.Violations = append(report.Violations, Violation{Kind: KindRequester, RequesterID: r.ID, Slot: slot, HasSlot: true,
				Reason: "assigned to a slot outside its preference list"})
			continue
		}
		occupancy[slot] += r.Size
		groups[slot]++
	}
	unknown := make([]int, 0)
	for id := range placed {
		if _, ok := idx.Requester(id); !ok {
			unknown = append(unknown, id)
		}
	}
	sort.Ints(unknown)
	for _, id := range unknown {
		report.Violations = append(report.Violations, Violation{Kind: KindRequester, RequesterID: id, Slot: placed[id], HasSlot: true,
			Reason: "unknown requester"})
	}

	for _, slot := range p.Slots() {
		b := p.Bounds(slot)
		occ := occupancy[slot]
		report.Slots = append(report.Slots, SlotState{
			Slot:      slot,
			Open:      occ > 0,
			Occupancy: occ,
			Groups:    groups[slot],
			Bounds:    b,
		})
		if !b.Contains(occ) {
			report.Violations = append(report.Violations, Violation{Kind: KindSlot, Slot: slot,
				Reason: fmt.Sprintf("occupancy %d outside [%d, %d]", occ, b.Min, b.Max)})
		}
	}
	return report
}
