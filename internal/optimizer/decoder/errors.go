package decoder

import "fmt"

// Kind tells which entity a SolutionIntegrityError is about.
type Kind string

const (
	KindRequester Kind = "requester"
	KindSlot      Kind = "slot"
	KindObjective Kind = "objective"
	KindVariable  Kind = "variable"
)

// SolutionIntegrityError means a decoded solution breaks a rule the model was
// supposed to enforce. It points at a modelling or engine defect and is never
// recoverable.
// HasSlot marks requester errors that concern a particular slot.
type SolutionIntegrityError struct {
	Kind        Kind
	RequesterID int
	Slot        int
	HasSlot     bool
	Reason      string
}

func (e *SolutionIntegrityError) Error() string {
	switch e.Kind {
	case KindRequester:
		if e.HasSlot {
			return fmt.Sprintf("solution integrity: requester %d, slot %d: %s", e.RequesterID, e.Slot, e.Reason)
		}
		return fmt.Sprintf("solution integrity: requester %d: %s", e.RequesterID, e.Reason)
	case KindSlot:
		return fmt.Sprintf("solution integrity: slot %d: %s", e.Slot, e.Reason)
	default:
		return fmt.Sprintf("solution integrity: %s", e.Reason)
	}
}
