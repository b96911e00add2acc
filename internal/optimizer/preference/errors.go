package preference

import "fmt"

// Reason classifies a MalformedPreferenceError.
type Reason string

const (
	ReasonNonPositiveSize    Reason = "non-positive size"
	ReasonTooManyChoices     Reason = "too many choices"
	ReasonUnknownSlot        Reason = "slot out of range"
	ReasonDuplicateSlot      Reason = "duplicate slot"
	ReasonInvalidScore       Reason = "score is not finite"
	ReasonDuplicateRequester Reason = "duplicate requester"
)

// MalformedPreferenceError reports a record that violates the index's shape rules.
// HasSlot is set when the problem is tied to a particular choice.
type MalformedPreferenceError struct {
	RequesterID int
	Slot        int
	HasSlot     bool
	Reason      Reason
	Detail      string
}

func (e *MalformedPreferenceError) Error() string {
	msg := fmt.Sprintf("malformed preference for requester %d: %s", e.RequesterID, e.Reason)
	if e.HasSlot {
		msg = fmt.Sprintf("%s (slot %d)", msg, e.Slot)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}
