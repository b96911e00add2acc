package builder

import "fmt"

// ModelConstructionError reports an index and policy that cannot be turned into
// a consistent model. With an index built against the same policy it is
// unreachable.
type ModelConstructionError struct {
	Slot    int
	HasSlot bool
	Reason  string
}

func (e *ModelConstructionError) Error() string {
	if e.HasSlot {
		return fmt.Sprintf("model construction failed at slot %d: %s", e.Slot, e.Reason)
	}
	return fmt.Sprintf("model construction failed: %s", e.Reason)
}
