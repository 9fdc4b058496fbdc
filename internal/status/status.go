// status.go
package status

import "fmt"

// Status is the coarse fulfillment state of an order.
type Status string

const (
	Confirmed  Status = "confirmed"
	Processing Status = "processing"
	Shipped    Status = "shipped"
	Delivered  Status = "delivered"
	Cancelled  Status = "cancelled"
)

// Allowed transitions per source state. Missing key = terminal.
var transitions = map[Status][]Status{
	Confirmed:  {Processing, Cancelled},
	Processing: {Shipped, Cancelled},
	Shipped:    {Delivered},
	Delivered:  {},
	Cancelled:  {},
}

// TransitionError reports a transition absent from the table,
// carrying the attempted pair for diagnostics.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition from %q to %q", e.From, e.To)
}

// IsValid reports whether s names a declared state.
func IsValid(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s accepts no further transitions.
func IsTerminal(s Status) bool {
	targets, ok := transitions[s]
	return ok && len(targets) == 0
}

// Transition validates moving an order from one coarse status to another.
// A request for the current state is a no-op, not an error: changed is
// false and err is nil. A pair absent from the table yields a
// *TransitionError and the caller must surface it, never coerce the state.
func Transition(from, to Status) (changed bool, err error) {
	if from == to {
		return false, nil
	}
	if !IsValid(to) {
		return false, &TransitionError{From: from, To: to}
	}
	for _, t := range transitions[from] {
		if t == to {
			return true, nil
		}
	}
	return false, &TransitionError{From: from, To: to}
}
