// Package state holds the pledge status state machine. It is pure logic:
// no I/O, no clock, so consumers on every service share one transition
// table.
package state

// Status is the internal pledge status domain.
type Status string

const (
	Pending    Status = "PENDING"
	Authorized Status = "AUTHORIZED"
	Captured   Status = "CAPTURED"
	Failed     Status = "FAILED"
)

// transitions lists the legal moves out of each status. CAPTURED is
// reachable straight from PENDING because some providers skip the
// explicit authorize step. CAPTURED and FAILED are terminal.
var transitions = map[Status][]Status{
	Pending:    {Authorized, Captured, Failed},
	Authorized: {Captured, Failed},
	Captured:   {},
	Failed:     {},
}

// Valid reports whether s is one of the four known statuses.
func Valid(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from one status to another is
// legal. A self-transition is always legal so duplicate event deliveries
// are no-ops rather than errors. Callers must drop, not fail, events
// whose transition is illegal.
func CanTransition(from, to Status) bool {
	if !Valid(from) || !Valid(to) {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// FromProviderStatus maps payment-provider vocabulary onto the internal
// domain. Unknown strings fall back to PENDING; that fallback is a
// policy choice, not an accident, so keep it here rather than at call
// sites.
func FromProviderStatus(provider string) Status {
	switch provider {
	case "authorized":
		return Authorized
	case "succeeded", "captured":
		return Captured
	case "failed", "declined", "cancelled":
		return Failed
	default:
		return Pending
	}
}
