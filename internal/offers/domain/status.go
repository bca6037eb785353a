// Package domain provides core business rules for the offers bounded context.
package domain

// Status is an offer's lifecycle status.
type Status string

const (
	StatusPending     Status = "pending"
	StatusNegotiating Status = "negotiating"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
)

// terminalStatuses are offer statuses out of which no transition is permitted.
var terminalStatuses = map[Status]bool{
	StatusRejected:  true,
	StatusCancelled: true,
	StatusCompleted: true,
}

// validTransitions is the transition table. A transition is only reachable
// through one of the guarded operations below; the table is the single place
// that answers "can this edge ever be taken".
var validTransitions = map[Status][]Status{
	StatusPending:     {StatusNegotiating, StatusAccepted, StatusRejected, StatusCancelled},
	StatusNegotiating: {StatusAccepted, StatusRejected},
	StatusAccepted:    {StatusCompleted},
}

// IsTerminal returns true if the status permits no further transitions.
func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

// IsValid reports whether s is a known offer status.
func IsValid(s Status) bool {
	switch s {
	case StatusPending, StatusNegotiating, StatusAccepted, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether the edge from → to exists in the table.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Acceptable reports whether an offer in this status can still win the request.
// Siblings in an acceptable status get rejected when another offer is accepted.
func Acceptable(s Status) bool {
	return s == StatusPending || s == StatusNegotiating
}
