package ice

import "github.com/lanikai/iceagent/pkg/candidate"

// EventKind tags the Event union delivered to an agent's caller.
type EventKind int

const (
	EventGatheringDone EventKind = iota
	EventCandidatePair
	EventNominated
	EventConnected
	EventDisconnected
	EventFailed
)

// Event is the tagged union of state changes an Agent reports. Only the
// field(s) implied by Kind are meaningful.
type Event struct {
	Kind EventKind

	Pair *candidate.Pair
	Err  error
}
