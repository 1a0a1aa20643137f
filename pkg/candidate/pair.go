package candidate

import "fmt"

// PairState is the candidate pair state machine (RFC 8445 §6.1.2.6).
type PairState int

const (
	Frozen PairState = iota
	Waiting
	InProgress
	Succeeded
	Failed
)

func (s PairState) String() string {
	switch s {
	case Frozen:
		return "frozen"
	case Waiting:
		return "waiting"
	case InProgress:
		return "in-progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Pair is a local/remote candidate pair on a checklist.
type Pair struct {
	ID         string
	Local      Candidate
	Remote     Candidate
	Foundation string // "localFoundation/remoteFoundation", RFC 8445 §6.1.2.6
	Component  int

	State     PairState
	Nominated bool

	// ValidatedBy is set once a connectivity check on this pair (or on
	// the pair it was triggered by discovering a peer-reflexive
	// candidate) succeeds — see RFC 8445 §7.2.5.2.1.
	ValidatedBy *Pair
}

// NewPair pairs local against remote. It panics if their components
// differ, which would mean a bug in the caller's pairing logic
// (Checklist.AddPairs, via CanPair, only combines same-component candidates, RFC
// 8445 §6.1.2.2).
func NewPair(id int, local, remote Candidate) *Pair {
	if local.Component != remote.Component {
		panic(fmt.Sprintf("candidate: paired candidates have different components: %d != %d", local.Component, remote.Component))
	}
	return &Pair{
		ID:         fmt.Sprintf("pair#%d", id),
		Local:      local,
		Remote:     remote,
		Foundation: local.Foundation + "/" + remote.Foundation,
		Component:  local.Component,
	}
}

func (p *Pair) String() string {
	return fmt.Sprintf("%s: %s -> %s [%s]", p.ID, p.Local.Address, p.Remote.Address, p.State)
}

// Priority implements the RFC 8445 §6.1.2.3 pair priority formula:
//
//	priority = 2^32 * min(G,D) + 2*max(G,D) + (G>D ? 1 : 0)
//
// where G is the controlling agent's priority for the candidate it
// contributed to the pair and D is the controlled agent's. Which side
// (Local or Remote) is "controlling" depends on isControlling, not on
// which candidate happens to be local: using the remote candidate's
// priority for G unconditionally is only correct when the local agent
// itself is controlled.
func (p *Pair) Priority(isControlling bool) uint64 {
	var g, d uint64
	if isControlling {
		g, d = uint64(p.Local.Priority), uint64(p.Remote.Priority)
	} else {
		g, d = uint64(p.Remote.Priority), uint64(p.Local.Priority)
	}
	var b uint64
	if g > d {
		b = 1
	}
	return min64(g, d)<<32 + max64(g, d)<<1 + b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
