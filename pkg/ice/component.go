package ice

import "github.com/lanikai/iceagent/pkg/candidate"

// Component is one transport layer within an IceMediaStream (e.g. RTP=1,
// RTCP=2): its own local/remote candidate sets and, once connectivity
// settles, its selected pair. Every Component of a stream shares that
// stream's single Checklist, which is what lets the checklist's
// foundation-based unfreeze algorithm (candidate.Checklist.
// unfreezeByFoundation/UnfreezeSiblings) span components instead of
// operating on just one candidate set.
type Component struct {
	ID int

	localCandidates  []candidate.Candidate
	remoteCandidates []candidate.Candidate

	nominated    *candidate.Pair
	consentFails int
}

func newComponent(id int) *Component {
	return &Component{ID: id}
}

// Nominated returns the component's selected pair, or nil before
// connectivity completes for it.
func (c *Component) Nominated() *candidate.Pair {
	return c.nominated
}

// LocalCandidates returns a copy of the component's gathered local
// candidates.
func (c *Component) LocalCandidates() []candidate.Candidate {
	out := make([]candidate.Candidate, len(c.localCandidates))
	copy(out, c.localCandidates)
	return out
}
