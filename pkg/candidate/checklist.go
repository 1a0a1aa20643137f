package candidate

import "sort"

// ChecklistState mirrors RFC 8445 §6.1.2.1's per-checklist state.
type ChecklistState int

const (
	ChecklistRunning ChecklistState = iota
	ChecklistCompleted
	ChecklistFailed
)

// DefaultMaxCheckListSize is the cap RFC 8445 §6.1.2.5 recommends when a
// Checklist isn't given an explicit size: after sorting by priority, any
// pair beyond this position is dropped.
const DefaultMaxCheckListSize = 100

// Checklist holds one media stream's candidate pairs, in priority order,
// plus the triggered-check queue. It is pure data/ordering logic; sending
// and receiving the actual connectivity checks belongs to the
// ConnectivityChecker (pkg/ice), which calls NextPair/AddPairs/TriggerCheck/
// UnfreezeSiblings here and sets each Pair's State as checks complete.
type Checklist struct {
	IsControlling bool

	State ChecklistState

	// MaxCheckListSize bounds the number of pairs kept after a sort/prune
	// pass. Zero means DefaultMaxCheckListSize.
	MaxCheckListSize int

	pairs          []*Pair
	triggeredQueue []*Pair
	nextPairID     int
	nextToCheck    int
}

func NewChecklist(isControlling bool) *Checklist {
	return &Checklist{IsControlling: isControlling, MaxCheckListSize: DefaultMaxCheckListSize}
}

// CanPair reports whether local and remote may form a pair: same
// component, same transport protocol, same address family, and the same
// link-local-ness. RFC 8445 §6.1.2.2 leaves the family/link-local guards
// implementation-defined; they exist here to keep an IPv4 host candidate
// from ever being paired against an IPv6 one.
func CanPair(local, remote Candidate) bool {
	return local.Component == remote.Component &&
		local.Address.Protocol == remote.Address.Protocol &&
		local.Address.Family() == remote.Address.Family() &&
		local.Address.IsLinkLocal() == remote.Address.IsLinkLocal()
}

// AddPairs pairs every local candidate against every remote candidate
// that CanPair allows, appends the new pairs, then re-sorts, prunes, and
// caps the checklist per RFC 8445 §6.1.2.3-5, and runs the
// foundation-based unfreeze pass (§6.1.2.6): newly added pairs start
// Frozen, and exactly one pair per foundation — the one with the lowest
// componentId, tie-broken by highest priority — is unfrozen to Waiting,
// but only once every pair sharing that foundation is still Frozen (i.e.
// it hasn't already had a representative picked).
func (cl *Checklist) AddPairs(locals, remotes []Candidate) []*Pair {
	var added []*Pair
	for _, l := range locals {
		for _, r := range remotes {
			if CanPair(l, r) {
				p := NewPair(cl.nextPairID, l, r)
				cl.nextPairID++
				cl.pairs = append(cl.pairs, p)
				added = append(added, p)
			}
		}
	}

	cl.sortAndPrune()
	cl.unfreezeByFoundation()
	return added
}

func (cl *Checklist) sortAndPrune() {
	sort.Slice(cl.pairs, func(i, j int) bool {
		return cl.pairs[i].Priority(cl.IsControlling) > cl.pairs[j].Priority(cl.IsControlling)
	})

	kept := cl.pairs[:0]
	for i, p := range cl.pairs {
		switch p.State {
		case InProgress, Succeeded, Failed:
			kept = append(kept, p)
			continue
		}
		redundant := false
		for j := 0; j < i; j++ {
			if isRedundant(p, cl.pairs[j]) {
				redundant = true
				break
			}
		}
		if !redundant {
			kept = append(kept, p)
		}
	}
	cl.pairs = cl.capToMaxSize(kept)
}

// capToMaxSize implements RFC 8445 §6.1.2.5: once sorted descending, drop
// the tail past MaxCheckListSize. A pair that has already left Frozen/
// Waiting (InProgress, Succeeded, Failed) is always kept regardless of
// position, so an in-flight or resolved check is never discarded out from
// under the ConnectivityChecker.
func (cl *Checklist) capToMaxSize(pairs []*Pair) []*Pair {
	max := cl.MaxCheckListSize
	if max <= 0 {
		max = DefaultMaxCheckListSize
	}
	if len(pairs) <= max {
		return pairs
	}
	kept := make([]*Pair, 0, max)
	for _, p := range pairs {
		switch p.State {
		case InProgress, Succeeded, Failed:
			kept = append(kept, p)
		default:
			if len(kept) < max {
				kept = append(kept, p)
			}
		}
	}
	return kept
}

// unfreezeByFoundation implements RFC 8445 §6.1.2.6: group pairs by
// foundation, and for any foundation where every pair is still Frozen,
// unfreeze the one with the lowest componentId (tie-broken by highest
// priority). Foundations that already have a non-Frozen representative
// are left alone — their siblings are unfrozen instead by
// UnfreezeSiblings, once that representative succeeds.
func (cl *Checklist) unfreezeByFoundation() {
	byFoundation := make(map[string][]*Pair)
	for _, p := range cl.pairs {
		byFoundation[p.Foundation] = append(byFoundation[p.Foundation], p)
	}
	for _, group := range byFoundation {
		allFrozen := true
		for _, p := range group {
			if p.State != Frozen {
				allFrozen = false
				break
			}
		}
		if !allFrozen {
			continue
		}
		best := group[0]
		for _, p := range group[1:] {
			if p.Component < best.Component ||
				(p.Component == best.Component && p.Priority(cl.IsControlling) > best.Priority(cl.IsControlling)) {
				best = p
			}
		}
		best.State = Waiting
	}
}

// UnfreezeSiblings implements RFC 8445 §6.1.2.6: once p (just transitioned
// to Succeeded) is known, every other pair sharing its foundation that is
// still Frozen is unfrozen to Waiting.
func (cl *Checklist) UnfreezeSiblings(p *Pair) {
	for _, q := range cl.pairs {
		if q != p && q.Foundation == p.Foundation && q.State == Frozen {
			q.State = Waiting
		}
	}
}

// isRedundant implements RFC 8445 §6.1.2.4: two pairs are redundant if
// they share the same remote candidate and the same local base.
func isRedundant(p1, p2 *Pair) bool {
	return p1.Remote.Address == p2.Remote.Address && p1.Local.BaseAddress == p2.Local.BaseAddress
}

// Pairs returns the checklist's pairs in priority order.
func (cl *Checklist) Pairs() []*Pair {
	return cl.pairs
}

// FindPair returns the pair matching local/remote addresses, if any —
// used to recognize that an incoming check's (local,remote) tuple already
// has a pair (RFC 8445 §7.3.1.4), versus needing a new peer-reflexive one.
func (cl *Checklist) FindPair(local, remote Candidate) *Pair {
	for _, p := range cl.pairs {
		if p.Local.Address == local.Address && p.Remote.Address == remote.Address {
			return p
		}
	}
	return nil
}

// TriggerCheck places p at the back of the triggered-check queue unless
// it is already InProgress, per RFC 8445 §7.3.1.4's triggered check rule.
func (cl *Checklist) TriggerCheck(p *Pair) {
	if p.State == InProgress {
		return
	}
	for _, q := range cl.triggeredQueue {
		if q == p {
			return
		}
	}
	p.State = Waiting
	cl.triggeredQueue = append(cl.triggeredQueue, p)
}

// NextPair returns the next pair to check: the triggered-check queue
// first (RFC 8445 §6.1.4.2), then the highest-priority Waiting pair from
// the ordinary checklist.
func (cl *Checklist) NextPair() *Pair {
	for len(cl.triggeredQueue) > 0 {
		p := cl.triggeredQueue[0]
		cl.triggeredQueue = cl.triggeredQueue[1:]
		if p.State == Waiting || p.State == Frozen {
			return p
		}
	}
	for _, p := range cl.pairs {
		if p.State == Waiting {
			return p
		}
	}
	return nil
}

// HasCompleted reports whether every pair has left Frozen/Waiting/
// InProgress, i.e. the checklist can be marked Completed or Failed.
func (cl *Checklist) HasCompleted() bool {
	for _, p := range cl.pairs {
		switch p.State {
		case Frozen, Waiting, InProgress:
			return false
		}
	}
	return true
}

// HasNominated reports whether any pair has been nominated, i.e. the
// associated component can be considered connected.
func (cl *Checklist) HasNominated() *Pair {
	for _, p := range cl.pairs {
		if p.Nominated {
			return p
		}
	}
	return nil
}
