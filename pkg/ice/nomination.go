package ice

import "github.com/lanikai/iceagent/pkg/candidate"

// nominatePair marks p nominated and records it as its component's
// selected pair (RFC 8445 §8.1.3), but only if that component has no
// nominated pair yet; otherwise it leaves p untouched. Once
// every component of the stream has a nominated pair, the stream itself
// is Completed (see Agent.streamCompleted) and an EventConnected fires.
// Called from within the actor loop only.
func (a *Agent) nominatePair(p *candidate.Pair) {
	comp := a.component(p.Component)
	if comp.nominated != nil {
		return
	}
	p.Nominated = true
	comp.nominated = p
	comp.consentFails = 0
	log.Info("nominated %s", p)

	select {
	case a.Events <- Event{Kind: EventNominated, Pair: p}:
	default:
	}
	if a.streamCompleted() {
		select {
		case a.Events <- Event{Kind: EventConnected, Pair: p}:
		default:
		}
	}
}
