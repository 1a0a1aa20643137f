package ice

import (
	"github.com/lanikai/iceagent/pkg/stun"
	"github.com/lanikai/iceagent/pkg/transaction"
)

// sendConsentCheck implements RFC 7675 consent freshness: once a
// component's pair is nominated, send a Binding request on it every
// ConsentInterval. After ConsentMaxRetransmissions consecutive timeouts
// on any one component, declare the stream disconnected. Called only
// from the actor loop (the consent ticker case in Run).
func (a *Agent) sendConsentCheck() {
	for _, id := range a.componentOrder {
		comp := a.components[id]
		if comp.nominated == nil {
			continue
		}
		a.sendConsentCheckForComponent(comp)
	}
}

func (a *Agent) sendConsentCheckForComponent(comp *Component) {
	p := comp.nominated

	req := stun.BindingRequest()
	req.AddUsername(a.creds.LocalUsername())
	req.AddMessageIntegrity(a.creds.LocalKey())
	req.AddFingerprint()

	ct := a.layer.StartClientTransaction(a.ctx, req, p.Remote.Address, false)
	go func() {
		select {
		case <-a.ctx.Done():
			return
		case r := <-ct.Done():
			a.do(func() { a.handleConsentResult(comp.ID, r) })
		}
	}()
}

func (a *Agent) handleConsentResult(componentID int, r transaction.Result) {
	comp := a.component(componentID)
	if comp.nominated == nil {
		return
	}
	if r.Kind == transaction.KindSuccess {
		comp.consentFails = 0
		return
	}
	comp.consentFails++
	if comp.consentFails >= a.cfg.ConsentMaxRetransmissions {
		log.Warn("consent freshness failed on component %d pair %s after %d retransmissions", componentID, comp.nominated, comp.consentFails)
		select {
		case a.Events <- Event{Kind: EventDisconnected}:
		default:
		}
	}
}
