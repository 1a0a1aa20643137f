package ice

import (
	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/candidate"
	"github.com/lanikai/iceagent/pkg/stun"
	"github.com/lanikai/iceagent/pkg/transaction"
)

// sendCheck is the client side of a connectivity check (RFC 8445 §7.2):
// build and send a Binding request carrying PRIORITY, USERNAME,
// ICE-CONTROLLING/CONTROLLED, MESSAGE-INTEGRITY, FINGERPRINT, and —
// if nominate is true — USE-CANDIDATE.
func (a *Agent) sendCheck(p *candidate.Pair, nominate bool) {
	p.State = candidate.InProgress

	req := stun.BindingRequest()
	req.AddPriority(p.Local.Priority)
	req.AddUsername(a.creds.LocalUsername())
	if a.isControlling {
		req.AddIceControlling(a.tieBreaker)
	} else {
		req.AddIceControlled(a.tieBreaker)
	}
	if nominate && a.isControlling {
		req.AddUseCandidate()
	}
	req.AddMessageIntegrity(a.creds.LocalKey())
	req.AddFingerprint()

	ct := a.layer.StartClientTransaction(a.ctx, req, p.Remote.Address, p.Local.Address.Protocol != addr.UDP)
	go a.awaitCheckResult(p, nominate, ct)
}

func (a *Agent) awaitCheckResult(p *candidate.Pair, nominate bool, ct *transaction.ClientTransaction) {
	select {
	case <-a.ctx.Done():
		return
	case r := <-ct.Done():
		a.do(func() { a.handleCheckResult(p, nominate, r) })
	}
}

func (a *Agent) handleCheckResult(p *candidate.Pair, nominate bool, r transaction.Result) {
	switch r.Kind {
	case transaction.KindSuccess:
		a.handleCheckSuccess(p, nominate, r.Response)
	case transaction.KindTimeout:
		p.State = candidate.Failed
	default:
		p.State = candidate.Failed
	}
}

func (a *Agent) handleCheckSuccess(p *candidate.Pair, nominate bool, resp *stun.Message) {
	if code, _, ok := resp.ErrorCode(); ok && code == 487 {
		// Role conflict: flip role and retry per RFC 8445 §7.2.5.1.
		log.Info("role conflict on %s, switching to %v", p, !a.isControlling)
		a.isControlling = !a.isControlling
		a.checklist.IsControlling = a.isControlling
		p.State = candidate.Waiting
		a.checklist.TriggerCheck(p)
		return
	}

	mapped, ok := resp.XorMappedAddress()
	if !ok {
		p.State = candidate.Failed
		return
	}

	// RFC 8445 §7.2.5.3.1: if the mapped address doesn't match any local
	// candidate, a new peer-reflexive local candidate has been
	// discovered; its priority is the PRIORITY attribute this agent sent
	// on the request.
	local := a.findOrCreateLocalCandidate(p.Component, mapped, p.Local.Priority)

	// Locate (or create) the pair (local, remote) in the checklist — this
	// is the *valid pair*, which may differ from p when a peer-reflexive
	// local candidate was just discovered. p itself only records that the
	// check succeeded; everything downstream (nomination, triggering,
	// foundation unfreeze) must operate on the valid pair.
	valid := a.checklist.FindPair(local, p.Remote)
	if valid == nil {
		pairs := a.checklist.AddPairs([]candidate.Candidate{local}, []candidate.Candidate{p.Remote})
		if len(pairs) > 0 {
			valid = pairs[0]
		} else {
			valid = p
		}
	}
	valid.State = candidate.Succeeded
	p.State = candidate.Succeeded
	p.ValidatedBy = valid
	a.checklist.UnfreezeSiblings(valid)
	log.Debug("check succeeded: %s", valid)

	comp := a.component(valid.Component)
	if nominate {
		a.nominatePair(valid)
		return
	}
	if comp.nominated != nil {
		return
	}
	switch a.cfg.Nomination {
	case NominateAfterRegularChecks:
		// RFC 8445 §8.1.1.1: having found a valid pair, send a second,
		// nominating check on it rather than nominating the first
		// successful check directly.
		a.checklist.TriggerCheck(valid)
	case NominateHighestPriority:
		if a.checklist.HasCompleted() {
			best := valid
			for _, q := range a.checklist.Pairs() {
				if q.Component != valid.Component || q.State != candidate.Succeeded {
					continue
				}
				if q.ValidatedBy != nil {
					q = q.ValidatedBy
				}
				if q.Priority(a.isControlling) > best.Priority(a.isControlling) {
					best = q
				}
			}
			a.nominatePair(best)
		}
	}
}

func (a *Agent) findOrCreateLocalCandidate(componentID int, mapped addr.TransportAddress, priority uint32) candidate.Candidate {
	comp := a.component(componentID)
	for _, c := range comp.localCandidates {
		if c.Address == mapped {
			return c
		}
	}
	c := candidate.NewPeerReflexive(a.mid, componentID, mapped, mapped, priority)
	a.addLocalCandidateLocked(c)
	return c
}

// onStunRequest is the server side of a connectivity check (RFC 8445
// §7.3): validate the request, detect role conflicts, discover
// peer-reflexive remote candidates, trigger a matching check, and answer
// with a Binding success response.
func (a *Agent) onStunRequest(m *stun.Message, raw []byte, from addr.TransportAddress, unknown []stun.AttrType) {
	a.do(func() { a.handleStunRequest(m, raw, from, unknown) })
}

func (a *Agent) handleStunRequest(m *stun.Message, raw []byte, from addr.TransportAddress, unknown []stun.AttrType) {
	if m.Method != stun.MethodBinding {
		return
	}

	if len(unknown) > 0 {
		log.Warn("rejecting check from %s: unknown comprehension-required attributes %v", from, unknown)
		a.respondUnknownAttributes(m, from, unknown)
		return
	}

	username, _ := m.Username()
	cred, ok := a.credReg.LookupShortTerm(username)
	if !ok {
		log.Warn("rejecting check from %s: unknown username %q", from, username)
		a.respondError(m, from, 401, "Unauthorized")
		return
	}
	if err := stun.VerifyMessageIntegrity(m, raw, cred.RemoteKey()); err != nil {
		log.Warn("rejecting check from %s: %v", from, err)
		a.respondError(m, from, 401, "Unauthorized")
		return
	}

	if controlling, tieBreaker, present := m.IceRole(); present {
		if controlling == a.isControlling {
			if a.resolveRoleConflict(tieBreaker) {
				a.respondError(m, from, 487, "Role Conflict")
				return
			}
			log.Info("role conflict with %s, switching to %v", from, !a.isControlling)
			a.isControlling = !a.isControlling
			a.checklist.IsControlling = a.isControlling
		}
	}

	priority, _ := m.Priority()
	remote := a.findOrCreateRemoteCandidate(a.primaryComponent, from, priority)

	comp := a.component(a.primaryComponent)
	local := candidate.Candidate{Mid: a.mid, Component: a.primaryComponent, Address: a.LocalAddr()}
	pair := a.checklist.FindPair(local, remote)
	if pair == nil {
		pairs := a.checklist.AddPairs(comp.localCandidates, []candidate.Candidate{remote})
		if len(pairs) > 0 {
			pair = pairs[0]
		}
	}
	if pair != nil {
		a.checklist.TriggerCheck(pair)
		if m.HasUseCandidate() && !a.isControlling {
			a.nominatePair(pair)
		}
	}

	resp := stun.NewMessage(stun.ClassSuccessResponse, stun.MethodBinding, m.TransactionID)
	resp.AddXorMappedAddress(from)
	resp.AddMessageIntegrity(cred.LocalKey())
	resp.AddFingerprint()
	a.sendResponse(resp, from)
}

// resolveRoleConflict implements RFC 8445 §7.3.1.1: the agent with the
// larger tie-breaker keeps its asserted role; true means this agent wins
// (the peer must switch) and a 487 is sent back.
func (a *Agent) resolveRoleConflict(peerTieBreaker uint64) bool {
	return a.tieBreaker >= peerTieBreaker
}

func (a *Agent) findOrCreateRemoteCandidate(componentID int, from addr.TransportAddress, priority uint32) candidate.Candidate {
	comp := a.component(componentID)
	for _, c := range comp.remoteCandidates {
		if c.Address == from {
			return c
		}
	}
	c := candidate.NewPeerReflexive(a.mid, componentID, from, from, priority)
	comp.remoteCandidates = append(comp.remoteCandidates, c)
	return c
}

func (a *Agent) respondError(req *stun.Message, dest addr.TransportAddress, code int, reason string) {
	resp := stun.NewMessage(stun.ClassErrorResponse, req.Method, req.TransactionID)
	resp.AddErrorCode(code, reason)
	a.sendResponse(resp, dest)
}

// respondUnknownAttributes implements RFC 5389 §7.3.3: reject a request
// carrying one or more unrecognized comprehension-required attributes
// with a 420 naming every such attribute.
func (a *Agent) respondUnknownAttributes(req *stun.Message, dest addr.TransportAddress, unknown []stun.AttrType) {
	resp := stun.NewMessage(stun.ClassErrorResponse, req.Method, req.TransactionID)
	resp.AddErrorCode(420, "Unknown Attribute")
	resp.AddUnknownAttributes(unknown)
	a.sendResponse(resp, dest)
}

func (a *Agent) sendResponse(resp *stun.Message, dest addr.TransportAddress) {
	raw, err := stun.Encode(resp)
	if err != nil {
		return
	}
	a.net.Send(raw, dest)
}

// shouldNominate decides whether sending a check on p should carry
// USE-CANDIDATE, per the configured NominationStrategy.
func (a *Agent) shouldNominate(p *candidate.Pair) bool {
	if !a.isControlling || a.component(p.Component).nominated != nil {
		return false
	}
	if a.cfg.Nomination == NominateAfterRegularChecks {
		return p.State == candidate.Succeeded
	}
	return false
}
