package ice

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/candidate"
	"github.com/lanikai/iceagent/pkg/netaccess"
	"github.com/lanikai/iceagent/pkg/stun"
	"github.com/lanikai/iceagent/pkg/transaction"
)

// newTestAgent wires an Agent around a real loopback UDP socket (so
// sendResponse/LocalAddr work) and a transaction.Layer whose send func is
// captured instead of transmitted, so client transactions can be resolved
// directly with HandleIncoming rather than waiting on retransmission.
func newTestAgent(t *testing.T, cfg Config) (*Agent, *transaction.Layer) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	n := netaccess.NewManager(conn)
	sched := transaction.NewScheduler()
	layer := transaction.NewLayer(ctx, sched, func(addr.TransportAddress, []byte) error { return nil })

	a := NewAgent(ctx, cfg, "mid0", []int{1}, n, layer, sched)
	return a, layer
}

func TestResolveRoleConflictHigherTieBreakerWins(t *testing.T) {
	a, _ := newTestAgent(t, DefaultConfig())
	a.tieBreaker = 100

	if !a.resolveRoleConflict(50) {
		t.Error("agent with the higher tie-breaker should win the conflict")
	}
	if a.resolveRoleConflict(200) {
		t.Error("agent with the lower tie-breaker should lose the conflict")
	}
}

func TestFindOrCreateLocalCandidateReusesExisting(t *testing.T) {
	cfg := DefaultConfig()
	a, _ := newTestAgent(t, cfg)

	existing := candidate.NewHost("mid0", 1, addr.New("192.0.2.1", 5000, addr.UDP))
	a.addLocalCandidateLocked(existing)

	got := a.findOrCreateLocalCandidate(1, existing.Address, 999)
	if got.Type != candidate.Host {
		t.Errorf("expected the existing host candidate to be reused, got type %v", got.Type)
	}
	if len(a.component(1).localCandidates) != 1 {
		t.Errorf("a new candidate was created instead of reusing the existing one: have %d", len(a.component(1).localCandidates))
	}
}

func TestFindOrCreateLocalCandidateDiscoversPeerReflexive(t *testing.T) {
	a, _ := newTestAgent(t, DefaultConfig())

	mapped := addr.New("198.51.100.9", 7000, addr.UDP)
	got := a.findOrCreateLocalCandidate(1, mapped, 12345)

	if got.Type != candidate.PeerReflexive {
		t.Errorf("Type = %v, want PeerReflexive", got.Type)
	}
	if got.Priority != 12345 {
		t.Errorf("Priority = %d, want the PRIORITY carried on the check (12345)", got.Priority)
	}
	if len(a.component(1).localCandidates) != 1 {
		t.Errorf("the discovered candidate was not added to the component's local candidates")
	}
}

func TestShouldNominateOnlyAfterPairSucceeds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IsControlling = true
	cfg.Nomination = NominateAfterRegularChecks
	a, _ := newTestAgent(t, cfg)

	local := candidate.NewHost("mid0", 1, addr.New("192.0.2.1", 5000, addr.UDP))
	remote := candidate.Candidate{Mid: "mid0", Component: 1, Address: addr.New("192.0.2.2", 6000, addr.UDP)}
	p := candidate.NewPair(0, local, remote)

	if a.shouldNominate(p) {
		t.Error("a pair that has not yet succeeded must not be nominated")
	}

	p.State = candidate.Succeeded
	if !a.shouldNominate(p) {
		t.Error("a succeeded pair under NominateAfterRegularChecks should be nominated")
	}
}

func TestShouldNominateNeverFiresWhenControlled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IsControlling = false
	a, _ := newTestAgent(t, cfg)

	local := candidate.NewHost("mid0", 1, addr.New("192.0.2.1", 5000, addr.UDP))
	remote := candidate.Candidate{Mid: "mid0", Component: 1, Address: addr.New("192.0.2.2", 6000, addr.UDP)}
	p := candidate.NewPair(0, local, remote)
	p.State = candidate.Succeeded

	if a.shouldNominate(p) {
		t.Error("a controlled agent must never nominate")
	}
}

func TestShouldNominateStopsAfterNomination(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IsControlling = true
	a, _ := newTestAgent(t, cfg)

	local := candidate.NewHost("mid0", 1, addr.New("192.0.2.1", 5000, addr.UDP))
	remote := candidate.Candidate{Mid: "mid0", Component: 1, Address: addr.New("192.0.2.2", 6000, addr.UDP)}
	p := candidate.NewPair(0, local, remote)
	p.State = candidate.Succeeded
	a.component(1).nominated = p

	if a.shouldNominate(p) {
		t.Error("an agent that has already nominated a pair must not nominate another")
	}
}

// TestRegularNominationRequiresTwoChecks exercises the fix for RFC 8445
// §8.1.1.1: the first successful check on a pair must only retrigger a
// second, nominating check — not nominate the pair outright.
func TestRegularNominationRequiresTwoChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IsControlling = true
	cfg.Nomination = NominateAfterRegularChecks
	a, _ := newTestAgent(t, cfg)

	local := candidate.NewHost("mid0", 1, addr.New("192.0.2.1", 5000, addr.UDP))
	remote := candidate.Candidate{Mid: "mid0", Component: 1, Address: addr.New("192.0.2.2", 6000, addr.UDP)}
	a.checklist.AddPairs([]candidate.Candidate{local}, []candidate.Candidate{remote})
	p := a.checklist.Pairs()[0]

	resp := stun.NewMessage(stun.ClassSuccessResponse, stun.MethodBinding, stun.NewTransactionID())
	resp.AddXorMappedAddress(local.Address)

	// First successful check, not carrying USE-CANDIDATE: must not nominate
	// yet, but must requeue the pair as a triggered check.
	a.handleCheckSuccess(p, false, resp)
	if a.component(1).nominated != nil {
		t.Fatal("the first successful check must not nominate the pair directly")
	}
	if next := a.checklist.NextPair(); next != p {
		t.Fatal("the succeeded pair should have been retriggered for a nominating check")
	}

	// Second check, this one carrying USE-CANDIDATE: now it nominates.
	a.handleCheckSuccess(p, true, resp)
	if a.component(1).nominated != p {
		t.Error("the nominating check should have nominated the pair")
	}
}

func TestHandleCheckSuccessRoleConflictFlipsRole(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IsControlling = true
	a, _ := newTestAgent(t, cfg)

	local := candidate.NewHost("mid0", 1, addr.New("192.0.2.1", 5000, addr.UDP))
	remote := candidate.Candidate{Mid: "mid0", Component: 1, Address: addr.New("192.0.2.2", 6000, addr.UDP)}
	a.checklist.AddPairs([]candidate.Candidate{local}, []candidate.Candidate{remote})
	p := a.checklist.Pairs()[0]
	p.State = candidate.InProgress

	resp := stun.NewMessage(stun.ClassErrorResponse, stun.MethodBinding, stun.NewTransactionID())
	resp.AddErrorCode(487, "Role Conflict")

	a.handleCheckSuccess(p, false, resp)

	if a.isControlling {
		t.Error("a 487 response should flip the agent's role")
	}
	if p.State != candidate.Waiting {
		t.Errorf("State = %v, want Waiting (retried after the role flip)", p.State)
	}
}

func TestHandleStunRequestRejectsUnknownUsername(t *testing.T) {
	a, _ := newTestAgent(t, DefaultConfig())

	req := stun.BindingRequest()
	req.AddUsername("bogus:user")
	raw, err := stun.Encode(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	from := addr.New("192.0.2.50", 9000, addr.UDP)

	// Must not panic and must not register any candidate/pair for a
	// request that fails credential lookup.
	a.handleStunRequest(req, raw, from, nil)
	if len(a.component(1).remoteCandidates) != 0 {
		t.Error("a request with an unknown username must not discover a peer-reflexive candidate")
	}
}

func TestHandleStunRequestDiscoversPeerReflexiveAndTriggersCheck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LocalUfrag, cfg.LocalPwd = "localufrag", "localpwd"
	cfg.IsControlling = true
	a, _ := newTestAgent(t, cfg)
	// SetRemoteCredentials dispatches through the actor loop (a.do), which
	// needs Run() consuming a.cmds; set the fields directly instead since
	// these tests call unexported handlers straight from the test goroutine.
	a.creds.RemoteUfrag, a.creds.RemotePwd = "remoteufrag", "remotepwd"
	a.credReg.RegisterShortTerm(a.creds)
	a.addLocalCandidateLocked(candidate.NewHost("mid0", 1, a.LocalAddr()))

	req := stun.BindingRequest()
	// A peer's request to this agent carries USERNAME as seen from the
	// peer's side: "localUfrag:remoteUfrag".
	req.AddUsername(a.creds.IncomingUsername())
	req.AddPriority(999)
	req.AddIceControlled(42)
	req.AddMessageIntegrity(a.creds.RemoteKey())
	req.AddFingerprint()
	raw, err := stun.Encode(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	from := addr.New("192.0.2.77", 9001, addr.UDP)
	a.handleStunRequest(req, raw, from, nil)

	comp := a.component(1)
	if len(comp.remoteCandidates) != 1 {
		t.Fatalf("expected one peer-reflexive remote candidate to be discovered, got %d", len(comp.remoteCandidates))
	}
	if comp.remoteCandidates[0].Type != candidate.PeerReflexive {
		t.Errorf("discovered candidate Type = %v, want PeerReflexive", comp.remoteCandidates[0].Type)
	}
	if len(a.checklist.Pairs()) != 1 {
		t.Fatalf("expected a pair to be formed against the local host candidate")
	}
}

func TestHandleStunRequestRejectsUnknownAttributes(t *testing.T) {
	a, _ := newTestAgent(t, DefaultConfig())

	req := stun.BindingRequest()
	req.AddUsername("bogus:user")
	raw, err := stun.Encode(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	from := addr.New("192.0.2.50", 9000, addr.UDP)

	// A request flagged with unknown comprehension-required attributes
	// must be rejected with 420 before credentials are even checked, and
	// must not register a peer-reflexive candidate.
	a.handleStunRequest(req, raw, from, []stun.AttrType{0x0001})
	if len(a.component(1).remoteCandidates) != 0 {
		t.Error("a request carrying unknown attributes must not discover a peer-reflexive candidate")
	}
}

func TestHandleCheckSuccessOperatesOnValidPairNotStalePair(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IsControlling = true
	a, _ := newTestAgent(t, cfg)

	local := candidate.NewHost("mid0", 1, addr.New("192.0.2.1", 5000, addr.UDP))
	remote := candidate.Candidate{Mid: "mid0", Component: 1, Address: addr.New("192.0.2.2", 6000, addr.UDP)}
	a.checklist.AddPairs([]candidate.Candidate{local}, []candidate.Candidate{remote})
	p := a.checklist.Pairs()[0]

	// The response's mapped address diverges from the checked local
	// candidate's address: this must be treated as a peer-reflexive
	// discovery, and the succeeded state must land on the (mapped, remote)
	// pair, not on p.
	mapped := addr.New("203.0.113.9", 7000, addr.UDP)
	resp := stun.NewMessage(stun.ClassSuccessResponse, stun.MethodBinding, stun.NewTransactionID())
	resp.AddXorMappedAddress(mapped)

	a.handleCheckSuccess(p, true, resp)

	if p.State != candidate.Succeeded {
		t.Errorf("original pair state = %v, want Succeeded", p.State)
	}
	if p.ValidatedBy == nil || p.ValidatedBy.Local.Address != mapped {
		t.Fatalf("expected p.ValidatedBy to reference the (mapped, remote) pair")
	}
	nominated := a.component(1).nominated
	if nominated == nil || nominated.Local.Address != mapped {
		t.Errorf("expected the nominated pair to be the valid (mapped, remote) pair, not the stale checked pair")
	}
}

func TestNominatePairOnlyOnce(t *testing.T) {
	a, _ := newTestAgent(t, DefaultConfig())

	local := candidate.NewHost("mid0", 1, addr.New("192.0.2.1", 5000, addr.UDP))
	remote := candidate.Candidate{Mid: "mid0", Component: 1, Address: addr.New("192.0.2.2", 6000, addr.UDP)}
	p1 := candidate.NewPair(0, local, remote)
	p2 := candidate.NewPair(1, local, remote)

	a.nominatePair(p1)
	a.nominatePair(p2)

	if a.component(1).nominated != p1 {
		t.Error("a second call to nominatePair must not replace the first nomination")
	}
	if p2.Nominated {
		t.Error("the second pair must not be marked Nominated")
	}

	drained := 0
	for {
		select {
		case <-a.Events:
			drained++
		default:
			goto done
		}
	}
done:
	if drained != 2 {
		t.Errorf("expected exactly 2 events (Nominated, Connected) from the single nomination, got %d", drained)
	}
}

func TestConsentFailureDisconnectsAfterMaxRetransmissions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConsentMaxRetransmissions = 2
	a, _ := newTestAgent(t, cfg)

	local := candidate.NewHost("mid0", 1, addr.New("192.0.2.1", 5000, addr.UDP))
	remote := candidate.Candidate{Mid: "mid0", Component: 1, Address: addr.New("192.0.2.2", 6000, addr.UDP)}
	p := candidate.NewPair(0, local, remote)
	a.component(1).nominated = p

	a.handleConsentResult(1, transaction.Result{Kind: transaction.KindTimeout})
	select {
	case ev := <-a.Events:
		t.Fatalf("unexpected event after only 1 of 2 allowed failures: %+v", ev)
	case <-time.After(10 * time.Millisecond):
	}

	a.handleConsentResult(1, transaction.Result{Kind: transaction.KindTimeout})
	select {
	case ev := <-a.Events:
		if ev.Kind != EventDisconnected {
			t.Errorf("Kind = %v, want EventDisconnected", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected EventDisconnected after ConsentMaxRetransmissions consecutive failures")
	}
}

func TestConsentSuccessResetsFailureCount(t *testing.T) {
	a, _ := newTestAgent(t, DefaultConfig())
	local := candidate.NewHost("mid0", 1, addr.New("192.0.2.1", 5000, addr.UDP))
	remote := candidate.Candidate{Mid: "mid0", Component: 1, Address: addr.New("192.0.2.2", 6000, addr.UDP)}
	comp := a.component(1)
	comp.nominated = candidate.NewPair(0, local, remote)
	comp.consentFails = 5

	a.handleConsentResult(1, transaction.Result{Kind: transaction.KindSuccess})

	if comp.consentFails != 0 {
		t.Errorf("consentFails = %d, want 0 after a successful consent check", comp.consentFails)
	}
}
