package ice

import (
	"context"
	"math/rand"
	"time"

	"github.com/lanikai/iceagent/internal/logging"
	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/candidate"
	"github.com/lanikai/iceagent/pkg/credentials"
	"github.com/lanikai/iceagent/pkg/harvest"
	"github.com/lanikai/iceagent/pkg/netaccess"
	"github.com/lanikai/iceagent/pkg/transaction"
)

var log = logging.DefaultLogger.WithTag("ice")

// Agent is an IceMediaStream: one or more Components (RTP=1, RTCP=2, ...)
// grouped under a single checklist and a single set of short-term
// credentials, gathering and connectivity-checking as a unit and
// completing once every component has a nominated pair. All of its
// mutable state — candidates, checklist, role — is only ever touched from
// the single goroutine run by Run, which serializes every external call
// (AddRemoteCandidate, incoming network events, timer ticks) through the
// cmds channel: one loop per stream rather than one per component.
//
// Every component shares this Agent's NetAccessManager/TransactionLayer;
// that's valid for the common BUNDLE/rtcp-mux deployment where a single
// 5-tuple carries every component's traffic, and is why incoming checks
// (which arrive on that one socket) are attributed to primaryComponent —
// see handleStunRequest.
type Agent struct {
	cfg Config
	mid string

	components       map[int]*Component
	componentOrder   []int
	primaryComponent int

	creds   credentials.ShortTerm
	credReg *credentials.Registry

	net   *netaccess.Manager
	layer *transaction.Layer
	sched *transaction.Scheduler

	checklist *candidate.Checklist

	isControlling bool
	tieBreaker    uint64

	Events chan Event

	cmds   chan func()
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAgent wires a new Agent around an already-bound NetAccessManager and
// TransactionLayer (so multiple agents/streams may share a socket pool),
// managing one Component per id in componentIDs (usually just {1}, or
// {1, 2} for an RTP+RTCP pair). Run must be called before any activity
// occurs.
func NewAgent(ctx context.Context, cfg Config, mid string, componentIDs []int, n *netaccess.Manager, layer *transaction.Layer, sched *transaction.Scheduler) *Agent {
	cctx, cancel := context.WithCancel(ctx)
	checklist := candidate.NewChecklist(cfg.IsControlling)
	if cfg.MaxCheckListSize > 0 {
		checklist.MaxCheckListSize = cfg.MaxCheckListSize
	}
	a := &Agent{
		cfg:           cfg,
		mid:           mid,
		components:    make(map[int]*Component, len(componentIDs)),
		credReg:       credentials.NewRegistry(),
		net:           n,
		layer:         layer,
		sched:         sched,
		checklist:     checklist,
		isControlling: cfg.IsControlling,
		tieBreaker:    cfg.TieBreaker,
		Events:        make(chan Event, 16),
		cmds:          make(chan func(), 64),
		ctx:           cctx,
		cancel:        cancel,
	}
	for i, id := range componentIDs {
		a.components[id] = newComponent(id)
		a.componentOrder = append(a.componentOrder, id)
		if i == 0 {
			a.primaryComponent = id
		}
	}
	if a.tieBreaker == 0 {
		a.tieBreaker = rand.Uint64()
	}
	a.creds = credentials.ShortTerm{LocalUfrag: cfg.LocalUfrag, LocalPwd: cfg.LocalPwd}
	n.Router = layer.HandleIncoming
	n.OnRequest = a.onStunRequest
	return a
}

// component returns the Component state for id, registering it as an
// extra stream member on first use (e.g. a peer-reflexive discovery for a
// component id not passed to NewAgent).
func (a *Agent) component(id int) *Component {
	c, ok := a.components[id]
	if !ok {
		c = newComponent(id)
		a.components[id] = c
		a.componentOrder = append(a.componentOrder, id)
	}
	return c
}

// SetRemoteCredentials records the peer's ufrag/pwd, learned out-of-band
// via the signaling collaborator.
func (a *Agent) SetRemoteCredentials(ufrag, pwd string) {
	a.do(func() {
		a.creds.RemoteUfrag, a.creds.RemotePwd = ufrag, pwd
		a.credReg.RegisterShortTerm(a.creds)
	})
}

// do serializes fn onto the agent's single mutation goroutine and blocks
// until it has run.
func (a *Agent) do(fn func()) {
	done := make(chan struct{})
	select {
	case a.cmds <- func() { fn(); close(done) }:
		<-done
	case <-a.ctx.Done():
	}
}

// Run is the actor loop: the only place Agent state is mutated.
func (a *Agent) Run() {
	pace := time.NewTicker(a.paceInterval())
	defer pace.Stop()
	consent := time.NewTicker(a.cfg.ConsentInterval)
	defer consent.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case fn := <-a.cmds:
			fn()
		case <-pace.C:
			a.tick()
		case <-consent.C:
			a.sendConsentCheck()
		}
	}
}

func (a *Agent) Close() {
	a.cancel()
}

func (a *Agent) paceInterval() time.Duration {
	// RFC 8445 §14.2: Ta = max(paceMakerMinInterval, N * paceMakerMinInterval)
	// where N is the number of in-flight media streams sharing the
	// pacer; this Agent paces a single stream, so N=1.
	return a.cfg.PaceMakerMinInterval
}

// tick drives one connectivity check per pace interval (RFC 8445 §6.1.4).
func (a *Agent) tick() {
	p := a.checklist.NextPair()
	if p == nil {
		if a.checklist.HasCompleted() && !a.streamCompleted() {
			a.fail()
		}
		return
	}
	a.sendCheck(p, a.shouldNominate(p))
}

// streamCompleted reports whether every component has a nominated pair —
// the IceMediaStream "Completed" state (RFC 8445 §8).
func (a *Agent) streamCompleted() bool {
	if len(a.componentOrder) == 0 {
		return false
	}
	for _, id := range a.componentOrder {
		if a.components[id].nominated == nil {
			return false
		}
	}
	return true
}

// Gather runs harvesters concurrently for componentID and adds every
// resulting candidate to that component's local set and the shared
// checklist, then sends a single EventGatheringDone on Events. Individual
// candidates are not reported on Events; callers read them with
// LocalCandidates.
func (a *Agent) Gather(componentID int, harvesters []harvest.Harvester) {
	gctx, cancel := context.WithTimeout(a.ctx, a.cfg.GatherTimeout)
	defer cancel()

	cands := harvest.GatherAll(gctx, a.mid, componentID, harvesters, func(h harvest.Harvester, err error) {
		log.Warn("harvester %T failed: %v", h, err)
	})

	a.do(func() {
		for _, c := range cands {
			a.addLocalCandidateLocked(c)
		}
	})
	log.Info("gathered %d local candidates for mid=%s component=%d", len(cands), a.mid, componentID)
	a.Events <- Event{Kind: EventGatheringDone}
}

func (a *Agent) addLocalCandidateLocked(c candidate.Candidate) {
	comp := a.component(c.Component)
	comp.localCandidates = append(comp.localCandidates, c)
	a.checklist.AddPairs([]candidate.Candidate{c}, a.component(c.Component).remoteCandidates)
}

// AddRemoteCandidate pairs a trickled remote candidate against every
// known local candidate of the same component.
func (a *Agent) AddRemoteCandidate(c candidate.Candidate) {
	a.do(func() {
		comp := a.component(c.Component)
		comp.remoteCandidates = append(comp.remoteCandidates, c)
		a.checklist.AddPairs(comp.localCandidates, []candidate.Candidate{c})
	})
}

func (a *Agent) fail() {
	select {
	case a.Events <- Event{Kind: EventFailed}:
	default:
	}
}

// LocalAddr exposes the socket address checks are sent from, used by
// callers constructing signaling payloads.
func (a *Agent) LocalAddr() addr.TransportAddress {
	return addr.FromNetAddr(a.net.LocalAddr())
}

// LocalCandidates returns every local candidate gathered so far, across
// every component.
func (a *Agent) LocalCandidates() []candidate.Candidate {
	var out []candidate.Candidate
	a.do(func() {
		for _, id := range a.componentOrder {
			out = append(out, a.components[id].localCandidates...)
		}
	})
	return out
}
