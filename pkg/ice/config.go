// Package ice implements AgentCore, the ConnectivityChecker, the
// NominationEngine, and ConsentFreshness — the ICE agent itself, wired
// together from pkg/stun, pkg/transaction, pkg/candidate, pkg/netaccess,
// and pkg/harvest.
package ice

import (
	"time"

	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/candidate"
)

// NominationStrategy selects when a controlling agent marks a pair
// nominated (RFC 8445 §8.1.1).
type NominationStrategy int

const (
	// NominateAfterRegularChecks nominates the first pair that reaches
	// Succeeded via ordinary connectivity checks. The default.
	NominateAfterRegularChecks NominationStrategy = iota
	// NominateHighestPriority waits for every pair to resolve, then
	// nominates the highest-priority Succeeded pair.
	NominateHighestPriority
)

// Config holds every tunable named in the external interface surface.
type Config struct {
	// IsControlling selects this agent's ICE role. Roles may flip during
	// a role conflict (RFC 8445 §7.3.1.1); Agent tracks the live value
	// separately from this initial default.
	IsControlling bool

	// TieBreaker disambiguates simultaneous role conflicts (RFC 8445
	// §7.3.1.1). Should be a fresh random value per agent instance.
	TieBreaker uint64

	LocalUfrag string
	LocalPwd   string

	STUNServers []addr.TransportAddress
	TURNServers []addr.TransportAddress
	TURNUser    string
	TURNPass    string

	EnableIPv6       bool
	AllowInterfaces  []string
	BlockInterfaces  []string
	SocketPoolSize   int

	Nomination NominationStrategy

	// Pacing interval floor; actual Ta is max(PaceMakerMinInterval,
	// N*PaceMakerMinInterval) per RFC 8445 §14.
	PaceMakerMinInterval time.Duration

	ConsentInterval          time.Duration
	ConsentMaxRetransmissions int

	// MaxCheckListSize bounds each stream's checklist after sorting by
	// priority; pairs past this position are dropped (RFC 8445 §6.1.2.5
	// recommends 100). Zero means candidate.DefaultMaxCheckListSize.
	MaxCheckListSize int

	GatherTimeout time.Duration
}

// DefaultConfig returns a Config with the defaults named in the external
// interface table.
func DefaultConfig() Config {
	return Config{
		PaceMakerMinInterval:      20 * time.Millisecond,
		ConsentInterval:           15 * time.Second,
		ConsentMaxRetransmissions: 30,
		GatherTimeout:             10 * time.Second,
		SocketPoolSize:            1,
		MaxCheckListSize:          candidate.DefaultMaxCheckListSize,
		Nomination:                NominateAfterRegularChecks,
	}
}
