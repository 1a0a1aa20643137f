// Package candidate implements the ICE data model: candidates, candidate
// pairs, and checklists (RFC 8445 §5-6).
package candidate

import (
	"encoding/base32"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/lanikai/iceagent/pkg/addr"
)

// Type is the candidate kind (RFC 8445 §5.1.1).
type Type int

const (
	Host Type = iota
	ServerReflexive
	PeerReflexive
	Relayed
)

func (t Type) String() string {
	switch t {
	case Host:
		return "host"
	case ServerReflexive:
		return "srflx"
	case PeerReflexive:
		return "prflx"
	case Relayed:
		return "relay"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

func ParseType(s string) (Type, error) {
	switch s {
	case "host":
		return Host, nil
	case "srflx":
		return ServerReflexive, nil
	case "prflx":
		return PeerReflexive, nil
	case "relay":
		return Relayed, nil
	default:
		return Host, fmt.Errorf("candidate: unknown type %q", s)
	}
}

// Extension is an unrecognized "name value" pair carried in a candidate
// line (RFC 8445 §5.1 extension-att).
type Extension struct {
	Name  string
	Value string
}

// Candidate is a local or remote ICE candidate (RFC 8445 §5.3). Local
// candidates carry a non-empty BaseAddress (the address of the socket it
// was gathered from); remote candidates, learned via signaling, do not.
type Candidate struct {
	Mid         string
	Component   int
	Type        Type
	Address     addr.TransportAddress
	BaseAddress addr.TransportAddress
	Priority    uint32
	Foundation  string
	RelatedAddr addr.TransportAddress // raddr/rport; zero value if none
	StunServer  string                // the server/TURN host this was gathered from, if any
	Extensions  []Extension
}

// typePreference values per RFC 8445 §5.1.2.1 recommended defaults.
const (
	prefHost            = 126
	prefPeerReflexive   = 110
	prefServerReflexive = 100
	prefRelayed         = 0
)

func typePreference(t Type) int {
	switch t {
	case Host:
		return prefHost
	case PeerReflexive:
		return prefPeerReflexive
	case ServerReflexive:
		return prefServerReflexive
	case Relayed:
		return prefRelayed
	default:
		return 0
	}
}

// ComputePriority implements the RFC 8445 §5.1.2.1 formula:
//
//	priority = (2^24)*typePreference + (2^8)*localPreference + (256-componentId)
//
// localPreference defaults to the maximum (65535); multihomed hosts should
// rank candidates from different local addresses by passing a lower value
// for the less-preferred ones.
func ComputePriority(t Type, component int, localPreference int) uint32 {
	if localPreference <= 0 {
		localPreference = 65535
	}
	return uint32(typePreference(t))<<24 | uint32(localPreference)<<8 | uint32(256-component)
}

// ComputeFoundation implements RFC 8445 §5.1.1.3: candidates of the same
// type, from the same base, over the same protocol, learned via the same
// STUN/TURN server (or none) share a foundation. stunServer is empty for
// host candidates.
func ComputeFoundation(t Type, base addr.TransportAddress, stunServer string) string {
	fingerprint := fmt.Sprintf("%s/%s/%s", t, base.Protocol, base.IP)
	if stunServer != "" {
		fingerprint += "/" + stunServer
	}
	h := fnv.New64()
	h.Write([]byte(fingerprint))
	return base32.StdEncoding.EncodeToString(h.Sum(nil))[:8]
}

// NewHost builds a host candidate rooted at base.
func NewHost(mid string, component int, base addr.TransportAddress) Candidate {
	return Candidate{
		Mid:         mid,
		Component:   component,
		Type:        Host,
		Address:     base,
		BaseAddress: base,
		Priority:    ComputePriority(Host, component, 0),
		Foundation:  ComputeFoundation(Host, base, ""),
	}
}

// NewServerReflexive builds a server-reflexive candidate discovered via a
// STUN Binding request sent from base and answered with mapped.
func NewServerReflexive(mid string, component int, mapped, base addr.TransportAddress, stunServer string) Candidate {
	return Candidate{
		Mid:         mid,
		Component:   component,
		Type:        ServerReflexive,
		Address:     mapped,
		BaseAddress: base,
		Priority:    ComputePriority(ServerReflexive, component, 0),
		Foundation:  ComputeFoundation(ServerReflexive, base, stunServer),
		RelatedAddr: base,
		StunServer:  stunServer,
	}
}

// NewRelayed builds a relayed candidate from a TURN ALLOCATE response.
func NewRelayed(mid string, component int, relayed, base addr.TransportAddress, turnServer string) Candidate {
	return Candidate{
		Mid:         mid,
		Component:   component,
		Type:        Relayed,
		Address:     relayed,
		BaseAddress: base,
		Priority:    ComputePriority(Relayed, component, 0),
		Foundation:  ComputeFoundation(Relayed, base, turnServer),
		RelatedAddr: base,
		StunServer:  turnServer,
	}
}

// NewPeerReflexive builds a peer-reflexive candidate discovered from the
// source address of an incoming connectivity check, with the priority
// asserted by the PRIORITY attribute on that check (RFC 8445 §7.3.1.3 /
// §7.2.5.3.1).
func NewPeerReflexive(mid string, component int, observed, base addr.TransportAddress, priority uint32) Candidate {
	return Candidate{
		Mid:         mid,
		Component:   component,
		Type:        PeerReflexive,
		Address:     observed,
		BaseAddress: base,
		Priority:    priority,
		Foundation:  ComputeFoundation(PeerReflexive, observed, ""),
	}
}

func (c Candidate) IsReflexive() bool {
	return c.Type == ServerReflexive || c.Type == PeerReflexive
}

// SDPString renders the candidate-attribute line per RFC 8445 §5.1 /
// draft-ietf-mmusic-ice-sip-sdp.
func (c Candidate) SDPString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "candidate:%s %d %s %d %s %d typ %s",
		c.Foundation, c.Component, c.Address.Protocol, c.Priority, c.Address.IP, c.Address.Port, c.Type)
	if c.RelatedAddr.IP != "" {
		fmt.Fprintf(&b, " raddr %s rport %d", c.RelatedAddr.IP, c.RelatedAddr.Port)
	}
	for _, e := range c.Extensions {
		fmt.Fprintf(&b, " %s %s", e.Name, e.Value)
	}
	return b.String()
}

func (c Candidate) String() string {
	return c.SDPString()
}

// ParseSDP parses a candidate-attribute line (without the leading "a=").
func ParseSDP(line string) (Candidate, error) {
	var c Candidate
	var foundation, protoStr, ip, typStr string
	var port int
	n, err := fmt.Sscanf(line, "candidate:%s %d %s %d %s %d typ %s",
		&foundation, &c.Component, &protoStr, &c.Priority, &ip, &port, &typStr)
	if err != nil || n < 7 {
		return c, fmt.Errorf("candidate: malformed SDP line %q: %w", line, err)
	}
	if c.Component < 1 || c.Component > 256 {
		return c, fmt.Errorf("candidate: component id out of range: %d", c.Component)
	}
	proto, err := addr.ParseProtocol(protoStr)
	if err != nil {
		return c, err
	}
	c.Foundation = strings.TrimPrefix(foundation, "candidate:")
	c.Address = addr.New(ip, port, proto)
	typ, err := ParseType(strings.TrimSuffix(typStr, "\n"))
	if err != nil {
		return c, err
	}
	c.Type = typ

	fields := strings.Fields(line)
	for i := 0; i+1 < len(fields); i++ {
		switch fields[i] {
		case "raddr":
			c.RelatedAddr.IP = fields[i+1]
		case "rport":
			fmt.Sscanf(fields[i+1], "%d", &c.RelatedAddr.Port)
		}
	}
	return c, nil
}
