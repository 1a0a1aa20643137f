package harvest

import (
	"context"
	"net"

	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/candidate"
)

// MappingHarvester produces a server-reflexive-typed candidate for each
// host candidate by substituting a statically configured public address
// (masked by a local subnet match), without contacting any server. This
// covers deployments behind a 1:1 NAT with a known public IP (e.g. a
// cloud VM), where STUN gathering would be redundant round-trip cost for
// an address that is already known.
type MappingHarvester struct {
	// Faces maps a local network (e.g. the VM's private subnet) to the
	// public address it is NATed to.
	Faces map[*net.IPNet]net.IP

	Bases []addr.TransportAddress
}

func (h *MappingHarvester) Harvest(ctx context.Context, mid string, component int) ([]candidate.Candidate, error) {
	var cands []candidate.Candidate
	for _, base := range h.Bases {
		ip := net.ParseIP(base.IP)
		if ip == nil {
			continue
		}
		for subnet, public := range h.Faces {
			if subnet.Contains(ip) {
				mapped := addr.New(public.String(), base.Port, base.Protocol)
				cands = append(cands, candidate.NewServerReflexive(mid, component, mapped, base, ""))
				break
			}
		}
	}
	return cands, nil
}
