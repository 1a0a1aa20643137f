package harvest

import (
	"context"
	"net"

	"github.com/pkg/errors"

	addrpkg "github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/candidate"
)

// HostHarvester gathers host candidates by enumerating local network
// interfaces.
type HostHarvester struct {
	EnableIPv6 bool

	// AllowInterfaces, if non-empty, restricts gathering to interfaces
	// whose name appears here.
	AllowInterfaces []string
	// BlockInterfaces excludes interfaces whose name appears here.
	BlockInterfaces []string

	// Bind is called to claim a local UDP socket for a candidate address;
	// tests substitute a fake. Returns the bound local address.
	Bind func(ip net.IP) (addrpkg.TransportAddress, error)
}

func (h *HostHarvester) allowed(name string) bool {
	if len(h.AllowInterfaces) > 0 {
		found := false
		for _, n := range h.AllowInterfaces {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, n := range h.BlockInterfaces {
		if n == name {
			return false
		}
	}
	return true
}

func (h *HostHarvester) Harvest(ctx context.Context, mid string, component int) ([]candidate.Candidate, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, errors.Wrap(err, "harvest: enumerate interfaces")
	}

	var cands []candidate.Candidate
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if !h.allowed(iface.Name) {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP
			if !h.EnableIPv6 && ip.To4() == nil {
				continue
			}
			if ip.IsLinkLocalUnicast() && !h.EnableIPv6 {
				continue
			}

			base, err := h.Bind(ip)
			if err != nil {
				// Binding can legitimately fail for e.g. a link-local
				// IPv6 address without a zone; skip it rather than
				// aborting the whole harvest.
				continue
			}
			cands = append(cands, candidate.NewHost(mid, component, base))
		}
	}
	return cands, nil
}
