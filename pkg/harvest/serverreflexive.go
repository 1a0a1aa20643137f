package harvest

import (
	"context"

	"github.com/pkg/errors"

	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/candidate"
	"github.com/lanikai/iceagent/pkg/stun"
	"github.com/lanikai/iceagent/pkg/transaction"
)

// ServerReflexiveHarvester sends a STUN Binding request from each base
// address to a configured STUN server and turns the XOR-MAPPED-ADDRESS in
// the response into a server-reflexive candidate.
type ServerReflexiveHarvester struct {
	Server addr.TransportAddress
	Layer  *transaction.Layer
	Bases  []addr.TransportAddress
}

func (h *ServerReflexiveHarvester) Harvest(ctx context.Context, mid string, component int) ([]candidate.Candidate, error) {
	var cands []candidate.Candidate
	for _, base := range h.Bases {
		req := stun.BindingRequest()
		ct := h.Layer.StartClientTransaction(ctx, req, h.Server, base.Protocol != addr.UDP)

		select {
		case <-ctx.Done():
			ct.Cancel()
			return cands, ctx.Err()
		case r := <-ct.Done():
			switch r.Kind {
			case transaction.KindSuccess:
				mapped, ok := r.Response.XorMappedAddress()
				if !ok {
					continue
				}
				cands = append(cands, candidate.NewServerReflexive(mid, component, mapped, base, h.Server.String()))
			case transaction.KindTimeout:
				continue
			default:
				continue
			}
		}
	}
	if len(cands) == 0 {
		return nil, errors.New("harvest: server-reflexive gathering produced no candidates")
	}
	return cands, nil
}
