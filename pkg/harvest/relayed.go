package harvest

import (
	"context"
	"time"

	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/candidate"
	"github.com/lanikai/iceagent/pkg/credentials"
	"github.com/lanikai/iceagent/pkg/transaction"
	"github.com/lanikai/iceagent/pkg/turnclient"
)

// RelayedHarvester obtains a relayed candidate from a TURN server and
// keeps its allocation alive via periodic Refresh calls.
type RelayedHarvester struct {
	Server addr.TransportAddress
	Layer  *transaction.Layer
	Creds  credentials.LongTerm

	Scheduler interface {
		After(ctx context.Context, delay time.Duration, fn func())
	}

	client *turnclient.Client
}

func (h *RelayedHarvester) Harvest(ctx context.Context, mid string, component int) ([]candidate.Candidate, error) {
	h.client = &turnclient.Client{
		Server: h.Server,
		Layer:  h.Layer,
		Creds:  h.Creds,
	}
	if err := h.client.Allocate(ctx); err != nil {
		return nil, err
	}

	h.scheduleRefresh(ctx)

	return []candidate.Candidate{
		candidate.NewRelayed(mid, component, h.client.RelayedAddress, h.client.MappedAddress, h.Server.String()),
	}, nil
}

// scheduleRefresh renews the allocation at lifetime/2, per RFC 5766 §7's
// recommended refresh cadence.
func (h *RelayedHarvester) scheduleRefresh(ctx context.Context) {
	if h.Scheduler == nil {
		return
	}
	lifetime := time.Duration(h.client.Lifetime) * time.Second
	if lifetime <= 0 {
		return
	}
	var again func()
	again = func() {
		if ctx.Err() != nil {
			return
		}
		if err := h.client.Refresh(ctx, h.client.Lifetime); err == nil {
			h.Scheduler.After(ctx, time.Duration(h.client.Lifetime)*time.Second/2, again)
		}
	}
	h.Scheduler.After(ctx, lifetime/2, again)
}
