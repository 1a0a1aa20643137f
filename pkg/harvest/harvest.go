// Package harvest implements the Harvester abstraction: the sources of
// local candidates (host interfaces, STUN server-reflexive mappings, TURN
// relays, and static address mappings).
package harvest

import (
	"context"

	"github.com/lanikai/iceagent/pkg/candidate"
)

// Harvester gathers local candidates for one component. Harvest must be
// idempotent — calling it again (e.g. on an ICE restart) re-gathers
// without duplicating already-held state.
type Harvester interface {
	Harvest(ctx context.Context, mid string, component int) ([]candidate.Candidate, error)
}

// GatherAll runs every harvester concurrently with an overall deadline
// from ctx, per the concurrency model's "individual failures are logged,
// not fatal" rule: a harvester erroring just contributes no candidates
// rather than aborting the others.
func GatherAll(ctx context.Context, mid string, component int, harvesters []Harvester, onError func(Harvester, error)) []candidate.Candidate {
	type result struct {
		cands []candidate.Candidate
		err   error
		h     Harvester
	}
	ch := make(chan result, len(harvesters))
	for _, h := range harvesters {
		h := h
		go func() {
			cands, err := h.Harvest(ctx, mid, component)
			ch <- result{cands, err, h}
		}()
	}

	var all []candidate.Candidate
	for range harvesters {
		r := <-ch
		if r.err != nil {
			if onError != nil {
				onError(r.h, r.err)
			}
			continue
		}
		all = append(all, r.cands...)
	}
	return all
}
