package harvest

import (
	"context"
	"errors"
	"testing"

	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/candidate"
)

type fakeHarvester struct {
	cands []candidate.Candidate
	err   error
}

func (f *fakeHarvester) Harvest(ctx context.Context, mid string, component int) ([]candidate.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cands, nil
}

func TestGatherAllCombinesSuccessfulHarvesters(t *testing.T) {
	base := addr.New("192.168.1.5", 5000, addr.UDP)
	h1 := &fakeHarvester{cands: []candidate.Candidate{candidate.NewHost("0", 1, base)}}
	h2 := &fakeHarvester{cands: []candidate.Candidate{candidate.NewHost("0", 1, addr.New("192.168.1.6", 5001, addr.UDP))}}

	got := GatherAll(context.Background(), "0", 1, []Harvester{h1, h2}, nil)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
}

func TestGatherAllSkipsFailedHarvesters(t *testing.T) {
	base := addr.New("192.168.1.5", 5000, addr.UDP)
	ok := &fakeHarvester{cands: []candidate.Candidate{candidate.NewHost("0", 1, base)}}
	bad := &fakeHarvester{err: errors.New("boom")}

	var failed Harvester
	got := GatherAll(context.Background(), "0", 1, []Harvester{ok, bad}, func(h Harvester, err error) {
		failed = h
	})

	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if failed != bad {
		t.Error("onError was not called with the failing harvester")
	}
}
