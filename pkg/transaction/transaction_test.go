package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/stun"
)

func TestHandleIncomingResolvesMatchingTransaction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := NewScheduler()
	dest := addr.New("127.0.0.1", 3478, addr.UDP)
	sent := make(chan []byte, 8)
	layer := NewLayer(ctx, sched, func(d addr.TransportAddress, raw []byte) error {
		sent <- raw
		return nil
	})

	req := stun.BindingRequest()
	ct := layer.StartClientTransaction(ctx, req, dest, false)

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("request was never sent")
	}

	resp := stun.NewMessage(stun.ClassSuccessResponse, stun.MethodBinding, req.TransactionID)
	raw, err := stun.Encode(resp)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := stun.Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if matched := layer.HandleIncoming(decoded, raw); !matched {
		t.Fatal("HandleIncoming did not match the outstanding transaction")
	}

	select {
	case r := <-ct.Done():
		if r.Kind != KindSuccess {
			t.Errorf("Kind = %v, want KindSuccess", r.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("transaction never settled")
	}
}

func TestHandleIncomingIgnoresUnmatchedResponse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := NewScheduler()
	layer := NewLayer(ctx, sched, func(addr.TransportAddress, []byte) error { return nil })

	resp := stun.NewMessage(stun.ClassSuccessResponse, stun.MethodBinding, stun.NewTransactionID())
	raw, _ := stun.Encode(resp)
	decoded, _ := stun.Decode(raw)

	if matched := layer.HandleIncoming(decoded, raw); matched {
		t.Error("HandleIncoming matched a response with no outstanding transaction")
	}
}

func TestClientTransactionUnreachableOnSendError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := NewScheduler()
	wantErr := errors.New("no route to host")
	ct := newClientTransaction(ctx, sched, stun.BindingRequest(), func([]byte) error {
		return wantErr
	}, false)

	select {
	case r := <-ct.Done():
		if r.Kind != KindUnreachable {
			t.Errorf("Kind = %v, want KindUnreachable", r.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("transaction never settled")
	}
}

func TestClientTransactionReliableSendError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := NewScheduler()
	ct := newClientTransaction(ctx, sched, stun.BindingRequest(), func([]byte) error {
		return errors.New("connection refused")
	}, true)

	select {
	case r := <-ct.Done():
		if r.Kind != KindUnreachable {
			t.Errorf("Kind = %v, want KindUnreachable", r.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("transaction never settled")
	}
}

func TestClientTransactionCancelDoesNotSettle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := NewScheduler()
	sendCount := make(chan struct{}, 1)
	ct := newClientTransaction(ctx, sched, stun.BindingRequest(), func([]byte) error {
		select {
		case sendCount <- struct{}{}:
		default:
		}
		return nil
	}, false)

	<-sendCount
	ct.Cancel()

	select {
	case <-ct.Done():
		t.Error("Done fired after Cancel with no resolve/timeout")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServerResponseCacheRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := NewScheduler()
	layer := NewLayer(ctx, sched, func(addr.TransportAddress, []byte) error { return nil })

	txID := stun.NewTransactionID()
	remote := addr.New("10.0.0.5", 4000, addr.UDP)
	layer.CacheServerResponse(txID, remote, []byte{1, 2, 3})

	raw, ok := layer.LookupServerResponse(txID, remote)
	if !ok {
		t.Fatal("expected cached response to be found")
	}
	if len(raw) != 3 || raw[0] != 1 {
		t.Errorf("unexpected cached bytes: %v", raw)
	}

	other := addr.New("10.0.0.6", 4000, addr.UDP)
	if _, ok := layer.LookupServerResponse(txID, other); ok {
		t.Error("lookup should not match a different remote address")
	}
}

func TestSchedulerAfterFiresOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := NewScheduler()
	fired := make(chan struct{}, 1)
	sched.After(ctx, 10*time.Millisecond, func() {
		fired <- struct{}{}
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("After callback never fired")
	}
}
