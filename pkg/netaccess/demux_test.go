package netaccess

import (
	"net"
	"testing"
	"time"

	"github.com/lanikai/iceagent/pkg/stun"
)

func TestDemuxDispatchesToFirstMatch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	d := NewDemux(server, 1500)
	defer d.Close()

	stunEP := d.NewEndpoint(MatchSTUN)
	appEP := d.NewEndpoint(func([]byte) bool { return true })

	req := stun.BindingRequest()
	raw, err := stun.Encode(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	go client.Write(raw)

	buf := make([]byte, 1500)
	n, err := stunEP.Read(buf)
	if err != nil {
		t.Fatalf("stunEP.Read: %v", err)
	}
	if n != len(raw) {
		t.Errorf("read %d bytes, want %d", n, len(raw))
	}

	go client.Write([]byte("hello"))
	n, err = appEP.Read(buf)
	if err != nil {
		t.Fatalf("appEP.Read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("appEP got %q, want %q", buf[:n], "hello")
	}
}

func TestDemuxFallsThroughToBase(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	d := NewDemux(server, 1500)
	defer d.Close()

	// No endpoint registered at all: every datagram must land on Base
	// instead of being silently dropped.
	go client.Write([]byte("unclaimed"))

	select {
	case buf := <-d.Base:
		if string(buf) != "unclaimed" {
			t.Errorf("Base got %q, want %q", buf, "unclaimed")
		}
	case <-time.After(time.Second):
		t.Fatal("datagram matching no endpoint was never delivered to Base")
	}
}

func TestDemuxChannelDataMatch(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	d := NewDemux(server, 1500)
	defer d.Close()

	cdEP := d.NewEndpoint(MatchChannelData)
	_ = d.NewEndpoint(func([]byte) bool { return true })

	frame := stun.EncodeChannelData(0x4001, []byte{1, 2, 3}, false)
	go client.Write(frame)

	buf := make([]byte, 1500)
	n, err := cdEP.Read(buf)
	if err != nil {
		t.Fatalf("cdEP.Read: %v", err)
	}
	if n != len(frame) {
		t.Errorf("read %d bytes, want %d", n, len(frame))
	}
}

func TestEndpointReadBlocksUntilDelivered(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	d := NewDemux(server, 1500)
	defer d.Close()

	ep := d.NewEndpoint(func([]byte) bool { return true })

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 16)
		ep.Read(buf)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Read returned before any data was written")
	case <-time.After(50 * time.Millisecond):
	}

	client.Write([]byte("x"))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Read never unblocked after a write")
	}
}

func TestEndpointCloseUnblocksRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	d := NewDemux(server, 1500)
	ep := d.NewEndpoint(func([]byte) bool { return true })

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, err := ep.Read(buf)
		done <- err
	}()

	ep.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected an error (io.EOF) after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Read never unblocked after Close")
	}
}
