package netaccess

import (
	"net"
	"testing"
	"time"
)

func TestSocketPoolSendReachesListener(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	pool, err := NewSocketPool(2, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("NewSocketPool: %v", err)
	}
	defer pool.Close()

	if len(pool.Conns()) != 2 {
		t.Fatalf("pool has %d sockets, want 2", len(pool.Conns()))
	}

	dest := listener.LocalAddr().(*net.UDPAddr)
	if err := pool.Send([]byte("ping"), dest); err != nil {
		t.Fatalf("Send: %v", err)
	}

	listener.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, _, err := listener.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Errorf("got %q, want %q", buf[:n], "ping")
	}
}

func TestSocketPoolOutstandingReturnsToZero(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	pool, err := NewSocketPool(1, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("NewSocketPool: %v", err)
	}
	defer pool.Close()

	dest := listener.LocalAddr().(*net.UDPAddr)
	for i := 0; i < 3; i++ {
		if err := pool.Send([]byte("x"), dest); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	for _, n := range pool.outstanding {
		if n != 0 {
			t.Errorf("outstanding count = %d, want 0 after sends complete", n)
		}
	}
}
