package transaction

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/stun"
)

// cachedResponse is a server transaction's answer, retained so a
// retransmitted request can be answered identically rather than
// re-executing side effects (RFC 5389 §7.3).
type cachedResponse struct {
	raw      []byte
	deadline time.Time
}

// serverCacheTTL is how long a server transaction's response is retained.
// RFC 5389 §7.3 requires at least 39.5s for UDP; it also allows 10*RTO,
// which for the defaults above is 5s — we keep the longer, safer RFC
// figure.
const serverCacheTTL = 39500 * time.Millisecond

// Layer is the TransactionLayer: it owns every outstanding client
// transaction (keyed by transaction ID) and every server transaction's
// cached response (keyed by transaction ID + remote address), and
// dispatches inbound STUN messages to whichever side they belong to.
type Layer struct {
	sched *Scheduler
	send  func(addr.TransportAddress, []byte) error

	mu       sync.Mutex
	clients  map[string]*ClientTransaction
	serverID map[string]cachedResponse // key: txID + "|" + remote addr

	stopCleanup context.CancelFunc
}

// NewLayer constructs a Layer that transmits encoded messages via send.
func NewLayer(ctx context.Context, sched *Scheduler, send func(addr.TransportAddress, []byte) error) *Layer {
	cctx, cancel := context.WithCancel(ctx)
	l := &Layer{
		sched:       sched,
		send:        send,
		clients:     make(map[string]*ClientTransaction),
		serverID:    make(map[string]cachedResponse),
		stopCleanup: cancel,
	}
	sched.Every(cctx, serverCacheTTL/4, l.evictExpired)
	return l
}

func (l *Layer) Close() {
	l.stopCleanup()
}

// StartClientTransaction encodes and sends req to dest (retransmitting
// per RFC 5389 §7.2.1 unless reliable is set), registering it so a
// matching response delivered via HandleIncoming resolves it.
func (l *Layer) StartClientTransaction(ctx context.Context, req *stun.Message, dest addr.TransportAddress, reliable bool) *ClientTransaction {
	id := hex.EncodeToString(req.TransactionID)
	ct := newClientTransaction(ctx, l.sched, req, func(raw []byte) error {
		return l.send(dest, raw)
	}, reliable)

	l.mu.Lock()
	l.clients[id] = ct
	l.mu.Unlock()

	go func() {
		<-ct.Done()
		l.mu.Lock()
		delete(l.clients, id)
		l.mu.Unlock()
	}()
	return ct
}

// HandleIncoming routes a decoded STUN message to the matching client
// transaction (for responses) or reports that no such transaction exists
// (the caller should treat it as a new request for a RequestListener).
func (l *Layer) HandleIncoming(m *stun.Message, raw []byte) (matched bool) {
	if m.Class != stun.ClassSuccessResponse && m.Class != stun.ClassErrorResponse {
		return false
	}
	id := hex.EncodeToString(m.TransactionID)

	l.mu.Lock()
	ct, ok := l.clients[id]
	l.mu.Unlock()
	if !ok {
		return false
	}
	ct.resolve(m, raw)
	return true
}

// CacheServerResponse records the response a server transaction produced
// for (transactionID, remote), so a retransmitted request is answered
// identically instead of re-running request processing.
func (l *Layer) CacheServerResponse(transactionID []byte, remote addr.TransportAddress, raw []byte) {
	key := serverKey(transactionID, remote)
	l.mu.Lock()
	l.serverID[key] = cachedResponse{raw: raw, deadline: time.Now().Add(serverCacheTTL)}
	l.mu.Unlock()
}

// LookupServerResponse returns a previously cached response for a
// duplicate request, if one is still within its retention window.
func (l *Layer) LookupServerResponse(transactionID []byte, remote addr.TransportAddress) ([]byte, bool) {
	key := serverKey(transactionID, remote)
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.serverID[key]
	if !ok || time.Now().After(c.deadline) {
		return nil, false
	}
	return c.raw, true
}

func (l *Layer) evictExpired() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, c := range l.serverID {
		if now.After(c.deadline) {
			delete(l.serverID, k)
		}
	}
}

func serverKey(transactionID []byte, remote addr.TransportAddress) string {
	return hex.EncodeToString(transactionID) + "|" + remote.String()
}
