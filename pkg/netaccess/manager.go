package netaccess

import (
	"net"

	"github.com/lanikai/iceagent/internal/logging"
	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/stun"
)

var log = logging.DefaultLogger.WithTag("netaccess")

// RequestListener handles a decoded STUN request (class Request) that did
// not match any outstanding client transaction. unknown carries any
// comprehension-required attribute types the codec didn't recognize
// (empty in the common case); per RFC 5389 §7.3.3 a non-empty unknown
// means the caller should answer with a 420 (Unknown Attribute) error
// response carrying UNKNOWN-ATTRIBUTES rather than processing the
// request further.
type RequestListener func(m *stun.Message, raw []byte, from addr.TransportAddress, unknown []stun.AttrType)

// IndicationListener handles a decoded STUN indication.
type IndicationListener func(m *stun.Message, from addr.TransportAddress)

// ResponseRouter routes a decoded STUN response to its client
// transaction, reporting whether one was found (implemented by
// pkg/transaction.Layer.HandleIncoming).
type ResponseRouter func(m *stun.Message, raw []byte) bool

// Manager owns one base socket (or socket pool) and classifies every
// inbound datagram into STUN vs ChannelData vs application data,
// dispatching STUN messages further into responses/requests/indications:
// the single owner of "the socket" that every other collaborator goes
// through rather than reading raw UDP itself.
type Manager struct {
	conn net.PacketConn

	Router      ResponseRouter
	OnRequest   RequestListener
	OnIndication IndicationListener

	// App receives datagrams that are neither STUN nor ChannelData — the
	// demultiplexed application-data endpoint.
	App chan []byte

	// ChannelData receives TURN ChannelData frames for the relay data
	// path. NewManager always creates it; frames arriving while it is
	// full are dropped.
	ChannelData chan []byte

	stop chan struct{}
}

// NewManager wraps conn; no receive loop runs until Start is called. It
// does not take ownership of dispatch targets; wire Router/OnRequest/
// OnIndication before calling Start.
func NewManager(conn net.PacketConn) *Manager {
	return &Manager{
		conn:        conn,
		App:         make(chan []byte, 64),
		ChannelData: make(chan []byte, 64),
		stop:        make(chan struct{}),
	}
}

// Start runs the receive loop. It returns once Close is called or the
// socket errors.
func (m *Manager) Start() {
	buf := make([]byte, 1500)
	for {
		select {
		case <-m.stop:
			return
		default:
		}
		n, from, err := m.conn.ReadFrom(buf)
		if err != nil {
			log.Debug("receive loop stopping: %v", err)
			return
		}
		data := append([]byte(nil), buf[:n]...)
		m.classify(data, addr.FromNetAddr(from))
	}
}

func (m *Manager) classify(data []byte, from addr.TransportAddress) {
	switch {
	case MatchSTUN(data):
		msg, err := stun.Decode(data)
		var unknown []stun.AttrType
		if err != nil {
			uae, ok := err.(*stun.UnknownAttributesError)
			if !ok {
				log.Warn("dropping malformed STUN message from %s: %v", from, err)
				return
			}
			// Still usable: fields before the unrecognized attribute
			// decoded fine; let the caller answer with a 420.
			for _, t := range uae.Types {
				unknown = append(unknown, stun.AttrType(t))
			}
		}
		switch msg.Class {
		case stun.ClassSuccessResponse, stun.ClassErrorResponse:
			if len(unknown) > 0 {
				// A response can't be 420'd back; an unrecognized
				// comprehension-required attribute on one just means it
				// can't be trusted.
				log.Warn("dropping STUN response from %s with unknown attributes %v", from, unknown)
				return
			}
			if m.Router != nil && m.Router(msg, data) {
				return
			}
			// No matching transaction: a stray/late response, drop it.
		case stun.ClassRequest:
			if m.OnRequest != nil {
				m.OnRequest(msg, data, from, unknown)
			}
		case stun.ClassIndication:
			if len(unknown) > 0 {
				log.Warn("dropping STUN indication from %s with unknown attributes %v", from, unknown)
				return
			}
			if m.OnIndication != nil {
				m.OnIndication(msg, from)
			}
		}
	case MatchChannelData(data):
		select {
		case m.ChannelData <- data:
		default:
		}
	default:
		select {
		case m.App <- data:
		default:
		}
	}
}

// LocalAddr returns the socket's local address.
func (m *Manager) LocalAddr() net.Addr {
	return m.conn.LocalAddr()
}

// Send writes an encoded datagram to dest.
func (m *Manager) Send(data []byte, dest addr.TransportAddress) error {
	_, err := m.conn.WriteTo(data, dest.NetAddr())
	return err
}

func (m *Manager) Close() error {
	close(m.stop)
	return m.conn.Close()
}
