package netaccess

import (
	"testing"

	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/stun"
)

func TestManagerClassifyDispatchesRequest(t *testing.T) {
	m := &Manager{App: make(chan []byte, 1), ChannelData: make(chan []byte, 1), stop: make(chan struct{})}

	var gotReq *stun.Message
	var gotUnknown []stun.AttrType
	m.OnRequest = func(msg *stun.Message, raw []byte, from addr.TransportAddress, unknown []stun.AttrType) {
		gotReq = msg
		gotUnknown = unknown
	}

	req := stun.BindingRequest()
	raw, _ := stun.Encode(req)
	m.classify(raw, addr.New("10.0.0.1", 1000, addr.UDP))

	if gotReq == nil {
		t.Fatal("OnRequest was not called")
	}
	if gotReq.Class != stun.ClassRequest {
		t.Errorf("Class = %v, want ClassRequest", gotReq.Class)
	}
	if len(gotUnknown) != 0 {
		t.Errorf("unexpected unknown attributes for a well-formed request: %v", gotUnknown)
	}
}

func TestManagerClassifyPassesUnknownAttributesToOnRequest(t *testing.T) {
	m := &Manager{App: make(chan []byte, 1), ChannelData: make(chan []byte, 1), stop: make(chan struct{})}

	var gotUnknown []stun.AttrType
	called := false
	m.OnRequest = func(msg *stun.Message, raw []byte, from addr.TransportAddress, unknown []stun.AttrType) {
		called = true
		gotUnknown = unknown
	}

	req := stun.BindingRequest()
	req.AddAttribute(stun.AttrType(0x0002), []byte("reserved, comprehension-required"))
	raw, err := stun.Encode(req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	m.classify(raw, addr.New("10.0.0.1", 1000, addr.UDP))

	if !called {
		t.Fatal("OnRequest was not called for a request carrying an unknown attribute")
	}
	if len(gotUnknown) != 1 || gotUnknown[0] != stun.AttrType(0x0002) {
		t.Errorf("unknown = %v, want [0x0002]", gotUnknown)
	}
}

func TestManagerClassifyDropsResponseWithUnknownAttributes(t *testing.T) {
	m := &Manager{App: make(chan []byte, 1), ChannelData: make(chan []byte, 1), stop: make(chan struct{})}

	routed := false
	m.Router = func(msg *stun.Message, raw []byte) bool {
		routed = true
		return true
	}

	resp := stun.NewMessage(stun.ClassSuccessResponse, stun.MethodBinding, nil)
	resp.AddAttribute(stun.AttrType(0x0002), []byte("reserved, comprehension-required"))
	raw, err := stun.Encode(resp)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	m.classify(raw, addr.New("10.0.0.1", 1000, addr.UDP))

	if routed {
		t.Error("a response carrying an unknown comprehension-required attribute must be dropped, not routed")
	}
}

func TestManagerClassifyDispatchesIndication(t *testing.T) {
	m := &Manager{App: make(chan []byte, 1), ChannelData: make(chan []byte, 1), stop: make(chan struct{})}

	var got bool
	m.OnIndication = func(msg *stun.Message, from addr.TransportAddress) {
		got = true
	}

	ind := stun.NewMessage(stun.ClassIndication, stun.MethodSend, nil)
	raw, _ := stun.Encode(ind)
	m.classify(raw, addr.New("10.0.0.1", 1000, addr.UDP))

	if !got {
		t.Error("OnIndication was not called")
	}
}

func TestManagerClassifyRoutesResponseToRouter(t *testing.T) {
	m := &Manager{App: make(chan []byte, 1), ChannelData: make(chan []byte, 1), stop: make(chan struct{})}

	var routed bool
	m.Router = func(msg *stun.Message, raw []byte) bool {
		routed = true
		return true
	}

	resp := stun.NewMessage(stun.ClassSuccessResponse, stun.MethodBinding, nil)
	raw, _ := stun.Encode(resp)
	m.classify(raw, addr.New("10.0.0.1", 1000, addr.UDP))

	if !routed {
		t.Error("Router was not called for a response")
	}
}

func TestManagerClassifyChannelDataGoesToChannelDataQueue(t *testing.T) {
	m := &Manager{App: make(chan []byte, 1), ChannelData: make(chan []byte, 1), stop: make(chan struct{})}

	frame := stun.EncodeChannelData(0x4001, []byte{1, 2, 3}, false)
	m.classify(frame, addr.New("10.0.0.1", 1000, addr.UDP))

	select {
	case got := <-m.ChannelData:
		if len(got) != len(frame) {
			t.Errorf("got %d bytes, want %d", len(got), len(frame))
		}
	default:
		t.Error("ChannelData frame was not queued")
	}
}

func TestManagerClassifyUnmatchedGoesToApp(t *testing.T) {
	m := &Manager{App: make(chan []byte, 1), ChannelData: make(chan []byte, 1), stop: make(chan struct{})}

	// A leading 0x80 (top bits 10, the RTP range) is neither STUN nor
	// ChannelData.
	payload := append([]byte{0x80}, "application payload"...)
	m.classify(payload, addr.New("10.0.0.1", 1000, addr.UDP))

	select {
	case got := <-m.App:
		if string(got) != string(payload) {
			t.Errorf("got %q", got)
		}
	default:
		t.Error("application datagram was not queued")
	}
}
