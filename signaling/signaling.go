// Package signaling is the demo implementation of the external
// SDP/candidate-exchange collaborator: a small websocket server two
// browser-free iceagentd instances can use to trade ufrag/pwd and
// trickled candidates (gorilla/websocket, JSON "credentials" and
// "iceCandidate" messages).
package signaling

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/lanikai/iceagent/pkg/candidate"
)

// Session is handed to a SessionHandler for each connected peer. Ufrag and
// Pwd hold the remote agent's credentials once a "credentials" message
// arrives; RemoteCandidates streams
// trickled candidates as they arrive, and is closed when the peer signals
// end-of-candidates.
type Session struct {
	Context context.Context

	Ufrag, Pwd string

	RemoteCandidates chan candidate.Candidate

	SendLocalCandidate func(c candidate.Candidate) error
	SendEndOfCandidates func() error
	SendCredentials     func(ufrag, pwd string) error
}

// SessionHandler processes one connected peer's Session. It is expected
// to run for the lifetime of the connection.
type SessionHandler func(*Session)

// Server is a minimal websocket signaling server: one HTTP endpoint
// ("/ws") upgraded to a websocket per connecting peer.
type Server struct {
	handler SessionHandler
	http    *http.Server
}

func NewServer(addr string, handler SessionHandler) *Server {
	mux := http.NewServeMux()
	s := &Server{
		handler: handler,
		http:    &http.Server{Addr: addr, Handler: mux},
	}
	mux.HandleFunc("/ws", s.handleWebsocket)
	return s
}

func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	rcandCh := make(chan candidate.Candidate, 16)
	session := &Session{
		Context:          ctx,
		RemoteCandidates: rcandCh,
		SendLocalCandidate: func(c candidate.Candidate) error {
			return ws.WriteJSON(map[string]string{
				"type":      "iceCandidate",
				"candidate": c.SDPString(),
				"sdpMid":    c.Mid,
			})
		},
		SendEndOfCandidates: func() error {
			return ws.WriteJSON(map[string]string{"type": "iceCandidate", "candidate": ""})
		},
		SendCredentials: func(ufrag, pwd string) error {
			return ws.WriteJSON(map[string]string{"type": "credentials", "ufrag": ufrag, "pwd": pwd})
		},
	}

	go s.handler(session)

	for {
		msg := map[string]string{}
		if err := ws.ReadJSON(&msg); err != nil {
			close(rcandCh)
			return
		}

		switch msg["type"] {
		case "credentials":
			session.Ufrag, session.Pwd = msg["ufrag"], msg["pwd"]
		case "iceCandidate":
			if _, ok := msg["candidate"]; !ok || msg["candidate"] == "" {
				close(rcandCh)
				continue
			}
			c, err := candidate.ParseSDP(msg["candidate"])
			if err != nil {
				continue
			}
			c.Mid = msg["sdpMid"]
			select {
			case rcandCh <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

// DialClient connects to a signaling Server as the other peer.
type DialClient struct {
	ws *websocket.Conn
}

func Dial(url string) (*DialClient, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "signaling: dial")
	}
	return &DialClient{ws: ws}, nil
}

func (c *DialClient) SendCredentials(ufrag, pwd string) error {
	return c.ws.WriteJSON(map[string]string{"type": "credentials", "ufrag": ufrag, "pwd": pwd})
}

func (c *DialClient) SendCandidate(cand candidate.Candidate) error {
	return c.ws.WriteJSON(map[string]string{
		"type": "iceCandidate", "candidate": cand.SDPString(), "sdpMid": cand.Mid,
	})
}

func (c *DialClient) SendEndOfCandidates() error {
	return c.ws.WriteJSON(map[string]string{"type": "iceCandidate", "candidate": ""})
}

// Recv reads the next signaling message, returning its raw field map.
func (c *DialClient) Recv() (map[string]string, error) {
	msg := map[string]string{}
	if err := c.ws.ReadJSON(&msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (c *DialClient) Close() error {
	return c.ws.Close()
}
