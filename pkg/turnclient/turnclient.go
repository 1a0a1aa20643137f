// Package turnclient implements the TURN client operations a RelayedHarvester
// and data-relay path need: Allocate, Refresh, CreatePermission and
// ChannelBind, with the RFC 5766 long-term credential flow (401 challenge →
// REALM/NONCE → signed retry). It does not build or parse Send or Data
// indications.
package turnclient

import (
	"context"

	"github.com/pkg/errors"

	"github.com/lanikai/iceagent/internal/logging"
	"github.com/lanikai/iceagent/pkg/addr"
	"github.com/lanikai/iceagent/pkg/credentials"
	"github.com/lanikai/iceagent/pkg/stun"
	"github.com/lanikai/iceagent/pkg/transaction"
)

var log = logging.DefaultLogger.WithTag("turn")

const protoUDP = 17 // IANA protocol number for REQUESTED-TRANSPORT

// Client talks to one TURN server on behalf of one allocation.
type Client struct {
	Server addr.TransportAddress
	Layer  *transaction.Layer
	Creds  credentials.LongTerm

	RelayedAddress addr.TransportAddress
	MappedAddress  addr.TransportAddress
	Lifetime       uint32
}

// Allocate performs the RFC 5766 §6.2 allocation handshake: an initial
// unauthenticated ALLOCATE that is expected to draw a 401 with
// REALM/NONCE, then a signed retry.
func (c *Client) Allocate(ctx context.Context) error {
	first := c.newRequest(stun.MethodAllocate)
	first.AddRequestedTransport(protoUDP)
	first.AddLifetime(3600)

	resp, _, err := c.roundTrip(ctx, first, false)
	if err != nil {
		return err
	}
	if resp.Class == stun.ClassSuccessResponse {
		return c.applyAllocateSuccess(resp)
	}

	code, _, _ := resp.ErrorCode()
	if code != 401 {
		return errorFromResponse(resp)
	}
	realm, _ := resp.Realm()
	nonce, _ := resp.Nonce()
	c.Creds.Realm = realm
	c.Creds.Nonce = nonce

	second := c.newRequest(stun.MethodAllocate)
	second.AddRequestedTransport(protoUDP)
	second.AddLifetime(3600)
	c.signRequest(second)

	resp, _, err = c.roundTrip(ctx, second, false)
	if err != nil {
		return err
	}
	if resp.Class != stun.ClassSuccessResponse {
		return errorFromResponse(resp)
	}
	return c.applyAllocateSuccess(resp)
}

func (c *Client) applyAllocateSuccess(resp *stun.Message) error {
	relayed, ok := resp.XorRelayedAddress()
	if !ok {
		return errors.New("turnclient: ALLOCATE success missing XOR-RELAYED-ADDRESS")
	}
	mapped, _ := resp.XorMappedAddress()
	lifetime, _ := resp.Lifetime()

	c.RelayedAddress = relayed
	c.MappedAddress = mapped
	c.Lifetime = lifetime
	log.Info("allocated relayed address %s (lifetime=%ds)", relayed, lifetime)
	return nil
}

// Refresh extends (or, with lifetime 0, tears down) the allocation. The
// caller schedules this at lifetime/2 per RFC 5766 §7.
func (c *Client) Refresh(ctx context.Context, lifetime uint32) error {
	req := c.newRequest(stun.MethodRefresh)
	req.AddLifetime(lifetime)
	c.signRequest(req)

	resp, _, err := c.roundTrip(ctx, req, false)
	if err != nil {
		return err
	}
	if resp.Class != stun.ClassSuccessResponse {
		return errorFromResponse(resp)
	}
	c.Lifetime, _ = resp.Lifetime()
	log.Debug("refreshed allocation %s (lifetime=%ds)", c.RelayedAddress, c.Lifetime)
	return nil
}

// CreatePermission installs a permission for peer so relayed data from it
// is forwarded to this client (RFC 5766 §9).
func (c *Client) CreatePermission(ctx context.Context, peer addr.TransportAddress) error {
	req := c.newRequest(stun.MethodCreatePermission)
	req.AddXorPeerAddress(peer)
	c.signRequest(req)

	resp, _, err := c.roundTrip(ctx, req, false)
	if err != nil {
		return err
	}
	if resp.Class != stun.ClassSuccessResponse {
		return errorFromResponse(resp)
	}
	return nil
}

// ChannelBind binds channelNumber to peer, enabling the lower-overhead
// ChannelData framing for subsequent data (RFC 5766 §11).
func (c *Client) ChannelBind(ctx context.Context, channelNumber uint16, peer addr.TransportAddress) error {
	if !stun.ValidChannelNumber(channelNumber) {
		return errors.Errorf("turnclient: channel number %#x out of range", channelNumber)
	}
	req := c.newRequest(stun.MethodChannelBind)
	req.AddChannelNumber(channelNumber)
	req.AddXorPeerAddress(peer)
	c.signRequest(req)

	resp, _, err := c.roundTrip(ctx, req, false)
	if err != nil {
		return err
	}
	if resp.Class != stun.ClassSuccessResponse {
		return errorFromResponse(resp)
	}
	return nil
}

func (c *Client) newRequest(method stun.Method) *stun.Message {
	return stun.NewMessage(stun.ClassRequest, method, nil)
}

func (c *Client) signRequest(m *stun.Message) {
	m.AddUsername(c.Creds.Username)
	if c.Creds.Realm != "" {
		m.AddRealm(c.Creds.Realm)
	}
	if c.Creds.Nonce != "" {
		m.AddNonce(c.Creds.Nonce)
	}
	m.AddMessageIntegrity(c.Creds.Key())
}

func (c *Client) roundTrip(ctx context.Context, req *stun.Message, reliable bool) (*stun.Message, []byte, error) {
	ct := c.Layer.StartClientTransaction(ctx, req, c.Server, reliable)
	select {
	case <-ctx.Done():
		ct.Cancel()
		return nil, nil, ctx.Err()
	case r := <-ct.Done():
		switch r.Kind {
		case transaction.KindSuccess:
			return r.Response, r.Raw, nil
		case transaction.KindTimeout:
			return nil, nil, errors.New("turnclient: request timed out")
		default:
			return nil, nil, r.Err
		}
	}
}

func errorFromResponse(resp *stun.Message) error {
	code, reason, _ := resp.ErrorCode()
	return errors.Errorf("turnclient: server returned %d %s", code, reason)
}
