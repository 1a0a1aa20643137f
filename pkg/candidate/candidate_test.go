package candidate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lanikai/iceagent/pkg/addr"
)

func TestParseSDP(t *testing.T) {
	desc := "candidate:abcd1234 1 udp 123456789 192.168.1.1 12345 typ host"
	c, err := ParseSDP(desc)
	assert.NoError(t, err)

	assert.Equal(t, "abcd1234", c.Foundation)
	assert.Equal(t, 1, c.Component)
	assert.Equal(t, addr.UDP, c.Address.Protocol)
	assert.Equal(t, "192.168.1.1", c.Address.IP)
	assert.Equal(t, 12345, c.Address.Port)
	assert.Equal(t, uint32(123456789), c.Priority)
	assert.Equal(t, Host, c.Type)
}

func TestSDPStringRoundTrip(t *testing.T) {
	desc := "candidate:abcd1234 1 udp 123456789 192.168.1.1 12345 typ host"
	c, err := ParseSDP(desc)
	assert.NoError(t, err)
	assert.Equal(t, desc, c.SDPString())
}

func TestComputePriorityOrdersByType(t *testing.T) {
	host := ComputePriority(Host, 1, 0)
	srflx := ComputePriority(ServerReflexive, 1, 0)
	relay := ComputePriority(Relayed, 1, 0)
	assert.True(t, host > srflx)
	assert.True(t, srflx > relay)
}

func TestComputePriorityDistinguishesPeerAndServerReflexive(t *testing.T) {
	peerReflex := ComputePriority(PeerReflexive, 1, 0)
	srflx := ComputePriority(ServerReflexive, 1, 0)
	assert.True(t, peerReflex > srflx, "a peer-reflexive candidate must outrank a server-reflexive one (RFC 8445 §5.1.2.1)")
}

func TestComputeFoundationStable(t *testing.T) {
	base := addr.New("10.0.0.5", 0, addr.UDP)
	f1 := ComputeFoundation(Host, base, "")
	f2 := ComputeFoundation(Host, base, "")
	assert.Equal(t, f1, f2)
	assert.Len(t, f1, 8)

	other := ComputeFoundation(ServerReflexive, base, "stun.example.com")
	assert.NotEqual(t, f1, other)
}

func TestPairPriorityRespectsControllingRole(t *testing.T) {
	local := NewHost("0", 1, addr.New("10.0.0.1", 1000, addr.UDP))
	local.Priority = 100
	remote := NewHost("0", 1, addr.New("10.0.0.2", 2000, addr.UDP))
	remote.Priority = 200

	p := NewPair(0, local, remote)

	controlling := p.Priority(true)  // G=local(100), D=remote(200)
	controlled := p.Priority(false) // G=remote(200), D=local(100)
	assert.NotEqual(t, controlling, controlled)
}
