// Package credentials implements the CredentialsRegistry: lookup of the
// short-term (ICE) and long-term (TURN) keys used to verify and sign
// MESSAGE-INTEGRITY attributes.
package credentials

import (
	"crypto/md5"
	"fmt"
	"sync"
)

// ShortTerm is a local/remote ufrag:pwd pair, as negotiated out-of-band
// (via the signaling collaborator) for one ICE session.
type ShortTerm struct {
	LocalUfrag  string
	LocalPwd    string
	RemoteUfrag string
	RemotePwd   string
}

// LocalUsername returns the USERNAME value this agent sends on requests:
// "remoteUfrag:localUfrag" per RFC 8445 §16.
func (s ShortTerm) LocalUsername() string {
	return s.RemoteUfrag + ":" + s.LocalUfrag
}

// IncomingUsername returns the USERNAME value a peer sends on a request
// addressed to this agent: "localUfrag:remoteUfrag", i.e. the peer's
// LocalUsername() as seen from its side. The registry keys short-term
// credentials by this value so an incoming request's literal USERNAME
// resolves directly; LocalUsername (the reverse direction) is only ever
// used to build the USERNAME on requests this agent sends out.
func (s ShortTerm) IncomingUsername() string {
	return s.LocalUfrag + ":" + s.RemoteUfrag
}

// LocalKey is the key used to sign messages this agent sends.
func (s ShortTerm) LocalKey() []byte {
	return []byte(s.LocalPwd)
}

// RemoteKey is the key used to verify messages received from the peer.
func (s ShortTerm) RemoteKey() []byte {
	return []byte(s.RemotePwd)
}

// LongTerm is a TURN long-term credential: a username/realm/password
// triple, plus the current server-issued nonce.
type LongTerm struct {
	Username string
	Realm    string
	Password string
	Nonce    string
}

// Key returns MD5(username:realm:password), the long-term credential key
// per RFC 5389 §15.4.
func (l LongTerm) Key() []byte {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s:%s", l.Username, l.Realm, l.Password)))
	return sum[:]
}

// Registry is a read-mostly lookup of credentials keyed by username,
// guarded by an RWMutex since lookups vastly outnumber registrations
// (one registration per stream/allocation, many lookups per check).
type Registry struct {
	mu         sync.RWMutex
	shortTerm  map[string]ShortTerm // keyed by incoming USERNAME (IncomingUsername)
	longTerm   map[string]LongTerm  // keyed by TURN username
}

func NewRegistry() *Registry {
	return &Registry{
		shortTerm: make(map[string]ShortTerm),
		longTerm:  make(map[string]LongTerm),
	}
}

// RegisterShortTerm indexes cred by the USERNAME a peer's incoming request
// will carry (IncomingUsername), not by the USERNAME this agent sends on
// its own outgoing requests.
func (r *Registry) RegisterShortTerm(cred ShortTerm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shortTerm[cred.IncomingUsername()] = cred
}

func (r *Registry) LookupShortTerm(username string) (ShortTerm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.shortTerm[username]
	return c, ok
}

func (r *Registry) RegisterLongTerm(cred LongTerm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.longTerm[cred.Username] = cred
}

func (r *Registry) LookupLongTerm(username string) (LongTerm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.longTerm[username]
	return c, ok
}
