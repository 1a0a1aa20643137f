package credentials

import "testing"

func TestShortTermLocalUsername(t *testing.T) {
	s := ShortTerm{LocalUfrag: "abc", LocalPwd: "pwd1", RemoteUfrag: "xyz", RemotePwd: "pwd2"}
	if got, want := s.LocalUsername(), "xyz:abc"; got != want {
		t.Errorf("LocalUsername() = %q, want %q", got, want)
	}
	if got, want := string(s.LocalKey()), "pwd1"; got != want {
		t.Errorf("LocalKey() = %q, want %q", got, want)
	}
	if got, want := string(s.RemoteKey()), "pwd2"; got != want {
		t.Errorf("RemoteKey() = %q, want %q", got, want)
	}
}

func TestLongTermKeyIsStableMD5(t *testing.T) {
	l := LongTerm{Username: "alice", Realm: "example.org", Password: "secret"}
	k1 := l.Key()
	k2 := l.Key()
	if len(k1) != 16 {
		t.Fatalf("Key() length = %d, want 16 (MD5 digest)", len(k1))
	}
	if string(k1) != string(k2) {
		t.Error("Key() is not stable across calls for the same credential")
	}

	other := LongTerm{Username: "alice", Realm: "example.org", Password: "different"}
	if string(l.Key()) == string(other.Key()) {
		t.Error("Key() should differ when the password differs")
	}
}

func TestShortTermIncomingUsername(t *testing.T) {
	s := ShortTerm{LocalUfrag: "abc", LocalPwd: "pwd1", RemoteUfrag: "xyz", RemotePwd: "pwd2"}
	if got, want := s.IncomingUsername(), "abc:xyz"; got != want {
		t.Errorf("IncomingUsername() = %q, want %q", got, want)
	}
}

func TestRegistryShortTermRoundTrip(t *testing.T) {
	r := NewRegistry()
	cred := ShortTerm{LocalUfrag: "abc", LocalPwd: "pwd1", RemoteUfrag: "xyz", RemotePwd: "pwd2"}
	r.RegisterShortTerm(cred)

	// A peer's incoming request carries USERNAME as "localUfrag:remoteUfrag"
	// from its side, i.e. this agent's IncomingUsername — not LocalUsername,
	// which is only used to build the USERNAME this agent sends out.
	got, ok := r.LookupShortTerm(cred.IncomingUsername())
	if !ok {
		t.Fatal("expected to find the registered credential by its incoming username")
	}
	if got != cred {
		t.Errorf("LookupShortTerm returned %+v, want %+v", got, cred)
	}

	if _, ok := r.LookupShortTerm(cred.LocalUsername()); ok {
		t.Error("the registry must not be keyed by LocalUsername (the outgoing-request direction)")
	}

	if _, ok := r.LookupShortTerm("nonexistent"); ok {
		t.Error("expected no match for an unregistered username")
	}
}

func TestRegistryLongTermRoundTrip(t *testing.T) {
	r := NewRegistry()
	cred := LongTerm{Username: "alice", Realm: "example.org", Password: "secret", Nonce: "abc123"}
	r.RegisterLongTerm(cred)

	got, ok := r.LookupLongTerm("alice")
	if !ok {
		t.Fatal("expected to find the registered credential")
	}
	if got != cred {
		t.Errorf("LookupLongTerm returned %+v, want %+v", got, cred)
	}

	if _, ok := r.LookupLongTerm("bob"); ok {
		t.Error("expected no match for an unregistered username")
	}
}
