package swarm

import (
	"net/netip"
	"testing"
)

func mustAddrPort(t *testing.T, s string) netip.AddrPort {
	t.Helper()
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		t.Fatalf("parsing addr:port %q: %v", s, err)
	}
	return ap
}

func TestPeerCache_RegisterThenLookup(t *testing.T) {
	cache := NewPeerCache()
	addr := mustAddrPort(t, "1.2.3.4:6881")

	registered := cache.Register(Peer{Address: addr, Options: Options{FastExtension: true}})
	looked := cache.Lookup(addr)

	if registered != looked {
		t.Fatalf("expected register and lookup to yield the same object")
	}
	if looked.Address != addr {
		t.Errorf("expected address %v, got %v", addr, looked.Address)
	}
}

func TestPeerCache_RegisterReplacesOptions(t *testing.T) {
	cache := NewPeerCache()
	addr := mustAddrPort(t, "1.2.3.4:6881")

	first := cache.Register(Peer{Address: addr, Options: Options{FastExtension: true}})
	second := cache.Register(Peer{Address: addr, Options: Options{SupportsDHT: true}})

	if first != second {
		t.Fatalf("expected exactly one cache entry, got two distinct objects")
	}
	if got := second.Options(); got.FastExtension || !got.SupportsDHT {
		t.Errorf("expected options replaced wholesale, got %+v", got)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 cached entry, got %d", cache.Len())
	}
}

func TestPeerCache_LookupCreatesMinimalEntry(t *testing.T) {
	cache := NewPeerCache()
	addr := mustAddrPort(t, "5.6.7.8:9999")

	entry := cache.Lookup(addr)
	if entry.Address != addr {
		t.Errorf("expected address %v, got %v", addr, entry.Address)
	}
	if _, hasID := entry.ID(); hasID {
		t.Errorf("expected minimal entry to have no peer id")
	}
	if cache.Len() != 1 {
		t.Errorf("expected lookup to intern the minimal entry, got len %d", cache.Len())
	}
}

func TestPeerCache_DistinctAddressesGetDistinctEntries(t *testing.T) {
	cache := NewPeerCache()
	a := cache.Lookup(mustAddrPort(t, "1.1.1.1:1"))
	b := cache.Lookup(mustAddrPort(t, "2.2.2.2:2"))

	if a == b {
		t.Fatalf("expected distinct entries for distinct addresses")
	}
	if cache.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", cache.Len())
	}
}
