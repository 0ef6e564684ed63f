package swarm

import (
	"net/netip"
	"sync"
	"testing"
	"time"
)

type fakeTorrentRegistry struct {
	mu       sync.Mutex
	torrents map[TorrentID]Torrent
	active   map[TorrentID]bool
}

func newFakeTorrentRegistry() *fakeTorrentRegistry {
	return &fakeTorrentRegistry{torrents: make(map[TorrentID]Torrent), active: make(map[TorrentID]bool)}
}

func (f *fakeTorrentRegistry) add(id TorrentID, t Torrent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.torrents[id] = t
	f.active[id] = true
}

func (f *fakeTorrentRegistry) GetDescriptor(id TorrentID) (Descriptor, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	active, ok := f.active[id]
	return Descriptor{IsActive: active}, ok
}

func (f *fakeTorrentRegistry) GetTorrent(id TorrentID) (Torrent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.torrents[id]
	return t, ok
}

type fixedIdentity struct{ id PeerID }

func (f fixedIdentity) LocalPeerID() PeerID { return f.id }

// stubPeerSourceFactory always returns the same PeerSource for every
// torrent, letting tests assert on a single call recorder.
type stubPeerSourceFactory struct{ source PeerSource }

func (f stubPeerSourceFactory) PeerSource(TorrentID) PeerSource { return f.source }

// recordingPeerSource returns a fixed peer batch exactly once, then reports
// no fresh data, mimicking a rate-limited real source without touching the
// network.
type recordingPeerSource struct {
	mu       sync.Mutex
	batch    []Peer
	served   bool
	queries  int
	failWith error
}

func (s *recordingPeerSource) Update() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.failWith != nil {
		return false, s.failWith
	}
	if s.served {
		return false, nil
	}
	s.served = true
	return true, nil
}

func (s *recordingPeerSource) Peers() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batch
}

func newRegistryForTest(t *testing.T, torrents TorrentRegistry, tracker TrackerService) *PeerRegistry {
	t.Helper()
	cfg := Config{
		LocalPeerAddress:      netip.MustParseAddr("10.0.0.1"),
		LocalPeerPort:         6881,
		PeerDiscoveryInterval: 20 * time.Millisecond,
		TrackerQueryInterval:  time.Hour,
	}
	r, err := NewPeerRegistry(cfg, torrents, tracker, fixedIdentity{id: PeerID{1}})
	if err != nil {
		t.Fatalf("NewPeerRegistry: %v", err)
	}
	return r
}

func TestPeerRegistry_LocalPeerDropped(t *testing.T) {
	torrents := newFakeTorrentRegistry()
	registry := newRegistryForTest(t, torrents, StandardTrackerService{})

	torrentID := TorrentID{1}
	var received []Peer
	registry.AddPeerConsumer(torrentID, func(p Peer) { received = append(received, p) })

	localLike := Peer{Address: netip.AddrPortFrom(netip.IPv4Unspecified(), 6881)}
	registry.AddPeer(torrentID, localLike)

	if len(received) != 0 {
		t.Fatalf("expected local-like peer to be dropped, got %d deliveries", len(received))
	}
}

func TestPeerRegistry_AddPeerDispatchesToAllSubscribers(t *testing.T) {
	torrents := newFakeTorrentRegistry()
	registry := newRegistryForTest(t, torrents, StandardTrackerService{})

	torrentID := TorrentID{2}
	var a, b []Peer
	registry.AddPeerConsumer(torrentID, func(p Peer) { a = append(a, p) })
	registry.AddPeerConsumer(torrentID, func(p Peer) { b = append(b, p) })

	p := Peer{Address: netip.MustParseAddrPort("1.1.1.1:1111")}
	registry.AddPeer(torrentID, p)

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected both subscribers to receive exactly one peer, got %d and %d", len(a), len(b))
	}
}

func TestPeerRegistry_SubscribingSameCallbackTwiceDoublesDeliveries(t *testing.T) {
	torrents := newFakeTorrentRegistry()
	registry := newRegistryForTest(t, torrents, StandardTrackerService{})

	torrentID := TorrentID{3}
	var count int
	cb := func(Peer) { count++ }
	registry.AddPeerConsumer(torrentID, cb)
	registry.AddPeerConsumer(torrentID, cb)

	registry.AddPeer(torrentID, Peer{Address: netip.MustParseAddrPort("2.2.2.2:2222")})

	if count != 2 {
		t.Fatalf("expected 2 invocations for a doubly-subscribed callback, got %d", count)
	}
}

func TestPeerRegistry_RemovePeerConsumersClearsSubscribers(t *testing.T) {
	torrents := newFakeTorrentRegistry()
	registry := newRegistryForTest(t, torrents, StandardTrackerService{})

	torrentID := TorrentID{4}
	var count int
	registry.AddPeerConsumer(torrentID, func(Peer) { count++ })
	registry.RemovePeerConsumers(torrentID)

	registry.AddPeer(torrentID, Peer{Address: netip.MustParseAddrPort("3.3.3.3:3333")})

	if count != 0 {
		t.Fatalf("expected no deliveries after RemovePeerConsumers, got %d", count)
	}
}

func TestPeerRegistry_DiscoveryFanOut(t *testing.T) {
	torrents := newFakeTorrentRegistry()
	torrentID := TorrentID{5}
	torrents.add(torrentID, Torrent{HasAnnounce: false})

	source := &recordingPeerSource{batch: []Peer{
		{Address: netip.MustParseAddrPort("9.9.9.9:1111")},
		{Address: netip.MustParseAddrPort("8.8.8.8:2222")},
	}}

	registry := newRegistryForTest(t, torrents, StandardTrackerService{})
	registry.cfg.ExtraPeerSourceFactories = []PeerSourceFactory{stubPeerSourceFactory{source: source}}

	var mu sync.Mutex
	var received []Peer
	registry.AddPeerConsumer(torrentID, func(p Peer) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, p)
	})

	registry.Start()
	defer registry.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected exactly 2 peers delivered, got %d: %v", len(received), received)
	}
	if received[0].Address.String() != "9.9.9.9:1111" || received[1].Address.String() != "8.8.8.8:2222" {
		t.Errorf("expected source-enumeration order, got %v", received)
	}
	if registry.cache.Len() != 2 {
		t.Errorf("expected both peers interned into the cache, got %d", registry.cache.Len())
	}
}

func TestPeerRegistry_NoSubscribersMeansNoQueries(t *testing.T) {
	torrents := newFakeTorrentRegistry()
	torrentID := TorrentID{6}
	torrents.add(torrentID, Torrent{HasAnnounce: false})

	source := &recordingPeerSource{batch: []Peer{{Address: netip.MustParseAddrPort("1.1.1.1:1")}}}
	registry := newRegistryForTest(t, torrents, StandardTrackerService{})
	registry.cfg.ExtraPeerSourceFactories = []PeerSourceFactory{stubPeerSourceFactory{source: source}}

	registry.sweep()

	if source.queries != 0 {
		t.Fatalf("expected 0 queries for a torrent with no subscribers, got %d", source.queries)
	}
}

func TestPeerRegistry_PrivateTorrentIgnoresExtraAnnounceKeys(t *testing.T) {
	torrents := newFakeTorrentRegistry()
	torrentID := TorrentID{7}
	torrents.add(torrentID, Torrent{
		AnnounceKey: SingleAnnounceKey("http://tr/announce"),
		HasAnnounce: true,
		IsPrivate:   true,
	})

	registry := newRegistryForTest(t, torrents, StandardTrackerService{})
	registry.AddPeerConsumer(torrentID, func(Peer) {})
	registry.AddPeerSource(torrentID, SingleAnnounceKey("http://evil/announce"))

	tor, _ := torrents.GetTorrent(torrentID)
	keys := registry.selectedAnnounceKeys("test-sweep", torrentID, tor)

	if len(keys) != 1 || keys[0].Canonical() != "http://tr/announce" {
		t.Fatalf("expected only the torrent's own announce key, got %v", keys)
	}
}

func TestPeerRegistry_NonPrivateTorrentIncludesExtraAnnounceKeys(t *testing.T) {
	torrents := newFakeTorrentRegistry()
	torrentID := TorrentID{8}
	torrents.add(torrentID, Torrent{
		AnnounceKey: SingleAnnounceKey("http://tr/announce"),
		HasAnnounce: true,
		IsPrivate:   false,
	})

	registry := newRegistryForTest(t, torrents, StandardTrackerService{})
	registry.AddPeerSource(torrentID, SingleAnnounceKey("http://extra/announce"))

	tor, _ := torrents.GetTorrent(torrentID)
	keys := registry.selectedAnnounceKeys("test-sweep", torrentID, tor)

	if len(keys) != 2 {
		t.Fatalf("expected own key plus extra key, got %v", keys)
	}
}
