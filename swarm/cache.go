package swarm

import (
	"net/netip"
	"sync"
	"sync/atomic"
)

// CachedPeer is the canonical, interned record for one endpoint. Address and
// peer-id are frozen at interning time; Options is mutably replaced under
// the PeerCache's lock whenever a fresher observation arrives, and read
// lock-free via atomic.Pointer so a concurrent Options() never observes a
// half-written value.
type CachedPeer struct {
	Address netip.AddrPort
	id      PeerID
	hasID   bool
	options atomic.Pointer[Options]
}

// ID returns the peer-id this endpoint announced, if any.
func (c *CachedPeer) ID() (PeerID, bool) {
	return c.id, c.hasID
}

// Options returns the peer's current feature-options bag.
func (c *CachedPeer) Options() Options {
	return *c.options.Load()
}

// Peer materializes a Peer value from the cached record's current state.
func (c *CachedPeer) Peer() Peer {
	return Peer{Address: c.Address, ID: c.id, HasID: c.hasID, Options: c.Options()}
}

func newCachedPeer(p Peer) *CachedPeer {
	c := &CachedPeer{Address: p.Address, id: p.ID, hasID: p.HasID}
	opts := p.Options
	c.options.Store(&opts)
	return c
}

// --------------------------------------------------------------------------------------------- //

// PeerCache is the process-wide, deduplicated peer directory: every endpoint
// this client has ever heard about, indexed by address, with exactly one
// CachedPeer per address no matter how many sources reported it. A single
// mutex guards the map so interning a new address and updating an existing
// one's options are both atomic with lookups.
type PeerCache struct {
	mu    sync.Mutex
	peers map[netip.AddrPort]*CachedPeer
}

// NewPeerCache returns an empty cache.
func NewPeerCache() *PeerCache {
	return &PeerCache{peers: make(map[netip.AddrPort]*CachedPeer)}
}

// Register interns p if its address is unseen; otherwise it replaces the
// existing entry's Options with p.Options and returns the existing entry.
// Atomic with respect to Lookup: both take the same mutex around the single
// map access that decides "exists or not".
func (c *PeerCache) Register(p Peer) *CachedPeer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.peers[p.Address]; ok {
		opts := p.Options
		existing.options.Store(&opts)
		return existing
	}

	entry := newCachedPeer(p)
	c.peers[p.Address] = entry
	return entry
}

// Lookup returns the cached entry for addr, creating a minimal one (address
// only, no peer-id, default options) if none exists yet.
func (c *PeerCache) Lookup(addr netip.AddrPort) *CachedPeer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.peers[addr]; ok {
		return existing
	}

	entry := newCachedPeer(Peer{Address: addr})
	c.peers[addr] = entry
	return entry
}

// Len reports the number of distinct endpoints currently cached. Exposed
// for tests and operational introspection.
func (c *PeerCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers)
}
