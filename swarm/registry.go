package swarm

import (
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/google/uuid"
)

// PeerConsumer receives newly-discovered peers for one torrent. It runs
// synchronously on the discovery goroutine and must return promptly.
type PeerConsumer func(Peer)

// announceKeySet is a per-torrent, mutex-guarded set of user-added
// AnnounceKeys, backed by github.com/deckarep/golang-set. Membership is
// tracked by canonical string identity since AnnounceKey embeds slices and
// can't be compared with Go's == operator.
type announceKeySet struct {
	mu          sync.Mutex
	canonical   mapset.Set
	byCanonical map[string]AnnounceKey
}

func newAnnounceKeySet() *announceKeySet {
	return &announceKeySet{canonical: mapset.NewSet(), byCanonical: make(map[string]AnnounceKey)}
}

func (s *announceKeySet) add(k AnnounceKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := k.Canonical()
	if !s.canonical.Contains(c) {
		s.canonical.Add(c)
		s.byCanonical[c] = k
	}
}

// snapshot copies the set's current contents under the mutex before the
// caller starts querying trackers, so AddPeerSource never blocks waiting on
// tracker I/O.
func (s *announceKeySet) snapshot() []AnnounceKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AnnounceKey, 0, s.canonical.Cardinality())
	for _, c := range s.canonical.ToSlice() {
		out = append(out, s.byCanonical[c.(string)])
	}
	return out
}

func (s *announceKeySet) isEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canonical.Cardinality() == 0
}

// --------------------------------------------------------------------------------------------- //

// PeerRegistry orchestrates periodic peer discovery across every active
// torrent and serves as the canonical peer directory: it polls trackers and
// any plugged-in peer sources on a fixed interval, interns what they return
// into the cache, and fans each newly-discovered peer out to that torrent's
// subscribers.
type PeerRegistry struct {
	cfg      Config
	local    Peer
	cache    *PeerCache
	torrents TorrentRegistry
	tracker  TrackerService

	subsMu      sync.Mutex
	subscribers map[TorrentID]*atomic.Pointer[[]PeerConsumer]

	extraMu sync.Mutex
	extra   map[TorrentID]*announceKeySet

	sourceMu       sync.Mutex
	trackerSources map[string]*TrackerPeerSource
	pluginSources  map[string]PeerSource

	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewPeerRegistry constructs a registry. It does not start the discovery
// loop; call Start (typically from a LifecycleBinder.OnStartup hook).
func NewPeerRegistry(cfg Config, torrents TorrentRegistry, tracker TrackerService, identity IdentityService) (*PeerRegistry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	local := Peer{
		Address: netip.AddrPortFrom(cfg.LocalPeerAddress, cfg.LocalPeerPort),
		ID:      identity.LocalPeerID(),
		HasID:   true,
	}

	return &PeerRegistry{
		cfg:            cfg,
		local:          local,
		cache:          NewPeerCache(),
		torrents:       torrents,
		tracker:        tracker,
		subscribers:    make(map[TorrentID]*atomic.Pointer[[]PeerConsumer]),
		extra:          make(map[TorrentID]*announceKeySet),
		trackerSources: make(map[string]*TrackerPeerSource),
		pluginSources:  make(map[string]PeerSource),
		stop:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}, nil
}

// Bind registers the registry's discovery loop with a LifecycleBinder, so
// its start/stop tracks the host process rather than being driven manually.
func (r *PeerRegistry) Bind(lifecycle LifecycleBinder) {
	lifecycle.OnStartup(r.Start)
	lifecycle.OnShutdown(r.Stop)
}

// LocalPeer returns this client's own identity.
func (r *PeerRegistry) LocalPeer() Peer {
	return r.local
}

// GetPeerForAddress delegates to the peer cache.
func (r *PeerRegistry) GetPeerForAddress(addr netip.AddrPort) *CachedPeer {
	return r.cache.Lookup(addr)
}

// AddPeer interns p and delivers it to every subscriber of torrentID. A
// peer matching the local identity (any-local address, same port) is
// silently dropped before it ever reaches the cache, so this client never
// ends up listed as its own peer in the shared directory.
func (r *PeerRegistry) AddPeer(torrentID TorrentID, p Peer) {
	if p.IsLocal(r.local) {
		return
	}
	cached := r.cache.Register(p)
	r.dispatch(torrentID, cached.Peer())
}

// AddPeerConsumer appends cb to torrentID's subscriber list. Subscribing
// the same callback twice yields two invocations per peer: subscribers form
// a list, not a set. The list is swapped in whole under copy-on-write
// (atomic.Pointer over a freshly copied slice) so the discovery goroutine's
// concurrent reads (dispatch) never race a writer.
func (r *PeerRegistry) AddPeerConsumer(torrentID TorrentID, cb PeerConsumer) {
	ptr := r.subscriberPointer(torrentID)
	for {
		old := ptr.Load()
		var oldList []PeerConsumer
		if old != nil {
			oldList = *old
		}
		newList := make([]PeerConsumer, len(oldList)+1)
		copy(newList, oldList)
		newList[len(oldList)] = cb
		if ptr.CompareAndSwap(old, &newList) {
			return
		}
	}
}

// RemovePeerConsumers drops every subscriber for torrentID.
//
// TODO: someone should call this after a torrent is stopped or completed;
// wiring a torrent-lifecycle hook is left to the connection manager.
func (r *PeerRegistry) RemovePeerConsumers(torrentID TorrentID) {
	ptr := r.subscriberPointer(torrentID)
	empty := []PeerConsumer{}
	ptr.Store(&empty)
}

// AddPeerSource adds key to torrentID's extra announce-key set.
func (r *PeerRegistry) AddPeerSource(torrentID TorrentID, key AnnounceKey) {
	r.extraSetFor(torrentID).add(key)
}

func (r *PeerRegistry) subscriberPointer(torrentID TorrentID) *atomic.Pointer[[]PeerConsumer] {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	ptr, ok := r.subscribers[torrentID]
	if !ok {
		ptr = &atomic.Pointer[[]PeerConsumer]{}
		empty := []PeerConsumer{}
		ptr.Store(&empty)
		r.subscribers[torrentID] = ptr
	}
	return ptr
}

func (r *PeerRegistry) extraSetFor(torrentID TorrentID) *announceKeySet {
	r.extraMu.Lock()
	defer r.extraMu.Unlock()
	set, ok := r.extra[torrentID]
	if !ok {
		set = newAnnounceKeySet()
		r.extra[torrentID] = set
	}
	return set
}

func (r *PeerRegistry) dispatch(torrentID TorrentID, p Peer) {
	list := *r.subscriberPointer(torrentID).Load()
	for _, cb := range list {
		r.invokeConsumer(torrentID, cb, p)
	}
}

func (r *PeerRegistry) invokeConsumer(torrentID TorrentID, cb PeerConsumer, p Peer) {
	defer func() {
		if rec := recover(); rec != nil {
			logFail("%v", &ConsumerCallbackError{Torrent: torrentID, Err: fmt.Errorf("%v", rec)})
		}
	}()
	cb(p)
}

// --------------------------------------------------------------------------------------------- //

// Start launches the discovery loop on its own goroutine. The first sweep
// fires almost immediately (after 1ms); subsequent sweeps fire every
// PeerDiscoveryInterval. Re-entrance is prevented by construction: only this
// goroutine ever calls sweep.
func (r *PeerRegistry) Start() {
	go r.run()
}

func (r *PeerRegistry) run() {
	defer close(r.stopped)

	timer := time.NewTimer(time.Millisecond)
	defer timer.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-timer.C:
			r.sweep()
			timer.Reset(r.cfg.PeerDiscoveryInterval)
		}
	}
}

// Stop signals the discovery loop to exit and blocks until the discovery
// goroutine has exited. The loop checks for the signal only between sweeps:
// a sweep already in progress, including its tracker queries, runs to
// completion first and is not interrupted.
func (r *PeerRegistry) Stop() {
	r.closeOnce.Do(func() { close(r.stop) })
	<-r.stopped
}

func (r *PeerRegistry) sweep() {
	sweepID := uuid.NewString()
	for _, torrentID := range r.torrentsWithSubscribers() {
		r.sweepTorrent(sweepID, torrentID)
	}
}

// torrentsWithSubscribers returns torrent ids with at least one subscriber.
// A torrent nobody is listening on is never queried; there's no point
// spending a tracker round trip on peers that would just be discarded.
func (r *PeerRegistry) torrentsWithSubscribers() []TorrentID {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	var ids []TorrentID
	for id, ptr := range r.subscribers {
		if len(*ptr.Load()) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *PeerRegistry) sweepTorrent(sweepID string, torrentID TorrentID) {
	desc, ok := r.torrents.GetDescriptor(torrentID)
	if !ok || !desc.IsActive {
		return
	}
	t, ok := r.torrents.GetTorrent(torrentID)
	if !ok {
		return
	}

	for _, key := range r.selectedAnnounceKeys(sweepID, torrentID, t) {
		r.queryTracker(sweepID, torrentID, key)
	}

	if !t.IsPrivate {
		for i, factory := range r.cfg.ExtraPeerSourceFactories {
			source := r.pluginSourceFor(torrentID, i, factory)
			r.querySource(sweepID, torrentID, source)
		}
	}
}

// selectedAnnounceKeys applies the BEP-27 private-torrent policy: a private
// torrent's own announce key is always used, but any user-added extra
// sources are ignored (and logged) since a private torrent must only ever
// be announced to its own tracker. Split out from sweepTorrent as pure
// decision logic, separate from the tracker I/O that follows, so the policy
// is testable without a network round trip.
func (r *PeerRegistry) selectedAnnounceKeys(sweepID string, torrentID TorrentID, t Torrent) []AnnounceKey {
	var keys []AnnounceKey
	if t.HasAnnounce {
		keys = append(keys, t.AnnounceKey)
	}

	if t.IsPrivate {
		if !r.extraSetFor(torrentID).isEmpty() {
			logWarn("[%s] torrent %s is private: ignoring extra announce keys (BEP-27)", sweepID, torrentID)
		}
		return keys
	}

	return append(keys, r.extraSetFor(torrentID).snapshot()...)
}

func (r *PeerRegistry) queryTracker(sweepID string, torrentID TorrentID, key AnnounceKey) {
	source, ok := r.trackerSourceFor(torrentID, key)
	if !ok {
		for _, url := range key.URLs() {
			if !r.tracker.IsSupportedProtocol(url) {
				logInfo("[%s] torrent %s: %v, skipping", sweepID, torrentID, &ErrUnsupportedTrackerProtocol{URL: url})
			}
		}
		return
	}
	r.querySource(sweepID, torrentID, source)
}

// trackerSourceFor returns a long-lived TrackerPeerSource for (torrentID,
// key), creating it on first use. Persisting the source across sweeps (not
// building a fresh one each time) is what makes TrackerQueryInterval rate
// limiting actually rate-limit anything.
func (r *PeerRegistry) trackerSourceFor(torrentID TorrentID, key AnnounceKey) (*TrackerPeerSource, bool) {
	cacheKey := torrentID.String() + "|" + key.Canonical()

	r.sourceMu.Lock()
	defer r.sourceMu.Unlock()

	if source, ok := r.trackerSources[cacheKey]; ok {
		return source, true
	}

	client := NewTrackerClient(torrentID, r.local.ID, r.local.Address.Port())
	source, ok := newTrackerPeerSource(client, r.tracker, torrentID, key, r.cfg.TrackerQueryInterval)
	if !ok {
		return nil, false
	}
	r.trackerSources[cacheKey] = source
	return source, true
}

func (r *PeerRegistry) pluginSourceFor(torrentID TorrentID, factoryIndex int, factory PeerSourceFactory) PeerSource {
	cacheKey := fmt.Sprintf("%s|%d", torrentID, factoryIndex)

	r.sourceMu.Lock()
	defer r.sourceMu.Unlock()

	if source, ok := r.pluginSources[cacheKey]; ok {
		return source
	}
	source := factory.PeerSource(torrentID)
	r.pluginSources[cacheKey] = source
	return source
}

// querySource updates the source and, if it reports fresh data, adds each
// of its peers. Any error or panic from either step is caught and logged,
// and never prevents the caller from trying the next source.
func (r *PeerRegistry) querySource(sweepID string, torrentID TorrentID, source PeerSource) {
	defer func() {
		if rec := recover(); rec != nil {
			logFail("[%s] %v", sweepID, &PeerSourceError{Torrent: torrentID, Err: fmt.Errorf("panic: %v", rec)})
		}
	}()

	fresh, err := source.Update()
	if err != nil {
		logFail("[%s] %v", sweepID, &PeerSourceError{Torrent: torrentID, Err: err})
		return
	}
	if !fresh {
		return
	}

	for _, p := range source.Peers() {
		r.AddPeer(torrentID, p)
	}
}
