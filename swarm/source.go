package swarm

import (
	"sync"
	"time"
)

// PeerSource is a pull-based, rate-limited supplier of candidate peers for
// one torrent.
type PeerSource interface {
	// Update attempts to refresh the candidate set. It returns true if new
	// data is available, false if rate-limited or unchanged. It must not
	// block the caller's goroutine on unbounded I/O beyond its own internal
	// timeout.
	Update() (bool, error)
	// Peers returns the current candidate snapshot, valid after a successful
	// Update.
	Peers() []Peer
}

// PeerSourceFactory yields a PeerSource for a given torrent. Concrete
// adapters (tracker, PEX, DHT) are just functions or small structs
// implementing this — plug-in sources are registered at registry
// construction via Config.ExtraPeerSourceFactories.
type PeerSourceFactory interface {
	PeerSource(torrentID TorrentID) PeerSource
}

// PeerSourceFactoryFunc adapts a plain function to PeerSourceFactory.
type PeerSourceFactoryFunc func(torrentID TorrentID) PeerSource

func (f PeerSourceFactoryFunc) PeerSource(torrentID TorrentID) PeerSource { return f(torrentID) }

// TrackerPeerSource wraps a TrackerClient configured with an AnnounceKey,
// rate limited to at most one successful query per interval (a failed query
// does not start the interval), adapting the tracker's
// request/response cycle to the pull interface above.
type TrackerPeerSource struct {
	client      *TrackerClient
	torrentID   TorrentID
	key         AnnounceKey
	minInterval time.Duration

	mu       sync.Mutex
	lastPoll time.Time
	peers    []Peer
}

// newTrackerPeerSource builds a TrackerPeerSource for key, or returns
// (nil, false) if any URL across any tier of key is unsupported by tracker.
// This is a deliberately conservative all-or-nothing policy: a
// partially-supported multi-tier key is not fallen back to its supported
// subset, since silently dropping tiers could leave a torrent talking to
// only its weakest trackers without anyone noticing.
func newTrackerPeerSource(client *TrackerClient, tracker TrackerService, torrentID TorrentID, key AnnounceKey, minInterval time.Duration) (*TrackerPeerSource, bool) {
	for _, url := range key.URLs() {
		if !tracker.IsSupportedProtocol(url) {
			return nil, false
		}
	}
	return &TrackerPeerSource{
		client:      client,
		torrentID:   torrentID,
		key:         key,
		minInterval: minInterval,
	}, true
}

// Update announces to every URL across key's tiers and keeps the merged peer
// set (see TrackerClient.Announce), subject to minInterval rate limiting.
func (s *TrackerPeerSource) Update() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastPoll.IsZero() && time.Since(s.lastPoll) < s.minInterval {
		return false, nil
	}

	peers, err := s.client.Announce(s.key)
	if err != nil {
		return false, err
	}

	s.lastPoll = time.Now()
	s.peers = peers
	return true, nil
}

// Peers returns the last-announced candidate snapshot.
func (s *TrackerPeerSource) Peers() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Peer, len(s.peers))
	copy(out, s.peers)
	return out
}

// TrackerService is the collaborator that vets a tracker URL's protocol
// before TrackerPeerSource attempts it.
type TrackerService interface {
	IsSupportedProtocol(url string) bool
}

// StandardTrackerService supports http(s):// and udp:// announce URLs.
type StandardTrackerService struct{}

func (StandardTrackerService) IsSupportedProtocol(url string) bool {
	return isHTTPURL(url) || isUDPURL(url)
}
