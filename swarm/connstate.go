package swarm

// ConnectionState holds the four BitTorrent flow-control flags for one
// link: this side's choking/interested state and the peer's.
//
// Both sides start choked and not-interested, per the BitTorrent protocol.
type ConnectionState struct {
	choking        bool
	interested     bool
	peerChoking    bool
	peerInterested bool
}

// NewConnectionState returns the initial state: {choking: true, interested:
// false, peerChoking: true, peerInterested: false}.
func NewConnectionState() *ConnectionState {
	return &ConnectionState{
		choking:        true,
		interested:     false,
		peerChoking:    true,
		peerInterested: false,
	}
}

func (s *ConnectionState) Choking() bool        { return s.choking }
func (s *ConnectionState) Interested() bool     { return s.interested }
func (s *ConnectionState) PeerChoking() bool    { return s.peerChoking }
func (s *ConnectionState) PeerInterested() bool { return s.peerInterested }

func (s *ConnectionState) SetChoking(v bool)        { s.choking = v }
func (s *ConnectionState) SetInterested(v bool)     { s.interested = v }
func (s *ConnectionState) SetPeerChoking(v bool)    { s.peerChoking = v }
func (s *ConnectionState) SetPeerInterested(v bool) { s.peerInterested = v }
