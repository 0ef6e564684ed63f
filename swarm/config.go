package swarm

import (
	"fmt"
	"net/netip"
	"time"
)

// Config holds every setting the registry needs at construction. All fields
// are mandatory; NewPeerRegistry validates them rather than silently
// defaulting.
type Config struct {
	LocalPeerAddress netip.Addr
	LocalPeerPort    uint16

	PeerDiscoveryInterval time.Duration
	TrackerQueryInterval  time.Duration

	ExtraPeerSourceFactories []PeerSourceFactory
}

func (c Config) validate() error {
	if !c.LocalPeerAddress.IsValid() {
		return fmt.Errorf("swarm: Config.LocalPeerAddress is required")
	}
	if c.LocalPeerPort == 0 {
		return fmt.Errorf("swarm: Config.LocalPeerPort is required")
	}
	if c.PeerDiscoveryInterval <= 0 {
		return fmt.Errorf("swarm: Config.PeerDiscoveryInterval must be positive")
	}
	if c.TrackerQueryInterval <= 0 {
		return fmt.Errorf("swarm: Config.TrackerQueryInterval must be positive")
	}
	return nil
}
