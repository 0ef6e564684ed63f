// Package swarm implements the core of a BitTorrent client: the peer discovery
// registry and the per-connection peer-wire protocol worker. Everything else
// (metainfo parsing beyond what tracker announces need, on-disk storage,
// socket framing, piece selection strategy, torrent lifecycle) is an external
// collaborator, described by the interfaces in external.go.
package swarm

import (
	"fmt"
	"net/netip"
	"time"
)

// TorrentID is a 20-byte SHA-1 infohash identifying a torrent.
type TorrentID [20]byte

func (id TorrentID) String() string {
	return fmt.Sprintf("%x", [20]byte(id))
}

// PeerID is the 20-byte identifier a peer announces in its handshake.
type PeerID [20]byte

// Options is the mutable feature-flag bag carried on a cached Peer. New
// observations of the same endpoint replace the whole bag; it is never
// merged field-by-field, since one source's view of a peer's extensions
// supersedes an older, possibly stale one.
type Options struct {
	FastExtension     bool
	ExtensionProtocol bool
	SupportsDHT       bool
}

// Peer is a remote endpoint identity: address, optional peer-id, and a
// feature-options bag. Equality and hashing are by Address only — the same
// endpoint reporting a different peer-id or option set is still one peer.
type Peer struct {
	Address netip.AddrPort
	ID      PeerID
	HasID   bool
	Options Options
}

// IsLocal reports whether p is this client's own identity as seen from the
// outside: an any-local (0.0.0.0 / ::) address on local's announced port.
// Used by PeerRegistry.AddPeer to drop self-discovery.
func (p Peer) IsLocal(local Peer) bool {
	return p.Address.Addr().IsUnspecified() && p.Address.Port() == local.Address.Port()
}

// AnnounceKey is either a single tracker URL or a BEP-12 tiered list of URLs.
// Tiers is always populated: a single-URL key is represented as one tier
// holding one URL, so callers never need to special-case the non-tiered
// form.
type AnnounceKey struct {
	Tiers [][]string
}

// SingleAnnounceKey builds an AnnounceKey for one tracker URL.
func SingleAnnounceKey(url string) AnnounceKey {
	return AnnounceKey{Tiers: [][]string{{url}}}
}

// MultiAnnounceKey builds a BEP-12 tiered AnnounceKey.
func MultiAnnounceKey(tiers [][]string) AnnounceKey {
	return AnnounceKey{Tiers: tiers}
}

// URLs flattens the tiers into one slice, tier order preserved.
func (k AnnounceKey) URLs() []string {
	var out []string
	for _, tier := range k.Tiers {
		out = append(out, tier...)
	}
	return out
}

// Canonical returns a stable string identity for the key, used to deduplicate
// AnnounceKeys in sets without requiring them to be comparable (they embed
// slices, so Go's == operator can't do it for us).
func (k AnnounceKey) Canonical() string {
	s := ""
	for ti, tier := range k.Tiers {
		if ti > 0 {
			s += "|"
		}
		for ui, u := range tier {
			if ui > 0 {
				s += ","
			}
			s += u
		}
	}
	return s
}

// RequestKey identifies one outstanding block transfer.
type RequestKey struct {
	Piece  int
	Offset int
	Length int
}

// Request is an outbound block request scheduled for a piece.
type Request struct {
	Piece  int
	Offset int
	Length int
}

// Key returns the RequestKey identifying r.
func (r Request) Key() RequestKey {
	return RequestKey{Piece: r.Piece, Offset: r.Offset, Length: r.Length}
}

// MaxPendingRequests bounds the number of in-flight block requests a worker
// keeps open at once. The issue loop in worker.go checks this with <=, not
// <, which allows one extra request in flight at the boundary; this quirk
// is preserved rather than silently tightened.
const MaxPendingRequests = 3

// StallTimeout is how long an empty request queue with a piece still in
// flight is tolerated before requests are rebuilt from scratch.
const StallTimeout = 30 * time.Second
