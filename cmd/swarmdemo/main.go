// Command swarmdemo drives the peer discovery registry against a real
// .torrent file and prints peers as they arrive. It exists to exercise the
// registry end-to-end outside of tests: parse a torrent, register it,
// subscribe, start discovery, and watch the swarm grow.
package main

import (
	"bytes"
	"fmt"
	"log"
	"net/netip"
	"os"
	"time"

	bencode "github.com/jackpal/bencode-go"
	"github.com/schollz/progressbar/v3"

	"swarmcore/swarm"
)

// metainfo is the minimal bencode-decoded shape swarmdemo needs out of a
// .torrent file: the announce URLs and the private flag. Full metainfo
// parsing (piece hashes, file layout) belongs to the piece manager /
// storage layer, out of scope here.
type metainfo struct {
	Announce     string     `bencode:"announce"`
	AnnounceList [][]string `bencode:"announce-list"`
	Info         struct {
		Private int `bencode:"private"`
	} `bencode:"info"`
}

func loadTorrentFile(path string) (metainfo, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return metainfo{}, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var mi metainfo
	if err := bencode.Unmarshal(bytes.NewReader(data), &mi); err != nil {
		return metainfo{}, nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return mi, data, nil
}

func (mi metainfo) announceKey() (swarm.AnnounceKey, bool) {
	if len(mi.AnnounceList) > 0 {
		return swarm.MultiAnnounceKey(mi.AnnounceList), true
	}
	if mi.Announce != "" {
		return swarm.SingleAnnounceKey(mi.Announce), true
	}
	return swarm.AnnounceKey{}, false
}

// staticTorrentRegistry serves exactly one torrent, the one loaded from the
// command line.
type staticTorrentRegistry struct {
	id   swarm.TorrentID
	tor  swarm.Torrent
	desc swarm.Descriptor
}

func (r staticTorrentRegistry) GetDescriptor(id swarm.TorrentID) (swarm.Descriptor, bool) {
	if id != r.id {
		return swarm.Descriptor{}, false
	}
	return r.desc, true
}

func (r staticTorrentRegistry) GetTorrent(id swarm.TorrentID) (swarm.Torrent, bool) {
	if id != r.id {
		return swarm.Torrent{}, false
	}
	return r.tor, true
}

type fixedIdentity struct{ id swarm.PeerID }

func (f fixedIdentity) LocalPeerID() swarm.PeerID { return f.id }

// processLifecycle wires OnStartup/OnShutdown to run inline; a real host
// process would instead hook these to its own boot/signal handling.
type processLifecycle struct {
	startupHooks  []func()
	shutdownHooks []func()
}

func (p *processLifecycle) OnStartup(fn func())  { p.startupHooks = append(p.startupHooks, fn) }
func (p *processLifecycle) OnShutdown(fn func()) { p.shutdownHooks = append(p.shutdownHooks, fn) }

func (p *processLifecycle) Boot() {
	for _, fn := range p.startupHooks {
		fn()
	}
}

func (p *processLifecycle) Shutdown() {
	for _, fn := range p.shutdownHooks {
		fn()
	}
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: swarmdemo <path-to-torrent-file>\n")
		os.Exit(1)
	}

	mi, raw, err := loadTorrentFile(os.Args[1])
	if err != nil {
		log.Fatalf("%v", err)
	}

	infoHash, err := swarm.ComputeInfoHash(raw)
	if err != nil {
		log.Fatalf("computing info hash: %v", err)
	}

	key, hasAnnounce := mi.announceKey()

	registry := staticTorrentRegistry{
		id: infoHash,
		tor: swarm.Torrent{
			AnnounceKey: key,
			HasAnnounce: hasAnnounce,
			IsPrivate:   mi.Info.Private != 0,
		},
		desc: swarm.Descriptor{IsActive: true},
	}

	peerID, err := swarm.GeneratePeerID()
	if err != nil {
		log.Fatalf("generating peer id: %v", err)
	}

	cfg := swarm.Config{
		LocalPeerAddress:      netip.IPv4Unspecified(),
		LocalPeerPort:         6881,
		PeerDiscoveryInterval: 30 * time.Second,
		TrackerQueryInterval:  30 * time.Second,
	}

	peerRegistry, err := swarm.NewPeerRegistry(cfg, registry, swarm.StandardTrackerService{}, fixedIdentity{id: peerID})
	if err != nil {
		log.Fatalf("constructing registry: %v", err)
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("discovering peers"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
	)

	peerRegistry.AddPeerConsumer(infoHash, func(p swarm.Peer) {
		bar.Add(1)
		fmt.Printf("\ndiscovered peer %s\n", p.Address)
	})

	lifecycle := &processLifecycle{}
	peerRegistry.Bind(lifecycle)
	lifecycle.Boot()
	defer lifecycle.Shutdown()

	fmt.Printf("watching torrent %s (%d announce URL(s))\n", infoHash, len(key.URLs()))
	select {}
}
