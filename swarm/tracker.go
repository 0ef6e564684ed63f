package swarm

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	bencode "github.com/jackpal/bencode-go"
)

// TrackerClient implements the HTTP and UDP tracker announce wire protocols
// for one torrent, accepting a full AnnounceKey (possibly tiered across
// multiple trackers) rather than a single announce URL.
type TrackerClient struct {
	InfoHash TorrentID
	PeerID   PeerID
	Port     uint16

	// HTTPTimeout bounds one HTTP announce request.
	HTTPTimeout time.Duration
	// UDPTimeout bounds one UDP connect/announce round trip.
	UDPTimeout time.Duration
}

// NewTrackerClient builds a client for one torrent's announces.
func NewTrackerClient(infoHash TorrentID, peerID PeerID, port uint16) *TrackerClient {
	return &TrackerClient{
		InfoHash:    infoHash,
		PeerID:      peerID,
		Port:        port,
		HTTPTimeout: 15 * time.Second,
		UDPTimeout:  5 * time.Second,
	}
}

func isHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func isUDPURL(u string) bool {
	return strings.HasPrefix(u, "udp://")
}

// Announce queries every URL in key (flattened across tiers) and merges the
// resulting peer sets. It returns an error only if every URL failed.
func (c *TrackerClient) Announce(key AnnounceKey) ([]Peer, error) {
	seen := make(map[netip.AddrPort]struct{})
	var merged []Peer
	var lastErr error
	anySucceeded := false

	for _, u := range key.URLs() {
		var (
			peers []Peer
			err   error
		)
		switch {
		case isHTTPURL(u):
			peers, err = c.announceHTTP(u)
		case isUDPURL(u):
			peers, err = c.announceUDP(u)
		default:
			err = fmt.Errorf("swarm: unsupported tracker url scheme: %s", u)
		}

		if err != nil {
			lastErr = &TrackerQueryError{Torrent: c.InfoHash, Tracker: u, Err: err}
			continue
		}

		anySucceeded = true
		for _, p := range peers {
			if _, dup := seen[p.Address]; dup {
				continue
			}
			seen[p.Address] = struct{}{}
			merged = append(merged, p)
		}
	}

	if !anySucceeded {
		if lastErr == nil {
			lastErr = fmt.Errorf("swarm: no trackers in announce key")
		}
		return nil, lastErr
	}
	return merged, nil
}

// --------------------------------------------------------------------------------------------- //

type trackerHTTPResponse struct {
	Peers    string `bencode:"peers"`
	Failure  string `bencode:"failure reason"`
	Interval int    `bencode:"interval"`
}

func (c *TrackerClient) announceHTTP(announceURL string) ([]Peer, error) {
	u, err := url.Parse(announceURL)
	if err != nil {
		return nil, fmt.Errorf("parsing tracker url: %w", err)
	}

	params := url.Values{}
	params.Add("info_hash", string(c.InfoHash[:]))
	params.Add("peer_id", string(c.PeerID[:]))
	params.Add("port", fmt.Sprintf("%d", c.Port))
	params.Add("uploaded", "0")
	params.Add("downloaded", "0")
	params.Add("left", "0")
	params.Add("compact", "1")
	u.RawQuery = params.Encode()

	client := &http.Client{Timeout: c.HTTPTimeout}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building tracker request: %w", err)
	}
	req.Header.Set("User-Agent", "swarmcore/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending tracker request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tracker returned status %d", resp.StatusCode)
	}

	var tr trackerHTTPResponse
	if err := bencode.Unmarshal(resp.Body, &tr); err != nil {
		return nil, fmt.Errorf("decoding tracker response: %w", err)
	}
	if tr.Failure != "" {
		return nil, fmt.Errorf("tracker failure: %s", tr.Failure)
	}

	return parseCompactPeers([]byte(tr.Peers))
}

const (
	udpProtocolMagic  uint64 = 0x41727101980
	udpActionConnect  uint32 = 0
	udpActionAnnounce uint32 = 1
	udpActionError    uint32 = 3
	udpEventStarted   uint32 = 2
)

func (c *TrackerClient) announceUDP(announceURL string) ([]Peer, error) {
	u, err := url.Parse(announceURL)
	if err != nil {
		return nil, fmt.Errorf("parsing tracker url: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("resolving udp tracker address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dialing udp tracker: %w", err)
	}
	defer conn.Close()

	transactionID, err := randomUint32()
	if err != nil {
		return nil, err
	}

	connectReq := make([]byte, 16)
	binary.BigEndian.PutUint64(connectReq[0:8], udpProtocolMagic)
	binary.BigEndian.PutUint32(connectReq[8:12], udpActionConnect)
	binary.BigEndian.PutUint32(connectReq[12:16], transactionID)

	conn.SetDeadline(time.Now().Add(c.UDPTimeout))
	if _, err := conn.Write(connectReq); err != nil {
		return nil, fmt.Errorf("sending udp connect: %w", err)
	}

	connectResp := make([]byte, 16)
	n, err := conn.Read(connectResp)
	if err != nil {
		return nil, fmt.Errorf("reading udp connect response: %w", err)
	}
	if n < 16 {
		return nil, fmt.Errorf("udp connect response too short: %d bytes", n)
	}
	if action := binary.BigEndian.Uint32(connectResp[0:4]); action != udpActionConnect {
		return nil, fmt.Errorf("unexpected udp connect action: %d", action)
	}
	if binary.BigEndian.Uint32(connectResp[4:8]) != transactionID {
		return nil, fmt.Errorf("udp connect transaction id mismatch")
	}
	connectionID := binary.BigEndian.Uint64(connectResp[8:16])

	key, err := randomUint32()
	if err != nil {
		return nil, err
	}

	announceReq := make([]byte, 98)
	binary.BigEndian.PutUint64(announceReq[0:8], connectionID)
	binary.BigEndian.PutUint32(announceReq[8:12], udpActionAnnounce)
	binary.BigEndian.PutUint32(announceReq[12:16], transactionID)
	copy(announceReq[16:36], c.InfoHash[:])
	copy(announceReq[36:56], c.PeerID[:])
	binary.BigEndian.PutUint64(announceReq[56:64], 0) // downloaded
	binary.BigEndian.PutUint64(announceReq[64:72], 0) // left
	binary.BigEndian.PutUint64(announceReq[72:80], 0) // uploaded
	binary.BigEndian.PutUint32(announceReq[80:84], udpEventStarted)
	binary.BigEndian.PutUint32(announceReq[84:88], 0) // ip, 0 = sender's address
	binary.BigEndian.PutUint32(announceReq[88:92], key)
	binary.BigEndian.PutUint32(announceReq[92:96], ^uint32(0)) // num_want, -1 as uint32
	binary.BigEndian.PutUint16(announceReq[96:98], c.Port)

	conn.SetDeadline(time.Now().Add(c.UDPTimeout))
	if _, err := conn.Write(announceReq); err != nil {
		return nil, fmt.Errorf("sending udp announce: %w", err)
	}

	buf := make([]byte, 2048)
	n, err = conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("reading udp announce response: %w", err)
	}
	if n < 20 {
		return nil, fmt.Errorf("udp announce response too short: %d bytes", n)
	}

	action := binary.BigEndian.Uint32(buf[0:4])
	if action == udpActionError {
		return nil, fmt.Errorf("tracker error: %s", string(buf[8:n]))
	}
	if action != udpActionAnnounce {
		return nil, fmt.Errorf("unexpected udp announce action: %d", action)
	}
	if binary.BigEndian.Uint32(buf[4:8]) != transactionID {
		return nil, fmt.Errorf("udp announce transaction id mismatch")
	}

	return parseCompactPeers(buf[20:n])
}

// --------------------------------------------------------------------------------------------- //

func randomUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("generating random value: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// parseCompactPeers decodes a BEP-23 compact peer list (4 bytes IPv4 + 2
// bytes port, repeated) into Peer values.
func parseCompactPeers(raw []byte) ([]Peer, error) {
	if len(raw)%6 != 0 {
		return nil, fmt.Errorf("swarm: invalid compact peers length %d (must be multiple of 6)", len(raw))
	}

	peers := make([]Peer, 0, len(raw)/6)
	for i := 0; i < len(raw); i += 6 {
		ip := netip.AddrFrom4([4]byte{raw[i], raw[i+1], raw[i+2], raw[i+3]})
		port := binary.BigEndian.Uint16(raw[i+4 : i+6])
		peers = append(peers, Peer{Address: netip.AddrPortFrom(ip, port)})
	}
	return peers, nil
}
