package swarm

import (
	"testing"
	"time"
)

const testMinInterval = time.Minute

type stubTrackerService struct {
	supported map[string]bool
}

func (s stubTrackerService) IsSupportedProtocol(url string) bool {
	return s.supported[url]
}

func TestNewTrackerPeerSource_RejectsPartiallySupportedMultiTierKey(t *testing.T) {
	client := NewTrackerClient(TorrentID{}, PeerID{}, 6881)
	tracker := stubTrackerService{supported: map[string]bool{"http://a/announce": true}}
	key := MultiAnnounceKey([][]string{{"http://a/announce"}, {"udp://b/announce"}})

	_, ok := newTrackerPeerSource(client, tracker, TorrentID{}, key, testMinInterval)
	if ok {
		t.Fatalf("expected rejection: udp://b/announce is unsupported")
	}
}

func TestNewTrackerPeerSource_AcceptsFullySupportedKey(t *testing.T) {
	client := NewTrackerClient(TorrentID{}, PeerID{}, 6881)
	tracker := stubTrackerService{supported: map[string]bool{
		"http://a/announce": true,
		"udp://b/announce":  true,
	}}
	key := MultiAnnounceKey([][]string{{"http://a/announce"}, {"udp://b/announce"}})

	_, ok := newTrackerPeerSource(client, tracker, TorrentID{}, key, testMinInterval)
	if !ok {
		t.Fatalf("expected acceptance: every url is supported")
	}
}

func TestStandardTrackerService_IsSupportedProtocol(t *testing.T) {
	svc := StandardTrackerService{}

	cases := map[string]bool{
		"http://tracker/announce":  true,
		"https://tracker/announce": true,
		"udp://tracker:80":         true,
		"ftp://tracker/announce":   false,
		"tracker/announce":         false,
	}

	for url, want := range cases {
		if got := svc.IsSupportedProtocol(url); got != want {
			t.Errorf("IsSupportedProtocol(%q) = %v, want %v", url, got, want)
		}
	}
}

