package swarm

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"fmt"
	"strconv"
)

// GeneratePeerID produces a 20-byte Azureus-style peer-id: an 8-byte client
// prefix followed by random characters.
func GeneratePeerID() (PeerID, error) {
	const prefix = "-SC0001-"
	const chars = "0123456789abcdefghijklmnopqrstuvxyz"

	var id PeerID
	copy(id[:], prefix)

	randomLen := len(id) - len(prefix)
	randomBytes := make([]byte, randomLen)
	if _, err := rand.Read(randomBytes); err != nil {
		return PeerID{}, fmt.Errorf("generating peer id: %w", err)
	}
	for i, b := range randomBytes {
		id[len(prefix)+i] = chars[int(b)%len(chars)]
	}
	return id, nil
}

// ExtractInfoBytes locates the bencoded "info" dictionary inside a raw
// .torrent file and returns its exact bytes (needed to compute the infohash
// independent of key ordering quirks in the surrounding dictionary).
func ExtractInfoBytes(data []byte) ([]byte, error) {
	idx := bytes.Index(data, []byte("4:info"))
	if idx < 0 {
		return nil, fmt.Errorf("swarm: no \"4:info\" prefix found")
	}

	start := idx + len("4:info")
	depth := 0
	for i := start; i < len(data); i++ {
		b := data[i]
		switch {
		case b == 'd' || b == 'l':
			depth++
		case b == 'e':
			depth--
			if depth == 0 {
				return data[start : i+1], nil
			}
		case b == 'i':
			j := i + 1
			for ; j < len(data) && data[j] != 'e'; j++ {
			}
			if j >= len(data) {
				return nil, fmt.Errorf("swarm: unterminated integer at %d", i)
			}
			i = j
		case b >= '0' && b <= '9':
			j := i
			for ; j < len(data) && data[j] >= '0' && data[j] <= '9'; j++ {
			}
			if j < len(data) && data[j] == ':' {
				length, err := strconv.Atoi(string(data[i:j]))
				if err != nil {
					return nil, fmt.Errorf("swarm: invalid string length at %d-%d", i, j)
				}
				j++
				i = j + length - 1
			}
		}
	}
	return nil, fmt.Errorf("swarm: unterminated info dict")
}

// ComputeInfoHash returns the SHA-1 hash of the info dictionary extracted
// from a raw .torrent file. The core never touches the filesystem itself;
// callers pass in already-read bytes.
func ComputeInfoHash(rawTorrentFile []byte) (TorrentID, error) {
	infoBytes, err := ExtractInfoBytes(rawTorrentFile)
	if err != nil {
		return TorrentID{}, fmt.Errorf("extracting info dict: %w", err)
	}
	return TorrentID(sha1.Sum(infoBytes)), nil
}
