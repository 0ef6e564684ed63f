package swarm

import "fmt"

// Registry-side error kinds are caught per-source and logged; worker-side
// kinds are always fatal to the connection they occurred on.

// TrackerQueryError wraps a failure talking to, or parsing a response from,
// a tracker. The sweep continues with the next source.
type TrackerQueryError struct {
	Torrent TorrentID
	Tracker string
	Err     error
}

func (e *TrackerQueryError) Error() string {
	return fmt.Sprintf("tracker query failed for torrent %s at %s: %v", e.Torrent, e.Tracker, e.Err)
}

func (e *TrackerQueryError) Unwrap() error { return e.Err }

// PeerSourceError wraps a failure from a plug-in peer source (PEX, DHT, ...).
type PeerSourceError struct {
	Torrent TorrentID
	Err     error
}

func (e *PeerSourceError) Error() string {
	return fmt.Sprintf("peer source failed for torrent %s: %v", e.Torrent, e.Err)
}

func (e *PeerSourceError) Unwrap() error { return e.Err }

// ConsumerCallbackError wraps a panic/error recovered from a subscriber
// callback. Other subscribers still run.
type ConsumerCallbackError struct {
	Torrent TorrentID
	Err     error
}

func (e *ConsumerCallbackError) Error() string {
	return fmt.Sprintf("peer consumer callback failed for torrent %s: %v", e.Torrent, e.Err)
}

func (e *ConsumerCallbackError) Unwrap() error { return e.Err }

// ErrUnsupportedTrackerProtocol describes a URL whose protocol a
// TrackerService declines. It is not returned to callers: the registry logs
// it at INFO level (never as a failure) and skips the source.
type ErrUnsupportedTrackerProtocol struct {
	URL string
}

func (e *ErrUnsupportedTrackerProtocol) Error() string {
	return fmt.Sprintf("unsupported tracker protocol: %s", e.URL)
}

// ErrConnectionClosed is fatal: the worker's Connection reports closed.
type ErrConnectionClosed struct {
	Peer string
}

func (e *ErrConnectionClosed) Error() string {
	return fmt.Sprintf("connection to %s is closed", e.Peer)
}

// ErrUnexpectedBlock is fatal: a PIECE message arrived for a RequestKey we
// never requested.
type ErrUnexpectedBlock struct {
	Key RequestKey
}

func (e *ErrUnexpectedBlock) Error() string {
	return fmt.Sprintf("unexpected block %+v: no matching pending request", e.Key)
}

// ErrUnexpectedMessage is fatal: the peer sent a message ID this worker does
// not understand.
type ErrUnexpectedMessage struct {
	ID MessageID
}

func (e *ErrUnexpectedMessage) Error() string {
	return fmt.Sprintf("unexpected message id %d", e.ID)
}

// SendFailure is fatal: post_message rejected a message we tried to send.
type SendFailure struct {
	Peer string
	Err  error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("failed to send message to %s: %v", e.Peer, e.Err)
}

func (e *SendFailure) Unwrap() error { return e.Err }
