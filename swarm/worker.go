package swarm

import (
	"time"

	mapset "github.com/deckarep/golang-set"
)

// ConnectionWorker drives the peer-wire protocol state machine for exactly
// one live, already-handshaken connection. It performs no I/O scheduling of
// its own: an external scheduler (the connection manager) calls DoWork
// repeatedly, and DoWork reads at most one inbound message and posts zero or
// more outbound ones per call. Requests are pipelined rather than issued one
// block at a time, with explicit pending-request and pending-write
// bookkeeping to track what's in flight and what's still being written to
// disk.
type ConnectionWorker struct {
	conn  Connection
	state *ConnectionState
	pm    PieceManager

	requestConsumer RequestConsumer
	blockConsumer   BlockConsumer
	blockSupplier   BlockSupplier

	currentPiece   int
	hasPiece       bool
	requestQueue   []Request
	pendingRequest mapset.Set // RequestKey
	pendingWrites  map[RequestKey]BlockWrite
	cancelledPeer  mapset.Set // RequestKey

	lastRequestsBuiltAt time.Time

	received int64
	sent     int64
}

// NewConnectionWorker constructs a worker for an already-open Connection. If
// the local side has any data, it immediately posts a BITFIELD message
// advertising it.
func NewConnectionWorker(conn Connection, pm PieceManager, requestConsumer RequestConsumer, blockConsumer BlockConsumer, blockSupplier BlockSupplier) (*ConnectionWorker, error) {
	w := &ConnectionWorker{
		conn:            conn,
		state:           NewConnectionState(),
		pm:              pm,
		requestConsumer: requestConsumer,
		blockConsumer:   blockConsumer,
		blockSupplier:   blockSupplier,
		pendingRequest:  mapset.NewSet(),
		pendingWrites:   make(map[RequestKey]BlockWrite),
		cancelledPeer:   mapset.NewSet(),
	}

	if pm.HaveAnyData() {
		if err := w.post(NewBitfieldMessage(pm.GetBitfield())); err != nil {
			return nil, err
		}
	}

	return w, nil
}

// State exposes the connection's choke/interest flags for inspection (tests,
// operational introspection).
func (w *ConnectionWorker) State() *ConnectionState { return w.state }

// BytesReceived and BytesSent report running byte totals of payload moved
// over PIECE messages.
func (w *ConnectionWorker) BytesReceived() int64 { return w.received }
func (w *ConnectionWorker) BytesSent() int64     { return w.sent }

func (w *ConnectionWorker) post(msg Message) error {
	if err := w.conn.PostMessage(msg); err != nil {
		return &SendFailure{Peer: w.conn.RemotePeer().Address.String(), Err: err}
	}
	return nil
}

// --------------------------------------------------------------------------------------------- //

// DoWork advances the protocol by one tick: checks liveness, dispatches at
// most one inbound message, then drives the outbound pipeline. Not
// re-entrant: the caller must ensure at most one DoWork invocation for this
// worker is in flight at a time.
func (w *ConnectionWorker) DoWork() error {
	if w.conn.IsClosed() {
		return &ErrConnectionClosed{Peer: w.conn.RemotePeer().Address.String()}
	}

	if err := w.inbound(); err != nil {
		return err
	}

	return w.outbound()
}

func (w *ConnectionWorker) inbound() error {
	msg, ok, err := w.conn.ReadMessageNow()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if msg.KeepAlive {
		return nil
	}

	switch msg.ID {
	case Bitfield:
		w.pm.PeerHasBitfield(w.conn, msg.Payload)
	case Choke:
		w.state.SetPeerChoking(true)
	case Unchoke:
		w.state.SetPeerChoking(false)
	case Interested:
		w.state.SetPeerInterested(true)
	case NotInterested:
		w.state.SetPeerInterested(false)
		w.state.SetChoking(true)
		return w.post(Message{ID: Choke})
	case Have:
		index, err := ParseHave(msg.Payload)
		if err != nil {
			return err
		}
		w.pm.PeerHasPiece(w.conn, index)
	case MsgRequest:
		req, err := ParseRequest(msg.Payload)
		if err != nil {
			return err
		}
		if !w.state.Choking() {
			w.requestConsumer(w.conn, req)
		}
	case Cancel:
		req, err := ParseRequest(msg.Payload)
		if err != nil {
			return err
		}
		w.cancelledPeer.Add(req.Key())
	case MsgPiece:
		index, offset, block, err := ParsePiece(msg.Payload)
		if err != nil {
			return err
		}
		key := RequestKey{Piece: index, Offset: offset, Length: len(block)}
		if !w.pendingRequest.Contains(key) {
			return &ErrUnexpectedBlock{Key: key}
		}
		w.pendingRequest.Remove(key)
		w.received += int64(len(block))
		w.pendingWrites[key] = w.blockConsumer(w.conn, Piece{Index: index, Offset: offset, Block: block})
	case Port:
		// DHT port announce: no DHT plug-in wired here, so it's a no-op.
	default:
		return &ErrUnexpectedMessage{ID: msg.ID}
	}
	return nil
}

// --------------------------------------------------------------------------------------------- //

func (w *ConnectionWorker) outbound() error {
	if err := w.serveOutboundBlocks(); err != nil {
		return err
	}
	if err := w.advancePieceLifecycle(); err != nil {
		return err
	}
	if w.state.PeerChoking() {
		return nil
	}
	return w.advanceRequestPipeline()
}

func (w *ConnectionWorker) serveOutboundBlocks() error {
	for {
		block, ok := w.blockSupplier(w.conn)
		if !ok {
			return nil
		}
		key := RequestKey{Piece: block.Index, Offset: block.Offset, Length: block.Length}
		if w.cancelledPeer.Contains(key) {
			w.cancelledPeer.Remove(key)
			continue
		}
		if err := w.post(NewPieceMessage(block.Index, block.Offset, block.Bytes)); err != nil {
			return err
		}
		w.sent += int64(len(block.Bytes))
	}
}

func (w *ConnectionWorker) advancePieceLifecycle() error {
	if len(w.requestQueue) > 0 {
		return nil
	}

	if w.hasPiece {
		if w.pm.CheckPieceCompleted(w.currentPiece) {
			logInfo("piece %d complete for %s", w.currentPiece, w.conn.RemotePeer().Address)
			w.hasPiece = false
			w.pendingWrites = make(map[RequestKey]BlockWrite)
		}
		return nil
	}

	mightSelect := w.pm.MightSelectPieceForPeer(w.conn)
	switch {
	case mightSelect && !w.state.Interested():
		w.state.SetInterested(true)
		return w.post(Message{ID: Interested})
	case !mightSelect && w.state.Interested():
		w.state.SetInterested(false)
		return w.post(Message{ID: NotInterested})
	}
	return nil
}

func (w *ConnectionWorker) advanceRequestPipeline() error {
	if !w.hasPiece {
		index, ok := w.pm.SelectPieceForPeer(w.conn)
		if !ok {
			return nil
		}
		w.currentPiece = index
		w.hasPiece = true
		w.requestQueue = append(w.requestQueue, w.pm.BuildRequestsForPiece(index)...)
		w.lastRequestsBuiltAt = time.Now()
	} else if len(w.requestQueue) == 0 && time.Since(w.lastRequestsBuiltAt) >= StallTimeout {
		w.rebuildRequests()
	}

	return w.issueRequests()
}

// rebuildRequests re-derives the candidate request set for the current
// piece and keeps only requests that are not already in flight and not
// covered by a still-live pending write. A pending write that failed
// terminally is dropped from pendingWrites and its key re-requested.
func (w *ConnectionWorker) rebuildRequests() {
	candidates := w.pm.BuildRequestsForPiece(w.currentPiece)
	var survivors []Request

	for _, req := range candidates {
		key := req.Key()

		if w.pendingRequest.Contains(key) {
			continue
		}

		if write, ok := w.pendingWrites[key]; ok {
			if write.IsComplete() && !write.IsSuccess() {
				delete(w.pendingWrites, key)
			} else {
				continue
			}
		}

		survivors = append(survivors, req)
	}

	w.requestQueue = append(w.requestQueue, survivors...)
	w.lastRequestsBuiltAt = time.Now()
}

// issueRequests pops the queue while posting REQUEST messages. The
// boundary check is intentionally <=, not <: this preserves a long-standing
// off-by-one quirk in the pipelining logic that lets one extra request slip
// in alongside MaxPendingRequests already in flight, rather than strictly
// capping at MaxPendingRequests.
func (w *ConnectionWorker) issueRequests() error {
	for len(w.requestQueue) > 0 && w.pendingRequest.Cardinality() <= MaxPendingRequests {
		req := w.requestQueue[0]
		w.requestQueue = w.requestQueue[1:]

		key := req.Key()
		if w.pendingRequest.Contains(key) {
			continue
		}

		if err := w.post(NewRequestMessage(req)); err != nil {
			return err
		}
		w.pendingRequest.Add(key)
	}
	return nil
}
