package swarm

// This file names the collaborators the core consumes but does not
// implement: metainfo/torrent lifecycle, tracker wire clients beyond the
// HTTP/UDP announce codec kept in tracker.go, on-disk storage, socket
// framing, and piece-selection strategy. Kept deliberately small.

// Descriptor reports whether a torrent the registry knows about is
// currently active; inactive torrents are skipped by the discovery sweep.
type Descriptor struct {
	IsActive bool
}

// Torrent is the subset of torrent metadata the registry needs to drive
// discovery: its own announce key (if any) and whether it is private
// (BEP-27).
type Torrent struct {
	AnnounceKey AnnounceKey
	HasAnnounce bool
	IsPrivate   bool
}

// TorrentRegistry resolves a torrent id to its descriptor and metadata. The
// core never constructs or owns torrents; it only looks them up.
type TorrentRegistry interface {
	GetDescriptor(id TorrentID) (Descriptor, bool)
	GetTorrent(id TorrentID) (Torrent, bool)
}

// IdentityService supplies this client's own 20-byte peer-id.
type IdentityService interface {
	LocalPeerID() PeerID
}

// LifecycleBinder registers hooks invoked at process boot and shutdown. The
// registry uses it to tie its discovery loop's start/stop to the host
// process rather than owning process lifecycle itself.
type LifecycleBinder interface {
	OnStartup(func())
	OnShutdown(func())
}

// PieceManager is the piece-selection strategy collaborator (rarest-first
// etc., explicitly out of scope here). ConnectionWorker calls it to decide
// what to request next and to record what peers claim to have.
type PieceManager interface {
	HaveAnyData() bool
	GetBitfield() []byte
	PeerHasBitfield(conn Connection, bitfield []byte)
	PeerHasPiece(conn Connection, index int)
	MightSelectPieceForPeer(conn Connection) bool
	SelectPieceForPeer(conn Connection) (index int, ok bool)
	BuildRequestsForPiece(index int) []Request
	CheckPieceCompleted(index int) bool
}

// Piece is a received block handed to the BlockConsumer collaborator.
type Piece struct {
	Index  int
	Offset int
	Block  []byte
}

// BlockRead is a block we owe a peer, produced by a BlockSupplier once the
// disk read completes.
type BlockRead struct {
	Index  int
	Offset int
	Length int
	Bytes  []byte
}

// BlockWrite is a handle to an in-progress (or finished) disk write for a
// received block.
type BlockWrite interface {
	IsComplete() bool
	IsSuccess() bool
}

// RequestConsumer is handed an inbound REQUEST the worker is not choking.
type RequestConsumer func(conn Connection, req Request)

// BlockConsumer is handed an inbound PIECE payload; it returns a handle to
// the (possibly still in-progress) disk write.
type BlockConsumer func(conn Connection, piece Piece) BlockWrite

// BlockSupplier is polled by the worker's outbound pipeline for blocks ready
// to serve to the peer. A false second return means nothing is ready right
// now.
type BlockSupplier func(conn Connection) (BlockRead, bool)

// Connection is one live peer TCP connection, already handshaken. The
// socket dial and handshake bytes live outside the core; it only ever
// receives an already-connected Connection.
type Connection interface {
	ReadMessageNow() (Message, bool, error)
	PostMessage(Message) error
	IsClosed() bool
	RemotePeer() Peer
}
