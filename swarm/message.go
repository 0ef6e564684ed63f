package swarm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MessageID enumerates BitTorrent peer-wire message types, including Port
// (BEP-5 DHT port announce) alongside the core message set.
type MessageID uint8

const (
	Choke MessageID = iota
	Unchoke
	Interested
	NotInterested
	Have
	Bitfield
	MsgRequest
	MsgPiece
	Cancel
	Port
)

func (id MessageID) String() string {
	switch id {
	case Choke:
		return "CHOKE"
	case Unchoke:
		return "UNCHOKE"
	case Interested:
		return "INTERESTED"
	case NotInterested:
		return "NOT_INTERESTED"
	case Have:
		return "HAVE"
	case Bitfield:
		return "BITFIELD"
	case MsgRequest:
		return "REQUEST"
	case MsgPiece:
		return "PIECE"
	case Cancel:
		return "CANCEL"
	case Port:
		return "PORT"
	default:
		return fmt.Sprintf("MessageID(%d)", uint8(id))
	}
}

// --------------------------------------------------------------------------------------------- //

// Message is a framed peer-wire message: a tagged variant over MessageID,
// dispatched in ConnectionWorker's inbound handler by a switch over ID.
//
// KeepAlive is true for the zero-length keep-alive message, which carries
// no ID on the wire; callers must check it before looking at ID.
type Message struct {
	KeepAlive bool
	ID        MessageID
	Payload   []byte
}

// NewHaveMessage builds a HAVE message announcing index.
func NewHaveMessage(index int) Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))
	return Message{ID: Have, Payload: payload}
}

// NewBitfieldMessage builds a BITFIELD message.
func NewBitfieldMessage(bitfield []byte) Message {
	return Message{ID: Bitfield, Payload: bitfield}
}

// NewRequestMessage builds a REQUEST message for r.
func NewRequestMessage(r Request) Message {
	return Message{ID: MsgRequest, Payload: requestPayload(r)}
}

// NewCancelMessage builds a CANCEL message for r.
func NewCancelMessage(r Request) Message {
	return Message{ID: Cancel, Payload: requestPayload(r)}
}

func requestPayload(r Request) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(r.Piece))
	binary.BigEndian.PutUint32(payload[4:8], uint32(r.Offset))
	binary.BigEndian.PutUint32(payload[8:12], uint32(r.Length))
	return payload
}

// NewPieceMessage builds a PIECE message carrying block for (index, offset).
func NewPieceMessage(index, offset int, block []byte) Message {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(offset))
	copy(payload[8:], block)
	return Message{ID: MsgPiece, Payload: payload}
}

// ParseHave extracts the piece index from a HAVE message's payload.
func ParseHave(payload []byte) (int, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("swarm: malformed HAVE payload length %d", len(payload))
	}
	return int(binary.BigEndian.Uint32(payload)), nil
}

// ParseRequest extracts a Request from a REQUEST or CANCEL message's
// payload.
func ParseRequest(payload []byte) (Request, error) {
	if len(payload) != 12 {
		return Request{}, fmt.Errorf("swarm: malformed REQUEST/CANCEL payload length %d", len(payload))
	}
	return Request{
		Piece:  int(binary.BigEndian.Uint32(payload[0:4])),
		Offset: int(binary.BigEndian.Uint32(payload[4:8])),
		Length: int(binary.BigEndian.Uint32(payload[8:12])),
	}, nil
}

// ParsePiece extracts the piece index, block offset, and block bytes from a
// PIECE message's payload.
func ParsePiece(payload []byte) (index, offset int, block []byte, err error) {
	if len(payload) < 8 {
		return 0, 0, nil, fmt.Errorf("swarm: malformed PIECE payload length %d", len(payload))
	}
	index = int(binary.BigEndian.Uint32(payload[0:4]))
	offset = int(binary.BigEndian.Uint32(payload[4:8]))
	block = bytes.Clone(payload[8:])
	return index, offset, block, nil
}
