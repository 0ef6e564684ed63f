package swarm

import (
	"bytes"
	"testing"
)

func TestMessageID_String(t *testing.T) {
	cases := []struct {
		id   MessageID
		want string
	}{
		{Choke, "CHOKE"},
		{Unchoke, "UNCHOKE"},
		{Interested, "INTERESTED"},
		{NotInterested, "NOT_INTERESTED"},
		{Have, "HAVE"},
		{Bitfield, "BITFIELD"},
		{MsgRequest, "REQUEST"},
		{MsgPiece, "PIECE"},
		{Cancel, "CANCEL"},
		{Port, "PORT"},
		{MessageID(200), "MessageID(200)"},
	}

	for _, c := range cases {
		if got := c.id.String(); got != c.want {
			t.Errorf("MessageID(%d).String() = %q, want %q", c.id, got, c.want)
		}
	}
}

func TestHaveMessage_RoundTrip(t *testing.T) {
	msg := NewHaveMessage(42)
	index, err := ParseHave(msg.Payload)
	if err != nil {
		t.Fatalf("ParseHave: %v", err)
	}
	if index != 42 {
		t.Errorf("expected index 42, got %d", index)
	}
}

func TestRequestMessage_RoundTrip(t *testing.T) {
	req := Request{Piece: 7, Offset: 16384, Length: 16384}

	t.Run("request", func(t *testing.T) {
		msg := NewRequestMessage(req)
		got, err := ParseRequest(msg.Payload)
		if err != nil {
			t.Fatalf("ParseRequest: %v", err)
		}
		if got != req {
			t.Errorf("expected %+v, got %+v", req, got)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		msg := NewCancelMessage(req)
		got, err := ParseRequest(msg.Payload)
		if err != nil {
			t.Fatalf("ParseRequest: %v", err)
		}
		if got != req {
			t.Errorf("expected %+v, got %+v", req, got)
		}
	})
}

func TestPieceMessage_RoundTrip(t *testing.T) {
	block := []byte("some block bytes")
	msg := NewPieceMessage(3, 16384, block)

	index, offset, got, err := ParsePiece(msg.Payload)
	if err != nil {
		t.Fatalf("ParsePiece: %v", err)
	}
	if index != 3 || offset != 16384 {
		t.Errorf("expected (3, 16384), got (%d, %d)", index, offset)
	}
	if !bytes.Equal(got, block) {
		t.Errorf("expected block %q, got %q", block, got)
	}
}

func TestParseRequest_RejectsWrongLength(t *testing.T) {
	if _, err := ParseRequest([]byte{1, 2, 3}); err == nil {
		t.Errorf("expected error for malformed payload")
	}
}

func TestParseHave_RejectsWrongLength(t *testing.T) {
	if _, err := ParseHave([]byte{1, 2, 3}); err == nil {
		t.Errorf("expected error for malformed payload")
	}
}
