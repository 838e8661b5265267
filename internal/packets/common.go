// Framing and the packet definitions for the handshake, status, and login states.
package packets

import (
	stdbytes "bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dcrodman/lodestone/internal/core/bytes"
)

// ProtocolVersion is the protocol number spoken by this server (1.8.x clients).
const ProtocolVersion = 47

// DefaultMaxLength is the largest length that fits in a three byte VarInt prefix.
const DefaultMaxLength = 2097151

// Packet IDs, grouped by the connection state in which they're valid.
const (
	HandshakeType = 0x00

	StatusRequestType  = 0x00
	StatusResponseType = 0x00
	PingType           = 0x01
	PongType           = 0x01

	LoginStartType      = 0x00
	LoginDisconnectType = 0x00
	LoginSuccessType    = 0x02
)

var (
	// ErrTruncated means the stream ended or timed out part way through a packet.
	ErrTruncated = errors.New("truncated packet")
	// ErrOversized means the declared packet length exceeds the configured maximum.
	ErrOversized = errors.New("oversized packet")
	// ErrMalformed means the header or body could not be parsed.
	ErrMalformed = errors.New("malformed packet")

	// ErrUnexpectedPacket means a packet ID was not the one expected for the current state.
	ErrUnexpectedPacket = errors.New("unexpected packet")
	// ErrBadNextState means the handshake requested a state other than status or login.
	ErrBadNextState = errors.New("bad next state")
)

// Header is the decoded length prefix and packet ID of a frame.
type Header struct {
	Length int32
	ID     byte
}

// Frame is a single packet read off of a stream. Payload excludes the ID.
type Frame struct {
	Header
	Payload []byte
}

// Packet is implemented by everything the server knows how to encode.
type Packet interface {
	ID() byte
	Encode(w io.Writer) error
}

// Decoder is implemented by everything the server knows how to decode.
type Decoder interface {
	Decode(r bytes.Reader) error
}

// ReadFrame reads the length prefix from r followed by exactly that many bytes
// of packet body. A clean end of stream before the first byte of the prefix is
// returned as-is (typically io.EOF) so that callers can tell a closed connection
// apart from a broken packet. Lengths over maxLength are rejected before any
// of the body is consumed.
func ReadFrame(r bytes.Reader, maxLength int) (*Frame, error) {
	length, n, err := bytes.ReadVarInt(r)
	switch {
	case errors.Is(err, bytes.ErrVarIntTooLong):
		return nil, fmt.Errorf("%w: length prefix: %v", ErrMalformed, err)
	case err != nil && n == 0:
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("%w: length prefix: %v", ErrTruncated, err)
	}

	if length <= 0 {
		return nil, fmt.Errorf("%w: declared length %d", ErrMalformed, length)
	}
	if int(length) > maxLength {
		return nil, fmt.Errorf("%w: declared length %d exceeds %d", ErrOversized, length, maxLength)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: read %d byte body: %v", ErrTruncated, length, err)
	}

	id, idLen, err := bytes.ReadVarInt(stdbytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: packet id: %v", ErrMalformed, err)
	}
	if id < 0 || id > 0xFF {
		return nil, fmt.Errorf("%w: packet id %d out of range", ErrMalformed, id)
	}

	return &Frame{
		Header:  Header{Length: length, ID: byte(id)},
		Payload: body[idLen:],
	}, nil
}

// ExpectID verifies that the header carries the packet ID the caller expects
// for the current protocol state.
func ExpectID(h Header, expected byte) error {
	if h.ID != expected {
		return fmt.Errorf("%w: got 0x%02x, expected 0x%02x", ErrUnexpectedPacket, h.ID, expected)
	}
	return nil
}

// Marshal encodes p into a complete length-prefixed frame.
func Marshal(p Packet) ([]byte, error) {
	body := new(stdbytes.Buffer)
	body.Write(bytes.AppendVarInt(nil, int32(p.ID())))
	if err := p.Encode(body); err != nil {
		return nil, fmt.Errorf("encoding packet 0x%02x: %w", p.ID(), err)
	}

	framed := bytes.AppendVarInt(make([]byte, 0, body.Len()+bytes.MaxVarIntLen), int32(body.Len()))
	return append(framed, body.Bytes()...), nil
}

// Unmarshal decodes the payload of f into p. The payload must be consumed in
// its entirety; trailing bytes make the packet malformed.
func Unmarshal(f *Frame, p Decoder) error {
	r := stdbytes.NewReader(f.Payload)
	if err := p.Decode(r); err != nil {
		return fmt.Errorf("%w: packet 0x%02x: %v", ErrMalformed, f.ID, err)
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: packet 0x%02x has %d trailing bytes", ErrMalformed, f.ID, r.Len())
	}
	return nil
}
