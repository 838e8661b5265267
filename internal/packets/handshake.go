package packets

import (
	"fmt"
	"io"

	"github.com/dcrodman/lodestone/internal/core/bytes"
)

// Longest server address a client is allowed to put in the handshake.
const maxServerAddressLength = 255

// State is the next state requested by a client in its handshake.
type State int32

const (
	StateStatus State = 1
	StateLogin  State = 2
)

func (s State) String() string {
	switch s {
	case StateStatus:
		return "status"
	case StateLogin:
		return "login"
	default:
		return fmt.Sprintf("invalid(%d)", int32(s))
	}
}

// Valid reports whether s is one of the states reachable from a handshake.
func (s State) Valid() bool {
	return s == StateStatus || s == StateLogin
}

// Handshake is the first packet sent on every connection.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       State
}

func (p *Handshake) ID() byte { return HandshakeType }

func (p *Handshake) Encode(w io.Writer) error {
	if err := bytes.WriteVarInt(w, p.ProtocolVersion); err != nil {
		return err
	}
	if err := bytes.WriteString(w, p.ServerAddress); err != nil {
		return err
	}
	if err := bytes.WriteUint16(w, p.ServerPort); err != nil {
		return err
	}
	return bytes.WriteVarInt(w, int32(p.NextState))
}

func (p *Handshake) Decode(r bytes.Reader) error {
	var err error
	if p.ProtocolVersion, _, err = bytes.ReadVarInt(r); err != nil {
		return fmt.Errorf("protocol version: %w", err)
	}
	if p.ServerAddress, err = bytes.ReadString(r, maxServerAddressLength); err != nil {
		return fmt.Errorf("server address: %w", err)
	}
	if p.ServerPort, err = bytes.ReadUint16(r); err != nil {
		return fmt.Errorf("server port: %w", err)
	}
	nextState, _, err := bytes.ReadVarInt(r)
	if err != nil {
		return fmt.Errorf("next state: %w", err)
	}
	p.NextState = State(nextState)
	return nil
}
