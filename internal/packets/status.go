package packets

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dcrodman/lodestone/internal/core/bytes"
)

// Longest JSON document accepted when decoding a status response.
const maxStatusLength = 32767

// Chat is the minimal JSON text component understood by the client.
type Chat struct {
	Text string `json:"text"`
}

// ServerStatus is the JSON document carried by the status response.
type ServerStatus struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int32  `json:"protocol"`
	} `json:"version"`
	Players struct {
		Max    int `json:"max"`
		Online int `json:"online"`
	} `json:"players"`
	Description Chat `json:"description"`
}

// StatusRequest has no body.
type StatusRequest struct{}

func (p *StatusRequest) ID() byte                 { return StatusRequestType }
func (p *StatusRequest) Encode(io.Writer) error   { return nil }
func (p *StatusRequest) Decode(bytes.Reader) error { return nil }

type StatusResponse struct {
	Status ServerStatus
}

func (p *StatusResponse) ID() byte { return StatusResponseType }

func (p *StatusResponse) Encode(w io.Writer) error {
	doc, err := json.Marshal(&p.Status)
	if err != nil {
		return err
	}
	return bytes.WriteString(w, string(doc))
}

func (p *StatusResponse) Decode(r bytes.Reader) error {
	doc, err := bytes.ReadString(r, maxStatusLength)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(doc), &p.Status); err != nil {
		return fmt.Errorf("status json: %w", err)
	}
	return nil
}

// Ping carries an opaque payload that the server echoes back in a Pong.
type Ping struct {
	Payload int64
}

func (p *Ping) ID() byte                    { return PingType }
func (p *Ping) Encode(w io.Writer) error    { return bytes.WriteInt64(w, p.Payload) }
func (p *Ping) Decode(r bytes.Reader) error { return decodeInt64(r, &p.Payload) }

type Pong struct {
	Payload int64
}

func (p *Pong) ID() byte                    { return PongType }
func (p *Pong) Encode(w io.Writer) error    { return bytes.WriteInt64(w, p.Payload) }
func (p *Pong) Decode(r bytes.Reader) error { return decodeInt64(r, &p.Payload) }

func decodeInt64(r bytes.Reader, dst *int64) error {
	v, err := bytes.ReadInt64(r)
	if err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	*dst = v
	return nil
}
