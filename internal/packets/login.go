package packets

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dcrodman/lodestone/internal/core/bytes"
)

// Upper bound on the encoded name accepted off the wire. Names are validated
// against the (much shorter) configured limit by the login server.
const maxLoginNameLength = 256

const maxReasonLength = 32767

type LoginStart struct {
	Name string
}

func (p *LoginStart) ID() byte                 { return LoginStartType }
func (p *LoginStart) Encode(w io.Writer) error { return bytes.WriteString(w, p.Name) }

func (p *LoginStart) Decode(r bytes.Reader) error {
	var err error
	if p.Name, err = bytes.ReadString(r, maxLoginNameLength); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	return nil
}

// LoginSuccess moves the client into the play state. UUID is the hyphenated form.
type LoginSuccess struct {
	UUID string
	Name string
}

func (p *LoginSuccess) ID() byte { return LoginSuccessType }

func (p *LoginSuccess) Encode(w io.Writer) error {
	if err := bytes.WriteString(w, p.UUID); err != nil {
		return err
	}
	return bytes.WriteString(w, p.Name)
}

func (p *LoginSuccess) Decode(r bytes.Reader) error {
	var err error
	if p.UUID, err = bytes.ReadString(r, 36); err != nil {
		return fmt.Errorf("uuid: %w", err)
	}
	if p.Name, err = bytes.ReadString(r, maxLoginNameLength); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	return nil
}

// LoginDisconnect ends the login sequence with a reason shown to the player.
type LoginDisconnect struct {
	Reason Chat
}

func (p *LoginDisconnect) ID() byte { return LoginDisconnectType }

func (p *LoginDisconnect) Encode(w io.Writer) error {
	doc, err := json.Marshal(&p.Reason)
	if err != nil {
		return err
	}
	return bytes.WriteString(w, string(doc))
}

func (p *LoginDisconnect) Decode(r bytes.Reader) error {
	doc, err := bytes.ReadString(r, maxReasonLength)
	if err != nil {
		return fmt.Errorf("reason: %w", err)
	}
	if err := json.Unmarshal([]byte(doc), &p.Reason); err != nil {
		return fmt.Errorf("reason json: %w", err)
	}
	return nil
}
