package packets

import (
	stdbytes "bytes"
	"errors"
	"io"
	"testing"

	"github.com/go-test/deep"
	"github.com/google/go-cmp/cmp"

	"github.com/dcrodman/lodestone/internal/core/bytes"
)

// countingReader records how many bytes have been pulled from the underlying data.
type countingReader struct {
	r    *stdbytes.Reader
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err == nil {
		c.read++
	}
	return b, err
}

func TestReadFrame(t *testing.T) {
	tests := map[string]struct {
		data    []byte
		max     int
		wantErr error
		want    *Frame
	}{
		"zero length": {
			data:    []byte{0x00},
			max:     DefaultMaxLength,
			wantErr: ErrMalformed,
		},
		"negative length": {
			data:    []byte{0xff, 0xff, 0xff, 0xff, 0x0f},
			max:     DefaultMaxLength,
			wantErr: ErrMalformed,
		},
		"length prefix too long": {
			data:    []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01},
			max:     DefaultMaxLength,
			wantErr: ErrMalformed,
		},
		"partial length prefix": {
			data:    []byte{0x80},
			max:     DefaultMaxLength,
			wantErr: ErrTruncated,
		},
		"body shorter than declared": {
			data:    []byte{0x05, 0x00, 0x01},
			max:     DefaultMaxLength,
			wantErr: ErrTruncated,
		},
		"oversized": {
			data:    []byte{0x0a, 0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09},
			max:     5,
			wantErr: ErrOversized,
		},
		"closed before any data": {
			data:    nil,
			max:     DefaultMaxLength,
			wantErr: io.EOF,
		},
		"ping": {
			data: []byte{0x09, 0x01, 0x00, 0x00, 0x00, 0x00, 0x07, 0x5b, 0xcd, 0x15},
			max:  DefaultMaxLength,
			want: &Frame{
				Header:  Header{Length: 9, ID: PingType},
				Payload: []byte{0x00, 0x00, 0x00, 0x00, 0x07, 0x5b, 0xcd, 0x15},
			},
		},
		"empty payload": {
			data: []byte{0x01, 0x00},
			max:  DefaultMaxLength,
			want: &Frame{Header: Header{Length: 1, ID: StatusRequestType}, Payload: []byte{}},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			frame, err := ReadFrame(stdbytes.NewReader(tt.data), tt.max)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ReadFrame() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadFrame() returned an unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, frame); diff != "" {
				t.Errorf("ReadFrame() returned an unexpected frame; diff:\n%s", diff)
			}
		})
	}
}

func TestReadFrame_OversizedStopsAtPrefix(t *testing.T) {
	data := append([]byte{0xe8, 0x07}, make([]byte, 1000)...)
	r := &countingReader{r: stdbytes.NewReader(data)}

	if _, err := ReadFrame(r, 100); !errors.Is(err, ErrOversized) {
		t.Fatalf("ReadFrame() error = %v, want %v", err, ErrOversized)
	}
	if r.read != 2 {
		t.Errorf("expected only the 2 byte length prefix to be read, read %d bytes", r.read)
	}
}

func TestExpectID(t *testing.T) {
	if err := ExpectID(Header{Length: 1, ID: PingType}, PingType); err != nil {
		t.Errorf("ExpectID() returned an unexpected error: %v", err)
	}
	if err := ExpectID(Header{Length: 1, ID: PingType}, StatusRequestType); !errors.Is(err, ErrUnexpectedPacket) {
		t.Errorf("ExpectID() error = %v, want %v", err, ErrUnexpectedPacket)
	}
}

func roundTrip(t *testing.T, p Packet, dst Decoder) {
	t.Helper()

	data, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() returned an unexpected error: %v", err)
	}
	frame, err := ReadFrame(stdbytes.NewReader(data), DefaultMaxLength)
	if err != nil {
		t.Fatalf("ReadFrame() returned an unexpected error: %v", err)
	}
	if err := ExpectID(frame.Header, p.ID()); err != nil {
		t.Fatal(err)
	}
	if want := len(data) - bytes.VarIntSize(frame.Length); int(frame.Length) != want {
		t.Errorf("declared length = %d, want %d", frame.Length, want)
	}
	if err := Unmarshal(frame, dst); err != nil {
		t.Fatalf("Unmarshal() returned an unexpected error: %v", err)
	}
}

func TestHandshake_RoundTrip(t *testing.T) {
	versions := []int32{0, 1, 47, 127, 128, 16383, 16384, 1<<21 - 1, 1 << 21, 1<<31 - 1}
	for _, state := range []State{StateStatus, StateLogin} {
		for _, version := range versions {
			in := &Handshake{
				ProtocolVersion: version,
				ServerAddress:   "play.example.com",
				ServerPort:      25565,
				NextState:       state,
			}
			out := &Handshake{}
			roundTrip(t, in, out)

			if diff := deep.Equal(in, out); diff != nil {
				t.Errorf("handshake (%d, %s) did not survive a round trip: %v", version, state, diff)
			}
		}
	}
}

func TestHandshake_Bytes(t *testing.T) {
	data, err := Marshal(&Handshake{
		ProtocolVersion: ProtocolVersion,
		ServerAddress:   "localhost",
		ServerPort:      25565,
		NextState:       StateStatus,
	})
	if err != nil {
		t.Fatalf("Marshal() returned an unexpected error: %v", err)
	}

	want := []byte{0x0f, 0x00, 0x2f, 0x09, 'l', 'o', 'c', 'a', 'l', 'h', 'o', 's', 't', 0x63, 0xdd, 0x01}
	if diff := cmp.Diff(want, data); diff != "" {
		t.Errorf("Marshal() produced unexpected bytes; diff:\n%s", diff)
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	tests := map[string]struct {
		frame *Frame
		dst   Decoder
	}{
		"status request with a body": {
			frame: &Frame{Header: Header{Length: 2, ID: StatusRequestType}, Payload: []byte{0x01}},
			dst:   &StatusRequest{},
		},
		"short ping": {
			frame: &Frame{Header: Header{Length: 4, ID: PingType}, Payload: []byte{0x01, 0x02, 0x03}},
			dst:   &Ping{},
		},
		"handshake with a truncated port": {
			frame: &Frame{Header: Header{Length: 4, ID: HandshakeType}, Payload: []byte{0x2f, 0x00, 0x63}},
			dst:   &Handshake{},
		},
		"login start without a name": {
			frame: &Frame{Header: Header{Length: 1, ID: LoginStartType}, Payload: []byte{}},
			dst:   &LoginStart{},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if err := Unmarshal(tt.frame, tt.dst); !errors.Is(err, ErrMalformed) {
				t.Errorf("Unmarshal() error = %v, want %v", err, ErrMalformed)
			}
		})
	}
}

func TestStatusResponse_RoundTrip(t *testing.T) {
	in := &StatusResponse{}
	in.Status.Version.Name = "Lodestone 47"
	in.Status.Version.Protocol = 47
	in.Status.Players.Max = 20
	in.Status.Players.Online = 3
	in.Status.Description = Chat{Text: "A Minecraft Server"}

	out := &StatusResponse{}
	roundTrip(t, in, out)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("status response did not survive a round trip; diff:\n%s", diff)
	}
}

func TestLoginPackets_RoundTrip(t *testing.T) {
	success := &LoginSuccess{UUID: "b50ad385-829d-3141-a216-7e7d7539ba7f", Name: "Notch"}
	gotSuccess := &LoginSuccess{}
	roundTrip(t, success, gotSuccess)
	if diff := cmp.Diff(success, gotSuccess); diff != "" {
		t.Errorf("login success did not survive a round trip; diff:\n%s", diff)
	}

	disconnect := &LoginDisconnect{Reason: Chat{Text: "Invalid Name"}}
	gotDisconnect := &LoginDisconnect{}
	roundTrip(t, disconnect, gotDisconnect)
	if diff := cmp.Diff(disconnect, gotDisconnect); diff != "" {
		t.Errorf("login disconnect did not survive a round trip; diff:\n%s", diff)
	}

	pong := &Pong{Payload: -42}
	gotPong := &Pong{}
	roundTrip(t, pong, gotPong)
	if gotPong.Payload != -42 {
		t.Errorf("pong payload = %d, want -42", gotPong.Payload)
	}
}
