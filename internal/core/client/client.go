package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/lodestone/internal/core/debug"
	"github.com/dcrodman/lodestone/internal/packets"
)

// ErrConnectionLost is returned when the peer goes away (or the stream errors)
// on a packet boundary.
var ErrConnectionLost = errors.New("connection lost")

// Client represents a peer connected through a Minecraft game client or a
// server list pinger.
type Client struct {
	connection net.Conn
	reader     *bufio.Reader
	ipAddr     string
	port       string

	// Largest packet (after the length prefix) the client may send.
	MaxPacketLength int
	// Deadline applied to every packet read. Zero waits forever.
	ReadTimeout time.Duration

	// When Logger is set and PacketLogging is enabled, every packet sent or
	// received is dumped to it at debug level.
	Logger        logrus.FieldLogger
	PacketLogging bool

	mu        sync.Mutex
	state     State
	closeOnce sync.Once
	closeErr  error
}

func NewClient(connection net.Conn) *Client {
	ipAddr, port, err := net.SplitHostPort(connection.RemoteAddr().String())
	if err != nil {
		// Not a host:port address (e.g. net.Pipe).
		ipAddr = connection.RemoteAddr().String()
	}

	return &Client{
		connection:      connection,
		reader:          bufio.NewReader(connection),
		ipAddr:          ipAddr,
		port:            port,
		MaxPacketLength: packets.DefaultMaxLength,
		state:           StateHandshaking,
	}
}

func (c *Client) IPAddr() string { return c.ipAddr }
func (c *Client) Port() string   { return c.port }

// RemoteAddr is the peer's address in host:port form, used for logging.
func (c *Client) RemoteAddr() string {
	if c.port == "" {
		return c.ipAddr
	}
	return net.JoinHostPort(c.ipAddr, c.port)
}

// ReadFrame is a blocking call that only returns once the client has sent the
// next complete packet or the connection has failed. Framing failures are
// returned as the packets errors; anything else is ErrConnectionLost.
func (c *Client) ReadFrame() (*packets.Frame, error) {
	if c.ReadTimeout > 0 {
		if err := c.connection.SetReadDeadline(time.Now().Add(c.ReadTimeout)); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConnectionLost, c.RemoteAddr(), err)
		}
	}

	frame, err := packets.ReadFrame(c.reader, c.MaxPacketLength)
	if err != nil {
		if errors.Is(err, packets.ErrTruncated) || errors.Is(err, packets.ErrOversized) || errors.Is(err, packets.ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectionLost, c.RemoteAddr(), err)
	}

	if c.packetLoggingEnabled() {
		debug.PrintFrame(c.Logger, c.RemoteAddr(), frame)
	}
	return frame, nil
}

// ReadPacket reads the next packet, checks that its ID is the one expected
// in the current state, and decodes it into p.
func (c *Client) ReadPacket(expected byte, p packets.Decoder) error {
	frame, err := c.ReadFrame()
	if err != nil {
		return err
	}
	if err := packets.ExpectID(frame.Header, expected); err != nil {
		return err
	}
	if err := packets.Unmarshal(frame, p); err != nil {
		return err
	}

	if c.packetLoggingEnabled() {
		debug.PrintPacket(c.Logger, c.RemoteAddr(), true, p)
	}
	return nil
}

// Send frames the packet and writes it to the connection.
func (c *Client) Send(p packets.Packet) error {
	data, err := packets.Marshal(p)
	if err != nil {
		return err
	}

	if c.packetLoggingEnabled() {
		debug.PrintPacket(c.Logger, c.RemoteAddr(), false, p)
	}
	return c.transmit(data)
}

// transmit writes the contents of data to the connection until all of it has been sent.
func (c *Client) transmit(data []byte) error {
	bytesSent := 0

	for bytesSent < len(data) {
		n, err := c.connection.Write(data[bytesSent:])
		if err != nil {
			return fmt.Errorf("%w: failed to send to client %s: %v", ErrConnectionLost, c.RemoteAddr(), err)
		}
		bytesSent += n
	}

	return nil
}

// Close the connection. Safe to call more than once and from any goroutine;
// a blocked ReadFrame returns with ErrConnectionLost.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()

		c.closeErr = c.connection.Close()
	})
	return c.closeErr
}

func (c *Client) packetLoggingEnabled() bool {
	return c.PacketLogging && c.Logger != nil
}
