// Package handshake reads the first packet of every connection and routes the
// connection to the status or login handler it asked for.
package handshake

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/lodestone/internal/core"
	"github.com/dcrodman/lodestone/internal/core/client"
	"github.com/dcrodman/lodestone/internal/core/metrics"
	"github.com/dcrodman/lodestone/internal/packets"
)

// StatusHandler answers a server list ping.
type StatusHandler interface {
	Handle(ctx context.Context, c *client.Client, peerVersion int32) error
}

// LoginHandler runs a connection from its LoginStart onwards.
type LoginHandler interface {
	Handle(ctx context.Context, c *client.Client) error
}

// Router is the Backend behind the game port. Nothing is ever sent to a peer
// whose handshake can't be understood; its connection is just closed.
type Router struct {
	Config  *core.Config
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
	Status  StatusHandler
	Login   LoginHandler
}

func (r *Router) Identifier() string {
	return "HANDSHAKE"
}

func (r *Router) Init(_ context.Context) error {
	if r.Status == nil || r.Login == nil {
		return errors.New("handshake router requires both a status and a login handler")
	}
	return nil
}

func (r *Router) Handle(ctx context.Context, c *client.Client) error {
	var hs packets.Handshake
	if err := c.ReadPacket(packets.HandshakeType, &hs); err != nil {
		if errors.Is(err, client.ErrConnectionLost) {
			return err
		}
		r.badPacket(c, err)
		return nil
	}
	if !hs.NextState.Valid() {
		r.badPacket(c, fmt.Errorf("%w: %d", packets.ErrBadNextState, int32(hs.NextState)))
		return nil
	}

	r.Metrics.Handshake(hs.NextState.String())
	r.Logger.WithFields(logrus.Fields{
		"peer":       c.RemoteAddr(),
		"protocol":   hs.ProtocolVersion,
		"address":    hs.ServerAddress,
		"next_state": hs.NextState,
	}).Debug("received handshake")

	if hs.NextState == packets.StateStatus {
		return r.Status.Handle(ctx, c, hs.ProtocolVersion)
	}

	// Give the client a moment after the handshake before reading its LoginStart.
	if err := core.Sleep(ctx, r.Config.Login.LoginDelay); err != nil {
		return nil
	}
	if err := c.Transition(client.StateLoggingIn); err != nil {
		return err
	}
	return r.Login.Handle(ctx, c)
}

func (r *Router) badPacket(c *client.Client, err error) {
	reason := client.ErrorReason(err)
	r.Metrics.ProtocolError(reason)
	r.Logger.WithFields(logrus.Fields{
		"peer":   c.RemoteAddr(),
		"reason": reason,
	}).Warnf("bad packet: %v", err)
}
