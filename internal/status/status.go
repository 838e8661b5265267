// Package status answers server list pings: a status request followed by a
// ping that is echoed back as a pong.
package status

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/lodestone/internal/core"
	"github.com/dcrodman/lodestone/internal/core/client"
	"github.com/dcrodman/lodestone/internal/core/metrics"
	"github.com/dcrodman/lodestone/internal/packets"
)

// PlayerCounter reports how many players are currently online.
type PlayerCounter interface {
	Count() int
}

// Server handles connections whose handshake asked for the status state.
type Server struct {
	Config  *core.Config
	Logger  logrus.FieldLogger
	Players PlayerCounter
	Metrics *metrics.Metrics
}

// Handle performs one status exchange on c. The version the peer advertised
// in its handshake is echoed back so the client always shows the server as
// compatible. Any error ends the exchange; the caller closes the connection.
func (s *Server) Handle(_ context.Context, c *client.Client, peerVersion int32) error {
	err := s.exchange(c, peerVersion)
	if err != nil {
		s.Metrics.StatusExchange(client.ErrorReason(err))
		return fmt.Errorf("status exchange with %s: %w", c.RemoteAddr(), err)
	}

	s.Metrics.StatusExchange("ok")
	s.Logger.Debugf("answered status ping from %s", c.RemoteAddr())
	return nil
}

func (s *Server) exchange(c *client.Client, peerVersion int32) error {
	if err := c.Transition(client.StateStatus); err != nil {
		return err
	}

	var req packets.StatusRequest
	if err := c.ReadPacket(packets.StatusRequestType, &req); err != nil {
		return err
	}
	if err := c.Send(&packets.StatusResponse{Status: s.serverStatus(peerVersion)}); err != nil {
		return err
	}

	var ping packets.Ping
	if err := c.ReadPacket(packets.PingType, &ping); err != nil {
		return err
	}
	return c.Send(&packets.Pong{Payload: ping.Payload})
}

func (s *Server) serverStatus(peerVersion int32) packets.ServerStatus {
	var status packets.ServerStatus
	status.Version.Name = fmt.Sprintf("%s %d", s.Config.Status.VersionName, packets.ProtocolVersion)
	status.Version.Protocol = peerVersion
	status.Players.Max = s.Config.Status.MaxPlayers
	if s.Players != nil {
		status.Players.Online = s.Players.Count()
	}
	status.Description = packets.Chat{Text: s.Config.Status.MOTD}
	return status
}
