// Package login turns a connection in the login state into a registered
// player session.
package login

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dcrodman/lodestone/internal/core"
	"github.com/dcrodman/lodestone/internal/core/client"
	"github.com/dcrodman/lodestone/internal/core/metrics"
	"github.com/dcrodman/lodestone/internal/packets"
	"github.com/dcrodman/lodestone/internal/session"
)

var (
	// ErrInvalidName is returned when a LoginStart carries a name the server won't accept.
	ErrInvalidName = errors.New("invalid player name")
	// ErrThrottled is returned when an address logs in again too soon.
	ErrThrottled = errors.New("connection throttled, please wait before reconnecting")
)

// Server is the login handler. It validates the requested name, registers a
// session for it, confirms the login to the client, and then hands the
// connection to the session Handler for the rest of its life.
type Server struct {
	Config   *core.Config
	Logger   logrus.FieldLogger
	Registry *session.Registry
	Handler  session.Handler
	Metrics  *metrics.Metrics

	namePattern *regexp.Regexp
	throttle    *Throttle
}

func NewServer(cfg *core.Config, logger logrus.FieldLogger, registry *session.Registry, handler session.Handler, m *metrics.Metrics) (*Server, error) {
	pattern, err := regexp.Compile(cfg.Login.NamePattern)
	if err != nil {
		return nil, fmt.Errorf("error compiling name pattern %q: %w", cfg.Login.NamePattern, err)
	}

	return &Server{
		Config:      cfg,
		Logger:      logger,
		Registry:    registry,
		Handler:     handler,
		Metrics:     m,
		namePattern: pattern,
		throttle:    NewThrottle(cfg.Login.Throttle),
	}, nil
}

// Handle reads the client's LoginStart and, if the login is accepted, runs the
// player's session on the calling goroutine until it ends. The connection must
// already be in the logging in state.
func (s *Server) Handle(ctx context.Context, c *client.Client) error {
	frame, err := c.ReadFrame()
	if err != nil {
		s.Metrics.Login("failed")
		return err
	}
	if err := packets.ExpectID(frame.Header, packets.LoginStartType); err != nil {
		s.Metrics.Login("failed")
		return err
	}

	if !s.throttle.Allow(c.IPAddr()) {
		return s.reject(c, "throttled", ErrThrottled)
	}

	var start packets.LoginStart
	if err := packets.Unmarshal(frame, &start); err != nil {
		return s.reject(c, "invalid_name", fmt.Errorf("%w: %v", ErrInvalidName, err))
	}
	if err := s.validateName(start.Name); err != nil {
		return s.reject(c, "invalid_name", err)
	}

	sess := session.NewSession(start.Name, c)
	worker := session.NewWorker(ctx, sess)
	if err := s.Registry.Insert(ctx, sess, worker); err != nil {
		if errors.Is(err, session.ErrNameInUse) {
			return s.reject(c, "name_in_use", err)
		}
		s.Metrics.Login("failed")
		return err
	}

	return worker.Run(func(ctx context.Context) error {
		defer s.Registry.Release(sess)
		return s.runSession(ctx, sess)
	})
}

func (s *Server) runSession(ctx context.Context, sess *session.Session) error {
	c := sess.Client
	if err := c.Send(&packets.LoginSuccess{UUID: sess.UUID.String(), Name: sess.Name}); err != nil {
		s.Metrics.Login("failed")
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	s.Metrics.Login("success")
	s.Logger.Infof("%s logged in from %s (uuid %s)", sess.Name, c.RemoteAddr(), sess.UUID)

	if err := c.Transition(client.StatePlayerSession); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	// The client isn't ready for play traffic immediately after login success.
	if err := core.Sleep(ctx, s.Config.Login.SessionDelay); err != nil {
		return nil
	}

	err := s.Handler.Play(ctx, sess)
	s.Logger.Infof("%s disconnected from %s", sess.Name, c.RemoteAddr())
	return err
}

func (s *Server) validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	case len(name) > s.Config.Login.MaxNameLength:
		return fmt.Errorf("%w: %q is longer than %d characters", ErrInvalidName, name, s.Config.Login.MaxNameLength)
	case !s.namePattern.MatchString(name):
		return fmt.Errorf("%w: %q contains disallowed characters", ErrInvalidName, name)
	}
	return nil
}

// reject tells the client why its login failed and returns the cause.
func (s *Server) reject(c *client.Client, result string, cause error) error {
	s.Metrics.Login(result)

	if err := c.Send(&packets.LoginDisconnect{Reason: packets.Chat{Text: disconnectReason(cause)}}); err != nil {
		s.Logger.Warnf("failed to send login disconnect to %s: %v", c.RemoteAddr(), err)
	}
	return fmt.Errorf("login from %s rejected: %w", c.RemoteAddr(), cause)
}

// disconnectReason is the message shown to the player for a rejected login.
func disconnectReason(cause error) string {
	reason := ErrInvalidName
	switch {
	case errors.Is(cause, session.ErrNameInUse):
		reason = session.ErrNameInUse
	case errors.Is(cause, ErrThrottled):
		reason = ErrThrottled
	}
	return cases.Title(language.English).String(reason.Error())
}
