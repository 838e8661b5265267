package session

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/lodestone/internal/core/client"
)

// IdleHandler stands in for the gameplay loop: it reads and discards whatever
// the client sends until the connection goes away or the worker is stopped.
type IdleHandler struct {
	Logger logrus.FieldLogger
}

func (h *IdleHandler) Play(ctx context.Context, s *Session) error {
	for {
		frame, err := s.Client.ReadFrame()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, client.ErrConnectionLost) {
				return nil
			}
			return err
		}

		h.Logger.Debugf("ignoring packet 0x%02x (%d bytes) from %s", frame.ID, frame.Length, s.Name)
	}
}
