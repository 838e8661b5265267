package client

import (
	"errors"

	"github.com/dcrodman/lodestone/internal/packets"
)

// ErrorReason maps a connection error onto a short label for logs and
// metrics. Errors that aren't protocol or transport failures are "other".
func ErrorReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, packets.ErrTruncated):
		return "truncated"
	case errors.Is(err, packets.ErrOversized):
		return "oversized"
	case errors.Is(err, packets.ErrMalformed):
		return "malformed"
	case errors.Is(err, packets.ErrUnexpectedPacket):
		return "unexpected_packet"
	case errors.Is(err, packets.ErrBadNextState):
		return "bad_next_state"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrConnectionLost):
		return "connection_lost"
	default:
		return "other"
	}
}

// IsProtocolError reports whether err was caused by the peer sending
// something the server couldn't accept, as opposed to the connection failing.
func IsProtocolError(err error) bool {
	switch ErrorReason(err) {
	case "truncated", "oversized", "malformed", "unexpected_packet", "bad_next_state":
		return true
	}
	return false
}
