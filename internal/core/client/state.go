package client

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when moving a connection to a state that
// isn't reachable from its current one.
var ErrInvalidTransition = errors.New("invalid connection state transition")

// State is the protocol state of a connection. A connection only ever moves
// forward through these states.
type State int

const (
	StateHandshaking State = iota
	StateStatus
	StateLoggingIn
	StatePlayerSession
	StateClosed
)

var stateNames = map[State]string{
	StateHandshaking:   "handshaking",
	StateStatus:        "status",
	StateLoggingIn:     "logging_in",
	StatePlayerSession: "player_session",
	StateClosed:        "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var transitions = map[State][]State{
	StateHandshaking:   {StateStatus, StateLoggingIn, StateClosed},
	StateStatus:        {StateClosed},
	StateLoggingIn:     {StatePlayerSession, StateClosed},
	StatePlayerSession: {StateClosed},
}

// State returns the connection's current protocol state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transition moves the connection into the next state.
func (c *Client) Transition(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, allowed := range transitions[c.state] {
		if allowed == to {
			c.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, to)
}
