package internal

import (
	"context"

	"github.com/dcrodman/lodestone/internal/core/client"
)

// Backend is the protocol handler a frontend hands each accepted connection to.
type Backend interface {
	// Identifier returns a uniquely identifying string.
	Identifier() string

	// Init is called before a Backend is started as a hook for the Backend to
	// perform any necessary initialization before it can accept clients.
	Init(ctx context.Context) error

	// Handle owns the connection until it returns: it reads every packet the
	// client sends and writes any responses. The frontend closes the connection
	// afterwards, so Handle only needs to return.
	Handle(ctx context.Context, c *client.Client) error
}
