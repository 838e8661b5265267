package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/lodestone/internal/core"
	"github.com/dcrodman/lodestone/internal/core/client"
	"github.com/dcrodman/lodestone/internal/core/metrics"
)

// frontend implements the concurrent client connection logic.
//
// Every accepted connection gets its own goroutine which hands the connection
// to the Backend, abstracting the lower level connection details away from it.
type frontend struct {
	Address string
	Backend Backend
	Config  *core.Config
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics

	socket *net.TCPListener

	mu      sync.Mutex
	clients map[*client.Client]struct{}
}

// Start initializes the server backend and opens a TCP socket for the specified server.
// A blocking loop for accepting client connections is spun off in its own goroutine and
// added to the WaitGroup. Context cancellations will stop the server.
func (f *frontend) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if err := f.Backend.Init(ctx); err != nil {
		return fmt.Errorf("error initializing %s server: %w", f.Backend.Identifier(), err)
	}

	socket, err := f.createSocket()
	if err != nil {
		return fmt.Errorf("error creating socket on %s: %w", f.Address, err)
	}
	f.socket = socket
	f.clients = make(map[*client.Client]struct{})

	wg.Add(1)
	go f.startBlockingLoop(ctx, socket, wg)

	return nil
}

// Addr is the address the frontend is listening on, which differs from
// Address when port 0 was requested.
func (f *frontend) Addr() net.Addr {
	return f.socket.Addr()
}

// createSocket opens a TCP socket to listen for client connections on the Address
// provided to the frontend.
func (f *frontend) createSocket() (*net.TCPListener, error) {
	hostAddr, err := net.ResolveTCPAddr("tcp", f.Address)
	if err != nil {
		return nil, fmt.Errorf("error resolving address %w", err)
	}

	socket, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return nil, fmt.Errorf("error listening on socket: %w", err)
	}

	return socket, nil
}

// startBlockingLoop implements a connection handling loop that's purely responsible for
// accepting new connections and spinning off goroutines for the Backend to handle them.
func (f *frontend) startBlockingLoop(ctx context.Context, socket *net.TCPListener, wg *sync.WaitGroup) {
	defer wg.Done()

	f.Logger.Infof("[%s] waiting for connections on %v", f.Backend.Identifier(), socket.Addr())

	connections := make(chan *net.TCPConn)
	go func() {
		for {
			connection, err := socket.AcceptTCP()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				f.Logger.Warnf("failed to accept connection: %s", err.Error())
				continue
			}

			select {
			case connections <- connection:
			case <-ctx.Done():
				_ = connection.Close()
				return
			}
		}
	}()

	clientWg := &sync.WaitGroup{}
handleLoop:
	for {
		select {
		case <-ctx.Done():
			break handleLoop
		case connection := <-connections:
			c, ok := f.admit(connection)
			if !ok {
				continue
			}
			clientWg.Add(1)
			go f.acceptClient(ctx, c, clientWg)
		}
	}

	f.Logger.Infof("[%v] shutting down (waiting for connections to close)", f.Backend.Identifier())
	_ = socket.Close()
	f.disconnectAll()
	clientWg.Wait()
	f.Logger.Infof("[%v] exited", f.Backend.Identifier())
}

// admit wraps the connection in a Client and starts tracking it, unless the
// server is already at its connection limit.
func (f *frontend) admit(connection *net.TCPConn) (*client.Client, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Config.MaxConnections > 0 && len(f.clients) >= f.Config.MaxConnections {
		f.Logger.Infof("[%s] rejected connection from %s: server full", f.Backend.Identifier(), connection.RemoteAddr())
		f.Metrics.ConnectionRejected("server_full")
		_ = connection.Close()
		return nil, false
	}

	c := client.NewClient(connection)
	c.MaxPacketLength = f.Config.MaxPacketLength
	c.ReadTimeout = f.Config.ReadTimeout
	c.Logger = f.Logger
	c.PacketLogging = f.Config.Debugging.PacketLoggingEnabled

	f.clients[c] = struct{}{}
	f.Metrics.ConnectionOpened()
	return c, true
}

// acceptClient hands the client to the Backend and cleans up once the Backend
// is done with it.
func (f *frontend) acceptClient(ctx context.Context, c *client.Client, wg *sync.WaitGroup) {
	defer wg.Done()
	defer f.closeConnectionAndRecover(f.Backend.Identifier(), c)

	f.Logger.Infof("[%s] accepted connection from %s", f.Backend.Identifier(), c.RemoteAddr())

	err := f.Backend.Handle(ctx, c)
	switch {
	case err == nil:
	case ctx.Err() != nil || errors.Is(err, client.ErrConnectionLost):
		f.Logger.Debugf("[%s] connection from %s ended: %v", f.Backend.Identifier(), c.RemoteAddr(), err)
	default:
		if client.IsProtocolError(err) {
			f.Metrics.ProtocolError(client.ErrorReason(err))
		}
		f.Logger.Warnf("error in client communication: %v", err)
	}
}

// closeConnectionAndRecover is the failsafe that catches any panics, disconnects the
// client, and removes them from the list regardless of the state of the connection.
func (f *frontend) closeConnectionAndRecover(serverName string, c *client.Client) {
	if err := recover(); err != nil {
		f.Logger.Errorf("error in client communication with %s: error=%s, trace: %s",
			c.RemoteAddr(), err, debug.Stack())
	}

	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		f.Logger.Warnf("failed to close client connection: %s", err)
	}

	f.mu.Lock()
	delete(f.clients, c)
	f.mu.Unlock()
	f.Metrics.ConnectionClosed()

	f.Logger.Infof("[%s] disconnected client %s", serverName, c.RemoteAddr())
}

// disconnectAll closes every tracked connection so that blocked reads return.
func (f *frontend) disconnectAll() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for c := range f.clients {
		_ = c.Close()
	}
}

// connectionCount is the number of connections currently being handled.
func (f *frontend) connectionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
