// Package session tracks the players that have completed the login handshake.
package session

import (
	"context"
	"crypto/md5"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dcrodman/lodestone/internal/core/client"
)

// OfflineUUID derives the identifier for a player name. The derivation is the
// one used by offline-mode servers: a version 3 UUID over "OfflinePlayer:<name>",
// so the same name always maps to the same identifier.
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80

	id, _ := uuid.FromBytes(sum[:])
	return id
}

// Session is the server-side representation of a logged in player.
type Session struct {
	Name      string
	UUID      uuid.UUID
	Client    *client.Client
	LoginTime time.Time
}

func NewSession(name string, c *client.Client) *Session {
	return &Session{
		Name:      name,
		UUID:      OfflineUUID(name),
		Client:    c,
		LoginTime: time.Now(),
	}
}

// Handler is the post-login collaborator that owns all further protocol on
// the session's connection. Play returns when the session is over; it must
// return promptly once ctx is cancelled or the connection is closed.
type Handler interface {
	Play(ctx context.Context, s *Session) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, s *Session) error

func (f HandlerFunc) Play(ctx context.Context, s *Session) error { return f(ctx, s) }

// Worker is the handle to the goroutine running a session. Stopping a worker
// cancels its context and closes the session's connection, which is the only
// way to interrupt a blocked read.
type Worker struct {
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	session *Session

	stopOnce sync.Once
	started  bool
}

func NewWorker(ctx context.Context, s *Session) *Worker {
	ctx, cancel := context.WithCancel(ctx)
	return &Worker{
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		session: s,
	}
}

// Context is cancelled when the worker is told to stop.
func (w *Worker) Context() context.Context { return w.ctx }

// Done is closed once the worker has finished and released its session.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Stop tells the worker to shut down without waiting for it.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		_ = w.session.Client.Close()
	})
}

// Run executes fn on the calling goroutine and then marks the worker done. It
// must be called exactly once for every worker handed to a Registry.
func (w *Worker) Run(fn func(ctx context.Context) error) error {
	if w.started {
		panic("session: Worker.Run called twice")
	}
	w.started = true

	defer close(w.done)
	defer w.cancel()
	return fn(w.ctx)
}
