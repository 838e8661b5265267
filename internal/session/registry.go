package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/lodestone/internal/core/metrics"
)

// ErrNameInUse is returned by Insert when a live session already holds the name
// and could not (or, by policy, may not) be displaced.
var ErrNameInUse = errors.New("name already in use")

// DuplicatePolicy decides what happens when a name that's already registered
// logs in again.
type DuplicatePolicy int

const (
	// Evict stops the prior session, waits for its worker to exit, and then
	// registers the new one. The most recent login wins.
	Evict DuplicatePolicy = iota
	// Reject refuses the new login and leaves the prior session alone.
	Reject
)

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "evict":
		return Evict, nil
	case "reject":
		return Reject, nil
	default:
		return 0, fmt.Errorf("unknown duplicate login policy %q", s)
	}
}

func (p DuplicatePolicy) String() string {
	if p == Reject {
		return "reject"
	}
	return "evict"
}

type entry struct {
	session *Session
	worker  *Worker
}

// Registry is the concurrency-safe mapping from player name to session. It
// guarantees that at most one entry exists for a name at any instant. Inserts
// are serialized per name, so logins under different names never wait on
// each other.
type Registry struct {
	policy          DuplicatePolicy
	evictionTimeout time.Duration
	logger          logrus.FieldLogger
	metrics         *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]*entry
	names   keyedMutex
}

func NewRegistry(policy DuplicatePolicy, evictionTimeout time.Duration, logger logrus.FieldLogger, m *metrics.Metrics) *Registry {
	return &Registry{
		policy:          policy,
		evictionTimeout: evictionTimeout,
		logger:          logger,
		metrics:         m,
		entries:         make(map[string]*entry),
		names:           keyedMutex{locks: make(map[string]*refLock)},
	}
}

// Insert registers s and the worker that will run it. If the name is taken,
// the configured DuplicatePolicy decides the outcome: Evict only inserts once
// the prior worker has been stopped and has exited; Reject returns ErrNameInUse.
// The caller must Run w if and only if Insert succeeds.
func (r *Registry) Insert(ctx context.Context, s *Session, w *Worker) error {
	unlock := r.names.lock(s.Name)
	defer unlock()

	r.mu.RLock()
	prior := r.entries[s.Name]
	r.mu.RUnlock()

	if prior != nil {
		if r.policy == Reject {
			r.logger.Infof("rejected login for %s from %s: name is already online from %s",
				s.Name, s.Client.RemoteAddr(), prior.session.Client.RemoteAddr())
			return ErrNameInUse
		}

		r.logger.Infof("evicting session for %s at %s: logged in again from %s",
			s.Name, prior.session.Client.RemoteAddr(), s.Client.RemoteAddr())
		if err := r.evict(ctx, prior); err != nil {
			return err
		}
		r.metrics.SessionEvicted()
	}

	r.mu.Lock()
	r.entries[s.Name] = &entry{session: s, worker: w}
	count := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetPlayersOnline(count)
	return nil
}

// evict stops the prior entry's worker and waits for it to exit.
func (r *Registry) evict(ctx context.Context, prior *entry) error {
	prior.worker.Stop()

	timer := time.NewTimer(r.evictionTimeout)
	defer timer.Stop()

	select {
	case <-prior.worker.Done():
	case <-timer.C:
		return fmt.Errorf("%w: session for %s did not stop within %v", ErrNameInUse, prior.session.Name, r.evictionTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	// The worker normally releases its own entry on the way out.
	r.Release(prior.session)
	return nil
}

// Release removes the entry for s.Name, but only if it still belongs to s.
// Workers call this as they exit; it never blocks on other workers.
func (r *Registry) Release(s *Session) {
	r.mu.Lock()
	e, ok := r.entries[s.Name]
	if ok && e.session == s {
		delete(r.entries, s.Name)
	}
	count := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetPlayersOnline(count)
}

// Remove unregisters the named session, stops its worker, and waits for the
// worker to exit. It must not be called from the session's own worker, which
// ends its session by returning from Play instead.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	e, ok := r.entries[name]
	delete(r.entries, name)
	count := len(r.entries)
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.metrics.SetPlayersOnline(count)

	e.worker.Stop()
	<-e.worker.Done()
	return true
}

// Get returns the live session registered under name.
func (r *Registry) Get(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Count is a point-in-time snapshot of the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Shutdown stops every registered worker and waits for all of them to exit.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	workers := make([]*Worker, 0, len(r.entries))
	for _, e := range r.entries {
		workers = append(workers, e.worker)
	}
	r.mu.RUnlock()

	for _, w := range workers {
		w.Stop()
	}
	for _, w := range workers {
		<-w.Done()
	}
}

type refLock struct {
	sync.Mutex
	refs int
}

// keyedMutex hands out one mutex per key, discarding it once nobody holds or
// waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
