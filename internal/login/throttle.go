package login

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Throttle remembers which addresses attempted a login recently. A nil
// Throttle allows everything.
type Throttle struct {
	attempts *gocache.Cache
}

// NewThrottle returns a Throttle that allows one login per address per
// window, or nil if window is not positive.
func NewThrottle(window time.Duration) *Throttle {
	if window <= 0 {
		return nil
	}
	return &Throttle{attempts: gocache.New(window, 2*window)}
}

// Allow records a login attempt from addr and reports whether it's allowed.
func (t *Throttle) Allow(addr string) bool {
	if t == nil {
		return true
	}
	// Add only succeeds if there's no unexpired attempt for addr yet.
	return t.attempts.Add(addr, struct{}{}, gocache.DefaultExpiration) == nil
}
