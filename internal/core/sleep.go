package core

import (
	"context"
	"time"
)

// Sleep pauses for d or until ctx is cancelled, whichever comes first. It
// returns ctx.Err() if the pause was cut short.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
