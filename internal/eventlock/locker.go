// Package eventlock serializes writers of the same event.
package eventlock

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/dongi/internal/config"
)

// ErrLockTimeout means another writer kept the event for longer than the
// configured wait.
var ErrLockTimeout = errors.New("event_lock_timeout")

// Release gives the lock back. It is safe to call more than once.
type Release func()

type Locker interface {
	Acquire(ctx context.Context, eventID string) (Release, error)
	Backend() string
}

// timings reads lock timing from the hot-reloadable charges config.
type timings interface {
	Get() config.ChargesConfig
}

func waitFor(t timings) time.Duration {
	return t.Get().Lock.Wait
}

func ttlFor(t timings) time.Duration {
	return t.Get().Lock.TTL
}
