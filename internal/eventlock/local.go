package eventlock

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/dongi/internal/config"
	"github.com/smallbiznis/dongi/internal/observability/metrics"
)

type localEntry struct {
	sem  chan struct{}
	refs int
}

// LocalLocker holds one slot per event id inside this process. Entries are
// dropped once nobody holds or waits for them.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	cfg     timings
	metrics *metrics.Metrics
}

func NewLocalLocker(cfg *config.ChargesConfigHolder, m *metrics.Metrics) *LocalLocker {
	return &LocalLocker{
		entries: make(map[string]*localEntry),
		cfg:     cfg,
		metrics: m,
	}
}

func (l *LocalLocker) Backend() string { return config.LockBackendLocal }

func (l *LocalLocker) Acquire(ctx context.Context, eventID string) (Release, error) {
	start := time.Now()
	entry := l.ref(eventID)

	select {
	case entry.sem <- struct{}{}:
		l.metrics.ObserveLockWait(l.Backend(), true, time.Since(start))
		return l.releaser(eventID, entry), nil
	default:
	}

	timer := time.NewTimer(waitFor(l.cfg))
	defer timer.Stop()

	select {
	case entry.sem <- struct{}{}:
	case <-timer.C:
		l.unref(eventID)
		l.metrics.ObserveLockWait(l.Backend(), false, time.Since(start))
		return nil, ErrLockTimeout
	case <-ctx.Done():
		l.unref(eventID)
		l.metrics.ObserveLockWait(l.Backend(), false, time.Since(start))
		return nil, ctx.Err()
	}
	l.metrics.ObserveLockWait(l.Backend(), true, time.Since(start))
	return l.releaser(eventID, entry), nil
}

func (l *LocalLocker) releaser(eventID string, entry *localEntry) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.unref(eventID)
		})
	}
}

func (l *LocalLocker) ref(eventID string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[eventID]
	if !ok {
		entry = &localEntry{sem: make(chan struct{}, 1)}
		l.entries[eventID] = entry
	}
	entry.refs++
	return entry
}

func (l *LocalLocker) unref(eventID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[eventID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, eventID)
	}
}

func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
