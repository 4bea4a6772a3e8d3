package ledger

import (
	"context"
	"slices"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/tutu-network/econ/internal/domain"
	"github.com/tutu-network/econ/internal/infra/observability"
)

// lockEntry is a cancellable mutex shared by every caller waiting on one key.
type lockEntry struct {
	ch   chan struct{}
	refs int
}

// Locker serializes work per account id within the process. Entries are
// reference counted and dropped when the last holder releases.
type Locker struct {
	m *xsync.Map[string, *lockEntry]
}

// NewLocker returns an empty lock table.
func NewLocker() *Locker {
	return &Locker{m: xsync.NewMap[string, *lockEntry]()}
}

func (l *Locker) ref(key string) *lockEntry {
	e, _ := l.m.Compute(key, func(old *lockEntry, loaded bool) (*lockEntry, xsync.ComputeOp) {
		if !loaded {
			old = &lockEntry{ch: make(chan struct{}, 1)}
		}
		old.refs++
		return old, xsync.UpdateOp
	})
	return e
}

func (l *Locker) unref(key string) {
	l.m.Compute(key, func(old *lockEntry, loaded bool) (*lockEntry, xsync.ComputeOp) {
		if !loaded {
			return old, xsync.CancelOp
		}
		old.refs--
		if old.refs <= 0 {
			return nil, xsync.DeleteOp
		}
		return old, xsync.UpdateOp
	})
}

// Lock acquires every key in sorted order, so two callers locking the same
// pair from opposite ends cannot deadlock. The returned func releases all of
// them. If ctx ends first, nothing stays held.
func (l *Locker) Lock(ctx context.Context, keys []string) (func(), error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	start := time.Now()
	held := make([]string, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, key := range sorted {
		e := l.ref(key)
		select {
		case e.ch <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			l.unref(key)
			release()
			return nil, domain.Unavailable("lock "+key, ctx.Err())
		}
	}
	observability.LockWaitSeconds.Observe(time.Since(start).Seconds())
	return release, nil
}

func (l *Locker) unlock(key string) {
	if e, ok := l.m.Load(key); ok {
		<-e.ch
	}
	l.unref(key)
}

// Len reports how many keys are currently referenced.
func (l *Locker) Len() int { return l.m.Size() }
