package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/econ/internal/domain"
)

func TestLocker_OppositeOrder(t *testing.T) {
	l := NewLocker()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), []string{"x", "y"})
			if !assert.NoError(t, err) {
				return
			}
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), []string{"y", "x"})
			if !assert.NoError(t, err) {
				return
			}
			unlock()
		}()
	}
	wg.Wait()
	require.Zero(t, l.Len())
}

func TestLocker_DuplicateKeys(t *testing.T) {
	l := NewLocker()
	unlock, err := l.Lock(context.Background(), []string{"a", "a"})
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())
	unlock()
	require.Zero(t, l.Len())
}

func TestLocker_ContextTimeout(t *testing.T) {
	l := NewLocker()
	unlock, err := l.Lock(context.Background(), []string{"a"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, []string{"b", "a"})
	require.ErrorIs(t, err, domain.ErrStorageUnavailable)

	// "b" was released on the way out.
	unlockB, err := l.Lock(context.Background(), []string{"b"})
	require.NoError(t, err)
	unlockB()

	unlock()
	require.Zero(t, l.Len())
}

func TestLocker_Excludes(t *testing.T) {
	l := NewLocker()
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), []string{"k"})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}
