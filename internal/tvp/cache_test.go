package tvp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreationCacheSequential(t *testing.T) {
	c := NewCreationCache()
	var calls int
	create := func(context.Context) error {
		calls++
		return nil
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Ensure(context.Background(), "udtts.T", "sqlserver://a/db", create))
	}
	assert.Equal(t, 1, calls)
	assert.True(t, c.Created("udtts.T", "sqlserver://a/db"))
	assert.Equal(t, 1, c.Len())
}

func TestCreationCacheZeroValue(t *testing.T) {
	var c CreationCache
	require.NoError(t, c.Ensure(context.Background(), "T", "x", func(context.Context) error { return nil }))
	assert.True(t, c.Created("T", "x"))
}

func TestCreationCacheConcurrent(t *testing.T) {
	c := NewCreationCache()
	var calls atomic.Int32
	release := make(chan struct{})
	create := func(context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Ensure(context.Background(), "udtts.T", "target", create)
		}()
	}
	// Give the callers time to pile up behind the first create.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, c.Created("udtts.T", "target"))
}

func TestCreationCacheFailureNotCached(t *testing.T) {
	c := NewCreationCache()
	boom := errors.New("permission denied")
	calls := 0
	create := func(context.Context) error {
		calls++
		if calls == 1 {
			return boom
		}
		return nil
	}

	err := c.Ensure(context.Background(), "T", "x", create)
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.Created("T", "x"))

	require.NoError(t, c.Ensure(context.Background(), "T", "x", create))
	assert.Equal(t, 2, calls)
	assert.True(t, c.Created("T", "x"))
}

func TestCreationCacheKeyedByTarget(t *testing.T) {
	c := NewCreationCache()
	var calls int
	create := func(context.Context) error {
		calls++
		return nil
	}

	require.NoError(t, c.Ensure(context.Background(), "T", "sqlserver://a/db", create))
	require.NoError(t, c.Ensure(context.Background(), "T", "sqlserver://b/db", create))
	require.NoError(t, c.Ensure(context.Background(), "U", "sqlserver://a/db", create))
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, c.Len())
}

func TestCreationCacheCancelled(t *testing.T) {
	c := NewCreationCache()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Ensure(ctx, "T", "x", func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, c.Created("T", "x"))
}
