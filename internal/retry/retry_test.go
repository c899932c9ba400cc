package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastOptions = Options{
	MaxAttempts:       3,
	InitialBackoff:    time.Millisecond,
	MaxBackoff:        5 * time.Millisecond,
	BackoffMultiplier: 2,
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", fmt.Errorf("ping: %w", driver.ErrBadConn), true},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"timeout", timeoutError{}, true},
		{"marked", &ErrConnection{Msg: "dial", Err: errors.New("boom")}, true},
		{"statement failure", errors.New("CREATE TYPE permission denied"), false},
		{"cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("ping: %w", context.DeadlineExceeded), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestDoSucceedsAfterRetry(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastOptions, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", driver.ErrBadConn
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastOptions, func(context.Context) (int, error) {
		calls++
		return 0, driver.ErrBadConn
	})
	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryStatementErrors(t *testing.T) {
	calls := 0
	boom := errors.New("syntax error")
	_, err := Do(context.Background(), fastOptions, func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, fastOptions, func(context.Context) (int, error) {
		calls++
		return 0, nil
	})
	var cancelled *ErrCancelled
	require.ErrorAs(t, err, &cancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := Options{MaxAttempts: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour, BackoffMultiplier: 1}

	_, err := Do(ctx, opts, func(context.Context) (int, error) {
		cancel()
		return 0, driver.ErrBadConn
	})
	var cancelled *ErrCancelled
	require.ErrorAs(t, err, &cancelled)
	assert.Equal(t, "operation cancelled during backoff", cancelled.Msg)
}
