package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindpalace/backend/pkg/logger"
)

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(Config{
		Name:             "store",
		FailureThreshold: 2,
		SuccessThreshold: 1,
		RetryTimeout:     time.Minute,
	}, logger.Discard())
	cb.now = func() time.Time { return now }

	boom := errors.New("db down")
	fail := func(context.Context) error { return boom }
	ok := func(context.Context) error { return nil }

	assert.ErrorIs(t, cb.Execute(context.Background(), fail), boom)
	assert.ErrorIs(t, cb.Execute(context.Background(), fail), boom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())

	stats := cb.Stats()
	assert.Equal(t, uint64(1), stats.OpenCount)
	assert.Equal(t, uint64(1), stats.Rejected)
	assert.Equal(t, uint64(2), stats.TotalFailures)
}

func TestCircuitBreakerAppliesTimeout(t *testing.T) {
	cb := NewCircuitBreaker(Config{Name: "slow", FailureThreshold: 5, Timeout: 10 * time.Millisecond}, logger.Discard())
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateClosed, cb.State())
}
