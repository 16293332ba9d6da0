// internal/gateway/gateway_test.go
package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transientErr struct{}

func (transientErr) Error() string   { return "connection reset" }
func (transientErr) Transient() bool { return true }

type notFoundErr struct{}

func (notFoundErr) Error() string  { return "unknown id" }
func (notFoundErr) NotFound() bool { return true }

func newTestRegistry(openWait time.Duration) *Registry {
	return NewRegistry(Config{
		MinCalls:         5,
		FailureRate:      0.5,
		OpenWait:         openWait,
		HalfOpenMaxCalls: 1,
		WindowInterval:   time.Minute,
		CallTimeout:      time.Second,
	}, prometheus.NewRegistry())
}

func succeed(context.Context) error { return nil }
func fail(context.Context) error    { return transientErr{} }

func TestGatewayPassesThroughWhileClosed(t *testing.T) {
	g := newTestRegistry(time.Minute).Gateway("inventory")

	outcome, err := g.Call(context.Background(), succeed)
	require.NoError(t, err)
	assert.Equal(t, Ok, outcome)
	assert.Equal(t, ModeClosed, g.Mode())
}

func TestGatewayOpensOnFailureRate(t *testing.T) {
	g := newTestRegistry(time.Minute).Gateway("inventory")

	reached := 0
	stub := func(err error) func(context.Context) error {
		return func(context.Context) error {
			reached++
			return err
		}
	}

	// 6 consecutive calls, 4 transient failures and 2 successes.
	for _, err := range []error{transientErr{}, transientErr{}, transientErr{}, nil, nil, transientErr{}} {
		g.Call(context.Background(), stub(err))
	}
	assert.Equal(t, ModeOpen, g.Mode())
	assert.Equal(t, 6, reached)

	before := reached
	outcome, err := g.Call(context.Background(), stub(nil))
	assert.Equal(t, Unavailable, outcome)
	require.ErrorIs(t, err, ErrShortCircuited)
	assert.Equal(t, before, reached, "short-circuited call must never reach the remote")
	assert.Equal(t, uint64(1), g.ShortCircuits())
}

func TestGatewayHalfOpenAfterWait(t *testing.T) {
	g := newTestRegistry(50 * time.Millisecond).Gateway("inventory")

	for i := 0; i < 5; i++ {
		g.Call(context.Background(), fail)
	}
	require.Equal(t, ModeOpen, g.Mode())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, ModeHalfOpen, g.Mode())

	// A successful trial call closes the breaker and resets the window.
	outcome, err := g.Call(context.Background(), succeed)
	require.NoError(t, err)
	assert.Equal(t, Ok, outcome)
	assert.Equal(t, ModeClosed, g.Mode())

	// One failure after the reset is below the minimum call count.
	g.Call(context.Background(), fail)
	assert.Equal(t, ModeClosed, g.Mode())
}

func TestGatewayFailedTrialReopens(t *testing.T) {
	g := newTestRegistry(50 * time.Millisecond).Gateway("inventory")

	for i := 0; i < 5; i++ {
		g.Call(context.Background(), fail)
	}
	require.Equal(t, ModeOpen, g.Mode())

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, ModeHalfOpen, g.Mode())

	g.Call(context.Background(), fail)
	assert.Equal(t, ModeOpen, g.Mode())
}

func TestNotFoundDoesNotCountAsBreakerFailure(t *testing.T) {
	g := newTestRegistry(time.Minute).Gateway("inventory")

	for i := 0; i < 10; i++ {
		outcome, err := g.Call(context.Background(), func(context.Context) error {
			return notFoundErr{}
		})
		assert.Equal(t, NotFound, outcome)
		require.Error(t, err)
	}
	assert.Equal(t, ModeClosed, g.Mode(), "application-level rejections must not trip the breaker")
}

func TestGatewayBoundsCallDuration(t *testing.T) {
	reg := NewRegistry(Config{
		MinCalls:         5,
		FailureRate:      0.5,
		OpenWait:         time.Minute,
		HalfOpenMaxCalls: 1,
		WindowInterval:   time.Minute,
		CallTimeout:      30 * time.Millisecond,
	}, prometheus.NewRegistry())
	g := reg.Gateway("inventory")

	start := time.Now()
	outcome, err := g.Call(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Unavailable, outcome)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegistrySharesGatewayPerDependency(t *testing.T) {
	reg := newTestRegistry(time.Minute)

	assert.Same(t, reg.Gateway("inventory"), reg.Gateway("inventory"))
	assert.NotSame(t, reg.Gateway("inventory"), reg.Gateway("notifications"))
}

func TestRegistrySnapshot(t *testing.T) {
	reg := newTestRegistry(time.Minute)
	g := reg.Gateway("inventory")

	for i := 0; i < 5; i++ {
		g.Call(context.Background(), fail)
	}
	g.Call(context.Background(), succeed) // short-circuited

	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "inventory", snap[0].Dependency)
	assert.Equal(t, ModeOpen, snap[0].Mode)
	assert.Equal(t, uint64(1), snap[0].ShortCircuits)
}

func TestClassifyUnknownErrorIsUnavailable(t *testing.T) {
	g := newTestRegistry(time.Minute).Gateway("inventory")

	outcome, err := g.Call(context.Background(), func(context.Context) error {
		return errors.New("weird")
	})
	assert.Equal(t, Unavailable, outcome)
	require.EqualError(t, err, "weird")
	// Unknown errors are surfaced but not counted as transient faults.
	assert.Equal(t, ModeClosed, g.Mode())
}
