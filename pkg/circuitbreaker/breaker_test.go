package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("broker down")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(c *clock, transitions *[]string) *CircuitBreaker {
	return New("redis", Config{
		FailureThreshold: 3,
		OpenTimeout:      time.Second,
		SuccessThreshold: 2,
		MaxRequests:      2,
		Now:              c.Now,
		OnStateChange: func(_ string, from, to State) {
			*transitions = append(*transitions, from.String()+"->"+to.String())
		},
	})
}

func fail() error    { return errDown }
func succeed() error { return nil }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	var transitions []string
	cb := newTestBreaker(c, &transitions)

	assert.ErrorIs(t, cb.Execute(fail), errDown)
	assert.ErrorIs(t, cb.Execute(fail), errDown)
	require.NoError(t, cb.Execute(succeed), "a success resets the failure streak")
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errDown)
	}
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, uint64(1), cb.Stats().Rejected)
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreaker_HalfOpenRecovers(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	var transitions []string
	cb := newTestBreaker(c, &transitions)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}
	c.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(succeed))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(succeed))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	var transitions []string
	cb := newTestBreaker(c, &transitions)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}
	c.Advance(2 * time.Second)

	assert.ErrorIs(t, cb.Execute(fail), errDown)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(succeed), ErrCircuitOpen)
}

func TestBreaker_HalfOpenLimitsTrialCalls(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	var transitions []string
	cb := newTestBreaker(c, &transitions)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}
	c.Advance(time.Second)

	release := make(chan struct{})
	var wg sync.WaitGroup
	started := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(func() error {
				started <- struct{}{}
				<-release
				return nil
			})
		}()
	}
	<-started
	<-started

	assert.ErrorIs(t, cb.Execute(succeed), ErrTooManyRequests)
	close(release)
	wg.Wait()
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_PanicCountsAsFailure(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	var transitions []string
	cb := newTestBreaker(c, &transitions)

	assert.Panics(t, func() {
		_ = cb.Execute(func() error { panic("boom") })
	})
	assert.Equal(t, uint32(1), cb.Stats().ConsecutiveFailures)
}
