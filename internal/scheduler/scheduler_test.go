package scheduler

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

type recorder struct {
	mu      sync.Mutex
	started []int
}

func (r *recorder) add(i int) {
	r.mu.Lock()
	r.started = append(r.started, i)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.started...)
}

func TestScheduler_FloodRespectsLimitAndFIFO(t *testing.T) {
	const limit, total = 3, 10
	s := New[int](limit, nil)

	var running, peak atomic.Int32
	rec := &recorder{}
	release := make([]chan struct{}, total)
	pending := make([]*Pending[int], total)

	for i := 0; i < total; i++ {
		i := i
		release[i] = make(chan struct{})
		pending[i] = s.Submit(func() (int, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			rec.add(i)
			<-release[i]
			running.Add(-1)
			return i, nil
		})
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == limit }, time.Second, time.Millisecond)
	stats := s.Stats()
	assert.Equal(t, limit, stats.Active)
	assert.Equal(t, total-limit, stats.Queued)
	for i := limit; i < total; i++ {
		assert.True(t, pending[i].Queued())
	}

	ctx := context.Background()
	for i := 0; i < total; i++ {
		close(release[i])
		v, err := pending[i].Wait(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)

		// one slot freed, so exactly one more operation may have started
		want := i + 1 + limit
		if want > total {
			want = total
		}
		require.Eventually(t, func() bool { return len(rec.snapshot()) == want }, time.Second, time.Millisecond)
	}

	started := rec.snapshot()
	require.Len(t, started, total)
	assert.ElementsMatch(t, []int{0, 1, 2}, started[:limit])
	assert.Equal(t, []int{3, 4, 5, 6, 7, 8, 9}, started[limit:], "queued work starts in submission order")
	assert.LessOrEqual(t, peak.Load(), int32(limit))

	require.Eventually(t, func() bool { return s.Stats().Active == 0 }, time.Second, time.Millisecond)
	final := s.Stats()
	assert.Equal(t, limit, final.MaxActiveSeen)
	assert.Equal(t, uint64(total), final.Completed)
	assert.Equal(t, uint64(total), final.Submitted)
}

func TestScheduler_CloseRejectsQueuedWork(t *testing.T) {
	s := New[string](1, nil)

	block := make(chan struct{})
	running := s.Submit(func() (string, error) {
		<-block
		return "done", nil
	})
	queuedA := s.Submit(func() (string, error) { return "a", nil })
	queuedB := s.Submit(func() (string, error) { return "b", nil })

	s.Close()

	ctx := context.Background()
	_, err := queuedA.Wait(ctx)
	assert.ErrorIs(t, err, ErrDestroyed)
	_, err = queuedB.Wait(ctx)
	assert.ErrorIs(t, err, ErrDestroyed)

	_, err = s.Submit(func() (string, error) { return "late", nil }).Wait(ctx)
	assert.ErrorIs(t, err, ErrDestroyed)

	close(block)
	v, err := running.Wait(ctx)
	require.NoError(t, err, "in-flight work is not preempted")
	assert.Equal(t, "done", v)

	assert.Equal(t, uint64(3), s.Stats().Rejected)
	assert.True(t, s.Closed())
}

func TestScheduler_PanicBecomesError(t *testing.T) {
	s := New[int](2, nil)

	_, err := s.Submit(func() (int, error) { panic("boom") }).Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPanicked))

	v, err := s.Submit(func() (int, error) { return 7, nil }).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestScheduler_ResizeStartsQueuedWork(t *testing.T) {
	s := New[int](1, nil)

	block := make(chan struct{})
	var started atomic.Int32
	var pending []*Pending[int]
	for i := 0; i < 3; i++ {
		pending = append(pending, s.Submit(func() (int, error) {
			started.Add(1)
			<-block
			return 0, nil
		}))
	}

	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, time.Millisecond)
	s.Resize(3)
	require.Eventually(t, func() bool { return started.Load() == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 3, s.Stats().Limit)

	close(block)
	for _, p := range pending {
		_, err := p.Wait(context.Background())
		require.NoError(t, err)
	}
}

func TestScheduler_ShutdownWaitsForRunning(t *testing.T) {
	s := New[int](1, nil)

	block := make(chan struct{})
	s.Submit(func() (int, error) {
		<-block
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx), context.DeadlineExceeded)

	close(block)
	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, 0, s.Stats().Active)
}

func TestScheduler_ObserverSeesQueueDepth(t *testing.T) {
	var maxQueued atomic.Int32
	s := New[int](1, func(st Stats) {
		for {
			cur := maxQueued.Load()
			if int32(st.Queued) <= cur || maxQueued.CompareAndSwap(cur, int32(st.Queued)) {
				return
			}
		}
	})

	block := make(chan struct{})
	var pending []*Pending[int]
	for i := 0; i < 4; i++ {
		pending = append(pending, s.Submit(func() (int, error) {
			<-block
			return 0, nil
		}))
	}
	close(block)
	for _, p := range pending {
		_, err := p.Wait(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), maxQueued.Load())
}

func TestPending_WaitHonoursContext(t *testing.T) {
	s := New[int](1, nil)
	block := make(chan struct{})
	defer close(block)

	p := s.Submit(func() (int, error) {
		<-block
		return 0, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
