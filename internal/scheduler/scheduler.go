package scheduler

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrDestroyed resolves work that was still queued when the scheduler
	// closed, and any submission after that.
	ErrDestroyed = errors.New("scheduler destroyed")
	ErrPanicked  = errors.New("scheduled operation panicked")
)

type Stats struct {
	Active        int    `json:"active"`
	Queued        int    `json:"queued"`
	Limit         int    `json:"limit"`
	MaxActiveSeen int    `json:"max_active_seen"`
	Submitted     uint64 `json:"submitted"`
	Completed     uint64 `json:"completed"`
	Rejected      uint64 `json:"rejected"`
}

// Observer is told about every change in active or queued counts. It runs
// outside the scheduler lock.
type Observer func(Stats)

// Pending is the completion handle of one submitted operation.
type Pending[T any] struct {
	fn     func() (T, error)
	done   chan struct{}
	value  T
	err    error
	queued bool
}

func (p *Pending[T]) resolve(v T, err error) {
	p.value = v
	p.err = err
	close(p.done)
}

// Wait blocks until the operation finished or ctx is done. Giving up on ctx
// does not withdraw the operation.
func (p *Pending[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (p *Pending[T]) Done() <-chan struct{} { return p.done }

// Queued reports whether the operation had to wait for a slot.
func (p *Pending[T]) Queued() bool { return p.queued }

// Scheduler runs at most Limit operations at once. Operations submitted at
// capacity wait in a FIFO queue and are started in arrival order as slots
// free up. Running operations are never preempted.
type Scheduler[T any] struct {
	mu            sync.Mutex
	limit         int
	active        int
	maxActiveSeen int
	queue         *list.List
	closed        bool
	wg            sync.WaitGroup
	observer      Observer

	submitted, completed, rejected uint64
}

func New[T any](limit int, observer Observer) *Scheduler[T] {
	if limit < 1 {
		limit = 1
	}
	return &Scheduler[T]{
		limit:    limit,
		queue:    list.New(),
		observer: observer,
	}
}

func (s *Scheduler[T]) Submit(fn func() (T, error)) *Pending[T] {
	p := &Pending[T]{fn: fn, done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.rejected++
		s.mu.Unlock()
		var zero T
		p.resolve(zero, ErrDestroyed)
		return p
	}

	s.submitted++
	if s.active < s.limit {
		s.startLocked(p)
	} else {
		p.queued = true
		s.queue.PushBack(p)
	}
	stats := s.statsLocked()
	s.mu.Unlock()

	s.notify(stats)
	return p
}

func (s *Scheduler[T]) startLocked(p *Pending[T]) {
	s.active++
	if s.active > s.maxActiveSeen {
		s.maxActiveSeen = s.active
	}
	s.wg.Add(1)
	go s.worker(p)
}

// worker keeps its slot while the queue has work, so a freed slot always
// goes to the queue head.
func (s *Scheduler[T]) worker(p *Pending[T]) {
	defer s.wg.Done()

	for p != nil {
		v, err := execute(p.fn)
		p.resolve(v, err)

		s.mu.Lock()
		s.completed++
		p = nil
		if s.active <= s.limit && s.queue.Len() > 0 {
			p = s.queue.Remove(s.queue.Front()).(*Pending[T])
		} else {
			s.active--
		}
		stats := s.statsLocked()
		s.mu.Unlock()

		s.notify(stats)
	}
}

func execute[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()
	return fn()
}

// Resize changes the concurrency limit. Growing starts queued work at once;
// shrinking takes effect as running operations finish.
func (s *Scheduler[T]) Resize(limit int) {
	if limit < 1 {
		limit = 1
	}

	s.mu.Lock()
	s.limit = limit
	for !s.closed && s.active < s.limit && s.queue.Len() > 0 {
		s.startLocked(s.queue.Remove(s.queue.Front()).(*Pending[T]))
	}
	stats := s.statsLocked()
	s.mu.Unlock()

	s.notify(stats)
}

// Close rejects every queued operation with ErrDestroyed and refuses new
// ones. Running operations finish normally.
func (s *Scheduler[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true

	var dropped []*Pending[T]
	for el := s.queue.Front(); el != nil; el = el.Next() {
		dropped = append(dropped, el.Value.(*Pending[T]))
	}
	s.queue.Init()
	s.rejected += uint64(len(dropped))
	stats := s.statsLocked()
	s.mu.Unlock()

	var zero T
	for _, p := range dropped {
		p.resolve(zero, ErrDestroyed)
	}
	s.notify(stats)
}

// Shutdown closes the scheduler and waits for running operations.
func (s *Scheduler[T]) Shutdown(ctx context.Context) error {
	s.Close()

	idle := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Scheduler[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *Scheduler[T]) statsLocked() Stats {
	return Stats{
		Active:        s.active,
		Queued:        s.queue.Len(),
		Limit:         s.limit,
		MaxActiveSeen: s.maxActiveSeen,
		Submitted:     s.submitted,
		Completed:     s.completed,
		Rejected:      s.rejected,
	}
}

func (s *Scheduler[T]) notify(stats Stats) {
	if s.observer != nil {
		s.observer(stats)
	}
}
