package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wysRocket/dao-copilot-sub005/pkg/circuitbreaker"
	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
	"github.com/wysRocket/dao-copilot-sub005/pkg/retry"
)

// Sink delivers events to something outside the process.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e Event) error
	Close() error
}

type ForwarderOptions struct {
	Kinds          []Kind
	PublishTimeout time.Duration
	Retry          retry.Config
	Breaker        circuitbreaker.Config
	OnFailure      func(sink string, err error)
}

func DefaultForwarderOptions() ForwarderOptions {
	return ForwarderOptions{
		PublishTimeout: 2 * time.Second,
		Retry:          retry.DefaultConfig(),
		Breaker: circuitbreaker.Config{
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
	}
}

type guardedSink struct {
	sink    Sink
	breaker *circuitbreaker.CircuitBreaker
}

// Forwarder drains a bus subscription into sinks. Every sink sits behind its
// own circuit breaker so a dead broker costs one rejected call per event.
type Forwarder struct {
	sinks []guardedSink
	kinds map[Kind]bool
	opts  ForwarderOptions
	log   *zap.Logger
}

func NewForwarder(opts ForwarderOptions, sinks ...Sink) *Forwarder {
	log := logger.Named("forwarder")
	if opts.Retry.Logger == nil {
		opts.Retry.Logger = log
	}
	if opts.Breaker.Logger == nil {
		opts.Breaker.Logger = log
	}

	f := &Forwarder{opts: opts, log: log}
	if len(opts.Kinds) > 0 {
		f.kinds = make(map[Kind]bool, len(opts.Kinds))
		for _, k := range opts.Kinds {
			f.kinds[k] = true
		}
	}
	for _, s := range sinks {
		f.sinks = append(f.sinks, guardedSink{
			sink:    s,
			breaker: circuitbreaker.New(s.Name(), opts.Breaker),
		})
	}
	return f
}

// Run forwards events until the channel closes or ctx is done.
func (f *Forwarder) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			f.Forward(ctx, e)
		}
	}
}

// Forward delivers e to every sink and returns the joined delivery errors.
func (f *Forwarder) Forward(ctx context.Context, e Event) error {
	if f.kinds != nil && !f.kinds[e.Kind] {
		return nil
	}

	var errs []error
	for _, gs := range f.sinks {
		if err := f.deliver(ctx, gs, e); err != nil {
			f.log.Warn("Event delivery failed",
				zap.String("sink", gs.sink.Name()),
				zap.String("kind", string(e.Kind)),
				zap.String("event_id", e.ID),
				zap.Error(err),
			)
			if f.opts.OnFailure != nil {
				f.opts.OnFailure(gs.sink.Name(), err)
			}
			errs = append(errs, fmt.Errorf("%s: %w", gs.sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (f *Forwarder) deliver(ctx context.Context, gs guardedSink, e Event) error {
	return gs.breaker.Execute(func() error {
		return retry.Do(ctx, f.opts.Retry, func(ctx context.Context) error {
			if f.opts.PublishTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, f.opts.PublishTimeout)
				defer cancel()
			}
			return gs.sink.Publish(ctx, e)
		})
	})
}

func (f *Forwarder) BreakerStats() map[string]circuitbreaker.Stats {
	out := make(map[string]circuitbreaker.Stats, len(f.sinks))
	for _, gs := range f.sinks {
		out[gs.sink.Name()] = gs.breaker.Stats()
	}
	return out
}

func (f *Forwarder) Close() error {
	var errs []error
	for _, gs := range f.sinks {
		if err := gs.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s sink: %w", gs.sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
