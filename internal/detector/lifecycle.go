package detector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wysRocket/dao-copilot-sub005/internal/events"
	"github.com/wysRocket/dao-copilot-sub005/internal/patterns"
)

// UpdateConfig applies cfg to the running engine. Cache sizing changes drop
// cached results, pattern changes rebuild the catalog (and drop cached
// results derived from the old one), concurrency changes resize the
// scheduler and thresholds restart from the configured values.
func (e *Engine) UpdateConfig(cfg Config) error {
	if e.closed.Load() {
		return ErrEngineDestroyed
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid detector config: %w", err)
	}

	e.mu.Lock()
	old := e.cfg
	changes := diff(old, cfg)

	var router *patterns.Router
	if contains(changes, "patterns") {
		catalog, err := patterns.NewCatalog(cfg.Patterns)
		if err != nil {
			e.mu.Unlock()
			return fmt.Errorf("failed to build pattern catalog: %w", err)
		}
		router = patterns.NewRouter(catalog)
	}

	e.cfg = cfg
	if router != nil {
		e.router = router
	}
	if contains(changes, "cache") || router != nil {
		e.results = newResultCache(cfg)
	}
	if contains(changes, "entities") {
		e.extractor = e.newExtractor(cfg)
	}
	e.mu.Unlock()

	if contains(changes, "concurrency") {
		e.sched.Resize(cfg.MaxConcurrentOperations)
	}
	e.tuner.Reconfigure(cfg.tunerConfig(), cfg.thresholds())
	e.publishThresholds(e.Thresholds())
	if contains(changes, "sweep") {
		e.stopSweeper()
		e.startSweeper(cfg.SweepInterval)
	}

	e.log.Info("Detector configuration updated", zap.Strings("changes", changes))
	ev := events.New(events.ConfigUpdated)
	ev.Changes = changes
	e.bus.Publish(ev)
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (e *Engine) startSweeper(interval time.Duration) {
	if interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	e.sweepMu.Lock()
	e.sweepCancel = cancel
	e.sweepDone = done
	e.sweepMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Sweep()
			}
		}
	}()
}

func (e *Engine) stopSweeper() {
	e.sweepMu.Lock()
	cancel, done := e.sweepCancel, e.sweepDone
	e.sweepCancel, e.sweepDone = nil, nil
	e.sweepMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Sweep drops expired entries from both caches and reports how many went.
func (e *Engine) Sweep() int {
	e.mu.RLock()
	results, extractor := e.results, e.extractor
	e.mu.RUnlock()

	n := results.Sweep() + extractor.Sweep()
	if n > 0 {
		e.log.Debug("Expired cache entries swept", zap.Int("removed", n))
	}
	return n
}

// ClearCache drops every cached result and entity extraction.
func (e *Engine) ClearCache() {
	e.mu.RLock()
	results, extractor := e.results, e.extractor
	e.mu.RUnlock()

	results.Purge()
	extractor.Purge()
}
