package detector

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wysRocket/dao-copilot-sub005/internal/analysis"
	"github.com/wysRocket/dao-copilot-sub005/internal/cache"
	"github.com/wysRocket/dao-copilot-sub005/internal/tuner"
)

// Rough per-entry footprints used for the memory estimate.
const (
	resultEntryBytes = 512
	entityEntryBytes = 256
)

type MetricsSnapshot struct {
	TotalDetections     uint64           `json:"total_detections"`
	Questions           uint64           `json:"questions"`
	Rejected            uint64           `json:"rejected"`
	CacheHits           uint64           `json:"cache_hits"`
	CacheMisses         uint64           `json:"cache_misses"`
	CacheHitRate        float64          `json:"cache_hit_rate"`
	FastPathHits        uint64           `json:"fast_path_hits"`
	FastPathHitRate     float64          `json:"fast_path_hit_rate"`
	DetailedRuns        uint64           `json:"detailed_runs"`
	AvgProcessingMs     float64          `json:"avg_processing_ms"`
	ThroughputPerSec    float64          `json:"throughput_per_sec"`
	MemoryEstimateBytes int              `json:"memory_estimate_bytes"`
	AdaptiveAdjustments uint64           `json:"adaptive_adjustments"`
	Thresholds          tuner.Thresholds `json:"thresholds"`
	QueueDepth          int              `json:"queue_depth"`
	ActiveOperations    int              `json:"active_operations"`
	MaxActiveSeen       int              `json:"max_active_seen"`
	Errors              uint64           `json:"errors"`
	EventsDropped       uint64           `json:"events_dropped"`
	ResultCache         cache.Stats      `json:"result_cache"`
	EntityCache         cache.Stats      `json:"entity_cache"`
	UptimeSeconds       float64          `json:"uptime_seconds"`
}

// Metrics returns a read-only snapshot. It has no side effects.
func (e *Engine) Metrics() MetricsSnapshot {
	e.mu.RLock()
	results, extractor := e.results, e.extractor
	e.mu.RUnlock()

	s := &e.stats
	snap := MetricsSnapshot{
		TotalDetections:     s.detections.Load(),
		Questions:           s.questions.Load(),
		Rejected:            s.rejected.Load(),
		CacheHits:           s.cacheHits.Load(),
		CacheMisses:         s.cacheMisses.Load(),
		FastPathHits:        s.fastPathHits.Load(),
		DetailedRuns:        s.detailedRuns.Load(),
		Errors:              s.errors.Load(),
		AdaptiveAdjustments: e.tuner.Adjustments(),
		Thresholds:          e.Thresholds(),
		EventsDropped:       e.bus.Dropped(),
		ResultCache:         results.Stats(),
		EntityCache:         extractor.CacheStats(),
		UptimeSeconds:       time.Since(e.started).Seconds(),
	}

	if lookups := snap.CacheHits + snap.CacheMisses; lookups > 0 {
		snap.CacheHitRate = float64(snap.CacheHits) / float64(lookups)
	}
	if analyzed := snap.FastPathHits + snap.DetailedRuns; analyzed > 0 {
		snap.FastPathHitRate = float64(snap.FastPathHits) / float64(analyzed)
	}
	if completed := s.completed.Load(); completed > 0 {
		snap.AvgProcessingMs = float64(s.processingNs.Load()) / float64(completed) / float64(time.Millisecond)
		if snap.UptimeSeconds > 0 {
			snap.ThroughputPerSec = float64(completed) / snap.UptimeSeconds
		}
	}

	sched := e.sched.Stats()
	snap.QueueDepth = sched.Queued
	snap.ActiveOperations = sched.Active
	snap.MaxActiveSeen = sched.MaxActiveSeen

	snap.MemoryEstimateBytes = snap.ResultCache.KeyBytes + snap.ResultCache.Size*resultEntryBytes +
		snap.EntityCache.KeyBytes + snap.EntityCache.Size*entityEntryBytes
	return snap
}

// DetectBatch runs Detect for every text and returns results in input
// order. The scheduler still bounds how many run at once.
func (e *Engine) DetectBatch(ctx context.Context, texts []string, useContext bool) ([]*analysis.QuestionAnalysis, error) {
	out := make([]*analysis.QuestionAnalysis, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			res, err := e.Detect(gctx, text, useContext)
			if err != nil {
				return err
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
