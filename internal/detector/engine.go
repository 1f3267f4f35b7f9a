package detector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wysRocket/dao-copilot-sub005/internal/analysis"
	"github.com/wysRocket/dao-copilot-sub005/internal/cache"
	"github.com/wysRocket/dao-copilot-sub005/internal/entities"
	"github.com/wysRocket/dao-copilot-sub005/internal/events"
	"github.com/wysRocket/dao-copilot-sub005/internal/metrics"
	"github.com/wysRocket/dao-copilot-sub005/internal/patterns"
	"github.com/wysRocket/dao-copilot-sub005/internal/scheduler"
	"github.com/wysRocket/dao-copilot-sub005/internal/tuner"
	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
)

// ErrEngineDestroyed is returned for work that was waiting for a slot when
// the engine shut down, and for every call after that.
var ErrEngineDestroyed = errors.New("question detector destroyed")

type Option func(*Engine)

// WithEventBus publishes engine events on bus. Subscribe before New to see
// the engine:initialized event.
func WithEventBus(bus *events.Bus) Option {
	return func(e *Engine) {
		e.bus = bus
		e.ownsBus = false
	}
}

// WithRecognizer adds a supplementary entity recognizer, replacing the
// prose tagger that EnableNER would install.
func WithRecognizer(r entities.Recognizer) Option {
	return func(e *Engine) { e.recognizer = r }
}

type outcome struct {
	result    *analysis.QuestionAnalysis
	fastPath  bool
	cacheable bool
	results   *cache.LRU[*analysis.QuestionAnalysis]
	recorded  atomic.Bool
}

// claim reports true to exactly one of the callers sharing o.
func (o *outcome) claim() bool {
	return o.recorded.CompareAndSwap(false, true)
}

type counters struct {
	detections   atomic.Uint64
	rejected     atomic.Uint64
	questions    atomic.Uint64
	cacheHits    atomic.Uint64
	cacheMisses  atomic.Uint64
	fastPathHits atomic.Uint64
	detailedRuns atomic.Uint64
	completed    atomic.Uint64
	errors       atomic.Uint64
	processingNs atomic.Int64
}

// Engine decides whether utterances are questions. It is safe for
// concurrent use.
type Engine struct {
	mu        sync.RWMutex
	cfg       Config
	router    *patterns.Router
	results   *cache.LRU[*analysis.QuestionAnalysis]
	extractor *entities.Extractor

	keywords   *analysis.KeywordScorer
	recognizer entities.Recognizer
	sched      *scheduler.Scheduler[*outcome]
	tuner      *tuner.Tuner
	session    *analysis.SessionContext
	bus        *events.Bus
	ownsBus    bool
	inflight   singleflight.Group

	stats   counters
	started time.Time
	closed  atomic.Bool

	sweepMu     sync.Mutex
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}

	log *zap.Logger
}

func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector config: %w", err)
	}

	catalog, err := patterns.NewCatalog(cfg.Patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to build pattern catalog: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		router:   patterns.NewRouter(catalog),
		keywords: analysis.NewKeywordScorer(),
		tuner:    tuner.New(cfg.tunerConfig(), cfg.thresholds()),
		session:  analysis.NewSessionContext(analysis.DefaultMaxPreviousQuestions, analysis.DefaultMaxRelatedEntities),
		ownsBus:  true,
		started:  time.Now(),
		log:      logger.Named("detector"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bus == nil {
		e.bus = events.NewBus(events.WithDropHook(func(k events.Kind) {
			metrics.EventsDropped.WithLabelValues(string(k)).Inc()
		}))
	}

	e.results = newResultCache(cfg)
	e.extractor = e.newExtractor(cfg)
	e.sched = scheduler.New[*outcome](cfg.MaxConcurrentOperations, func(s scheduler.Stats) {
		metrics.QueueDepth.Set(float64(s.Queued))
		metrics.ActiveOperations.Set(float64(s.Active))
	})
	e.publishThresholds(e.tuner.Snapshot())
	e.startSweeper(cfg.SweepInterval)

	e.log.Info("Question detector initialized",
		zap.Int("rules", catalog.Len()),
		zap.Int("cache_size", cfg.CacheSize),
		zap.Int("max_concurrent", cfg.MaxConcurrentOperations),
		zap.Duration("performance_target", cfg.PerformanceTarget),
	)
	e.bus.Publish(events.New(events.EngineInitialized))
	return e, nil
}

func newResultCache(cfg Config) *cache.LRU[*analysis.QuestionAnalysis] {
	return cache.NewLRU[*analysis.QuestionAnalysis](cfg.CacheSize, cfg.CacheTTL)
}

func (e *Engine) newExtractor(cfg Config) *entities.Extractor {
	recognizer := e.recognizer
	if recognizer == nil && cfg.EnableNER {
		recognizer = entities.NewProseRecognizer()
	}
	return entities.NewExtractor(entities.Options{
		CacheSize:  cfg.MaxEntityCacheSize,
		CacheTTL:   cfg.EntityCacheTTL,
		Recognizer: recognizer,
	})
}

// Detect classifies text. It returns nil without error when text is too
// short or is not a question. Analysis failures are logged and counted and
// also reported as nil. Only shutdown surfaces as ErrEngineDestroyed.
func (e *Engine) Detect(ctx context.Context, text string, useContext bool) (*analysis.QuestionAnalysis, error) {
	if e.closed.Load() {
		return nil, ErrEngineDestroyed
	}
	start := time.Now()
	cfg := e.Config()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" || utf8.RuneCountInString(trimmed) < cfg.MinQuestionLength {
		e.stats.rejected.Add(1)
		metrics.DetectionsTotal.WithLabelValues("rejected").Inc()
		return nil, nil
	}
	e.stats.detections.Add(1)

	key := cache.Key(trimmed)
	if cfg.CompressCacheKeys {
		key = cache.Compress(key)
	}

	// a cached negative may still be a follow-up once context is considered
	if cached, ok := e.resultCache().Get(key); ok && (cached.IsQuestion || !useContext) {
		e.stats.cacheHits.Add(1)
		metrics.CacheHits.WithLabelValues("result").Inc()
		var res *analysis.QuestionAnalysis
		if cached.IsQuestion {
			res = cached.Clone()
			res.Timestamp = time.Now()
		}
		e.complete(trimmed, res, start, "cache", false, true, true)
		return res, nil
	}
	e.stats.cacheMisses.Add(1)
	metrics.CacheMisses.WithLabelValues("result").Inc()

	normalized := cache.Normalize(trimmed)
	out, err := e.compute(ctx, key, trimmed, normalized, useContext, start)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrDestroyed):
			return nil, ErrEngineDestroyed
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		}
		e.fail(trimmed, err)
		return nil, nil
	}

	var res *analysis.QuestionAnalysis
	if out.result != nil {
		res = out.result.Clone()
	}
	path := "detailed"
	if out.fastPath {
		path = "fast"
	}
	e.complete(trimmed, res, start, path, out.fastPath, false, out.claim())
	return res, nil
}

// compute runs the analysis in a scheduler slot. Identical concurrent
// context-free requests share one run.
func (e *Engine) compute(ctx context.Context, key, text, normalized string, useContext bool, start time.Time) (*outcome, error) {
	if useContext {
		return e.run(ctx, key, text, normalized, true, start)
	}

	ch := e.inflight.DoChan(key, func() (any, error) {
		return e.run(context.Background(), key, text, normalized, false, start)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*outcome), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) run(ctx context.Context, key, text, normalized string, useContext bool, start time.Time) (*outcome, error) {
	pending := e.sched.Submit(func() (*outcome, error) {
		return e.analyze(text, normalized, useContext, start), nil
	})
	out, err := pending.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if out.cacheable {
		store(out.results, key, out.result)
	}
	return out, nil
}

// store writes into the cache the analysis started with. A cache replaced by
// UpdateConfig meanwhile is detached, so stale verdicts never reach its
// successor.
func store(results *cache.LRU[*analysis.QuestionAnalysis], key string, res *analysis.QuestionAnalysis) {
	if res == nil {
		res = &analysis.QuestionAnalysis{IsQuestion: false, Timestamp: time.Now()}
	}
	if _, evicted := results.Put(key, res); evicted {
		metrics.CacheEvictions.WithLabelValues("result").Inc()
	}
}

func (e *Engine) analyze(text, normalized string, useContext bool, start time.Time) *outcome {
	e.mu.RLock()
	cfg := e.cfg
	router := e.router
	extractor := e.extractor
	results := e.results
	e.mu.RUnlock()

	th := e.Thresholds()
	if cfg.EnableFastPath {
		if m, ok := router.FastPath(normalized, th.FastPath); ok {
			e.stats.fastPathHits.Add(1)
			return &outcome{result: fastResult(m, normalized), fastPath: true, cacheable: true, results: results}
		}
	}

	e.stats.detailedRuns.Add(1)
	res, fromContext := e.detailed(router, extractor, text, normalized, useContext, th.Confidence)
	if cfg.EnableAdaptiveThresholds {
		e.observe(time.Since(start))
	}
	return &outcome{result: res, cacheable: !fromContext, results: results}
}

func fastResult(m patterns.FastMatch, normalized string) *analysis.QuestionAnalysis {
	t := m.Rule.Type
	return &analysis.QuestionAnalysis{
		IsQuestion:   true,
		Confidence:   m.Confidence,
		QuestionType: t,
		SubType:      analysis.ClassifySubType(t, nil, normalized),
		Patterns: []analysis.PatternMatch{{
			RuleID:     m.Rule.ID,
			Position:   m.Position,
			Confidence: m.Confidence,
			Weight:     m.Rule.Weight,
		}},
		Intent:          analysis.DeriveIntent(t, normalized),
		Complexity:      analysis.DeriveComplexity(normalized, 0),
		RequiresContext: analysis.RequiresContext(normalized),
		Timestamp:       time.Now(),
	}
}

// detailed combines the pattern, keyword and context signals. The strongest
// signal decides both confidence and type. It reports whether the context
// signal won, since such a verdict depends on session state.
func (e *Engine) detailed(router *patterns.Router, extractor *entities.Extractor, text, normalized string, useContext bool, threshold float64) (*analysis.QuestionAnalysis, bool) {
	found := extractor.Extract(text)
	ps := router.ScorePatterns(normalized)
	ks := e.keywords.Score(normalized, found)

	confidence, qtype := ps.Confidence, analysis.QuestionType("")
	if ps.Best != nil {
		qtype = ps.Best.Type
	}
	if ks.Confidence > confidence {
		confidence, qtype = ks.Confidence, ks.Type
	}

	fromContext := false
	if useContext {
		cs := analysis.ScoreContext(normalized, confidence, e.session.Recent())
		if cs.Confidence > confidence {
			confidence, qtype = cs.Confidence, cs.Type
			fromContext = true
		}
	}

	if confidence < threshold {
		return nil, fromContext
	}
	if !qtype.Valid() {
		qtype = analysis.Conversational
	}

	return &analysis.QuestionAnalysis{
		IsQuestion:      true,
		Confidence:      confidence,
		QuestionType:    qtype,
		SubType:         analysis.ClassifySubType(qtype, found, normalized),
		Patterns:        ps.Matches,
		Entities:        found,
		Intent:          analysis.DeriveIntent(qtype, normalized),
		Complexity:      analysis.DeriveComplexity(normalized, len(found)),
		RequiresContext: fromContext || analysis.RequiresContext(normalized),
		Timestamp:       time.Now(),
	}, fromContext
}

func (e *Engine) observe(latency time.Duration) {
	dir := e.tuner.Observe(latency)
	if dir == tuner.Hold {
		return
	}
	th := e.tuner.Snapshot()
	metrics.AdaptiveAdjustments.WithLabelValues(dir.String()).Inc()
	e.publishThresholds(th)
	e.log.Debug("Thresholds adjusted",
		zap.String("direction", dir.String()),
		zap.Duration("latency", latency),
		zap.Float64("confidence_threshold", th.Confidence),
		zap.Float64("fast_path_threshold", th.FastPath),
	)
}

func (e *Engine) publishThresholds(th tuner.Thresholds) {
	metrics.Thresholds.WithLabelValues("confidence").Set(th.Confidence)
	metrics.Thresholds.WithLabelValues("fast_path").Set(th.FastPath)
}

// complete records one finished Detect call. record is false for callers
// that joined a shared run, so the session sees each computed verdict once.
func (e *Engine) complete(text string, res *analysis.QuestionAnalysis, start time.Time, path string, fastPath, cacheHit, record bool) {
	elapsed := time.Since(start)
	e.stats.completed.Add(1)
	e.stats.processingNs.Add(int64(elapsed))
	metrics.DetectionDuration.WithLabelValues(path).Observe(elapsed.Seconds())

	if res != nil {
		e.stats.questions.Add(1)
		if record {
			e.session.Record(text, res)
		}
		metrics.DetectionsTotal.WithLabelValues("question").Inc()
		metrics.QuestionTypes.WithLabelValues(string(res.QuestionType)).Inc()
		metrics.ConfidenceScore.Observe(res.Confidence)
	} else {
		metrics.DetectionsTotal.WithLabelValues("not_question").Inc()
	}

	ev := events.New(events.AnalysisCompleted)
	ev.Text = text
	ev.Result = res
	ev.Duration = elapsed
	ev.FastPath = fastPath
	ev.CacheHit = cacheHit
	e.bus.Publish(ev)
}

func (e *Engine) fail(text string, err error) {
	e.stats.errors.Add(1)
	metrics.AnalysisErrors.Inc()
	metrics.DetectionsTotal.WithLabelValues("error").Inc()
	e.log.Error("Question analysis failed", zap.Error(err), zap.Int("text_length", len(text)))

	ev := events.New(events.AnalysisError)
	ev.Text = text
	ev.Error = err.Error()
	e.bus.Publish(ev)
}

// Thresholds returns the thresholds in force: the tuner's when adaptive
// thresholds are enabled, the configured ones otherwise.
func (e *Engine) Thresholds() tuner.Thresholds {
	e.mu.RLock()
	cfg := e.cfg
	e.mu.RUnlock()
	if cfg.EnableAdaptiveThresholds {
		return e.tuner.Snapshot()
	}
	return cfg.thresholds()
}

func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

func (e *Engine) resultCache() *cache.LRU[*analysis.QuestionAnalysis] {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.results
}

// Subscribe registers for engine events. See events.Bus.Subscribe.
func (e *Engine) Subscribe(buffer int) (<-chan events.Event, func()) {
	return e.bus.Subscribe(buffer)
}

// ResetContext forgets the recent questions and entities used for
// follow-up scoring.
func (e *Engine) ResetContext() {
	e.session.Reset()
}

func (e *Engine) Session() *analysis.SessionContext {
	return e.session
}

// Close rejects queued work with ErrEngineDestroyed and stops background
// sweeping. Running analyses finish; use Shutdown to wait for them.
func (e *Engine) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.sched.Close()
	e.stopSweeper()
	e.session.Reset()
	if e.ownsBus {
		e.bus.Close()
	}
	e.log.Info("Question detector closed")
}

func (e *Engine) Shutdown(ctx context.Context) error {
	e.Close()
	return e.sched.Shutdown(ctx)
}
