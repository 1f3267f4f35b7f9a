package tuner

import (
	"fmt"
	"math"
	"sync"
	"time"
)

type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (b Bounds) clamp(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

type Config struct {
	Target        time.Duration
	Tolerance     float64
	RaiseStep     float64
	LowerStep     float64
	WarmupSamples int
	Confidence    Bounds
	FastPath      Bounds
}

func DefaultConfig() Config {
	return Config{
		Target:        50 * time.Millisecond,
		Tolerance:     0.2,
		RaiseStep:     0.02,
		LowerStep:     0.01,
		WarmupSamples: 10,
		Confidence:    Bounds{Min: 0.5, Max: 0.9},
		FastPath:      Bounds{Min: 0.7, Max: 0.95},
	}
}

func (c Config) Validate() error {
	switch {
	case c.Target <= 0:
		return fmt.Errorf("tuner target must be positive, got %v", c.Target)
	case c.Tolerance < 0 || c.Tolerance >= 1:
		return fmt.Errorf("tuner tolerance must be in [0,1), got %v", c.Tolerance)
	case c.RaiseStep < 0 || c.LowerStep < 0:
		return fmt.Errorf("tuner steps must not be negative")
	case c.Confidence.Min > c.Confidence.Max:
		return fmt.Errorf("confidence bounds inverted: %v > %v", c.Confidence.Min, c.Confidence.Max)
	case c.FastPath.Min > c.FastPath.Max:
		return fmt.Errorf("fast path bounds inverted: %v > %v", c.FastPath.Min, c.FastPath.Max)
	}
	return nil
}

// Thresholds is read and written as one value so callers never see a
// confidence threshold from one adjustment paired with a fast path
// threshold from another.
type Thresholds struct {
	Confidence float64 `json:"confidence"`
	FastPath   float64 `json:"fast_path"`
}

type Direction int

const (
	Hold Direction = iota
	Raised
	Lowered
)

func (d Direction) String() string {
	switch d {
	case Raised:
		return "raised"
	case Lowered:
		return "lowered"
	default:
		return "hold"
	}
}

// Tuner nudges the thresholds after every detailed-path run. Slow runs raise
// both thresholds by RaiseStep; fast runs past the warm-up lower them by
// the smaller LowerStep. Both stay inside their bounds.
type Tuner struct {
	mu          sync.RWMutex
	cfg         Config
	current     Thresholds
	samples     int
	adjustments uint64
}

func New(cfg Config, initial Thresholds) *Tuner {
	t := &Tuner{}
	t.Reconfigure(cfg, initial)
	return t
}

func (t *Tuner) Observe(latency time.Duration) Direction {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples++
	target := float64(t.cfg.Target)
	actual := float64(latency)

	var next Thresholds
	var dir Direction
	switch {
	case actual > target*(1+t.cfg.Tolerance):
		next = Thresholds{
			Confidence: t.cfg.Confidence.clamp(round(t.current.Confidence + t.cfg.RaiseStep)),
			FastPath:   t.cfg.FastPath.clamp(round(t.current.FastPath + t.cfg.RaiseStep)),
		}
		dir = Raised
	case actual < target*(1-t.cfg.Tolerance) && t.samples > t.cfg.WarmupSamples:
		next = Thresholds{
			Confidence: t.cfg.Confidence.clamp(round(t.current.Confidence - t.cfg.LowerStep)),
			FastPath:   t.cfg.FastPath.clamp(round(t.current.FastPath - t.cfg.LowerStep)),
		}
		dir = Lowered
	default:
		return Hold
	}

	if next == t.current {
		return Hold
	}
	t.current = next
	t.adjustments++
	return dir
}

func (t *Tuner) Snapshot() Thresholds {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

func (t *Tuner) Adjustments() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.adjustments
}

func (t *Tuner) Samples() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.samples
}

func (t *Tuner) Config() Config {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg
}

// Reconfigure installs new bounds and restarts from initial, clamped. The
// warm-up starts over; the adjustment count is kept.
func (t *Tuner) Reconfigure(cfg Config, initial Thresholds) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cfg = cfg
	t.current = Thresholds{
		Confidence: cfg.Confidence.clamp(initial.Confidence),
		FastPath:   cfg.FastPath.clamp(initial.FastPath),
	}
	t.samples = 0
}

// round drops float noise from repeated small steps.
func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
