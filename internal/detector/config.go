package detector

import (
	"fmt"
	"reflect"
	"time"

	"github.com/wysRocket/dao-copilot-sub005/internal/patterns"
	"github.com/wysRocket/dao-copilot-sub005/internal/tuner"
	"github.com/wysRocket/dao-copilot-sub005/pkg/config"
)

type Config struct {
	ConfidenceThreshold      float64          `json:"confidence_threshold"`
	FastPathThreshold        float64          `json:"fast_path_threshold"`
	MinQuestionLength        int              `json:"min_question_length"`
	CacheSize                int              `json:"cache_size"`
	CacheTTL                 time.Duration    `json:"cache_ttl"`
	CompressCacheKeys        bool             `json:"compress_cache_keys"`
	MaxConcurrentOperations  int              `json:"max_concurrent_operations"`
	PerformanceTarget        time.Duration    `json:"performance_target"`
	EnableFastPath           bool             `json:"enable_fast_path"`
	EnableAdaptiveThresholds bool             `json:"enable_adaptive_thresholds"`
	MaxEntityCacheSize       int              `json:"max_entity_cache_size"`
	EntityCacheTTL           time.Duration    `json:"entity_cache_ttl"`
	EnableNER                bool             `json:"enable_ner"`
	SweepInterval            time.Duration    `json:"sweep_interval"`
	Patterns                 patterns.Options `json:"patterns"`
	Adaptive                 tuner.Config     `json:"adaptive"`
}

func DefaultConfig() Config {
	adaptive := tuner.DefaultConfig()
	return Config{
		ConfidenceThreshold:      0.7,
		FastPathThreshold:        0.85,
		MinQuestionLength:        3,
		CacheSize:                1000,
		CacheTTL:                 5 * time.Minute,
		MaxConcurrentOperations:  5,
		PerformanceTarget:        adaptive.Target,
		EnableFastPath:           true,
		EnableAdaptiveThresholds: true,
		MaxEntityCacheSize:       500,
		EntityCacheTTL:           10 * time.Minute,
		SweepInterval:            time.Minute,
		Patterns:                 patterns.DefaultOptions(),
		Adaptive:                 adaptive,
	}
}

// FromSettings maps the loaded service configuration onto engine options.
func FromSettings(s config.DetectorConfig) Config {
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = s.ConfidenceThreshold
	cfg.FastPathThreshold = s.FastPathThreshold
	cfg.MinQuestionLength = s.MinQuestionLength
	cfg.CacheSize = s.CacheSize
	cfg.CacheTTL = s.CacheTTL
	cfg.CompressCacheKeys = s.CompressCacheKeys
	cfg.MaxConcurrentOperations = s.MaxConcurrentOperations
	cfg.PerformanceTarget = time.Duration(s.PerformanceTargetMs) * time.Millisecond
	cfg.EnableFastPath = s.EnableFastPath
	cfg.EnableAdaptiveThresholds = s.EnableAdaptiveThresholds
	cfg.MaxEntityCacheSize = s.MaxEntityCacheSize
	cfg.EntityCacheTTL = s.EntityCacheTTL
	cfg.EnableNER = s.EnableNER
	cfg.SweepInterval = s.SweepInterval

	cfg.Patterns.BaseFastPathConfidence = s.BaseFastPathConfidence
	cfg.Patterns.FastPathBoost = s.FastPathBoost
	cfg.Patterns.DisabledRules = append([]string(nil), s.DisabledRules...)

	a := s.Adaptive
	cfg.Adaptive = tuner.Config{
		Target:        cfg.PerformanceTarget,
		Tolerance:     a.Tolerance,
		RaiseStep:     a.RaiseStep,
		LowerStep:     a.LowerStep,
		WarmupSamples: a.WarmupSamples,
		Confidence:    tuner.Bounds{Min: a.ConfidenceMin, Max: a.ConfidenceMax},
		FastPath:      tuner.Bounds{Min: a.FastPathMin, Max: a.FastPathMax},
	}
	return cfg
}

func (c Config) Validate() error {
	switch {
	case c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1:
		return fmt.Errorf("confidence threshold must be in (0,1], got %v", c.ConfidenceThreshold)
	case c.FastPathThreshold <= 0 || c.FastPathThreshold > 1:
		return fmt.Errorf("fast path threshold must be in (0,1], got %v", c.FastPathThreshold)
	case c.MinQuestionLength < 1:
		return fmt.Errorf("min question length must be positive, got %d", c.MinQuestionLength)
	case c.CacheSize < 1:
		return fmt.Errorf("cache size must be positive, got %d", c.CacheSize)
	case c.CacheTTL < 0 || c.EntityCacheTTL < 0:
		return fmt.Errorf("cache ttl must not be negative")
	case c.MaxConcurrentOperations < 1:
		return fmt.Errorf("max concurrent operations must be positive, got %d", c.MaxConcurrentOperations)
	case c.PerformanceTarget <= 0:
		return fmt.Errorf("performance target must be positive, got %v", c.PerformanceTarget)
	case c.MaxEntityCacheSize < 1:
		return fmt.Errorf("entity cache size must be positive, got %d", c.MaxEntityCacheSize)
	}
	return c.tunerConfig().Validate()
}

func (c Config) tunerConfig() tuner.Config {
	t := c.Adaptive
	t.Target = c.PerformanceTarget
	return t
}

func (c Config) thresholds() tuner.Thresholds {
	return tuner.Thresholds{Confidence: c.ConfidenceThreshold, FastPath: c.FastPathThreshold}
}

// diff names the option groups that differ between two configs.
func diff(old, next Config) []string {
	var changes []string
	if old.CacheSize != next.CacheSize || old.CacheTTL != next.CacheTTL || old.CompressCacheKeys != next.CompressCacheKeys {
		changes = append(changes, "cache")
	}
	if old.MaxEntityCacheSize != next.MaxEntityCacheSize || old.EntityCacheTTL != next.EntityCacheTTL || old.EnableNER != next.EnableNER {
		changes = append(changes, "entities")
	}
	if !reflect.DeepEqual(old.Patterns, next.Patterns) {
		changes = append(changes, "patterns")
	}
	if old.MaxConcurrentOperations != next.MaxConcurrentOperations {
		changes = append(changes, "concurrency")
	}
	if old.thresholds() != next.thresholds() || old.EnableAdaptiveThresholds != next.EnableAdaptiveThresholds ||
		old.PerformanceTarget != next.PerformanceTarget || old.Adaptive != next.Adaptive {
		changes = append(changes, "thresholds")
	}
	if old.SweepInterval != next.SweepInterval {
		changes = append(changes, "sweep")
	}
	if old.EnableFastPath != next.EnableFastPath || old.MinQuestionLength != next.MinQuestionLength {
		changes = append(changes, "routing")
	}
	return changes
}
