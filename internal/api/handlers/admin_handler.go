package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wysRocket/dao-copilot-sub005/internal/detector"
	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
)

// AdminHandler exposes engine state: metrics, configuration, session
// context and caches.
type AdminHandler struct {
	engine *detector.Engine
}

func NewAdminHandler(engine *detector.Engine) *AdminHandler {
	return &AdminHandler{engine: engine}
}

func (h *AdminHandler) GetMetrics(c *fiber.Ctx) error {
	return c.JSON(h.engine.Metrics())
}

func (h *AdminHandler) GetConfig(c *fiber.Ctx) error {
	return c.JSON(h.engine.Config())
}

// ConfigPatch carries the options that may change at runtime. Nil fields
// keep their current value.
type ConfigPatch struct {
	ConfidenceThreshold      *float64 `json:"confidence_threshold"`
	FastPathThreshold        *float64 `json:"fast_path_threshold"`
	MinQuestionLength        *int     `json:"min_question_length"`
	CacheSize                *int     `json:"cache_size"`
	CacheTTLMs               *int64   `json:"cache_ttl_ms"`
	CompressCacheKeys        *bool    `json:"compress_cache_keys"`
	MaxConcurrentOperations  *int     `json:"max_concurrent_operations"`
	PerformanceTargetMs      *int64   `json:"performance_target_ms"`
	EnableFastPath           *bool    `json:"enable_fast_path"`
	EnableAdaptiveThresholds *bool    `json:"enable_adaptive_thresholds"`
	EnableNER                *bool    `json:"enable_ner"`
	DisabledRules            []string `json:"disabled_rules"`
}

func (p ConfigPatch) Apply(cfg detector.Config) detector.Config {
	if p.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.FastPathThreshold != nil {
		cfg.FastPathThreshold = *p.FastPathThreshold
	}
	if p.MinQuestionLength != nil {
		cfg.MinQuestionLength = *p.MinQuestionLength
	}
	if p.CacheSize != nil {
		cfg.CacheSize = *p.CacheSize
	}
	if p.CacheTTLMs != nil {
		cfg.CacheTTL = time.Duration(*p.CacheTTLMs) * time.Millisecond
	}
	if p.CompressCacheKeys != nil {
		cfg.CompressCacheKeys = *p.CompressCacheKeys
	}
	if p.MaxConcurrentOperations != nil {
		cfg.MaxConcurrentOperations = *p.MaxConcurrentOperations
	}
	if p.PerformanceTargetMs != nil {
		cfg.PerformanceTarget = time.Duration(*p.PerformanceTargetMs) * time.Millisecond
	}
	if p.EnableFastPath != nil {
		cfg.EnableFastPath = *p.EnableFastPath
	}
	if p.EnableAdaptiveThresholds != nil {
		cfg.EnableAdaptiveThresholds = *p.EnableAdaptiveThresholds
	}
	if p.EnableNER != nil {
		cfg.EnableNER = *p.EnableNER
	}
	if p.DisabledRules != nil {
		cfg.Patterns.DisabledRules = append([]string(nil), p.DisabledRules...)
	}
	return cfg
}

func (h *AdminHandler) UpdateConfig(c *fiber.Ctx) error {
	var patch ConfigPatch
	if err := c.BodyParser(&patch); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	cfg := patch.Apply(h.engine.Config())
	if err := h.engine.UpdateConfig(cfg); err != nil {
		logger.Warn("Rejected detector configuration", zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(h.engine.Config())
}

func (h *AdminHandler) GetContext(c *fiber.Ctx) error {
	session := h.engine.Session()
	return c.JSON(fiber.Map{
		"recent_questions": session.Recent(),
		"entities":         session.Entities(),
	})
}

func (h *AdminHandler) ResetContext(c *fiber.Ctx) error {
	h.engine.ResetContext()
	return c.JSON(fiber.Map{
		"status": "reset",
	})
}

func (h *AdminHandler) ClearCache(c *fiber.Ctx) error {
	h.engine.ClearCache()
	return c.JSON(fiber.Map{
		"status": "cleared",
	})
}
