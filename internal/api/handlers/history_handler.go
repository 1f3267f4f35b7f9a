package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wysRocket/dao-copilot-sub005/internal/storage/models"
	"github.com/wysRocket/dao-copilot-sub005/internal/storage/sqlite"
	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
)

const maxHistoryLimit = 500

type HistoryHandler struct {
	store *sqlite.Client
}

func NewHistoryHandler(store *sqlite.Client) *HistoryHandler {
	return &HistoryHandler{store: store}
}

func (h *HistoryHandler) GetHistory(c *fiber.Ctx) error {
	filter := models.HistoryFilter{
		Limit:         c.QueryInt("limit", 50),
		QuestionsOnly: c.QueryBool("questions_only", false),
		QuestionType:  strings.ToLower(c.Query("type")),
	}
	if filter.Limit > maxHistoryLimit {
		filter.Limit = maxHistoryLimit
	}

	if since := c.Query("since"); since != "" {
		d, err := time.ParseDuration(since)
		if err != nil || d <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "since must be a positive duration such as 15m or 24h",
			})
		}
		filter.Since = time.Now().Add(-d)
	}

	records, err := h.store.RecentAnalyses(c.UserContext(), filter)
	if err != nil {
		logger.Error("Failed to load analysis history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	return c.JSON(fiber.Map{
		"history": records,
		"count":   len(records),
	})
}

func (h *HistoryHandler) GetStats(c *fiber.Ctx) error {
	window := 24 * time.Hour
	if since := c.Query("since"); since != "" {
		d, err := time.ParseDuration(since)
		if err != nil || d <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "since must be a positive duration such as 15m or 24h",
			})
		}
		window = d
	}

	counts, err := h.store.CountByType(c.UserContext(), time.Now().Add(-window))
	if err != nil {
		logger.Error("Failed to aggregate analysis history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load stats",
		})
	}

	return c.JSON(fiber.Map{
		"window": window.String(),
		"types":  counts,
	})
}
