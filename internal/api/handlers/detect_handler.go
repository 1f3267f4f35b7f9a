package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wysRocket/dao-copilot-sub005/internal/analysis"
	"github.com/wysRocket/dao-copilot-sub005/internal/detector"
	"github.com/wysRocket/dao-copilot-sub005/internal/transcript"
	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
)

type DetectHandler struct {
	engine       *detector.Engine
	segmenter    *transcript.Segmenter
	maxBatchSize int
}

func NewDetectHandler(engine *detector.Engine, segmenter *transcript.Segmenter, maxBatchSize int) *DetectHandler {
	if maxBatchSize <= 0 {
		maxBatchSize = 50
	}
	return &DetectHandler{
		engine:       engine,
		segmenter:    segmenter,
		maxBatchSize: maxBatchSize,
	}
}

type detectResponse struct {
	Text       string                     `json:"text"`
	IsQuestion bool                       `json:"is_question"`
	Analysis   *analysis.QuestionAnalysis `json:"analysis,omitempty"`
	LatencyMS  float64                    `json:"latency_ms"`
}

func newDetectResponse(text string, res *analysis.QuestionAnalysis, elapsed time.Duration) detectResponse {
	return detectResponse{
		Text:       text,
		IsQuestion: res != nil && res.IsQuestion,
		Analysis:   res,
		LatencyMS:  float64(elapsed.Microseconds()) / 1000,
	}
}

func (h *DetectHandler) Detect(c *fiber.Ctx) error {
	var req struct {
		Text       string `json:"text"`
		UseContext bool   `json:"use_context"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if strings.TrimSpace(req.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Text is required",
		})
	}

	start := time.Now()
	res, err := h.engine.Detect(c.UserContext(), req.Text, req.UseContext)
	if err != nil {
		return h.engineError(c, err)
	}

	return c.JSON(newDetectResponse(req.Text, res, time.Since(start)))
}

func (h *DetectHandler) DetectBatch(c *fiber.Ctx) error {
	var req struct {
		Texts      []string `json:"texts"`
		UseContext bool     `json:"use_context"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if len(req.Texts) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Texts are required",
		})
	}
	if len(req.Texts) > h.maxBatchSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "Batch exceeds maximum size",
		})
	}

	start := time.Now()
	results, err := h.engine.DetectBatch(c.UserContext(), req.Texts, req.UseContext)
	if err != nil {
		return h.engineError(c, err)
	}
	elapsed := time.Since(start)

	out := make([]detectResponse, len(results))
	questions := 0
	for i, res := range results {
		out[i] = newDetectResponse(req.Texts[i], res, 0)
		if out[i].IsQuestion {
			questions++
		}
	}

	return c.JSON(fiber.Map{
		"results":    out,
		"questions":  questions,
		"latency_ms": float64(elapsed.Microseconds()) / 1000,
	})
}

// DetectTranscript splits free-running transcript text into utterances and
// classifies them in order, so follow-ups can lean on earlier questions.
func (h *DetectHandler) DetectTranscript(c *fiber.Ctx) error {
	var req struct {
		Text       string `json:"text"`
		UseContext bool   `json:"use_context"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	utterances, err := h.segmenter.Segment(req.Text)
	if err != nil {
		logger.Error("Failed to segment transcript", zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": "Failed to segment transcript",
		})
	}
	if len(utterances) > h.maxBatchSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "Transcript has too many utterances",
		})
	}

	type item struct {
		detectResponse
		Offset int `json:"offset"`
	}

	start := time.Now()
	out := make([]item, 0, len(utterances))
	questions := 0
	for _, u := range utterances {
		res, err := h.engine.Detect(c.UserContext(), u.Text, req.UseContext)
		if err != nil {
			return h.engineError(c, err)
		}
		r := newDetectResponse(u.Text, res, 0)
		if r.IsQuestion {
			questions++
		}
		out = append(out, item{detectResponse: r, Offset: u.Offset})
	}

	return c.JSON(fiber.Map{
		"utterances": out,
		"questions":  questions,
		"latency_ms": float64(time.Since(start).Microseconds()) / 1000,
	})
}

func (h *DetectHandler) engineError(c *fiber.Ctx, err error) error {
	if errors.Is(err, detector.ErrEngineDestroyed) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Detector is shutting down",
		})
	}

	logger.Error("Failed to detect question", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to process text",
	})
}
