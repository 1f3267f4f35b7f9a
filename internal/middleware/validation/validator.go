package validation

import (
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxTextLength       int
	MaxBatchSize        int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware checks content types on writes and the shape of detection
// requests before they reach the engine.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxTextLength == 0 {
		cfg.MaxTextLength = 2000
	}
	if cfg.MaxBatchSize == 0 {
		cfg.MaxBatchSize = 50
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get(fiber.HeaderContentType)
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		path := c.Path()

		switch {
		case strings.HasSuffix(path, "/detect/batch"):
			var req struct {
				Texts []string `json:"texts"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			if len(req.Texts) > cfg.MaxBatchSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Batch exceeds maximum size",
				})
			}
			for _, text := range req.Texts {
				if err := checkText(text, cfg.MaxTextLength); err != "" {
					cfg.Logger.Debug("Rejected batch item", zap.String("ip", c.IP()), zap.String("reason", err))
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": err,
					})
				}
			}

		case strings.HasSuffix(path, "/detect/transcript"):
			var req struct {
				Text string `json:"text"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}
			if strings.TrimSpace(req.Text) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Text is required and must be a string",
				})
			}
			if err := checkText(req.Text, cfg.MaxTextLength*cfg.MaxBatchSize); err != "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err,
				})
			}

		case strings.HasSuffix(path, "/detect"):
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			text, ok := req["text"].(string)
			if !ok || strings.TrimSpace(text) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Text is required and must be a string",
				})
			}

			if err := checkText(text, cfg.MaxTextLength); err != "" {
				cfg.Logger.Debug("Rejected detection request", zap.String("ip", c.IP()), zap.String("reason", err))
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": err,
				})
			}
		}

		return c.Next()
	}
}

func checkText(text string, maxLength int) string {
	if !utf8.ValidString(text) {
		return "Text must be valid UTF-8"
	}
	if strings.ContainsRune(text, 0) {
		return "Text must not contain NUL bytes"
	}
	if utf8.RuneCountInString(text) > maxLength {
		return "Text exceeds maximum length"
	}
	return ""
}
