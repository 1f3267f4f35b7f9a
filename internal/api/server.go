package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/wysRocket/dao-copilot-sub005/internal/api/handlers"
	"github.com/wysRocket/dao-copilot-sub005/internal/detector"
	"github.com/wysRocket/dao-copilot-sub005/internal/metrics"
	"github.com/wysRocket/dao-copilot-sub005/internal/middleware/ratelimit"
	"github.com/wysRocket/dao-copilot-sub005/internal/middleware/security"
	"github.com/wysRocket/dao-copilot-sub005/internal/middleware/validation"
	"github.com/wysRocket/dao-copilot-sub005/internal/storage/sqlite"
	"github.com/wysRocket/dao-copilot-sub005/internal/transcript"
	"github.com/wysRocket/dao-copilot-sub005/pkg/config"
	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
)

type Options struct {
	Server      config.ServerConfig
	Engine      *detector.Engine
	History     *sqlite.Client
	RateLimiter *ratelimit.RateLimiter
	AccessLog   bool
}

// NewApp builds the HTTP surface. History routes are only mounted when an
// audit log is configured.
func NewApp(opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(opts.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(opts.Server.WriteTimeout) * time.Second,
		BodyLimit:             opts.Server.BodyLimit,
		DisableStartupMessage: true,
	})

	origins := opts.Server.AllowedOrigins
	if origins == "" {
		origins = "*"
	}

	app.Use(recover.New())
	if opts.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Session-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: strings.Split(origins, ","),
		IsDevelopment:  opts.Server.IsDevelopment,
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	segmenter := transcript.NewSegmenter(opts.Server.MaxTextLength)
	detectHandler := handlers.NewDetectHandler(opts.Engine, segmenter, opts.Server.MaxBatchSize)
	adminHandler := handlers.NewAdminHandler(opts.Engine)
	wsHandler := handlers.NewWebSocketHandler(opts.Engine)

	api := app.Group("/api/v1")
	if opts.RateLimiter != nil {
		api.Use(opts.RateLimiter.Middleware())
	}
	api.Use(validation.Middleware(validation.Config{
		MaxTextLength: opts.Server.MaxTextLength,
		MaxBatchSize:  opts.Server.MaxBatchSize,
		Logger:        logger.Named("validation"),
	}))

	api.Post("/detect", detectHandler.Detect)
	api.Post("/detect/batch", detectHandler.DetectBatch)
	api.Post("/detect/transcript", detectHandler.DetectTranscript)

	api.Get("/metrics", adminHandler.GetMetrics)
	api.Get("/config", adminHandler.GetConfig)
	api.Put("/config", adminHandler.UpdateConfig)
	api.Get("/context", adminHandler.GetContext)
	api.Post("/context/reset", adminHandler.ResetContext)
	api.Delete("/cache", adminHandler.ClearCache)

	if opts.History != nil {
		historyHandler := handlers.NewHistoryHandler(opts.History)
		api.Get("/history", historyHandler.GetHistory)
		api.Get("/history/stats", historyHandler.GetStats)
	}

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		m := opts.Engine.Metrics()
		return c.JSON(fiber.Map{
			"status":      "ready",
			"queue_depth": m.QueueDepth,
			"thresholds":  m.Thresholds,
		})
	})

	app.Use("/ws", handlers.Upgrade)
	app.Get("/ws/detect", websocket.New(wsHandler.HandleConnection))

	return app
}
