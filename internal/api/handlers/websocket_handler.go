package handlers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/wysRocket/dao-copilot-sub005/internal/detector"
	"github.com/wysRocket/dao-copilot-sub005/internal/events"
	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
)

const eventBuffer = 64

type WebSocketHandler struct {
	engine *detector.Engine
}

func NewWebSocketHandler(engine *detector.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

// Upgrade rejects plain HTTP requests on the stream route.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		c.Locals("events", c.QueryBool("events", false))
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

type wsMessage struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	UseContext bool   `json:"use_context"`
	ID         string `json:"id"`
}

// wsConn serialises writes; event forwarding and replies share the socket.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(v)
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	ctx, cancel := context.WithCancel(context.Background())
	out := &wsConn{conn: c}

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	if stream, _ := c.Locals("events").(bool); stream {
		ch, unsubscribe := h.engine.Subscribe(eventBuffer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer unsubscribe()
			h.forwardEvents(ctx, out, ch)
		}()
	}

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		reply, closeConn := h.handleMessage(ctx, msg)
		if err := out.WriteJSON(reply); err != nil {
			logger.Error("Failed to write WebSocket message", zap.Error(err))
			break
		}
		if closeConn {
			break
		}
	}
}

// handleMessage answers one client message. The bool reports whether the
// connection should close afterwards.
func (h *WebSocketHandler) handleMessage(ctx context.Context, msg wsMessage) (fiber.Map, bool) {
	switch msg.Type {
	case "detect":
		start := time.Now()
		res, err := h.engine.Detect(ctx, msg.Text, msg.UseContext)
		if err != nil {
			if errors.Is(err, detector.ErrEngineDestroyed) {
				return errorMessage(msg.ID, "Detector is shutting down"), true
			}
			logger.Error("Failed to detect question", zap.Error(err))
			return errorMessage(msg.ID, "Failed to process text"), false
		}
		return fiber.Map{
			"type":   "result",
			"id":     msg.ID,
			"result": newDetectResponse(msg.Text, res, time.Since(start)),
		}, false
	case "reset":
		h.engine.ResetContext()
		return fiber.Map{"type": "reset", "id": msg.ID}, false
	case "ping":
		return fiber.Map{"type": "pong", "id": msg.ID}, false
	default:
		return errorMessage(msg.ID, "Unknown message type"), false
	}
}

func (h *WebSocketHandler) forwardEvents(ctx context.Context, out *wsConn, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := out.WriteJSON(fiber.Map{"type": "event", "event": e}); err != nil {
				logger.Debug("Stopped forwarding events", zap.Error(err))
				return
			}
		}
	}
}

func errorMessage(id, msg string) fiber.Map {
	return fiber.Map{
		"type":  "error",
		"id":    id,
		"error": msg,
	}
}
