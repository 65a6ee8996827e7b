package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/middleware/validation"
	"github.com/query-router/backend/internal/query"
	"github.com/query-router/backend/pkg/logger"
)

type WebSocketHandler struct {
	engine         *query.Engine
	timeout        time.Duration
	maxQueryLength int
}

func NewWebSocketHandler(engine *query.Engine, timeout time.Duration, maxQueryLength int) *WebSocketHandler {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &WebSocketHandler{
		engine:         engine,
		timeout:        timeout,
		maxQueryLength: maxQueryLength,
	}
}

type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "query" {
			continue
		}

		if err := h.streamResponse(c, msg.Content); err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			if h.sendError(c, err) != nil {
				break
			}
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, raw string) error {
	queryText, err := validation.ValidateQuery(raw, h.maxQueryLength)
	if err != nil {
		logger.Warn("Rejected websocket query", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.send(c, map[string]any{"type": "status", "content": "Processing query..."}); err != nil {
		return err
	}

	resp, err := h.engine.Route(ctx, query.Request{Query: queryText})
	if err != nil {
		return err
	}

	words := splitIntoWords(resp.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}
		if err := h.send(c, map[string]any{"type": "chunk", "content": chunk}); err != nil {
			return err
		}
	}

	return h.send(c, map[string]any{
		"type":       "complete",
		"request_id": resp.RequestID,
		"log_id":     resp.LogID,
		"intent":     resp.Intent,
		"tier":       resp.Tier,
		"sources":    resp.Sources,
		"sql":        resp.SQL,
		"latency_ms": resp.LatencyMS,
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msg map[string]any) error {
	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, err error) error {
	msg := map[string]any{
		"type":  "error",
		"error": "failed to process query",
	}
	if stage, ok := apperrors.StageOf(err); ok {
		msg["stage"] = stage
	} else {
		msg["error"] = err.Error()
	}
	return c.WriteJSON(msg)
}

// splitIntoWords keeps newlines as their own tokens so the client can
// reassemble paragraphs.
func splitIntoWords(text string) []string {
	var words []string
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			words = append(words, "\n")
		}
		words = append(words, strings.Fields(line)...)
	}
	return words
}
