package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/query-router/backend/internal/middleware/validation"
	"github.com/query-router/backend/internal/query"
)

type ChatHandler struct {
	engine *query.Engine
}

func NewChatHandler(engine *query.Engine) *ChatHandler {
	return &ChatHandler{
		engine: engine,
	}
}

// chatQuery prefers the query the validation middleware already cleaned.
func chatQuery(c *fiber.Ctx) (string, error) {
	if q, ok := c.Locals(validation.SanitizedQueryKey).(string); ok {
		return q, nil
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := c.BodyParser(&req); err != nil {
		return "", err
	}
	return strings.TrimSpace(req.Query), nil
}

func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	q, err := chatQuery(c)
	if err != nil {
		return badRequest(c, "invalid request body")
	}

	resp, err := h.engine.Route(c.UserContext(), query.Request{Query: q})
	if err != nil {
		return respondError(c, err, "failed to process query")
	}

	return c.JSON(resp)
}

func (h *ChatHandler) Classify(c *fiber.Ctx) error {
	q, err := chatQuery(c)
	if err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.engine.ClassifyOnly(c.UserContext(), q)
	if err != nil {
		return respondError(c, err, "failed to classify query")
	}

	return c.JSON(res)
}

func (h *ChatHandler) Decompose(c *fiber.Ctx) error {
	q, err := chatQuery(c)
	if err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.engine.DecomposeOnly(c.UserContext(), q)
	if err != nil {
		return respondError(c, err, "failed to decompose query")
	}

	return c.JSON(fiber.Map{
		"original_query": q,
		"decomposition":  res,
	})
}
