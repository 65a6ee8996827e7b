package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/fewshot"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/internal/storage/sqlstore"
)

const maxQueryLogPage = 1000

type QueryLogHandler struct {
	store   *sqlstore.Store
	service *fewshot.Service
}

func NewQueryLogHandler(store *sqlstore.Store, service *fewshot.Service) *QueryLogHandler {
	return &QueryLogHandler{
		store:   store,
		service: service,
	}
}

func (h *QueryLogHandler) List(c *fiber.Ctx) error {
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		return respondError(c, err, "invalid skip")
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		return respondError(c, err, "invalid limit")
	}
	if limit < 1 || limit > maxQueryLogPage {
		return respondError(c, apperrors.Invalid("limit must be between 1 and %d", maxQueryLogPage), "invalid limit")
	}

	filter := models.QueryLogFilter{
		Intent: c.Query("intent"),
		Search: c.Query("search"),
		Offset: skip,
		Limit:  limit,
	}
	if raw := c.Query("promoted_only"); raw != "" {
		promoted, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "promoted_only must be a boolean")
		}
		filter.PromotedOnly = promoted
	}

	logs, total, err := h.store.ListQueryLogs(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err, "failed to list query logs")
	}

	return c.JSON(fiber.Map{
		"total": total,
		"items": logs,
	})
}

func (h *QueryLogHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.store.QueryLogStats(c.UserContext())
	if err != nil {
		return respondError(c, err, "failed to compute query log stats")
	}
	return c.JSON(stats)
}

func (h *QueryLogHandler) Get(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}

	log, err := h.store.GetQueryLog(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "failed to get query log")
	}
	return c.JSON(log)
}

func (h *QueryLogHandler) Delete(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}

	if err := h.service.DeleteQueryLog(c.UserContext(), id); err != nil {
		return respondError(c, err, "failed to delete query log")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *QueryLogHandler) Promote(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}

	var in fewshot.PromoteInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	ex, err := h.service.Promote(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err, "failed to promote query log")
	}
	return c.Status(fiber.StatusCreated).JSON(ex)
}
