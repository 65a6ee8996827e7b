package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/fewshot"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/internal/storage/sqlstore"
)

type FewShotHandler struct {
	store   *sqlstore.Store
	service *fewshot.Service
}

func NewFewShotHandler(store *sqlstore.Store, service *fewshot.Service) *FewShotHandler {
	return &FewShotHandler{
		store:   store,
		service: service,
	}
}

func (h *FewShotHandler) List(c *fiber.Ctx) error {
	filter := models.FewShotFilter{Intent: c.Query("intent_type")}
	if raw := c.Query("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "is_active must be a boolean")
		}
		filter.Active = &active
	}

	examples, err := h.store.ListFewShots(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err, "failed to list few-shot examples")
	}
	return c.JSON(examples)
}

func (h *FewShotHandler) Get(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}

	ex, err := h.store.GetFewShot(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "failed to get few-shot example")
	}
	return c.JSON(ex)
}

func (h *FewShotHandler) Create(c *fiber.Ctx) error {
	var in fewshot.CreateInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	ex, err := h.service.Create(c.UserContext(), in)
	if err != nil {
		return respondError(c, err, "failed to create few-shot example")
	}
	return c.Status(fiber.StatusCreated).JSON(ex)
}

func (h *FewShotHandler) Update(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}

	var in fewshot.UpdateInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	ex, err := h.service.Update(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err, "failed to update few-shot example")
	}
	return c.JSON(ex)
}

func (h *FewShotHandler) Delete(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}

	if err := h.service.Delete(c.UserContext(), id, c.Query("changed_by")); err != nil {
		return respondError(c, err, "failed to delete few-shot example")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *FewShotHandler) Audit(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return respondError(c, err, "invalid limit")
	}

	audits, err := h.service.ListAudit(c.UserContext(), id, limit)
	if err != nil {
		return respondError(c, err, "failed to list audit history")
	}
	return c.JSON(audits)
}

func (h *FewShotHandler) AuditAll(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		return respondError(c, err, "invalid limit")
	}
	if limit > 1000 {
		return respondError(c, apperrors.Invalid("limit must be at most 1000"), "invalid limit")
	}

	audits, err := h.service.ListAllAudit(c.UserContext(), c.Query("action"), limit)
	if err != nil {
		return respondError(c, err, "failed to list audit history")
	}
	return c.JSON(audits)
}
