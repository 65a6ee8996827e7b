package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/internal/storage/sqlstore"
)

type IntentHandler struct {
	store *sqlstore.Store
}

func NewIntentHandler(store *sqlstore.Store) *IntentHandler {
	return &IntentHandler{
		store: store,
	}
}

type intentRuleInput struct {
	Keyword     *string `json:"keyword"`
	IntentType  *string `json:"intent_type"`
	Priority    *int    `json:"priority"`
	Description *string `json:"description"`
}

// apply copies the set fields onto rule and validates the result.
func (in intentRuleInput) apply(rule *models.IntentKeywordRule) error {
	if in.Keyword != nil {
		rule.Keyword = strings.TrimSpace(*in.Keyword)
	}
	if in.IntentType != nil {
		rule.IntentType = *in.IntentType
	}
	if in.Priority != nil {
		rule.Priority = *in.Priority
	}
	if in.Description != nil {
		rule.Description = in.Description
	}

	if rule.Keyword == "" {
		return apperrors.Invalid("keyword is required")
	}
	if !rule.Intent().Valid() {
		return apperrors.Invalid("unknown intent %q", rule.IntentType)
	}
	return nil
}

func (h *IntentHandler) List(c *fiber.Ctx) error {
	rules, err := h.store.ListIntentRules(c.UserContext())
	if err != nil {
		return respondError(c, err, "failed to list intent rules")
	}
	return c.JSON(rules)
}

func (h *IntentHandler) Get(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}

	rule, err := h.store.GetIntentRule(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "failed to get intent rule")
	}
	return c.JSON(rule)
}

func (h *IntentHandler) Create(c *fiber.Ctx) error {
	var in intentRuleInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	rule := &models.IntentKeywordRule{}
	if err := in.apply(rule); err != nil {
		return respondError(c, err, "invalid intent rule")
	}

	if err := h.store.CreateIntentRule(c.UserContext(), rule); err != nil {
		return respondError(c, err, "failed to create intent rule")
	}
	return c.Status(fiber.StatusCreated).JSON(rule)
}

func (h *IntentHandler) Update(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}

	var in intentRuleInput
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx := c.UserContext()
	var rule *models.IntentKeywordRule
	err = h.store.WithTx(ctx, func(q *sqlstore.Queries) error {
		r, err := q.GetIntentRule(ctx, id)
		if err != nil {
			return err
		}
		if err := in.apply(r); err != nil {
			return err
		}
		rule = r
		return q.UpdateIntentRule(ctx, r)
	})
	if err != nil {
		return respondError(c, err, "failed to update intent rule")
	}
	return c.JSON(rule)
}

func (h *IntentHandler) Delete(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}

	if err := h.store.DeleteIntentRule(c.UserContext(), id); err != nil {
		return respondError(c, err, "failed to delete intent rule")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
