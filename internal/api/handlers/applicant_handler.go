package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/query-router/backend/internal/analysis"
	"github.com/query-router/backend/internal/storage/models"
	"github.com/query-router/backend/internal/storage/sqlstore"
)

type ApplicantHandler struct {
	store    *sqlstore.Store
	analyzer *analysis.Analyzer
}

func NewApplicantHandler(store *sqlstore.Store, analyzer *analysis.Analyzer) *ApplicantHandler {
	return &ApplicantHandler{
		store:    store,
		analyzer: analyzer,
	}
}

func (h *ApplicantHandler) List(c *fiber.Ctx) error {
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		return respondError(c, err, "invalid skip")
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil {
		return respondError(c, err, "invalid limit")
	}

	applicants, err := h.store.ListApplicants(c.UserContext(), skip, limit)
	if err != nil {
		return respondError(c, err, "failed to list applicants")
	}
	total, err := h.store.CountApplicants(c.UserContext())
	if err != nil {
		return respondError(c, err, "failed to count applicants")
	}

	return c.JSON(fiber.Map{
		"total": total,
		"items": applicants,
	})
}

func (h *ApplicantHandler) Get(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}

	a, err := h.store.GetApplicant(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, "failed to get applicant")
	}
	return c.JSON(a)
}

func (h *ApplicantHandler) Create(c *fiber.Ctx) error {
	var a models.Applicant
	if err := c.BodyParser(&a); err != nil {
		return badRequest(c, "invalid request body")
	}
	a.ID = 0

	if a.Reason == nil && a.Experience == nil && a.Skill == nil {
		return badRequest(c, "at least one of reason, experience or skill is required")
	}

	if err := h.store.CreateApplicant(c.UserContext(), &a); err != nil {
		return respondError(c, err, "failed to create applicant")
	}
	return c.Status(fiber.StatusCreated).JSON(a)
}

func (h *ApplicantHandler) Delete(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}

	if err := h.store.DeleteApplicant(c.UserContext(), id); err != nil {
		return respondError(c, err, "failed to delete applicant")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// applicantPatch leaves fields that are absent from the body unchanged.
type applicantPatch struct {
	Reason     *string `json:"reason"`
	Experience *string `json:"experience"`
	Skill      *string `json:"skill"`
}

func (h *ApplicantHandler) Update(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}

	var in applicantPatch
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid request body")
	}

	var updated *models.Applicant
	err = h.store.WithTx(c.UserContext(), func(q *sqlstore.Queries) error {
		a, err := q.GetApplicant(c.UserContext(), id)
		if err != nil {
			return err
		}
		if in.Reason != nil {
			a.Reason = in.Reason
		}
		if in.Experience != nil {
			a.Experience = in.Experience
		}
		if in.Skill != nil {
			a.Skill = in.Skill
		}
		updated = a
		return q.UpdateApplicant(c.UserContext(), a)
	})
	if err != nil {
		return respondError(c, err, "failed to update applicant")
	}
	return c.JSON(updated)
}

func (h *ApplicantHandler) Summary(c *fiber.Ctx) error {
	return h.analyze(c, "failed to summarize applicant", func(ctx context.Context, id int64) (any, error) {
		return h.analyzer.Summarize(ctx, id)
	})
}

func (h *ApplicantHandler) Keywords(c *fiber.Ctx) error {
	return h.analyze(c, "failed to extract keywords", func(ctx context.Context, id int64) (any, error) {
		return h.analyzer.ExtractKeywords(ctx, id)
	})
}

func (h *ApplicantHandler) InterviewQuestions(c *fiber.Ctx) error {
	return h.analyze(c, "failed to generate interview questions", func(ctx context.Context, id int64) (any, error) {
		return h.analyzer.GenerateInterviewQuestions(ctx, id)
	})
}

func (h *ApplicantHandler) analyze(c *fiber.Ctx, msg string, fn func(ctx context.Context, id int64) (any, error)) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, err, "invalid id")
	}

	res, err := fn(c.UserContext(), id)
	if err != nil {
		return respondError(c, err, msg)
	}
	return c.JSON(res)
}
