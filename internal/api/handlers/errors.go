package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/query-router/backend/internal/apperrors"
	"github.com/query-router/backend/pkg/logger"
)

// respondError maps an error kind onto a status code. Stage failures and
// unreachable collaborators are reported as 502 with the failing stage.
func respondError(c *fiber.Ctx, err error, msg string) error {
	body := fiber.Map{"error": msg}
	status := fiber.StatusInternalServerError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status = fiber.StatusNotFound
		body["error"] = err.Error()
	case errors.Is(err, apperrors.ErrInvalidInput):
		status = fiber.StatusBadRequest
		body["error"] = err.Error()
	case errors.Is(err, apperrors.ErrIntegrityViolation):
		status = fiber.StatusConflict
		body["error"] = err.Error()
	default:
		if stage, ok := apperrors.StageOf(err); ok {
			status = fiber.StatusBadGateway
			body["stage"] = stage
		} else if errors.Is(err, apperrors.ErrCollaboratorUnavailable) {
			status = fiber.StatusBadGateway
		}
	}

	if status >= fiber.StatusInternalServerError {
		logger.Error(msg, zap.String("path", c.Path()), zap.Error(err))
	} else {
		logger.Debug(msg, zap.String("path", c.Path()), zap.Error(err))
	}

	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Invalid("invalid id %q", c.Params("id"))
	}
	return id, nil
}

func queryInt(c *fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.Invalid("%s must be a non-negative integer", key)
	}
	return n, nil
}
