package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"healthshare/internal/lifecycle"
)

// jsonSuccess returns a 200 response with data wrapped in the standard envelope.
func jsonSuccess(c fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"data":   data,
	})
}

// jsonError returns an error response with the given HTTP status code.
func jsonError(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status": "error",
		"error":  message,
	})
}

// jsonEngineError maps the lifecycle error taxonomy onto HTTP statuses for
// the owner-facing API. Busy and storage failures are retryable; nothing
// below leaks store internals.
func jsonEngineError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, lifecycle.ErrInvalidConfig):
		return jsonError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidState):
		return jsonError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrNotFound):
		return jsonError(c, fiber.StatusNotFound, "share not found")
	case errors.Is(err, lifecycle.ErrBusy):
		return jsonError(c, fiber.StatusServiceUnavailable, "share busy, retry")
	default:
		return jsonError(c, fiber.StatusInternalServerError, "share storage unavailable, retry")
	}
}
