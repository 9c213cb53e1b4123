package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"healthshare/internal/lifecycle"
)

// AccessHandler serves the anonymous share link endpoint.
type AccessHandler struct {
	engine *lifecycle.Engine
}

// NewAccessHandler creates a new public access handler.
func NewAccessHandler(engine *lifecycle.Engine) *AccessHandler {
	return &AccessHandler{engine: engine}
}

// Access validates the token and records the access. Every denial collapses
// into one generic response: an anonymous caller learns nothing about
// whether the link ever existed, expired, or was revoked.
func (h *AccessHandler) Access(c fiber.Ctx) error {
	result, err := h.engine.RecordAccess(c.Context(), c.Params("token"))
	if err != nil {
		if errors.Is(err, lifecycle.ErrBusy) {
			return jsonError(c, fiber.StatusServiceUnavailable, "link busy, retry")
		}
		// NotFound and storage failures look the same from outside.
		return h.unavailable(c)
	}
	if !result.Granted {
		return h.unavailable(c)
	}

	share := result.Record
	return jsonSuccess(c, fiber.Map{
		"subject_id":   share.SubjectID,
		"kind":         share.Kind,
		"expires_at":   share.ExpiresAt,
		"access_count": share.AccessCount,
	})
}

// unavailable is the single response for every denied or unknown link.
func (h *AccessHandler) unavailable(c fiber.Ctx) error {
	return jsonError(c, fiber.StatusNotFound, "link unavailable")
}
