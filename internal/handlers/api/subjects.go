package api

import (
	"github.com/gofiber/fiber/v3"

	"healthshare/internal/lifecycle"
)

// SubjectHandler receives readiness callbacks from the proof generation
// service.
type SubjectHandler struct {
	engine *lifecycle.Engine
}

// NewSubjectHandler creates a new subject handler.
func NewSubjectHandler(engine *lifecycle.Engine) *SubjectHandler {
	return &SubjectHandler{engine: engine}
}

// Ready marks a subject's pending shares active. The generation service
// calls back once per subject; duplicates are harmless no-ops.
func (h *SubjectHandler) Ready(c fiber.Ctx) error {
	subjectID := c.Params("subjectId")
	if subjectID == "" {
		return jsonError(c, fiber.StatusBadRequest, "subject id is required")
	}

	if err := h.engine.Activate(c.Context(), subjectID); err != nil {
		return jsonEngineError(c, err)
	}

	return jsonSuccess(c, fiber.Map{
		"message": "subject ready",
	})
}
