package api

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"healthshare/internal/config"
	"healthshare/internal/db"
	"healthshare/internal/lifecycle"
	"healthshare/internal/middleware"
	"healthshare/internal/models"
)

// ShareHandler exposes the owner-facing share lifecycle API.
type ShareHandler struct {
	db     *db.DB
	engine *lifecycle.Engine
	cfg    *config.Config
}

// NewShareHandler creates a new share handler.
func NewShareHandler(database *db.DB, engine *lifecycle.Engine, cfg *config.Config) *ShareHandler {
	return &ShareHandler{db: database, engine: engine, cfg: cfg}
}

type recipientBody struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// Create creates a new share for a proof or file bundle.
func (h *ShareHandler) Create(c fiber.Ctx) error {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var body struct {
		SubjectID             string          `json:"subject_id"`
		Kind                  string          `json:"kind"`
		Recipients            []recipientBody `json:"recipients"`
		ExpiresAt             *time.Time      `json:"expires_at"`
		AutoRevokeAfterAccess *int            `json:"auto_revoke_after_access"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if body.SubjectID == "" {
		return jsonError(c, fiber.StatusBadRequest, "subject_id is required")
	}

	recipients := make([]models.Recipient, 0, len(body.Recipients))
	for _, r := range body.Recipients {
		recipients = append(recipients, models.Recipient{Kind: r.Kind, Target: r.Target})
	}
	if len(recipients) == 0 {
		recipients = append(recipients, models.Recipient{Kind: models.RecipientPublicLink, Target: "public"})
	}

	expiresAt := body.ExpiresAt
	autoRevoke := body.AutoRevokeAfterAccess
	if body.Kind == models.KindFileBundle {
		expiresAt, autoRevoke = h.applyBundlePolicy(expiresAt, autoRevoke)
	}

	share, err := h.engine.Create(c.Context(), lifecycle.CreateParams{
		OwnerID:               ownerID,
		SubjectID:             body.SubjectID,
		Kind:                  body.Kind,
		Recipients:            recipients,
		ExpiresAt:             expiresAt,
		AutoRevokeAfterAccess: autoRevoke,
	})
	if err != nil {
		return jsonEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": "ok",
		"data": fiber.Map{
			"share": share,
			"link":  h.cfg.BaseURL + "/s/" + share.Token,
		},
	})
}

// applyBundlePolicy fills in the configured file bundle defaults and clamps
// the expiry to the policy cap.
func (h *ShareHandler) applyBundlePolicy(expiresAt *time.Time, autoRevoke *int) (*time.Time, *int) {
	now := time.Now()
	if expiresAt == nil {
		t := now.Add(h.cfg.BundleDefaultTTL)
		expiresAt = &t
	} else if maxExp := now.Add(h.cfg.BundleMaxTTL); expiresAt.After(maxExp) {
		expiresAt = &maxExp
	}
	if autoRevoke == nil && h.cfg.BundleDefaultAccess > 0 {
		n := h.cfg.BundleDefaultAccess
		autoRevoke = &n
	}
	return expiresAt, autoRevoke
}

// List returns the owner's shares, optionally filtered by status and a
// search string matched against subject and recipients.
func (h *ShareHandler) List(c fiber.Ctx) error {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	statusFilter := c.Query("status", "")
	if statusFilter != "" && !models.ValidStatus(statusFilter) {
		return jsonError(c, fiber.StatusBadRequest, "invalid status filter")
	}

	shares, err := h.db.ListShares(c.Context(), ownerID, statusFilter, c.Query("q", ""))
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch shares")
	}

	return jsonSuccess(c, shares)
}

// Stats returns the owner's dashboard aggregation.
func (h *ShareHandler) Stats(c fiber.Ctx) error {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	stats, err := h.db.GetShareStats(c.Context(), ownerID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch stats")
	}

	return jsonSuccess(c, stats)
}

// Get returns full share detail, including revocation reason and
// timestamps. Owner-only; the anonymous path never sees this.
func (h *ShareHandler) Get(c fiber.Ctx) error {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid share id")
	}

	share, err := h.db.GetOwnedShare(c.Context(), ownerID, id)
	if err != nil {
		if errors.Is(err, db.ErrShareNotFound) {
			return jsonError(c, fiber.StatusNotFound, "share not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch share")
	}

	return jsonSuccess(c, share)
}

// Accesses returns the access audit trail for one owned share.
func (h *ShareHandler) Accesses(c fiber.Ctx) error {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid share id")
	}

	if _, err := h.db.GetOwnedShare(c.Context(), ownerID, id); err != nil {
		if errors.Is(err, db.ErrShareNotFound) {
			return jsonError(c, fiber.StatusNotFound, "share not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch share")
	}

	entries, err := h.db.GetAccessLog(c.Context(), id, 200)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch access log")
	}

	return jsonSuccess(c, entries)
}

// Revoke revokes a single share. Revoking a share that is already terminal
// reports quiet success, so double-clicks and retries are safe.
func (h *ShareHandler) Revoke(c fiber.Ctx) error {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid share id")
	}

	if _, err := h.db.GetOwnedShare(c.Context(), ownerID, id); err != nil {
		if errors.Is(err, db.ErrShareNotFound) {
			return jsonError(c, fiber.StatusNotFound, "share not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch share")
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(c.Body(), &body)
	if body.Reason == "" {
		body.Reason = "revoked by owner"
	}

	share, err := h.engine.Revoke(c.Context(), id, body.Reason)
	if errors.Is(err, lifecycle.ErrAlreadyTerminal) {
		return jsonSuccess(c, fiber.Map{
			"share":            share,
			"already_terminal": true,
			"message":          "share already revoked or expired",
		})
	}
	if err != nil {
		return jsonEngineError(c, err)
	}

	return jsonSuccess(c, fiber.Map{
		"share":            share,
		"already_terminal": false,
		"message":          "share revoked",
	})
}

// BulkRevoke revokes a set of shares atomically and reports the partition
// of revoked, already-terminal and unknown ids.
func (h *ShareHandler) BulkRevoke(c fiber.Ctx) error {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var body struct {
		IDs    []uuid.UUID `json:"ids"`
		Reason string      `json:"reason"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(body.IDs) == 0 {
		return jsonError(c, fiber.StatusBadRequest, "ids is required")
	}
	if body.Reason == "" {
		body.Reason = "revoked by owner"
	}

	// Ids belonging to other owners are treated exactly like unknown ids.
	owned, err := h.db.FindOwnedShareIDs(c.Context(), ownerID, body.IDs)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "failed to resolve shares")
	}

	var foreign []uuid.UUID
	ownedIDs := make([]uuid.UUID, 0, len(body.IDs))
	for _, id := range body.IDs {
		if owned[id] {
			ownedIDs = append(ownedIDs, id)
		} else {
			foreign = append(foreign, id)
		}
	}

	result, err := h.engine.BulkRevoke(c.Context(), ownedIDs, body.Reason)
	if err != nil {
		return jsonEngineError(c, err)
	}
	result.NotFoundIDs = append(result.NotFoundIDs, foreign...)

	return jsonSuccess(c, result)
}

// SetExpiry updates expiry and auto-revoke settings on an active or pending
// share.
func (h *ShareHandler) SetExpiry(c fiber.Ctx) error {
	ownerID, ok := middleware.OwnerID(c)
	if !ok {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid share id")
	}

	if _, err := h.db.GetOwnedShare(c.Context(), ownerID, id); err != nil {
		if errors.Is(err, db.ErrShareNotFound) {
			return jsonError(c, fiber.StatusNotFound, "share not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "failed to fetch share")
	}

	var body struct {
		ExpiresAt             *time.Time `json:"expires_at"`
		AutoRevokeAfterAccess *int       `json:"auto_revoke_after_access"`
	}
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}

	share, err := h.engine.SetExpiry(c.Context(), id, body.ExpiresAt, body.AutoRevokeAfterAccess)
	if err != nil {
		return jsonEngineError(c, err)
	}

	return jsonSuccess(c, share)
}
