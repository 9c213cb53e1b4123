package middleware

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// OwnerMiddleware resolves the share owner from the identity header set by
// the authenticating ingress. Authentication itself happens upstream; this
// service only trusts the header contract.
type OwnerMiddleware struct {
	header string
}

// NewOwnerMiddleware creates a middleware reading the given header name.
func NewOwnerMiddleware(header string) *OwnerMiddleware {
	return &OwnerMiddleware{header: header}
}

// RequireOwner ensures the request carries a valid owner id and stores it
// in the request locals.
func (m *OwnerMiddleware) RequireOwner(c fiber.Ctx) error {
	raw := c.Get(m.header)
	if raw == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status": "error",
			"error":  "missing owner identity",
		})
	}

	ownerID, err := uuid.Parse(raw)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status": "error",
			"error":  "invalid owner identity",
		})
	}

	c.Locals("owner_id", ownerID)
	return c.Next()
}

// OwnerID extracts the owner id stored by RequireOwner.
func OwnerID(c fiber.Ctx) (uuid.UUID, bool) {
	id, ok := c.Locals("owner_id").(uuid.UUID)
	return id, ok
}
