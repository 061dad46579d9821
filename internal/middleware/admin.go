package middleware

import (
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/auth"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/dto"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/services"
	"github.com/gofiber/fiber/v2"
)

const AdminTokenHeader = "X-Admin-Token"

// AdminRequired lets the request through when authz grants the JWT subject
// (or the presented admin token) and stores the resulting worker for the
// queue handlers.
func AdminRequired(authz services.Authorizer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := auth.GetIdentity(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		token := c.Get(AdminTokenHeader)
		if err := authz.RequireAdmin(c.UserContext(), identity.UserID, token); err != nil {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: true, Message: "Admin access required",
			})
		}

		auth.SetWorker(c, services.Worker{
			UserID:      identity.UserID,
			DisplayName: identity.DisplayName,
			PhotoURL:    identity.PhotoURL,
			AuthToken:   token,
		})
		return c.Next()
	}
}
