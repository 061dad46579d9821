// Package auth reads the reviewer identity that the JWT middleware stores
// in Fiber locals.
package auth

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const workerKey = "worker"

var ErrNoIdentity = errors.New("no identity in request")

// Identity is what the queue needs to know about a caller.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	PhotoURL    string
}

// GetUserID extracts the sub claim from the JWT in context.
func GetUserID(c *fiber.Ctx) (string, error) {
	id, err := GetIdentity(c)
	if err != nil {
		return "", err
	}
	return id.UserID, nil
}

// GetIdentity reads sub, email, name and picture claims.
func GetIdentity(c *fiber.Ctx) (Identity, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok || token == nil {
		return Identity{}, ErrNoIdentity
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid claims")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Identity{}, errors.New("missing sub claim")
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)

	return Identity{UserID: sub, Email: email, DisplayName: name, PhotoURL: picture}, nil
}

// SetWorker stores the authorized worker for downstream handlers.
func SetWorker(c *fiber.Ctx, w services.Worker) {
	c.Locals(workerKey, w)
}

// GetWorker returns the worker stored by SetWorker.
func GetWorker(c *fiber.Ctx) (services.Worker, bool) {
	w, ok := c.Locals(workerKey).(services.Worker)
	return w, ok
}
