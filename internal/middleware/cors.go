package middleware

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// preflight responses are cached by the browser for ten minutes.
const corsMaxAge = 600

// CORS lets the admin consoles in CORS_ORIGINS call the queue API. The API
// only reads and posts, and reviewers authenticate with a bearer token or
// the admin token header, never cookies.
func CORS(cfg *config.Config) fiber.Handler {
	origins := strings.TrimSpace(cfg.CORSOrigins)
	if origins == "" {
		origins = "*"
	}
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: strings.Join([]string{fiber.MethodGet, fiber.MethodPost, fiber.MethodOptions}, ","),
		AllowHeaders: strings.Join([]string{
			fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept,
			fiber.HeaderAuthorization, AdminTokenHeader,
		}, ","),
		ExposeHeaders: strings.Join([]string{
			fiber.HeaderXRequestID, fiber.HeaderRetryAfter,
			"X-RateLimit-Limit", "X-RateLimit-Remaining",
		}, ","),
		MaxAge: corsMaxAge,
	})
}
