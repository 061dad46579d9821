package middleware_test

import (
	"net/http/httptest"
	"testing"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/config"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const consoleOrigin = "https://admin.example.com"

func corsApp() *fiber.App {
	app := fiber.New()
	app.Use(middleware.CORS(&config.Config{CORSOrigins: consoleOrigin}))
	app.Post("/api/admin/queues/:task_type/checkout", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestCORSPreflightAllowsAdminTokenHeader(t *testing.T) {
	req := httptest.NewRequest(fiber.MethodOptions, "/api/admin/queues/user_reports/checkout", nil)
	req.Header.Set(fiber.HeaderOrigin, consoleOrigin)
	req.Header.Set(fiber.HeaderAccessControlRequestMethod, fiber.MethodPost)
	req.Header.Set(fiber.HeaderAccessControlRequestHeaders, middleware.AdminTokenHeader)

	resp, err := corsApp().Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, consoleOrigin, resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
	assert.Contains(t, resp.Header.Get(fiber.HeaderAccessControlAllowHeaders), middleware.AdminTokenHeader)
	methods := resp.Header.Get(fiber.HeaderAccessControlAllowMethods)
	assert.Contains(t, methods, fiber.MethodPost)
	assert.NotContains(t, methods, fiber.MethodDelete)
	assert.Equal(t, "600", resp.Header.Get(fiber.HeaderAccessControlMaxAge))
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	req := httptest.NewRequest(fiber.MethodPost, "/api/admin/queues/user_reports/checkout", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://evil.example.com")

	resp, err := corsApp().Test(req)
	require.NoError(t, err)

	assert.Empty(t, resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}

func TestCORSExposesRequestID(t *testing.T) {
	req := httptest.NewRequest(fiber.MethodPost, "/api/admin/queues/user_reports/checkout", nil)
	req.Header.Set(fiber.HeaderOrigin, consoleOrigin)

	resp, err := corsApp().Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderAccessControlExposeHeaders), fiber.HeaderXRequestID)
}
