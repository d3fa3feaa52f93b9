package middleware

import (
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SSEAuthMiddleware validates `token` from query params for the ledger
// event stream. EventSource clients cannot set headers, so the dashboard
// passes the service token (and its user id) in the query instead.
//
// Usage:
//
//	app.Get("/events/stream", middleware.SSEAuthMiddleware(), eventService.StreamLedgerEventsSSE)
func SSEAuthMiddleware() fiber.Handler {
	expectedToken := os.Getenv("LEDGER_SERVICE_TOKEN")

	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		userID := strings.TrimSpace(c.Query("user_id"))

		if token == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token in query",
			})
		}

		if token != expectedToken {
			log.Printf("[SSEAuth] ❌ Invalid stream token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}
