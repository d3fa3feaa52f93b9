// handlers/governance_routes.go
package handlers

import (
	"property-ledger-system/middleware"
	"property-ledger-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupGovernanceRoutes(app *fiber.App, governanceService *services.GovernanceService, eventStream *services.EventStreamService) {
	// 🔓 Public routes
	app.Get("/governance/admins/:principal", governanceService.HandleIsAdmin)
	app.Get("/governance/actions/:id", governanceService.HandleGetAction)
	app.Get("/governance/emergency", governanceService.HandleGetEmergencyStats)
	app.Get("/governance/emergency/can-trigger", governanceService.HandleCanTriggerEmergency)
	app.Get("/events", eventStream.HandleGetRecentEvents)

	// SSE uses a query-param token because EventSource cannot set headers
	app.Get("/events/stream", middleware.SSEAuthMiddleware(), eventStream.StreamLedgerEventsSSE)

	// 🔐 Authenticated routes (admin checks inside the service)
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/governance/initialize", governanceService.HandleInitializeAdmins)
	secured.Post("/governance/actions", governanceService.HandleProposeAction)
	secured.Post("/governance/actions/:id/approve", governanceService.HandleApproveAction)
	secured.Post("/governance/actions/:id/execute", governanceService.HandleExecuteAction)
	secured.Post("/governance/emergency", governanceService.HandleDeclareEmergency)
	secured.Post("/governance/verification-criteria", governanceService.HandleSetVerificationCriteria)
	secured.Post("/properties/:id/verification-checks", governanceService.HandleRecordVerificationCheck)
}
