// handlers/property_routes.go
package handlers

import (
	"property-ledger-system/middleware"
	"property-ledger-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupPropertyRoutes(app *fiber.App, propertyService *services.PropertyService) {
	// 🔓 Public routes — *no user context*, but **still require Gateway auth**
	app.Get("/properties", propertyService.HandleGetAllProperties)
	app.Get("/properties/:id", propertyService.HandleGetProperty)
	app.Get("/properties/:id/funding", propertyService.HandleGetFundingInfo)
	app.Get("/properties/:id/listings", propertyService.HandleGetPropertyListings)
	app.Get("/properties/:id/listings/:seller", propertyService.HandleGetShareListing)
	app.Get("/properties/:id/proposals", propertyService.HandleGetPropertyProposals)
	app.Get("/proposals/:proposal_id", propertyService.HandleGetProposal)

	// Deadline settlement is idempotent and permissionless — anyone may
	// poke an expired window; the scheduler sweeps the rest.
	app.Post("/properties/:id/check-deadline", propertyService.HandleCheckFundingDeadline)

	// 🔐 Secured routes — require user context (userID, roles)
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/properties", propertyService.HandleSubmitProperty)
	secured.Post("/properties/:id/release-funds", propertyService.HandleReleaseFunds)
	secured.Post("/properties/:id/proposals", propertyService.HandleCreateProposal)
	secured.Post("/proposals/:proposal_id/execute", propertyService.HandleExecuteProposal)
	secured.Post("/properties/:id/liquidation/claim", propertyService.HandleClaimLiquidationProceeds)

	// Admin surface (admin check inside the service)
	secured.Post("/properties/:id/verify", propertyService.HandleVerifyProperty)
	secured.Delete("/properties/:id/listings/:seller", propertyService.HandleAdminCancelListing)
	secured.Post("/registry/investors/:user_id/whitelist", propertyService.HandleWhitelistInvestor)
	secured.Post("/registry/investors/:user_id/blacklist", propertyService.HandleBlacklistInvestor)
	secured.Post("/registry/pause", propertyService.HandlePause)
	secured.Post("/registry/unpause", propertyService.HandleUnpause)
}
