// handlers/investment_routes.go
package handlers

import (
	"property-ledger-system/middleware"
	"property-ledger-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupInvestmentRoutes(app *fiber.App, investmentService *services.InvestmentService) {
	// 🔓 Public routes — aggregate reads only
	app.Get("/properties/:id/totals", investmentService.HandleGetPropertyTotals)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/properties/:id/invest", investmentService.HandleInvest)
	secured.Post("/properties/:id/refund", investmentService.HandleClaimRefund)
	secured.Post("/proposals/:proposal_id/vote", investmentService.HandleCastVote)

	// Secondary market
	secured.Post("/properties/:id/listings", investmentService.HandleCreateListing)
	secured.Delete("/properties/:id/listings", investmentService.HandleCancelListing)
	secured.Patch("/properties/:id/listings/price", investmentService.HandleUpdateListingPrice)
	secured.Post("/properties/:id/listings/:seller/purchase", investmentService.HandlePurchaseShares)
	secured.Get("/properties/:id/available-shares", investmentService.HandleGetAvailableShares)
	secured.Get("/properties/:id/can-list", investmentService.HandleCanListShares)

	// Position reads
	secured.Get("/properties/:id/investment", investmentService.HandleGetUserInvestment)
	secured.Get("/properties/:id/ownership", investmentService.HandleGetOwnershipBPS)
	secured.Get("/portfolio", investmentService.HandleGetPortfolio)

	// Admin surface
	secured.Post("/investments/pause", investmentService.HandlePause)
	secured.Post("/investments/unpause", investmentService.HandleUnpause)
}
