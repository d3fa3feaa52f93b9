// handlers/rental_routes.go
package handlers

import (
	"property-ledger-system/middleware"
	"property-ledger-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRentalRoutes(app *fiber.App, rentalService *services.RentalService) {
	// 🔓 Public routes — per-period payment reads
	app.Get("/properties/:id/rentals", rentalService.HandleGetPropertyPayments)
	app.Get("/properties/:id/rentals/:year/:month", rentalService.HandleGetPayment)

	// 🔐 Authenticated routes
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/properties/:id/rentals", rentalService.HandleDeposit)
	secured.Post("/properties/:id/rentals/:year/:month/distribute", rentalService.HandleDistribute)
	secured.Post("/properties/:id/rentals/:year/:month/claim", rentalService.HandleClaim)
	secured.Get("/properties/:id/rentals/:year/:month/claim", rentalService.HandleGetClaim)
	secured.Get("/properties/:id/rentals/:year/:month/claimable", rentalService.HandleGetClaimable)

	// Admin surface (admin check inside the service)
	secured.Post("/rentals/deposit-override", rentalService.HandleDepositOverride)
	secured.Post("/rentals/emergency-withdraw", rentalService.HandleEmergencyWithdraw)
	secured.Post("/rentals/platform-wallet", rentalService.HandleSetPlatformWallet)
	secured.Post("/rentals/pause", rentalService.HandleSetPaused(true))
	secured.Post("/rentals/unpause", rentalService.HandleSetPaused(false))
}
