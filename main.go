package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"property-ledger-system/handlers"
	"property-ledger-system/middleware"
	"property-ledger-system/models"
	"property-ledger-system/services"
	"property-ledger-system/utils"
	"property-ledger-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 64 * 1024 * 1024, // 64MB — deed scans and photos
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Property{},
		&models.PropertyDocument{},
		&models.ShareListing{},
		&models.VerificationCheck{},
		&models.Investment{},
		&models.PropertyTotals{},
		&models.UserPortfolio{},
		&models.RefundClaim{},
		&models.LiquidationClaim{},
		&models.InvestorStatus{},
		&models.RentalPayment{},
		&models.PeriodClaim{},
		&models.PlatformConfig{},
		&models.GovernanceProposal{},
		&models.ProposalVote{},
		&models.Admin{},
		&models.GovernanceConfig{},
		&models.GovernanceAction{},
		&models.ActionApproval{},
		&models.EmergencyDeclaration{},
		&models.LedgerState{},
		&models.LedgerEvent{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// Construction order matters: only the investment and rental services
	// receive the ledger-writer capability.
	governanceService := services.NewGovernanceService(db)
	propertyService := services.NewPropertyService(db, governanceService)
	ledgerStore := services.NewLedgerStore(db)
	investmentService := services.NewInvestmentService(db, ledgerStore, propertyService, governanceService)
	rentalService := services.NewRentalService(db, ledgerStore, investmentService, governanceService)
	eventStream := services.NewEventStreamService(db)

	// --- CONFIGURE Compliance Sync Details ---
	complianceURL := os.Getenv("COMPLIANCE_SERVICE_URL")
	if complianceURL == "" {
		log.Fatal("COMPLIANCE_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("LEDGER_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("LEDGER_SERVICE_TOKEN environment variable not set")
	}
	// --- END CONFIG ---

	investorSyncWorker := workers.NewInvestorSyncWorker(db, complianceURL, "/api/v1/public/investors", serviceToken)

	heightSyncClient := workers.NewHeightSyncClient(db)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go workers.PollHeight(ctx, heightSyncClient, 10*time.Second)

	go func() {
		log.Println("Starting Investor Sync Worker...")
		investorSyncWorker.Start(ctx)
	}()

	propertyService.StartFundingScheduler()

	// ✅ Setup routes — enforced Gateway auth on everything
	handlers.SetupPropertyRoutes(app, propertyService)
	handlers.SetupInvestmentRoutes(app, investmentService)
	handlers.SetupRentalRoutes(app, rentalService)
	handlers.SetupGovernanceRoutes(app, governanceService, eventStream)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Investor Sync Worker running")
	log.Println("✅ Ledger height polling running (every 10s)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
