package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"score-ingest-system/handlers"
	"score-ingest-system/middleware"
	"score-ingest-system/models"
	"score-ingest-system/services"
	"score-ingest-system/utils"
	"score-ingest-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("failed to build logger:", err)
	}
	defer logger.Sync()

	app := fiber.New(fiber.Config{
		BodyLimit: 64 * 1024 * 1024, // large batch imports
	})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitArchive(); err != nil {
		log.Fatal("failed to initialize payload archive client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	orphanThreshold := 2
	if v := os.Getenv("ORPHAN_CHART_THRESHOLD"); v != "" {
		if n, convErr := strconv.Atoi(v); convErr == nil {
			orphanThreshold = n
		}
	}

	catalogService := services.NewCatalogService(db, logger)
	orphanService := services.NewOrphanService(db, catalogService, logger)
	pbService := services.NewPBService(db, logger)
	sessionService := services.NewSessionService(db, logger)
	profileService := services.NewProfileService(db, logger)
	importService := services.NewImportService(db, catalogService, orphanService, pbService, sessionService, profileService, orphanThreshold, logger)
	revertService := services.NewRevertService(db, pbService, sessionService, profileService, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweepWorker := workers.NewOrphanSweepWorker(importService)
	sweepWorker.Start(ctx)

	profileService.StartStatsScheduler()

	handlers.SetupImportRoutes(app, importService, revertService, orphanService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Orphan Sweep Worker running")
	log.Println("✅ Profile stats scheduler running (every 1m)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	if utils.ArchiveEnabled() {
		log.Println("✅ Import payload archiving to R2 enabled")
	}

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
