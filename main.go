package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"link-verify-system/handlers"
	"link-verify-system/middleware"
	"link-verify-system/models"
	"link-verify-system/services"
	"link-verify-system/workers"

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

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Referral{},
		&models.RedeemCode{},
		&models.Redemption{},
		&models.DailyUsage{},
		&models.DailyUserUsage{},
		&models.Broadcast{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	verifierURL := os.Getenv("VERIFIER_URL")
	if verifierURL == "" {
		log.Fatal("VERIFIER_URL environment variable not set")
	}
	chatGatewayURL := os.Getenv("CHAT_GATEWAY_URL")
	if chatGatewayURL == "" {
		log.Fatal("CHAT_GATEWAY_URL environment variable not set")
	}
	serviceToken := os.Getenv("BOT_SERVICE_TOKEN")

	ledger := services.NewLedgerService(db,
		envInt64("GLOBAL_DAILY_LIMIT", 1200),
		envInt64("USER_DAILY_LIMIT", 24),
	)

	app := fiber.New(fiber.Config{})

	// Liveness probe stays open: registered ahead of the gateway auth so
	// the platform prober is not 401'd.
	handlers.SetupHealthRoutes(app, ledger)

	// 🔐 GLOBAL: only gateway requests allowed — no other exceptions
	app.Use(middleware.GatewayAuthMiddleware())
	app.Use(cors.New())

	queue := services.NewJobQueue(int(envInt64("QUEUE_CAPACITY", 100)))
	registry := services.NewProxyRegistry(3)
	registry.SetPaths(services.LoadProxyList())

	verifier := services.NewHTTPVerifier(verifierURL, serviceToken)
	notifier := services.NewChatGatewayNotifier(chatGatewayURL, serviceToken)

	verifyService := services.NewVerifyService(ledger, queue, notifier)
	adminService := services.NewAdminService(db, ledger, queue, registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := workers.NewVerifyWorker(queue, ledger, registry, verifier, notifier)
	worker.Start(ctx)

	probeURL := os.Getenv("PROXY_PROBE_URL")
	if probeURL == "" {
		probeURL = "https://services.sheerid.com"
	}
	monitor := workers.NewProxyMonitor(registry, probeURL)
	monitor.Start(ctx)

	broadcaster := workers.NewBroadcastWorker(db, notifier)
	broadcaster.Start(ctx)

	handlers.SetupVerifyRoutes(app, verifyService)
	handlers.SetupAdminRoutes(app, adminService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Verify worker running (strictly one job at a time)")
	log.Println("✅ Proxy health monitor running")
	log.Println("✅ Broadcast dispatcher running")

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}

func envInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return v
}
