package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/pleyazul/oraculo-api/internal/auth"
	"github.com/pleyazul/oraculo-api/internal/config"
	"github.com/pleyazul/oraculo-api/internal/content"
	"github.com/pleyazul/oraculo-api/internal/database"
	"github.com/pleyazul/oraculo-api/internal/fulfillment"
	"github.com/pleyazul/oraculo-api/internal/notify"
	"github.com/pleyazul/oraculo-api/internal/payment"
	"github.com/pleyazul/oraculo-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the oracle fulfillment API server with graceful
// shutdown support. It loads the content catalog, picks the payment gateway
// for the configured mode and wires all services and routes.
func main() {
	// .env is optional; the environment wins
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	repo, err := content.Load(cfg.ContentDir)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load content catalog")
	}

	db, err := database.NewDatabase(cfg.DBPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// The gateway is a process-wide decision made once at startup.
	var gateway payment.Gateway
	if cfg.TestMode || !cfg.PayPal.Configured() {
		zlog.Info().Msg("running with mock payment gateway")
		gateway = payment.NewMockGateway()
	} else {
		gateway = payment.NewPayPalGateway(cfg.PayPal.ClientID, cfg.PayPal.Secret, cfg.PayPal.Env, cfg.PayPal.BaseURL)
	}

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Telegram.Configured() {
		notifier = notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	if cfg.AdminAPIKey != "" {
		authService.RegisterAPICredentials(cfg.AdminAPIKey, cfg.AdminAPISecret)
	} else {
		authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)
	}

	contentHandlers := content.NewGinHandlers(repo)

	fulfillmentService := fulfillment.NewService(db, repo, gateway, notifier, fulfillment.Config{
		Price:    cfg.Price(),
		Currency: cfg.Currency,
		TestMode: cfg.TestMode || !cfg.PayPal.Configured(),
	})
	fulfillmentHandlers := fulfillment.NewGinHandlers(fulfillmentService)

	// Create and start the order expiry processor
	expiryProcessor := fulfillment.NewProcessor(fulfillment.NewDatabase(db), cfg.ExpiryInterval, cfg.ExpiryTTL)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go expiryProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg, authHandlers, contentHandlers, fulfillmentHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Content routes: public catalog access
// - Order routes: checkout, payment confirmation and reading generation
// - Admin routes: protected by the admin JWT
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandlers *auth.GinHandlers,
	contentHandlers *content.GinHandlers,
	fulfillmentHandlers *fulfillment.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", statusHandler(cfg))

		v1.GET("/content/:type", contentHandlers.GetContentHandler())

		// Checkout and fulfillment
		v1.POST("/checkout", fulfillmentHandlers.CheckoutHandler())
		v1.POST("/payments/:order_id/capture", fulfillmentHandlers.CapturePaymentHandler())
		v1.POST("/paypal/mock-payment", fulfillmentHandlers.MockPaymentHandler())
		v1.POST("/readings/generate", fulfillmentHandlers.GenerateReadingHandler())
		v1.GET("/readings/:order_id", fulfillmentHandlers.GetReadingHandler())
		v1.POST("/demo/reading", fulfillmentHandlers.DemoReadingHandler())
		v1.GET("/orders", fulfillmentHandlers.ListOrdersHandler())
		v1.GET("/orders/:order_id", fulfillmentHandlers.GetOrderHandler())

		// Provider webhooks
		v1.POST("/webhooks/paypal", fulfillmentHandlers.PayPalWebhookHandler())

		// Admin routes
		admin := v1.Group("/admin")
		{
			admin.POST("/token", authHandlers.GenerateTokenHandler())

			protected := admin.Group("")
			protected.Use(middleware.AdminJWT(cfg.JWTSecret))
			{
				protected.POST("/content", contentHandlers.SaveContentHandler())
				protected.GET("/setup-status", setupStatusHandler(cfg))
			}
		}
	}
}

// statusHandler reports service health and which integrations are active
func statusHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   "Pleyazul Oráculos API",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"integrations": gin.H{
				"paypal":   cfg.PayPal.Configured(),
				"telegram": cfg.Telegram.Configured(),
				"testMode": cfg.TestMode,
			},
		})
	}
}

// setupStatusHandler reports the admin configuration state
func setupStatusHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"paypal_configured":   cfg.PayPal.Configured(),
			"telegram_configured": cfg.Telegram.Configured(),
			"test_mode":           cfg.TestMode,
			"admin_key_set":       cfg.AdminAPIKey != "",
		})
	}
}
