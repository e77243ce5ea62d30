package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/cardstream/payments-api/internal/auth"
	"github.com/cardstream/payments-api/internal/config"
	"github.com/cardstream/payments-api/internal/database"
	"github.com/cardstream/payments-api/internal/gateway"
	"github.com/cardstream/payments-api/internal/payments"
	"github.com/cardstream/payments-api/pkg/middleware"

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

// main initializes and runs the payments API server with graceful shutdown
// support. It wires the gateway client, the payments facade and all API
// routes.
func main() {
	cfg := config.Load()

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	gatewayClient := gateway.NewSimulator(cfg.GatewayHost, cfg.GatewayClient,
		cfg.GatewayPassword, cfg.UseCV2AVS, cfg.CaptureMethod)

	facade := payments.NewFacade(gatewayClient, db, cfg.Currency, nil)
	paymentHandlers := payments.NewGinHandlers(facade)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg, authHandlers, paymentHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
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
// Routes are grouped by functionality:
// - Auth routes: Public endpoints for authentication
// - Payment routes: Protected by JWT authentication
func setupRoutes(
	router *gin.Engine,
	cfg config.Config,
	authHandlers *auth.GinHandlers,
	paymentHandlers *payments.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Payment routes
		pay := v1.Group("/payments")
		pay.Use(middleware.JWTAuth(cfg.JWTSecret))
		{
			pay.POST("/:order_number/pre-auth", paymentHandlers.PreAuthoriseHandler())
			pay.POST("/:order_number/authorise", paymentHandlers.AuthoriseHandler())
			pay.POST("/:order_number/fulfill", paymentHandlers.FulfillHandler())
			pay.POST("/:order_number/refund", paymentHandlers.RefundHandler())
			pay.POST("/:order_number/refund-txn", paymentHandlers.RefundTransactionHandler())
			pay.POST("/:order_number/cancel", paymentHandlers.CancelHandler())
			pay.GET("/:order_number/transactions", paymentHandlers.GetTransactionsHandler())
		}
	}
}
