package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goodcoins/backend/internal/audit"
	"github.com/goodcoins/backend/internal/config"
	"github.com/goodcoins/backend/internal/database"
	"github.com/goodcoins/backend/internal/handlers"
	mW "github.com/goodcoins/backend/internal/middleware"
	"github.com/goodcoins/backend/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title GoodCoins API
// @version 1.0
// @description Chores, coins and rewards for families
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	config.Init(".env")

	ctx := context.Background()

	db := database.InitDatabase(ctx)
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	redisClient := database.InitRedis(ctx)
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditLogger := audit.NewLogger()

	ledgerService := services.NewLedgerService(db, auditLogger)
	api := &handlers.API{
		Auth:       handlers.NewAuthHandler(services.NewAuthService(db, redisClient)),
		Accounts:   handlers.NewAccountHandler(services.NewAccountService(db)),
		Activities: handlers.NewActivityHandler(services.NewActivityService(db)),
		Rewards:    handlers.NewRewardHandler(services.NewRewardService(db, redisClient)),
		Ledger:     handlers.NewLedgerHandler(ledgerService),
		Vouchers:   handlers.NewVoucherHandler(services.NewVoucherService(db, redisClient, auditLogger)),
	}

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy", "database": "up", "redis": "up"}
		if err := db.PingContext(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = "down"
		}
		if redisClient == nil {
			status["redis"] = "disabled"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	})

	r.Handle("/metrics", promhttp.Handler())

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/openapi.yaml"),
	))

	// Serve OpenAPI spec
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yaml")
	})

	// Static file server for reward images
	r.Handle("/static/rewards/*", http.StripPrefix("/static/rewards/",
		mW.StaticFileServer("./static/rewards")))

	// API routes
	r.Route("/api/v1", api.Routes)

	port := viper.GetString("server.port")

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
