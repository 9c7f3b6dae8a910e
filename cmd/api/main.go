package main

import (
	"fmt"
	"log"

	"predictive-maintenance-api/config"
	"predictive-maintenance-api/handlers"
	"predictive-maintenance-api/middleware"
	"predictive-maintenance-api/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Core services
	authService := services.NewAuthService(cfg.JWT)

	users := services.NewUserStore()
	if err := users.SeedAdmin(authService, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}

	registry := services.NewRegistry()
	hub := services.NewHub()

	cache, err := services.NewCacheService(cfg.Redis)
	if err != nil {
		log.Printf("Redis unavailable, continuing without cache: %v", err)
	}
	defer cache.Close()

	predictor := services.NewPredictor(cfg.Model, registry, cache, hub)
	training := services.NewTrainingService(registry, hub)

	// Handlers
	authHandler := handlers.NewAuthHandler(users, authService)
	machinesHandler := handlers.NewMachinesHandler(registry, cache)
	predictHandler := handlers.NewPredictHandler(predictor)
	uploadHandler := handlers.NewUploadHandler(training, cfg.Upload.MaxBytes)
	healthHandler := handlers.NewHealthHandler(predictor)
	fleetHandler := handlers.NewFleetHandler(registry)

	// Router
	router := gin.Default()
	router.Use(middleware.SetupCORS(cfg.CORS))

	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws/live", handlers.LiveWebSocket(hub, authService))
	router.Static("/static", "./public")

	auth := router.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/signup", authHandler.Signup)
	}

	api := router.Group("/api", middleware.RequireAuth(authService))
	{
		api.GET("/machines", machinesHandler.GetMachines)
		api.GET("/machines/:id/history", machinesHandler.GetHistory)
		api.GET("/machines/:id/predictions.csv", machinesHandler.DownloadPredictionsCSV)
		api.POST("/predict", predictHandler.Predict)
		api.POST("/upload", uploadHandler.Upload)
		api.GET("/upload/:id", uploadHandler.GetJob)
		api.GET("/fleet/summary", fleetHandler.GetSummary)
	}

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s (model endpoint: %s)", addr, cfg.Model.URL)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
