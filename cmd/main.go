package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crou/docs/swagger"
	"crou/internal/api"
	"crou/internal/audit"
	"crou/internal/config"
	"crou/internal/db"
	"crou/internal/handlers"
	"crou/internal/housing"
	"crou/internal/models"
	"crou/internal/services"
	"crou/internal/tasks"
	"crou/internal/utils/logger"

	"github.com/joho/godotenv"
)

// @title CROU Management API
// @version 1.0
// @description Multi-tenant administration API for the ministry and its regional offices
// @host localhost:8080
// @BasePath /api/v1
// @schemes https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {

	logger := logger.New("crou")

	// check if .env file exists
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		logger.Info("No .env file found, skipping environment variable loading")
	} else {
		logger.Info("Loading environment variables from .env file")
		if err := godotenv.Load(); err != nil {
			log.Fatalf("Failed to load environment variables: %v", err)
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := db.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		err := db.Close()
		if err != nil {
			log.Fatalf("Failed to close database connection: %v", err)
		}
	}()

	dbInstance := db.GetDB()

	// Audit log subscribes to the event bus before anything can emit
	audit.Register()

	// Housing core shared by the API and the workers
	store := housing.NewGormStore(dbInstance)
	lifecycle := housing.NewLifecycle(store)
	processor := housing.NewProcessor(store, store)

	// Task client for enqueuing assignment passes
	taskClient := tasks.NewTaskClient(cfg.Redis)
	defer taskClient.Close()

	// Initialize task handlers
	taskHandler := tasks.NewTaskHandler(dbInstance, lifecycle, processor)

	// Initialize task server
	taskServer := tasks.NewServer(cfg, taskHandler, logger)

	// Create a context for task server
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	// Start task server
	go func() {
		if err := taskServer.Start(serverCtx); err != nil {
			logger.Error("Task server error", err)
		}
	}()

	// Initialize task scheduler
	taskScheduler := tasks.NewScheduler(cfg.Redis, logger)

	// Start task scheduler
	go func() {
		if err := taskScheduler.Start(); err != nil {
			logger.Error("Task scheduler error", err)
		}
	}()

	// Initialize API server
	apiServer, err := api.NewServer(cfg, dbInstance, taskClient)
	if err != nil {
		log.Fatalf("Failed to initialize API server: %v", err)
	}
	go func() {

		// Initialize S3 service for application documents
		s3Service, err := services.NewS3Service(cfg.Storage)
		if err != nil {
			logger.Warn("Document storage unavailable: %v", err)
		} else {
			// Register the URL generator
			models.RegisterDocumentURLGenerator(s3Service)
			handlers.RegisterStorageHandler(s3Service)
		}

		logger.Success("API server started")

		// Swagger documentation
		swagger.SwaggerInfo.Title = "CROU Management API"
		swagger.SwaggerInfo.Description = "Multi-tenant administration API for the ministry and its regional offices"
		swagger.SwaggerInfo.Version = "1.0"
		swagger.SwaggerInfo.Host = cfg.Server.PublicURL
		swagger.SwaggerInfo.Schemes = []string{"https"}

		if err := apiServer.Start(); err != nil {
			logger.Error("API server error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the servers
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Create a deadline for graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop task scheduler
	taskScheduler.Stop()

	// Stop task server
	serverCancel()
	taskServer.Shutdown()

	// Shutdown API server
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown API server", err)
	}

	logger.Info("Servers shutdown gracefully")
}
