package routes

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"crou/internal/api/middleware"
	"crou/internal/handlers"
	"crou/internal/housing"
	"crou/internal/tasks"
	"crou/internal/utils/logger"
)

// SetupHousingRoutes wires the campaign lifecycle and request intake. The
// api group already carries authentication and tenant resolution; each route
// adds its permission guard.
func SetupHousingRoutes(api *echo.Group, db *gorm.DB, guards *middleware.Guards, lifecycle *housing.Lifecycle, store *housing.GormStore, taskClient *tasks.TaskClient) {
	log := logger.New("housing_routes")

	handler := handlers.NewHousingHandler(db, lifecycle, store, taskClient)

	group := api.Group("/housing")
	group.Use(guards.RequireModule("housing"))

	batches := group.Group("/batches")
	batches.GET("", handler.ListBatches, guards.Require("housing", "read", middleware.TargetTenantFromQuery))
	batches.GET("/:id", handler.GetBatch, guards.Require("housing", "read", middleware.TargetTenantFromQuery))
	batches.GET("/:id/report", handler.BatchReport, guards.Require("housing", "read", middleware.TargetTenantFromQuery))
	batches.POST("", handler.CreateBatch, guards.Require("housing", "manage", middleware.TargetTenantFromBody))
	batches.PUT("/:id", handler.UpdateBatch, guards.Require("housing", "manage", middleware.TargetTenantFromQuery))
	batches.DELETE("/:id", handler.DeleteBatch, guards.Require("housing", "manage", middleware.TargetTenantFromQuery))

	// Lifecycle transitions
	batches.POST("/:id/open", handler.OpenBatch, guards.Require("housing", "manage", middleware.TargetTenantFromQuery))
	batches.POST("/:id/close", handler.CloseBatch, guards.Require("housing", "manage", middleware.TargetTenantFromQuery))
	batches.POST("/:id/process", handler.ProcessBatch, guards.Require("housing", "process", middleware.TargetTenantFromQuery))
	batches.POST("/:id/archive", handler.ArchiveBatch, guards.Require("housing", "manage", middleware.TargetTenantFromQuery))

	requests := group.Group("/requests")
	requests.POST("", handler.SubmitRequest, guards.Require("housing", "create"))

	documents := group.Group("/documents")
	documents.POST("", handler.UploadDocument, guards.Require("housing", "create"))

	log.Success("Housing routes initialized successfully")
}

// SetupFinancialRoutes wires the budget operation endpoints behind the
// tiered amount guard.
func SetupFinancialRoutes(api *echo.Group, db *gorm.DB, guards *middleware.Guards) {
	handler := handlers.NewFinancialHandler(db)

	group := api.Group("/financial")
	group.Use(guards.RequireModule("financial"))

	group.GET("/operations", handler.ListOperations, guards.Require("financial", "read"))
	group.POST("/operations", handler.RecordOperation, guards.RequireFinancial("write"))
}
