package registry

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"crou/internal/api/controllers"
	"crou/internal/api/middleware"
	"crou/internal/models"
	"crou/internal/services"
)

// RegisterCRUDRoutes wires the generic CRUD surface: each resource group is
// gated by a read guard, with writes behind the matching create/update/delete
// permissions. Admin-sensitive resources (users, roles) additionally go
// through the self-modification block.
func RegisterCRUDRoutes(g *echo.Group, db *gorm.DB, guards *middleware.Guards) {
	// Tenants
	tenantService := services.NewBaseService(db, models.Tenant{})
	tenantController := controllers.NewBaseController(tenantService)
	tenantGroup := g.Group("/tenants")
	tenantGroup.Use(guards.RequireModule("tenants"))

	// @Summary List tenants
	// @Success 200 {array} models.Tenant
	// @Router /api/v1/tenants [get]
	tenantGroup.GET("", tenantController.List, guards.Require("tenants", "read"))
	// @Summary Get tenant
	// @Param id path string true "Tenant ID"
	// @Success 200 {object} models.Tenant
	// @Router /api/v1/tenants/{id} [get]
	tenantGroup.GET("/:id", tenantController.Get, guards.Require("tenants", "read"))
	tenantGroup.POST("", tenantController.Create, guards.Require("tenants", "create", middleware.TargetTenantFromBody))
	tenantGroup.PUT("/:id", tenantController.Update, guards.Require("tenants", "update", middleware.TargetTenantFromBody))
	tenantGroup.DELETE("/:id", tenantController.Delete, guards.Require("tenants", "delete"))

	// Users: mutations are admin-guarded so a subject cannot edit itself
	userService := services.NewBaseService(db, models.User{})
	userController := controllers.NewBaseController(userService)
	userGroup := g.Group("/users")
	userGroup.Use(guards.RequireModule("users"))

	userGroup.GET("", userController.List, guards.Require("users", "read"))
	userGroup.GET("/:id", userController.Get, guards.Require("users", "read"))
	userGroup.POST("", userController.Create, guards.Require("users", "create", middleware.TargetTenantFromBody))
	userGroup.PUT("/:id", userController.Update, guards.RequireAdmin("users", "update"))
	userGroup.DELETE("/:id", userController.Delete, guards.RequireAdmin("users", "delete"))

	// Roles: read is broad, mutation is ministry-level administration
	roleService := services.NewBaseService(db, models.Role{})
	roleController := controllers.NewBaseController(roleService)
	roleGroup := g.Group("/roles")
	roleGroup.GET("", roleController.List, guards.Require("roles", "read"))
	roleGroup.GET("/:id", roleController.Get, guards.Require("roles", "read"))
	roleGroup.POST("", roleController.Create, guards.RequireAdmin("roles", "create"))
	roleGroup.PUT("/:id", roleController.Update, guards.RequireAdmin("roles", "update"))
	roleGroup.DELETE("/:id", roleController.Delete, guards.RequireAdmin("roles", "delete"))

	// Housing estate: complexes, rooms, beds
	complexService := services.NewBaseService(db, models.Complex{})
	complexController := controllers.NewBaseController(complexService)
	complexGroup := g.Group("/complexes")
	complexGroup.Use(guards.RequireModule("housing"))
	complexGroup.GET("", complexController.List, guards.Require("housing", "read"))
	complexGroup.GET("/:id", complexController.Get, guards.Require("housing", "read"))
	complexGroup.POST("", complexController.Create, guards.Require("housing", "manage", middleware.TargetTenantFromBody))
	complexGroup.PUT("/:id", complexController.Update, guards.Require("housing", "manage"))
	complexGroup.DELETE("/:id", complexController.Delete, guards.Require("housing", "manage"))

	roomService := services.NewBaseService(db, models.Room{})
	roomController := controllers.NewBaseController(roomService)
	roomGroup := g.Group("/rooms")
	roomGroup.Use(guards.RequireModule("housing"))
	roomGroup.GET("", roomController.List, guards.Require("housing", "read"))
	roomGroup.GET("/:id", roomController.Get, guards.Require("housing", "read"))
	roomGroup.POST("", roomController.Create, guards.Require("housing", "manage"))
	roomGroup.PUT("/:id", roomController.Update, guards.Require("housing", "manage"))
	roomGroup.DELETE("/:id", roomController.Delete, guards.Require("housing", "manage"))

	bedService := services.NewBaseService(db, models.Bed{})
	bedController := controllers.NewBaseController(bedService)
	bedGroup := g.Group("/beds")
	bedGroup.Use(guards.RequireModule("housing"))
	bedGroup.GET("", bedController.List, guards.Require("housing", "read"))
	bedGroup.GET("/:id", bedController.Get, guards.Require("housing", "read"))
	bedGroup.POST("", bedController.Create, guards.Require("housing", "manage"))
	bedGroup.PUT("/:id", bedController.Update, guards.Require("housing", "manage"))
	bedGroup.DELETE("/:id", bedController.Delete, guards.Require("housing", "manage"))

	// Documents are read-only through the generic surface; uploads go
	// through the housing handler
	documentService := services.NewBaseService(db, models.ApplicationDocument{})
	documentController := controllers.NewBaseController(documentService)
	documentGroup := g.Group("/documents")
	documentGroup.GET("", documentController.List, guards.Require("housing", "read"))
	documentGroup.GET("/:id", documentController.Get, guards.Require("housing", "read"))
}
