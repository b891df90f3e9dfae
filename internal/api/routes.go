package api

import (
	"net/http"

	"crou/internal/api/middleware"
	"crou/internal/api/registry"
	"crou/internal/routes"

	_ "crou/docs/swagger"

	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
)

func (s *Server) registerRoutes() {
	s.echo.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "CROU Management API")
	})
	// Health check
	// @Summary Health check
	// @Description Check if the server is running
	// @Accept json
	// @Produce json
	// @Success 200 {object} map[string]string "OK"
	// @Router /health [get]
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	routes.SetupAuthRoutes(s.echo, s.db, s.config)

	// API v1 group: identity first, then tenant resolution, then per-route
	// permission guards
	api := s.echo.Group("/api/v1")
	auth := middleware.NewAuthMiddleware(s.config.JWT.Secret, s.db)
	api.Use(auth.Middleware())
	api.Use(middleware.TenantContext())

	// Generic CRUD surface
	registry.RegisterCRUDRoutes(api, s.db, s.guards)

	routes.SetupHousingRoutes(api, s.db, s.guards, s.lifecycle, s.store, s.taskClient)
	routes.SetupFinancialRoutes(api, s.db, s.guards)
}
