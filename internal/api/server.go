package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-advanced-admin/admin"
	admingorm "github.com/go-advanced-admin/orm-gorm"
	adminecho "github.com/go-advanced-admin/web-echo"
	"golang.org/x/time/rate"

	"crou/internal/api/middleware"
	"crou/internal/api/validator"
	"crou/internal/apperrors"
	"crou/internal/config"
	"crou/internal/housing"
	"crou/internal/models"
	"crou/internal/rbac"
	"crou/internal/tasks"

	console "crou/internal/utils/logger"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

type Server struct {
	echo       *echo.Echo
	config     *config.Config
	db         *gorm.DB
	guards     *middleware.Guards
	lifecycle  *housing.Lifecycle
	store      *housing.GormStore
	taskClient *tasks.TaskClient
}

var log = console.New("API-Server")

// NewServer @title CROU Management API
// @version 1.0
// @description Multi-tenant administration API for the ministry and its regional offices.
// @host localhost:8080
// @BasePath /api/v1
func NewServer(cfg *config.Config, db *gorm.DB, taskClient *tasks.TaskClient) (*Server, error) {
	e := echo.New()

	// Create custom validator
	e.Validator = validator.NewValidator()

	// Configure middleware
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentLength},
	}))
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Secure())
	e.Use(echomiddleware.TimeoutWithConfig(echomiddleware.TimeoutConfig{
		Timeout: 30 * time.Second,
	}))
	e.Use(echomiddleware.GzipWithConfig(echomiddleware.GzipConfig{
		Level: 5,
	}))
	e.Use(echomiddleware.BodyLimit("10M"))

	// Custom error handler
	e.HTTPErrorHandler = customHTTPErrorHandler

	// Seed the permission catalog, the root tenant and the bootstrap admin
	if err := models.SeedPermissions(db); err != nil {
		log.Warn("Warning: Failed to seed permissions: %v", err)
	} else {
		log.Success("Successfully seeded permissions")
	}

	rootTenant, err := models.SeedRootTenant(db, cfg)
	if err != nil {
		return nil, log.Error("Failed to seed root tenant", err)
	}

	if err := models.CreateSuperAdminFromEnv(db, cfg); err != nil {
		log.Warn("Warning: Failed to create super admin: %v", err)
	} else {
		log.Success("Successfully created super admin")
	}

	e.Use(echomiddleware.RateLimiter(echomiddleware.NewRateLimiterMemoryStore(rate.Limit(20))))

	evaluator := rbac.NewEvaluator(cfg.RBAC.FinancialValidationLimit)
	guards := middleware.NewGuards(evaluator, rootTenant.ID)

	store := housing.NewGormStore(db)
	lifecycle := housing.NewLifecycle(store)

	s := &Server{
		echo:       e,
		config:     cfg,
		db:         db,
		guards:     guards,
		lifecycle:  lifecycle,
		store:      store,
		taskClient: taskClient,
	}

	// Admin panel, gated on the admin module permission
	gormIntegrator := admingorm.NewIntegrator(db)
	echoIntegrator := adminecho.NewIntegrator(e.Group(""))

	permissionChecker := func(
		request admin.PermissionRequest, ctx interface{},
	) (bool, error) {
		ec, ok := ctx.(echo.Context)
		if !ok {
			return false, nil
		}
		return rbac.CanAccessModule(middleware.GetPermissions(ec), "admin"), nil
	}

	adminPanel, err := admin.NewPanel(
		gormIntegrator, echoIntegrator, permissionChecker, nil,
	)
	if err != nil {
		return nil, log.Error("Failed to create admin panel", err)
	}

	_, err = adminPanel.RegisterApp(
		"CROU",
		"CROU Admin Panel",
		nil,
	)
	if err != nil {
		return nil, log.Error("Failed to register admin app", err)
	}

	// Register routes
	s.registerRoutes()
	return s, nil
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Health check endpoint
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// Custom HTTP error handler. Access control failures arrive as structured
// rejection values; the distinction between 401 (no identity) and 403
// (identity without authority) is carried by the rejection kind.
func customHTTPErrorHandler(err error, c echo.Context) {
	var (
		code    = http.StatusInternalServerError
		message interface{}
		payload map[string]interface{}
	)

	var appErr *apperrors.Error
	switch {
	case errors.As(err, &appErr):
		code = apperrors.StatusCode(appErr.Kind)
		payload = map[string]interface{}{
			"error": appErr.Message,
			"code":  code,
			"time":  time.Now().Format(time.RFC3339),
		}
		if appErr.RequiredPermission != "" {
			payload["requiredPermission"] = appErr.RequiredPermission
		}
	default:
		switch e := err.(type) {
		case *echo.HTTPError:
			code = e.Code
			message = e.Message
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = formatValidationErrors(e)
		default:
			message = http.StatusText(code)
		}
		payload = map[string]interface{}{
			"error": message,
			"code":  code,
			"time":  time.Now().Format(time.RFC3339),
		}
	}

	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, payload)
		}
		if err != nil {
			c.Echo().Logger.Error(err)
		}
	}
}

// formatValidationErrors formats validation errors into a map
func formatValidationErrors(errors validator.ValidationErrors) map[string]string {
	errMap := make(map[string]string)
	for _, err := range errors {
		field := err.Field()
		tag := err.Tag()
		param := err.Param()

		switch tag {
		case "required":
			errMap[field] = fmt.Sprintf("%s is required", field)
		case "email":
			errMap[field] = fmt.Sprintf("%s must be a valid email", field)
		case "min":
			errMap[field] = fmt.Sprintf("%s must be at least %s", field, param)
		case "max":
			errMap[field] = fmt.Sprintf("%s must be at most %s", field, param)
		case "uuid":
			errMap[field] = fmt.Sprintf("%s must be a valid UUID", field)
		case "oneof":
			errMap[field] = fmt.Sprintf("%s must be one of [%s]", field, param)
		case "gtfield":
			errMap[field] = fmt.Sprintf("%s must be greater than %s", field, param)
		case "uppercase":
			errMap[field] = fmt.Sprintf("%s must be uppercase", field)
		case "tenant_type":
			errMap[field] = fmt.Sprintf("%s must be one of: MINISTRY, REGIONAL_OFFICE, SERVICE_UNIT", field)
		case "batch_status":
			errMap[field] = fmt.Sprintf("%s must be a valid batch status", field)
		case "request_status":
			errMap[field] = fmt.Sprintf("%s must be a valid request status", field)
		case "academic_year":
			errMap[field] = fmt.Sprintf("%s must look like 2026-2027", field)
		default:
			errMap[field] = fmt.Sprintf("%s failed validation: %s", field, tag)
		}
	}
	return errMap
}
