package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"crou/internal/api/middleware"
	"crou/internal/api/validator"
	"crou/internal/models"
	"crou/internal/rbac"
	"crou/internal/utils/logger"
)

// FinancialHandler records budget operations. The tiered amount guard runs
// in front of RecordOperation, so a request that reaches the handler has
// already cleared the validation ceiling rules.
type FinancialHandler struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFinancialHandler(db *gorm.DB) *FinancialHandler {
	return &FinancialHandler{db: db, log: logger.New("FinancialHandler")}
}

// RecordOperation persists a budget movement.
// @Summary Record financial operation
// @Tags financial
// @Accept json
// @Produce json
// @Param request body validator.FinancialOperationRequest true "Operation details"
// @Success 201 {object} models.FinancialOperation
// @Failure 403 {object} map[string]string "Amount exceeds validation ceiling"
// @Router /financial/operations [post]
func (h *FinancialHandler) RecordOperation(c echo.Context) error {
	var req validator.FinancialOperationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = middleware.GetTenantID(c)
	}

	operation := &models.FinancialOperation{
		TenantID:   tenantID,
		Label:      req.Label,
		Amount:     req.Amount,
		RecordedBy: middleware.GetUserID(c),
	}
	// When the caller holds the validate scope the row carries their stamp
	if ctx, ok := middleware.RBACContext(c); ok && ctx.HasScope(rbac.Scope("financial", "validate")) {
		operation.ValidatedBy = ctx.UserID
	}

	if err := h.db.WithContext(c.Request().Context()).Create(operation).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to record operation"})
	}

	return c.JSON(http.StatusCreated, operation)
}

// ListOperations lists the caller tenant's operations.
// @Summary List financial operations
// @Tags financial
// @Produce json
// @Success 200 {array} models.FinancialOperation
// @Router /financial/operations [get]
func (h *FinancialHandler) ListOperations(c echo.Context) error {
	var operations []models.FinancialOperation
	if err := h.db.WithContext(c.Request().Context()).
		Where("tenant_id = ? AND is_deleted = ?", middleware.GetTenantID(c), false).
		Order("created_at DESC").
		Find(&operations).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list operations"})
	}
	return c.JSON(http.StatusOK, operations)
}
