package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"crou/internal/models"
)

// ValidationErrors wraps the validator's ValidationErrors
type ValidationErrors []playgroundvalidator.FieldError

// CustomValidator wraps go-playground/validator
type CustomValidator struct {
	validator *playgroundvalidator.Validate
}

var academicYearPattern = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

// NewValidator creates a new validator instance
func NewValidator() echo.Validator {
	v := playgroundvalidator.New()

	// Register custom validation tags
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Register custom validations
	err := v.RegisterValidation("tenant_type", validateTenantType)
	if err != nil {
		return nil
	}
	err = v.RegisterValidation("batch_status", validateBatchStatus)
	if err != nil {
		return nil
	}
	err = v.RegisterValidation("request_status", validateRequestStatus)
	if err != nil {
		return nil
	}
	err = v.RegisterValidation("academic_year", validateAcademicYear)
	if err != nil {
		return nil
	}

	return &CustomValidator{validator: v}
}

// Custom validation functions
func validateTenantType(fl playgroundvalidator.FieldLevel) bool {
	return models.IsValidTenantType(models.TenantType(fl.Field().String()))
}

func validateBatchStatus(fl playgroundvalidator.FieldLevel) bool {
	switch models.BatchStatus(fl.Field().String()) {
	case models.BatchStatusDraft, models.BatchStatusOpen, models.BatchStatusClosed,
		models.BatchStatusProcessing, models.BatchStatusCompleted, models.BatchStatusArchived:
		return true
	default:
		return false
	}
}

func validateRequestStatus(fl playgroundvalidator.FieldLevel) bool {
	switch models.RequestStatus(fl.Field().String()) {
	case models.RequestStatusPending, models.RequestStatusAssigned,
		models.RequestStatusWaitlisted, models.RequestStatusRejected:
		return true
	default:
		return false
	}
}

// validateAcademicYear accepts "2026-2027" style values where the second
// year follows the first.
func validateAcademicYear(fl playgroundvalidator.FieldLevel) bool {
	match := academicYearPattern.FindStringSubmatch(fl.Field().String())
	if match == nil {
		return false
	}
	first, _ := strconv.Atoi(match[1])
	second, _ := strconv.Atoi(match[2])
	return second == first+1
}

// Validate implements echo.Validator interface
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		var validationErrors playgroundvalidator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return ValidationErrors(validationErrors)
		}
		return err
	}
	return nil
}

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	var fields []string
	for _, err := range ve {
		fields = append(fields, err.Field())
	}
	return fmt.Sprintf("validation failed on fields: %s", strings.Join(fields, ", "))
}

// Request validation structs based on models

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirmRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type TenantRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	Code     string `json:"code" validate:"required,uppercase"`
	Type     string `json:"type" validate:"required,tenant_type"`
	ParentID string `json:"parentId" validate:"omitempty,uuid"`
}

type UserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	RoleID    string `json:"roleId" validate:"required,uuid"`
	TenantID  string `json:"tenantId" validate:"required,uuid"`
}

type BatchRequest struct {
	Name                      string             `json:"name" validate:"required,min=2"`
	Type                      string             `json:"type" validate:"required"`
	AcademicYear              string             `json:"academicYear" validate:"required,academic_year"`
	StartDate                 time.Time          `json:"startDate" validate:"required"`
	EndDate                   time.Time          `json:"endDate" validate:"required,gtfield=StartDate"`
	TenantID                  string             `json:"tenantId" validate:"omitempty,uuid"`
	Flags                     *models.BatchFlags `json:"flags"`
	MaxApplicationsPerStudent int                `json:"maxApplicationsPerStudent" validate:"omitempty,min=1"`
}

type HousingRequestPayload struct {
	BatchID            string                  `json:"batchId" validate:"required,uuid"`
	StudentID          string                  `json:"studentId" validate:"required,uuid"`
	Preferences        *models.RoomPreferences `json:"preferences"`
	EligibleAutoAssign bool                    `json:"eligibleAutoAssign"`
	DocumentID         string                  `json:"documentId" validate:"omitempty,uuid"`
}

type FinancialOperationRequest struct {
	Amount   int64  `json:"amount" validate:"required,min=1"`
	Label    string `json:"label" validate:"required"`
	TenantID string `json:"tenantId" validate:"omitempty,uuid"`
}
