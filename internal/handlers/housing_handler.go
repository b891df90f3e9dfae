package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"crou/internal/api/middleware"
	"crou/internal/api/validator"
	"crou/internal/housing"
	"crou/internal/models"
	"crou/internal/tasks"
	"crou/internal/utils"
	"crou/internal/utils/logger"
)

const maxDocumentSize = 5 << 20 // 5 MiB

// HousingHandler exposes the allocation campaign lifecycle and the student
// request intake. Permission checks happen in the route guards; errors from
// the lifecycle bubble up as structured rejections.
type HousingHandler struct {
	db         *gorm.DB
	lifecycle  *housing.Lifecycle
	store      *housing.GormStore
	taskClient *tasks.TaskClient
	log        *logger.Logger
}

func NewHousingHandler(db *gorm.DB, lifecycle *housing.Lifecycle, store *housing.GormStore, taskClient *tasks.TaskClient) *HousingHandler {
	return &HousingHandler{
		db:         db,
		lifecycle:  lifecycle,
		store:      store,
		taskClient: taskClient,
		log:        logger.New("HousingHandler"),
	}
}

// tenantFor resolves the tenant a batch operation targets: the caller's own
// tenant unless a tenantId query parameter names another one (the guard has
// already verified the caller may cross).
func tenantFor(c echo.Context) string {
	if target := c.QueryParam("tenantId"); target != "" {
		return target
	}
	return middleware.GetTenantID(c)
}

// CreateBatch creates a new DRAFT campaign.
// @Summary Create application batch
// @Tags housing
// @Accept json
// @Produce json
// @Param request body validator.BatchRequest true "Batch details"
// @Success 201 {object} models.ApplicationBatch
// @Failure 400 {object} map[string]string "Validation error"
// @Router /housing/batches [post]
func (h *HousingHandler) CreateBatch(c echo.Context) error {
	var req validator.BatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	batch := &models.ApplicationBatch{
		TenantID:                  req.TenantID,
		Name:                      req.Name,
		Type:                      req.Type,
		AcademicYear:              req.AcademicYear,
		StartDate:                 req.StartDate,
		EndDate:                   req.EndDate,
		MaxApplicationsPerStudent: req.MaxApplicationsPerStudent,
	}
	if batch.TenantID == "" {
		batch.TenantID = middleware.GetTenantID(c)
	}
	if req.Flags != nil {
		encoded, err := utils.EncodeJSON(req.Flags)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid flags"})
		}
		batch.Flags = encoded
	}

	if err := h.lifecycle.Create(c.Request().Context(), batch, middleware.GetUserID(c)); err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, batch)
}

// ListBatches lists the target tenant's campaigns, optionally by status.
// @Summary List application batches
// @Tags housing
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {array} models.ApplicationBatch
// @Router /housing/batches [get]
func (h *HousingHandler) ListBatches(c echo.Context) error {
	batches, err := h.store.ListBatches(c.Request().Context(), tenantFor(c), models.BatchStatus(c.QueryParam("status")))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to list batches"})
	}
	return c.JSON(http.StatusOK, batches)
}

// GetBatch returns one campaign.
// @Summary Get application batch
// @Tags housing
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} models.ApplicationBatch
// @Failure 404 {object} map[string]string "Not found"
// @Router /housing/batches/{id} [get]
func (h *HousingHandler) GetBatch(c echo.Context) error {
	batch, err := h.store.GetBatch(c.Request().Context(), c.Param("id"), tenantFor(c))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Batch not found"})
	}
	return c.JSON(http.StatusOK, batch)
}

// UpdateBatch mutates a DRAFT campaign.
// @Summary Update application batch
// @Tags housing
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Param request body validator.BatchRequest true "Batch details"
// @Success 200 {object} models.ApplicationBatch
// @Failure 400 {object} map[string]string "Batch is no longer a draft"
// @Router /housing/batches/{id} [put]
func (h *HousingHandler) UpdateBatch(c echo.Context) error {
	var req validator.BatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	patch := &models.ApplicationBatch{
		Name:                      req.Name,
		Type:                      req.Type,
		AcademicYear:              req.AcademicYear,
		StartDate:                 req.StartDate,
		EndDate:                   req.EndDate,
		MaxApplicationsPerStudent: req.MaxApplicationsPerStudent,
	}
	if req.Flags != nil {
		encoded, err := utils.EncodeJSON(req.Flags)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid flags"})
		}
		patch.Flags = encoded
	}

	if err := h.lifecycle.Update(c.Request().Context(), c.Param("id"), tenantFor(c), patch, middleware.GetUserID(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, patch)
}

// DeleteBatch removes a DRAFT campaign.
// @Summary Delete application batch
// @Tags housing
// @Param id path string true "Batch ID"
// @Success 204 "No content"
// @Failure 400 {object} map[string]string "Batch is no longer a draft"
// @Router /housing/batches/{id} [delete]
func (h *HousingHandler) DeleteBatch(c echo.Context) error {
	if err := h.lifecycle.Delete(c.Request().Context(), c.Param("id"), tenantFor(c), middleware.GetUserID(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// OpenBatch opens a DRAFT or re-opens a CLOSED campaign.
// @Summary Open application batch
// @Tags housing
// @Param id path string true "Batch ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Invalid transition"
// @Router /housing/batches/{id}/open [post]
func (h *HousingHandler) OpenBatch(c echo.Context) error {
	if err := h.lifecycle.Open(c.Request().Context(), c.Param("id"), tenantFor(c), middleware.GetUserID(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": string(models.BatchStatusOpen)})
}

// CloseBatch closes an OPEN campaign.
// @Summary Close application batch
// @Tags housing
// @Param id path string true "Batch ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Invalid transition"
// @Router /housing/batches/{id}/close [post]
func (h *HousingHandler) CloseBatch(c echo.Context) error {
	if err := h.lifecycle.Close(c.Request().Context(), c.Param("id"), tenantFor(c), middleware.GetUserID(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": string(models.BatchStatusClosed)})
}

// ProcessBatch moves a CLOSED campaign to PROCESSING and queues the
// assignment pass. If the enqueue fails the batch is moved back so the
// operation can be retried.
// @Summary Process application batch
// @Tags housing
// @Param id path string true "Batch ID"
// @Success 202 {object} map[string]string
// @Failure 400 {object} map[string]string "Invalid transition"
// @Router /housing/batches/{id}/process [post]
func (h *HousingHandler) ProcessBatch(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	tenantID := tenantFor(c)
	actor := middleware.GetUserID(c)

	if err := h.lifecycle.StartProcessing(ctx, id, tenantID, actor); err != nil {
		return err
	}

	if err := h.taskClient.EnqueueProcessBatch(ctx, id, tenantID, actor); err != nil {
		h.log.Warn("Enqueue failed for batch %s, reverting to CLOSED: %v", id, err)
		if _, revertErr := h.store.Transition(ctx, id, tenantID,
			[]models.BatchStatus{models.BatchStatusProcessing}, models.BatchStatusClosed, actor); revertErr != nil {
			h.log.Warn("Failed to revert batch %s: %v", id, revertErr)
		}
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Processing could not be queued"})
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": string(models.BatchStatusProcessing)})
}

// ArchiveBatch retires a COMPLETED campaign.
// @Summary Archive application batch
// @Tags housing
// @Param id path string true "Batch ID"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string "Invalid transition"
// @Router /housing/batches/{id}/archive [post]
func (h *HousingHandler) ArchiveBatch(c echo.Context) error {
	if err := h.lifecycle.Archive(c.Request().Context(), c.Param("id"), tenantFor(c), middleware.GetUserID(c)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": string(models.BatchStatusArchived)})
}

// BatchReport summarizes the outcomes of a campaign.
// @Summary Batch assignment report
// @Tags housing
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} map[string]interface{}
// @Router /housing/batches/{id}/report [get]
func (h *HousingHandler) BatchReport(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	tenantID := tenantFor(c)

	batch, err := h.store.GetBatch(ctx, id, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Batch not found"})
	}

	assignments, err := h.store.AssignmentsForBatch(ctx, id, tenantID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to load assignments"})
	}

	var counts []struct {
		Status models.RequestStatus
		Count  int64
	}
	if err := h.db.WithContext(ctx).Model(&models.HousingRequest{}).
		Select("status, count(*) as count").
		Where("batch_id = ? AND tenant_id = ? AND is_deleted = ?", id, tenantID, false).
		Group("status").Scan(&counts).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to count requests"})
	}

	byStatus := map[models.RequestStatus]int64{}
	for _, row := range counts {
		byStatus[row.Status] = row.Count
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"batch":       batch,
		"requests":    byStatus,
		"assignments": assignments,
	})
}

// SubmitRequest files a student application into an OPEN batch.
// @Summary Submit housing request
// @Tags housing
// @Accept json
// @Produce json
// @Param request body validator.HousingRequestPayload true "Request details"
// @Success 201 {object} models.HousingRequest
// @Failure 400 {object} map[string]string "Batch not accepting requests"
// @Router /housing/requests [post]
func (h *HousingHandler) SubmitRequest(c echo.Context) error {
	var req validator.HousingRequestPayload
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	tenantID := middleware.GetTenantID(c)

	batch, err := h.store.GetBatch(ctx, req.BatchID, tenantID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Batch not found"})
	}
	if batch.Status != models.BatchStatusOpen {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Batch is not open for applications"})
	}

	var flags models.BatchFlags
	if err := utils.DecodeJSON(batch.Flags, &flags); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Malformed batch flags"})
	}
	if !flags.OnlineAllowed {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Batch does not accept online submissions"})
	}
	if flags.DocumentsRequired && req.DocumentID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "A supporting document is required for this batch"})
	}

	request := &models.HousingRequest{
		BatchID:            batch.ID,
		TenantID:           batch.TenantID,
		StudentID:          req.StudentID,
		EligibleAutoAssign: req.EligibleAutoAssign,
		Status:             models.RequestStatusPending,
		DocumentID:         req.DocumentID,
		SubmittedAt:        time.Now(),
	}
	if req.Preferences != nil {
		encoded, err := utils.EncodeJSON(req.Preferences)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid preferences"})
		}
		request.Preferences = encoded
	}

	if err := h.db.WithContext(ctx).Create(request).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create request"})
	}

	return c.JSON(http.StatusCreated, request)
}

// UploadDocument stores a supporting file and returns its document row.
// @Summary Upload supporting document
// @Tags housing
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document file"
// @Success 201 {object} models.ApplicationDocument
// @Failure 400 {object} map[string]string "Missing or oversized file"
// @Router /housing/documents [post]
func (h *HousingHandler) UploadDocument(c echo.Context) error {
	storage := GetStorageHandler()
	if storage == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Document storage is not configured"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing file"})
	}
	if fileHeader.Size > maxDocumentSize {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "File exceeds the size limit"})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unreadable file"})
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unreadable file"})
	}

	tenantID := middleware.GetTenantID(c)
	contentType := fileHeader.Header.Get("Content-Type")

	key, err := storage.UploadDocument(c.Request().Context(), content, tenantID, fileHeader.Filename, contentType)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to store document"})
	}

	document := &models.ApplicationDocument{
		TenantID: tenantID,
		UserID:   middleware.GetUserID(c),
		Path:     key,
		Name:     fileHeader.Filename,
		Size:     fileHeader.Size,
		Type:     contentType,
	}

	if err := h.db.WithContext(c.Request().Context()).Create(document).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to record document"})
	}

	return c.JSON(http.StatusCreated, document)
}
