package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"crou/internal/housing"
	"crou/internal/utils/logger"
)

// TaskHandler runs the housing worker side: assignment passes and the
// nightly expiry sweep.
type TaskHandler struct {
	db        *gorm.DB
	lifecycle *housing.Lifecycle
	processor *housing.Processor
	logger    *logger.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(db *gorm.DB, lifecycle *housing.Lifecycle, processor *housing.Processor) *TaskHandler {
	return &TaskHandler{
		db:        db,
		lifecycle: lifecycle,
		processor: processor,
		logger:    logger.New("task_handler"),
	}
}

// HandleProcessBatch runs the assignment pass for a PROCESSING batch and
// marks it COMPLETED afterwards. The pass is idempotent, so a retry after a
// mid-run crash picks up where it left off.
func (h *TaskHandler) HandleProcessBatch(ctx context.Context, t *asynq.Task) error {
	var payload ProcessBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	report, err := h.processor.ProcessBatch(ctx, payload.BatchID, payload.TenantID, payload.Actor)
	if err != nil {
		return h.logger.Error("assignment pass failed", err)
	}

	if report.Failed > 0 {
		// Leave the batch PROCESSING so a retry can rerun the failed rows
		return fmt.Errorf("batch %s: %d request(s) failed, will retry", payload.BatchID, report.Failed)
	}

	if err := h.lifecycle.Complete(ctx, payload.BatchID, payload.TenantID, payload.Actor); err != nil {
		return h.logger.Error("completing batch", err)
	}

	h.logger.Success("batch %s completed: %d assigned, %d waitlisted, %d rejected",
		payload.BatchID, report.Assigned, report.Waitlisted, report.Rejected)
	return nil
}

// HandleCloseExpired closes every OPEN batch whose window has ended.
func (h *TaskHandler) HandleCloseExpired(ctx context.Context, t *asynq.Task) error {
	closed, err := h.lifecycle.CloseExpired(ctx, time.Now(), "system")
	if err != nil {
		return h.logger.Error("expiry sweep failed", err)
	}
	if closed > 0 {
		h.logger.Info("expiry sweep closed %d batch(es)", closed)
	}
	return nil
}
