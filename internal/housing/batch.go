package housing

import (
	"context"
	"strings"
	"time"

	"crou/internal/apperrors"
	"crou/internal/audit"
	"crou/internal/models"
	"crou/internal/utils/logger"
)

// BatchStore is the persistence surface the lifecycle needs. Transition is
// the serialization point: it must update the status only when the current
// status is one of the allowed source states, atomically with respect to
// concurrent transitions on the same batch.
type BatchStore interface {
	GetBatch(ctx context.Context, id, tenantID string) (*models.ApplicationBatch, error)
	CreateBatch(ctx context.Context, batch *models.ApplicationBatch) error
	// Transition performs a conditional status update and reports whether it
	// won. A false return with nil error means the batch was not in an
	// allowed source state (or was concurrently transitioned).
	Transition(ctx context.Context, id, tenantID string, from []models.BatchStatus, to models.BatchStatus, actor string) (bool, error)
	UpdateDraft(ctx context.Context, batch *models.ApplicationBatch) error
	DeleteDraft(ctx context.Context, id, tenantID string) (bool, error)
	// ExpiredOpenBatches lists OPEN batches whose end date has passed.
	ExpiredOpenBatches(ctx context.Context, now time.Time) ([]models.ApplicationBatch, error)
}

// Lifecycle is the batch state machine:
//
//	DRAFT → OPEN → CLOSED → PROCESSING → COMPLETED → ARCHIVED
//	          ↑       │
//	          └───────┘ (reopen)
//
// Re-opening an already-OPEN batch is rejected, not a no-op, so every
// transition leaves an audit entry.
type Lifecycle struct {
	store BatchStore
	log   *logger.Logger
}

func NewLifecycle(store BatchStore) *Lifecycle {
	return &Lifecycle{
		store: store,
		log:   logger.New("batch_lifecycle"),
	}
}

// Create persists a new DRAFT batch after checking required fields.
func (l *Lifecycle) Create(ctx context.Context, batch *models.ApplicationBatch, actor string) error {
	if missing := missingFields(batch); len(missing) > 0 {
		return apperrors.New(apperrors.KindMissingFields,
			"missing required fields: %s", strings.Join(missing, ", "))
	}
	if !batch.EndDate.After(batch.StartDate) {
		return apperrors.New(apperrors.KindMissingFields, "endDate must be after startDate")
	}

	batch.Status = models.BatchStatusDraft
	batch.UpdatedBy = actor
	if batch.MaxApplicationsPerStudent <= 0 {
		batch.MaxApplicationsPerStudent = 1
	}
	return l.store.CreateBatch(ctx, batch)
}

// Open moves a DRAFT or CLOSED batch to OPEN.
func (l *Lifecycle) Open(ctx context.Context, id, tenantID, actor string) error {
	return l.transition(ctx, id, tenantID, actor, "open",
		[]models.BatchStatus{models.BatchStatusDraft, models.BatchStatusClosed},
		models.BatchStatusOpen)
}

// Close moves an OPEN batch to CLOSED. Under concurrent close attempts
// exactly one wins; the loser observes InvalidTransition.
func (l *Lifecycle) Close(ctx context.Context, id, tenantID, actor string) error {
	return l.transition(ctx, id, tenantID, actor, "close",
		[]models.BatchStatus{models.BatchStatusOpen},
		models.BatchStatusClosed)
}

// StartProcessing moves a CLOSED batch to PROCESSING; the assignment pass
// runs afterwards and finishes with Complete.
func (l *Lifecycle) StartProcessing(ctx context.Context, id, tenantID, actor string) error {
	return l.transition(ctx, id, tenantID, actor, "process",
		[]models.BatchStatus{models.BatchStatusClosed},
		models.BatchStatusProcessing)
}

// Complete marks a PROCESSING batch as COMPLETED.
func (l *Lifecycle) Complete(ctx context.Context, id, tenantID, actor string) error {
	return l.transition(ctx, id, tenantID, actor, "complete",
		[]models.BatchStatus{models.BatchStatusProcessing},
		models.BatchStatusCompleted)
}

// Archive retires a COMPLETED batch.
func (l *Lifecycle) Archive(ctx context.Context, id, tenantID, actor string) error {
	return l.transition(ctx, id, tenantID, actor, "archive",
		[]models.BatchStatus{models.BatchStatusCompleted},
		models.BatchStatusArchived)
}

// Update mutates batch fields; only DRAFT batches are mutable.
func (l *Lifecycle) Update(ctx context.Context, id, tenantID string, patch *models.ApplicationBatch, actor string) error {
	current, err := l.store.GetBatch(ctx, id, tenantID)
	if err != nil {
		return apperrors.New(apperrors.KindNotFound, "batch %s not found", id)
	}
	if current.Status != models.BatchStatusDraft {
		return apperrors.New(apperrors.KindImmutableAfterDraft,
			"batch %s is %s; only DRAFT batches may be modified", id, current.Status)
	}

	patch.ID = current.ID
	patch.TenantID = current.TenantID
	patch.Status = models.BatchStatusDraft
	patch.UpdatedBy = actor
	return l.store.UpdateDraft(ctx, patch)
}

// Delete removes a batch; only DRAFT batches may be deleted.
func (l *Lifecycle) Delete(ctx context.Context, id, tenantID, actor string) error {
	current, err := l.store.GetBatch(ctx, id, tenantID)
	if err != nil {
		return apperrors.New(apperrors.KindNotFound, "batch %s not found", id)
	}
	if current.Status != models.BatchStatusDraft {
		return apperrors.New(apperrors.KindImmutableAfterDraft,
			"batch %s is %s; only DRAFT batches may be deleted", id, current.Status)
	}
	deleted, err := l.store.DeleteDraft(ctx, id, tenantID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.New(apperrors.KindImmutableAfterDraft,
			"batch %s left DRAFT before deletion", id)
	}
	return nil
}

// CloseExpired closes every OPEN batch whose window has ended. Used by the
// nightly sweep; each close is audited like a manual one.
func (l *Lifecycle) CloseExpired(ctx context.Context, now time.Time, actor string) (int, error) {
	expired, err := l.store.ExpiredOpenBatches(ctx, now)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, batch := range expired {
		if err := l.Close(ctx, batch.ID, batch.TenantID, actor); err != nil {
			// Lost the race to a concurrent close; nothing to do.
			l.log.Warn("Expired batch %s not closed: %v", batch.ID, err)
			continue
		}
		closed++
	}
	return closed, nil
}

func (l *Lifecycle) transition(ctx context.Context, id, tenantID, actor, operation string, from []models.BatchStatus, to models.BatchStatus) error {
	won, err := l.store.Transition(ctx, id, tenantID, from, to, actor)
	if err != nil {
		return err
	}
	if !won {
		current, getErr := l.store.GetBatch(ctx, id, tenantID)
		if getErr != nil {
			return apperrors.New(apperrors.KindNotFound, "batch %s not found", id)
		}
		return apperrors.New(apperrors.KindInvalidTransition,
			"cannot %s batch %s from status %s", operation, id, current.Status)
	}

	audit.Transition(actor, tenantID, id, operation)
	l.log.Info("Batch %s: %s -> %s by %s", id, operation, to, actor)
	return nil
}

func missingFields(batch *models.ApplicationBatch) []string {
	var missing []string
	if strings.TrimSpace(batch.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(batch.Type) == "" {
		missing = append(missing, "type")
	}
	if strings.TrimSpace(batch.AcademicYear) == "" {
		missing = append(missing, "academicYear")
	}
	if batch.StartDate.IsZero() {
		missing = append(missing, "startDate")
	}
	if batch.EndDate.IsZero() {
		missing = append(missing, "endDate")
	}
	if strings.TrimSpace(batch.TenantID) == "" {
		missing = append(missing, "tenantId")
	}
	return missing
}
