package housing

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"crou/internal/models"
)

// GormStore implements BatchStore and AssignmentStore on Postgres. The
// conditional updates in Transition and ClaimBed rely on the database's
// row-level atomicity; no advisory locks are taken.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetBatch(ctx context.Context, id, tenantID string) (*models.ApplicationBatch, error) {
	var batch models.ApplicationBatch
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ? AND is_deleted = ?", id, tenantID, false).
		First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *GormStore) CreateBatch(ctx context.Context, batch *models.ApplicationBatch) error {
	return s.db.WithContext(ctx).Create(batch).Error
}

// Transition flips the status only when the row is still in one of the
// allowed source states. The WHERE clause is the whole concurrency story:
// of two racing transitions exactly one sees RowsAffected == 1.
func (s *GormStore) Transition(ctx context.Context, id, tenantID string, from []models.BatchStatus, to models.BatchStatus, actor string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.ApplicationBatch{}).
		Where("id = ? AND tenant_id = ? AND status IN ? AND is_deleted = ?", id, tenantID, from, false).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_by": actor,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) UpdateDraft(ctx context.Context, batch *models.ApplicationBatch) error {
	return s.db.WithContext(ctx).
		Model(&models.ApplicationBatch{}).
		Where("id = ? AND tenant_id = ? AND status = ?", batch.ID, batch.TenantID, models.BatchStatusDraft).
		Updates(map[string]interface{}{
			"name":                         batch.Name,
			"type":                         batch.Type,
			"academic_year":                batch.AcademicYear,
			"start_date":                   batch.StartDate,
			"end_date":                     batch.EndDate,
			"flags":                        batch.Flags,
			"max_applications_per_student": batch.MaxApplicationsPerStudent,
			"updated_by":                   batch.UpdatedBy,
		}).Error
}

func (s *GormStore) DeleteDraft(ctx context.Context, id, tenantID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.ApplicationBatch{}).
		Where("id = ? AND tenant_id = ? AND status = ? AND is_deleted = ?", id, tenantID, models.BatchStatusDraft, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) ExpiredOpenBatches(ctx context.Context, now time.Time) ([]models.ApplicationBatch, error) {
	var batches []models.ApplicationBatch
	err := s.db.WithContext(ctx).
		Where("status = ? AND end_date < ? AND is_deleted = ?", models.BatchStatusOpen, now, false).
		Find(&batches).Error
	return batches, err
}

// ListBatches returns a tenant's batches, newest first.
func (s *GormStore) ListBatches(ctx context.Context, tenantID string, status models.BatchStatus) ([]models.ApplicationBatch, error) {
	query := s.db.WithContext(ctx).
		Where("tenant_id = ? AND is_deleted = ?", tenantID, false).
		Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var batches []models.ApplicationBatch
	err := query.Find(&batches).Error
	return batches, err
}

func (s *GormStore) PendingRequests(ctx context.Context, batchID, tenantID string) ([]models.HousingRequest, error) {
	var requests []models.HousingRequest
	err := s.db.WithContext(ctx).
		Where("batch_id = ? AND tenant_id = ? AND status = ? AND is_deleted = ?",
			batchID, tenantID, models.RequestStatusPending, false).
		Order("submitted_at ASC, id ASC").
		Find(&requests).Error
	return requests, err
}

func (s *GormStore) CountStudentAssignments(ctx context.Context, batchID, studentID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.HousingRequest{}).
		Where("batch_id = ? AND student_id = ? AND status IN ? AND is_deleted = ?",
			batchID, studentID,
			[]models.RequestStatus{models.RequestStatusAssigned, models.RequestStatusWaitlisted}, false).
		Count(&count).Error
	return int(count), err
}

// FindAvailableBed picks the first free bed in the tenant's estate matching
// the student's preferences. Ordering by id keeps the pick deterministic
// across reruns.
func (s *GormStore) FindAvailableBed(ctx context.Context, tenantID string, prefs models.RoomPreferences) (*models.Bed, error) {
	query := s.db.WithContext(ctx).
		Model(&models.Bed{}).
		Joins("JOIN rooms ON rooms.id = beds.room_id").
		Joins("JOIN complexes ON complexes.id = rooms.complex_id").
		Where("complexes.tenant_id = ? AND beds.occupied = ? AND beds.is_deleted = ?", tenantID, false, false)
	if len(prefs.ComplexIDs) > 0 {
		query = query.Where("complexes.id IN ?", prefs.ComplexIDs)
	}
	if prefs.RoomType != "" {
		query = query.Where("rooms.type = ?", prefs.RoomType)
	}

	var bed models.Bed
	err := query.Order("beds.id ASC").First(&bed).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &bed, nil
}

// ClaimBed marks the bed occupied only if it still is not, reporting whether
// this caller won the slot.
func (s *GormStore) ClaimBed(ctx context.Context, bedID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.Bed{}).
		Where("id = ? AND occupied = ?", bedID, false).
		Update("occupied", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) ReleaseBed(ctx context.Context, bedID string) error {
	return s.db.WithContext(ctx).
		Model(&models.Bed{}).
		Where("id = ?", bedID).
		Update("occupied", false).Error
}

func (s *GormStore) CreateAssignment(ctx context.Context, assignment *models.RoomAssignment) error {
	return s.db.WithContext(ctx).Create(assignment).Error
}

func (s *GormStore) UpdateRequestStatus(ctx context.Context, requestID string, status models.RequestStatus, reason string) error {
	return s.db.WithContext(ctx).
		Model(&models.HousingRequest{}).
		Where("id = ?", requestID).
		Updates(map[string]interface{}{
			"status": status,
			"reason": reason,
		}).Error
}

// AssignmentsForBatch returns the bindings produced for a batch, with beds
// preloaded for reporting.
func (s *GormStore) AssignmentsForBatch(ctx context.Context, batchID, tenantID string) ([]models.RoomAssignment, error) {
	var assignments []models.RoomAssignment
	err := s.db.WithContext(ctx).
		Preload("Bed").
		Where("batch_id = ? AND tenant_id = ?", batchID, tenantID).
		Order("assigned_at ASC").
		Find(&assignments).Error
	return assignments, err
}
