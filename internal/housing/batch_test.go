package housing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"crou/internal/apperrors"
	"crou/internal/models"
	"crou/internal/utils"
)

const testTenant = "tenant-crou-nord"

// fakeStore is an in-memory BatchStore + AssignmentStore guarded by one
// mutex, so the conditional updates behave like the database ones under
// concurrency.
type fakeStore struct {
	mu          sync.Mutex
	batches     map[string]*models.ApplicationBatch
	requests    map[string]*models.HousingRequest
	beds        map[string]*models.Bed
	rooms       map[string]*models.Room
	complexes   map[string]*models.Complex
	assignments map[string]*models.RoomAssignment

	failAssignFor map[string]bool // request IDs whose assignment insert fails
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		batches:       map[string]*models.ApplicationBatch{},
		requests:      map[string]*models.HousingRequest{},
		beds:          map[string]*models.Bed{},
		rooms:         map[string]*models.Room{},
		complexes:     map[string]*models.Complex{},
		assignments:   map[string]*models.RoomAssignment{},
		failAssignFor: map[string]bool{},
	}
}

func (f *fakeStore) GetBatch(ctx context.Context, id, tenantID string) (*models.ApplicationBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch, ok := f.batches[id]
	if !ok || batch.TenantID != tenantID || batch.IsDeleted {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *batch
	return &copied, nil
}

func (f *fakeStore) CreateBatch(ctx context.Context, batch *models.ApplicationBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}
	copied := *batch
	f.batches[batch.ID] = &copied
	return nil
}

func (f *fakeStore) Transition(ctx context.Context, id, tenantID string, from []models.BatchStatus, to models.BatchStatus, actor string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch, ok := f.batches[id]
	if !ok || batch.TenantID != tenantID || batch.IsDeleted {
		return false, nil
	}
	for _, status := range from {
		if batch.Status == status {
			batch.Status = to
			batch.UpdatedBy = actor
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) UpdateDraft(ctx context.Context, batch *models.ApplicationBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.batches[batch.ID]
	if !ok || current.Status != models.BatchStatusDraft {
		return gorm.ErrRecordNotFound
	}
	copied := *batch
	f.batches[batch.ID] = &copied
	return nil
}

func (f *fakeStore) DeleteDraft(ctx context.Context, id, tenantID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch, ok := f.batches[id]
	if !ok || batch.TenantID != tenantID || batch.Status != models.BatchStatusDraft {
		return false, nil
	}
	batch.IsDeleted = true
	return true, nil
}

func (f *fakeStore) ExpiredOpenBatches(ctx context.Context, now time.Time) ([]models.ApplicationBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var expired []models.ApplicationBatch
	for _, batch := range f.batches {
		if batch.Status == models.BatchStatusOpen && batch.EndDate.Before(now) && !batch.IsDeleted {
			expired = append(expired, *batch)
		}
	}
	return expired, nil
}

func (f *fakeStore) PendingRequests(ctx context.Context, batchID, tenantID string) ([]models.HousingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []models.HousingRequest
	for _, request := range f.requests {
		if request.BatchID == batchID && request.TenantID == tenantID && request.Status == models.RequestStatusPending {
			pending = append(pending, *request)
		}
	}
	// Submission order, id as tiebreaker
	for i := 0; i < len(pending); i++ {
		for j := i + 1; j < len(pending); j++ {
			earlier := pending[j].SubmittedAt.Before(pending[i].SubmittedAt)
			tie := pending[j].SubmittedAt.Equal(pending[i].SubmittedAt) && pending[j].ID < pending[i].ID
			if earlier || tie {
				pending[i], pending[j] = pending[j], pending[i]
			}
		}
	}
	return pending, nil
}

func (f *fakeStore) CountStudentAssignments(ctx context.Context, batchID, studentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, request := range f.requests {
		if request.BatchID == batchID && request.StudentID == studentID &&
			(request.Status == models.RequestStatusAssigned || request.Status == models.RequestStatusWaitlisted) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) FindAvailableBed(ctx context.Context, tenantID string, prefs models.RoomPreferences) (*models.Bed, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var candidates []*models.Bed
	for _, bed := range f.beds {
		if bed.Occupied {
			continue
		}
		room := f.rooms[bed.RoomID]
		complex := f.complexes[room.ComplexID]
		if complex.TenantID != tenantID {
			continue
		}
		if prefs.RoomType != "" && room.Type != prefs.RoomType {
			continue
		}
		if len(prefs.ComplexIDs) > 0 && !contains(prefs.ComplexIDs, complex.ID) {
			continue
		}
		candidates = append(candidates, bed)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	best := candidates[0]
	for _, bed := range candidates[1:] {
		if bed.ID < best.ID {
			best = bed
		}
	}
	copied := *best
	return &copied, nil
}

func (f *fakeStore) ClaimBed(ctx context.Context, bedID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bed, ok := f.beds[bedID]
	if !ok || bed.Occupied {
		return false, nil
	}
	bed.Occupied = true
	return true, nil
}

func (f *fakeStore) ReleaseBed(ctx context.Context, bedID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bed, ok := f.beds[bedID]; ok {
		bed.Occupied = false
	}
	return nil
}

func (f *fakeStore) CreateAssignment(ctx context.Context, assignment *models.RoomAssignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAssignFor[assignment.RequestID] {
		return fmt.Errorf("insert failed")
	}
	if _, exists := f.assignments[assignment.RequestID]; exists {
		return fmt.Errorf("duplicate assignment for request %s", assignment.RequestID)
	}
	if assignment.ID == "" {
		assignment.ID = uuid.New().String()
	}
	copied := *assignment
	f.assignments[assignment.RequestID] = &copied
	return nil
}

func (f *fakeStore) UpdateRequestStatus(ctx context.Context, requestID string, status models.RequestStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	request, ok := f.requests[requestID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	request.Status = status
	request.Reason = reason
	return nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func (f *fakeStore) addBatch(status models.BatchStatus, flags models.BatchFlags) *models.ApplicationBatch {
	encoded, _ := utils.EncodeJSON(flags)
	batch := &models.ApplicationBatch{
		Base:                      models.Base{ID: uuid.New().String()},
		TenantID:                  testTenant,
		Name:                      "Campagne 2026",
		Type:                      "HOUSING",
		AcademicYear:              "2026-2027",
		StartDate:                 time.Now().Add(-24 * time.Hour),
		EndDate:                   time.Now().Add(24 * time.Hour),
		Status:                    status,
		Flags:                     encoded,
		MaxApplicationsPerStudent: 1,
	}
	f.mu.Lock()
	f.batches[batch.ID] = batch
	f.mu.Unlock()
	return batch
}

func (f *fakeStore) addRequest(batchID, studentID string, submitted time.Time, eligible bool, prefs models.RoomPreferences) *models.HousingRequest {
	encoded, _ := utils.EncodeJSON(prefs)
	request := &models.HousingRequest{
		Base:               models.Base{ID: uuid.New().String()},
		BatchID:            batchID,
		TenantID:           testTenant,
		StudentID:          studentID,
		Preferences:        encoded,
		EligibleAutoAssign: eligible,
		Status:             models.RequestStatusPending,
		SubmittedAt:        submitted,
	}
	f.mu.Lock()
	f.requests[request.ID] = request
	f.mu.Unlock()
	return request
}

func (f *fakeStore) addBed(roomType string) *models.Bed {
	f.mu.Lock()
	defer f.mu.Unlock()
	complexID := ""
	for id := range f.complexes {
		complexID = id
		break
	}
	if complexID == "" {
		complexID = uuid.New().String()
		f.complexes[complexID] = &models.Complex{
			Base:     models.Base{ID: complexID},
			TenantID: testTenant,
			Name:     "Cité A",
		}
	}
	roomID := uuid.New().String()
	f.rooms[roomID] = &models.Room{
		Base:      models.Base{ID: roomID},
		ComplexID: complexID,
		Number:    roomID[:8],
		Type:      roomType,
		Capacity:  1,
	}
	bed := &models.Bed{
		Base:   models.Base{ID: uuid.New().String()},
		RoomID: roomID,
		Label:  "A",
	}
	f.beds[bed.ID] = bed
	return bed
}

func kindOf(t *testing.T, err error) apperrors.Kind {
	t.Helper()
	require.Error(t, err)
	return apperrors.KindOf(err)
}

func TestCreateRequiresFields(t *testing.T) {
	store := newFakeStore()
	lifecycle := NewLifecycle(store)

	err := lifecycle.Create(context.Background(), &models.ApplicationBatch{}, "admin-1")
	assert.Equal(t, apperrors.KindMissingFields, kindOf(t, err))
}

func TestCreateForcesDraft(t *testing.T) {
	store := newFakeStore()
	lifecycle := NewLifecycle(store)

	batch := &models.ApplicationBatch{
		TenantID:     testTenant,
		Name:         "Campagne 2026",
		Type:         "HOUSING",
		AcademicYear: "2026-2027",
		StartDate:    time.Now(),
		EndDate:      time.Now().Add(30 * 24 * time.Hour),
		Status:       models.BatchStatusOpen, // ignored
	}
	require.NoError(t, lifecycle.Create(context.Background(), batch, "admin-1"))
	assert.Equal(t, models.BatchStatusDraft, batch.Status)
	assert.Equal(t, 1, batch.MaxApplicationsPerStudent)
}

func TestTransitionMatrix(t *testing.T) {
	type step func(l *Lifecycle, ctx context.Context, id string) error
	open := func(l *Lifecycle, ctx context.Context, id string) error {
		return l.Open(ctx, id, testTenant, "admin-1")
	}
	closeBatch := func(l *Lifecycle, ctx context.Context, id string) error {
		return l.Close(ctx, id, testTenant, "admin-1")
	}
	process := func(l *Lifecycle, ctx context.Context, id string) error {
		return l.StartProcessing(ctx, id, testTenant, "admin-1")
	}
	complete := func(l *Lifecycle, ctx context.Context, id string) error {
		return l.Complete(ctx, id, testTenant, "admin-1")
	}
	archive := func(l *Lifecycle, ctx context.Context, id string) error {
		return l.Archive(ctx, id, testTenant, "admin-1")
	}

	tests := []struct {
		name    string
		start   models.BatchStatus
		op      step
		want    models.BatchStatus
		wantErr bool
	}{
		{"open draft", models.BatchStatusDraft, open, models.BatchStatusOpen, false},
		{"reopen closed", models.BatchStatusClosed, open, models.BatchStatusOpen, false},
		{"open already open", models.BatchStatusOpen, open, models.BatchStatusOpen, true},
		{"open archived", models.BatchStatusArchived, open, models.BatchStatusArchived, true},
		{"close open", models.BatchStatusOpen, closeBatch, models.BatchStatusClosed, false},
		{"close draft", models.BatchStatusDraft, closeBatch, models.BatchStatusDraft, true},
		{"close completed", models.BatchStatusCompleted, closeBatch, models.BatchStatusCompleted, true},
		{"process closed", models.BatchStatusClosed, process, models.BatchStatusProcessing, false},
		{"process open", models.BatchStatusOpen, process, models.BatchStatusOpen, true},
		{"process draft", models.BatchStatusDraft, process, models.BatchStatusDraft, true},
		{"complete processing", models.BatchStatusProcessing, complete, models.BatchStatusCompleted, false},
		{"complete closed", models.BatchStatusClosed, complete, models.BatchStatusClosed, true},
		{"archive completed", models.BatchStatusCompleted, archive, models.BatchStatusArchived, false},
		{"archive open", models.BatchStatusOpen, archive, models.BatchStatusOpen, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			lifecycle := NewLifecycle(store)
			batch := store.addBatch(tc.start, models.BatchFlags{})

			err := tc.op(lifecycle, context.Background(), batch.ID)
			if tc.wantErr {
				assert.Equal(t, apperrors.KindInvalidTransition, kindOf(t, err))
			} else {
				require.NoError(t, err)
			}

			current, getErr := store.GetBatch(context.Background(), batch.ID, testTenant)
			require.NoError(t, getErr)
			assert.Equal(t, tc.want, current.Status)
		})
	}
}

func TestUpdateOnlyDraft(t *testing.T) {
	store := newFakeStore()
	lifecycle := NewLifecycle(store)
	ctx := context.Background()

	draft := store.addBatch(models.BatchStatusDraft, models.BatchFlags{})
	patch := *draft
	patch.Name = "Campagne renommée"
	require.NoError(t, lifecycle.Update(ctx, draft.ID, testTenant, &patch, "admin-1"))

	current, err := store.GetBatch(ctx, draft.ID, testTenant)
	require.NoError(t, err)
	assert.Equal(t, "Campagne renommée", current.Name)

	open := store.addBatch(models.BatchStatusOpen, models.BatchFlags{})
	err = lifecycle.Update(ctx, open.ID, testTenant, &patch, "admin-1")
	assert.Equal(t, apperrors.KindImmutableAfterDraft, kindOf(t, err))

	err = lifecycle.Delete(ctx, open.ID, testTenant, "admin-1")
	assert.Equal(t, apperrors.KindImmutableAfterDraft, kindOf(t, err))

	require.NoError(t, lifecycle.Delete(ctx, draft.ID, testTenant, "admin-1"))
	_, err = store.GetBatch(ctx, draft.ID, testTenant)
	assert.Error(t, err)
}

func TestUpdateCannotChangeTenant(t *testing.T) {
	store := newFakeStore()
	lifecycle := NewLifecycle(store)
	ctx := context.Background()

	draft := store.addBatch(models.BatchStatusDraft, models.BatchFlags{})
	patch := *draft
	patch.TenantID = "tenant-crou-sud"
	require.NoError(t, lifecycle.Update(ctx, draft.ID, testTenant, &patch, "admin-1"))

	current, err := store.GetBatch(ctx, draft.ID, testTenant)
	require.NoError(t, err)
	assert.Equal(t, testTenant, current.TenantID)
}

// Two concurrent closes of the same OPEN batch: exactly one wins, the other
// observes an invalid transition.
func TestConcurrentCloseSingleWinner(t *testing.T) {
	store := newFakeStore()
	lifecycle := NewLifecycle(store)
	batch := store.addBatch(models.BatchStatusOpen, models.BatchFlags{})

	const racers = 8
	errs := make(chan error, racers)
	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < racers; i++ {
		go func() {
			start.Wait()
			errs <- lifecycle.Close(context.Background(), batch.ID, testTenant, "admin-1")
		}()
	}
	start.Done()

	winners := 0
	for i := 0; i < racers; i++ {
		if err := <-errs; err == nil {
			winners++
		} else {
			assert.Equal(t, apperrors.KindInvalidTransition, apperrors.KindOf(err))
		}
	}
	assert.Equal(t, 1, winners)

	current, err := store.GetBatch(context.Background(), batch.ID, testTenant)
	require.NoError(t, err)
	assert.Equal(t, models.BatchStatusClosed, current.Status)
}

func TestCloseExpiredSweep(t *testing.T) {
	store := newFakeStore()
	lifecycle := NewLifecycle(store)
	ctx := context.Background()

	expired := store.addBatch(models.BatchStatusOpen, models.BatchFlags{})
	store.mu.Lock()
	store.batches[expired.ID].EndDate = time.Now().Add(-time.Hour)
	store.mu.Unlock()

	current := store.addBatch(models.BatchStatusOpen, models.BatchFlags{})
	draft := store.addBatch(models.BatchStatusDraft, models.BatchFlags{})

	closed, err := lifecycle.CloseExpired(ctx, time.Now(), "system")
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	got, _ := store.GetBatch(ctx, expired.ID, testTenant)
	assert.Equal(t, models.BatchStatusClosed, got.Status)
	got, _ = store.GetBatch(ctx, current.ID, testTenant)
	assert.Equal(t, models.BatchStatusOpen, got.Status)
	got, _ = store.GetBatch(ctx, draft.ID, testTenant)
	assert.Equal(t, models.BatchStatusDraft, got.Status)
}
