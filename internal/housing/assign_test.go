package housing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crou/internal/models"
)

func newProcessor(store *fakeStore) *Processor {
	return NewProcessor(store, store)
}

func TestProcessRequiresProcessingStatus(t *testing.T) {
	store := newFakeStore()
	batch := store.addBatch(models.BatchStatusClosed, models.BatchFlags{})

	_, err := newProcessor(store).ProcessBatch(context.Background(), batch.ID, testTenant, "worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected PROCESSING")
}

// Three requests, two beds: the two earliest submissions get the beds, the
// third is waitlisted.
func TestProcessAssignsInSubmissionOrder(t *testing.T) {
	store := newFakeStore()
	batch := store.addBatch(models.BatchStatusProcessing, models.BatchFlags{})
	base := time.Now().Add(-time.Hour)

	first := store.addRequest(batch.ID, "student-1", base, true, models.RoomPreferences{})
	second := store.addRequest(batch.ID, "student-2", base.Add(time.Minute), true, models.RoomPreferences{})
	third := store.addRequest(batch.ID, "student-3", base.Add(2*time.Minute), true, models.RoomPreferences{})
	store.addBed("SINGLE")
	store.addBed("SINGLE")

	report, err := newProcessor(store).ProcessBatch(context.Background(), batch.ID, testTenant, "worker")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Assigned)
	assert.Equal(t, 1, report.Waitlisted)
	assert.Equal(t, 0, report.Rejected)
	assert.Equal(t, 0, report.Failed)

	assert.Equal(t, models.RequestStatusAssigned, store.requests[first.ID].Status)
	assert.Equal(t, models.RequestStatusAssigned, store.requests[second.ID].Status)
	assert.Equal(t, models.RequestStatusWaitlisted, store.requests[third.ID].Status)
	assert.Len(t, store.assignments, 2)
}

// A rerun over the same batch leaves prior outcomes untouched and only picks
// up still-pending requests.
func TestProcessRerunIsIdempotent(t *testing.T) {
	store := newFakeStore()
	batch := store.addBatch(models.BatchStatusProcessing, models.BatchFlags{})
	base := time.Now().Add(-time.Hour)

	first := store.addRequest(batch.ID, "student-1", base, true, models.RoomPreferences{})
	store.addBed("SINGLE")
	store.addBed("SINGLE")

	processor := newProcessor(store)
	ctx := context.Background()

	report, err := processor.ProcessBatch(ctx, batch.ID, testTenant, "worker")
	require.NoError(t, err)
	require.Equal(t, 1, report.Assigned)
	firstBed := store.assignments[first.ID].BedID

	// A late request arrives before the rerun
	late := store.addRequest(batch.ID, "student-2", base.Add(time.Minute), true, models.RoomPreferences{})

	report, err = processor.ProcessBatch(ctx, batch.ID, testTenant, "worker")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Assigned)
	assert.Equal(t, 0, report.Failed)

	// The first binding did not move
	assert.Equal(t, firstBed, store.assignments[first.ID].BedID)
	assert.Equal(t, models.RequestStatusAssigned, store.requests[late.ID].Status)
	assert.Len(t, store.assignments, 2)
}

func TestProcessEnforcesPerStudentCap(t *testing.T) {
	store := newFakeStore()
	batch := store.addBatch(models.BatchStatusProcessing, models.BatchFlags{})
	base := time.Now().Add(-time.Hour)

	first := store.addRequest(batch.ID, "student-1", base, true, models.RoomPreferences{})
	duplicate := store.addRequest(batch.ID, "student-1", base.Add(time.Minute), true, models.RoomPreferences{})
	store.addBed("SINGLE")
	store.addBed("SINGLE")

	report, err := newProcessor(store).ProcessBatch(context.Background(), batch.ID, testTenant, "worker")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Assigned)
	assert.Equal(t, 1, report.Rejected)

	assert.Equal(t, models.RequestStatusAssigned, store.requests[first.ID].Status)
	assert.Equal(t, models.RequestStatusRejected, store.requests[duplicate.ID].Status)
	assert.Contains(t, store.requests[duplicate.ID].Reason, "exceeds")
}

func TestProcessEligibilityGate(t *testing.T) {
	store := newFakeStore()
	batch := store.addBatch(models.BatchStatusProcessing, models.BatchFlags{AutoApproveEnabled: true})
	base := time.Now().Add(-time.Hour)

	eligible := store.addRequest(batch.ID, "student-1", base, true, models.RoomPreferences{})
	ineligible := store.addRequest(batch.ID, "student-2", base.Add(time.Minute), false, models.RoomPreferences{})
	store.addBed("SINGLE")
	store.addBed("SINGLE")

	report, err := newProcessor(store).ProcessBatch(context.Background(), batch.ID, testTenant, "worker")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Assigned)
	assert.Equal(t, 1, report.Rejected)

	assert.Equal(t, models.RequestStatusAssigned, store.requests[eligible.ID].Status)
	assert.Equal(t, models.RequestStatusRejected, store.requests[ineligible.ID].Status)
}

func TestProcessHonorsRoomTypePreference(t *testing.T) {
	store := newFakeStore()
	batch := store.addBatch(models.BatchStatusProcessing, models.BatchFlags{})
	base := time.Now().Add(-time.Hour)

	picky := store.addRequest(batch.ID, "student-1", base, true, models.RoomPreferences{RoomType: "DOUBLE"})
	store.addBed("SINGLE")
	double := store.addBed("DOUBLE")

	report, err := newProcessor(store).ProcessBatch(context.Background(), batch.ID, testTenant, "worker")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Assigned)
	assert.Equal(t, double.ID, store.assignments[picky.ID].BedID)
}

func TestProcessNoMatchingCapacityWaitlists(t *testing.T) {
	store := newFakeStore()
	batch := store.addBatch(models.BatchStatusProcessing, models.BatchFlags{})

	picky := store.addRequest(batch.ID, "student-1", time.Now().Add(-time.Hour), true,
		models.RoomPreferences{RoomType: "DOUBLE"})
	store.addBed("SINGLE")

	report, err := newProcessor(store).ProcessBatch(context.Background(), batch.ID, testTenant, "worker")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Waitlisted)
	assert.Equal(t, models.RequestStatusWaitlisted, store.requests[picky.ID].Status)
	assert.Contains(t, store.requests[picky.ID].Reason, "capacity")
}

// A storage failure on one request does not abort the pass; the bed it
// claimed is released for the next request.
func TestProcessFailureIsolation(t *testing.T) {
	store := newFakeStore()
	batch := store.addBatch(models.BatchStatusProcessing, models.BatchFlags{})
	base := time.Now().Add(-time.Hour)

	broken := store.addRequest(batch.ID, "student-1", base, true, models.RoomPreferences{})
	healthy := store.addRequest(batch.ID, "student-2", base.Add(time.Minute), true, models.RoomPreferences{})
	bed := store.addBed("SINGLE")
	store.failAssignFor[broken.ID] = true

	report, err := newProcessor(store).ProcessBatch(context.Background(), batch.ID, testTenant, "worker")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Assigned)

	// The failed request stays PENDING for a rerun; its bed went to the next
	assert.Equal(t, models.RequestStatusPending, store.requests[broken.ID].Status)
	assert.Equal(t, bed.ID, store.assignments[healthy.ID].BedID)

	var failedOutcome *Outcome
	for i := range report.Outcomes {
		if report.Outcomes[i].RequestID == broken.ID {
			failedOutcome = &report.Outcomes[i]
		}
	}
	require.NotNil(t, failedOutcome)
	assert.True(t, failedOutcome.Failed)
	assert.Contains(t, failedOutcome.Reason, "insert failed")
}
