package housing

import (
	"context"
	"fmt"
	"time"

	"crou/internal/models"
	"crou/internal/utils"
	"crou/internal/utils/logger"
)

// AssignmentStore is the persistence surface of the assignment pass.
// ClaimBed is the per-slot serialization point: it must flip Occupied only
// when the bed is currently free, atomically, so two concurrent passes can
// never bind the same slot twice.
type AssignmentStore interface {
	// PendingRequests returns the batch's PENDING requests ordered by
	// submission time then id, so reruns walk an identical sequence.
	PendingRequests(ctx context.Context, batchID, tenantID string) ([]models.HousingRequest, error)
	// CountStudentAssignments counts non-rejected requests a student already
	// holds in the batch (assigned or waitlisted).
	CountStudentAssignments(ctx context.Context, batchID, studentID string) (int, error)
	FindAvailableBed(ctx context.Context, tenantID string, prefs models.RoomPreferences) (*models.Bed, error)
	ClaimBed(ctx context.Context, bedID string) (bool, error)
	ReleaseBed(ctx context.Context, bedID string) error
	CreateAssignment(ctx context.Context, assignment *models.RoomAssignment) error
	UpdateRequestStatus(ctx context.Context, requestID string, status models.RequestStatus, reason string) error
}

// Outcome records the fate of one request during a pass.
type Outcome struct {
	RequestID string               `json:"requestId"`
	StudentID string               `json:"studentId"`
	Status    models.RequestStatus `json:"status"`
	Reason    string               `json:"reason,omitempty"`
	Failed    bool                 `json:"failed,omitempty"`
}

// Report aggregates an assignment pass. Failures are per-request and never
// abort the batch.
type Report struct {
	BatchID    string    `json:"batchId"`
	Assigned   int       `json:"assigned"`
	Waitlisted int       `json:"waitlisted"`
	Rejected   int       `json:"rejected"`
	Failed     int       `json:"failed"`
	Outcomes   []Outcome `json:"outcomes"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Processor runs the room assignment pass over a closed batch.
type Processor struct {
	batches BatchStore
	store   AssignmentStore
	log     *logger.Logger
}

func NewProcessor(batches BatchStore, store AssignmentStore) *Processor {
	return &Processor{
		batches: batches,
		store:   store,
		log:     logger.New("assignment"),
	}
}

// ProcessBatch walks the batch's pending requests in submission order and
// binds each to an available bed. The batch must be PROCESSING (the
// lifecycle moves it there from CLOSED before the pass starts). Reruns are
// idempotent in outcome: requests that already left PENDING are not touched.
func (p *Processor) ProcessBatch(ctx context.Context, batchID, tenantID, actor string) (*Report, error) {
	batch, err := p.batches.GetBatch(ctx, batchID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("batch %s not found for tenant %s: %w", batchID, tenantID, err)
	}
	if batch.Status != models.BatchStatusProcessing {
		return nil, fmt.Errorf("batch %s is %s, expected %s", batchID, batch.Status, models.BatchStatusProcessing)
	}

	var flags models.BatchFlags
	if err := utils.DecodeJSON(batch.Flags, &flags); err != nil {
		return nil, fmt.Errorf("batch %s has malformed flags: %w", batchID, err)
	}

	requests, err := p.store.PendingRequests(ctx, batchID, tenantID)
	if err != nil {
		return nil, err
	}

	report := &Report{BatchID: batchID, StartedAt: time.Now()}
	// Per-student tally across this pass, seeded lazily from the store so
	// duplicates beyond the cap are caught even across reruns.
	tally := make(map[string]int)

	for _, request := range requests {
		outcome := p.processRequest(ctx, batch, flags, request, tally)
		report.Outcomes = append(report.Outcomes, outcome)
		switch {
		case outcome.Failed:
			report.Failed++
		case outcome.Status == models.RequestStatusAssigned:
			report.Assigned++
		case outcome.Status == models.RequestStatusWaitlisted:
			report.Waitlisted++
		case outcome.Status == models.RequestStatusRejected:
			report.Rejected++
		}
	}

	report.FinishedAt = time.Now()
	p.log.Info("Batch %s processed by %s: %d assigned, %d waitlisted, %d rejected, %d failed",
		batchID, actor, report.Assigned, report.Waitlisted, report.Rejected, report.Failed)
	return report, nil
}

func (p *Processor) processRequest(ctx context.Context, batch *models.ApplicationBatch, flags models.BatchFlags, request models.HousingRequest, tally map[string]int) Outcome {
	outcome := Outcome{RequestID: request.ID, StudentID: request.StudentID}

	if request.Status != models.RequestStatusPending {
		outcome.Status = request.Status
		outcome.Reason = "already processed"
		return outcome
	}

	prior, counted := tally[request.StudentID]
	if !counted {
		existing, err := p.store.CountStudentAssignments(ctx, batch.ID, request.StudentID)
		if err != nil {
			return p.fail(ctx, outcome, fmt.Sprintf("counting prior applications: %v", err))
		}
		prior = existing
	}

	if prior >= batch.MaxApplicationsPerStudent {
		outcome.Status = models.RequestStatusRejected
		outcome.Reason = fmt.Sprintf("student exceeds %d application(s) for this batch", batch.MaxApplicationsPerStudent)
		if err := p.store.UpdateRequestStatus(ctx, request.ID, outcome.Status, outcome.Reason); err != nil {
			return p.fail(ctx, outcome, err.Error())
		}
		return outcome
	}

	if flags.AutoApproveEnabled && !request.EligibleAutoAssign {
		outcome.Status = models.RequestStatusRejected
		outcome.Reason = "not eligible for automatic assignment"
		if err := p.store.UpdateRequestStatus(ctx, request.ID, outcome.Status, outcome.Reason); err != nil {
			return p.fail(ctx, outcome, err.Error())
		}
		return outcome
	}

	var prefs models.RoomPreferences
	if err := utils.DecodeJSON(request.Preferences, &prefs); err != nil {
		return p.fail(ctx, outcome, fmt.Sprintf("malformed preferences: %v", err))
	}

	bed, err := p.claimMatchingBed(ctx, batch.TenantID, prefs)
	if err != nil {
		return p.fail(ctx, outcome, err.Error())
	}
	if bed == nil {
		outcome.Status = models.RequestStatusWaitlisted
		outcome.Reason = "no matching capacity"
		if err := p.store.UpdateRequestStatus(ctx, request.ID, outcome.Status, outcome.Reason); err != nil {
			return p.fail(ctx, outcome, err.Error())
		}
		tally[request.StudentID] = prior + 1
		return outcome
	}

	assignment := &models.RoomAssignment{
		RequestID:  request.ID,
		BedID:      bed.ID,
		BatchID:    batch.ID,
		TenantID:   batch.TenantID,
		AssignedAt: time.Now(),
	}
	if err := p.store.CreateAssignment(ctx, assignment); err != nil {
		// Give the slot back before recording the failure.
		if relErr := p.store.ReleaseBed(ctx, bed.ID); relErr != nil {
			p.log.Warn("Failed to release bed %s after assignment error: %v", bed.ID, relErr)
		}
		return p.fail(ctx, outcome, fmt.Sprintf("creating assignment: %v", err))
	}

	outcome.Status = models.RequestStatusAssigned
	if err := p.store.UpdateRequestStatus(ctx, request.ID, outcome.Status, ""); err != nil {
		return p.fail(ctx, outcome, err.Error())
	}
	tally[request.StudentID] = prior + 1
	return outcome
}

// claimMatchingBed finds a free bed matching the preferences and claims it
// with a compare-and-set; on a lost race it retries with the next candidate.
func (p *Processor) claimMatchingBed(ctx context.Context, tenantID string, prefs models.RoomPreferences) (*models.Bed, error) {
	for {
		bed, err := p.store.FindAvailableBed(ctx, tenantID, prefs)
		if err != nil {
			return nil, err
		}
		if bed == nil {
			return nil, nil
		}
		claimed, err := p.store.ClaimBed(ctx, bed.ID)
		if err != nil {
			return nil, err
		}
		if claimed {
			return bed, nil
		}
		// Lost the slot to a concurrent claim; look for another.
	}
}

func (p *Processor) fail(ctx context.Context, outcome Outcome, reason string) Outcome {
	outcome.Failed = true
	outcome.Reason = reason
	p.log.Warn("Request %s failed: %s", outcome.RequestID, reason)
	return outcome
}
