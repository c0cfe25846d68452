package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"printmill/internal/logger"
	"printmill/internal/models"
)

var (
	ErrJobNotFound         = errors.New("render job not found")
	ErrDesignNotFound      = errors.New("design not found")
	ErrDesignNotRenderable = errors.New("design is not in a renderable state")
	ErrExhaustedRetries    = errors.New("render attempts exhausted, manual resubmission required")
)

// ErrClaimConflict is returned by the store when a concurrent claimer won the
// job first; the orchestrator simply moves on to the next pending job.
var ErrClaimConflict = errors.New("render job claimed by another worker")

type DBLayer interface {
	GetJobByID(ctx context.Context, id string) (*models.RenderJob, error)
	GetJobByKey(ctx context.Context, key string) (*models.RenderJob, error)
	// InsertJobIfAbsent inserts the job unless a row with its idempotency key
	// exists; it returns the stored row and whether this call created it.
	InsertJobIfAbsent(ctx context.Context, job *models.RenderJob) (*models.RenderJob, bool, error)
	// ClaimOldestPending atomically moves one pending job to processing.
	// Returns (nil, nil) when no pending job exists and ErrClaimConflict when
	// a concurrent claimer won the selected job.
	ClaimOldestPending(ctx context.Context, startedAt time.Time) (*models.RenderJob, error)
	// RequeueJob resets a terminal (failed/cancelled) job to pending for the
	// given attempt number. Returns false if the job was not terminal.
	RequeueJob(ctx context.Context, id string, attempt int) (bool, error)
	CompleteJob(ctx context.Context, id, artifactURL string, at time.Time) (bool, error)
	FailJob(ctx context.Context, id, reason string, at time.Time) (bool, error)
	CancelJob(ctx context.Context, id string, at time.Time) (bool, error)

	GetDesignByID(ctx context.Context, id string) (*models.Design, error)
	UpdateDesignStatus(ctx context.Context, designID string, from []models.DesignStatus, to models.DesignStatus) (bool, error)
	SetDesignFinalImage(ctx context.Context, designID, url string) error
}

type Publisher interface {
	PublishDesignEvent(ev models.DesignEvent) error
}

type Orchestrator struct {
	db          DBLayer
	publisher   Publisher
	logger      *logger.Logger
	maxAttempts int
}

func NewOrchestrator(db DBLayer, publisher Publisher, log *logger.Logger, maxAttempts int) *Orchestrator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Orchestrator{db: db, publisher: publisher, logger: log, maxAttempts: maxAttempts}
}

// Submit enqueues a render job for the design, keyed by the design's content
// hash. Resubmitting the identical design resolves to the same job: a live or
// completed job is returned as-is, a failed or cancelled one is requeued with
// attempt+1 until the attempt budget runs out.
func (o *Orchestrator) Submit(ctx context.Context, designID string) (*models.RenderJob, error) {
	design, err := o.db.GetDesignByID(ctx, designID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDesignNotFound, designID)
	}

	key := models.RenderJobKey(design.ID, design.ParamsCRC32)

	if existing, err := o.db.GetJobByKey(ctx, key); err == nil && existing != nil {
		switch existing.Status {
		case models.RenderPending, models.RenderProcessing:
			// At-most-once submission: the in-flight job is the answer.
			o.logger.LogRender("SUBMIT", existing.ID, "duplicate submission resolved to in-flight job")
			return existing, nil
		case models.RenderCompleted:
			// Render result is reused, no new compute is charged.
			o.logger.LogRender("SUBMIT", existing.ID, "duplicate submission resolved to completed job")
			return existing, nil
		case models.RenderFailed, models.RenderCancelled:
			if existing.Attempt >= o.maxAttempts {
				o.logger.LogRender("SUBMIT", existing.ID, fmt.Sprintf("attempt budget (%d) exhausted", o.maxAttempts))
				return nil, fmt.Errorf("%w: design %s", ErrExhaustedRetries, designID)
			}
			requeued, err := o.db.RequeueJob(ctx, existing.ID, existing.Attempt+1)
			if err != nil {
				return nil, fmt.Errorf("failed to requeue job %s: %w", existing.ID, err)
			}
			if !requeued {
				// Lost a race with another submitter; the stored row wins.
				return o.db.GetJobByKey(ctx, key)
			}
			if _, err := o.db.UpdateDesignStatus(ctx, design.ID, []models.DesignStatus{models.DesignFailed, models.DesignDraft}, models.DesignQueued); err != nil {
				return nil, err
			}
			job, err := o.db.GetJobByID(ctx, existing.ID)
			if err != nil {
				return nil, err
			}
			o.logger.LogRender("SUBMIT", job.ID, fmt.Sprintf("requeued as attempt %d", job.Attempt))
			o.publish(models.DesignEventRenderQueued, design, job, "", "")
			return job, nil
		}
	}

	if design.Status != models.DesignDraft && design.Status != models.DesignFailed {
		return nil, fmt.Errorf("%w: design %s is %s", ErrDesignNotRenderable, designID, design.Status)
	}

	job := &models.RenderJob{
		ID:             uuid.NewString(),
		DesignID:       design.ID,
		IdempotencyKey: key,
		Attempt:        1,
		Status:         models.RenderPending,
		RenderParams:   design.Params,
		CreatedAt:      time.Now(),
	}

	stored, created, err := o.db.InsertJobIfAbsent(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to submit render job: %w", err)
	}
	if !created {
		// Concurrent submitter inserted first; return its job.
		o.logger.LogRender("SUBMIT", stored.ID, "insert conflict resolved to existing job")
		return stored, nil
	}

	if _, err := o.db.UpdateDesignStatus(ctx, design.ID, []models.DesignStatus{models.DesignDraft, models.DesignFailed}, models.DesignQueued); err != nil {
		return nil, err
	}

	o.logger.LogRender("SUBMIT", stored.ID, fmt.Sprintf("queued render for design %s (key %s)", design.ID, key))
	o.publish(models.DesignEventRenderQueued, design, stored, "", "")
	return stored, nil
}

// Claim hands one pending job to exactly one caller. Returns (nil, nil) when
// the queue is empty.
func (o *Orchestrator) Claim(ctx context.Context) (*models.RenderJob, error) {
	for {
		job, err := o.db.ClaimOldestPending(ctx, time.Now())
		if errors.Is(err, ErrClaimConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, nil
		}

		if _, err := o.db.UpdateDesignStatus(ctx, job.DesignID, []models.DesignStatus{models.DesignQueued}, models.DesignRendering); err != nil {
			return nil, err
		}

		o.logger.LogRender("CLAIM", job.ID, fmt.Sprintf("claimed attempt %d for design %s", job.Attempt, job.DesignID))
		if design, err := o.db.GetDesignByID(ctx, job.DesignID); err == nil {
			o.publish(models.DesignEventRenderStarted, design, job, "", "")
		}
		return job, nil
	}
}

// Complete records a successful render. Redelivered results for a job already
// in a terminal state are accepted as no-ops; completion wins over a racing
// cancellation.
func (o *Orchestrator) Complete(ctx context.Context, jobID, artifactURL string) (*models.RenderJob, error) {
	job, err := o.db.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status.Terminal() {
		o.logger.LogRender("COMPLETE", jobID, fmt.Sprintf("result redelivered for %s job, ignoring", job.Status))
		return job, nil
	}

	won, err := o.db.CompleteJob(ctx, jobID, artifactURL, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}
	if !won {
		// Another writer reached a terminal state first.
		return o.db.GetJobByID(ctx, jobID)
	}

	if err := o.db.SetDesignFinalImage(ctx, job.DesignID, artifactURL); err != nil {
		return nil, err
	}
	if _, err := o.db.UpdateDesignStatus(ctx, job.DesignID, []models.DesignStatus{models.DesignRendering, models.DesignQueued}, models.DesignReady); err != nil {
		return nil, err
	}

	o.logger.LogRender("COMPLETE", jobID, fmt.Sprintf("design %s is ready (%s)", job.DesignID, artifactURL))
	if design, err := o.db.GetDesignByID(ctx, job.DesignID); err == nil {
		o.publish(models.DesignEventRenderCompleted, design, job, artifactURL, "")
	}
	return o.db.GetJobByID(ctx, jobID)
}

// Fail records a failed render attempt and marks the design failed. Further
// submissions retry with attempt+1 until the budget is exhausted.
func (o *Orchestrator) Fail(ctx context.Context, jobID, reason string) (*models.RenderJob, error) {
	job, err := o.db.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status.Terminal() {
		o.logger.LogRender("FAIL", jobID, fmt.Sprintf("failure redelivered for %s job, ignoring", job.Status))
		return job, nil
	}

	won, err := o.db.FailJob(ctx, jobID, reason, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to fail job %s: %w", jobID, err)
	}
	if !won {
		return o.db.GetJobByID(ctx, jobID)
	}

	if _, err := o.db.UpdateDesignStatus(ctx, job.DesignID, []models.DesignStatus{models.DesignRendering, models.DesignQueued}, models.DesignFailed); err != nil {
		return nil, err
	}

	o.logger.LogRender("FAIL", jobID, fmt.Sprintf("attempt %d failed: %s", job.Attempt, reason))
	if design, err := o.db.GetDesignByID(ctx, job.DesignID); err == nil {
		o.publish(models.DesignEventRenderFailed, design, job, "", reason)
	}
	return o.db.GetJobByID(ctx, jobID)
}

// Cancel stops a pending or processing job. A cancellation racing with
// completion resolves to "already completed".
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (*models.RenderJob, error) {
	job, err := o.db.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status.Terminal() {
		return job, nil
	}

	won, err := o.db.CancelJob(ctx, jobID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}
	if !won {
		// Completion (or another canceller) got there first.
		return o.db.GetJobByID(ctx, jobID)
	}

	if _, err := o.db.UpdateDesignStatus(ctx, job.DesignID, []models.DesignStatus{models.DesignQueued, models.DesignRendering}, models.DesignDraft); err != nil {
		return nil, err
	}

	o.logger.LogRender("CANCEL", jobID, "job cancelled")
	return o.db.GetJobByID(ctx, jobID)
}

// Report applies a render worker result, routing to Complete or Fail.
func (o *Orchestrator) Report(ctx context.Context, result models.RenderResult) (*models.RenderJob, error) {
	if result.Success {
		return o.Complete(ctx, result.JobID, result.ArtifactURL)
	}
	return o.Fail(ctx, result.JobID, result.FailureReason)
}

func (o *Orchestrator) publish(kind string, design *models.Design, job *models.RenderJob, artifactURL, reason string) {
	if o.publisher == nil {
		return
	}
	ev := models.DesignEvent{
		Kind:        kind,
		DesignID:    design.ID,
		UserID:      design.UserID,
		JobID:       job.ID,
		Status:      design.Status,
		ArtifactURL: artifactURL,
		Reason:      reason,
		Timestamp:   time.Now(),
	}
	if err := o.publisher.PublishDesignEvent(ev); err != nil {
		o.logger.Error("KAFKA", fmt.Sprintf("Failed to publish %s for design %s: %v", kind, design.ID, err))
	}
}
