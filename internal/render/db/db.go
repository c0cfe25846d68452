package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"printmill/internal/models"
	"printmill/internal/render"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- RENDER JOBS ----------------

func (d *DB) GetJobByID(ctx context.Context, id string) (*models.RenderJob, error) {
	var job models.RenderJob
	err := d.Bun.NewSelect().
		Model(&job).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (d *DB) GetJobByKey(ctx context.Context, key string) (*models.RenderJob, error) {
	var job models.RenderJob
	err := d.Bun.NewSelect().
		Model(&job).
		Where("idempotency_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// InsertJobIfAbsent relies on the unique idempotency_key index: a conflicting
// insert becomes a read-back of the winning row instead of an error.
func (d *DB) InsertJobIfAbsent(ctx context.Context, job *models.RenderJob) (*models.RenderJob, bool, error) {
	res, err := d.Bun.NewInsert().
		Model(job).
		On("CONFLICT (idempotency_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if rows == 0 {
		existing, err := d.GetJobByKey(ctx, job.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return job, true, nil
}

// ClaimOldestPending selects the oldest pending job and performs a
// compare-and-set to processing. Exactly one concurrent claimer wins.
func (d *DB) ClaimOldestPending(ctx context.Context, startedAt time.Time) (*models.RenderJob, error) {
	var job models.RenderJob
	err := d.Bun.NewSelect().
		Model(&job).
		Where("status = ?", models.RenderPending).
		Order("created_at ASC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	res, err := d.Bun.NewUpdate().
		Model((*models.RenderJob)(nil)).
		Set("status = ?", models.RenderProcessing).
		Set("started_at = ?", startedAt).
		Set("updated_at = ?", startedAt).
		Where("id = ?", job.ID).
		Where("status = ?", models.RenderPending).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, render.ErrClaimConflict
	}

	return d.GetJobByID(ctx, job.ID)
}

// RequeueJob resets a terminal job to pending for a new attempt. The row (and
// hence the idempotency key) is reused so the key remains unique per design
// content.
func (d *DB) RequeueJob(ctx context.Context, id string, attempt int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.RenderJob)(nil)).
		Set("status = ?", models.RenderPending).
		Set("attempt = ?", attempt).
		Set("failure_reason = NULL").
		Set("result_image_url = NULL").
		Set("started_at = NULL").
		Set("completed_at = NULL").
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]models.RenderJobStatus{models.RenderFailed, models.RenderCancelled})).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (d *DB) CompleteJob(ctx context.Context, id, artifactURL string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.RenderJob)(nil)).
		Set("status = ?", models.RenderCompleted).
		Set("result_image_url = ?", artifactURL).
		Set("completed_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", models.RenderProcessing).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (d *DB) FailJob(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.RenderJob)(nil)).
		Set("status = ?", models.RenderFailed).
		Set("failure_reason = ?", reason).
		Set("completed_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", models.RenderProcessing).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (d *DB) CancelJob(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.RenderJob)(nil)).
		Set("status = ?", models.RenderCancelled).
		Set("completed_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]models.RenderJobStatus{models.RenderPending, models.RenderProcessing})).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// ---------------- DESIGNS ----------------

func (d *DB) GetDesignByID(ctx context.Context, id string) (*models.Design, error) {
	var design models.Design
	err := d.Bun.NewSelect().
		Model(&design).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &design, nil
}

func (d *DB) UpdateDesignStatus(ctx context.Context, designID string, from []models.DesignStatus, to models.DesignStatus) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Design)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", designID).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (d *DB) SetDesignFinalImage(ctx context.Context, designID, url string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Design)(nil)).
		Set("final_image_url = ?", url).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", designID).
		Exec(ctx)
	return err
}
