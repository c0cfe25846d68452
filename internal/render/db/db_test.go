package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"printmill/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	ctx := context.Background()
	if err := bunDB.ResetModel(ctx, (*models.RenderJob)(nil)); err != nil {
		t.Fatalf("failed to create render_jobs: %v", err)
	}
	if err := bunDB.ResetModel(ctx, (*models.Design)(nil)); err != nil {
		t.Fatalf("failed to create designs: %v", err)
	}
	return &DB{Bun: bunDB}
}

func pendingJob(id, designID, key string) *models.RenderJob {
	return &models.RenderJob{
		ID:             id,
		DesignID:       designID,
		IdempotencyKey: key,
		Attempt:        1,
		Status:         models.RenderPending,
		CreatedAt:      time.Now().Round(time.Second),
	}
}

func TestInsertJobIfAbsentResolvesConflictToExisting(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first := pendingJob("job-1", "design-1", "render:design-1:deadbeef")
	stored, created, err := db.InsertJobIfAbsent(ctx, first)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if !created || stored.ID != "job-1" {
		t.Fatalf("expected fresh insert of job-1, got created=%v id=%s", created, stored.ID)
	}

	dup := pendingJob("job-2", "design-1", "render:design-1:deadbeef")
	stored, created, err = db.InsertJobIfAbsent(ctx, dup)
	if err != nil {
		t.Fatalf("conflicting insert failed: %v", err)
	}
	if created {
		t.Error("conflicting insert must not create a row")
	}
	if stored.ID != "job-1" {
		t.Errorf("expected existing job-1 back, got %s", stored.ID)
	}
}

func TestClaimOldestPendingIsExclusive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := pendingJob("job-1", "design-1", "render:design-1:deadbeef")
	if _, _, err := db.InsertJobIfAbsent(ctx, job); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	claimed, err := db.ClaimOldestPending(ctx, time.Now())
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed == nil || claimed.Status != models.RenderProcessing {
		t.Fatalf("expected processing job, got %+v", claimed)
	}

	second, err := db.ClaimOldestPending(ctx, time.Now())
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if second != nil {
		t.Errorf("expected empty queue, claimed %s", second.ID)
	}
}

func TestCompleteJobOnlyFromProcessing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := pendingJob("job-1", "design-1", "render:design-1:deadbeef")
	if _, _, err := db.InsertJobIfAbsent(ctx, job); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// pending → completed must be rejected
	won, err := db.CompleteJob(ctx, "job-1", "https://cdn.example.com/a.png", time.Now())
	if err != nil {
		t.Fatalf("complete errored: %v", err)
	}
	if won {
		t.Error("completing a pending job must not win")
	}

	if _, err := db.ClaimOldestPending(ctx, time.Now()); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	won, err = db.CompleteJob(ctx, "job-1", "https://cdn.example.com/a.png", time.Now())
	if err != nil || !won {
		t.Fatalf("expected completion to win, got won=%v err=%v", won, err)
	}

	// second delivery is a no-op at the store level
	won, err = db.CompleteJob(ctx, "job-1", "https://cdn.example.com/a.png", time.Now())
	if err != nil {
		t.Fatalf("redelivered complete errored: %v", err)
	}
	if won {
		t.Error("redelivered completion must not win twice")
	}
}

func TestRequeueJobResetsTerminalRow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	job := pendingJob("job-1", "design-1", "render:design-1:deadbeef")
	if _, _, err := db.InsertJobIfAbsent(ctx, job); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := db.ClaimOldestPending(ctx, time.Now()); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if won, err := db.FailJob(ctx, "job-1", "boom", time.Now()); err != nil || !won {
		t.Fatalf("fail did not win: won=%v err=%v", won, err)
	}

	requeued, err := db.RequeueJob(ctx, "job-1", 2)
	if err != nil || !requeued {
		t.Fatalf("requeue failed: requeued=%v err=%v", requeued, err)
	}

	got, err := db.GetJobByID(ctx, "job-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != models.RenderPending || got.Attempt != 2 {
		t.Errorf("expected pending attempt 2, got %s attempt %d", got.Status, got.Attempt)
	}
	if got.FailureReason != "" {
		t.Errorf("expected cleared failure reason, got %q", got.FailureReason)
	}

	// requeueing a pending row must be rejected
	requeued, err = db.RequeueJob(ctx, "job-1", 3)
	if err != nil {
		t.Fatalf("requeue errored: %v", err)
	}
	if requeued {
		t.Error("requeue must only apply to terminal jobs")
	}
}

func TestUpdateDesignStatusCAS(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	design := &models.Design{
		ID:         "design-1",
		UserID:     "user-1",
		TemplateID: "tmpl-1",
		Version:    1,
		Status:     models.DesignDraft,
		CreatedAt:  time.Now(),
	}
	if _, err := db.Bun.NewInsert().Model(design).Exec(ctx); err != nil {
		t.Fatalf("seed design failed: %v", err)
	}

	moved, err := db.UpdateDesignStatus(ctx, "design-1", []models.DesignStatus{models.DesignDraft}, models.DesignQueued)
	if err != nil || !moved {
		t.Fatalf("expected transition to win: moved=%v err=%v", moved, err)
	}

	moved, err = db.UpdateDesignStatus(ctx, "design-1", []models.DesignStatus{models.DesignDraft}, models.DesignQueued)
	if err != nil {
		t.Fatalf("transition errored: %v", err)
	}
	if moved {
		t.Error("stale transition must be rejected")
	}
}
