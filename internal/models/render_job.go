package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type RenderJobStatus string

const (
	RenderPending    RenderJobStatus = "pending"
	RenderProcessing RenderJobStatus = "processing"
	RenderCompleted  RenderJobStatus = "completed"
	RenderFailed     RenderJobStatus = "failed"
	RenderCancelled  RenderJobStatus = "cancelled"
)

func ParseRenderJobStatus(s string) (RenderJobStatus, error) {
	switch RenderJobStatus(s) {
	case RenderPending, RenderProcessing, RenderCompleted, RenderFailed, RenderCancelled:
		return RenderJobStatus(s), nil
	}
	return "", fmt.Errorf("unknown render job status %q", s)
}

// Terminal reports whether no further transitions are allowed from s.
func (s RenderJobStatus) Terminal() bool {
	return s == RenderCompleted || s == RenderFailed || s == RenderCancelled
}

// RenderJob is one attempt to render a design into an artifact. The
// idempotency key is derived from (design id, params crc32) so resubmitting
// the identical design resolves to the same key.
type RenderJob struct {
	bun.BaseModel `bun:"table:render_jobs"`

	ID             string                 `bun:"id,pk" json:"id"`
	DesignID       string                 `bun:"design_id,notnull" json:"design_id"`
	IdempotencyKey string                 `bun:"idempotency_key,unique,notnull" json:"idempotency_key"`
	Attempt        int                    `bun:"attempt,notnull,default:1" json:"attempt"`
	Status         RenderJobStatus        `bun:"status,notnull,default:'pending'" json:"status"`
	RenderParams   map[string]interface{} `bun:"render_params,type:jsonb,nullzero" json:"render_params,omitempty"`
	ResultImageURL string                 `bun:"result_image_url,nullzero" json:"result_image_url,omitempty"`
	FailureReason  string                 `bun:"failure_reason,nullzero" json:"failure_reason,omitempty"`
	StartedAt      time.Time              `bun:"started_at,nullzero" json:"started_at,omitempty"`
	CompletedAt    time.Time              `bun:"completed_at,nullzero" json:"completed_at,omitempty"`
	CreatedAt      time.Time              `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt      time.Time              `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// RenderJobKey derives the idempotency key for a design's current params.
func RenderJobKey(designID, paramsCRC32 string) string {
	return fmt.Sprintf("render:%s:%s", designID, paramsCRC32)
}

// RenderResult is what the external render worker reports back. Redelivery
// of the same result must be accepted idempotently.
type RenderResult struct {
	JobID         string `json:"job_id"`
	Success       bool   `json:"success"`
	ArtifactURL   string `json:"artifact_url,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}
