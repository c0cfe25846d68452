package render

import (
	"context"
	"fmt"
	"time"

	"printmill/internal/logger"
	"printmill/internal/models"
)

// Renderer is the opaque external render computation: it receives a claimed
// job and returns an artifact URL or an error. The orchestrator owns all
// state; the renderer owns none.
type Renderer interface {
	Render(ctx context.Context, job *models.RenderJob) (string, error)
}

// Worker polls the orchestrator for pending jobs and drives them through the
// renderer. Multiple workers may run concurrently; claiming guarantees each
// job is processed by exactly one of them.
type Worker struct {
	orch         *Orchestrator
	renderer     Renderer
	logger       *logger.Logger
	pollInterval time.Duration
	renderBudget time.Duration
}

func NewWorker(orch *Orchestrator, renderer Renderer, log *logger.Logger, pollInterval, renderBudget time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if renderBudget <= 0 {
		renderBudget = 2 * time.Minute
	}
	return &Worker{
		orch:         orch,
		renderer:     renderer,
		logger:       log,
		pollInterval: pollInterval,
		renderBudget: renderBudget,
	}
}

// Run loops until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("WORKER", "Render worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("WORKER", "Render worker stopping")
			return ctx.Err()
		default:
		}

		job, err := w.orch.Claim(ctx)
		if err != nil {
			w.logger.Error("WORKER", fmt.Sprintf("Claim failed: %v", err))
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}

		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job *models.RenderJob) {
	renderCtx, cancel := context.WithTimeout(ctx, w.renderBudget)
	defer cancel()

	artifactURL, err := w.renderer.Render(renderCtx, job)
	if err != nil {
		if _, failErr := w.orch.Fail(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("WORKER", fmt.Sprintf("Failed to record failure for job %s: %v", job.ID, failErr))
		}
		return
	}

	if _, err := w.orch.Complete(ctx, job.ID, artifactURL); err != nil {
		w.logger.Error("WORKER", fmt.Sprintf("Failed to record completion for job %s: %v", job.ID, err))
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}
