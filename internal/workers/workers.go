package workers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/luxcrm/relay/internal/data/repos"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/platform/redisq"
	"github.com/luxcrm/relay/internal/processor"
	"github.com/luxcrm/relay/internal/utils"
)

const (
	JobProcessInteraction = "process_interaction"
	JobProcessNews        = "process_news"
	JobRecomputeScores    = "recompute_scores"
	JobCleanup            = "cleanup"
)

// Runner binds queue jobs to the processor. The same instance backs the API
// binary (for inline fallback) and the worker binary (for the drain loop).
type Runner struct {
	log    *logger.Logger
	queue  *redisq.Queue
	proc   *processor.Service
	drafts repos.DraftRepo
}

func NewRunner(log *logger.Logger, queue *redisq.Queue, proc *processor.Service, drafts repos.DraftRepo) (*Runner, error) {
	if log == nil {
		return nil, fmt.Errorf("workers: logger is required")
	}
	if queue == nil || proc == nil {
		return nil, fmt.Errorf("workers: queue and processor are required")
	}
	r := &Runner{
		log:    log.With("service", "workers"),
		queue:  queue,
		proc:   proc,
		drafts: drafts,
	}
	r.register()
	return r, nil
}

func interactionIDArg(job redisq.Job) (uuid.UUID, error) {
	raw, ok := job.Args["interaction_id"]
	if !ok {
		return uuid.Nil, fmt.Errorf("workers: job %s missing interaction_id", job.Name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("workers: job %s has bad interaction_id %q: %w", job.Name, raw, err)
	}
	return id, nil
}

func (r *Runner) register() {
	r.queue.Register(JobProcessInteraction, func(ctx context.Context, job redisq.Job) error {
		id, err := interactionIDArg(job)
		if err != nil {
			r.log.Error("dropping malformed job", "job", job.Name, "error", err)
			return nil
		}
		return r.proc.ProcessInteraction(ctx, id)
	})
	r.queue.Register(JobProcessNews, func(ctx context.Context, job redisq.Job) error {
		id, err := interactionIDArg(job)
		if err != nil {
			r.log.Error("dropping malformed job", "job", job.Name, "error", err)
			return nil
		}
		return r.proc.ProcessNews(ctx, id)
	})
	r.queue.Register(JobRecomputeScores, func(ctx context.Context, job redisq.Job) error {
		written, err := r.proc.RecomputeScores(ctx)
		if err != nil {
			return err
		}
		r.log.Info("recomputed scores", "snapshots", written)
		return nil
	})
	r.queue.Register(JobCleanup, func(ctx context.Context, job redisq.Job) error {
		if r.drafts == nil {
			return fmt.Errorf("workers: cleanup requires a draft repo")
		}
		_, err := r.proc.Cleanup(ctx, r.drafts)
		return err
	})
}

// EnqueueInteraction queues processing for one interaction, picking the news
// pipeline by interaction type.
func (r *Runner) EnqueueInteraction(ctx context.Context, interactionID uuid.UUID, interactionType string) error {
	job := JobProcessInteraction
	if interactionType == "news" {
		job = JobProcessNews
	}
	return r.queue.Enqueue(ctx, job, map[string]string{"interaction_id": interactionID.String()})
}

// EnqueueRecomputeScores queues a full score sweep.
func (r *Runner) EnqueueRecomputeScores(ctx context.Context) error {
	return r.queue.Enqueue(ctx, JobRecomputeScores, nil)
}

// EnqueueCleanup queues a retention sweep.
func (r *Runner) EnqueueCleanup(ctx context.Context) error {
	return r.queue.Enqueue(ctx, JobCleanup, nil)
}

// Run drains the queue until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	return r.queue.Run(ctx)
}

// StartScheduler launches the nightly recompute and cleanup crons. Schedules
// come from SCORES_RECOMPUTE_CRON and DATA_CLEANUP_CRON (standard 5-field
// expressions, UTC). Returns the started cron so callers can Stop it.
func (r *Runner) StartScheduler(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()

	recompute := utils.GetEnv("SCORES_RECOMPUTE_CRON", "0 2 * * *", r.log)
	if _, err := c.AddFunc(recompute, func() {
		if err := r.EnqueueRecomputeScores(ctx); err != nil {
			r.log.Error("scheduled recompute enqueue failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("workers: bad SCORES_RECOMPUTE_CRON %q: %w", recompute, err)
	}

	cleanup := utils.GetEnv("DATA_CLEANUP_CRON", "0 3 * * *", r.log)
	if _, err := c.AddFunc(cleanup, func() {
		if err := r.EnqueueCleanup(ctx); err != nil {
			r.log.Error("scheduled cleanup enqueue failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("workers: bad DATA_CLEANUP_CRON %q: %w", cleanup, err)
	}

	c.Start()
	r.log.Info("scheduler started", "recompute_cron", recompute, "cleanup_cron", cleanup)
	return c, nil
}
