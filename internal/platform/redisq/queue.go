package redisq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/luxcrm/relay/internal/pkg/logger"
)

// Job is one queued unit of work. Args are job-specific and must be
// self-contained so replays are safe.
type Job struct {
	Name    string            `json:"job"`
	Args    map[string]string `json:"args"`
	Attempt int               `json:"attempt"`
}

// Handler executes one job. A returned error requeues the job until the
// attempt budget runs out.
type Handler func(ctx context.Context, job Job) error

// Queue pushes jobs onto a redis list and drains them with BRPOP. When redis
// is unreachable (or QUEUE_MODE=inline) Enqueue runs the handler inline so
// ingest never stalls on queue health.
type Queue struct {
	log         *logger.Logger
	rdb         *goredis.Client
	key         string
	inline      bool
	maxAttempts int
	handlers    map[string]Handler
}

func New(log *logger.Logger) (*Queue, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	q := &Queue{
		log:         log.With("service", "RedisQueue"),
		key:         "relay:jobs",
		maxAttempts: 3,
		handlers:    map[string]Handler{},
	}
	if v := strings.TrimSpace(os.Getenv("QUEUE_KEY")); v != "" {
		q.key = v
	}
	if v := strings.TrimSpace(os.Getenv("QUEUE_MAX_ATTEMPTS")); v != "" {
		var parsed int
		if _, err := fmt.Sscanf(v, "%d", &parsed); err == nil && parsed > 0 {
			q.maxAttempts = parsed
		}
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("QUEUE_MODE")), "inline") {
		q.inline = true
		return q, nil
	}

	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		q.log.Warn("REDIS_ADDR unset, queue runs inline")
		q.inline = true
		return q, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    os.Getenv("REDIS_PASSWORD"),
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		q.log.Warn("redis unreachable, queue runs inline", "error", err)
		q.inline = true
		return q, nil
	}
	q.rdb = rdb
	return q, nil
}

// Register binds a handler to a job name. Must be called before Enqueue for
// jobs that may fall back to inline execution.
func (q *Queue) Register(name string, h Handler) {
	q.handlers[name] = h
}

// Inline reports whether jobs run in-process instead of through redis.
func (q *Queue) Inline() bool {
	return q == nil || q.inline || q.rdb == nil
}

// Enqueue pushes the job, or runs it inline when redis is unavailable.
func (q *Queue) Enqueue(ctx context.Context, name string, args map[string]string) error {
	job := Job{Name: name, Args: args, Attempt: 1}
	if q.Inline() {
		return q.runInline(ctx, job)
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, q.key, raw).Err(); err != nil {
		q.log.Warn("enqueue failed, running inline", "job", name, "error", err)
		return q.runInline(ctx, job)
	}
	return nil
}

func (q *Queue) runInline(ctx context.Context, job Job) error {
	h, ok := q.handlers[job.Name]
	if !ok {
		return fmt.Errorf("redisq: no handler for job %q", job.Name)
	}
	if err := h(ctx, job); err != nil {
		q.log.Error("inline job failed", "job", job.Name, "error", err)
		return err
	}
	return nil
}

// Run drains the list until the context is cancelled. Failed jobs are pushed
// back with attempt+1 until maxAttempts.
func (q *Queue) Run(ctx context.Context) error {
	if q.Inline() {
		<-ctx.Done()
		return ctx.Err()
	}
	q.log.Info("worker loop started", "key", q.key, "max_attempts", q.maxAttempts)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		vals, err := q.rdb.BRPop(ctx, 5*time.Second, q.key).Result()
		if err != nil {
			if err == goredis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.log.Warn("BRPOP failed, backing off", "error", err)
			time.Sleep(2 * time.Second)
			continue
		}
		if len(vals) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(vals[1]), &job); err != nil {
			q.log.Error("dropping malformed job payload", "error", err)
			continue
		}
		q.dispatch(ctx, job)
	}
}

func (q *Queue) dispatch(ctx context.Context, job Job) {
	h, ok := q.handlers[job.Name]
	if !ok {
		q.log.Error("dropping job with no handler", "job", job.Name)
		return
	}
	if err := h(ctx, job); err != nil {
		if job.Attempt >= q.maxAttempts {
			q.log.Error("job failed permanently", "job", job.Name, "attempt", job.Attempt, "error", err)
			return
		}
		q.log.Warn("job failed, requeueing", "job", job.Name, "attempt", job.Attempt, "error", err)
		job.Attempt++
		raw, mErr := json.Marshal(job)
		if mErr != nil {
			return
		}
		if pErr := q.rdb.LPush(ctx, q.key, raw).Err(); pErr != nil {
			q.log.Error("requeue failed", "job", job.Name, "error", pErr)
		}
	}
}

func (q *Queue) Close() error {
	if q == nil || q.rdb == nil {
		return nil
	}
	return q.rdb.Close()
}
