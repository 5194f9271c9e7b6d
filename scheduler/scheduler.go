// Package scheduler исполняет отложенные задачи поверх Postgres-очереди.
// Доставка at-least-once: обработчики обязаны быть идемпотентными и
// безопасными для повторного вызова после номинального времени срабатывания.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rkRashik/deltacrown/models"
	"github.com/rkRashik/deltacrown/repositories"
)

// Имена зарегистрированных задач.
const TaskAutoConfirmSubmission = "submission.auto_confirm"

// Scheduler планирует одноразовую отложенную задачу.
type Scheduler interface {
	Schedule(ctx context.Context, task string, key string, args models.JSONMap, runAt time.Time) error
	CancelPending(ctx context.Context, task string, key string) error
}

type postgresScheduler struct {
	jobRepo repositories.JobRepository
}

func NewPostgresScheduler(jobRepo repositories.JobRepository) Scheduler {
	return &postgresScheduler{jobRepo: jobRepo}
}

func (s *postgresScheduler) Schedule(ctx context.Context, task string, key string, args models.JSONMap, runAt time.Time) error {
	if key == "" {
		key = uuid.NewString()
	}
	job := &models.DeferredJob{
		Key:    key,
		Task:   task,
		Args:   args,
		RunAt:  runAt,
		Status: models.JobStatusPending,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to schedule %s job: %w", task, err)
	}
	return nil
}

func (s *postgresScheduler) CancelPending(ctx context.Context, task string, key string) error {
	return s.jobRepo.CancelPending(ctx, task, key)
}

// HandlerFunc выполняет одну задачу. Возврат ошибки ведёт к retry
// (с ограничением попыток), поэтому повторный вызов должен быть безопасен.
type HandlerFunc func(ctx context.Context, args models.JSONMap) error

// Runner опрашивает очередь тикером и раздаёт созревшие задачи обработчикам.
type Runner struct {
	jobRepo      repositories.JobRepository
	handlers     map[string]HandlerFunc
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
	retryBackoff time.Duration
}

func NewRunner(jobRepo repositories.JobRepository, logger *slog.Logger, pollInterval time.Duration) *Runner {
	return &Runner{
		jobRepo:      jobRepo,
		handlers:     make(map[string]HandlerFunc),
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    25,
		maxAttempts:  5,
		retryBackoff: time.Minute,
	}
}

func (r *Runner) Register(task string, handler HandlerFunc) {
	r.handlers[task] = handler
}

// Run блокирует до отмены контекста. Запускается как горутина из main.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.logger.Info("deferred job runner started", slog.Duration("interval", r.pollInterval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("deferred job runner stopped")
			return
		case <-ticker.C:
			r.RunDueJobs(ctx)
		}
	}
}

// RunDueJobs обрабатывает одну пачку созревших задач. Выделен отдельно,
// чтобы его можно было дёргать из тестов без тикера.
func (r *Runner) RunDueJobs(ctx context.Context) {
	jobs, err := r.jobRepo.ClaimDue(ctx, time.Now().UTC(), r.batchSize)
	if err != nil {
		r.logger.Error("failed to claim due jobs", slog.Any("error", err))
		return
	}

	for _, job := range jobs {
		r.runJob(ctx, job)
	}
}

func (r *Runner) runJob(ctx context.Context, job *models.DeferredJob) {
	handler, ok := r.handlers[job.Task]
	if !ok {
		r.logger.Error("no handler registered for task", slog.String("task", job.Task))
		if err := r.jobRepo.MarkFailed(ctx, job.ID, "no handler registered", nil); err != nil {
			r.logger.Error("failed to mark job failed", slog.Int("job_id", job.ID), slog.Any("error", err))
		}
		return
	}

	if err := handler(ctx, job.Args); err != nil {
		r.logger.Warn("deferred job failed",
			slog.String("task", job.Task),
			slog.Int("job_id", job.ID),
			slog.Int("attempts", job.Attempts),
			slog.Any("error", err))

		var retryAt *time.Time
		if job.Attempts < r.maxAttempts {
			at := time.Now().UTC().Add(r.retryBackoff * time.Duration(job.Attempts))
			retryAt = &at
		}
		if markErr := r.jobRepo.MarkFailed(ctx, job.ID, err.Error(), retryAt); markErr != nil {
			r.logger.Error("failed to mark job failed", slog.Int("job_id", job.ID), slog.Any("error", markErr))
		}
		return
	}

	if err := r.jobRepo.MarkDone(ctx, job.ID); err != nil {
		// Задача выполнена, но статус не записался: при повторной доставке
		// её обезвредит идемпотентность обработчика.
		r.logger.Error("failed to mark job done", slog.Int("job_id", job.ID), slog.Any("error", err))
	}
}
