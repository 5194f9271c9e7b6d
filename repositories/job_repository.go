package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rkRashik/deltacrown/models"
)

var ErrJobNotFound = errors.New("deferred job not found")

// JobRepository — очередь отложенных задач поверх Postgres.
// Claim использует FOR UPDATE SKIP LOCKED, поэтому несколько инстансов
// раннера могут работать параллельно; доставка at-least-once.
type JobRepository interface {
	Create(ctx context.Context, job *models.DeferredJob) error
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.DeferredJob, error)
	MarkDone(ctx context.Context, id int) error
	MarkFailed(ctx context.Context, id int, lastError string, retryAt *time.Time) error
	CancelPending(ctx context.Context, task string, key string) error
}

type postgresJobRepository struct {
	db *sql.DB
}

func NewPostgresJobRepository(db *sql.DB) JobRepository {
	return &postgresJobRepository{db: db}
}

func (r *postgresJobRepository) Create(ctx context.Context, job *models.DeferredJob) error {
	query := `
		INSERT INTO deferred_jobs (key, task, args, run_at, status, attempts)
		VALUES ($1, $2, $3, $4, 'pending', 0)
		RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		job.Key,
		job.Task,
		job.Args,
		job.RunAt,
	).Scan(&job.ID, &job.CreatedAt)
}

// ClaimDue атомарно захватывает пачку созревших задач и инкрементирует attempts.
// Захваченная, но не завершённая задача снова станет доступной после таймаута
// блокировки транзакции; обработчики обязаны переживать повторную доставку.
func (r *postgresJobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.DeferredJob, error) {
	query := `
		UPDATE deferred_jobs
		SET attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM deferred_jobs
			WHERE status = 'pending' AND run_at <= $1
			ORDER BY run_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, key, task, args, run_at, status, attempts, last_error, created_at`

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]*models.DeferredJob, 0)
	for rows.Next() {
		var job models.DeferredJob
		if scanErr := rows.Scan(
			&job.ID,
			&job.Key,
			&job.Task,
			&job.Args,
			&job.RunAt,
			&job.Status,
			&job.Attempts,
			&job.LastError,
			&job.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		jobs = append(jobs, &job)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *postgresJobRepository) MarkDone(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE deferred_jobs SET status = 'done', last_error = NULL WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrJobNotFound)
}

// MarkFailed либо перепланирует задачу (retryAt != nil), либо хоронит её.
func (r *postgresJobRepository) MarkFailed(ctx context.Context, id int, lastError string, retryAt *time.Time) error {
	var result sql.Result
	var err error
	if retryAt != nil {
		result, err = r.db.ExecContext(ctx,
			`UPDATE deferred_jobs SET last_error = $1, run_at = $2 WHERE id = $3`,
			lastError, *retryAt, id)
	} else {
		result, err = r.db.ExecContext(ctx,
			`UPDATE deferred_jobs SET status = 'failed', last_error = $1 WHERE id = $2`,
			lastError, id)
	}
	if err != nil {
		return err
	}
	return checkAffectedRows(result, ErrJobNotFound)
}

// CancelPending снимает ещё не выполненные задачи по ключу. Best-effort:
// если задача уже захвачена раннером, её обезвредит идемпотентность обработчика.
func (r *postgresJobRepository) CancelPending(ctx context.Context, task string, key string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE deferred_jobs SET status = 'cancelled' WHERE task = $1 AND key = $2 AND status = 'pending'`,
		task, key)
	return err
}
