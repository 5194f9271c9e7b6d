package repositories

import (
	"context"
	"database/sql"

	"github.com/rkRashik/deltacrown/models"
)

// VerificationLogRepository — журнал аудита верификации. Каждая операция,
// меняющая состояние заявки, обязана оставить здесь запись.
type VerificationLogRepository interface {
	LogStep(ctx context.Context, submissionID int, step, status string, performedByUserID *int) error
	ListBySubmission(ctx context.Context, submissionID int) ([]*models.VerificationStep, error)
}

type postgresVerificationLogRepository struct {
	db *sql.DB
}

func NewPostgresVerificationLogRepository(db *sql.DB) VerificationLogRepository {
	return &postgresVerificationLogRepository{db: db}
}

func (r *postgresVerificationLogRepository) LogStep(ctx context.Context, submissionID int, step, status string, performedByUserID *int) error {
	query := `
		INSERT INTO verification_log (submission_id, step, status, performed_by_user_id)
		VALUES ($1, $2, $3, $4)`

	_, err := r.db.ExecContext(ctx, query, submissionID, step, status, performedByUserID)
	return err
}

func (r *postgresVerificationLogRepository) ListBySubmission(ctx context.Context, submissionID int) ([]*models.VerificationStep, error) {
	query := `
		SELECT id, submission_id, step, status, performed_by_user_id, created_at
		FROM verification_log
		WHERE submission_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]*models.VerificationStep, 0)
	for rows.Next() {
		var step models.VerificationStep
		if scanErr := rows.Scan(
			&step.ID,
			&step.SubmissionID,
			&step.Step,
			&step.Status,
			&step.PerformedByUserID,
			&step.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		steps = append(steps, &step)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return steps, nil
}
