package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/rkRashik/deltacrown/models"
)

var (
	ErrDisputeNotFound = errors.New("dispute not found")
	// ErrDisputeStateConflict — переход невозможен из текущего статуса спора.
	ErrDisputeStateConflict = errors.New("dispute is not in a state allowing this transition")
	// ErrDisputeActiveConflict — по заявке уже есть незакрытый спор
	// (частичный уникальный индекс по submission_id).
	ErrDisputeActiveConflict   = errors.New("submission already has an unresolved dispute")
	ErrDisputeSubmissionInvalid = errors.New("dispute submission conflict or invalid")
)

const disputeColumns = `id, submission_id, opened_by_user_id, opened_by_side_id, reason, description,
		status, resolution_notes, disputed_payload, opened_at, updated_at, resolved_at,
		resolved_by_user_id, escalated_at`

type DisputeRepository interface {
	Create(ctx context.Context, dispute *models.Dispute) error
	GetByID(ctx context.Context, id int) (*models.Dispute, error)
	GetActiveBySubmission(ctx context.Context, submissionID int) (*models.Dispute, error)
	GetLatestBySubmission(ctx context.Context, submissionID int) (*models.Dispute, error)
	ListOverdue(ctx context.Context, openedBefore time.Time) ([]*models.Dispute, error)
	MarkUnderReview(ctx context.Context, id int) error
	MarkEscalated(ctx context.Context, id int, at time.Time) error
	Complete(ctx context.Context, id int, status models.DisputeStatus, resolvedByUserID *int, notes *string, at time.Time) error
}

type postgresDisputeRepository struct {
	db *sql.DB
}

func NewPostgresDisputeRepository(db *sql.DB) DisputeRepository {
	return &postgresDisputeRepository{db: db}
}

func (r *postgresDisputeRepository) Create(ctx context.Context, dispute *models.Dispute) error {
	query := `
		INSERT INTO result_disputes
			(submission_id, opened_by_user_id, opened_by_side_id, reason, description,
			 status, disputed_payload, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		dispute.SubmissionID,
		dispute.OpenedByUserID,
		dispute.OpenedBySideID,
		dispute.Reason,
		dispute.Description,
		dispute.Status,
		dispute.DisputedPayload,
		dispute.OpenedAt,
	).Scan(&dispute.ID)

	return r.handleDisputeError(err)
}

func (r *postgresDisputeRepository) GetByID(ctx context.Context, id int) (*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM result_disputes WHERE id = $1`

	dispute := &models.Dispute{}
	err := scanDispute(r.db.QueryRowContext(ctx, query, id), dispute)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}
	return dispute, nil
}

// GetActiveBySubmission возвращает незакрытый спор заявки (open/under_review/escalated).
func (r *postgresDisputeRepository) GetActiveBySubmission(ctx context.Context, submissionID int) (*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + `
		FROM result_disputes
		WHERE submission_id = $1 AND status IN ('open', 'under_review', 'escalated')
		LIMIT 1`

	dispute := &models.Dispute{}
	err := scanDispute(r.db.QueryRowContext(ctx, query, submissionID), dispute)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}
	return dispute, nil
}

func (r *postgresDisputeRepository) GetLatestBySubmission(ctx context.Context, submissionID int) (*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + `
		FROM result_disputes
		WHERE submission_id = $1
		ORDER BY opened_at DESC
		LIMIT 1`

	dispute := &models.Dispute{}
	err := scanDispute(r.db.QueryRowContext(ctx, query, submissionID), dispute)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDisputeNotFound
		}
		return nil, err
	}
	return dispute, nil
}

// ListOverdue возвращает споры, просрочившие SLA эскалации.
func (r *postgresDisputeRepository) ListOverdue(ctx context.Context, openedBefore time.Time) ([]*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + `
		FROM result_disputes
		WHERE status IN ('open', 'under_review') AND opened_at < $1
		ORDER BY opened_at ASC`

	rows, err := r.db.QueryContext(ctx, query, openedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	disputes := make([]*models.Dispute, 0)
	for rows.Next() {
		var dispute models.Dispute
		if scanErr := scanDispute(rows, &dispute); scanErr != nil {
			return nil, scanErr
		}
		disputes = append(disputes, &dispute)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return disputes, nil
}

func (r *postgresDisputeRepository) MarkUnderReview(ctx context.Context, id int) error {
	query := `
		UPDATE result_disputes
		SET status = 'under_review', updated_at = NOW()
		WHERE id = $1 AND status = 'open'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return r.guardResult(ctx, result, id)
}

func (r *postgresDisputeRepository) MarkEscalated(ctx context.Context, id int, at time.Time) error {
	query := `
		UPDATE result_disputes
		SET status = 'escalated', escalated_at = $1, updated_at = $1
		WHERE id = $2 AND status IN ('open', 'under_review')`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	return r.guardResult(ctx, result, id)
}

// Complete закрывает спор одним из терминальных статусов.
func (r *postgresDisputeRepository) Complete(ctx context.Context, id int, status models.DisputeStatus, resolvedByUserID *int, notes *string, at time.Time) error {
	query := `
		UPDATE result_disputes
		SET status = $1, resolved_by_user_id = $2, resolution_notes = $3, resolved_at = $4, updated_at = $4
		WHERE id = $5 AND status IN ('open', 'under_review', 'escalated')`
	result, err := r.db.ExecContext(ctx, query, status, resolvedByUserID, notes, at, id)
	if err != nil {
		return err
	}
	return r.guardResult(ctx, result, id)
}

func (r *postgresDisputeRepository) guardResult(ctx context.Context, result sql.Result, id int) error {
	rowsAffected, err := checkRowsAffected(result)
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	checkErr := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM result_disputes WHERE id = $1)`, id).Scan(&exists)
	if checkErr != nil {
		return checkErr
	}
	if exists {
		return ErrDisputeStateConflict
	}
	return ErrDisputeNotFound
}

func (r *postgresDisputeRepository) handleDisputeError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505": // unique_violation
			return ErrDisputeActiveConflict
		case "23503": // foreign_key_violation
			if pqErr.Constraint == "result_disputes_submission_id_fkey" {
				return ErrDisputeSubmissionInvalid
			}
		}
	}
	return err
}

func scanDispute(row rowScanner, d *models.Dispute) error {
	return row.Scan(
		&d.ID,
		&d.SubmissionID,
		&d.OpenedByUserID,
		&d.OpenedBySideID,
		&d.Reason,
		&d.Description,
		&d.Status,
		&d.ResolutionNotes,
		&d.DisputedPayload,
		&d.OpenedAt,
		&d.UpdatedAt,
		&d.ResolvedAt,
		&d.ResolvedByUserID,
		&d.EscalatedAt,
	)
}
