package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/rkRashik/deltacrown/models"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrSubmissionStateConflict возвращается guarded-апдейтами, когда строка
	// существует, но её статус уже не позволяет переход. Так lost-update гонка
	// превращается в типизированную ошибку, а не в тихую порчу данных.
	ErrSubmissionStateConflict  = errors.New("submission is not in a state allowing this transition")
	ErrSubmissionActiveConflict = errors.New("match already has an unresolved submission")
	ErrSubmissionMatchInvalid   = errors.New("submission match conflict or invalid")
)

const submissionColumns = `id, match_id, submitted_by_user_id, submitter_side_id, payload, proof_url,
		submitter_notes, status, submitted_at, confirmed_at, finalized_at, confirmed_by_user_id,
		auto_confirm_deadline, auto_confirmed, organizer_notes`

type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id int) (*models.Submission, error)
	GetActiveByMatch(ctx context.Context, matchID int) (*models.Submission, error)
	ListActive(ctx context.Context, tournamentID *int) ([]*models.Submission, error)
	MarkConfirmed(ctx context.Context, id int, confirmedByUserID int, at time.Time) error
	MarkAutoConfirmed(ctx context.Context, id int, at time.Time) error
	MarkDisputed(ctx context.Context, id int) error
	MarkFinalized(ctx context.Context, id int, at time.Time) error
	MarkRejected(ctx context.Context, id int, organizerNotes *string) error
	ReopenPending(ctx context.Context, id int, deadline time.Time) error
	UpdatePayload(ctx context.Context, id int, payload models.ResultPayload) error
}

type postgresSubmissionRepository struct {
	db *sql.DB
}

func NewPostgresSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &postgresSubmissionRepository{db: db}
}

func (r *postgresSubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	query := `
		INSERT INTO result_submissions
			(match_id, submitted_by_user_id, submitter_side_id, payload, proof_url, submitter_notes,
			 status, submitted_at, auto_confirm_deadline, auto_confirmed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		submission.MatchID,
		submission.SubmittedByUserID,
		submission.SubmitterSideID,
		submission.Payload,
		submission.ProofURL,
		submission.SubmitterNotes,
		submission.Status,
		submission.SubmittedAt,
		submission.AutoConfirmDeadline,
		submission.AutoConfirmed,
	).Scan(&submission.ID)

	return r.handleSubmissionError(err)
}

func (r *postgresSubmissionRepository) GetByID(ctx context.Context, id int) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM result_submissions WHERE id = $1`

	submission := &models.Submission{}
	err := scanSubmission(r.db.QueryRowContext(ctx, query, id), submission)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

// GetActiveByMatch возвращает нетерминальную заявку матча, если она есть.
func (r *postgresSubmissionRepository) GetActiveByMatch(ctx context.Context, matchID int) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + `
		FROM result_submissions
		WHERE match_id = $1 AND status NOT IN ('finalized', 'rejected', 'cancelled')
		ORDER BY submitted_at DESC
		LIMIT 1`

	submission := &models.Submission{}
	err := scanSubmission(r.db.QueryRowContext(ctx, query, matchID), submission)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return submission, nil
}

func (r *postgresSubmissionRepository) ListActive(ctx context.Context, tournamentID *int) ([]*models.Submission, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT s.id, s.match_id, s.submitted_by_user_id, s.submitter_side_id, s.payload, s.proof_url,
		       s.submitter_notes, s.status, s.submitted_at, s.confirmed_at, s.finalized_at,
		       s.confirmed_by_user_id, s.auto_confirm_deadline, s.auto_confirmed, s.organizer_notes
		FROM result_submissions s
		WHERE s.status NOT IN ('finalized', 'rejected', 'cancelled')`)

	args := []interface{}{}
	placeholderIndex := 1

	if tournamentID != nil {
		queryBuilder.WriteString(" AND s.match_id IN (SELECT id FROM matches WHERE tournament_id = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		queryBuilder.WriteString(")")
		args = append(args, *tournamentID)
		placeholderIndex++
	}

	queryBuilder.WriteString(" ORDER BY s.submitted_at ASC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	submissions := make([]*models.Submission, 0)
	for rows.Next() {
		var submission models.Submission
		if scanErr := scanSubmission(rows, &submission); scanErr != nil {
			return nil, scanErr
		}
		submissions = append(submissions, &submission)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *postgresSubmissionRepository) MarkConfirmed(ctx context.Context, id int, confirmedByUserID int, at time.Time) error {
	query := `
		UPDATE result_submissions
		SET status = 'confirmed', confirmed_by_user_id = $1, confirmed_at = $2
		WHERE id = $3 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, confirmedByUserID, at, id)
	if err != nil {
		return err
	}
	return r.guardResult(ctx, result, id)
}

func (r *postgresSubmissionRepository) MarkAutoConfirmed(ctx context.Context, id int, at time.Time) error {
	query := `
		UPDATE result_submissions
		SET status = 'auto_confirmed', auto_confirmed = TRUE, confirmed_at = $1
		WHERE id = $2 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	return r.guardResult(ctx, result, id)
}

func (r *postgresSubmissionRepository) MarkDisputed(ctx context.Context, id int) error {
	query := `
		UPDATE result_submissions
		SET status = 'disputed'
		WHERE id = $1 AND status = 'pending'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return r.guardResult(ctx, result, id)
}

func (r *postgresSubmissionRepository) MarkFinalized(ctx context.Context, id int, at time.Time) error {
	query := `
		UPDATE result_submissions
		SET status = 'finalized', finalized_at = $1
		WHERE id = $2 AND status NOT IN ('finalized', 'rejected', 'cancelled')`
	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return err
	}
	return r.guardResult(ctx, result, id)
}

func (r *postgresSubmissionRepository) MarkRejected(ctx context.Context, id int, organizerNotes *string) error {
	query := `
		UPDATE result_submissions
		SET status = 'rejected', organizer_notes = COALESCE($1, organizer_notes)
		WHERE id = $2 AND status NOT IN ('finalized', 'rejected', 'cancelled')`
	result, err := r.db.ExecContext(ctx, query, organizerNotes, id)
	if err != nil {
		return err
	}
	return r.guardResult(ctx, result, id)
}

// ReopenPending возвращает заявку в pending с новым дедлайном автоподтверждения.
// Используется при dismissed/cancelled спорах.
func (r *postgresSubmissionRepository) ReopenPending(ctx context.Context, id int, deadline time.Time) error {
	query := `
		UPDATE result_submissions
		SET status = 'pending', auto_confirm_deadline = $1
		WHERE id = $2 AND status = 'disputed'`
	result, err := r.db.ExecContext(ctx, query, deadline, id)
	if err != nil {
		return err
	}
	return r.guardResult(ctx, result, id)
}

func (r *postgresSubmissionRepository) UpdatePayload(ctx context.Context, id int, payload models.ResultPayload) error {
	query := `
		UPDATE result_submissions
		SET payload = $1
		WHERE id = $2 AND status NOT IN ('finalized', 'rejected', 'cancelled')`
	result, err := r.db.ExecContext(ctx, query, payload, id)
	if err != nil {
		return err
	}
	return r.guardResult(ctx, result, id)
}

// guardResult различает "строки нет" и "строка есть, но статус не подошёл".
func (r *postgresSubmissionRepository) guardResult(ctx context.Context, result sql.Result, id int) error {
	rowsAffected, err := checkRowsAffected(result)
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	checkErr := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM result_submissions WHERE id = $1)`, id).Scan(&exists)
	if checkErr != nil {
		return checkErr
	}
	if exists {
		return ErrSubmissionStateConflict
	}
	return ErrSubmissionNotFound
}

func (r *postgresSubmissionRepository) handleSubmissionError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505": // unique_violation: частичный индекс по match_id для нетерминальных статусов
			return ErrSubmissionActiveConflict
		case "23503": // foreign_key_violation
			if pqErr.Constraint == "result_submissions_match_id_fkey" {
				return ErrSubmissionMatchInvalid
			}
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner, s *models.Submission) error {
	return row.Scan(
		&s.ID,
		&s.MatchID,
		&s.SubmittedByUserID,
		&s.SubmitterSideID,
		&s.Payload,
		&s.ProofURL,
		&s.SubmitterNotes,
		&s.Status,
		&s.SubmittedAt,
		&s.ConfirmedAt,
		&s.FinalizedAt,
		&s.ConfirmedByUserID,
		&s.AutoConfirmDeadline,
		&s.AutoConfirmed,
		&s.OrganizerNotes,
	)
}
