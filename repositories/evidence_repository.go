package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/rkRashik/deltacrown/models"
)

var ErrEvidenceDisputeInvalid = errors.New("evidence dispute conflict or invalid")

// EvidenceRepository — append-only хранилище вложений к спорам.
type EvidenceRepository interface {
	Create(ctx context.Context, evidence *models.DisputeEvidence) error
	ListByDispute(ctx context.Context, disputeID int) ([]*models.DisputeEvidence, error)
}

type postgresEvidenceRepository struct {
	db *sql.DB
}

func NewPostgresEvidenceRepository(db *sql.DB) EvidenceRepository {
	return &postgresEvidenceRepository{db: db}
}

func (r *postgresEvidenceRepository) Create(ctx context.Context, evidence *models.DisputeEvidence) error {
	query := `
		INSERT INTO dispute_evidence
			(dispute_id, uploaded_by_user_id, type, url, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		evidence.DisputeID,
		evidence.UploadedByUserID,
		evidence.Type,
		evidence.URL,
		evidence.Notes,
	).Scan(&evidence.ID, &evidence.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return ErrEvidenceDisputeInvalid
		}
		return err
	}
	return nil
}

func (r *postgresEvidenceRepository) ListByDispute(ctx context.Context, disputeID int) ([]*models.DisputeEvidence, error) {
	query := `
		SELECT id, dispute_id, uploaded_by_user_id, type, url, notes, created_at
		FROM dispute_evidence
		WHERE dispute_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, disputeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*models.DisputeEvidence, 0)
	for rows.Next() {
		var item models.DisputeEvidence
		if scanErr := rows.Scan(
			&item.ID,
			&item.DisputeID,
			&item.UploadedByUserID,
			&item.Type,
			&item.URL,
			&item.Notes,
			&item.CreatedAt,
		); scanErr != nil {
			return nil, scanErr
		}
		items = append(items, &item)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
