package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rkRashik/deltacrown/models"
)

var (
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchAlreadyClosed — результат матча уже записан.
	ErrMatchAlreadyClosed = errors.New("match is already completed or canceled")
)

// MatchRepository — граница внешнего коллаборатора "Матч". Движок верификации
// матчи не создаёт: он читает состояние для гейтинга подачи результата и
// закрывает матч при финализации.
type MatchRepository interface {
	GetByID(ctx context.Context, id int) (*models.Match, error)
	RecordResult(ctx context.Context, id int, score *string, winnerSideID *int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `
		SELECT id, tournament_id, side_a_id, side_b_id, state, game_slug, score, winner_side_id, created_at
		FROM matches
		WHERE id = $1`

	match := &models.Match{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&match.ID,
		&match.TournamentID,
		&match.SideAID,
		&match.SideBID,
		&match.State,
		&match.GameSlug,
		&match.Score,
		&match.WinnerSideID,
		&match.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return match, nil
}

// RecordResult записывает счёт и победителя и переводит матч в completed.
func (r *postgresMatchRepository) RecordResult(ctx context.Context, id int, score *string, winnerSideID *int) error {
	query := `
		UPDATE matches
		SET score = $1, winner_side_id = $2, state = 'completed'
		WHERE id = $3 AND state NOT IN ('completed', 'canceled')`

	result, err := r.db.ExecContext(ctx, query, score, winnerSideID, id)
	if err != nil {
		return err
	}

	rowsAffected, checkErr := checkRowsAffected(result)
	if checkErr != nil {
		return checkErr
	}
	if rowsAffected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM matches WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrMatchAlreadyClosed
		}
		return ErrMatchNotFound
	}
	return nil
}
