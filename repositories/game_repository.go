package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rkRashik/deltacrown/models"
)

var ErrGameNotFound = errors.New("game not found")

// GameRepository — справочник игровых дисциплин и их схем результата.
type GameRepository interface {
	GetBySlug(ctx context.Context, slug string) (*models.Game, error)
}

type postgresGameRepository struct {
	db *sql.DB
}

func NewPostgresGameRepository(db *sql.DB) GameRepository {
	return &postgresGameRepository{db: db}
}

func (r *postgresGameRepository) GetBySlug(ctx context.Context, slug string) (*models.Game, error) {
	query := `
		SELECT id, slug, name, result_schema, created_at
		FROM games
		WHERE slug = $1`

	game := &models.Game{}
	err := r.db.QueryRowContext(ctx, query, slug).Scan(
		&game.ID,
		&game.Slug,
		&game.Name,
		&game.ResultSchema,
		&game.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	return game, nil
}
