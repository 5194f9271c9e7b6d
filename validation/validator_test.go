package validation

import (
	"context"
	"strings"
	"testing"

	"github.com/rkRashik/deltacrown/models"
	"github.com/rkRashik/deltacrown/repositories"
)

type stubGameRepo struct {
	games map[string]*models.Game
}

func (r *stubGameRepo) GetBySlug(ctx context.Context, slug string) (*models.Game, error) {
	game, ok := r.games[slug]
	if !ok {
		return nil, repositories.ErrGameNotFound
	}
	return game, nil
}

func testValidator() Validator {
	return NewSchemaValidator(&stubGameRepo{games: map[string]*models.Game{
		"cs2": {
			ID:   1,
			Slug: "cs2",
			ResultSchema: models.ResultSchema{
				Version: 3,
				Fields: []models.SchemaField{
					{Name: "winner_team_id", Type: models.SchemaFieldInt, Required: true},
					{Name: "loser_team_id", Type: models.SchemaFieldInt, Required: true},
					{Name: "score", Type: models.SchemaFieldString, Required: true},
					{Name: "overtime", Type: models.SchemaFieldBool, Required: false},
				},
			},
		},
	}})
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name      string
		payload   models.ResultPayload
		wantValid bool
		wantError string
	}{
		{
			name: "valid payload",
			payload: models.ResultPayload{
				"winner_team_id": 10,
				"loser_team_id":  20,
				"score":          "16-14",
			},
			wantValid: true,
		},
		{
			name: "json-decoded numbers are accepted",
			payload: models.ResultPayload{
				"winner_team_id": float64(10),
				"loser_team_id":  float64(20),
				"score":          "13-7",
			},
			wantValid: true,
		},
		{
			name: "missing required field",
			payload: models.ResultPayload{
				"winner_team_id": 10,
				"score":          "16-14",
			},
			wantValid: false,
			wantError: `missing required field "loser_team_id"`,
		},
		{
			name:      "empty payload",
			payload:   models.ResultPayload{},
			wantValid: false,
			wantError: "must not be empty",
		},
		{
			name: "wrong field type",
			payload: models.ResultPayload{
				"winner_team_id": "ten",
				"loser_team_id":  20,
				"score":          "16-14",
			},
			wantValid: false,
			wantError: `field "winner_team_id" must be an integer`,
		},
		{
			name: "winner equals loser",
			payload: models.ResultPayload{
				"winner_team_id": 10,
				"loser_team_id":  10,
				"score":          "16-14",
			},
			wantValid: false,
			wantError: "winner and loser must be different",
		},
		{
			name: "negative side id",
			payload: models.ResultPayload{
				"winner_team_id": -1,
				"loser_team_id":  20,
				"score":          "16-14",
			},
			wantValid: false,
			wantError: "must be a positive id",
		},
		{
			name: "malformed score",
			payload: models.ResultPayload{
				"winner_team_id": 10,
				"loser_team_id":  20,
				"score":          "16:14",
			},
			wantValid: false,
			wantError: "does not match required format",
		},
		{
			name: "optional bool field wrong type",
			payload: models.ResultPayload{
				"winner_team_id": 10,
				"loser_team_id":  20,
				"score":          "16-14",
				"overtime":       "yes",
			},
			wantValid: false,
			wantError: `field "overtime" must be a boolean`,
		},
	}

	v := testValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidatePayload(context.Background(), "cs2", tt.payload)

			if result.IsValid != tt.wantValid {
				t.Fatalf("IsValid = %v, want %v (errors: %v)", result.IsValid, tt.wantValid, result.Errors)
			}
			if tt.wantError != "" && !containsError(result.Errors, tt.wantError) {
				t.Errorf("errors %v do not mention %q", result.Errors, tt.wantError)
			}
		})
	}
}

func TestValidatePayloadCollectsAllErrors(t *testing.T) {
	v := testValidator()
	result := v.ValidatePayload(context.Background(), "cs2", models.ResultPayload{
		"winner_team_id": "ten",
		"score":          "16:14",
	})

	if result.IsValid {
		t.Fatal("expected invalid result")
	}
	// Тип победителя, отсутствующий loser и формат счёта — всё в одном ответе.
	if len(result.Errors) < 3 {
		t.Errorf("errors = %v, want at least 3 distinct problems", result.Errors)
	}
}

func TestValidatePayloadUnknownGame(t *testing.T) {
	v := testValidator()
	result := v.ValidatePayload(context.Background(), "chess", models.ResultPayload{"score": "1-0"})

	if result.IsValid {
		t.Fatal("expected invalid result for unknown game")
	}
	if !containsError(result.Errors, "no result schema configured") {
		t.Errorf("errors = %v, want missing schema message", result.Errors)
	}
}

func TestValidatePayloadCalculatedScores(t *testing.T) {
	v := testValidator()
	result := v.ValidatePayload(context.Background(), "cs2", models.ResultPayload{
		"winner_team_id": 10,
		"loser_team_id":  20,
		"score":          "7-16",
	})

	if !result.IsValid {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.CalculatedScores["winner_score"] != 7 || result.CalculatedScores["loser_score"] != 16 {
		t.Errorf("calculated scores = %v, want 7/16", result.CalculatedScores)
	}
	// Счёт в пользу проигравшего — предупреждение, не ошибка.
	if len(result.Warnings) == 0 {
		t.Error("expected a warning for a score favoring the loser")
	}
	if result.Metadata["schema_version"] != "3" {
		t.Errorf("schema_version = %q, want 3", result.Metadata["schema_version"])
	}
}

func containsError(errs []string, fragment string) bool {
	for _, e := range errs {
		if strings.Contains(e, fragment) {
			return true
		}
	}
	return false
}
