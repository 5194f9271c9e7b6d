// Package validation проверяет игрозависимые payload'ы результатов против
// схемы игры и кросс-полевых бизнес-правил. Результат никогда не кэшируется:
// схема игры могла измениться между вызовами.
package validation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rkRashik/deltacrown/models"
	"github.com/rkRashik/deltacrown/repositories"
)

const defaultScorePattern = `^\d+-\d+$`

// Имена полей, на которые опираются кросс-полевые правила.
const (
	FieldWinner = "winner_team_id"
	FieldLoser  = "loser_team_id"
	FieldScore  = "score"
)

type Validator interface {
	ValidatePayload(ctx context.Context, gameSlug string, payload models.ResultPayload) models.VerificationResult
}

type schemaValidator struct {
	gameRepo repositories.GameRepository
}

func NewSchemaValidator(gameRepo repositories.GameRepository) Validator {
	return &schemaValidator{gameRepo: gameRepo}
}

// ValidatePayload никогда не возвращает ошибку транспортом: отсутствие схемы
// или сбой поиска игры отражаются в результате как is_valid=false.
func (v *schemaValidator) ValidatePayload(ctx context.Context, gameSlug string, payload models.ResultPayload) models.VerificationResult {
	result := models.VerificationResult{
		Errors:           []string{},
		Warnings:         []string{},
		CalculatedScores: map[string]int{},
		Metadata: map[string]string{
			"game_slug":         gameSlug,
			"validation_method": "schema",
		},
	}

	game, err := v.gameRepo.GetBySlug(ctx, gameSlug)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("no result schema configured for game %q", gameSlug))
		return result
	}
	result.Metadata["schema_version"] = strconv.Itoa(game.ResultSchema.Version)

	if len(payload) == 0 {
		result.Errors = append(result.Errors, "result payload must not be empty")
		return result
	}

	for _, field := range game.ResultSchema.Fields {
		value, present := payload[field.Name]
		if !present || value == nil {
			if field.Required {
				result.Errors = append(result.Errors, fmt.Sprintf("missing required field %q", field.Name))
			}
			continue
		}
		if typeErr := checkFieldType(field, value); typeErr != "" {
			result.Errors = append(result.Errors, typeErr)
		}
	}

	v.applyCrossFieldRules(game, payload, &result)

	result.IsValid = len(result.Errors) == 0
	return result
}

// applyCrossFieldRules — бизнес-правила поверх структурной проверки:
// победитель и проигравший не могут совпадать, счёт обязан соответствовать
// формату игры, из счёта выводятся расчётные очки.
func (v *schemaValidator) applyCrossFieldRules(game *models.Game, payload models.ResultPayload, result *models.VerificationResult) {
	winnerID, winnerOK := intField(payload, FieldWinner)
	loserID, loserOK := intField(payload, FieldLoser)

	if winnerOK && winnerID <= 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%s must be a positive id", FieldWinner))
	}
	if loserOK && loserID <= 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%s must be a positive id", FieldLoser))
	}
	if winnerOK && loserOK && winnerID == loserID {
		result.Errors = append(result.Errors, "winner and loser must be different sides")
	}

	rawScore, hasScore := payload[FieldScore]
	if !hasScore {
		return
	}
	score, ok := rawScore.(string)
	if !ok {
		result.Errors = append(result.Errors, "score must be a string")
		return
	}

	pattern := game.ResultSchema.ScorePattern
	if pattern == "" {
		pattern = defaultScorePattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		// Сломанная схема — проблема конфигурации игры, а не участника.
		result.Warnings = append(result.Warnings, fmt.Sprintf("game score pattern is invalid: %v", err))
		return
	}
	if !re.MatchString(score) {
		result.Errors = append(result.Errors, fmt.Sprintf("score %q does not match required format", score))
		return
	}

	winnerScore, loserScore, ok := splitScore(score)
	if !ok {
		return
	}
	result.CalculatedScores["winner_score"] = winnerScore
	result.CalculatedScores["loser_score"] = loserScore
	if winnerScore < loserScore {
		result.Warnings = append(result.Warnings, "reported score favors the losing side")
	}
}

func checkFieldType(field models.SchemaField, value interface{}) string {
	switch field.Type {
	case models.SchemaFieldInt:
		if _, ok := asInt(value); !ok {
			return fmt.Sprintf("field %q must be an integer", field.Name)
		}
	case models.SchemaFieldString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("field %q must be a string", field.Name)
		}
	case models.SchemaFieldBool:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("field %q must be a boolean", field.Name)
		}
	}
	return ""
}

// asInt принимает и float64 (так декодирует encoding/json), и int.
func asInt(value interface{}) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func intField(payload models.ResultPayload, name string) (int, bool) {
	value, present := payload[name]
	if !present {
		return 0, false
	}
	return asInt(value)
}

func splitScore(score string) (int, int, bool) {
	parts := strings.SplitN(score, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, errA := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, errB := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return a, b, true
}
