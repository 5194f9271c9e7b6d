package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rkRashik/deltacrown/events"
	"github.com/rkRashik/deltacrown/models"
	"github.com/rkRashik/deltacrown/repositories"
	"github.com/rkRashik/deltacrown/validation"
)

// VerificationService — финализационный шлюз. Единственный разрешённый путь
// к статусу finalized проходит через FinalizeSubmissionAfterVerification:
// каждый путь разрешения заново валидируется по схеме, прежде чем стать
// авторитетным результатом.
type VerificationService interface {
	VerifySubmission(ctx context.Context, submissionID int) (models.VerificationResult, error)
	DryRunVerification(ctx context.Context, submissionID int) (models.VerificationResult, error)
	FinalizeSubmissionAfterVerification(ctx context.Context, submissionID int, resolvedByUserID *int) (*models.Submission, error)
	ListVerificationSteps(ctx context.Context, submissionID int) ([]*models.VerificationStep, error)
}

type verificationService struct {
	submissionRepo repositories.SubmissionRepository
	disputeRepo    repositories.DisputeRepository
	matchRepo      repositories.MatchRepository
	logRepo        repositories.VerificationLogRepository
	validator      validation.Validator
	publisher      events.Publisher
	logger         *slog.Logger
}

func NewVerificationService(
	submissionRepo repositories.SubmissionRepository,
	disputeRepo repositories.DisputeRepository,
	matchRepo repositories.MatchRepository,
	logRepo repositories.VerificationLogRepository,
	validator validation.Validator,
	publisher events.Publisher,
	logger *slog.Logger,
) VerificationService {
	return &verificationService{
		submissionRepo: submissionRepo,
		disputeRepo:    disputeRepo,
		matchRepo:      matchRepo,
		logRepo:        logRepo,
		validator:      validator,
		publisher:      publisher,
		logger:         logger,
	}
}

// VerifySubmission прогоняет текущий payload заявки через валидатор плюс
// проверку принадлежности победителя матчу. Ничего не мутирует; тот же
// вердикт, который получит финализация.
func (s *verificationService) VerifySubmission(ctx context.Context, submissionID int) (models.VerificationResult, error) {
	submission, match, err := s.loadSubmissionWithMatch(ctx, submissionID)
	if err != nil {
		return models.VerificationResult{}, err
	}
	return s.verify(ctx, submission, match), nil
}

func (s *verificationService) verify(ctx context.Context, submission *models.Submission, match *models.Match) models.VerificationResult {
	result := s.validator.ValidatePayload(ctx, match.GameSlug, submission.Payload)
	winnerSideID, hasWinner := payloadInt(submission.Payload, validation.FieldWinner)
	if result.IsValid && hasWinner && !match.HasSide(winnerSideID) {
		result.IsValid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("%s %d is not a participant of match %d", validation.FieldWinner, winnerSideID, match.ID))
	}
	return result
}

// DryRunVerification — то же, что VerifySubmission, под отдельным именем
// для тулинга и предпросмотра.
func (s *verificationService) DryRunVerification(ctx context.Context, submissionID int) (models.VerificationResult, error) {
	return s.VerifySubmission(ctx, submissionID)
}

func (s *verificationService) FinalizeSubmissionAfterVerification(ctx context.Context, submissionID int, resolvedByUserID *int) (*models.Submission, error) {
	submission, match, err := s.loadSubmissionWithMatch(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.Status.Terminal() {
		return nil, fmt.Errorf("%w: submission %d is %s", ErrInvalidSubmissionState, submissionID, submission.Status)
	}

	// Шаг 1: повторная валидация. При отказе состояние нигде не меняется.
	result := s.verify(ctx, submission, match)
	winnerSideID, hasWinner := payloadInt(submission.Payload, validation.FieldWinner)
	if !result.IsValid {
		s.logStep(ctx, submissionID, "finalize_verification", "failed", resolvedByUserID)
		return nil, &VerificationFailedError{Errors: result.Errors}
	}

	// Шаг 2: незакрытый спор блокирует финализацию.
	if _, disputeErr := s.disputeRepo.GetActiveBySubmission(ctx, submissionID); disputeErr == nil {
		return nil, fmt.Errorf("%w: submission %d has an unresolved dispute", ErrInvalidDisputeState, submissionID)
	} else if !errors.Is(disputeErr, repositories.ErrDisputeNotFound) {
		return nil, fmt.Errorf("failed to check dispute for submission %d: %w", submissionID, disputeErr)
	}

	// Шаг 3: записываем расчётный результат во внешний матч и закрываем его.
	var winnerPtr *int
	if hasWinner {
		winnerPtr = &winnerSideID
	}
	score := payloadScore(submission.Payload)
	if err := s.matchRepo.RecordResult(ctx, match.ID, score, winnerPtr); err != nil {
		if !errors.Is(err, repositories.ErrMatchAlreadyClosed) {
			return nil, fmt.Errorf("failed to record result on match %d: %w", match.ID, err)
		}
		// Матч уже закрыт предыдущей (прерванной) попыткой финализации —
		// повторный проход должен довести заявку до finalized.
	}

	// Шаг 4: терминальный переход заявки.
	now := time.Now().UTC()
	if err := s.submissionRepo.MarkFinalized(ctx, submissionID, now); err != nil {
		if errors.Is(err, repositories.ErrSubmissionStateConflict) {
			return nil, fmt.Errorf("%w: submission %d", ErrInvalidSubmissionState, submissionID)
		}
		return nil, fmt.Errorf("failed to finalize submission %d: %w", submissionID, err)
	}

	s.logStep(ctx, submissionID, "finalized", "ok", resolvedByUserID)

	// Шаг 5: событие завершения для статистики и лидербордов.
	s.publisher.Publish(ctx, events.MatchResultFinalized, map[string]interface{}{
		"submission_id": submissionID,
		"match_id":      match.ID,
	}, map[string]string{
		"game_slug": match.GameSlug,
	})

	finalized, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	return finalized, nil
}

func (s *verificationService) ListVerificationSteps(ctx context.Context, submissionID int) ([]*models.VerificationStep, error) {
	if _, err := s.submissionRepo.GetByID(ctx, submissionID); err != nil {
		if errors.Is(err, repositories.ErrSubmissionNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	return s.logRepo.ListBySubmission(ctx, submissionID)
}

func (s *verificationService) loadSubmissionWithMatch(ctx context.Context, submissionID int) (*models.Submission, *models.Match, error) {
	submission, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSubmissionNotFound) {
			return nil, nil, ErrSubmissionNotFound
		}
		return nil, nil, fmt.Errorf("failed to get submission %d: %w", submissionID, err)
	}

	match, err := s.matchRepo.GetByID(ctx, submission.MatchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, nil, ErrMatchNotFound
		}
		return nil, nil, fmt.Errorf("failed to get match %d: %w", submission.MatchID, err)
	}
	return submission, match, nil
}

func (s *verificationService) logStep(ctx context.Context, submissionID int, step, status string, userID *int) {
	if err := s.logRepo.LogStep(ctx, submissionID, step, status, userID); err != nil {
		// Журнал не должен ронять основную операцию; потерю строки аудита
		// можно восстановить из событий.
		s.logger.Warn("failed to log verification step",
			slog.Int("submission_id", submissionID), slog.String("step", step), slog.Any("error", err))
	}
}

func payloadInt(payload models.ResultPayload, key string) (int, bool) {
	value, ok := payload[key]
	if !ok {
		return 0, false
	}
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

func payloadScore(payload models.ResultPayload) *string {
	if raw, ok := payload[validation.FieldScore]; ok {
		if score, okStr := raw.(string); okStr {
			return &score
		}
	}
	return nil
}
