package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rkRashik/deltacrown/events"
	"github.com/rkRashik/deltacrown/models"
	"github.com/rkRashik/deltacrown/repositories"
	"github.com/rkRashik/deltacrown/scheduler"
	"github.com/rkRashik/deltacrown/validation"
)

type ResponseDecision string

const (
	DecisionConfirm ResponseDecision = "confirm"
	DecisionDispute ResponseDecision = "dispute"
)

// AutoConfirmOutcome — явный итог идемпотентного автоподтверждения.
// Вызывающий не должен принять no-op за выполненный переход.
type AutoConfirmOutcome int

const (
	// AutoConfirmApplied — переход pending → auto_confirmed выполнен этим вызовом.
	AutoConfirmApplied AutoConfirmOutcome = iota
	// AutoConfirmAlreadyApplied — заявка уже не pending; вызов ничего не сделал.
	AutoConfirmAlreadyApplied
	// AutoConfirmNotDue — дедлайн ещё не наступил; вызов ничего не сделал.
	AutoConfirmNotDue
)

func (o AutoConfirmOutcome) String() string {
	switch o {
	case AutoConfirmApplied:
		return "applied"
	case AutoConfirmAlreadyApplied:
		return "already_applied"
	case AutoConfirmNotDue:
		return "not_due"
	}
	return "unknown"
}

type SubmitResultInput struct {
	MatchID         int
	SubmitterUserID int
	SubmitterSideID int
	Payload         models.ResultPayload
	ProofURL        *string
	Notes           *string
}

type OpponentResponseInput struct {
	SubmissionID     int
	RespondingUserID int
	RespondingSideID int
	Decision         ResponseDecision
	ReasonCode       models.DisputeReason
	Notes            *string
	DisputedPayload  models.ResultPayload
	Evidence         []EvidenceInput
}

// SubmissionService владеет машиной состояний заявки на результат:
// pending → {confirmed, disputed, auto_confirmed, rejected};
// confirmed/auto_confirmed → finalized (только через VerificationService).
type SubmissionService interface {
	SubmitResult(ctx context.Context, input SubmitResultInput) (*models.Submission, error)
	GetSubmission(ctx context.Context, submissionID int) (*models.Submission, error)
	OpponentResponse(ctx context.Context, input OpponentResponseInput) (*models.Submission, error)
	ConfirmResult(ctx context.Context, submissionID, confirmedByUserID int) (*models.Submission, error)
	AutoConfirmResult(ctx context.Context, submissionID int) (*models.Submission, AutoConfirmOutcome, error)
}

type submissionService struct {
	submissionRepo    repositories.SubmissionRepository
	matchRepo         repositories.MatchRepository
	disputeRepo       repositories.DisputeRepository
	validator         validation.Validator
	disputes          DisputeService
	logRepo           repositories.VerificationLogRepository
	publisher         events.Publisher
	jobs              scheduler.Scheduler
	autoConfirmWindow time.Duration
	logger            *slog.Logger
}

func NewSubmissionService(
	submissionRepo repositories.SubmissionRepository,
	matchRepo repositories.MatchRepository,
	disputeRepo repositories.DisputeRepository,
	validator validation.Validator,
	disputes DisputeService,
	logRepo repositories.VerificationLogRepository,
	publisher events.Publisher,
	jobs scheduler.Scheduler,
	autoConfirmWindow time.Duration,
	logger *slog.Logger,
) SubmissionService {
	return &submissionService{
		submissionRepo:    submissionRepo,
		matchRepo:         matchRepo,
		disputeRepo:       disputeRepo,
		validator:         validator,
		disputes:          disputes,
		logRepo:           logRepo,
		publisher:         publisher,
		jobs:              jobs,
		autoConfirmWindow: autoConfirmWindow,
		logger:            logger,
	}
}

// SubmitResult принимает заявку участника на результат матча.
// Невалидный payload не персистится вовсе.
func (s *submissionService) SubmitResult(ctx context.Context, input SubmitResultInput) (*models.Submission, error) {
	match, err := s.matchRepo.GetByID(ctx, input.MatchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match %d: %w", input.MatchID, err)
	}
	if !match.AcceptsResults() {
		return nil, fmt.Errorf("%w: match %d is %s", ErrInvalidMatchState, match.ID, match.State)
	}
	if !match.HasSide(input.SubmitterSideID) {
		return nil, fmt.Errorf("%w: side %d is not a participant of match %d", ErrPermissionDenied, input.SubmitterSideID, match.ID)
	}

	if _, err := s.submissionRepo.GetActiveByMatch(ctx, input.MatchID); err == nil {
		return nil, ErrSubmissionConflict
	} else if !errors.Is(err, repositories.ErrSubmissionNotFound) {
		return nil, fmt.Errorf("failed to check active submission: %w", err)
	}

	result := s.validator.ValidatePayload(ctx, match.GameSlug, input.Payload)
	if !result.IsValid {
		return nil, &SubmissionValidationError{Errors: result.Errors}
	}

	now := time.Now().UTC()
	submission := &models.Submission{
		MatchID:             input.MatchID,
		SubmittedByUserID:   input.SubmitterUserID,
		SubmitterSideID:     input.SubmitterSideID,
		Payload:             input.Payload,
		ProofURL:            input.ProofURL,
		SubmitterNotes:      input.Notes,
		Status:              models.SubmissionStatusPending,
		SubmittedAt:         now,
		AutoConfirmDeadline: now.Add(s.autoConfirmWindow),
	}
	if err := s.submissionRepo.Create(ctx, submission); err != nil {
		if errors.Is(err, repositories.ErrSubmissionActiveConflict) {
			return nil, ErrSubmissionConflict
		}
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}

	s.logStep(ctx, submission.ID, "result_submitted", "ok", &input.SubmitterUserID)

	if err := s.jobs.Schedule(ctx, scheduler.TaskAutoConfirmSubmission, submissionKey(submission.ID),
		models.JSONMap{"submission_id": submission.ID}, submission.AutoConfirmDeadline); err != nil {
		// Заявка уже создана; просроченный элемент всё равно всплывёт
		// в инбоксе организатора как overdue.
		s.logger.Error("failed to schedule auto-confirm check",
			slog.Int("submission_id", submission.ID), slog.Any("error", err))
	}

	s.publisher.Publish(ctx, events.MatchResultSubmitted, map[string]interface{}{
		"match_id":      match.ID,
		"submission_id": submission.ID,
	}, map[string]string{
		"payload_digest": payloadDigest(input.Payload),
	})

	return submission, nil
}

// GetSubmission возвращает заявку вместе с её последним спором, если он есть.
func (s *submissionService) GetSubmission(ctx context.Context, submissionID int) (*models.Submission, error) {
	submission, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSubmissionNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission %d: %w", submissionID, err)
	}

	dispute, err := s.disputeRepo.GetLatestBySubmission(ctx, submissionID)
	if err == nil {
		submission.Dispute = dispute
	} else if !errors.Is(err, repositories.ErrDisputeNotFound) {
		return nil, fmt.Errorf("failed to get dispute for submission %d: %w", submissionID, err)
	}
	return submission, nil
}

// OpponentResponse — ответ не подававшей стороны: подтвердить или оспорить.
func (s *submissionService) OpponentResponse(ctx context.Context, input OpponentResponseInput) (*models.Submission, error) {
	submission, err := s.submissionRepo.GetByID(ctx, input.SubmissionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSubmissionNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission %d: %w", input.SubmissionID, err)
	}
	if submission.Status != models.SubmissionStatusPending {
		return nil, fmt.Errorf("%w: submission %d is %s", ErrInvalidSubmissionState, submission.ID, submission.Status)
	}

	match, err := s.matchRepo.GetByID(ctx, submission.MatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match %d: %w", submission.MatchID, err)
	}
	opposing := match.OpposingSide(submission.SubmitterSideID)
	if input.RespondingSideID != opposing {
		return nil, fmt.Errorf("%w: only the opposing side may respond", ErrPermissionDenied)
	}
	if input.RespondingUserID == submission.SubmittedByUserID {
		return nil, fmt.Errorf("%w: submitter cannot respond to own result", ErrPermissionDenied)
	}

	switch input.Decision {
	case DecisionConfirm:
		return s.ConfirmResult(ctx, submission.ID, input.RespondingUserID)
	case DecisionDispute:
		return s.disputeSubmission(ctx, submission, input)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidResponseDecision, input.Decision)
}

func (s *submissionService) disputeSubmission(ctx context.Context, submission *models.Submission, input OpponentResponseInput) (*models.Submission, error) {
	if input.ReasonCode == "" {
		return nil, fmt.Errorf("%w: reason code is required to dispute", ErrInvalidDisputeReason)
	}

	dispute, err := s.disputes.OpenDisputeFromSubmission(ctx, OpenDisputeInput{
		SubmissionID:    submission.ID,
		OpenedByUserID:  input.RespondingUserID,
		OpenedBySideID:  input.RespondingSideID,
		Reason:          input.ReasonCode,
		Description:     input.Notes,
		DisputedPayload: input.DisputedPayload,
		Evidence:        input.Evidence,
	})
	if err != nil {
		return nil, err
	}

	if err := s.submissionRepo.MarkDisputed(ctx, submission.ID); err != nil {
		// Заявка успела уйти из pending (гонка с автоподтверждением или
		// подтверждением) — компенсируем только что открытый спор.
		if _, cancelErr := s.disputes.CompleteDispute(ctx, dispute.ID, models.DisputeStatusCancelled, nil, nil); cancelErr != nil {
			s.logger.Error("failed to cancel dispute after lost race",
				slog.Int("dispute_id", dispute.ID), slog.Any("error", cancelErr))
		}
		if errors.Is(err, repositories.ErrSubmissionStateConflict) {
			return nil, fmt.Errorf("%w: submission %d", ErrInvalidSubmissionState, submission.ID)
		}
		return nil, fmt.Errorf("failed to mark submission %d disputed: %w", submission.ID, err)
	}

	// Таймер автоподтверждения оспоренной заявке больше не нужен.
	if err := s.jobs.CancelPending(ctx, scheduler.TaskAutoConfirmSubmission, submissionKey(submission.ID)); err != nil {
		s.logger.Warn("failed to cancel auto-confirm job",
			slog.Int("submission_id", submission.ID), slog.Any("error", err))
	}

	s.logStep(ctx, submission.ID, "submission_disputed", "ok", &input.RespondingUserID)

	updated, err := s.GetSubmission(ctx, submission.ID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ConfirmResult подтверждает заявку от имени соперника. Финализация —
// отдельный явный шаг, чтобы верификацию нельзя было пропустить.
func (s *submissionService) ConfirmResult(ctx context.Context, submissionID, confirmedByUserID int) (*models.Submission, error) {
	submission, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSubmissionNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission %d: %w", submissionID, err)
	}
	if confirmedByUserID == submission.SubmittedByUserID {
		return nil, fmt.Errorf("%w: submitter cannot confirm own result", ErrPermissionDenied)
	}
	if submission.Status != models.SubmissionStatusPending {
		return nil, fmt.Errorf("%w: submission %d is %s", ErrInvalidSubmissionState, submissionID, submission.Status)
	}

	now := time.Now().UTC()
	if err := s.submissionRepo.MarkConfirmed(ctx, submissionID, confirmedByUserID, now); err != nil {
		if errors.Is(err, repositories.ErrSubmissionStateConflict) {
			return nil, fmt.Errorf("%w: submission %d", ErrInvalidSubmissionState, submissionID)
		}
		return nil, fmt.Errorf("failed to confirm submission %d: %w", submissionID, err)
	}

	if err := s.jobs.CancelPending(ctx, scheduler.TaskAutoConfirmSubmission, submissionKey(submissionID)); err != nil {
		s.logger.Warn("failed to cancel auto-confirm job",
			slog.Int("submission_id", submissionID), slog.Any("error", err))
	}

	s.logStep(ctx, submissionID, "result_confirmed", "ok", &confirmedByUserID)
	s.publisher.Publish(ctx, events.MatchResultConfirmed, map[string]interface{}{
		"submission_id":        submissionID,
		"confirmed_by_user_id": confirmedByUserID,
	}, nil)

	return s.submissionRepo.GetByID(ctx, submissionID)
}

// AutoConfirmResult — идемпотентная проверка дедлайна. Вызывается отложенной
// задачей с доставкой at-least-once: повторный вызов после перехода и вызов
// до дедлайна — чистые no-op без ошибок и без побочных эффектов.
func (s *submissionService) AutoConfirmResult(ctx context.Context, submissionID int) (*models.Submission, AutoConfirmOutcome, error) {
	submission, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSubmissionNotFound) {
			return nil, AutoConfirmAlreadyApplied, ErrSubmissionNotFound
		}
		return nil, AutoConfirmAlreadyApplied, fmt.Errorf("failed to get submission %d: %w", submissionID, err)
	}

	if submission.Status != models.SubmissionStatusPending {
		return submission, AutoConfirmAlreadyApplied, nil
	}
	now := time.Now().UTC()
	if now.Before(submission.AutoConfirmDeadline) {
		return submission, AutoConfirmNotDue, nil
	}

	if err := s.submissionRepo.MarkAutoConfirmed(ctx, submissionID, now); err != nil {
		if errors.Is(err, repositories.ErrSubmissionStateConflict) {
			// Конкурентный переход успел раньше — для ретрая это успех.
			current, getErr := s.submissionRepo.GetByID(ctx, submissionID)
			if getErr != nil {
				return nil, AutoConfirmAlreadyApplied, getErr
			}
			return current, AutoConfirmAlreadyApplied, nil
		}
		return nil, AutoConfirmAlreadyApplied, fmt.Errorf("failed to auto-confirm submission %d: %w", submissionID, err)
	}

	s.logStep(ctx, submissionID, "result_auto_confirmed", "ok", nil)
	s.publisher.Publish(ctx, events.MatchResultAutoConfirmed, map[string]interface{}{
		"submission_id": submissionID,
		"match_id":      submission.MatchID,
	}, nil)

	updated, err := s.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, AutoConfirmApplied, err
	}
	return updated, AutoConfirmApplied, nil
}

func (s *submissionService) logStep(ctx context.Context, submissionID int, step, status string, userID *int) {
	if err := s.logRepo.LogStep(ctx, submissionID, step, status, userID); err != nil {
		s.logger.Warn("failed to log verification step",
			slog.Int("submission_id", submissionID), slog.String("step", step), slog.Any("error", err))
	}
}

// payloadDigest — стабильный sha256 от payload (json.Marshal сортирует ключи map).
func payloadDigest(payload models.ResultPayload) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
