package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rkRashik/deltacrown/events"
	"github.com/rkRashik/deltacrown/models"
	"github.com/rkRashik/deltacrown/repositories"
	"github.com/rkRashik/deltacrown/scheduler"
)

// sweepConcurrency ограничивает параллелизм эскалации в одном проходе.
const sweepConcurrency = 8

type OpenDisputeInput struct {
	SubmissionID    int
	OpenedByUserID  int
	OpenedBySideID  int
	Reason          models.DisputeReason
	Description     *string
	DisputedPayload models.ResultPayload
	Evidence        []EvidenceInput
}

type EvidenceInput struct {
	Type  models.EvidenceType
	URL   string
	Notes *string
}

// DisputeService владеет под-машиной состояний спора:
// open → {under_review, escalated} → {resolved_*, dismissed, cancelled}.
type DisputeService interface {
	OpenDisputeFromSubmission(ctx context.Context, input OpenDisputeInput) (*models.Dispute, error)
	GetDispute(ctx context.Context, disputeID int) (*models.Dispute, error)
	AddEvidence(ctx context.Context, disputeID, uploadedByUserID int, evidenceType models.EvidenceType, url string, notes *string) (*models.DisputeEvidence, error)
	MarkUnderReview(ctx context.Context, disputeID int) (*models.Dispute, error)
	EscalateDispute(ctx context.Context, disputeID int, escalatedByUserID *int) (*models.Dispute, error)
	EscalateOverdueDisputes(ctx context.Context) (int, error)
	ResolveDispute(ctx context.Context, disputeID, resolvedByUserID int, resolution models.DisputeResolution, notes string) (*models.Dispute, *models.Submission, error)
	CompleteDispute(ctx context.Context, disputeID int, status models.DisputeStatus, resolvedByUserID *int, notes *string) (*models.Dispute, error)
	ReopenSubmission(ctx context.Context, submissionID int) (*models.Submission, error)
}

type disputeService struct {
	disputeRepo       repositories.DisputeRepository
	evidenceRepo      repositories.EvidenceRepository
	submissionRepo    repositories.SubmissionRepository
	logRepo           repositories.VerificationLogRepository
	verification      VerificationService
	publisher         events.Publisher
	jobs              scheduler.Scheduler
	autoConfirmWindow time.Duration
	escalationSLA     time.Duration
	logger            *slog.Logger
}

func NewDisputeService(
	disputeRepo repositories.DisputeRepository,
	evidenceRepo repositories.EvidenceRepository,
	submissionRepo repositories.SubmissionRepository,
	logRepo repositories.VerificationLogRepository,
	verification VerificationService,
	publisher events.Publisher,
	jobs scheduler.Scheduler,
	autoConfirmWindow time.Duration,
	escalationSLA time.Duration,
	logger *slog.Logger,
) DisputeService {
	return &disputeService{
		disputeRepo:       disputeRepo,
		evidenceRepo:      evidenceRepo,
		submissionRepo:    submissionRepo,
		logRepo:           logRepo,
		verification:      verification,
		publisher:         publisher,
		jobs:              jobs,
		autoConfirmWindow: autoConfirmWindow,
		escalationSLA:     escalationSLA,
		logger:            logger,
	}
}

// OpenDisputeFromSubmission открывает спор против pending-заявки.
// Проверки прав (сторона, не подававшая результат) выполняет вызывающий
// Result Submission Engine; здесь охраняются инварианты самого спора.
func (s *disputeService) OpenDisputeFromSubmission(ctx context.Context, input OpenDisputeInput) (*models.Dispute, error) {
	if !input.Reason.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDisputeReason, input.Reason)
	}

	submission, err := s.submissionRepo.GetByID(ctx, input.SubmissionID)
	if err != nil {
		if errors.Is(err, repositories.ErrSubmissionNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission %d: %w", input.SubmissionID, err)
	}
	if submission.Status != models.SubmissionStatusPending {
		return nil, fmt.Errorf("%w: dispute requires a pending submission, got %s", ErrInvalidSubmissionState, submission.Status)
	}

	if _, err := s.disputeRepo.GetActiveBySubmission(ctx, input.SubmissionID); err == nil {
		return nil, ErrDuplicateDispute
	} else if !errors.Is(err, repositories.ErrDisputeNotFound) {
		return nil, fmt.Errorf("failed to check existing dispute: %w", err)
	}

	dispute := &models.Dispute{
		SubmissionID:    input.SubmissionID,
		OpenedByUserID:  input.OpenedByUserID,
		OpenedBySideID:  input.OpenedBySideID,
		Reason:          input.Reason,
		Description:     input.Description,
		Status:          models.DisputeStatusOpen,
		DisputedPayload: input.DisputedPayload,
		OpenedAt:        time.Now().UTC(),
	}
	if err := s.disputeRepo.Create(ctx, dispute); err != nil {
		if errors.Is(err, repositories.ErrDisputeActiveConflict) {
			return nil, ErrDuplicateDispute
		}
		return nil, fmt.Errorf("failed to create dispute: %w", err)
	}

	for _, item := range input.Evidence {
		if _, evErr := s.AddEvidence(ctx, dispute.ID, input.OpenedByUserID, item.Type, item.URL, item.Notes); evErr != nil {
			// Спор уже открыт; недогруженное вложение участник может добавить повторно.
			s.logger.Warn("failed to attach evidence to new dispute",
				slog.Int("dispute_id", dispute.ID), slog.Any("error", evErr))
		}
	}

	s.logStep(ctx, input.SubmissionID, "dispute_opened", "ok", &input.OpenedByUserID)
	return dispute, nil
}

func (s *disputeService) GetDispute(ctx context.Context, disputeID int) (*models.Dispute, error) {
	dispute, err := s.disputeRepo.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, repositories.ErrDisputeNotFound) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("failed to get dispute %d: %w", disputeID, err)
	}

	evidence, err := s.evidenceRepo.ListByDispute(ctx, disputeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence for dispute %d: %w", disputeID, err)
	}
	dispute.Evidence = make([]models.DisputeEvidence, 0, len(evidence))
	for _, item := range evidence {
		dispute.Evidence = append(dispute.Evidence, *item)
	}
	return dispute, nil
}

// AddEvidence — чистое добавление: ни перехода состояния, ни события.
func (s *disputeService) AddEvidence(ctx context.Context, disputeID, uploadedByUserID int, evidenceType models.EvidenceType, url string, notes *string) (*models.DisputeEvidence, error) {
	if !evidenceType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEvidenceType, evidenceType)
	}
	if url == "" {
		return nil, errors.New("evidence url is required")
	}

	if _, err := s.disputeRepo.GetByID(ctx, disputeID); err != nil {
		if errors.Is(err, repositories.ErrDisputeNotFound) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("failed to get dispute %d: %w", disputeID, err)
	}

	evidence := &models.DisputeEvidence{
		DisputeID:        disputeID,
		UploadedByUserID: uploadedByUserID,
		Type:             evidenceType,
		URL:              url,
		Notes:            notes,
	}
	if err := s.evidenceRepo.Create(ctx, evidence); err != nil {
		return nil, fmt.Errorf("failed to add evidence to dispute %d: %w", disputeID, err)
	}
	return evidence, nil
}

// MarkUnderReview — рекомендательный подстатус на время расследования,
// состояние заявки не меняет.
func (s *disputeService) MarkUnderReview(ctx context.Context, disputeID int) (*models.Dispute, error) {
	err := s.disputeRepo.MarkUnderReview(ctx, disputeID)
	if err != nil {
		if errors.Is(err, repositories.ErrDisputeNotFound) {
			return nil, ErrDisputeNotFound
		}
		if errors.Is(err, repositories.ErrDisputeStateConflict) {
			// Уже under_review/escalated — не ошибка для организатора.
			return s.disputeRepo.GetByID(ctx, disputeID)
		}
		return nil, fmt.Errorf("failed to mark dispute %d under review: %w", disputeID, err)
	}
	return s.disputeRepo.GetByID(ctx, disputeID)
}

// EscalateDispute поднимает спор на верхний уровень внимания организатора.
// escalatedByUserID == nil означает системную эскалацию по SLA.
func (s *disputeService) EscalateDispute(ctx context.Context, disputeID int, escalatedByUserID *int) (*models.Dispute, error) {
	dispute, err := s.disputeRepo.GetByID(ctx, disputeID)
	if err != nil {
		if errors.Is(err, repositories.ErrDisputeNotFound) {
			return nil, ErrDisputeNotFound
		}
		return nil, fmt.Errorf("failed to get dispute %d: %w", disputeID, err)
	}
	if dispute.Status.Resolved() {
		return nil, fmt.Errorf("%w: dispute %d is already %s", ErrInvalidDisputeState, disputeID, dispute.Status)
	}
	if dispute.Status == models.DisputeStatusEscalated {
		return nil, fmt.Errorf("%w: dispute %d is already escalated", ErrInvalidDisputeState, disputeID)
	}

	now := time.Now().UTC()
	if err := s.disputeRepo.MarkEscalated(ctx, disputeID, now); err != nil {
		if errors.Is(err, repositories.ErrDisputeStateConflict) {
			return nil, fmt.Errorf("%w: dispute %d", ErrInvalidDisputeState, disputeID)
		}
		return nil, fmt.Errorf("failed to escalate dispute %d: %w", disputeID, err)
	}

	s.logStep(ctx, dispute.SubmissionID, "dispute_escalated", "ok", escalatedByUserID)
	s.publisher.Publish(ctx, events.DisputeEscalated, map[string]interface{}{
		"dispute_id":           disputeID,
		"escalated_by_user_id": escalatedByUserID,
	}, nil)

	return s.disputeRepo.GetByID(ctx, disputeID)
}

// EscalateOverdueDisputes — периодический проход: каждый open/under_review
// спор старше SLA эскалируется системно. Безопасен к повторным запускам.
func (s *disputeService) EscalateOverdueDisputes(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.escalationSLA)
	overdue, err := s.disputeRepo.ListOverdue(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list overdue disputes: %w", err)
	}
	if len(overdue) == 0 {
		return 0, nil
	}

	var group errgroup.Group
	group.SetLimit(sweepConcurrency)

	escalated := make(chan int, len(overdue))
	for _, dispute := range overdue {
		dispute := dispute
		group.Go(func() error {
			if _, escErr := s.EscalateDispute(ctx, dispute.ID, nil); escErr != nil {
				// Гонка с ручной эскалацией или разрешением — штатно для свипа.
				if !errors.Is(escErr, ErrInvalidDisputeState) {
					s.logger.Error("sweep: failed to escalate dispute",
						slog.Int("dispute_id", dispute.ID), slog.Any("error", escErr))
				}
				return nil
			}
			escalated <- dispute.ID
			return nil
		})
	}
	_ = group.Wait() // воркеры всегда возвращают nil: отказ одного спора не прерывает проход
	close(escalated)

	count := 0
	for range escalated {
		count++
	}
	s.logger.Info("dispute escalation sweep finished",
		slog.Int("overdue", len(overdue)), slog.Int("escalated", count))
	return count, nil
}

// ResolveDispute применяет фиксированную таблицу вердиктов:
//
//	submitter_wins → resolved_for_submitter, заявка финализируется
//	opponent_wins  → resolved_for_opponent,  заявка отклоняется
//	cancelled      → cancelled,              заявка возвращается в pending
func (s *disputeService) ResolveDispute(ctx context.Context, disputeID, resolvedByUserID int, resolution models.DisputeResolution, notes string) (*models.Dispute, *models.Submission, error) {
	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}

	var disputeStatus models.DisputeStatus
	switch resolution {
	case models.ResolutionSubmitterWins:
		disputeStatus = models.DisputeStatusResolvedForSubmitter
	case models.ResolutionOpponentWins:
		disputeStatus = models.DisputeStatusResolvedForOpponent
	case models.ResolutionCancelled:
		disputeStatus = models.DisputeStatusCancelled
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidResolution, resolution)
	}

	if resolution == models.ResolutionSubmitterWins {
		// Вердикт в пользу подавшего финализирует текущий payload, поэтому
		// он проверяется до закрытия спора: при отказе спор остаётся
		// активным, а заявка — disputed.
		existing, err := s.disputeRepo.GetByID(ctx, disputeID)
		if err != nil {
			if errors.Is(err, repositories.ErrDisputeNotFound) {
				return nil, nil, ErrDisputeNotFound
			}
			return nil, nil, fmt.Errorf("failed to get dispute %d: %w", disputeID, err)
		}
		verdict, err := s.verification.DryRunVerification(ctx, existing.SubmissionID)
		if err != nil {
			return nil, nil, err
		}
		if !verdict.IsValid {
			return nil, nil, &VerificationFailedError{Errors: verdict.Errors}
		}
	}

	dispute, err := s.CompleteDispute(ctx, disputeID, disputeStatus, &resolvedByUserID, notesPtr)
	if err != nil {
		return nil, nil, err
	}

	var submission *models.Submission
	switch resolution {
	case models.ResolutionSubmitterWins:
		submission, err = s.verification.FinalizeSubmissionAfterVerification(ctx, dispute.SubmissionID, &resolvedByUserID)
	case models.ResolutionOpponentWins:
		err = s.submissionRepo.MarkRejected(ctx, dispute.SubmissionID, notesPtr)
		if errors.Is(err, repositories.ErrSubmissionStateConflict) {
			err = fmt.Errorf("%w: submission %d", ErrInvalidSubmissionState, dispute.SubmissionID)
		}
		if err == nil {
			s.logStep(ctx, dispute.SubmissionID, "submission_rejected", "ok", &resolvedByUserID)
			submission, err = s.submissionRepo.GetByID(ctx, dispute.SubmissionID)
		}
	case models.ResolutionCancelled:
		submission, err = s.ReopenSubmission(ctx, dispute.SubmissionID)
	}
	if err != nil {
		return dispute, nil, err
	}

	s.publisher.Publish(ctx, events.DisputeResolved, map[string]interface{}{
		"dispute_id":        disputeID,
		"resolution":        string(resolution),
		"dispute_status":    string(dispute.Status),
		"submission_status": string(submission.Status),
	}, nil)

	return dispute, submission, nil
}

// CompleteDispute закрывает спор терминальным статусом. Нижний уровень для
// ResolveDispute и четырёх путей Review-оркестратора; события не публикует.
func (s *disputeService) CompleteDispute(ctx context.Context, disputeID int, status models.DisputeStatus, resolvedByUserID *int, notes *string) (*models.Dispute, error) {
	if !status.Resolved() {
		return nil, fmt.Errorf("%w: %q is not a terminal dispute status", ErrInvalidResolution, status)
	}

	err := s.disputeRepo.Complete(ctx, disputeID, status, resolvedByUserID, notes, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repositories.ErrDisputeNotFound) {
			return nil, ErrDisputeNotFound
		}
		if errors.Is(err, repositories.ErrDisputeStateConflict) {
			return nil, fmt.Errorf("%w: dispute %d is already resolved", ErrInvalidDisputeState, disputeID)
		}
		return nil, fmt.Errorf("failed to complete dispute %d: %w", disputeID, err)
	}

	dispute, err := s.disputeRepo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	s.logStep(ctx, dispute.SubmissionID, "dispute_"+string(status), "ok", resolvedByUserID)
	return dispute, nil
}

// ReopenSubmission возвращает оспоренную заявку в pending и перезапускает
// окно автоподтверждения: у соперника снова есть полный срок на ответ.
func (s *disputeService) ReopenSubmission(ctx context.Context, submissionID int) (*models.Submission, error) {
	deadline := time.Now().UTC().Add(s.autoConfirmWindow)
	if err := s.submissionRepo.ReopenPending(ctx, submissionID, deadline); err != nil {
		if errors.Is(err, repositories.ErrSubmissionNotFound) {
			return nil, ErrSubmissionNotFound
		}
		if errors.Is(err, repositories.ErrSubmissionStateConflict) {
			return nil, fmt.Errorf("%w: submission %d", ErrInvalidSubmissionState, submissionID)
		}
		return nil, fmt.Errorf("failed to reopen submission %d: %w", submissionID, err)
	}

	if err := s.jobs.Schedule(ctx, scheduler.TaskAutoConfirmSubmission, submissionKey(submissionID),
		models.JSONMap{"submission_id": submissionID}, deadline); err != nil {
		s.logger.Error("failed to schedule auto-confirm after reopen",
			slog.Int("submission_id", submissionID), slog.Any("error", err))
	}

	s.logStep(ctx, submissionID, "submission_reopened", "ok", nil)
	return s.submissionRepo.GetByID(ctx, submissionID)
}

func (s *disputeService) logStep(ctx context.Context, submissionID int, step, status string, userID *int) {
	if err := s.logRepo.LogStep(ctx, submissionID, step, status, userID); err != nil {
		s.logger.Warn("failed to log verification step",
			slog.Int("submission_id", submissionID), slog.String("step", step), slog.Any("error", err))
	}
}

func submissionKey(submissionID int) string {
	return fmt.Sprintf("submission:%d", submissionID)
}
