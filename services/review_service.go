package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rkRashik/deltacrown/events"
	"github.com/rkRashik/deltacrown/models"
	"github.com/rkRashik/deltacrown/repositories"
)

// bulkConcurrency ограничивает параллелизм батч-операций организатора.
const bulkConcurrency = 8

// Приоритеты инбокса: чем выше, тем раньше элемент в очереди.
const (
	priorityEscalated     = 100
	priorityOverdue       = 80
	priorityDisputed      = 60
	priorityAutoConfirmed = 40
	priorityConfirmed     = 30
	priorityPending       = 10
)

// ReviewService — оркестратор организатора поверх Submission/Dispute/Verification.
// Четыре пути ревью оспоренной заявки плюс инбокс и best-effort батчи.
type ReviewService interface {
	ListReviewItems(ctx context.Context, tournamentID *int) ([]*models.ReviewItem, error)
	ApproveOriginalResult(ctx context.Context, disputeID, organizerUserID int, notes string) (*models.Submission, error)
	ApproveDisputedResult(ctx context.Context, disputeID, organizerUserID int, notes string) (*models.Submission, error)
	ApplyCustomResult(ctx context.Context, disputeID, organizerUserID int, payload models.ResultPayload, notes string) (*models.Submission, error)
	DismissDispute(ctx context.Context, disputeID, organizerUserID int, notes string) (*models.Submission, error)
	BulkFinalizeSubmissions(ctx context.Context, submissionIDs []int, organizerUserID int) (*models.BatchResult, error)
	BulkRejectSubmissions(ctx context.Context, submissionIDs []int, organizerUserID int, notes string) (*models.BatchResult, error)
}

type reviewService struct {
	submissionRepo repositories.SubmissionRepository
	disputeRepo    repositories.DisputeRepository
	matchRepo      repositories.MatchRepository
	disputes       DisputeService
	verification   VerificationService
	publisher      events.Publisher
	logger         *slog.Logger
}

func NewReviewService(
	submissionRepo repositories.SubmissionRepository,
	disputeRepo repositories.DisputeRepository,
	matchRepo repositories.MatchRepository,
	disputes DisputeService,
	verification VerificationService,
	publisher events.Publisher,
	logger *slog.Logger,
) ReviewService {
	return &reviewService{
		submissionRepo: submissionRepo,
		disputeRepo:    disputeRepo,
		matchRepo:      matchRepo,
		disputes:       disputes,
		verification:   verification,
		publisher:      publisher,
		logger:         logger,
	}
}

// ListReviewItems собирает инбокс организатора: все нетерминальные заявки,
// отсортированные по убыванию приоритета, внутри приоритета — старые первыми.
func (s *reviewService) ListReviewItems(ctx context.Context, tournamentID *int) ([]*models.ReviewItem, error) {
	submissions, err := s.submissionRepo.ListActive(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active submissions: %w", err)
	}

	now := time.Now().UTC()
	items := make([]*models.ReviewItem, 0, len(submissions))
	for _, submission := range submissions {
		match, err := s.matchRepo.GetByID(ctx, submission.MatchID)
		if err != nil {
			return nil, fmt.Errorf("failed to get match %d: %w", submission.MatchID, err)
		}

		item := &models.ReviewItem{
			Submission:   submission,
			TournamentID: match.TournamentID,
		}

		if submission.Status == models.SubmissionStatusDisputed {
			dispute, err := s.disputeRepo.GetActiveBySubmission(ctx, submission.ID)
			if err != nil && !errors.Is(err, repositories.ErrDisputeNotFound) {
				return nil, fmt.Errorf("failed to get dispute for submission %d: %w", submission.ID, err)
			}
			item.Dispute = dispute
		}

		item.Overdue = submission.Status == models.SubmissionStatusPending &&
			now.After(submission.AutoConfirmDeadline)
		item.Priority = reviewPriority(submission, item.Dispute, item.Overdue)
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].Submission.SubmittedAt.Before(items[j].Submission.SubmittedAt)
	})
	return items, nil
}

func reviewPriority(submission *models.Submission, dispute *models.Dispute, overdue bool) int {
	if dispute != nil && dispute.Status == models.DisputeStatusEscalated {
		return priorityEscalated
	}
	switch submission.Status {
	case models.SubmissionStatusDisputed:
		return priorityDisputed
	case models.SubmissionStatusAutoConfirmed:
		return priorityAutoConfirmed
	case models.SubmissionStatusConfirmed:
		return priorityConfirmed
	case models.SubmissionStatusPending:
		if overdue {
			return priorityOverdue
		}
		return priorityPending
	}
	return 0
}

// ApproveOriginalResult — путь №1: исходная заявка верна, спор закрывается
// в пользу подавшего, заявка финализируется как есть.
func (s *reviewService) ApproveOriginalResult(ctx context.Context, disputeID, organizerUserID int, notes string) (*models.Submission, error) {
	dispute, err := s.getActiveDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	// Исходный payload проверяется до закрытия спора: при отказе спор
	// остаётся активным и организатор может выбрать другой путь.
	verdict, err := s.verification.DryRunVerification(ctx, dispute.SubmissionID)
	if err != nil {
		return nil, err
	}
	if !verdict.IsValid {
		return nil, &VerificationFailedError{Errors: verdict.Errors}
	}

	completed, err := s.disputes.CompleteDispute(ctx, disputeID, models.DisputeStatusResolvedForSubmitter, &organizerUserID, notesPtr(notes))
	if err != nil {
		return nil, err
	}

	submission, err := s.verification.FinalizeSubmissionAfterVerification(ctx, dispute.SubmissionID, &organizerUserID)
	if err != nil {
		return nil, err
	}

	s.publishResolved(ctx, completed, submission)
	return submission, nil
}

// ApproveDisputedResult — путь №2: версия оспорившей стороны верна.
// Её payload замещает исходный и финализируется.
func (s *reviewService) ApproveDisputedResult(ctx context.Context, disputeID, organizerUserID int, notes string) (*models.Submission, error) {
	dispute, err := s.getActiveDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if len(dispute.DisputedPayload) == 0 {
		return nil, fmt.Errorf("%w: dispute %d", ErrMissingDisputedPayload, disputeID)
	}

	return s.replaceAndFinalize(ctx, dispute, dispute.DisputedPayload,
		models.DisputeStatusResolvedForOpponent, organizerUserID, notes)
}

// ApplyCustomResult — путь №3: обе версии неверны, организатор вводит
// собственный авторитетный результат.
func (s *reviewService) ApplyCustomResult(ctx context.Context, disputeID, organizerUserID int, payload models.ResultPayload, notes string) (*models.Submission, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyCustomPayload
	}
	dispute, err := s.getActiveDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	return s.replaceAndFinalize(ctx, dispute, payload,
		models.DisputeStatusResolvedCustom, organizerUserID, notes)
}

// DismissDispute — путь №4: спор необоснован. Заявка возвращается в pending,
// окно автоподтверждения перезапускается; соперник может оспорить снова.
func (s *reviewService) DismissDispute(ctx context.Context, disputeID, organizerUserID int, notes string) (*models.Submission, error) {
	dispute, err := s.disputes.CompleteDispute(ctx, disputeID, models.DisputeStatusDismissed, &organizerUserID, notesPtr(notes))
	if err != nil {
		return nil, err
	}

	submission, err := s.disputes.ReopenSubmission(ctx, dispute.SubmissionID)
	if err != nil {
		return nil, err
	}

	s.publishResolved(ctx, dispute, submission)
	return submission, nil
}

// replaceAndFinalize — общая хвостовая часть путей №2 и №3: подменить payload,
// закрыть спор, прогнать финализацию, опубликовать событие.
func (s *reviewService) replaceAndFinalize(ctx context.Context, dispute *models.Dispute, payload models.ResultPayload, status models.DisputeStatus, organizerUserID int, notes string) (*models.Submission, error) {
	if err := s.submissionRepo.UpdatePayload(ctx, dispute.SubmissionID, payload); err != nil {
		if errors.Is(err, repositories.ErrSubmissionNotFound) {
			return nil, ErrSubmissionNotFound
		}
		if errors.Is(err, repositories.ErrSubmissionStateConflict) {
			return nil, fmt.Errorf("%w: submission %d", ErrInvalidSubmissionState, dispute.SubmissionID)
		}
		return nil, fmt.Errorf("failed to replace payload of submission %d: %w", dispute.SubmissionID, err)
	}

	// Новый payload проверяется до закрытия спора: при отказе спор остаётся
	// активным и организатор может ввести исправленный результат.
	verdict, err := s.verification.DryRunVerification(ctx, dispute.SubmissionID)
	if err != nil {
		return nil, err
	}
	if !verdict.IsValid {
		return nil, &VerificationFailedError{Errors: verdict.Errors}
	}

	completed, err := s.disputes.CompleteDispute(ctx, dispute.ID, status, &organizerUserID, notesPtr(notes))
	if err != nil {
		return nil, err
	}

	submission, err := s.verification.FinalizeSubmissionAfterVerification(ctx, dispute.SubmissionID, &organizerUserID)
	if err != nil {
		return nil, err
	}

	s.publishResolved(ctx, completed, submission)
	return submission, nil
}

// BulkFinalizeSubmissions финализирует пачку подтверждённых заявок.
// Best-effort: отказ одного id не откатывает остальные.
func (s *reviewService) BulkFinalizeSubmissions(ctx context.Context, submissionIDs []int, organizerUserID int) (*models.BatchResult, error) {
	return s.runBulk(ctx, submissionIDs, func(ctx context.Context, id int) (*models.Submission, error) {
		return s.verification.FinalizeSubmissionAfterVerification(ctx, id, &organizerUserID)
	})
}

// BulkRejectSubmissions отклоняет пачку заявок с общей заметкой организатора.
func (s *reviewService) BulkRejectSubmissions(ctx context.Context, submissionIDs []int, organizerUserID int, notes string) (*models.BatchResult, error) {
	return s.runBulk(ctx, submissionIDs, func(ctx context.Context, id int) (*models.Submission, error) {
		if err := s.submissionRepo.MarkRejected(ctx, id, notesPtr(notes)); err != nil {
			if errors.Is(err, repositories.ErrSubmissionNotFound) {
				return nil, ErrSubmissionNotFound
			}
			if errors.Is(err, repositories.ErrSubmissionStateConflict) {
				return nil, fmt.Errorf("%w: submission %d", ErrInvalidSubmissionState, id)
			}
			return nil, err
		}
		return s.submissionRepo.GetByID(ctx, id)
	})
}

func (s *reviewService) runBulk(ctx context.Context, submissionIDs []int, op func(ctx context.Context, id int) (*models.Submission, error)) (*models.BatchResult, error) {
	result := &models.BatchResult{
		Processed: len(submissionIDs),
		Updated:   make([]*models.Submission, 0, len(submissionIDs)),
		Failed:    make([]models.BatchItemFailure, 0),
	}

	var mu sync.Mutex
	var group errgroup.Group
	group.SetLimit(bulkConcurrency)

	for _, id := range submissionIDs {
		id := id
		group.Go(func() error {
			submission, err := op(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, models.BatchItemFailure{
					SubmissionID: id,
					Error:        err.Error(),
				})
				return nil // отказ элемента не прерывает батч
			}
			result.Updated = append(result.Updated, submission)
			return nil
		})
	}
	_ = group.Wait()

	// Детерминированный порядок для ответа API.
	sort.Slice(result.Updated, func(i, j int) bool { return result.Updated[i].ID < result.Updated[j].ID })
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].SubmissionID < result.Failed[j].SubmissionID })
	return result, nil
}

func (s *reviewService) getActiveDispute(ctx context.Context, disputeID int) (*models.Dispute, error) {
	dispute, err := s.disputes.GetDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status.Resolved() {
		return nil, fmt.Errorf("%w: dispute %d is already %s", ErrInvalidDisputeState, disputeID, dispute.Status)
	}
	return dispute, nil
}

func (s *reviewService) publishResolved(ctx context.Context, dispute *models.Dispute, submission *models.Submission) {
	s.publisher.Publish(ctx, events.DisputeResolved, map[string]interface{}{
		"dispute_id":        dispute.ID,
		"resolution":        string(dispute.Status),
		"dispute_status":    string(dispute.Status),
		"submission_status": string(submission.Status),
	}, nil)
}

func notesPtr(notes string) *string {
	if notes == "" {
		return nil
	}
	return &notes
}
