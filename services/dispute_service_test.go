package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rkRashik/deltacrown/events"
	"github.com/rkRashik/deltacrown/models"
)

// openDispute прогоняет полный путь: подача → оспаривание соперником.
func openDispute(t *testing.T, env *testEnv) (*models.Submission, *models.Dispute) {
	t.Helper()
	env.addMatch(1)
	submission, err := env.submit(1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	updated, err := env.submissionSvc.OpponentResponse(context.Background(), OpponentResponseInput{
		SubmissionID:     submission.ID,
		RespondingUserID: 200,
		RespondingSideID: 20,
		Decision:         DecisionDispute,
		ReasonCode:       models.DisputeReasonWrongWinner,
		DisputedPayload: models.ResultPayload{
			"winner_team_id": 20,
			"loser_team_id":  10,
			"score":          "13-10",
		},
	})
	if err != nil {
		t.Fatalf("OpponentResponse: %v", err)
	}
	if updated.Dispute == nil {
		t.Fatal("no dispute attached")
	}
	return updated, updated.Dispute
}

func TestOpenDisputeRequiresPendingSubmission(t *testing.T) {
	env := newTestEnv()
	env.addMatch(1)
	submission, err := env.submit(1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.submissionSvc.ConfirmResult(context.Background(), submission.ID, 200); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	_, err = env.disputeSvc.OpenDisputeFromSubmission(context.Background(), OpenDisputeInput{
		SubmissionID:   submission.ID,
		OpenedByUserID: 200,
		OpenedBySideID: 20,
		Reason:         models.DisputeReasonOther,
	})
	if !errors.Is(err, ErrInvalidSubmissionState) {
		t.Errorf("error = %v, want ErrInvalidSubmissionState", err)
	}
}

func TestOpenDisputeDuplicateGuard(t *testing.T) {
	env := newTestEnv()
	_, dispute := openDispute(t, env)

	_, err := env.disputeSvc.OpenDisputeFromSubmission(context.Background(), OpenDisputeInput{
		SubmissionID:   dispute.SubmissionID,
		OpenedByUserID: 200,
		OpenedBySideID: 20,
		Reason:         models.DisputeReasonOther,
	})
	// Заявка уже disputed, поэтому срабатывает проверка pending раньше
	// проверки дубликата.
	if !errors.Is(err, ErrInvalidSubmissionState) && !errors.Is(err, ErrDuplicateDispute) {
		t.Errorf("error = %v, want state conflict or duplicate", err)
	}
}

func TestOpenDisputeUnknownReason(t *testing.T) {
	env := newTestEnv()
	env.addMatch(1)
	submission, err := env.submit(1)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = env.disputeSvc.OpenDisputeFromSubmission(context.Background(), OpenDisputeInput{
		SubmissionID:   submission.ID,
		OpenedByUserID: 200,
		OpenedBySideID: 20,
		Reason:         "vibes",
	})
	if !errors.Is(err, ErrInvalidDisputeReason) {
		t.Errorf("error = %v, want ErrInvalidDisputeReason", err)
	}
}

func TestResolveDisputeTable(t *testing.T) {
	tests := []struct {
		resolution           models.DisputeResolution
		wantDisputeStatus    models.DisputeStatus
		wantSubmissionStatus models.SubmissionStatus
	}{
		{models.ResolutionSubmitterWins, models.DisputeStatusResolvedForSubmitter, models.SubmissionStatusFinalized},
		{models.ResolutionOpponentWins, models.DisputeStatusResolvedForOpponent, models.SubmissionStatusRejected},
		{models.ResolutionCancelled, models.DisputeStatusCancelled, models.SubmissionStatusPending},
	}

	for _, tt := range tests {
		t.Run(string(tt.resolution), func(t *testing.T) {
			env := newTestEnv()
			_, opened := openDispute(t, env)

			dispute, submission, err := env.disputeSvc.ResolveDispute(
				context.Background(), opened.ID, 500, tt.resolution, "reviewed")
			if err != nil {
				t.Fatalf("ResolveDispute: %v", err)
			}
			if dispute.Status != tt.wantDisputeStatus {
				t.Errorf("dispute status = %s, want %s", dispute.Status, tt.wantDisputeStatus)
			}
			if submission.Status != tt.wantSubmissionStatus {
				t.Errorf("submission status = %s, want %s", submission.Status, tt.wantSubmissionStatus)
			}
			if got := env.publisher.byName(events.DisputeResolved); len(got) != 1 {
				t.Errorf("resolved events = %d, want 1", len(got))
			}
		})
	}
}

func TestResolveDisputeSubmitterWinsKeepsDisputeActiveOnBadPayload(t *testing.T) {
	env := newTestEnv()
	env.addMatch(1)

	// Победитель 999 проходит схемную валидацию при подаче, но не является
	// участником матча, поэтому финализация такого payload невозможна.
	submission, err := env.submissionSvc.SubmitResult(context.Background(), SubmitResultInput{
		MatchID:         1,
		SubmitterUserID: 100,
		SubmitterSideID: 10,
		Payload: models.ResultPayload{
			"winner_team_id": 999,
			"loser_team_id":  10,
			"score":          "13-7",
		},
	})
	if err != nil {
		t.Fatalf("SubmitResult: %v", err)
	}

	updated, err := env.submissionSvc.OpponentResponse(context.Background(), OpponentResponseInput{
		SubmissionID:     submission.ID,
		RespondingUserID: 200,
		RespondingSideID: 20,
		Decision:         DecisionDispute,
		ReasonCode:       models.DisputeReasonWrongWinner,
	})
	if err != nil {
		t.Fatalf("OpponentResponse: %v", err)
	}

	_, _, err = env.disputeSvc.ResolveDispute(
		context.Background(), updated.Dispute.ID, 500, models.ResolutionSubmitterWins, "")
	var verificationErr *VerificationFailedError
	if !errors.As(err, &verificationErr) {
		t.Fatalf("error = %v, want VerificationFailedError", err)
	}

	// Спор остаётся активным, заявка — disputed: совместное состояние цело.
	dispute, getErr := env.disputeSvc.GetDispute(context.Background(), updated.Dispute.ID)
	if getErr != nil {
		t.Fatalf("GetDispute: %v", getErr)
	}
	if dispute.Status.Resolved() {
		t.Errorf("dispute status = %s, want still active", dispute.Status)
	}
	current, getErr := env.submissionSvc.GetSubmission(context.Background(), submission.ID)
	if getErr != nil {
		t.Fatalf("GetSubmission: %v", getErr)
	}
	if current.Status != models.SubmissionStatusDisputed {
		t.Errorf("submission status = %s, want disputed", current.Status)
	}
	if len(env.publisher.byName(events.DisputeResolved)) != 0 {
		t.Error("resolved event published despite failed verification")
	}
}

func TestResolveDisputeUnknownResolution(t *testing.T) {
	env := newTestEnv()
	_, dispute := openDispute(t, env)

	_, _, err := env.disputeSvc.ResolveDispute(context.Background(), dispute.ID, 500, "coin_flip", "")
	if !errors.Is(err, ErrInvalidResolution) {
		t.Errorf("error = %v, want ErrInvalidResolution", err)
	}

	// Спор не должен был закрыться.
	current, err := env.disputeSvc.GetDispute(context.Background(), dispute.ID)
	if err != nil {
		t.Fatalf("GetDispute: %v", err)
	}
	if current.Status.Resolved() {
		t.Errorf("dispute was closed by an unknown resolution: %s", current.Status)
	}
}

func TestResolveDisputeCancelledRestartsWindow(t *testing.T) {
	env := newTestEnv()
	_, dispute := openDispute(t, env)

	before := time.Now().UTC()
	_, submission, err := env.disputeSvc.ResolveDispute(
		context.Background(), dispute.ID, 500, models.ResolutionCancelled, "")
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}

	if submission.Status != models.SubmissionStatusPending {
		t.Fatalf("submission status = %s, want pending", submission.Status)
	}
	if !submission.AutoConfirmDeadline.After(before) {
		t.Error("auto-confirm deadline was not restarted")
	}
	// Переоткрытие планирует новую задачу автоподтверждения (первая была
	// при подаче).
	if env.jobs.scheduledCount() != 2 {
		t.Errorf("scheduled jobs = %d, want 2", env.jobs.scheduledCount())
	}
}

func TestEscalateDispute(t *testing.T) {
	env := newTestEnv()
	_, dispute := openDispute(t, env)

	userID := 500
	escalated, err := env.disputeSvc.EscalateDispute(context.Background(), dispute.ID, &userID)
	if err != nil {
		t.Fatalf("EscalateDispute: %v", err)
	}
	if escalated.Status != models.DisputeStatusEscalated {
		t.Errorf("status = %s, want escalated", escalated.Status)
	}
	if escalated.EscalatedAt == nil {
		t.Error("escalated_at not set")
	}
	if got := env.publisher.byName(events.DisputeEscalated); len(got) != 1 {
		t.Errorf("escalated events = %d, want 1", len(got))
	}

	// Повторная эскалация — конфликт.
	if _, err := env.disputeSvc.EscalateDispute(context.Background(), dispute.ID, &userID); !errors.Is(err, ErrInvalidDisputeState) {
		t.Errorf("double escalate error = %v, want ErrInvalidDisputeState", err)
	}
}

func TestEscalateOverdueDisputesSweep(t *testing.T) {
	env := newTestEnv()
	_, dispute := openDispute(t, env)

	// Спор свежий — свип его не трогает.
	count, err := env.disputeSvc.EscalateOverdueDisputes(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 0 {
		t.Fatalf("escalated = %d, want 0 for fresh dispute", count)
	}

	// Состариваем спор за пределы SLA.
	env.disputes.mu.Lock()
	env.disputes.items[dispute.ID].OpenedAt = time.Now().UTC().Add(-testEscalationSLA - time.Hour)
	env.disputes.mu.Unlock()

	count, err = env.disputeSvc.EscalateOverdueDisputes(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("escalated = %d, want 1", count)
	}

	current, err := env.disputeSvc.GetDispute(context.Background(), dispute.ID)
	if err != nil {
		t.Fatalf("GetDispute: %v", err)
	}
	if current.Status != models.DisputeStatusEscalated {
		t.Errorf("status = %s, want escalated", current.Status)
	}

	// Повторный свип идемпотентен.
	count, err = env.disputeSvc.EscalateOverdueDisputes(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if count != 0 {
		t.Errorf("second sweep escalated = %d, want 0", count)
	}
}

func TestAddEvidence(t *testing.T) {
	env := newTestEnv()
	_, dispute := openDispute(t, env)

	evidence, err := env.disputeSvc.AddEvidence(context.Background(), dispute.ID, 200,
		models.EvidenceTypeScreenshot, "https://cdn.example.com/shot.png", nil)
	if err != nil {
		t.Fatalf("AddEvidence: %v", err)
	}
	if evidence.ID == 0 {
		t.Error("evidence id not assigned")
	}

	if _, err := env.disputeSvc.AddEvidence(context.Background(), dispute.ID, 200, "hologram", "https://x", nil); !errors.Is(err, ErrInvalidEvidenceType) {
		t.Errorf("invalid type error = %v, want ErrInvalidEvidenceType", err)
	}

	loaded, err := env.disputeSvc.GetDispute(context.Background(), dispute.ID)
	if err != nil {
		t.Fatalf("GetDispute: %v", err)
	}
	if len(loaded.Evidence) != 1 {
		t.Errorf("evidence count = %d, want 1", len(loaded.Evidence))
	}
}

func TestMarkUnderReviewIdempotentForOrganizer(t *testing.T) {
	env := newTestEnv()
	_, dispute := openDispute(t, env)

	reviewed, err := env.disputeSvc.MarkUnderReview(context.Background(), dispute.ID)
	if err != nil {
		t.Fatalf("MarkUnderReview: %v", err)
	}
	if reviewed.Status != models.DisputeStatusUnderReview {
		t.Errorf("status = %s, want under_review", reviewed.Status)
	}

	// Повторный вызов не ошибка: статус уже выставлен.
	again, err := env.disputeSvc.MarkUnderReview(context.Background(), dispute.ID)
	if err != nil {
		t.Fatalf("second MarkUnderReview: %v", err)
	}
	if again.Status != models.DisputeStatusUnderReview {
		t.Errorf("status after repeat = %s, want under_review", again.Status)
	}
}
