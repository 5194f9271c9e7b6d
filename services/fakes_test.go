package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rkRashik/deltacrown/models"
	"github.com/rkRashik/deltacrown/repositories"
	"github.com/rkRashik/deltacrown/validation"
)

// In-memory фейки репозиториев. Повторяют guarded-семантику Postgres-слоя:
// переход из неподходящего статуса — StateConflict, отсутствующая строка —
// NotFound. Все фейки потокобезопасны: свип и батчи бьют их из горутин.

type fakeSubmissionRepo struct {
	mu     sync.Mutex
	nextID int
	items  map[int]*models.Submission
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{nextID: 1, items: make(map[int]*models.Submission)}
}

func (r *fakeSubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.MatchID == submission.MatchID && !existing.Status.Terminal() {
			return repositories.ErrSubmissionActiveConflict
		}
	}
	submission.ID = r.nextID
	r.nextID++
	stored := *submission
	r.items[submission.ID] = &stored
	return nil
}

func (r *fakeSubmissionRepo) GetByID(ctx context.Context, id int) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[id]
	if !ok {
		return nil, repositories.ErrSubmissionNotFound
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeSubmissionRepo) GetActiveByMatch(ctx context.Context, matchID int) (*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.items {
		if stored.MatchID == matchID && !stored.Status.Terminal() {
			copied := *stored
			return &copied, nil
		}
	}
	return nil, repositories.ErrSubmissionNotFound
}

func (r *fakeSubmissionRepo) ListActive(ctx context.Context, tournamentID *int) ([]*models.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Submission, 0)
	for _, stored := range r.items {
		if !stored.Status.Terminal() {
			copied := *stored
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSubmissionRepo) transition(id int, allowed func(models.SubmissionStatus) bool, apply func(*models.Submission)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[id]
	if !ok {
		return repositories.ErrSubmissionNotFound
	}
	if !allowed(stored.Status) {
		return repositories.ErrSubmissionStateConflict
	}
	apply(stored)
	return nil
}

func (r *fakeSubmissionRepo) MarkConfirmed(ctx context.Context, id int, confirmedByUserID int, at time.Time) error {
	return r.transition(id,
		func(s models.SubmissionStatus) bool { return s == models.SubmissionStatusPending },
		func(s *models.Submission) {
			s.Status = models.SubmissionStatusConfirmed
			s.ConfirmedByUserID = &confirmedByUserID
			s.ConfirmedAt = &at
		})
}

func (r *fakeSubmissionRepo) MarkAutoConfirmed(ctx context.Context, id int, at time.Time) error {
	return r.transition(id,
		func(s models.SubmissionStatus) bool { return s == models.SubmissionStatusPending },
		func(s *models.Submission) {
			s.Status = models.SubmissionStatusAutoConfirmed
			s.AutoConfirmed = true
			s.ConfirmedAt = &at
		})
}

func (r *fakeSubmissionRepo) MarkDisputed(ctx context.Context, id int) error {
	return r.transition(id,
		func(s models.SubmissionStatus) bool { return s == models.SubmissionStatusPending },
		func(s *models.Submission) { s.Status = models.SubmissionStatusDisputed })
}

func (r *fakeSubmissionRepo) MarkFinalized(ctx context.Context, id int, at time.Time) error {
	return r.transition(id,
		func(s models.SubmissionStatus) bool { return !s.Terminal() },
		func(s *models.Submission) {
			s.Status = models.SubmissionStatusFinalized
			s.FinalizedAt = &at
		})
}

func (r *fakeSubmissionRepo) MarkRejected(ctx context.Context, id int, organizerNotes *string) error {
	return r.transition(id,
		func(s models.SubmissionStatus) bool { return !s.Terminal() },
		func(s *models.Submission) {
			s.Status = models.SubmissionStatusRejected
			if organizerNotes != nil {
				s.OrganizerNotes = organizerNotes
			}
		})
}

func (r *fakeSubmissionRepo) ReopenPending(ctx context.Context, id int, deadline time.Time) error {
	return r.transition(id,
		func(s models.SubmissionStatus) bool { return s == models.SubmissionStatusDisputed },
		func(s *models.Submission) {
			s.Status = models.SubmissionStatusPending
			s.AutoConfirmDeadline = deadline
		})
}

func (r *fakeSubmissionRepo) UpdatePayload(ctx context.Context, id int, payload models.ResultPayload) error {
	return r.transition(id,
		func(s models.SubmissionStatus) bool { return !s.Terminal() },
		func(s *models.Submission) { s.Payload = payload })
}

type fakeDisputeRepo struct {
	mu     sync.Mutex
	nextID int
	items  map[int]*models.Dispute
}

func newFakeDisputeRepo() *fakeDisputeRepo {
	return &fakeDisputeRepo{nextID: 1, items: make(map[int]*models.Dispute)}
}

func (r *fakeDisputeRepo) Create(ctx context.Context, dispute *models.Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.SubmissionID == dispute.SubmissionID && !existing.Status.Resolved() {
			return repositories.ErrDisputeActiveConflict
		}
	}
	dispute.ID = r.nextID
	r.nextID++
	stored := *dispute
	r.items[dispute.ID] = &stored
	return nil
}

func (r *fakeDisputeRepo) GetByID(ctx context.Context, id int) (*models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[id]
	if !ok {
		return nil, repositories.ErrDisputeNotFound
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeDisputeRepo) GetActiveBySubmission(ctx context.Context, submissionID int) (*models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.items {
		if stored.SubmissionID == submissionID && !stored.Status.Resolved() {
			copied := *stored
			return &copied, nil
		}
	}
	return nil, repositories.ErrDisputeNotFound
}

func (r *fakeDisputeRepo) GetLatestBySubmission(ctx context.Context, submissionID int) (*models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Dispute
	for _, stored := range r.items {
		if stored.SubmissionID != submissionID {
			continue
		}
		if latest == nil || stored.ID > latest.ID {
			latest = stored
		}
	}
	if latest == nil {
		return nil, repositories.ErrDisputeNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeDisputeRepo) ListOverdue(ctx context.Context, openedBefore time.Time) ([]*models.Dispute, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Dispute, 0)
	for _, stored := range r.items {
		active := stored.Status == models.DisputeStatusOpen || stored.Status == models.DisputeStatusUnderReview
		if active && stored.OpenedAt.Before(openedBefore) {
			copied := *stored
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeDisputeRepo) transition(id int, allowed func(models.DisputeStatus) bool, apply func(*models.Dispute)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[id]
	if !ok {
		return repositories.ErrDisputeNotFound
	}
	if !allowed(stored.Status) {
		return repositories.ErrDisputeStateConflict
	}
	apply(stored)
	return nil
}

func (r *fakeDisputeRepo) MarkUnderReview(ctx context.Context, id int) error {
	return r.transition(id,
		func(s models.DisputeStatus) bool { return s == models.DisputeStatusOpen },
		func(d *models.Dispute) { d.Status = models.DisputeStatusUnderReview })
}

func (r *fakeDisputeRepo) MarkEscalated(ctx context.Context, id int, at time.Time) error {
	return r.transition(id,
		func(s models.DisputeStatus) bool {
			return s == models.DisputeStatusOpen || s == models.DisputeStatusUnderReview
		},
		func(d *models.Dispute) {
			d.Status = models.DisputeStatusEscalated
			d.EscalatedAt = &at
		})
}

func (r *fakeDisputeRepo) Complete(ctx context.Context, id int, status models.DisputeStatus, resolvedByUserID *int, notes *string, at time.Time) error {
	return r.transition(id,
		func(s models.DisputeStatus) bool { return !s.Resolved() },
		func(d *models.Dispute) {
			d.Status = status
			d.ResolvedByUserID = resolvedByUserID
			d.ResolutionNotes = notes
			d.ResolvedAt = &at
		})
}

type fakeEvidenceRepo struct {
	mu     sync.Mutex
	nextID int
	items  []*models.DisputeEvidence
}

func newFakeEvidenceRepo() *fakeEvidenceRepo {
	return &fakeEvidenceRepo{nextID: 1}
}

func (r *fakeEvidenceRepo) Create(ctx context.Context, evidence *models.DisputeEvidence) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	evidence.ID = r.nextID
	r.nextID++
	stored := *evidence
	r.items = append(r.items, &stored)
	return nil
}

func (r *fakeEvidenceRepo) ListByDispute(ctx context.Context, disputeID int) ([]*models.DisputeEvidence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.DisputeEvidence, 0)
	for _, stored := range r.items {
		if stored.DisputeID == disputeID {
			copied := *stored
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeMatchRepo struct {
	mu    sync.Mutex
	items map[int]*models.Match
}

func newFakeMatchRepo() *fakeMatchRepo {
	return &fakeMatchRepo{items: make(map[int]*models.Match)}
}

func (r *fakeMatchRepo) add(match models.Match) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := match
	r.items[match.ID] = &stored
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	copied := *stored
	return &copied, nil
}

func (r *fakeMatchRepo) RecordResult(ctx context.Context, id int, score *string, winnerSideID *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.items[id]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	if stored.State == models.MatchStateCompleted {
		return repositories.ErrMatchAlreadyClosed
	}
	stored.State = models.MatchStateCompleted
	stored.Score = score
	stored.WinnerSideID = winnerSideID
	return nil
}

type fakeGameRepo struct {
	games map[string]*models.Game
}

func (r *fakeGameRepo) GetBySlug(ctx context.Context, slug string) (*models.Game, error) {
	game, ok := r.games[slug]
	if !ok {
		return nil, repositories.ErrGameNotFound
	}
	copied := *game
	return &copied, nil
}

type loggedStep struct {
	SubmissionID int
	Step         string
	Status       string
}

type fakeLogRepo struct {
	mu    sync.Mutex
	steps []loggedStep
}

func (r *fakeLogRepo) LogStep(ctx context.Context, submissionID int, step, status string, performedByUserID *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, loggedStep{SubmissionID: submissionID, Step: step, Status: status})
	return nil
}

func (r *fakeLogRepo) ListBySubmission(ctx context.Context, submissionID int) ([]*models.VerificationStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.VerificationStep, 0)
	for _, step := range r.steps {
		if step.SubmissionID == submissionID {
			out = append(out, &models.VerificationStep{
				SubmissionID: step.SubmissionID,
				Step:         step.Step,
				Status:       step.Status,
			})
		}
	}
	return out, nil
}

func (r *fakeLogRepo) hasStep(submissionID int, step string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.steps {
		if s.SubmissionID == submissionID && s.Step == step {
			return true
		}
	}
	return false
}

type publishedEvent struct {
	Name     string
	Payload  map[string]interface{}
	Metadata map[string]string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, name string, payload map[string]interface{}, metadata map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Name: name, Payload: payload, Metadata: metadata})
}

func (p *recordingPublisher) byName(name string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, 0)
	for _, e := range p.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type scheduledJob struct {
	Task  string
	Key   string
	Args  models.JSONMap
	RunAt time.Time
}

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []scheduledJob
	cancelled []string
}

func (s *fakeScheduler) Schedule(ctx context.Context, task string, key string, args models.JSONMap, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, scheduledJob{Task: task, Key: key, Args: args, RunAt: runAt})
	return nil
}

func (s *fakeScheduler) CancelPending(ctx context.Context, task string, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, task+"/"+key)
	return nil
}

func (s *fakeScheduler) scheduledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scheduled)
}

// testEnv собирает весь сервисный граф поверх фейков, с реальным валидатором
// схем и настоящей связкой споры → верификация → подача.
type testEnv struct {
	submissions *fakeSubmissionRepo
	disputes    *fakeDisputeRepo
	evidence    *fakeEvidenceRepo
	matches     *fakeMatchRepo
	logs        *fakeLogRepo
	publisher   *recordingPublisher
	jobs        *fakeScheduler

	verificationSvc VerificationService
	disputeSvc      DisputeService
	submissionSvc   SubmissionService
	reviewSvc       ReviewService
}

const (
	testAutoConfirmWindow = 24 * time.Hour
	testEscalationSLA     = 48 * time.Hour
)

func newTestEnv() *testEnv {
	env := &testEnv{
		submissions: newFakeSubmissionRepo(),
		disputes:    newFakeDisputeRepo(),
		evidence:    newFakeEvidenceRepo(),
		matches:     newFakeMatchRepo(),
		logs:        &fakeLogRepo{},
		publisher:   &recordingPublisher{},
		jobs:        &fakeScheduler{},
	}

	games := &fakeGameRepo{games: map[string]*models.Game{
		"valorant": {
			ID:   1,
			Slug: "valorant",
			Name: "Valorant",
			ResultSchema: models.ResultSchema{
				Version: 1,
				Fields: []models.SchemaField{
					{Name: "winner_team_id", Type: models.SchemaFieldInt, Required: true},
					{Name: "loser_team_id", Type: models.SchemaFieldInt, Required: true},
					{Name: "score", Type: models.SchemaFieldString, Required: true},
				},
			},
		},
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validator := validation.NewSchemaValidator(games)

	env.verificationSvc = NewVerificationService(
		env.submissions, env.disputes, env.matches, env.logs, validator, env.publisher, logger)
	env.disputeSvc = NewDisputeService(
		env.disputes, env.evidence, env.submissions, env.logs,
		env.verificationSvc, env.publisher, env.jobs,
		testAutoConfirmWindow, testEscalationSLA, logger)
	env.submissionSvc = NewSubmissionService(
		env.submissions, env.matches, env.disputes, validator, env.disputeSvc,
		env.logs, env.publisher, env.jobs, testAutoConfirmWindow, logger)
	env.reviewSvc = NewReviewService(
		env.submissions, env.disputes, env.matches, env.disputeSvc,
		env.verificationSvc, env.publisher, logger)
	return env
}

// addMatch регистрирует матч 10 vs 20 в турнире 7, принимающий результаты.
func (env *testEnv) addMatch(id int) {
	env.matches.add(models.Match{
		ID:           id,
		TournamentID: 7,
		SideAID:      10,
		SideBID:      20,
		State:        models.MatchStateInProgress,
		GameSlug:     "valorant",
	})
}

func validPayload() models.ResultPayload {
	return models.ResultPayload{
		"winner_team_id": 10,
		"loser_team_id":  20,
		"score":          "13-7",
	}
}

// submit создаёт pending-заявку от стороны 10 (пользователь 100).
func (env *testEnv) submit(matchID int) (*models.Submission, error) {
	return env.submissionSvc.SubmitResult(context.Background(), SubmitResultInput{
		MatchID:         matchID,
		SubmitterUserID: 100,
		SubmitterSideID: 10,
		Payload:         validPayload(),
	})
}
