package live

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rkRashik/deltacrown/events"
	"github.com/rkRashik/deltacrown/repositories"
)

// Forwarder подписывается на события движка верификации и транслирует их
// в комнату турнира-владельца. Комната определяется по match_id или
// submission_id из payload события.
type Forwarder struct {
	hub            *Hub
	matchRepo      repositories.MatchRepository
	submissionRepo repositories.SubmissionRepository
	disputeRepo    repositories.DisputeRepository
	logger         *slog.Logger
}

func NewForwarder(
	hub *Hub,
	matchRepo repositories.MatchRepository,
	submissionRepo repositories.SubmissionRepository,
	disputeRepo repositories.DisputeRepository,
	logger *slog.Logger,
) *Forwarder {
	return &Forwarder{
		hub:            hub,
		matchRepo:      matchRepo,
		submissionRepo: submissionRepo,
		disputeRepo:    disputeRepo,
		logger:         logger,
	}
}

// Attach регистрирует форвардер на всех событиях движка.
func (f *Forwarder) Attach(bus *events.Bus) {
	for _, name := range []string{
		events.MatchResultSubmitted,
		events.MatchResultConfirmed,
		events.MatchResultAutoConfirmed,
		events.MatchResultFinalized,
		events.DisputeEscalated,
		events.DisputeResolved,
	} {
		bus.Subscribe(name, f.forward)
	}
}

func (f *Forwarder) forward(ctx context.Context, event events.Event) {
	tournamentID, err := f.resolveTournament(ctx, event)
	if err != nil {
		f.logger.Warn("live: cannot resolve tournament for event",
			slog.String("event", event.Name), slog.Any("error", err))
		return
	}

	f.hub.BroadcastToRoom(RoomForTournament(tournamentID), Message{
		Type:    event.Name,
		Payload: event.Payload,
	})
}

func (f *Forwarder) resolveTournament(ctx context.Context, event events.Event) (int, error) {
	if matchID, ok := intPayload(event.Payload, "match_id"); ok {
		match, err := f.matchRepo.GetByID(ctx, matchID)
		if err != nil {
			return 0, err
		}
		return match.TournamentID, nil
	}

	submissionID, ok := intPayload(event.Payload, "submission_id")
	if !ok {
		if disputeID, okDispute := intPayload(event.Payload, "dispute_id"); okDispute {
			dispute, err := f.disputeRepo.GetByID(ctx, disputeID)
			if err != nil {
				return 0, err
			}
			submissionID, ok = dispute.SubmissionID, true
		}
	}
	if !ok {
		return 0, fmt.Errorf("event %s carries neither match_id nor submission_id", event.Name)
	}

	submission, err := f.submissionRepo.GetByID(ctx, submissionID)
	if err != nil {
		return 0, err
	}
	match, err := f.matchRepo.GetByID(ctx, submission.MatchID)
	if err != nil {
		return 0, err
	}
	return match.TournamentID, nil
}

func RoomForTournament(tournamentID int) string {
	return fmt.Sprintf("tournament_%d", tournamentID)
}

func intPayload(payload map[string]interface{}, key string) (int, bool) {
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
		return int(n), true
	}
	return 0, false
}
