package models

import "time"

type MatchState string

const (
	MatchStateScheduled  MatchState = "scheduled"
	MatchStateInProgress MatchState = "in_progress"
	MatchStateCompleted  MatchState = "completed"
	MatchStateCanceled   MatchState = "canceled"
)

// Match — внешняя сущность матча. Движок верификации матчи не создаёт,
// он лишь читает их состояние и закрывает матч при финализации результата.
type Match struct {
	ID           int        `json:"id" db:"id"`
	TournamentID int        `json:"tournament_id" db:"tournament_id"`
	SideAID      int        `json:"side_a_id" db:"side_a_id"`
	SideBID      int        `json:"side_b_id" db:"side_b_id"`
	State        MatchState `json:"state" db:"state"`
	GameSlug     string     `json:"game_slug" db:"game_slug"`
	Score        *string    `json:"score,omitempty" db:"score"`
	WinnerSideID *int       `json:"winner_side_id,omitempty" db:"winner_side_id"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// AcceptsResults сообщает, принимает ли матч заявки на результат.
func (m Match) AcceptsResults() bool {
	return m.State == MatchStateInProgress
}

// HasSide проверяет, что сторона принадлежит матчу.
func (m Match) HasSide(sideID int) bool {
	return sideID == m.SideAID || sideID == m.SideBID
}

// OpposingSide возвращает id противоположной стороны (0, если сторона не из матча).
func (m Match) OpposingSide(sideID int) int {
	switch sideID {
	case m.SideAID:
		return m.SideBID
	case m.SideBID:
		return m.SideAID
	}
	return 0
}
