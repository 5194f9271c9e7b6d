package events

import "time"

// Имена событий — контракт с внешними подписчиками (статистика, лидерборды,
// уведомления), менять нельзя.
const (
	MatchResultSubmitted     = "MatchResultSubmittedEvent"
	MatchResultConfirmed     = "MatchResultConfirmedEvent"
	MatchResultAutoConfirmed = "MatchResultAutoConfirmedEvent"
	MatchResultFinalized     = "MatchResultFinalizedEvent"
	DisputeEscalated         = "DisputeEscalatedEvent"
	DisputeResolved          = "DisputeResolvedEvent"
)

// Event — конверт опубликованного события.
type Event struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Payload    map[string]interface{} `json:"payload"`
	Metadata   map[string]string      `json:"metadata,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}
