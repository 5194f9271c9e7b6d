package models

import "time"

// DisputeStatus представляет статусы спора, соответствующие ENUM в БД.
type DisputeStatus string

const (
	DisputeStatusOpen                 DisputeStatus = "open"
	DisputeStatusUnderReview          DisputeStatus = "under_review"
	DisputeStatusEscalated            DisputeStatus = "escalated"
	DisputeStatusResolvedForSubmitter DisputeStatus = "resolved_for_submitter"
	DisputeStatusResolvedForOpponent  DisputeStatus = "resolved_for_opponent"
	DisputeStatusResolvedCustom       DisputeStatus = "resolved_custom"
	DisputeStatusDismissed            DisputeStatus = "dismissed"
	DisputeStatusCancelled            DisputeStatus = "cancelled"
)

// Resolved сообщает, закрыт ли спор. Закрытый спор нельзя эскалировать или
// закрыть повторно; заявка при dismissed возвращается в pending.
func (s DisputeStatus) Resolved() bool {
	switch s {
	case DisputeStatusResolvedForSubmitter,
		DisputeStatusResolvedForOpponent,
		DisputeStatusResolvedCustom,
		DisputeStatusDismissed,
		DisputeStatusCancelled:
		return true
	}
	return false
}

// DisputeReason — код причины спора, выбирается оспаривающей стороной.
type DisputeReason string

const (
	DisputeReasonIncorrectScore DisputeReason = "incorrect_score"
	DisputeReasonWrongWinner    DisputeReason = "wrong_winner"
	DisputeReasonNoShowClaim    DisputeReason = "no_show_claim"
	DisputeReasonRuleViolation  DisputeReason = "rule_violation"
	DisputeReasonOther          DisputeReason = "other"
)

func (r DisputeReason) Valid() bool {
	switch r {
	case DisputeReasonIncorrectScore, DisputeReasonWrongWinner,
		DisputeReasonNoShowClaim, DisputeReasonRuleViolation, DisputeReasonOther:
		return true
	}
	return false
}

// DisputeResolution — трёхзначный вердикт операции разрешения спора.
type DisputeResolution string

const (
	ResolutionSubmitterWins DisputeResolution = "submitter_wins"
	ResolutionOpponentWins  DisputeResolution = "opponent_wins"
	ResolutionCancelled     DisputeResolution = "cancelled"
)

// Dispute — формальное возражение против заявки, поданное не подававшей стороной.
// На одну заявку может приходиться не более одного незакрытого спора.
type Dispute struct {
	ID               int           `json:"id" db:"id"`
	SubmissionID     int           `json:"submission_id" db:"submission_id"`
	OpenedByUserID   int           `json:"opened_by_user_id" db:"opened_by_user_id"`
	OpenedBySideID   int           `json:"opened_by_side_id" db:"opened_by_side_id"`
	Reason           DisputeReason `json:"reason" db:"reason"`
	Description      *string       `json:"description,omitempty" db:"description"`
	Status           DisputeStatus `json:"status" db:"status"`
	ResolutionNotes  *string       `json:"resolution_notes,omitempty" db:"resolution_notes"`
	DisputedPayload  ResultPayload `json:"disputed_payload,omitempty" db:"disputed_payload"`
	OpenedAt         time.Time     `json:"opened_at" db:"opened_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
	ResolvedAt       *time.Time    `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedByUserID *int          `json:"resolved_by_user_id,omitempty" db:"resolved_by_user_id"`
	EscalatedAt      *time.Time    `json:"escalated_at,omitempty" db:"escalated_at"`

	Evidence []DisputeEvidence `json:"evidence,omitempty" db:"-"`
}
