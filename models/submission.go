package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SubmissionStatus представляет статусы заявки на результат, соответствующие ENUM в БД.
type SubmissionStatus string

const (
	SubmissionStatusPending       SubmissionStatus = "pending"
	SubmissionStatusConfirmed     SubmissionStatus = "confirmed"
	SubmissionStatusDisputed      SubmissionStatus = "disputed"
	SubmissionStatusAutoConfirmed SubmissionStatus = "auto_confirmed"
	SubmissionStatusFinalized     SubmissionStatus = "finalized"
	SubmissionStatusRejected      SubmissionStatus = "rejected"
	SubmissionStatusCancelled     SubmissionStatus = "cancelled"
)

// Terminal сообщает, является ли статус конечным. Терминальные заявки
// сохраняются в БД навсегда, но не блокируют создание новой заявки по матчу.
func (s SubmissionStatus) Terminal() bool {
	switch s {
	case SubmissionStatusFinalized, SubmissionStatusRejected, SubmissionStatusCancelled:
		return true
	}
	return false
}

// ResultPayload — сырой игрозависимый результат матча (jsonb в БД).
// Структура определяется схемой игры, см. models.Game.
type ResultPayload map[string]interface{}

func (p ResultPayload) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func (p *ResultPayload) Scan(src interface{}) error {
	if src == nil {
		*p = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type for ResultPayload: %T", src)
	}
	return json.Unmarshal(b, p)
}

// Submission — заявка участника на результат матча.
// Одновременно по матчу может существовать только одна нетерминальная заявка.
type Submission struct {
	ID                  int              `json:"id" db:"id"`
	MatchID             int              `json:"match_id" db:"match_id"`
	SubmittedByUserID   int              `json:"submitted_by_user_id" db:"submitted_by_user_id"`
	SubmitterSideID     int              `json:"submitter_side_id" db:"submitter_side_id"`
	Payload             ResultPayload    `json:"payload" db:"payload"`
	ProofURL            *string          `json:"proof_url,omitempty" db:"proof_url"`
	SubmitterNotes      *string          `json:"submitter_notes,omitempty" db:"submitter_notes"`
	Status              SubmissionStatus `json:"status" db:"status"`
	SubmittedAt         time.Time        `json:"submitted_at" db:"submitted_at"`
	ConfirmedAt         *time.Time       `json:"confirmed_at,omitempty" db:"confirmed_at"`
	FinalizedAt         *time.Time       `json:"finalized_at,omitempty" db:"finalized_at"`
	ConfirmedByUserID   *int             `json:"confirmed_by_user_id,omitempty" db:"confirmed_by_user_id"`
	AutoConfirmDeadline time.Time        `json:"auto_confirm_deadline" db:"auto_confirm_deadline"`
	AutoConfirmed       bool             `json:"auto_confirmed" db:"auto_confirmed"`
	OrganizerNotes      *string          `json:"organizer_notes,omitempty" db:"organizer_notes"`

	// Опциональные связанные сущности (не мапятся напрямую)
	Dispute *Dispute `json:"dispute,omitempty" db:"-"`
}
