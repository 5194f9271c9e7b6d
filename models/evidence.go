package models

import "time"

type EvidenceType string

const (
	EvidenceTypeScreenshot EvidenceType = "screenshot"
	EvidenceTypeVideo      EvidenceType = "video"
	EvidenceTypeChatLog    EvidenceType = "chat_log"
	EvidenceTypeOther      EvidenceType = "other"
)

func (t EvidenceType) Valid() bool {
	switch t {
	case EvidenceTypeScreenshot, EvidenceTypeVideo, EvidenceTypeChatLog, EvidenceTypeOther:
		return true
	}
	return false
}

// DisputeEvidence — вложение к спору. Записи только добавляются,
// никогда не изменяются и не удаляются.
type DisputeEvidence struct {
	ID               int          `json:"id" db:"id"`
	DisputeID        int          `json:"dispute_id" db:"dispute_id"`
	UploadedByUserID int          `json:"uploaded_by_user_id" db:"uploaded_by_user_id"`
	Type             EvidenceType `json:"type" db:"type"`
	URL              string       `json:"url" db:"url"`
	Notes            *string      `json:"notes,omitempty" db:"notes"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
}
