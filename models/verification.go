package models

import "time"

// VerificationResult — результат прогона payload через валидатор.
// Не персистится: схемы игр могут меняться, поэтому результат всегда считается заново.
type VerificationResult struct {
	IsValid          bool              `json:"is_valid"`
	Errors           []string          `json:"errors"`
	Warnings         []string          `json:"warnings"`
	CalculatedScores map[string]int    `json:"calculated_scores"`
	Metadata         map[string]string `json:"metadata"`
}

// VerificationStep — строка аудита: каждый шаг, меняющий состояние заявки,
// фиксируется через этот журнал.
type VerificationStep struct {
	ID                int       `json:"id" db:"id"`
	SubmissionID      int       `json:"submission_id" db:"submission_id"`
	Step              string    `json:"step" db:"step"`
	Status            string    `json:"status" db:"status"`
	PerformedByUserID *int      `json:"performed_by_user_id,omitempty" db:"performed_by_user_id"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}
