package models

import "time"

// ReviewItem — элемент очереди организатора. Priority считается сервисом:
// просроченные и эскалированные элементы всплывают первыми.
type ReviewItem struct {
	Submission   *Submission `json:"submission"`
	Dispute      *Dispute    `json:"dispute,omitempty"`
	TournamentID int         `json:"tournament_id"`
	Priority     int         `json:"priority"`
	Overdue      bool        `json:"overdue"`
}

// BatchItemFailure — отказ по одному элементу батч-операции.
type BatchItemFailure struct {
	SubmissionID int    `json:"submission_id"`
	Error        string `json:"error"`
}

// BatchResult — итог best-effort батч-операции. Отказ по одному id не
// прерывает обработку остальных; это не транзакция.
type BatchResult struct {
	Processed int                `json:"processed"`
	Updated   []*Submission      `json:"updated"`
	Failed    []BatchItemFailure `json:"failed"`
}

// DeferredJobStatus — статусы отложенной задачи.
type DeferredJobStatus string

const (
	JobStatusPending   DeferredJobStatus = "pending"
	JobStatusDone      DeferredJobStatus = "done"
	JobStatusFailed    DeferredJobStatus = "failed"
	JobStatusCancelled DeferredJobStatus = "cancelled"
)

// DeferredJob — отложенная задача с доставкой at-least-once.
// Обработчики задач обязаны быть идемпотентными.
type DeferredJob struct {
	ID        int               `json:"id" db:"id"`
	Key       string            `json:"key" db:"key"`
	Task      string            `json:"task" db:"task"`
	Args      JSONMap           `json:"args" db:"args"`
	RunAt     time.Time         `json:"run_at" db:"run_at"`
	Status    DeferredJobStatus `json:"status" db:"status"`
	Attempts  int               `json:"attempts" db:"attempts"`
	LastError *string           `json:"last_error,omitempty" db:"last_error"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}
