package services

import (
	"errors"
	"fmt"
	"strings"
)

// Общие ошибки движка верификации, используемые в маппинге HTTP.
var (
	// Ресурс не найден
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrDisputeNotFound    = errors.New("dispute not found")
	ErrMatchNotFound      = errors.New("match not found")
	ErrEvidenceNotFound   = errors.New("dispute evidence not found")

	// Предусловия состояний
	ErrInvalidMatchState      = errors.New("match is not accepting results")
	ErrInvalidSubmissionState = errors.New("operation not valid for current submission state")
	ErrInvalidDisputeState    = errors.New("operation not valid for current dispute state")

	// Авторизация действий
	ErrPermissionDenied = errors.New("operation not allowed for the current user")

	// Конфликты и доменные правила споров
	ErrSubmissionConflict      = errors.New("match already has an unresolved result submission")
	ErrDuplicateDispute        = errors.New("submission already has an unresolved dispute")
	ErrMissingDisputedPayload  = errors.New("dispute does not carry an alternative result payload")
	ErrInvalidResolution       = errors.New("unknown dispute resolution")
	ErrInvalidDisputeReason    = errors.New("unknown dispute reason code")
	ErrInvalidEvidenceType     = errors.New("unknown evidence type")
	ErrEmptyCustomPayload      = errors.New("custom result payload must not be empty")
	ErrInvalidResponseDecision = errors.New("opponent response must be confirm or dispute")
)

// SubmissionValidationError — отказ валидации payload при подаче результата.
// Полный список ошибок возвращается подающему участнику.
type SubmissionValidationError struct {
	Errors []string
}

func (e *SubmissionValidationError) Error() string {
	return fmt.Sprintf("result payload failed validation: %s", strings.Join(e.Errors, "; "))
}

// VerificationFailedError — отказ повторной валидации на финализации.
// Полный список ошибок возвращается организатору, чтобы он мог поправить
// payload и повторить.
type VerificationFailedError struct {
	Errors []string
}

func (e *VerificationFailedError) Error() string {
	return fmt.Sprintf("result verification failed: %s", strings.Join(e.Errors, "; "))
}
