package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/rkRashik/deltacrown/middleware"
	"github.com/rkRashik/deltacrown/models"
	"github.com/rkRashik/deltacrown/services"
)

type ReviewHandler struct {
	reviewService       services.ReviewService
	verificationService services.VerificationService
}

func NewReviewHandler(rs services.ReviewService, vs services.VerificationService) *ReviewHandler {
	return &ReviewHandler{
		reviewService:       rs,
		verificationService: vs,
	}
}

// ListReviewQueue godoc
// @Summary Инбокс организатора
// @Tags review
// @Description Все нетерминальные заявки, отсортированные по приоритету: эскалированные и просроченные первыми.
// @Produce json
// @Param tournament_id query int false "Фильтр по турниру"
// @Success 200 {object} map[string]interface{} "Очередь ревью"
// @Router /review/queue [get]
func (h *ReviewHandler) ListReviewQueue(w http.ResponseWriter, r *http.Request) {
	var tournamentID *int
	if idStr := r.URL.Query().Get("tournament_id"); idStr != "" {
		id, err := strconv.Atoi(idStr)
		if err != nil || id <= 0 {
			badRequestResponse(w, r, errors.New("invalid tournament_id query parameter"))
			return
		}
		tournamentID = &id
	}

	items, err := h.reviewService.ListReviewItems(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"items": items, "count": len(items)}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type reviewNotesRequest struct {
	Notes string `json:"notes,omitempty"`
}

// ApproveOriginalResult godoc
// @Summary Подтвердить исходный результат
// @Tags review
// @Description Путь ревью №1: исходная заявка верна, спор закрывается в пользу подавшего.
// @Accept json
// @Produce json
// @Param disputeID path int true "Dispute ID"
// @Param body body reviewNotesRequest false "Заметки организатора"
// @Success 200 {object} map[string]interface{} "Финализированная заявка"
// @Router /review/disputes/{disputeID}/approve-original [post]
func (h *ReviewHandler) ApproveOriginalResult(w http.ResponseWriter, r *http.Request) {
	h.reviewPath(w, r, h.reviewService.ApproveOriginalResult)
}

// ApproveDisputedResult godoc
// @Summary Принять версию оспорившей стороны
// @Tags review
// @Description Путь ревью №2: payload спора замещает исходный и финализируется.
// @Accept json
// @Produce json
// @Param disputeID path int true "Dispute ID"
// @Param body body reviewNotesRequest false "Заметки организатора"
// @Success 200 {object} map[string]interface{} "Финализированная заявка"
// @Failure 400 {object} map[string]string "Спор не содержит альтернативного payload"
// @Router /review/disputes/{disputeID}/approve-disputed [post]
func (h *ReviewHandler) ApproveDisputedResult(w http.ResponseWriter, r *http.Request) {
	h.reviewPath(w, r, h.reviewService.ApproveDisputedResult)
}

// DismissDispute godoc
// @Summary Отклонить спор как необоснованный
// @Tags review
// @Description Путь ревью №4: заявка возвращается в pending с новым окном автоподтверждения.
// @Accept json
// @Produce json
// @Param disputeID path int true "Dispute ID"
// @Param body body reviewNotesRequest false "Заметки организатора"
// @Success 200 {object} map[string]interface{} "Переоткрытая заявка"
// @Router /review/disputes/{disputeID}/dismiss [post]
func (h *ReviewHandler) DismissDispute(w http.ResponseWriter, r *http.Request) {
	h.reviewPath(w, r, h.reviewService.DismissDispute)
}

// reviewPath — общая обвязка путей ревью, принимающих только заметки.
func (h *ReviewHandler) reviewPath(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, disputeID, organizerUserID int, notes string) (*models.Submission, error)) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	disputeID, err := getIDFromURL(r, "disputeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input reviewNotesRequest
	if r.ContentLength > 0 {
		if err := readJSON(w, r, &input); err != nil {
			badRequestResponse(w, r, err)
			return
		}
	}

	submission, err := op(r.Context(), disputeID, currentUserID, input.Notes)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"submission": submission}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type customResultRequest struct {
	Payload models.ResultPayload `json:"payload"`
	Notes   string               `json:"notes,omitempty"`
}

// ApplyCustomResult godoc
// @Summary Применить собственный результат организатора
// @Tags review
// @Description Путь ревью №3: обе версии неверны, организатор вводит авторитетный payload.
// @Accept json
// @Produce json
// @Param disputeID path int true "Dispute ID"
// @Param body body customResultRequest true "Авторитетный payload и заметки"
// @Success 200 {object} map[string]interface{} "Финализированная заявка"
// @Failure 400 {object} map[string]string "Пустой payload"
// @Router /review/disputes/{disputeID}/custom-result [post]
func (h *ReviewHandler) ApplyCustomResult(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	disputeID, err := getIDFromURL(r, "disputeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input customResultRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	submission, err := h.reviewService.ApplyCustomResult(r.Context(), disputeID, currentUserID, input.Payload, input.Notes)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"submission": submission}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type bulkRequest struct {
	SubmissionIDs []int  `json:"submission_ids"`
	Notes         string `json:"notes,omitempty"`
}

// BulkFinalize godoc
// @Summary Массовая финализация заявок
// @Tags review
// @Description Best-effort: отказ по одному id не прерывает остальные; ответ содержит списки updated и failed.
// @Accept json
// @Produce json
// @Param body body bulkRequest true "Список ID заявок"
// @Success 200 {object} map[string]interface{} "Итог батч-операции"
// @Router /review/bulk-finalize [post]
func (h *ReviewHandler) BulkFinalize(w http.ResponseWriter, r *http.Request) {
	h.bulkOp(w, r, func(ctx context.Context, ids []int, userID int, _ string) (*models.BatchResult, error) {
		return h.reviewService.BulkFinalizeSubmissions(ctx, ids, userID)
	})
}

// BulkReject godoc
// @Summary Массовое отклонение заявок
// @Tags review
// @Accept json
// @Produce json
// @Param body body bulkRequest true "Список ID заявок и общая заметка"
// @Success 200 {object} map[string]interface{} "Итог батч-операции"
// @Router /review/bulk-reject [post]
func (h *ReviewHandler) BulkReject(w http.ResponseWriter, r *http.Request) {
	h.bulkOp(w, r, h.reviewService.BulkRejectSubmissions)
}

func (h *ReviewHandler) bulkOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, ids []int, userID int, notes string) (*models.BatchResult, error)) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	var input bulkRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if len(input.SubmissionIDs) == 0 {
		badRequestResponse(w, r, errors.New("submission_ids must not be empty"))
		return
	}

	result, err := op(r.Context(), input.SubmissionIDs, currentUserID, input.Notes)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// FinalizeSubmission godoc
// @Summary Финализировать заявку
// @Tags review
// @Description Прогоняет заявку через верификацию и делает её авторитетным результатом матча.
// @Produce json
// @Param submissionID path int true "Submission ID"
// @Success 200 {object} map[string]interface{} "Финализированная заявка"
// @Failure 422 {object} map[string]interface{} "Верификация не пройдена"
// @Router /review/submissions/{submissionID}/finalize [post]
func (h *ReviewHandler) FinalizeSubmission(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	submissionID, err := getIDFromURL(r, "submissionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	submission, err := h.verificationService.FinalizeSubmissionAfterVerification(r.Context(), submissionID, &currentUserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"submission": submission}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DryRunVerification godoc
// @Summary Предпросмотр верификации
// @Tags review
// @Description Прогоняет payload заявки через валидатор без каких-либо изменений состояния.
// @Produce json
// @Param submissionID path int true "Submission ID"
// @Success 200 {object} map[string]interface{} "Результат валидации"
// @Router /review/submissions/{submissionID}/verify [get]
func (h *ReviewHandler) DryRunVerification(w http.ResponseWriter, r *http.Request) {
	submissionID, err := getIDFromURL(r, "submissionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.verificationService.DryRunVerification(r.Context(), submissionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"verification": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListVerificationSteps godoc
// @Summary Журнал верификации заявки
// @Tags review
// @Produce json
// @Param submissionID path int true "Submission ID"
// @Success 200 {object} map[string]interface{} "Шаги аудита в хронологическом порядке"
// @Router /review/submissions/{submissionID}/verification-steps [get]
func (h *ReviewHandler) ListVerificationSteps(w http.ResponseWriter, r *http.Request) {
	submissionID, err := getIDFromURL(r, "submissionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	steps, err := h.verificationService.ListVerificationSteps(r.Context(), submissionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"steps": steps}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
