package handlers

import (
	"errors"
	"net/http"

	"github.com/rkRashik/deltacrown/middleware"
	"github.com/rkRashik/deltacrown/models"
	"github.com/rkRashik/deltacrown/services"
	"github.com/rkRashik/deltacrown/storage"
)

type SubmissionHandler struct {
	submissionService services.SubmissionService
	uploader          storage.FileUploader
}

func NewSubmissionHandler(ss services.SubmissionService, uploader storage.FileUploader) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService: ss,
		uploader:          uploader,
	}
}

type submitResultRequest struct {
	SideID   int                  `json:"side_id"`
	Payload  models.ResultPayload `json:"payload"`
	ProofURL *string              `json:"proof_url,omitempty"`
	Notes    *string              `json:"notes,omitempty"`
}

// SubmitResult godoc
// @Summary Подать результат матча
// @Tags submissions
// @Description Участник подаёт заявку на результат завершённого матча. Невалидный payload не сохраняется.
// @Accept json
// @Produce json
// @Param matchID path int true "Match ID"
// @Param body body submitResultRequest true "Результат матча"
// @Success 201 {object} map[string]interface{} "Заявка создана"
// @Failure 409 {object} map[string]string "Матч уже имеет активную заявку"
// @Failure 422 {object} map[string]interface{} "Ошибки валидации payload"
// @Router /matches/{matchID}/results [post]
func (h *SubmissionHandler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to submit a result")
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input submitResultRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	submission, err := h.submissionService.SubmitResult(r.Context(), services.SubmitResultInput{
		MatchID:         matchID,
		SubmitterUserID: currentUserID,
		SubmitterSideID: input.SideID,
		Payload:         input.Payload,
		ProofURL:        input.ProofURL,
		Notes:           input.Notes,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"submission": submission}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UploadProof godoc
// @Summary Загрузить пруф результата матча
// @Tags submissions
// @Description Multipart-загрузка скриншота или записи в объектное хранилище. Полученный URL передаётся как proof_url при подаче результата.
// @Accept multipart/form-data
// @Produce json
// @Param matchID path int true "Match ID"
// @Success 201 {object} map[string]string "URL загруженного пруфа"
// @Failure 400 {object} map[string]string "Недопустимый тип файла"
// @Router /matches/{matchID}/proofs [post]
func (h *SubmissionHandler) UploadProof(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.GetUserIDFromContext(r.Context()); err != nil {
		unauthorizedResponse(w, r, "authentication required to upload a proof")
		return
	}

	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		badRequestResponse(w, r, errors.New("content type required"))
		return
	}

	key, err := storage.ProofKey(matchID, contentType)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	uploaded, err := h.uploader.Upload(r.Context(), key, contentType, file)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"proof_url": uploaded.Location, "key": uploaded.Key}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetSubmission godoc
// @Summary Получить заявку по ID
// @Tags submissions
// @Produce json
// @Param submissionID path int true "Submission ID"
// @Success 200 {object} map[string]interface{} "Заявка со спором, если он есть"
// @Failure 404 {object} map[string]string "Заявка не найдена"
// @Router /submissions/{submissionID} [get]
func (h *SubmissionHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID, err := getIDFromURL(r, "submissionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	submission, err := h.submissionService.GetSubmission(r.Context(), submissionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"submission": submission}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type opponentResponseRequest struct {
	SideID          int                       `json:"side_id"`
	Decision        services.ResponseDecision `json:"decision"`
	ReasonCode      models.DisputeReason      `json:"reason_code,omitempty"`
	Notes           *string                   `json:"notes,omitempty"`
	DisputedPayload models.ResultPayload      `json:"disputed_payload,omitempty"`
}

// RespondToSubmission godoc
// @Summary Ответ соперника на заявку
// @Tags submissions
// @Description Сторона, не подававшая результат, подтверждает или оспаривает заявку.
// @Accept json
// @Produce json
// @Param submissionID path int true "Submission ID"
// @Param body body opponentResponseRequest true "Решение: confirm или dispute (с кодом причины)"
// @Success 200 {object} map[string]interface{} "Обновлённая заявка"
// @Failure 403 {object} map[string]string "Отвечать может только противоположная сторона"
// @Failure 409 {object} map[string]string "Заявка уже не в статусе pending"
// @Router /submissions/{submissionID}/response [post]
func (h *SubmissionHandler) RespondToSubmission(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to respond to a submission")
		return
	}

	submissionID, err := getIDFromURL(r, "submissionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input opponentResponseRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	submission, err := h.submissionService.OpponentResponse(r.Context(), services.OpponentResponseInput{
		SubmissionID:     submissionID,
		RespondingUserID: currentUserID,
		RespondingSideID: input.SideID,
		Decision:         input.Decision,
		ReasonCode:       input.ReasonCode,
		Notes:            input.Notes,
		DisputedPayload:  input.DisputedPayload,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"submission": submission}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ConfirmSubmission godoc
// @Summary Подтвердить заявку
// @Tags submissions
// @Description Прямое подтверждение результата соперником. Самоподтверждение запрещено.
// @Produce json
// @Param submissionID path int true "Submission ID"
// @Success 200 {object} map[string]interface{} "Подтверждённая заявка"
// @Failure 403 {object} map[string]string "Подавший не может подтвердить свой результат"
// @Router /submissions/{submissionID}/confirm [post]
func (h *SubmissionHandler) ConfirmSubmission(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to confirm a submission")
		return
	}

	submissionID, err := getIDFromURL(r, "submissionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	submission, err := h.submissionService.ConfirmResult(r.Context(), submissionID, currentUserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"submission": submission}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
