package handlers

import (
	"errors"
	"net/http"

	"github.com/rkRashik/deltacrown/middleware"
	"github.com/rkRashik/deltacrown/models"
	"github.com/rkRashik/deltacrown/services"
	"github.com/rkRashik/deltacrown/storage"
)

type DisputeHandler struct {
	disputeService services.DisputeService
	uploader       storage.FileUploader
}

func NewDisputeHandler(ds services.DisputeService, uploader storage.FileUploader) *DisputeHandler {
	return &DisputeHandler{
		disputeService: ds,
		uploader:       uploader,
	}
}

// GetDispute godoc
// @Summary Получить спор по ID
// @Tags disputes
// @Produce json
// @Param disputeID path int true "Dispute ID"
// @Success 200 {object} map[string]interface{} "Спор с приложенными доказательствами"
// @Failure 404 {object} map[string]string "Спор не найден"
// @Router /disputes/{disputeID} [get]
func (h *DisputeHandler) GetDispute(w http.ResponseWriter, r *http.Request) {
	disputeID, err := getIDFromURL(r, "disputeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	dispute, err := h.disputeService.GetDispute(r.Context(), disputeID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"dispute": dispute}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UploadEvidence godoc
// @Summary Приложить доказательство к спору
// @Tags disputes
// @Description Multipart-загрузка файла доказательства в объектное хранилище. Поля формы: file, type, notes.
// @Accept multipart/form-data
// @Produce json
// @Param disputeID path int true "Dispute ID"
// @Success 201 {object} map[string]interface{} "Доказательство добавлено"
// @Failure 400 {object} map[string]string "Недопустимый тип файла"
// @Router /disputes/{disputeID}/evidence [post]
func (h *DisputeHandler) UploadEvidence(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to upload evidence")
		return
	}

	disputeID, err := getIDFromURL(r, "disputeID")
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

	evidenceType := models.EvidenceType(r.FormValue("type"))
	if !evidenceType.Valid() {
		mapServiceErrorToHTTP(w, r, services.ErrInvalidEvidenceType)
		return
	}
	var notes *string
	if v := r.FormValue("notes"); v != "" {
		notes = &v
	}

	key, err := storage.EvidenceKey(disputeID, contentType)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	uploaded, err := h.uploader.Upload(r.Context(), key, contentType, file)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}

	evidence, err := h.disputeService.AddEvidence(r.Context(), disputeID, currentUserID, evidenceType, uploaded.Location, notes)
	if err != nil {
		// Запись в БД не удалась — подчищаем уже загруженный объект.
		_ = h.uploader.Delete(r.Context(), key)
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"evidence": evidence}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type addEvidenceLinkRequest struct {
	Type  models.EvidenceType `json:"type"`
	URL   string              `json:"url"`
	Notes *string             `json:"notes,omitempty"`
}

// AddEvidenceLink godoc
// @Summary Приложить внешнюю ссылку как доказательство
// @Tags disputes
// @Accept json
// @Produce json
// @Param disputeID path int true "Dispute ID"
// @Param body body addEvidenceLinkRequest true "Тип, URL и заметки"
// @Success 201 {object} map[string]interface{} "Доказательство добавлено"
// @Router /disputes/{disputeID}/evidence-links [post]
func (h *DisputeHandler) AddEvidenceLink(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to add evidence")
		return
	}

	disputeID, err := getIDFromURL(r, "disputeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input addEvidenceLinkRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	evidence, err := h.disputeService.AddEvidence(r.Context(), disputeID, currentUserID, input.Type, input.URL, input.Notes)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"evidence": evidence}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// MarkUnderReview godoc
// @Summary Взять спор в работу
// @Tags disputes
// @Description Организатор помечает спор как рассматриваемый. Идемпотентно.
// @Produce json
// @Param disputeID path int true "Dispute ID"
// @Success 200 {object} map[string]interface{} "Обновлённый спор"
// @Router /disputes/{disputeID}/review [post]
func (h *DisputeHandler) MarkUnderReview(w http.ResponseWriter, r *http.Request) {
	disputeID, err := getIDFromURL(r, "disputeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	dispute, err := h.disputeService.MarkUnderReview(r.Context(), disputeID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"dispute": dispute}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// EscalateDispute godoc
// @Summary Эскалировать спор
// @Tags disputes
// @Produce json
// @Param disputeID path int true "Dispute ID"
// @Success 200 {object} map[string]interface{} "Эскалированный спор"
// @Failure 409 {object} map[string]string "Спор уже эскалирован или закрыт"
// @Router /disputes/{disputeID}/escalate [post]
func (h *DisputeHandler) EscalateDispute(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to escalate a dispute")
		return
	}

	disputeID, err := getIDFromURL(r, "disputeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	dispute, err := h.disputeService.EscalateDispute(r.Context(), disputeID, &currentUserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"dispute": dispute}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type resolveDisputeRequest struct {
	Resolution models.DisputeResolution `json:"resolution"`
	Notes      string                   `json:"notes,omitempty"`
}

// ResolveDispute godoc
// @Summary Разрешить спор
// @Tags disputes
// @Description Применяет вердикт: submitter_wins, opponent_wins или cancelled.
// @Accept json
// @Produce json
// @Param disputeID path int true "Dispute ID"
// @Param body body resolveDisputeRequest true "Вердикт и заметки организатора"
// @Success 200 {object} map[string]interface{} "Спор и итоговая заявка"
// @Failure 400 {object} map[string]string "Неизвестный вердикт"
// @Router /disputes/{disputeID}/resolve [post]
func (h *DisputeHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to resolve a dispute")
		return
	}

	disputeID, err := getIDFromURL(r, "disputeID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input resolveDisputeRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	dispute, submission, err := h.disputeService.ResolveDispute(r.Context(), disputeID, currentUserID, input.Resolution, input.Notes)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"dispute": dispute, "submission": submission}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
