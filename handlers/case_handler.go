package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"voicelegal-backend/classifier"
	"voicelegal-backend/logging"
	"voicelegal-backend/models"
	"voicelegal-backend/service"
	"voicelegal-backend/workflow"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CaseOperations is the case workflow as seen by the HTTP layer
type CaseOperations interface {
	StartCase(ctx context.Context, req service.StartCaseRequest) (*service.StartCaseResult, error)
	AnswerCurrentQuestion(ctx context.Context, req service.AnswerRequest) (*service.AnswerResult, error)
	GetCase(ctx context.Context, id uuid.UUID) (*models.LegalCase, error)
	ListUserCases(ctx context.Context, userID uuid.UUID) ([]*models.LegalCase, error)
	CaseStatus(ctx context.Context, id uuid.UUID) (*workflow.Status, error)
	ScheduleDocument(ctx context.Context, id uuid.UUID) (*models.LegalCase, error)
	ConfirmDelivery(ctx context.Context, id uuid.UUID) (*models.LegalCase, error)
	OpenDocument(ctx context.Context, id uuid.UUID) (io.ReadCloser, *models.GeneratedDocument, error)
	CaseTypes() []*models.CaseTypeDefinition
	RefreshCaseTypes(ctx context.Context) ([]*models.CaseTypeDefinition, error)
}

// CaseHandler handles HTTP requests for legal cases
type CaseHandler struct {
	cases  CaseOperations
	logger *slog.Logger
}

// NewCaseHandler creates a new case handler
func NewCaseHandler(cases CaseOperations) *CaseHandler {
	return &CaseHandler{
		cases:  cases,
		logger: logging.New("server"),
	}
}

// RegisterRoutes mounts the case and case-type endpoints on api
func (h *CaseHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/cases", h.StartCase)
	api.GET("/cases/:id", h.GetCase)
	api.GET("/cases/:id/status", h.GetStatus)
	api.POST("/cases/:id/answers", h.SubmitAnswer)
	api.POST("/cases/:id/document", h.RequestDocument)
	api.GET("/cases/:id/document", h.DownloadDocument)
	api.POST("/cases/:id/confirm", h.ConfirmDelivery)
	api.GET("/users/:id/cases", h.ListUserCases)

	api.GET("/case-types", h.ListCaseTypes)
	api.POST("/case-types/refresh", h.RefreshCaseTypes)
}

// StartCaseRequest represents the request body for opening a case
type StartCaseRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Text     string `json:"text" binding:"required"`
	Mode     string `json:"mode"`
	Language string `json:"language"`
}

// DetectionResponse summarizes the detection run when a case was opened
type DetectionResponse struct {
	CaseType   *string  `json:"case_type"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords"`
	Method     string   `json:"method,omitempty"`
}

// StartCase handles POST /api/cases
func (h *CaseHandler) StartCase(c *gin.Context) {
	var req StartCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_USER_ID", "Invalid user_id format")
		return
	}

	mode := models.InputMode(req.Mode)
	switch mode {
	case "":
		mode = models.InputModeText
	case models.InputModeText, models.InputModeVoice:
	default:
		respondError(c, http.StatusBadRequest, "INVALID_MODE", "mode must be text or voice")
		return
	}
	lang := req.Language
	if lang == "" {
		lang = "en"
	}

	result, err := h.cases.StartCase(c.Request.Context(), service.StartCaseRequest{
		UserID:   userID,
		Text:     req.Text,
		Mode:     mode,
		Language: lang,
	})
	switch {
	case errors.Is(err, classifier.ErrEmptyInput):
		respondError(c, http.StatusBadRequest, "EMPTY_INPUT", err.Error())
		return
	case errors.Is(err, classifier.ErrUnsupportedLanguage):
		respondError(c, http.StatusBadRequest, "UNSUPPORTED_LANGUAGE", err.Error())
		return
	case err != nil:
		h.logger.Error("failed to start case", slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "CREATE_FAILED", err.Error())
		return
	}

	det := DetectionResponse{
		Confidence: result.Detection.Confidence,
		Keywords:   result.Detection.MatchedKeywords,
		Method:     string(result.Detection.Method),
	}
	if det.Keywords == nil {
		det.Keywords = []string{}
	}
	if result.Detection.Found() {
		name := result.Detection.CaseType.Name
		det.CaseType = &name
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data": gin.H{
			"case":      result.Case,
			"detection": det,
			"status":    workflow.StatusOf(result.Case, result.Suggestions),
		},
	})
}

// GetCase handles GET /api/cases/:id
func (h *CaseHandler) GetCase(c *gin.Context) {
	id, ok := caseID(c)
	if !ok {
		return
	}

	legalCase, err := h.cases.GetCase(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    legalCase,
	})
}

// ListUserCases handles GET /api/users/:id/cases
func (h *CaseHandler) ListUserCases(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_USER_ID", "Invalid user ID format")
		return
	}

	cases, err := h.cases.ListUserCases(c.Request.Context(), userID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if cases == nil {
		cases = []*models.LegalCase{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    cases,
	})
}

// GetStatus handles GET /api/cases/:id/status
func (h *CaseHandler) GetStatus(c *gin.Context) {
	id, ok := caseID(c)
	if !ok {
		return
	}

	status, err := h.cases.CaseStatus(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    status,
	})
}

// SubmitAnswerRequest represents the request body for answering the current question
type SubmitAnswerRequest struct {
	Answer string `json:"answer"`
}

// SubmitAnswer handles POST /api/cases/:id/answers
func (h *CaseHandler) SubmitAnswer(c *gin.Context) {
	id, ok := caseID(c)
	if !ok {
		return
	}

	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.cases.AnswerCurrentQuestion(c.Request.Context(), service.AnswerRequest{
		CaseID: id,
		Answer: req.Answer,
	})
	var verr *workflow.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error": gin.H{
				"code":       "VALIDATION_FAILED",
				"message":    verr.Error(),
				"question":   verr.Question,
				"field":      verr.Field,
				"field_type": verr.FieldType,
			},
		})
		return
	}
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result.Status,
	})
}

// RequestDocument handles POST /api/cases/:id/document
func (h *CaseHandler) RequestDocument(c *gin.Context) {
	id, ok := caseID(c)
	if !ok {
		return
	}

	legalCase, err := h.cases.ScheduleDocument(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data":    workflow.StatusOf(legalCase, nil),
	})
}

// ConfirmDelivery handles POST /api/cases/:id/confirm
func (h *CaseHandler) ConfirmDelivery(c *gin.Context) {
	id, ok := caseID(c)
	if !ok {
		return
	}

	legalCase, err := h.cases.ConfirmDelivery(c.Request.Context(), id)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    workflow.StatusOf(legalCase, nil),
	})
}

// ListCaseTypes handles GET /api/case-types
func (h *CaseHandler) ListCaseTypes(c *gin.Context) {
	types := h.cases.CaseTypes()
	if types == nil {
		types = []*models.CaseTypeDefinition{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    types,
	})
}

// RefreshCaseTypes handles POST /api/case-types/refresh
func (h *CaseHandler) RefreshCaseTypes(c *gin.Context) {
	types, err := h.cases.RefreshCaseTypes(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to refresh case types", slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "REFRESH_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    types,
	})
}

func caseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid case ID format")
		return uuid.Nil, false
	}
	return id, true
}

// respondServiceError maps service and workflow errors to HTTP statuses
func (h *CaseHandler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCaseNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Case not found")
	case errors.Is(err, service.ErrDocumentNotReady):
		respondError(c, http.StatusNotFound, "DOCUMENT_NOT_READY", err.Error())
	case errors.Is(err, workflow.ErrQuestioningComplete):
		respondError(c, http.StatusConflict, "QUESTIONING_COMPLETE", err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		respondError(c, http.StatusConflict, "INVALID_STATE", err.Error())
	default:
		h.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
