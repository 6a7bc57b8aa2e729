package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ujianku/sesi-backend/internal/middleware"
	"github.com/ujianku/sesi-backend/internal/model"
	"github.com/ujianku/sesi-backend/internal/repository"
	"github.com/ujianku/sesi-backend/internal/response"
	"github.com/ujianku/sesi-backend/internal/service"
	"github.com/ujianku/sesi-backend/internal/validator"
)

// AnswerHandler handles the HTTP fallback for answer writes. The
// WebSocket stream is the primary path; these endpoints keep autosave
// working when the socket is down.
type AnswerHandler struct {
	answerService *service.AnswerService
}

// NewAnswerHandler creates a new AnswerHandler.
func NewAnswerHandler(answerService *service.AnswerService) *AnswerHandler {
	return &AnswerHandler{answerService: answerService}
}

// SaveAnswer godoc
// PUT /api/v1/participant/sessions/:session_id/questions/:question_id/answer
// Saves one answer. The write is acknowledged once the hot snapshot is
// patched; durable persistence happens in the background.
func (h *AnswerHandler) SaveAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, questionID, ok := answerScope(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err := h.answerService.SaveAnswer(c.Request.Context(), sessionID, claims.ParticipantID, questionID, req)
	if err != nil {
		failAnswer(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// ResetAnswer godoc
// DELETE /api/v1/participant/sessions/:session_id/questions/:question_id/answer
// Clears one answer, returning the question to the unanswered state.
func (h *AnswerHandler) ResetAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, questionID, ok := answerScope(c)
	if !ok {
		return
	}

	err := h.answerService.ResetAnswer(c.Request.Context(), sessionID, claims.ParticipantID, questionID)
	if err != nil {
		failAnswer(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "reset"})
}

// FlagQuestion godoc
// PUT /api/v1/participant/sessions/:session_id/questions/:question_id/flag
// Toggles the review marker of one question.
func (h *AnswerHandler) FlagQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, questionID, ok := answerScope(c)
	if !ok {
		return
	}

	var req model.FlagQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err := h.answerService.FlagQuestion(c.Request.Context(), sessionID, claims.ParticipantID, questionID, *req.Flagged)
	if err != nil {
		failAnswer(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "flagged"})
}

func answerScope(c *gin.Context) (sessionID, questionID int64, ok bool) {
	sessionID, err := parseID(c, "session_id")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, 0, false
	}
	questionID, err = parseID(c, "question_id")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, 0, false
	}
	return sessionID, questionID, true
}

// failAnswer maps answer write errors onto the session-engine error codes.
func failAnswer(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrQuestionNotInScope):
		response.Fail(c, http.StatusNotFound, response.ErrQuestionNotInScope)
	case errors.Is(err, service.ErrVariantMismatch):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownVariant)
	case errors.Is(err, service.ErrInvalidAnswer):
		response.Fail(c, http.StatusBadRequest, response.ErrValidation)
	case errors.Is(err, repository.ErrAlreadyCompleted):
		response.Fail(c, http.StatusConflict, response.ErrSessionCompleted)
	case repository.IsNotFound(err):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrAnswerSaveFailed)
	}
}
