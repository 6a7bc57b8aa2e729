package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ujianku/sesi-backend/internal/middleware"
	"github.com/ujianku/sesi-backend/internal/repository"
	"github.com/ujianku/sesi-backend/internal/response"
	"github.com/ujianku/sesi-backend/internal/service"
)

// SessionHandler handles the continue (load/resume) endpoints.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// ContinueTest godoc
// GET /api/v1/participant/sessions/:session_id/continue
// Loads (or resumes after reload) the whole-test view of a session:
// questions with current answer state and the reconciled countdown.
func (h *SessionHandler) ContinueTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := parseID(c, "session_id")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	payload, err := h.sessionService.ContinueTest(c.Request.Context(), sessionID, claims.ParticipantID)
	if err != nil {
		failContinue(c, err)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// ContinueCategory godoc
// GET /api/v1/participant/sessions/:session_id/categories/:category_id/continue
// Loads (or resumes) one category of a session. The first call starts
// the category clock; later calls keep the original start.
func (h *SessionHandler) ContinueCategory(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := parseID(c, "session_id")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	categoryID, err := parseID(c, "category_id")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	payload, err := h.sessionService.ContinueCategory(c.Request.Context(), sessionID, categoryID, claims.ParticipantID)
	if err != nil {
		failContinue(c, err)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// failContinue maps loader errors onto the session-engine error codes.
func failContinue(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrAlreadyCompleted):
		response.Fail(c, http.StatusConflict, response.ErrSessionCompleted)
	case repository.IsNotFound(err):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrSessionLoadFailed)
	}
}

// parseID parses a positive int64 path parameter.
func parseID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
