package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ujianku/sesi-backend/internal/middleware"
	"github.com/ujianku/sesi-backend/internal/repository"
	"github.com/ujianku/sesi-backend/internal/response"
	"github.com/ujianku/sesi-backend/internal/service"
)

// TransitionHandler handles the end-category and end-session endpoints.
type TransitionHandler struct {
	transitionService *service.TransitionService
}

// NewTransitionHandler creates a new TransitionHandler.
func NewTransitionHandler(transitionService *service.TransitionService) *TransitionHandler {
	return &TransitionHandler{transitionService: transitionService}
}

// EndCategory godoc
// POST /api/v1/participant/sessions/:session_id/categories/:category_id/end
// Closes one category and returns either the next category to continue
// with or the completed-test result.
func (h *TransitionHandler) EndCategory(c *gin.Context) {
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

	result, err := h.transitionService.EndCategory(c.Request.Context(), sessionID, categoryID, claims.ParticipantID)
	if err != nil {
		failTransition(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// EndSession godoc
// POST /api/v1/participant/sessions/:session_id/end
// Finishes the whole session: grades it and makes it terminal.
func (h *TransitionHandler) EndSession(c *gin.Context) {
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

	result, err := h.transitionService.EndSession(c.Request.Context(), sessionID, claims.ParticipantID)
	if err != nil {
		failTransition(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// failTransition maps transition errors onto the session-engine error codes.
func failTransition(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrAlreadyCompleted):
		response.Fail(c, http.StatusConflict, response.ErrSessionCompleted)
	case errors.Is(err, repository.ErrCategoryAlreadyEnded):
		response.Fail(c, http.StatusConflict, response.ErrCategoryEnded)
	case repository.IsNotFound(err):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrTransitionFailed)
	}
}
