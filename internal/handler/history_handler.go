package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ujianku/sesi-backend/internal/middleware"
	"github.com/ujianku/sesi-backend/internal/response"
	"github.com/ujianku/sesi-backend/internal/service"
)

// HistoryHandler handles the score history read path.
type HistoryHandler struct {
	historyService *service.HistoryService
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(historyService *service.HistoryService) *HistoryHandler {
	return &HistoryHandler{historyService: historyService}
}

// GetHistory godoc
// GET /api/v1/participant/history?parent_test_id=...
// Returns the participant's attempts with the aggregated score view.
// The optional parent_test_id narrows the view to one test family.
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var parentTestID *int64
	if raw := c.Query("parent_test_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		parentTestID = &id
	}

	history, err := h.historyService.GetHistory(c.Request.Context(), claims.ParticipantID, parentTestID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, history)
}
