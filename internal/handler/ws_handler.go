package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/ujianku/sesi-backend/internal/middleware"
	"github.com/ujianku/sesi-backend/internal/model"
	"github.com/ujianku/sesi-backend/internal/service"
	ws "github.com/ujianku/sesi-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the WebSocket session stream: autosave, flagging,
// visibility-regain timer resync and the finish transition, all over
// one connection.
type WSHandler struct {
	sessionService    *service.SessionService
	answerService     *service.AnswerService
	transitionService *service.TransitionService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	sessionService *service.SessionService,
	answerService *service.AnswerService,
	transitionService *service.TransitionService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		sessionService:    sessionService,
		answerService:     answerService,
		transitionService: transitionService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/participant/sessions/:session_id/stream
// Upgrades to WebSocket for real-time answer writes and timer events.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := parseID(c, "session_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	participantID := claims.ParticipantID

	if _, err := h.sessionService.VerifyActiveSession(c.Request.Context(), sessionID, participantID); err != nil {
		ws.WriteError(conn, "no active session")
		return
	}

	wsLog := h.log.With().
		Int64("participant_id", participantID).
		Int64("session_id", sessionID).
		Logger()

	wsLog.Info().Msg("Participant connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, sessionID, participantID, &msg)
		case ws.ActionReset:
			h.handleReset(conn, sessionID, participantID, &msg)
		case ws.ActionFlag:
			h.handleFlag(conn, sessionID, participantID, &msg)
		case ws.ActionVisibility:
			h.handleVisibility(conn, sessionID, &msg)
		case ws.ActionFinish:
			h.handleFinish(conn, wsLog, sessionID, participantID, &msg)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleAutosave validates and saves a single answer.
func (h *WSHandler) handleAutosave(conn *websocket.Conn, sessionID, participantID int64, msg *ws.RequestPayload) {
	if msg.QuestionID == 0 || msg.Variant == "" {
		ws.WriteError(conn, "question_id and variant are required")
		return
	}

	req := model.SaveAnswerRequest{Variant: msg.Variant, Answer: msg.Answer}
	if err := h.answerService.SaveAnswer(context.Background(), sessionID, participantID, msg.QuestionID, req); err != nil {
		ws.WriteError(conn, "save failed: "+err.Error())
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, QuestionID: msg.QuestionID, Status: "saved"})
}

// handleReset clears a single answer.
func (h *WSHandler) handleReset(conn *websocket.Conn, sessionID, participantID int64, msg *ws.RequestPayload) {
	if msg.QuestionID == 0 {
		ws.WriteError(conn, "question_id is required")
		return
	}

	if err := h.answerService.ResetAnswer(context.Background(), sessionID, participantID, msg.QuestionID); err != nil {
		ws.WriteError(conn, "reset failed: "+err.Error())
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, QuestionID: msg.QuestionID, Status: "reset"})
}

// handleFlag toggles the review marker.
func (h *WSHandler) handleFlag(conn *websocket.Conn, sessionID, participantID int64, msg *ws.RequestPayload) {
	if msg.QuestionID == 0 {
		ws.WriteError(conn, "question_id is required")
		return
	}

	if err := h.answerService.FlagQuestion(context.Background(), sessionID, participantID, msg.QuestionID, msg.Flagged); err != nil {
		ws.WriteError(conn, "flag failed: "+err.Error())
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, QuestionID: msg.QuestionID, Status: "flagged"})
}

// handleVisibility reconciles the countdown after the client regained
// tab visibility: the browser suspends interval timers in background
// tabs, so the displayed remaining time drifts until resynced.
func (h *WSHandler) handleVisibility(conn *websocket.Conn, sessionID int64, msg *ws.RequestPayload) {
	remaining := h.sessionService.Resync(sessionID, msg.CategoryID)
	ws.WriteTyped(conn, ws.TimerResponse{Event: ws.EventTimer, RemainingSeconds: remaining})
}

// handleFinish runs the end-category or end-session transition,
// depending on whether a category id is present.
func (h *WSHandler) handleFinish(conn *websocket.Conn, wsLog zerolog.Logger, sessionID, participantID int64, msg *ws.RequestPayload) {
	ctx := context.Background()

	var result *model.TransitionResult
	var err error
	if msg.CategoryID != nil {
		result, err = h.transitionService.EndCategory(ctx, sessionID, *msg.CategoryID, participantID)
	} else {
		result, err = h.transitionService.EndSession(ctx, sessionID, participantID)
	}
	if err != nil {
		wsLog.Error().Err(err).Msg("Finish transition failed")
		ws.WriteError(conn, "finish failed: "+err.Error())
		return
	}

	ws.WriteTyped(conn, ws.TransitionResponse{
		Event:          ws.EventTransition,
		NextCategoryID: result.NextCategoryID,
		TestID:         result.TestID,
	})
}
