package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ujianku/sesi-backend/internal/response"
	"github.com/ujianku/sesi-backend/internal/service"
)

// CheckSingleDeviceLogin validates the JWT's JTI against the active
// login in Redis. A mismatch means a newer login superseded this one,
// so a second device can never keep driving the same exam session.
func CheckSingleDeviceLogin(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if err := authService.ValidateParticipantLogin(c.Request.Context(), claims.ParticipantID, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Next()
	}
}
