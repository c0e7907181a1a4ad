package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
)

// CheckSingleDeviceSession lets a student token through only while it is the
// student's registered login, so an exam runs on one device at a time.
// Proctor tokens pass unchecked.
//
// A token replaced by a newer login answers 401 SESSION_INVALIDATED. When the
// session store cannot be read the request answers 503 instead, so a Redis
// hiccup never logs a student out of a running exam.
func CheckSingleDeviceSession(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if claims.TokenType != service.TokenTypeStudent {
			c.Next()
			return
		}

		err := authService.ValidateStudentSession(c.Request.Context(), claims.UserID, claims.ID)
		switch {
		case err == nil:
			c.Next()
		case errors.Is(err, service.ErrSessionInvalidated), errors.Is(err, service.ErrNoActiveSession):
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
		default:
			_ = c.Error(err)
			response.AbortFail(c, http.StatusServiceUnavailable, response.ErrSessionStore)
		}
	}
}
