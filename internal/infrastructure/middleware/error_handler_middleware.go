package middleware

import (
	"errors"
	"net/http"

	"coedit/internal/core/domain"
	apperrors "coedit/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware renders errors pushed into the gin context as
// structured JSON responses. Session errors get dedicated statuses; anything
// unrecognized is a 500.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		if appErr := apperrors.GetAppError(err); appErr != nil {
			logger.Errorw("request failed",
				"code", appErr.Code,
				"message", appErr.Message,
				"status", appErr.HTTPStatus,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			c.JSON(appErr.HTTPStatus, gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
				"details": appErr.Context,
			})
			return
		}

		if status, code := sessionErrorStatus(err); status != 0 {
			c.JSON(status, gin.H{
				"error":   code,
				"message": err.Error(),
			})
			return
		}

		logger.Errorw("unhandled error",
			"error", err.Error(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   string(apperrors.ErrCodeInternal),
			"message": "internal error",
		})
	}
}

// sessionErrorStatus maps sentinel session errors onto HTTP statuses.
func sessionErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized, "NOT_AUTHENTICATED"
	case errors.Is(err, domain.ErrNoActiveRoom):
		return http.StatusConflict, "NO_ACTIVE_ROOM"
	case errors.Is(err, domain.ErrCallAlreadyActive):
		return http.StatusConflict, "CALL_ALREADY_ACTIVE"
	case errors.Is(err, domain.ErrNoActiveCall):
		return http.StatusConflict, "NO_ACTIVE_CALL"
	case errors.Is(err, domain.ErrMediaAccess):
		return http.StatusForbidden, "MEDIA_ACCESS_DENIED"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound, "DOCUMENT_NOT_FOUND"
	case errors.Is(err, domain.ErrStaleCompletion):
		return http.StatusConflict, "SUPERSEDED"
	case errors.Is(err, domain.ErrChannelClosed):
		return http.StatusServiceUnavailable, "CHANNEL_CLOSED"
	default:
		return 0, ""
	}
}

// RecoveryMiddleware turns panics into 500 responses instead of killing the
// control server.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   string(apperrors.ErrCodeInternal),
					"message": "internal error",
				})
			}
		}()

		c.Next()
	}
}
