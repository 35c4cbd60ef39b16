// Package middleware provides the HTTP middleware chain.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "tenantdesk.io/console/internal/pkg/errors"
	"tenantdesk.io/console/internal/pkg/logger"
)

// ErrorHandler renders the last error added via c.Error() as JSON.
// Notices collected during the request are included.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		rid := GetRequestID(c.Request.Context())

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			status := appErr.Status()
			log := logger.Warn
			if status >= http.StatusInternalServerError {
				log = logger.Error
			}
			log("Request error",
				zap.String("request_id", rid),
				zap.String("code", appErr.Code),
				zap.Int("status", status),
				zap.Error(appErr.Err),
			)
			body := appErr.Body()
			if notices := CollectedNotices(c); len(notices) > 0 {
				body["notices"] = notices
			}
			c.JSON(status, body)
			return
		}

		logger.Error("Unhandled request error", zap.String("request_id", rid), zap.Error(err))
		body := gin.H{
			"code":    apperrors.CodeInternal,
			"message": "An internal error occurred",
		}
		if notices := CollectedNotices(c); len(notices) > 0 {
			body["notices"] = notices
		}
		c.JSON(http.StatusInternalServerError, body)
	}
}
