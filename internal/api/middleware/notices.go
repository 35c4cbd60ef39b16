package middleware

import (
	"github.com/gin-gonic/gin"

	"tenantdesk.io/console/internal/notification"
)

// Notices attaches a notification.Collector to every request so handlers and
// the error handler can render the notices raised while serving it.
func Notices() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _ := notification.WithCollector(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CollectedNotices returns the notices raised so far in this request.
func CollectedNotices(c *gin.Context) []notification.Notice {
	if col := notification.CollectorFrom(c.Request.Context()); col != nil {
		return col.Notices()
	}
	return nil
}
