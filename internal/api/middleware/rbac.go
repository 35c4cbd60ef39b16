package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tenantdesk.io/console/internal/domain"
	apperrors "tenantdesk.io/console/internal/pkg/errors"
)

// RequireRole aborts with 403 unless the actor ranks at or above min.
// It must run after JWTAuth.
func RequireRole(min domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": apperrors.CodeForbidden, "message": "not authenticated",
			})
			return
		}
		if !actor.Role.AtLeast(min) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": apperrors.CodeForbidden, "message": "insufficient role",
			})
			return
		}
		c.Next()
	}
}
