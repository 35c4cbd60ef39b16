package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetLiveness handles GET /health/live.
func (s *Server) GetLiveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetReadiness handles GET /health/ready.
func (s *Server) GetReadiness(c *gin.Context) {
	checks := map[string]string{"storage": "ok"}
	status, httpStatus := "ok", http.StatusOK

	if s.ready != nil {
		if err := s.ready(c.Request.Context()); err != nil {
			s.log.Warn("Readiness check failed", zap.Error(err))
			checks["storage"] = "error"
			status, httpStatus = "degraded", http.StatusServiceUnavailable
		}
	}

	c.JSON(httpStatus, gin.H{"status": status, "checks": checks})
}
