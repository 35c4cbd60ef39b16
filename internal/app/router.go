package app

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenantdesk.io/console/internal/api/handlers"
	"tenantdesk.io/console/internal/api/middleware"
	"tenantdesk.io/console/internal/config"
	"tenantdesk.io/console/internal/domain"
	"tenantdesk.io/console/internal/pkg/logger"
)

const apiBasePath = "/api/v1"

// adminPrefixes are routes that require the manager role or above.
var adminPrefixes = []string{
	apiBasePath + "/admin/",
}

// defaultAllowedOrigins are used when no origin is configured.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func newRouter(cfg *config.Config, server *handlers.Server, jwtCfg middleware.JWTConfig) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		cors.New(buildCORSConfig(cfg)),
		middleware.Notices(),
		middleware.Metrics(),
		middleware.ErrorHandler(),
	)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group(apiBasePath)
	if cfg.Server.ValidateRequests {
		api.Use(middleware.MustOpenAPIValidator(apiBasePath))
	}
	api.Use(jwtSkipPublic(jwtCfg), rbacAdminRoutes())
	server.RegisterRoutes(api)

	levelHandler := gin.WrapH(logger.Level())
	requireAdmin := middleware.RequireRole(domain.RoleAdmin)
	api.GET("/admin/log-level", requireAdmin, levelHandler)
	api.PUT("/admin/log-level", requireAdmin, levelHandler)
	return router
}

func buildCORSConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "ETag"},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	wildcard := false
	for _, origin := range cfg.Server.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			wildcard = true
		default:
			origins = append(origins, origin)
		}
	}

	// Browsers reject "*" with credentials, so the unsafe mode drops them.
	if wildcard && cfg.Server.UnsafeAllowAllOrigins {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
		return corsCfg
	}
	if len(origins) == 0 {
		origins = append(origins, defaultAllowedOrigins...)
	}
	corsCfg.AllowOrigins = origins
	return corsCfg
}

// jwtSkipPublic returns middleware that applies JWT auth only on non-public routes.
func jwtSkipPublic(jwtCfg middleware.JWTConfig) gin.HandlerFunc {
	jwtMw := middleware.JWTAuth(jwtCfg)
	return func(c *gin.Context) {
		for _, prefix := range handlers.PublicPaths {
			if strings.HasPrefix(c.Request.URL.Path, apiBasePath+prefix) {
				c.Next()
				return
			}
		}
		jwtMw(c)
	}
}

// rbacAdminRoutes returns middleware enforcing the manager role on admin endpoints.
func rbacAdminRoutes() gin.HandlerFunc {
	adminMw := middleware.RequireRole(domain.RoleManager)
	return func(c *gin.Context) {
		for _, prefix := range adminPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				adminMw(c)
				return
			}
		}
		c.Next()
	}
}
