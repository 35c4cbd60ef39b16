// Package handlers implements the HTTP API.
//
// Handlers translate requests into calls on the account flows, the profile
// asset controller and the settings session manager. Errors are attached to
// the gin context and rendered by middleware.ErrorHandler; successful
// responses carry the notices raised while serving the request.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tenantdesk.io/console/internal/account"
	"tenantdesk.io/console/internal/api/middleware"
	"tenantdesk.io/console/internal/asset"
	"tenantdesk.io/console/internal/domain"
	"tenantdesk.io/console/internal/notification"
	apperrors "tenantdesk.io/console/internal/pkg/errors"
	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/sessioncache"
	"tenantdesk.io/console/internal/settings"
)

// AccountStore is the user store the API needs beyond account.UserStore.
type AccountStore interface {
	account.UserStore
	FetchByUsername(ctx context.Context, username string) (*domain.AccountSubject, error)
	VerifyPassword(ctx context.Context, id int64, password string) (bool, error)
}

// Server implements all API handlers.
type Server struct {
	users    AccountStore
	cache    sessioncache.Cache
	self     *account.SelfFlow
	admin    *account.AdminFlow
	assets   asset.Deps
	sessions *settings.SessionManager
	registry *settings.PanelRegistry
	events   *domain.EventDispatcher
	notices  notification.Sink
	jwtCfg   middleware.JWTConfig
	ready    func(ctx context.Context) error
	log      *zap.Logger
}

// ServerDeps holds all dependencies for creating a Server.
// Manual DI, no Wire/Dig.
type ServerDeps struct {
	Users    AccountStore
	Cache    sessioncache.Cache
	Self     *account.SelfFlow
	Admin    *account.AdminFlow
	Assets   asset.Deps
	Sessions *settings.SessionManager
	Registry *settings.PanelRegistry
	Events   *domain.EventDispatcher
	Notices  notification.Sink // Optional: defaults to the request collector
	JWTCfg   middleware.JWTConfig
	Ready    func(ctx context.Context) error // Optional: readiness probe
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	notices := deps.Notices
	if notices == nil {
		notices = notification.ContextSink{}
	}
	return &Server{
		users:    deps.Users,
		cache:    deps.Cache,
		self:     deps.Self,
		admin:    deps.Admin,
		assets:   deps.Assets,
		sessions: deps.Sessions,
		registry: deps.Registry,
		events:   deps.Events,
		notices:  notices,
		jwtCfg:   deps.JWTCfg,
		ready:    deps.Ready,
		log:      logger.Named("api"),
	}
}

// RegisterRoutes mounts every endpoint under rg. Authentication and role
// checks are applied by the router.
func (s *Server) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health/live", s.GetLiveness)
	rg.GET("/health/ready", s.GetReadiness)
	rg.POST("/auth/login", s.Login)

	rg.GET("/me", s.GetMe)
	rg.POST("/account", s.UpdateAccount)
	rg.POST("/account/pfp", s.UploadPfp)
	rg.DELETE("/account/pfp", s.RemovePfp)
	rg.GET("/users/:id/pfp", s.GetUserPfp)

	admin := rg.Group("/admin")
	admin.GET("/users/:id", s.GetAdminUser)
	admin.POST("/users/:id", s.UpdateAdminUser)

	admin.GET("/settings/panels", s.ListPanels)
	admin.POST("/settings/sessions", s.OpenSession)
	admin.GET("/settings/sessions/:sid", s.GetSession)
	admin.DELETE("/settings/sessions/:sid", s.CloseSession)
	admin.PATCH("/settings/sessions/:sid/panels/:panel", s.StagePanel)
	admin.POST("/settings/sessions/:sid/save", s.SaveSession)
	admin.POST("/settings/sessions/:sid/cancel", s.CancelSession)
}

// PublicPaths are served without a token, relative to the API base path.
var PublicPaths = []string{"/health/", "/auth/login", "/users/"}

// actorFromCtx extracts the authenticated caller. A missing actor means the
// route was mounted without JWTAuth, which is a wiring bug, so the request
// is rejected rather than served anonymously.
func actorFromCtx(c *gin.Context) (middleware.Actor, bool) {
	actor, ok := middleware.GetActor(c.Request.Context())
	if !ok {
		_ = c.Error(apperrors.Unauthorized(apperrors.CodeUnauthorized, "authentication required"))
		return middleware.Actor{}, false
	}
	return actor, true
}

// respond writes body as JSON with the request's notices attached.
func respond(c *gin.Context, status int, body gin.H) {
	if notices := middleware.CollectedNotices(c); len(notices) > 0 {
		body["notices"] = notices
	}
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
