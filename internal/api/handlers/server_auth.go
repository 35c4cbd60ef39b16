package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tenantdesk.io/console/internal/api/middleware"
	"tenantdesk.io/console/internal/asset"
	apperrors "tenantdesk.io/console/internal/pkg/errors"
	"tenantdesk.io/console/internal/sessioncache"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /auth/login.
func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.BadRequest(apperrors.CodeInvalidRequest, "username and password are required"))
		return
	}
	ctx := c.Request.Context()

	invalid := apperrors.Unauthorized(apperrors.CodeInvalidCredentials, "invalid username or password")
	user, err := s.users.FetchByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.log.Info("Login failed: invalid credentials")
			fail(c, invalid)
			return
		}
		fail(c, err)
		return
	}
	ok, err := s.users.VerifyPassword(ctx, user.ID, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		s.log.Info("Login failed: invalid credentials", zap.Int64("user_id", user.ID))
		fail(c, invalid)
		return
	}

	token, expiresAt, err := middleware.GenerateToken(s.jwtCfg, user.ID, user.Username, user.Role)
	if err != nil {
		s.log.Error("Failed to generate token", zap.Error(err))
		fail(c, err)
		return
	}

	profile := profileOf(user.ID, user.Username, string(user.Role), user.UserLang)
	if s.cache != nil {
		if err := s.cache.Put(ctx, profile); err != nil {
			s.log.Warn("Session cache put failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"profile":    profile,
	})
}

// GetMe handles GET /me. The display profile comes from the session cache,
// so it reflects account edits made since sign-in.
func (s *Server) GetMe(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	user, err := s.users.FetchUser(ctx, actor.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	profile := profileOf(user.ID, user.Username, string(user.Role), user.UserLang)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, actor.UserID); ok {
			profile = cached
		} else if err := s.cache.Put(ctx, profile); err != nil {
			s.log.Warn("Session cache put failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}

	pfp, err := asset.NewController(actor.UserID, s.assets).Fetch(ctx, actor.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"user":    user,
		"profile": profile,
		"pfp":     pfp,
	})
}

func profileOf(id int64, username, role, lang string) sessioncache.Profile {
	return sessioncache.Profile{UserID: id, Username: username, Role: role, UserLang: lang}
}
