package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tenantdesk.io/console/internal/account"
	"tenantdesk.io/console/internal/domain"
	"tenantdesk.io/console/internal/settings"
)

func adminActor(c *gin.Context) (account.Actor, bool) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return account.Actor{}, false
	}
	return account.Actor{ID: actor.UserID, Role: actor.Role}, true
}

// GetAdminUser handles GET /admin/users/{id}. It returns the subject with
// the form seed an editor starts from.
func (s *Server) GetAdminUser(c *gin.Context) {
	actor, ok := adminActor(c)
	if !ok {
		return
	}
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	edit, err := s.admin.Open(c.Request.Context(), actor, userID)
	if err != nil {
		fail(c, err)
		return
	}
	defer edit.Close()

	c.JSON(http.StatusOK, gin.H{
		"user":             edit.Subject,
		"quota":            settings.QuotaFromLimit(edit.Subject.DailyMessageLimit),
		"assignable_roles": domain.AssignableRoles(actor.Role),
	})
}

// UpdateAdminUser handles POST /admin/users/{id}.
func (s *Server) UpdateAdminUser(c *gin.Context) {
	actor, ok := adminActor(c)
	if !ok {
		return
	}
	userID, ok := pathUserID(c)
	if !ok {
		return
	}
	form, err := readForm(c)
	if err != nil {
		fail(c, err)
		return
	}

	patch, err := s.admin.Submit(c.Request.Context(), actor, userID, form)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"updated": patch.Keys()})
}
