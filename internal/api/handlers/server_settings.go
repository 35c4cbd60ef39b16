package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tenantdesk.io/console/internal/api/middleware"
	"tenantdesk.io/console/internal/domain"
	"tenantdesk.io/console/internal/notification"
	apperrors "tenantdesk.io/console/internal/pkg/errors"
	"tenantdesk.io/console/internal/settings"
)

type openSessionRequest struct {
	Panels []string `json:"panels"`
}

type panelView struct {
	Key    string             `json:"key"`
	Fields []string           `json:"fields"`
	Values settings.State     `json:"values"`
	State  settings.SaveState `json:"state"`
}

type sessionView struct {
	ID         string      `json:"id"`
	CreatedAt  time.Time   `json:"created_at"`
	HasChanges bool        `json:"has_changes"`
	Saving     bool        `json:"saving"`
	Panels     []panelView `json:"panels"`
}

func viewOf(s *settings.Session) sessionView {
	st := s.Coordinator.State()
	v := sessionView{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		HasChanges: st.HasChanges,
		Saving:     st.Saving,
	}
	for _, p := range s.Coordinator.Panels() {
		v.Panels = append(v.Panels, panelView{
			Key:    p.Key(),
			Fields: p.Fields(),
			Values: p.Snapshot(),
			State:  st.Panels[p.Key()],
		})
	}
	return v
}

// ListPanels handles GET /admin/settings/panels.
func (s *Server) ListPanels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": s.registry.List()})
}

// OpenSession handles POST /admin/settings/sessions. An empty panel list
// opens every registered panel.
func (s *Server) OpenSession(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	var req openSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apperrors.BadRequest(apperrors.CodeInvalidRequest, "panels must be a list of panel keys"))
			return
		}
	}

	session, err := s.sessions.Open(c.Request.Context(), actor.UserID, req.Panels...)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(session))
}

func (s *Server) session(c *gin.Context) (*settings.Session, bool) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return nil, false
	}
	session, err := s.sessions.Get(c.Param("sid"), actor.UserID)
	if err != nil {
		fail(c, err)
		return nil, false
	}
	return session, true
}

// GetSession handles GET /admin/settings/sessions/{sid}.
func (s *Server) GetSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(session))
}

// StagePanel handles PATCH /admin/settings/sessions/{sid}/panels/{panel}.
func (s *Server) StagePanel(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	var update map[string]any
	if err := c.ShouldBindJSON(&update); err != nil {
		fail(c, apperrors.BadRequest(apperrors.CodeInvalidRequest, "request body must be a JSON object"))
		return
	}
	if err := session.Coordinator.Stage(c.Param("panel"), settings.State(update)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(session))
}

// SaveSession handles POST /admin/settings/sessions/{sid}/save.
// Panels that failed stay dirty; the report lists them.
func (s *Server) SaveSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	report, err := session.Coordinator.RequestSave(ctx)
	if err != nil {
		if len(settings.CommitErrors(err)) > 0 {
			s.notices.Notify(ctx, notification.SettingsSaveFailed(err))
		}
		appErr := toAppError(err)
		if len(report.Committed) > 0 || len(report.Failed) > 0 {
			appErr = appErr.WithParams(map[string]interface{}{
				"committed": report.Committed,
				"failed":    report.Failed,
			})
		}
		fail(c, appErr)
		return
	}

	if len(report.Committed) > 0 {
		s.notices.Notify(ctx, notification.SettingsSaved())
		s.dispatchSaved(c, session, report)
	}
	respond(c, http.StatusOK, gin.H{
		"report":  report,
		"session": viewOf(session),
	})
}

func (s *Server) dispatchSaved(c *gin.Context, session *settings.Session, report settings.SaveReport) {
	if s.events == nil {
		return
	}
	actor := ""
	if a, ok := middleware.GetActor(c.Request.Context()); ok {
		actor = strconv.FormatInt(a.UserID, 10)
	}
	ev, err := domain.NewEvent(domain.EventSettingsSaved, domain.AggregateSettings, session.ID, actor,
		domain.SettingsSavedPayload{SessionID: session.ID, Panels: report.Committed})
	if err != nil {
		s.log.Warn("Build domain event failed", zap.Error(err))
		return
	}
	if err := s.events.Dispatch(c.Request.Context(), ev); err != nil {
		s.log.Warn("Dispatch domain event failed", zap.String("event_type", string(ev.EventType)), zap.Error(err))
	}
}

// CancelSession handles POST /admin/settings/sessions/{sid}/cancel.
func (s *Server) CancelSession(c *gin.Context) {
	session, ok := s.session(c)
	if !ok {
		return
	}
	if err := session.Coordinator.Cancel(); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(session))
}

// CloseSession handles DELETE /admin/settings/sessions/{sid}.
func (s *Server) CloseSession(c *gin.Context) {
	actor, ok := actorFromCtx(c)
	if !ok {
		return
	}
	if err := s.sessions.Close(c.Param("sid"), actor.UserID); err != nil {
		fail(c, err)
		return
	}
	noContent(c)
}
