package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tenantdesk.io/console/internal/account"
	"tenantdesk.io/console/internal/api/middleware"
	"tenantdesk.io/console/internal/asset"
	"tenantdesk.io/console/internal/domain"
	"tenantdesk.io/console/internal/notification"
	apperrors "tenantdesk.io/console/internal/pkg/errors"
	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/repository"
	"tenantdesk.io/console/internal/repository/memstore"
	"tenantdesk.io/console/internal/sessioncache"
	"tenantdesk.io/console/internal/settings"
	"tenantdesk.io/console/internal/settings/panels"
)

func init() {
	_ = logger.Init("error", "json")
	gin.SetMode(gin.TestMode)
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

type harness struct {
	t      *testing.T
	engine *gin.Engine
	users  *memstore.Users
	assets *memstore.Assets
	prefs  *memstore.Preferences
	jwt    middleware.JWTConfig
	saved  []domain.EventType
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		users:  memstore.NewUsers(bcrypt.MinCost),
		assets: memstore.NewAssets(),
		prefs:  memstore.NewPreferences(panels.PreferenceKeys()),
		jwt: middleware.JWTConfig{
			SigningKey: []byte("handler-test-signing-key-0123456789"),
			Issuer:     "tenantdesk",
			ExpiresIn:  time.Hour,
		},
	}

	events := domain.NewEventDispatcher()
	events.Register(func(_ context.Context, ev *domain.DomainEvent) error {
		h.saved = append(h.saved, ev.EventType)
		return nil
	}, domain.EventSettingsSaved)

	registry := settings.NewPanelRegistry()
	require.NoError(t, panels.Register(registry))
	sessions := settings.NewSessionManager(registry, settings.Deps{
		Preferences: h.prefs,
		System:      memstore.NewSystem(),
	}, nil, time.Hour)
	t.Cleanup(sessions.CloseAll)

	cache := sessioncache.NewMemory()
	accountDeps := account.Deps{
		Users:     h.users,
		Cache:     cache,
		Notices:   notification.ContextSink{},
		Events:    events,
		Languages: []string{"en", "de"},
	}
	server := NewServer(ServerDeps{
		Users: h.users,
		Cache: cache,
		Self:  account.NewSelfFlow(accountDeps),
		Admin: account.NewAdminFlow(accountDeps),
		Assets: asset.Deps{
			Store:   h.assets,
			Notices: notification.ContextSink{},
			Options: asset.Options{MaxBytes: 1024},
		},
		Sessions: sessions,
		Registry: registry,
		Events:   events,
		JWTCfg:   h.jwt,
	})

	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Notices(), middleware.ErrorHandler())
	api := engine.Group("/api/v1")
	auth := middleware.JWTAuth(h.jwt)
	api.Use(func(c *gin.Context) {
		rel := strings.TrimPrefix(c.Request.URL.Path, "/api/v1")
		for _, p := range PublicPaths {
			if strings.HasPrefix(rel, p) {
				c.Next()
				return
			}
		}
		auth(c)
	})
	api.Use(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/v1/admin/") {
			middleware.RequireRole(domain.RoleManager)(c)
			return
		}
		c.Next()
	})
	server.RegisterRoutes(api)
	h.engine = engine
	return h
}

func (h *harness) createUser(username string, role domain.Role) *domain.AccountSubject {
	h.t.Helper()
	u, err := h.users.Create(context.Background(), repository.NewUser{
		Username: username,
		Password: "password123",
		Role:     role,
	})
	require.NoError(h.t, err)
	return u
}

func (h *harness) token(u *domain.AccountSubject) string {
	h.t.Helper()
	tok, _, err := middleware.GenerateToken(h.jwt, u.ID, u.Username, u.Role)
	require.NoError(h.t, err)
	return tok
}

func (h *harness) do(method, path, token, contentType string, body io.Reader) *httptest.ResponseRecorder {
	h.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func (h *harness) doJSON(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(raw)
	}
	return h.do(method, path, token, "application/json", r)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func noticeMessages(body map[string]any) []string {
	raw, _ := body["notices"].([]any)
	out := make([]string, 0, len(raw))
	for _, n := range raw {
		if m, ok := n.(map[string]any); ok {
			out = append(out, m["message"].(string))
		}
	}
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/v1/health/live", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/health/ready", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	h.createUser("alice", domain.RoleDefault)

	tests := []struct {
		name     string
		body     map[string]string
		wantCode int
		wantErr  string
	}{
		{name: "valid", body: map[string]string{"username": "alice", "password": "password123"}, wantCode: http.StatusOK},
		{name: "wrong password", body: map[string]string{"username": "alice", "password": "nope-nope"}, wantCode: http.StatusUnauthorized, wantErr: apperrors.CodeInvalidCredentials},
		{name: "unknown user", body: map[string]string{"username": "mallory", "password": "password123"}, wantCode: http.StatusUnauthorized, wantErr: apperrors.CodeInvalidCredentials},
		{name: "missing password", body: map[string]string{"username": "alice"}, wantCode: http.StatusBadRequest, wantErr: apperrors.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.doJSON(http.MethodPost, "/api/v1/auth/login", "", tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			body := decode(t, rec)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, body["code"])
				return
			}
			claims, err := h.jwt.ValidateToken(body["token"].(string))
			require.NoError(t, err)
			assert.Equal(t, "alice", claims.Username)
		})
	}
}

func TestGetMe_RequiresToken(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/v1/me", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateAccount_JSONUpdatesProfile(t *testing.T) {
	h := newHarness(t)
	alice := h.createUser("alice", domain.RoleDefault)
	tok := h.token(alice)

	rec := h.doJSON(http.MethodPost, "/api/v1/account", tok, map[string]any{
		"username": "alice2",
		"userLang": "de",
		"password": "",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.ElementsMatch(t, []any{"username", "userLang"}, body["updated"])
	assert.Equal(t, []string{notification.ProfileUpdated().Message}, noticeMessages(body))

	rec = h.do(http.MethodGet, "/api/v1/me", tok, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode(t, rec)
	profile := me["profile"].(map[string]any)
	assert.Equal(t, "alice2", profile["username"])
	assert.Equal(t, "de", profile["userLang"])
	assert.Nil(t, me["pfp"])
}

func TestUpdateAccount_FormValidation(t *testing.T) {
	h := newHarness(t)
	alice := h.createUser("alice", domain.RoleDefault)
	h.createUser("bob", domain.RoleDefault)
	tok := h.token(alice)

	tests := []struct {
		name      string
		form      url.Values
		wantCode  int
		wantErr   string
		wantField string
	}{
		{
			name:      "short password",
			form:      url.Values{"username": {"alice"}, "password": {"short"}},
			wantCode:  http.StatusUnprocessableEntity,
			wantErr:   apperrors.CodeValidationFailed,
			wantField: "account.password",
		},
		{
			name:      "unknown language",
			form:      url.Values{"username": {"alice"}, "userLang": {"xx"}},
			wantCode:  http.StatusUnprocessableEntity,
			wantErr:   apperrors.CodeValidationFailed,
			wantField: "account.userLang",
		},
		{
			name:     "username taken",
			form:     url.Values{"username": {"bob"}},
			wantCode: http.StatusConflict,
			wantErr:  apperrors.CodeUsernameTaken,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/api/v1/account", tok,
				"application/x-www-form-urlencoded", strings.NewReader(tt.form.Encode()))
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.Equal(t, tt.wantErr, body["code"])
			if tt.wantField != "" {
				fields := body["field_errors"].([]any)
				require.NotEmpty(t, fields)
				assert.Equal(t, tt.wantField, fields[0].(map[string]any)["field"])
			}
		})
	}

	stored, err := h.users.FetchUser(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)
}

func multipartFile(t *testing.T, data []byte) (string, io.Reader) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "avatar.png")
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return w.FormDataContentType(), &buf
}

func TestProfilePicture_Lifecycle(t *testing.T) {
	h := newHarness(t)
	alice := h.createUser("alice", domain.RoleDefault)
	tok := h.token(alice)

	ct, body := multipartFile(t, pngBytes)
	rec := h.do(http.MethodPost, "/api/v1/account/pfp", tok, ct, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode(t, rec)
	pfp := resp["pfp"].(map[string]any)
	assert.Equal(t, "image/png", pfp["content_type"])
	assert.Equal(t, []string{notification.PfpUploaded().Message}, noticeMessages(resp))

	rec = h.do(http.MethodGet, pfp["url"].(string), "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")
	assert.Equal(t, pngBytes, rec.Body.Bytes())

	rec = h.do(http.MethodDelete, "/api/v1/account/pfp", tok, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodGet, pfp["url"].(string), "", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeAssetNotFound, decode(t, rec)["code"])
}

func TestUploadPfp_Rejections(t *testing.T) {
	h := newHarness(t)
	alice := h.createUser("alice", domain.RoleDefault)
	tok := h.token(alice)

	tests := []struct {
		name     string
		data     []byte
		wantCode int
		wantErr  string
	}{
		{name: "not an image", data: []byte("plain text, not a picture"), wantCode: http.StatusUnsupportedMediaType, wantErr: apperrors.CodeAssetUnsupported},
		{name: "too large", data: append(append([]byte(nil), pngBytes...), make([]byte, 2048)...), wantCode: http.StatusRequestEntityTooLarge, wantErr: apperrors.CodeAssetTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ct, body := multipartFile(t, tt.data)
			rec := h.do(http.MethodPost, "/api/v1/account/pfp", tok, ct, body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantErr, decode(t, rec)["code"])
		})
	}

	ref, err := h.assets.FetchPfp(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestAdminUsers(t *testing.T) {
	h := newHarness(t)
	admin := h.createUser("root", domain.RoleAdmin)
	manager := h.createUser("mgr", domain.RoleManager)
	member := h.createUser("member", domain.RoleDefault)

	tests := []struct {
		name     string
		actor    *domain.AccountSubject
		target   int64
		body     map[string]any
		wantCode int
		wantErr  string
	}{
		{
			name:     "default role is refused",
			actor:    member,
			target:   manager.ID,
			body:     map[string]any{"username": "mgr"},
			wantCode: http.StatusForbidden,
			wantErr:  apperrors.CodeForbidden,
		},
		{
			name:     "manager cannot edit admin",
			actor:    manager,
			target:   admin.ID,
			body:     map[string]any{"username": "root"},
			wantCode: http.StatusForbidden,
			wantErr:  apperrors.CodeUserNotEditable,
		},
		{
			name:     "manager cannot assign admin",
			actor:    manager,
			target:   member.ID,
			body:     map[string]any{"username": "member", "role": "admin"},
			wantCode: http.StatusForbidden,
			wantErr:  apperrors.CodeRoleNotAssignable,
		},
		{
			name:     "missing user",
			actor:    admin,
			target:   999,
			body:     map[string]any{"username": "ghost"},
			wantCode: http.StatusNotFound,
			wantErr:  apperrors.CodeUserNotFound,
		},
		{
			name:     "admin sets quota",
			actor:    admin,
			target:   member.ID,
			body:     map[string]any{"username": "member", "role": "manager", "quota": map[string]any{"enabled": true, "limit": 50}},
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/api/v1/admin/users/" + strconv.FormatInt(tt.target, 10)
			rec := h.doJSON(http.MethodPost, path, h.token(tt.actor), tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode(t, rec)["code"])
			}
		})
	}

	stored, err := h.users.FetchUser(context.Background(), member.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, stored.Role)
	require.NotNil(t, stored.DailyMessageLimit)
	assert.Equal(t, 50, *stored.DailyMessageLimit)

	rec := h.do(http.MethodGet, "/api/v1/admin/users/"+strconv.FormatInt(member.ID, 10), h.token(admin), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, map[string]any{"enabled": true, "limit": float64(50)}, body["quota"])
	assert.Equal(t, []any{"default", "manager", "admin"}, body["assignable_roles"])
}

func TestSettingsSession_StageSaveClose(t *testing.T) {
	h := newHarness(t)
	admin := h.createUser("root", domain.RoleAdmin)
	tok := h.token(admin)

	rec := h.doJSON(http.MethodGet, "/api/v1/admin/settings/panels", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 2)

	rec = h.doJSON(http.MethodPost, "/api/v1/admin/settings/sessions", tok, map[string]any{"panels": []string{panels.AuthHeaderKey}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decode(t, rec)
	sid := session["id"].(string)
	assert.Equal(t, false, session["has_changes"])
	base := "/api/v1/admin/settings/sessions/" + sid

	rec = h.doJSON(http.MethodPatch, base+"/panels/"+panels.AuthHeaderKey, tok, map[string]any{panels.PrefAPIHeaderName: "X-Api-Key"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["has_changes"])

	rec = h.doJSON(http.MethodPatch, base+"/panels/missing", tok, map[string]any{"x": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodePanelNotFound, decode(t, rec)["code"])

	rec = h.doJSON(http.MethodPost, base+"/save", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode(t, rec)
	report := saved["report"].(map[string]any)
	assert.Equal(t, []any{panels.AuthHeaderKey}, report["committed"])
	assert.Equal(t, []string{notification.SettingsSaved().Message}, noticeMessages(saved))
	assert.Equal(t, []domain.EventType{domain.EventSettingsSaved}, h.saved)

	values, err := h.prefs.GetByFields(context.Background(), []string{panels.PrefAPIHeaderName})
	require.NoError(t, err)
	assert.Equal(t, "X-Api-Key", values[panels.PrefAPIHeaderName])

	rec = h.do(http.MethodDelete, base, tok, "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(http.MethodGet, base, tok, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeSessionNotFound, decode(t, rec)["code"])
}

func TestSettingsSession_ValidationAndCancel(t *testing.T) {
	h := newHarness(t)
	admin := h.createUser("root", domain.RoleAdmin)
	tok := h.token(admin)

	rec := h.doJSON(http.MethodPost, "/api/v1/admin/settings/sessions", tok, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	base := "/api/v1/admin/settings/sessions/" + decode(t, rec)["id"].(string)

	rec = h.doJSON(http.MethodPatch, base+"/panels/"+panels.AuthHeaderKey, tok,
		map[string]any{panels.PrefAPIHeaderName: "bad header name"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.doJSON(http.MethodPost, base+"/save", tok, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, apperrors.CodeValidationFailed, decode(t, rec)["code"])

	rec = h.doJSON(http.MethodPost, base+"/cancel", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["has_changes"])

	values, err := h.prefs.GetByFields(context.Background(), []string{panels.PrefAPIHeaderName})
	require.NoError(t, err)
	assert.Empty(t, values)

	// Other admins cannot see the session.
	other := h.createUser("root2", domain.RoleAdmin)
	rec = h.do(http.MethodGet, base, h.token(other), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"save in progress", settings.ErrSaveInProgress, apperrors.CodeSaveInProgress, http.StatusConflict},
		{"closed", settings.ErrClosed, apperrors.CodeSessionClosed, http.StatusGone},
		{"unknown field", settings.ErrUnknownField, apperrors.CodeInvalidRequest, http.StatusBadRequest},
		{"asset empty", &settings.AssetError{Op: "upload", Err: asset.ErrEmpty}, apperrors.CodeInvalidRequest, http.StatusBadRequest},
		{"asset store failure", &settings.AssetError{Op: "remove", Err: assert.AnError}, apperrors.CodeAssetRemoveFailed, http.StatusInternalServerError},
		{"commit failure", &settings.CommitError{Panel: "p", Err: assert.AnError}, apperrors.CodeCommitFailed, http.StatusInternalServerError},
		{"unknown", assert.AnError, apperrors.CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toAppError(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, got.HTTPStatus)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}
