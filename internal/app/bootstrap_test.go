package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantdesk.io/console/internal/config"
	"tenantdesk.io/console/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func memoryConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Port: 8080, ValidateRequests: true},
		Storage: config.StorageConfig{Driver: config.StorageMemory},
		Security: config.SecurityConfig{
			JWTSigningKey: strings.Repeat("k", 32),
			JWTIssuer:     "tenantdesk-test",
			JWTExpiresIn:  time.Hour,
			BcryptCost:    4,
		},
		Worker: config.WorkerConfig{GeneralPoolSize: 4, CommitPoolSize: 4},
		Settings: config.SettingsConfig{
			SessionTTL:         time.Hour,
			SupportedLanguages: []string{"en"},
		},
		Assets: config.AssetsConfig{
			MaxUploadBytes:      1024,
			AllowedContentTypes: []string{"image/png"},
		},
	}
}

func TestBootstrap_NoDB(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.Driver = config.StoragePostgres
	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     65432, // Non-existent port
		User:     "test",
		Password: "test",
		Database: "test",
		SSLMode:  "disable",
		MaxConns: 5,
		MinConns: 1,
	}

	app, err := Bootstrap(context.Background(), cfg)
	require.Error(t, err, "Bootstrap should fail without database")
	assert.Nil(t, app, "Application should be nil on bootstrap failure")
}

func TestBootstrap_MemoryStorage(t *testing.T) {
	ctx := context.Background()
	app, err := Bootstrap(ctx, memoryConfig())
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)

	assert.Nil(t, app.DB)
	require.Len(t, app.Modules, 3)
	require.NoError(t, app.Start(ctx))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "liveness is public", method: http.MethodGet, path: "/api/v1/health/live", want: http.StatusOK},
		{name: "readiness without database", method: http.MethodGet, path: "/api/v1/health/ready", want: http.StatusOK},
		{name: "me requires token", method: http.MethodGet, path: "/api/v1/me", want: http.StatusUnauthorized},
		{name: "admin requires token", method: http.MethodGet, path: "/api/v1/admin/settings/panels", want: http.StatusUnauthorized},
		{name: "login body is validated", method: http.MethodPost, path: "/api/v1/auth/login", body: `{"username":""}`, want: http.StatusBadRequest},
		{name: "unknown user", method: http.MethodPost, path: "/api/v1/auth/login", body: `{"username":"ghost","password":"pw"}`, want: http.StatusUnauthorized},
		{name: "metrics", method: http.MethodGet, path: "/metrics", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := httptest.NewRecorder()
			app.Router.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestBootstrap_MemorySeedAndLogin(t *testing.T) {
	seedFile := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seedFile, []byte(`
users:
  - {username: root, password: changeme123, role: admin}
  - {username: mia, password: changeme123, role: manager}
preferences:
  api_header_name: X-Console-Key
`), 0o600))

	cfg := memoryConfig()
	cfg.Storage.SeedFile = seedFile
	app, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Shutdown)

	login := func(username string) string {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
			strings.NewReader(`{"username":"`+username+`","password":"changeme123"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		app.Router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.NotEmpty(t, body.Token)
		return body.Token
	}
	get := func(path, header, value string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set(header, value)
		}
		w := httptest.NewRecorder()
		app.Router.ServeHTTP(w, req)
		return w.Code
	}

	rootToken := login("root")
	miaToken := login("mia")

	assert.Equal(t, http.StatusOK, get("/api/v1/admin/log-level", "Authorization", "Bearer "+rootToken))
	assert.Equal(t, http.StatusForbidden, get("/api/v1/admin/log-level", "Authorization", "Bearer "+miaToken))
	assert.Equal(t, http.StatusOK, get("/api/v1/admin/settings/panels", "Authorization", "Bearer "+miaToken))

	// The seeded api_header_name preference is accepted in place of Authorization.
	assert.Equal(t, http.StatusOK, get("/api/v1/me", "X-Console-Key", rootToken))
	assert.Equal(t, http.StatusUnauthorized, get("/api/v1/me", "X-Other-Key", rootToken))
}

func TestBootstrap_MemorySeedFileMissing(t *testing.T) {
	cfg := memoryConfig()
	cfg.Storage.SeedFile = filepath.Join(t.TempDir(), "missing.yaml")

	app, err := Bootstrap(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, app)
	assert.Contains(t, err.Error(), "load seed")
}

func TestApplication_Shutdown_Nil(t *testing.T) {
	app := &Application{}

	assert.NotPanics(t, func() {
		app.Shutdown()
	}, "Shutdown on empty Application should not panic")
}
