package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantdesk.io/console/internal/config"
)

func TestBuildCORSConfig(t *testing.T) {
	tests := []struct {
		name            string
		server          config.ServerConfig
		wantAllowAll    bool
		wantCredentials bool
		wantOrigins     []string
	}{
		{
			name:            "empty list uses local dev origins",
			server:          config.ServerConfig{AllowCredentials: true},
			wantCredentials: true,
			wantOrigins:     defaultAllowedOrigins,
		},
		{
			name: "wildcard is dropped without the unsafe flag",
			server: config.ServerConfig{
				AllowedOrigins:   []string{"*", " https://desk.example.com "},
				AllowCredentials: true,
			},
			wantCredentials: true,
			wantOrigins:     []string{"https://desk.example.com"},
		},
		{
			name:        "wildcard alone falls back to defaults",
			server:      config.ServerConfig{AllowedOrigins: []string{"*", " "}},
			wantOrigins: defaultAllowedOrigins,
		},
		{
			name: "unsafe wildcard allows all and disables credentials",
			server: config.ServerConfig{
				AllowedOrigins:        []string{"*"},
				AllowCredentials:      true,
				UnsafeAllowAllOrigins: true,
			},
			wantAllowAll: true,
		},
		{
			name: "unsafe flag without wildcard keeps the list",
			server: config.ServerConfig{
				AllowedOrigins:        []string{"https://a.example.com", "https://b.example.com"},
				UnsafeAllowAllOrigins: true,
			},
			wantOrigins: []string{"https://a.example.com", "https://b.example.com"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildCORSConfig(&config.Config{Server: tt.server})
			assert.Equal(t, tt.wantAllowAll, got.AllowAllOrigins)
			assert.Equal(t, tt.wantCredentials, got.AllowCredentials)
			if tt.wantOrigins == nil {
				assert.Empty(t, got.AllowOrigins)
			} else {
				assert.Equal(t, tt.wantOrigins, got.AllowOrigins)
			}
			assert.Contains(t, got.ExposeHeaders, "ETag")
			assert.Contains(t, got.AllowMethods, "PATCH")
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(cors.New(buildCORSConfig(&config.Config{Server: config.ServerConfig{
		AllowedOrigins: []string{"https://desk.example.com"},
	}})))
	r.PATCH("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	preflight := func(origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/x", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	ok := preflight("https://desk.example.com")
	require.Equal(t, http.StatusNoContent, ok.Code)
	assert.Equal(t, "https://desk.example.com", ok.Header().Get("Access-Control-Allow-Origin"))

	denied := preflight("https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, denied.Code)
	assert.Empty(t, denied.Header().Get("Access-Control-Allow-Origin"))
}
