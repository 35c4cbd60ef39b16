package modules

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"tenantdesk.io/console/internal/api/handlers"
	"tenantdesk.io/console/internal/api/middleware"
	"tenantdesk.io/console/internal/config"
	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/settings/panels"
)

// NewServerDeps builds base server deps then lets each module contribute explicit wiring.
func NewServerDeps(cfg *config.Config, infra *Infrastructure, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		Events:  infra.Events,
		Notices: infra.Notices,
		JWTCfg:  JWTConfig(cfg, infra),
		Ready:   infra.Ready,
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		mod.ContributeServerDeps(&deps)
	}
	return deps
}

// JWTConfig derives token settings. The custom API header configured in the
// auth header panel is looked up per request, so a saved change applies
// without a restart.
func JWTConfig(cfg *config.Config, infra *Infrastructure) middleware.JWTConfig {
	prefs := infra.Stores.Preferences
	return middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSigningKey),
		Issuer:     cfg.Security.JWTIssuer,
		ExpiresIn:  cfg.Security.JWTExpiresIn,
		HeaderName: func(ctx context.Context) string {
			values, err := prefs.GetByFields(ctx, []string{panels.PrefAPIHeaderName})
			if err != nil {
				logger.Warn("Read API header preference failed", zap.Error(err))
				return ""
			}
			name, _ := values[panels.PrefAPIHeaderName].(string)
			return strings.TrimSpace(name)
		},
	}
}
