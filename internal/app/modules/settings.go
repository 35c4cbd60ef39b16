package modules

import (
	"context"
	"fmt"
	"time"

	"tenantdesk.io/console/internal/api/handlers"
	"tenantdesk.io/console/internal/settings"
	"tenantdesk.io/console/internal/settings/panels"
)

// SettingsModule owns the panel registry and the admin edit sessions.
type SettingsModule struct {
	noop
	infra    *Infrastructure
	registry *settings.PanelRegistry
	sessions *settings.SessionManager
}

func NewSettingsModule(infra *Infrastructure) (*SettingsModule, error) {
	registry := settings.NewPanelRegistry()
	if err := panels.Register(registry); err != nil {
		return nil, fmt.Errorf("register panels: %w", err)
	}
	sessions := settings.NewSessionManager(registry, settings.Deps{
		Preferences: infra.Stores.Preferences,
		System:      infra.Stores.System,
	}, infra.Pools.Commit, infra.Config.Settings.SessionTTL)

	return &SettingsModule{infra: infra, registry: registry, sessions: sessions}, nil
}

func (m *SettingsModule) Name() string { return "settings" }

func (m *SettingsModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Registry = m.registry
	deps.Sessions = m.sessions
}

// Start runs the idle-session janitor on the general pool until shutdown.
func (m *SettingsModule) Start(context.Context) error {
	interval := janitorInterval(m.infra.Config.Settings.SessionTTL)
	return m.infra.Pools.SubmitDetached(func(ctx context.Context) {
		m.sessions.Run(ctx, interval)
	})
}

func (m *SettingsModule) Shutdown(context.Context) error {
	m.sessions.CloseAll()
	return nil
}

// janitorInterval sweeps four times per TTL, at most once a minute.
func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return interval
}
