package modules

import (
	"github.com/riverqueue/river"

	"tenantdesk.io/console/internal/account"
	"tenantdesk.io/console/internal/api/handlers"
	"tenantdesk.io/console/internal/asset"
	"tenantdesk.io/console/internal/jobs"
)

// AccountModule owns the self and admin account flows and profile pictures.
type AccountModule struct {
	noop
	infra *Infrastructure
	self  *account.SelfFlow
	admin *account.AdminFlow
	asset asset.Deps
}

func NewAccountModule(infra *Infrastructure) *AccountModule {
	cfg := infra.Config
	deps := account.Deps{
		Users:     infra.Stores.Users,
		Cache:     infra.Cache,
		Notices:   infra.Notices,
		Events:    infra.Events,
		Pool:      infra.Pools.Commit,
		Languages: cfg.Settings.SupportedLanguages,
	}
	return &AccountModule{
		infra: infra,
		self:  account.NewSelfFlow(deps),
		admin: account.NewAdminFlow(deps),
		asset: asset.Deps{
			Store:   infra.Stores.Assets,
			Notices: infra.Notices,
			Events:  infra.Events,
			Options: asset.Options{
				MaxBytes:     cfg.Assets.MaxUploadBytes,
				AllowedTypes: cfg.Assets.AllowedContentTypes,
			},
		},
	}
}

func (m *AccountModule) Name() string { return "account" }

func (m *AccountModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Users = m.infra.Stores.Users
	deps.Cache = m.infra.Cache
	deps.Self = m.self
	deps.Admin = m.admin
	deps.Assets = m.asset
}

// RegisterWorkers registers the purge of superseded profile pictures.
func (m *AccountModule) RegisterWorkers(workers *river.Workers) {
	river.AddWorker(workers, jobs.NewAssetPurgeWorker(m.infra.Stores.Assets, m.infra.Config.River.AssetRetention))
}
