// Package app is the composition root. Bootstrap only wires modules together;
// behavior lives in the packages it composes.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"

	"tenantdesk.io/console/internal/api/handlers"
	"tenantdesk.io/console/internal/app/modules"
	"tenantdesk.io/console/internal/config"
	"tenantdesk.io/console/internal/infrastructure"
	"tenantdesk.io/console/internal/jobs"
	"tenantdesk.io/console/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Modules []modules.Module
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	settingsModule, err := modules.NewSettingsModule(infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init settings module: %w", err)
	}
	allModules := []modules.Module{
		modules.NewGovernanceModule(infra),
		modules.NewAccountModule(infra),
		settingsModule,
	}

	workers := river.NewWorkers()
	for _, mod := range allModules {
		mod.RegisterWorkers(workers)
	}
	var periodic []*river.PeriodicJob
	if infra.DB != nil {
		periodic = append(periodic, jobs.AssetPurgeJob(cfg.River.PurgeInterval))
	}
	if err := infra.InitRiver(workers, periodic); err != nil {
		infra.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}

	serverDeps := modules.NewServerDeps(cfg, infra, allModules)
	server := handlers.NewServer(serverDeps)

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server, serverDeps.JWTCfg),
		DB:      infra.DB,
		Pools:   infra.Pools,
		Modules: allModules,
	}, nil
}
