package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"tenantdesk.io/console/internal/app/modules"
	"tenantdesk.io/console/internal/pkg/logger"
)

const stopTimeout = 10 * time.Second

// Start launches the River client, if any, then every module that has a
// background loop.
func (a *Application) Start(ctx context.Context) error {
	if rc := a.riverClient(); rc != nil {
		if err := rc.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
	}
	started := 0
	for _, mod := range a.Modules {
		s, ok := mod.(modules.Starter)
		if !ok {
			continue
		}
		if err := s.Start(ctx); err != nil {
			return fmt.Errorf("start module %s: %w", mod.Name(), err)
		}
		started++
	}
	logger.Info("Background services started",
		zap.Bool("river", a.riverClient() != nil),
		zap.Int("modules", started))
	return nil
}

// Shutdown stops job processing, then modules in reverse registration
// order, then pools and storage. Safe on a nil Application.
func (a *Application) Shutdown() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if rc := a.riverClient(); rc != nil {
		if err := rc.Stop(ctx); err != nil {
			logger.Warn("River client stop failed", zap.Error(err))
		}
	}

	for i := len(a.Modules) - 1; i >= 0; i-- {
		mod := a.Modules[i]
		if mod == nil {
			continue
		}
		if err := mod.Shutdown(ctx); err != nil {
			logger.Warn("Module shutdown failed", zap.String("module", mod.Name()), zap.Error(err))
		}
	}

	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	logger.Info("Application stopped")
}

func (a *Application) riverClient() *river.Client[pgx.Tx] {
	if a.DB == nil {
		return nil
	}
	return a.DB.RiverClient
}
