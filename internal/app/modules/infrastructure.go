package modules

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"tenantdesk.io/console/internal/api/handlers"
	"tenantdesk.io/console/internal/asset"
	"tenantdesk.io/console/internal/config"
	"tenantdesk.io/console/internal/domain"
	"tenantdesk.io/console/internal/governance/audit"
	"tenantdesk.io/console/internal/infrastructure"
	"tenantdesk.io/console/internal/jobs"
	"tenantdesk.io/console/internal/notification"
	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/pkg/metrics"
	"tenantdesk.io/console/internal/pkg/worker"
	"tenantdesk.io/console/internal/repository"
	"tenantdesk.io/console/internal/repository/memstore"
	"tenantdesk.io/console/internal/seed"
	"tenantdesk.io/console/internal/sessioncache"
	"tenantdesk.io/console/internal/settings"
	"tenantdesk.io/console/internal/settings/panels"
)

// UserStore is what the modules need from the user store.
type UserStore interface {
	handlers.AccountStore
	seed.UserCreator
}

// AssetStore stores profile pictures and purges superseded ones.
type AssetStore interface {
	asset.Store
	jobs.AssetPurger
}

// Stores are the persistence ports, backed by PostgreSQL or by memory.
type Stores struct {
	Users       UserStore
	Preferences settings.PreferenceStore
	System      settings.SystemConfigStore
	Assets      AssetStore
	Audit       audit.Store
}

const readyTimeout = 2 * time.Second

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config *config.Config
	// DB is nil with the memory storage driver.
	DB      *infrastructure.DatabaseClients
	Pools   *worker.Pools
	Stores  Stores
	Cache   sessioncache.Cache
	Events  *domain.EventDispatcher
	Notices notification.Sink
}

// NewInfrastructure initializes storage, pools and shared services.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	infra := &Infrastructure{
		Config: cfg,
		Cache:  sessioncache.NewMemory(),
		Events: domain.NewEventDispatcher(),
		Notices: notification.Fanout{
			notification.ContextSink{},
			notification.NewLogSink(logger.Named("notices")),
		},
	}

	switch cfg.Storage.Driver {
	case config.StorageMemory:
		infra.Stores = memoryStores(cfg)
		if cfg.Storage.SeedFile != "" {
			if err := infra.applySeed(ctx, cfg.Storage.SeedFile); err != nil {
				return nil, err
			}
		}
		logger.Warn("Using in-memory storage; data is lost on restart")
	default:
		db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("init database: %w", err)
		}
		// Dev-mode: apply schema + River queue tables on start.
		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("auto-migrate: %w", err)
			}
		}
		infra.DB = db
		infra.Stores = postgresStores(cfg, db)
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize: cfg.Worker.GeneralPoolSize,
		CommitPoolSize:  cfg.Worker.CommitPoolSize,
	})
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}
	infra.Pools = pools
	if err := metrics.Replace(pools); err != nil {
		logger.Warn("Worker pool metrics not registered", zap.Error(err))
	}

	logger.Info("Infrastructure initialized", zap.String("storage", cfg.Storage.Driver))
	return infra, nil
}

func postgresStores(cfg *config.Config, db *infrastructure.DatabaseClients) Stores {
	return Stores{
		Users:       repository.NewUserRepository(db.Pool, cfg.Security.BcryptCost),
		Preferences: repository.NewPreferenceRepository(db.Pool, panels.PreferenceKeys()),
		System:      repository.NewSystemConfigRepository(db.Pool),
		Assets:      repository.NewAssetRepository(db.Pool),
		Audit:       repository.NewAuditRepository(db.Pool),
	}
}

func memoryStores(cfg *config.Config) Stores {
	return Stores{
		Users:       memstore.NewUsers(cfg.Security.BcryptCost),
		Preferences: memstore.NewPreferences(panels.PreferenceKeys()),
		System:      memstore.NewSystem(),
		Assets:      memstore.NewAssets(),
		Audit:       memstore.NewAudit(),
	}
}

func (i *Infrastructure) applySeed(ctx context.Context, path string) error {
	f, err := seed.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	if _, err := seed.Apply(ctx, seed.Target{
		Users:       i.Stores.Users,
		Preferences: i.Stores.Preferences,
		System:      i.Stores.System,
	}, f); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	return nil
}

// InitRiver initializes the River client on top of a prepared worker
// registry. It is a no-op without a database.
func (i *Infrastructure) InitRiver(workers *river.Workers, periodic []*river.PeriodicJob) error {
	if i == nil || i.Config == nil {
		return fmt.Errorf("infrastructure is not initialized")
	}
	if i.DB == nil {
		return nil
	}
	if err := i.DB.InitRiverClient(workers, periodic, i.Config.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	return nil
}

// Ready reports whether storage answers.
func (i *Infrastructure) Ready(ctx context.Context) error {
	if i.DB == nil {
		return nil
	}
	return i.DB.Ping(ctx, readyTimeout)
}

// Close releases infra resources in reverse dependency order.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.Pools != nil {
		i.Pools.Shutdown()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}
