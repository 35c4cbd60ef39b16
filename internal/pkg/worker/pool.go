// Package worker runs background work on bounded ants pools.
//
// Code outside main never starts a bare goroutine; it submits a Task to a
// Pool so that panics are recovered and shutdown can wait for it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"tenantdesk.io/console/internal/pkg/logger"
)

var ErrPoolClosed = errors.New("worker pool is closed")

const releaseTimeout = 30 * time.Second

type Task func(ctx context.Context)

// Pool is a named ants pool whose tasks observe a context.
type Pool struct {
	name string
	ants *ants.Pool
}

// PoolConfig sizes the pools. Zero values fall back to DefaultPoolConfig.
type PoolConfig struct {
	GeneralPoolSize int
	CommitPoolSize  int
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{GeneralPoolSize: 32, CommitPoolSize: 64}
}

// Pools groups the service's pools.
//
// General runs housekeeping such as session expiry. Commit runs the panel
// commits a settings save broadcasts.
type Pools struct {
	General *Pool
	Commit  *Pool

	// life is cancelled by Shutdown and bounds detached tasks.
	life context.Context
	stop context.CancelFunc
}

func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	def := DefaultPoolConfig()
	if cfg.GeneralPoolSize <= 0 {
		cfg.GeneralPoolSize = def.GeneralPoolSize
	}
	if cfg.CommitPoolSize <= 0 {
		cfg.CommitPoolSize = def.CommitPoolSize
	}

	general, err := newPool("general", cfg.GeneralPoolSize, 10*time.Second)
	if err != nil {
		return nil, err
	}
	commit, err := newPool("commit", cfg.CommitPoolSize, 30*time.Second)
	if err != nil {
		general.ants.Release()
		return nil, err
	}

	life, stop := context.WithCancel(ctx)
	return &Pools{General: general, Commit: commit, life: life, stop: stop}, nil
}

func newPool(name string, size int, idle time.Duration) (*Pool, error) {
	p, err := ants.NewPool(size,
		ants.WithExpiryDuration(idle),
		ants.WithPanicHandler(func(v interface{}) {
			logger.Error("Worker panic recovered",
				zap.String("pool", name),
				zap.Any("panic", v),
				zap.Stack("stack"),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s pool: %w", name, err)
	}
	return &Pool{name: name, ants: p}, nil
}

func (p *Pool) Name() string { return p.name }

// Submit queues task. It fails fast when ctx is already done, and a queued
// task whose ctx ends before it runs is dropped.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.submit(ctx, task)
}

func (p *Pool) submit(ctx context.Context, task Task) error {
	err := p.ants.Submit(func() {
		if ctx.Err() != nil {
			logger.Debug("Task dropped, context done", zap.String("pool", p.name), zap.Error(ctx.Err()))
			return
		}
		task(ctx)
	})
	if errors.Is(err, ants.ErrPoolClosed) {
		return ErrPoolClosed
	}
	return err
}

// SubmitDetached runs task on the general pool under the service lifetime
// instead of a request context.
func (p *Pools) SubmitDetached(task Task) error {
	return p.General.submit(p.life, task)
}

// Shutdown cancels detached tasks and waits for running ones.
func (p *Pools) Shutdown() {
	p.stop()
	for _, pool := range []*Pool{p.General, p.Commit} {
		if err := pool.ants.ReleaseTimeout(releaseTimeout); err != nil {
			logger.Warn("Worker pool release timed out", zap.String("pool", pool.name), zap.Error(err))
		}
	}
}

// Stats is a point-in-time view of one pool.
type Stats struct {
	Running int
	Free    int
	Cap     int
}

func (p *Pool) Stats() Stats {
	return Stats{Running: p.ants.Running(), Free: p.ants.Free(), Cap: p.ants.Cap()}
}

var (
	runningDesc = prometheus.NewDesc("tenantdesk_worker_pool_running",
		"Goroutines currently running tasks.", []string{"pool"}, nil)
	capDesc = prometheus.NewDesc("tenantdesk_worker_pool_capacity",
		"Configured pool size.", []string{"pool"}, nil)
)

// Describe implements prometheus.Collector.
func (p *Pools) Describe(ch chan<- *prometheus.Desc) {
	ch <- runningDesc
	ch <- capDesc
}

// Collect implements prometheus.Collector.
func (p *Pools) Collect(ch chan<- prometheus.Metric) {
	for _, pool := range []*Pool{p.General, p.Commit} {
		s := pool.Stats()
		ch <- prometheus.MustNewConstMetric(runningDesc, prometheus.GaugeValue, float64(s.Running), pool.name)
		ch <- prometheus.MustNewConstMetric(capDesc, prometheus.GaugeValue, float64(s.Cap), pool.name)
	}
}
