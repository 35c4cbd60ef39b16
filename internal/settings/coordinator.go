package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/pkg/metrics"
	"tenantdesk.io/console/internal/pkg/worker"
)

// Submitter runs tasks; *worker.Pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, task worker.Task) error
}

// CoordinatorState is the aggregate Save/Cancel binding for a container.
type CoordinatorState struct {
	HasChanges bool                 `json:"has_changes"`
	Saving     bool                 `json:"saving"`
	Panels     map[string]SaveState `json:"panels"`
}

// SaveReport describes one save cycle.
type SaveReport struct {
	Committed []string `json:"committed"`
	Failed    []string `json:"failed,omitempty"`
	Unchanged []string `json:"unchanged,omitempty"`
}

// Coordinator owns the aggregate dirty and saving state of a set of panels
// and drives their commits.
//
// At most one save cycle runs at a time. A cycle broadcasts the persist
// signal to every registered panel and ends when every panel has returned.
type Coordinator struct {
	pool Submitter
	log  *zap.Logger

	mu        sync.Mutex
	panels    []Panel
	byKey     map[string]Panel
	dirty     map[string]bool
	completed map[string]bool
	saving    bool
	closed    bool
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithPool runs panel commits on pool. Without one, commits run inline in
// registration order.
func WithPool(pool Submitter) CoordinatorOption {
	return func(c *Coordinator) { c.pool = pool }
}

// WithLogger overrides the coordinator logger.
func WithLogger(l *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = l }
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		byKey:     map[string]Panel{},
		dirty:     map[string]bool{},
		completed: map[string]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Named("settings.coordinator")
	}
	return c
}

// Register adds a panel and binds the coordinator as its reporter.
func (c *Coordinator) Register(p Panel) error {
	if p == nil {
		return fmt.Errorf("panel is nil")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.saving {
		c.mu.Unlock()
		return ErrSaveInProgress
	}
	if _, exists := c.byKey[p.Key()]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicatePanel, p.Key())
	}
	c.panels = append(c.panels, p)
	c.byKey[p.Key()] = p
	c.dirty[p.Key()] = false
	c.mu.Unlock()

	p.Bind(c)
	return nil
}

// MarkDirty records that a panel holds staged edits.
func (c *Coordinator) MarkDirty(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if _, ok := c.byKey[key]; ok {
		c.dirty[key] = true
	}
}

// SaveComplete records that a panel answered the persist signal successfully.
func (c *Coordinator) SaveComplete(key string) {
	c.mu.Lock()
	p, ok := c.byKey[key]
	closed := c.closed
	c.mu.Unlock()
	if !ok || closed {
		return
	}

	dirty := p.SaveState().Dirty

	c.mu.Lock()
	c.completed[key] = true
	c.dirty[key] = dirty
	c.mu.Unlock()
}

// Load seeds every registered panel.
func (c *Coordinator) Load(ctx context.Context) {
	for _, p := range c.Panels() {
		p.Load(ctx)
	}
}

// Stage forwards an edit to the panel registered under key.
func (c *Coordinator) Stage(key string, update State) error {
	c.mu.Lock()
	p, ok := c.byKey[key]
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrPanelNotFound, key)
	}
	return p.Stage(update)
}

// Panel returns the panel registered under key.
func (c *Coordinator) Panel(key string) (Panel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byKey[key]
	return p, ok
}

// Panels returns the registered panels in registration order.
func (c *Coordinator) Panels() []Panel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Panel(nil), c.panels...)
}

// HasChanges reports whether any panel holds staged edits.
func (c *Coordinator) HasChanges() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasChangesLocked()
}

func (c *Coordinator) hasChangesLocked() bool {
	for _, d := range c.dirty {
		if d {
			return true
		}
	}
	return false
}

// Saving reports whether a save cycle is running.
func (c *Coordinator) Saving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saving
}

// State returns the aggregate flags plus every panel's own state.
func (c *Coordinator) State() CoordinatorState {
	panels := c.Panels()
	c.mu.Lock()
	st := CoordinatorState{
		HasChanges: c.hasChangesLocked(),
		Saving:     c.saving,
		Panels:     make(map[string]SaveState, len(panels)),
	}
	c.mu.Unlock()
	for _, p := range panels {
		st.Panels[p.Key()] = p.SaveState()
	}
	return st
}

// RequestSave runs one save cycle.
//
// Without staged changes it returns an empty report. While another cycle is
// running it returns ErrSaveInProgress. Every dirty panel is validated before
// any commit; violations come back as one *ValidationError and nothing is
// persisted. Commit failures come back joined, each a *CommitError, and the
// failing panels stay dirty.
func (c *Coordinator) RequestSave(ctx context.Context) (SaveReport, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return SaveReport{}, ErrClosed
	}
	if c.saving {
		c.mu.Unlock()
		metrics.SaveCyclesTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return SaveReport{}, ErrSaveInProgress
	}
	if !c.hasChangesLocked() {
		c.mu.Unlock()
		metrics.SaveCyclesTotal.WithLabelValues(metrics.ResultNoop).Inc()
		return SaveReport{}, nil
	}
	c.saving = true
	c.completed = map[string]bool{}
	panels := append([]Panel(nil), c.panels...)
	c.mu.Unlock()

	if err := c.validate(panels); err != nil {
		c.finish(panels)
		metrics.SaveCyclesTotal.WithLabelValues(metrics.ResultRejected).Inc()
		return SaveReport{}, err
	}

	wasDirty := make([]bool, len(panels))
	for i, p := range panels {
		wasDirty[i] = p.SaveState().Dirty
	}

	// Commits must not be abandoned when the caller goes away.
	commitCtx := context.WithoutCancel(ctx)
	errs := make([]error, len(panels))
	var wg sync.WaitGroup
	for i, p := range panels {
		wg.Add(1)
		task := func(ctx context.Context) {
			defer wg.Done()
			errs[i] = p.Commit(ctx)
		}
		if c.pool == nil {
			task(commitCtx)
			continue
		}
		if err := c.pool.Submit(commitCtx, task); err != nil {
			wg.Done()
			errs[i] = &CommitError{Panel: p.Key(), Err: err}
		}
	}
	wg.Wait()

	c.finish(panels)

	var report SaveReport
	completed, closed := c.takeCompleted()
	for i, p := range panels {
		switch {
		case errs[i] != nil:
			report.Failed = append(report.Failed, p.Key())
		case !closed && !completed[p.Key()]:
			// A panel that returned without signalling completion is
			// treated as failed so its edits are not reported as saved.
			// Closed panels stop reporting, so the check is skipped then.
			errs[i] = &CommitError{Panel: p.Key(), Err: errNoCompletion}
			report.Failed = append(report.Failed, p.Key())
		case wasDirty[i]:
			report.Committed = append(report.Committed, p.Key())
		default:
			report.Unchanged = append(report.Unchanged, p.Key())
		}
	}

	err := foldCommitErrors(errs)
	if err != nil {
		metrics.SaveCyclesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		c.log.Warn("Save cycle finished with failures",
			zap.Strings("committed", report.Committed),
			zap.Strings("failed", report.Failed),
		)
		return report, err
	}
	metrics.SaveCyclesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	c.log.Debug("Save cycle finished", zap.Strings("committed", report.Committed))
	return report, nil
}

// foldCommitErrors merges the violations of panels that rejected their own
// snapshot into one *ValidationError and joins it with the commit failures.
func foldCommitErrors(errs []error) error {
	rejected := &ValidationError{}
	var failed []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		var ve *ValidationError
		if errors.As(err, &ve) {
			rejected.Merge("", ve)
			continue
		}
		failed = append(failed, err)
	}
	if err := rejected.OrNil(); err != nil {
		failed = append([]error{err}, failed...)
	}
	return errors.Join(failed...)
}

func (c *Coordinator) validate(panels []Panel) error {
	merged := &ValidationError{}
	for _, p := range panels {
		if !p.SaveState().Dirty {
			continue
		}
		err := p.Validate()
		if err == nil {
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return fmt.Errorf("validate panel %s: %w", p.Key(), err)
		}
		merged.Merge(p.Key(), ve)
	}
	return merged.OrNil()
}

// takeCompleted returns the panels that signalled SaveComplete during the
// cycle that just ended, and whether the coordinator was closed meanwhile.
func (c *Coordinator) takeCompleted() (map[string]bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	done := c.completed
	c.completed = map[string]bool{}
	return done, c.closed
}

// finish folds the panels' own dirty flags and ends the cycle.
func (c *Coordinator) finish(panels []Panel) {
	states := make(map[string]bool, len(panels))
	for _, p := range panels {
		states[p.Key()] = p.SaveState().Dirty
	}
	c.mu.Lock()
	for k, d := range states {
		c.dirty[k] = d
	}
	c.saving = false
	c.mu.Unlock()
}

// Cancel discards staged edits in every panel. It is rejected mid-cycle.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.saving {
		c.mu.Unlock()
		return ErrSaveInProgress
	}
	panels := append([]Panel(nil), c.panels...)
	c.mu.Unlock()

	for _, p := range panels {
		p.Revert()
	}

	c.mu.Lock()
	for k := range c.dirty {
		c.dirty[k] = false
	}
	c.mu.Unlock()
	return nil
}

// Close detaches every panel. In-flight commits finish on their own.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	panels := append([]Panel(nil), c.panels...)
	c.mu.Unlock()

	for _, p := range panels {
		p.Close()
	}
}

// Closed reports whether Close was called.
func (c *Coordinator) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
