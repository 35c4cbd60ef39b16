package settings

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"go.uber.org/zap"

	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/pkg/metrics"
)

// State is a panel's local configuration values keyed by field name.
type State map[string]any

// Clone returns a shallow copy.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return maps.Clone(s)
}

// Status is the panel state machine position.
type Status string

const (
	StatusClean      Status = "clean"
	StatusDirty      Status = "dirty"
	StatusCommitting Status = "committing"
)

// SaveState is the per-panel flags exposed to containers.
type SaveState struct {
	Status     Status `json:"status"`
	Dirty      bool   `json:"dirty"`
	Persisting bool   `json:"persisting"`
	LastError  string `json:"last_error,omitempty"`
	LoadFailed bool   `json:"load_failed,omitempty"`
}

// Reporter receives panel notifications. The Coordinator implements it.
type Reporter interface {
	MarkDirty(key string)
	SaveComplete(key string)
}

// Panel is an independently loadable and committable unit of settings.
type Panel interface {
	Key() string
	Fields() []string
	Bind(r Reporter)
	Load(ctx context.Context)
	Stage(update State) error
	Snapshot() State
	SaveState() SaveState
	Validate() error
	Commit(ctx context.Context) error
	Revert()
	Close()
}

// PanelBackend supplies the domain-specific half of a panel.
type PanelBackend interface {
	// Seed fetches current values for the governed keys.
	Seed(ctx context.Context) (State, error)
	// Defaults is the state used when Seed fails.
	Defaults() State
	// Validate checks state before any backend call. It returns a
	// *ValidationError or nil.
	Validate(state State) error
	// Persist translates state into backend calls.
	Persist(ctx context.Context, state State) error
}

// StagedPanel implements Panel around a PanelBackend.
//
// Edits are staged locally and only reach the backend from Commit. Edits made
// while a commit is running keep the panel dirty after that commit succeeds.
// After Close, an in-flight commit still runs to completion but its outcome
// is no longer applied to local state.
type StagedPanel struct {
	key     string
	fields  []string
	backend PanelBackend
	log     *zap.Logger

	mu         sync.Mutex
	reporter   Reporter
	baseline   State
	local      State
	status     Status
	generation uint64
	lastErr    error
	loadFailed bool
	closed     bool
}

// NewStagedPanel creates a clean panel seeded with the backend defaults.
func NewStagedPanel(key string, fields []string, backend PanelBackend) *StagedPanel {
	defaults := backend.Defaults().Clone()
	return &StagedPanel{
		key:      key,
		fields:   append([]string(nil), fields...),
		backend:  backend,
		log:      logger.Named("settings.panel").With(zap.String("panel", key)),
		baseline: defaults,
		local:    defaults.Clone(),
		status:   StatusClean,
	}
}

func (p *StagedPanel) Key() string { return p.key }

func (p *StagedPanel) Fields() []string { return append([]string(nil), p.fields...) }

// Bind attaches the reporter notified on edits and successful commits.
func (p *StagedPanel) Bind(r Reporter) {
	p.mu.Lock()
	p.reporter = r
	p.mu.Unlock()
}

// Load seeds local state from the backend. A failed seed falls back to
// defaults and is only logged.
func (p *StagedPanel) Load(ctx context.Context) {
	state, err := p.backend.Seed(ctx)
	loadFailed := false
	if err != nil {
		lerr := &LoadError{Panel: p.key, Err: err}
		p.log.Warn("Panel load failed, using defaults", zap.Error(lerr))
		state = p.backend.Defaults()
		loadFailed = true
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.baseline = state.Clone()
	p.local = state.Clone()
	p.status = StatusClean
	p.lastErr = nil
	p.loadFailed = loadFailed
}

// Stage merges update into local state and reports the panel dirty.
// Keys outside Fields are rejected unless read-only prefixed.
func (p *StagedPanel) Stage(update State) error {
	for k := range update {
		if !p.governs(k) && !IsReadOnlyName(k) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownField, p.key, k)
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	maps.Copy(p.local, update)
	p.generation++
	if p.status == StatusClean {
		p.status = StatusDirty
	}
	r := p.reporter
	p.mu.Unlock()

	if r != nil {
		r.MarkDirty(p.key)
	}
	return nil
}

func (p *StagedPanel) governs(key string) bool {
	for _, f := range p.fields {
		if f == key {
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the local state.
func (p *StagedPanel) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local.Clone()
}

func (p *StagedPanel) SaveState() SaveState {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := SaveState{
		Status:     p.status,
		Dirty:      p.status != StatusClean,
		Persisting: p.status == StatusCommitting,
		LoadFailed: p.loadFailed,
	}
	if p.lastErr != nil {
		s.LastError = p.lastErr.Error()
	}
	return s
}

// Validate runs the backend checks against the local state.
func (p *StagedPanel) Validate() error {
	return p.backend.Validate(p.Snapshot())
}

// validateSnapshot returns the backend's violations tagged with the panel key.
// Non-validation errors from the backend are reported as a single violation.
func (p *StagedPanel) validateSnapshot(snapshot State) *ValidationError {
	err := p.backend.Validate(snapshot)
	if err == nil {
		return nil
	}
	out := &ValidationError{}
	var ve *ValidationError
	if errors.As(err, &ve) {
		if ve.Empty() {
			return nil
		}
		out.Merge(p.key, ve)
		return out
	}
	out.Violations = append(out.Violations, FieldViolation{Panel: p.key, Rule: "invalid", Message: err.Error()})
	return out
}

// Commit answers the persist signal. A clean panel reports completion without
// calling the backend. The snapshot handed to the backend is validated first.
// On rejection or failure the panel stays dirty and does not report.
func (p *StagedPanel) Commit(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.status == StatusCommitting {
		p.mu.Unlock()
		return ErrSaveInProgress
	}
	if p.status == StatusClean {
		r := p.reporter
		p.mu.Unlock()
		if r != nil {
			r.SaveComplete(p.key)
		}
		return nil
	}
	snapshot := p.local.Clone()
	generation := p.generation
	p.status = StatusCommitting
	p.mu.Unlock()

	// Edits may land between the coordinator's validation pass and here, so
	// the exact snapshot being persisted is checked again.
	if ve := p.validateSnapshot(snapshot); ve != nil {
		p.mu.Lock()
		if !p.closed {
			p.status = StatusDirty
			p.lastErr = ve
		}
		p.mu.Unlock()
		metrics.PanelCommitsTotal.WithLabelValues(p.key, metrics.ResultRejected).Inc()
		p.log.Info("Panel commit rejected by validation", zap.Strings("fields", ve.Fields()))
		return ve
	}

	err := p.backend.Persist(ctx, snapshot)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if err != nil {
			p.log.Warn("Commit failed after panel closed", zap.Error(err))
		}
		return err
	}
	if err != nil {
		var ce *CommitError
		if !errors.As(err, &ce) {
			ce = &CommitError{Panel: p.key, Err: err}
		}
		p.status = StatusDirty
		p.lastErr = ce
		p.mu.Unlock()

		metrics.PanelCommitsTotal.WithLabelValues(p.key, metrics.ResultFailure).Inc()
		p.log.Warn("Panel commit failed", zap.Error(err))
		return ce
	}

	p.baseline = snapshot
	p.lastErr = nil
	if p.generation == generation {
		p.status = StatusClean
	} else {
		p.status = StatusDirty
	}
	r := p.reporter
	p.mu.Unlock()

	metrics.PanelCommitsTotal.WithLabelValues(p.key, metrics.ResultSuccess).Inc()
	if r != nil {
		r.SaveComplete(p.key)
	}
	return nil
}

// Revert discards staged edits back to the last loaded or committed state.
func (p *StagedPanel) Revert() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.status == StatusCommitting {
		return
	}
	p.local = p.baseline.Clone()
	p.status = StatusClean
	p.lastErr = nil
	p.generation++
}

// Close stops local state updates. It does not cancel an in-flight commit.
func (p *StagedPanel) Close() {
	p.mu.Lock()
	p.closed = true
	p.reporter = nil
	p.mu.Unlock()
}
