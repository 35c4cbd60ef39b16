package settings

import (
	"context"
	"sync"

	"tenantdesk.io/console/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

// fakeBackend is a scriptable PanelBackend.
type fakeBackend struct {
	mu          sync.Mutex
	seed        State
	seedErr     error
	defaults    State
	validate    func(State) error
	persistErrs []error
	persisted   []State
	started     chan struct{}
	release     chan struct{}
}

func (b *fakeBackend) Seed(context.Context) (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seedErr != nil {
		return nil, b.seedErr
	}
	return b.seed.Clone(), nil
}

func (b *fakeBackend) Defaults() State {
	if b.defaults == nil {
		return State{}
	}
	return b.defaults.Clone()
}

func (b *fakeBackend) Validate(s State) error {
	if b.validate == nil {
		return nil
	}
	return b.validate(s)
}

func (b *fakeBackend) Persist(_ context.Context, s State) error {
	if b.started != nil {
		b.started <- struct{}{}
	}
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.persisted = append(b.persisted, s.Clone())
	if len(b.persistErrs) > 0 {
		err := b.persistErrs[0]
		b.persistErrs = b.persistErrs[1:]
		return err
	}
	return nil
}

func (b *fakeBackend) persistCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.persisted)
}

// recordingReporter captures panel notifications.
type recordingReporter struct {
	mu        sync.Mutex
	dirty     []string
	completed []string
}

func (r *recordingReporter) MarkDirty(key string) {
	r.mu.Lock()
	r.dirty = append(r.dirty, key)
	r.mu.Unlock()
}

func (r *recordingReporter) SaveComplete(key string) {
	r.mu.Lock()
	r.completed = append(r.completed, key)
	r.mu.Unlock()
}

func (r *recordingReporter) completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed)
}
