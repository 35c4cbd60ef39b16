package account

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"tenantdesk.io/console/internal/domain"
	"tenantdesk.io/console/internal/settings"
)

// editBackend adapts an account form to settings.PanelBackend.
type editBackend struct {
	subject   *domain.AccountSubject
	seed      settings.State
	table     *settings.ConstraintTable
	withQuota bool
	// extra runs after the constraint table on the surviving fields.
	extra  func(fields []settings.Field) error
	commit func(ctx context.Context, patch settings.PendingPatch) error

	mu   sync.Mutex
	last settings.PendingPatch
}

// Seed returns the form defaults derived from the subject snapshot taken
// when the edit opened.
func (b *editBackend) Seed(context.Context) (settings.State, error) {
	return b.seed.Clone(), nil
}

func (b *editBackend) Defaults() settings.State {
	return b.seed.Clone()
}

func (b *editBackend) Validate(state settings.State) error {
	_, _, err := b.prepare(state)
	return err
}

func (b *editBackend) Persist(ctx context.Context, state settings.State) error {
	fields, policy, err := b.prepare(state)
	if err != nil {
		return err
	}
	patch := settings.Reconcile(fields, policy)
	if err := b.commit(ctx, patch); err != nil {
		return err
	}
	b.mu.Lock()
	b.last = patch
	b.mu.Unlock()
	return nil
}

func (b *editBackend) prepare(state settings.State) ([]settings.Field, settings.ReconcilePolicy, error) {
	ssoEnabled := b.subject.UsesSocialProvider
	if v, ok := state[StateSSOEnabled].(bool); ok {
		ssoEnabled = v
	}
	mode := settings.ModeFor(b.subject.UsesSocialProvider, ssoEnabled)

	var quota *settings.QuotaSetting
	if b.withQuota {
		q, err := settings.ParseQuota(state[StateQuota])
		if err != nil {
			ve := &settings.ValidationError{}
			ve.Add(settings.FieldDailyMessageLimit, "invalid", err.Error())
			return nil, settings.ReconcilePolicy{}, ve
		}
		quota = q
	}

	raw := make(map[string]any, len(state))
	for k, v := range state {
		if k == StateSSOEnabled || k == StateQuota {
			continue
		}
		raw[k] = v
	}

	fields, err := b.table.Check(mode, settings.FieldsFromMap(raw), quota)
	if err != nil {
		return nil, settings.ReconcilePolicy{}, err
	}
	if b.extra != nil {
		if err := b.extra(fields); err != nil {
			return nil, settings.ReconcilePolicy{}, err
		}
	}
	return fields, settings.ReconcilePolicy{
		SSOOptOut: mode == settings.ModeSSOOptOut,
		Quota:     quota,
	}, nil
}

func (b *editBackend) lastPatch() settings.PendingPatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Edit is one open account edit surface.
type Edit struct {
	Subject     *domain.AccountSubject
	Coordinator *settings.Coordinator

	key     string
	fields  []string
	backend *editBackend
}

func newEdit(key string, subject *domain.AccountSubject, fields []string, backend *editBackend, pool settings.Submitter) (*Edit, error) {
	var opts []settings.CoordinatorOption
	if pool != nil {
		opts = append(opts, settings.WithPool(pool))
	}
	coord := settings.NewCoordinator(opts...)
	if err := coord.Register(settings.NewStagedPanel(key, fields, backend)); err != nil {
		return nil, err
	}
	return &Edit{Subject: subject, Coordinator: coord, key: key, fields: fields, backend: backend}, nil
}

// Stage merges a submission into the edit buffer. Fields the form does not
// offer are reported as a *settings.ValidationError.
func (e *Edit) Stage(form Form) error {
	ve := &settings.ValidationError{}
	for _, f := range form.Fields {
		if f.ReadOnly || settings.IsReadOnlyName(f.Name) || slices.Contains(e.fields, f.Name) {
			continue
		}
		ve.Add(f.Name, "unknown", fmt.Sprintf("%s is not an editable field", f.Name))
	}
	if err := ve.OrNil(); err != nil {
		return err
	}
	return e.Coordinator.Stage(e.key, form.State())
}

// Save runs one save cycle and returns the patch that was persisted.
func (e *Edit) Save(ctx context.Context) (settings.PendingPatch, error) {
	if _, err := e.Coordinator.RequestSave(ctx); err != nil {
		return nil, err
	}
	return e.backend.lastPatch(), nil
}

// Close discards the edit buffer.
func (e *Edit) Close() {
	e.Coordinator.Close()
}

func fieldValue(fields []settings.Field, name string) (any, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}
