package account

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"tenantdesk.io/console/internal/domain"
	"tenantdesk.io/console/internal/notification"
	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/sessioncache"
	"tenantdesk.io/console/internal/settings"
)

// AdminPanelKey is the panel key of the admin user form.
const AdminPanelKey = "user"

var (
	// ErrNotEditable: the actor's role may not edit the subject.
	ErrNotEditable = errors.New("user not editable by actor")
	// ErrRoleNotAssignable: the actor may not hand out the requested role.
	ErrRoleNotAssignable = errors.New("role not assignable by actor")
)

// Actor is the administrator performing an edit.
type Actor struct {
	ID   int64
	Role domain.Role
}

// AdminConstraints is the constraint table of the admin user form.
func AdminConstraints() *settings.ConstraintTable {
	return settings.NewConstraintTable().
		Set(settings.FieldUsername, settings.UsernameRule, settings.ModeLocal, settings.ModeSSOOptOut).
		Set(settings.FieldUsername, settings.LockedRule, settings.ModeSSO).
		Set(settings.FieldPassword, settings.OptionalPasswordRule, settings.ModeLocal).
		Set(settings.FieldPassword, settings.RequiredPasswordRule, settings.ModeSSOOptOut).
		Set(settings.FieldPassword, settings.LockedRule, settings.ModeSSO).
		Set(settings.FieldRole, settings.RoleRule)
}

// AdminFlow edits another user's account on behalf of a manager or admin.
type AdminFlow struct {
	deps  Deps
	table *settings.ConstraintTable
	log   *zap.Logger
}

func NewAdminFlow(deps Deps) *AdminFlow {
	return &AdminFlow{
		deps:  deps,
		table: AdminConstraints(),
		log:   logger.Named("account.admin"),
	}
}

// Open fetches the subject and returns an edit seeded from it. The quota
// composite starts enabled when a limit is stored, with limit 10 otherwise.
func (f *AdminFlow) Open(ctx context.Context, actor Actor, userID int64) (*Edit, error) {
	subject, err := f.deps.Users.FetchUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !domain.CanEdit(actor.Role, subject.Role) {
		return nil, fmt.Errorf("%w: %s cannot edit %s", ErrNotEditable, actor.Role, subject.Role)
	}
	subject = subject.Clone()

	seed := settings.State{
		settings.FieldUsername: subject.Username,
		settings.FieldRole:     string(subject.Role),
		StateSSOEnabled:        subject.UsesSocialProvider,
		StateQuota:             settings.QuotaFromLimit(subject.DailyMessageLimit),
	}

	backend := &editBackend{
		subject:   subject,
		seed:      seed,
		table:     f.table,
		withQuota: true,
		extra: func(fields []settings.Field) error {
			return checkAssignable(actor, subject, fields)
		},
		commit: func(ctx context.Context, patch settings.PendingPatch) error {
			return f.commit(ctx, actor, subject, patch)
		},
	}
	fields := append(f.table.Fields(), StateSSOEnabled, StateQuota)
	return newEdit(AdminPanelKey, subject, fields, backend, f.deps.Pool)
}

// Submit opens an edit, stages form, saves and closes.
func (f *AdminFlow) Submit(ctx context.Context, actor Actor, userID int64, form Form) (settings.PendingPatch, error) {
	edit, err := f.Open(ctx, actor, userID)
	if err != nil {
		return nil, err
	}
	defer edit.Close()

	if err := edit.Stage(form); err != nil {
		return nil, err
	}
	return edit.Save(ctx)
}

// checkAssignable rejects a role change the actor may not make. Resubmitting
// the subject's current role is always allowed.
func checkAssignable(actor Actor, subject *domain.AccountSubject, fields []settings.Field) error {
	v, ok := fieldValue(fields, settings.FieldRole)
	if !ok {
		return nil
	}
	raw, _ := v.(string)
	role, err := domain.ParseRole(raw)
	if err != nil {
		return err
	}
	if role == subject.Role {
		return nil
	}
	if !domain.CanAssign(actor.Role, role) {
		return fmt.Errorf("%w: %s cannot assign %s", ErrRoleNotAssignable, actor.Role, role)
	}
	return nil
}

func (f *AdminFlow) commit(ctx context.Context, actor Actor, subject *domain.AccountSubject, patch settings.PendingPatch) error {
	if err := f.deps.Users.UpdateUser(ctx, subject.ID, patch); err != nil {
		f.deps.notify(ctx, notification.UpdateFailed(err))
		return fmt.Errorf("update user %d: %w", subject.ID, err)
	}

	if actor.ID == subject.ID && f.deps.Cache != nil {
		if name, ok := patch.String(settings.FieldUsername); ok {
			if err := f.deps.Cache.Update(ctx, subject.ID, sessioncache.Partial{Username: &name}); err != nil {
				f.log.Warn("Session cache update failed", zap.Int64("user_id", subject.ID), zap.Error(err))
			}
		}
	}

	username := subject.Username
	if name, ok := patch.String(settings.FieldUsername); ok {
		username = name
	}
	f.deps.notify(ctx, notification.UserUpdated(username))
	f.deps.dispatch(ctx, f.log, domain.EventUserUpdated,
		strconv.FormatInt(subject.ID, 10), strconv.FormatInt(actor.ID, 10),
		domain.AccountPatchPayload{UserID: subject.ID, Fields: patch.Keys()})
	return nil
}
