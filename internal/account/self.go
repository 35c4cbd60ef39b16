package account

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"tenantdesk.io/console/internal/domain"
	"tenantdesk.io/console/internal/notification"
	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/sessioncache"
	"tenantdesk.io/console/internal/settings"
)

// SelfPanelKey is the panel key of the self-service account form.
const SelfPanelKey = "account"

// Deps are the collaborators shared by both flows.
type Deps struct {
	Users     UserStore
	Cache     sessioncache.Cache
	Notices   notification.Sink
	Events    *domain.EventDispatcher
	Pool      settings.Submitter
	Languages []string
}

func (d Deps) notify(ctx context.Context, n notification.Notice) {
	if d.Notices != nil {
		d.Notices.Notify(ctx, n)
	}
}

func (d Deps) dispatch(ctx context.Context, log *zap.Logger, eventType domain.EventType, aggregateID, actor string, payload any) {
	if d.Events == nil {
		return
	}
	ev, err := domain.NewEvent(eventType, domain.AggregateUser, aggregateID, actor, payload)
	if err != nil {
		log.Warn("Build domain event failed", zap.Error(err))
		return
	}
	if err := d.Events.Dispatch(ctx, ev); err != nil {
		log.Warn("Dispatch domain event failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}

// SelfConstraints is the constraint table of the self-service form.
func SelfConstraints(languages []string) *settings.ConstraintTable {
	return settings.NewConstraintTable().
		Set(settings.FieldUsername, settings.UsernameRule, settings.ModeLocal, settings.ModeSSOOptOut).
		Set(settings.FieldUsername, settings.LockedRule, settings.ModeSSO).
		Set(settings.FieldPassword, settings.OptionalPasswordRule, settings.ModeLocal).
		Set(settings.FieldPassword, settings.RequiredPasswordRule, settings.ModeSSOOptOut).
		Set(settings.FieldPassword, settings.LockedRule, settings.ModeSSO).
		Set(settings.FieldUserLang, settings.LanguageRule(languages))
}

// SelfFlow edits the signed-in user's own account.
type SelfFlow struct {
	deps  Deps
	table *settings.ConstraintTable
	log   *zap.Logger
}

func NewSelfFlow(deps Deps) *SelfFlow {
	return &SelfFlow{
		deps:  deps,
		table: SelfConstraints(deps.Languages),
		log:   logger.Named("account.self"),
	}
}

// Open fetches a fresh subject snapshot and returns an edit seeded from it.
func (f *SelfFlow) Open(ctx context.Context, userID int64) (*Edit, error) {
	subject, err := f.deps.Users.FetchUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	subject = subject.Clone()

	seed := settings.State{
		settings.FieldUsername: subject.Username,
		StateSSOEnabled:        subject.UsesSocialProvider,
	}
	if subject.UserLang != "" {
		seed[settings.FieldUserLang] = subject.UserLang
	}

	backend := &editBackend{
		subject: subject,
		seed:    seed,
		table:   f.table,
		commit: func(ctx context.Context, patch settings.PendingPatch) error {
			return f.commit(ctx, subject, patch)
		},
	}
	fields := append(f.table.Fields(), StateSSOEnabled)
	return newEdit(SelfPanelKey, subject, fields, backend, f.deps.Pool)
}

// Submit opens an edit, stages form, saves and closes.
func (f *SelfFlow) Submit(ctx context.Context, userID int64, form Form) (settings.PendingPatch, error) {
	edit, err := f.Open(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer edit.Close()

	if err := edit.Stage(form); err != nil {
		return nil, err
	}
	return edit.Save(ctx)
}

func (f *SelfFlow) commit(ctx context.Context, subject *domain.AccountSubject, patch settings.PendingPatch) error {
	if err := f.deps.Users.UpdateUser(ctx, subject.ID, patch); err != nil {
		f.deps.notify(ctx, notification.UpdateFailed(err))
		return fmt.Errorf("update user %d: %w", subject.ID, err)
	}

	if f.deps.Cache != nil {
		var partial sessioncache.Partial
		if name, ok := patch.String(settings.FieldUsername); ok {
			partial.Username = &name
		}
		if lang, ok := patch.String(settings.FieldUserLang); ok {
			partial.UserLang = &lang
		}
		if partial.Username != nil || partial.UserLang != nil {
			if err := f.deps.Cache.Update(ctx, subject.ID, partial); err != nil {
				f.log.Warn("Session cache update failed", zap.Int64("user_id", subject.ID), zap.Error(err))
			}
		}
	}

	f.deps.notify(ctx, notification.ProfileUpdated())
	id := strconv.FormatInt(subject.ID, 10)
	f.deps.dispatch(ctx, f.log, domain.EventAccountUpdated, id, id,
		domain.AccountPatchPayload{UserID: subject.ID, Fields: patch.Keys()})
	return nil
}
