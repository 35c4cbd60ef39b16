package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tenantdesk.io/console/internal/asset"
	"tenantdesk.io/console/internal/domain"
	apperrors "tenantdesk.io/console/internal/pkg/errors"
	"tenantdesk.io/console/internal/repository"
	"tenantdesk.io/console/internal/settings"
)

func TestUsers_MergePatch(t *testing.T) {
	ctx := context.Background()
	s := NewUsers(bcrypt.MinCost)

	limit := 3
	u, err := s.Create(ctx, repository.NewUser{Username: "alice", Password: "old-password", UsesSocialProvider: true, DailyMessageLimit: &limit, UserLang: "en"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateUser(ctx, u.ID, settings.PendingPatch{
		settings.FieldPassword:          "new-password",
		settings.FieldRole:              "manager",
		settings.FieldUseSocialProvider: false,
		settings.FieldDailyMessageLimit: nil,
	}))

	got, err := s.FetchUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username, "absent keys are kept")
	assert.Equal(t, "en", got.UserLang)
	assert.Equal(t, domain.RoleManager, got.Role)
	assert.False(t, got.UsesSocialProvider)
	assert.Nil(t, got.DailyMessageLimit, "explicit null clears the quota")

	ok, err := s.VerifyPassword(ctx, u.ID, "new-password")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.UpdateUser(ctx, u.ID, settings.PendingPatch{settings.FieldDailyMessageLimit: float64(9)}))
	got, err = s.FetchUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DailyMessageLimit)
	assert.Equal(t, 9, *got.DailyMessageLimit)
}

func TestUsers_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewUsers(bcrypt.MinCost)

	a, err := s.Create(ctx, repository.NewUser{Username: "a1"})
	require.NoError(t, err)
	_, err = s.Create(ctx, repository.NewUser{Username: "b1"})
	require.NoError(t, err)

	_, err = s.Create(ctx, repository.NewUser{Username: "a1"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	assert.ErrorIs(t, s.UpdateUser(ctx, a.ID, settings.PendingPatch{settings.FieldUsername: "b1"}), apperrors.ErrConflict)
	assert.NoError(t, s.UpdateUser(ctx, a.ID, settings.PendingPatch{settings.FieldUsername: "a1"}), "own name is not a conflict")
	assert.ErrorIs(t, s.UpdateUser(ctx, 42, settings.PendingPatch{}), apperrors.ErrNotFound)
	assert.ErrorIs(t, s.UpdateUser(ctx, a.ID, settings.PendingPatch{"email": "x"}), settings.ErrUnknownField)
	assert.Error(t, s.UpdateUser(ctx, a.ID, settings.PendingPatch{settings.FieldRole: "root"}))

	_, err = s.FetchByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	found, err := s.FetchByUsername(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", found.Username)
}

func TestPreferences_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	p := NewPreferences([]string{"allowed_domain", "users_can_login_with_google"})

	require.NoError(t, p.UpdatePreferences(ctx, map[string]any{"allowed_domain": "example.com", "users_can_login_with_google": true}))
	err := p.UpdatePreferences(ctx, map[string]any{"allowed_domain": "other.org", "theme": "dark"})
	assert.ErrorIs(t, err, repository.ErrUnknownPreference)

	got, err := p.GetByFields(ctx, []string{"allowed_domain", "users_can_login_with_google", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"allowed_domain": "example.com", "users_can_login_with_google": true}, got)
}

func TestAssets_SupersedeAndPurge(t *testing.T) {
	ctx := context.Background()
	a := NewAssets()
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }

	_, err := a.UploadPfp(ctx, 1, []byte("one"), "image/png")
	require.NoError(t, err)
	second, err := a.UploadPfp(ctx, 1, []byte("two"), "image/png")
	require.NoError(t, err)

	cur, err := a.FetchPfp(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, second.ID, cur.ID)

	n, err := a.PurgeSuperseded(ctx, clock)
	require.NoError(t, err)
	assert.Zero(t, n, "cutoff is exclusive")
	n, err = a.PurgeSuperseded(ctx, clock.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, a.RemovePfp(ctx, 1))
	cur, err = a.FetchPfp(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, cur)
	_, _, err = a.ReadPfp(ctx, 1)
	assert.ErrorIs(t, err, asset.ErrNoAsset)
}

func TestAudit_NewestFirst(t *testing.T) {
	ctx := context.Background()
	a := NewAudit()
	require.NoError(t, a.Append(ctx, repository.AuditEntry{ID: "1", ResourceType: "user", ResourceID: "7"}))
	require.NoError(t, a.Append(ctx, repository.AuditEntry{ID: "2", ResourceType: "user", ResourceID: "8"}))
	require.NoError(t, a.Append(ctx, repository.AuditEntry{ID: "3", ResourceType: "user", ResourceID: "7"}))

	got, err := a.ListByResource(ctx, "user", "7", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "1", got[1].ID)
}
