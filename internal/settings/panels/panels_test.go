package panels

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/settings"
)

func init() {
	_ = logger.Init("error", "json")
}

// callLog records store calls in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakePrefs struct {
	log       *callLog
	values    map[string]any
	getErr    error
	updateErr error
}

func (f *fakePrefs) GetByFields(_ context.Context, names []string) (map[string]any, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := map[string]any{}
	for _, n := range names {
		if v, ok := f.values[n]; ok {
			out[n] = v
		}
	}
	return out, nil
}

func (f *fakePrefs) UpdatePreferences(_ context.Context, patch map[string]any) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	for _, k := range []string{PrefUsersCanLoginWithGoogle, PrefAllowedDomain, PrefAPIHeaderName} {
		if v, ok := patch[k]; ok {
			f.log.add("prefs %s=%v", k, v)
			f.values[k] = v
		}
	}
	return nil
}

type fakeSystem struct {
	log *callLog
}

func (f *fakeSystem) UpdateSystem(_ context.Context, values map[string]string) error {
	f.log.add("system %s=%q", settings.SystemGoogleAuthClientID, values[settings.SystemGoogleAuthClientID])
	return nil
}

func newStores(values map[string]any) (*fakePrefs, *fakeSystem, *callLog) {
	log := &callLog{}
	return &fakePrefs{log: log, values: values}, &fakeSystem{log: log}, log
}

func TestGoogleLogin_SeedMasksClientID(t *testing.T) {
	prefs, system, _ := newStores(map[string]any{
		PrefUsersCanLoginWithGoogle: true,
		PrefAllowedDomain:           "example.com",
	})
	p := settings.NewStagedPanel(GoogleLoginKey, GoogleLoginFields(), NewGoogleLogin(prefs, system))
	p.Load(context.Background())

	snap := p.Snapshot()
	assert.Equal(t, true, snap[PrefUsersCanLoginWithGoogle])
	assert.Equal(t, "example.com", snap[PrefAllowedDomain])
	assert.Equal(t, MaskedClientID, snap[FieldGoogleClientID])
	assert.Len(t, MaskedClientID, 20)
}

func TestGoogleLogin_Persist(t *testing.T) {
	tests := []struct {
		name  string
		state settings.State
		want  []string
	}{
		{
			name: "disable issues two distinct clearing calls",
			state: settings.State{
				PrefUsersCanLoginWithGoogle: false,
				PrefAllowedDomain:           "example.com",
				FieldGoogleClientID:         "abc.apps.googleusercontent.com",
			},
			want: []string{
				"prefs users_can_login_with_google=false",
				"prefs allowed_domain=",
				`system GoogleAuthClientId=""`,
			},
		},
		{
			name: "enable with new client id",
			state: settings.State{
				PrefUsersCanLoginWithGoogle: true,
				PrefAllowedDomain:           "corp.example",
				FieldGoogleClientID:         "abc.apps.googleusercontent.com",
			},
			want: []string{
				"prefs users_can_login_with_google=true",
				"prefs allowed_domain=corp.example",
				`system GoogleAuthClientId="abc.apps.googleusercontent.com"`,
			},
		},
		{
			name: "masked client id is not written back",
			state: settings.State{
				PrefUsersCanLoginWithGoogle: true,
				PrefAllowedDomain:           "corp.example",
				FieldGoogleClientID:         MaskedClientID,
			},
			want: []string{
				"prefs users_can_login_with_google=true",
				"prefs allowed_domain=corp.example",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefs, system, log := newStores(map[string]any{})
			g := NewGoogleLogin(prefs, system)
			require.NoError(t, g.Persist(context.Background(), tt.state))
			assert.Equal(t, tt.want, log.all())
		})
	}
}

func TestGoogleLogin_Validate(t *testing.T) {
	g := NewGoogleLogin(nil, nil)

	require.NoError(t, g.Validate(g.Defaults()))
	err := g.Validate(settings.State{PrefUsersCanLoginWithGoogle: true, FieldGoogleClientID: ""})
	var ve *settings.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{FieldGoogleClientID}, ve.Fields())

	err = g.Validate(settings.State{
		PrefUsersCanLoginWithGoogle: true,
		FieldGoogleClientID:         MaskedClientID,
		PrefAllowedDomain:           "not a domain",
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{PrefAllowedDomain}, ve.Fields())
}

func TestAuthHeader_LoadFailureUsesEmptyHeader(t *testing.T) {
	prefs, _, log := newStores(nil)
	prefs.getErr = errors.New("connection refused")
	p := settings.NewStagedPanel(AuthHeaderKey, []string{PrefAPIHeaderName}, NewAuthHeader(prefs))

	p.Load(context.Background())

	assert.Equal(t, "", p.Snapshot()[PrefAPIHeaderName])
	require.NoError(t, p.Commit(context.Background()))
	assert.Empty(t, log.all(), "clean panel must not overwrite stored settings")
}

func TestAuthHeader_Validate(t *testing.T) {
	a := NewAuthHeader(nil)
	require.NoError(t, a.Validate(settings.State{PrefAPIHeaderName: "X-Api-Key"}))
	require.NoError(t, a.Validate(settings.State{PrefAPIHeaderName: ""}))
	require.Error(t, a.Validate(settings.State{PrefAPIHeaderName: "X Api Key"}))
}

func TestRegister_PanelsSaveTogether(t *testing.T) {
	r := settings.NewPanelRegistry()
	require.NoError(t, Register(r))
	require.Error(t, Register(r), "second registration must be rejected")

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, AuthHeaderKey, list[0].Key)
	assert.Equal(t, GoogleLoginKey, list[1].Key)

	prefs, system, log := newStores(map[string]any{PrefAPIHeaderName: "Authorization"})
	panels, err := r.Build(settings.Deps{Preferences: prefs, System: system})
	require.NoError(t, err)

	c := settings.NewCoordinator()
	for _, p := range panels {
		require.NoError(t, c.Register(p))
	}
	c.Load(context.Background())

	require.NoError(t, c.Stage(AuthHeaderKey, settings.State{PrefAPIHeaderName: "X-Api-Key"}))
	require.NoError(t, c.Stage(GoogleLoginKey, settings.State{
		PrefUsersCanLoginWithGoogle: true,
		PrefAllowedDomain:           "example.com",
		FieldGoogleClientID:         "client-1",
	}))

	report, err := c.RequestSave(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{AuthHeaderKey, GoogleLoginKey}, report.Committed)
	assert.Contains(t, log.all(), "prefs api_header_name=X-Api-Key")
	assert.Contains(t, log.all(), `system GoogleAuthClientId="client-1"`)
	assert.False(t, c.HasChanges())

	_, err = r.Build(settings.Deps{})
	require.Error(t, err, "factories require their stores")
}
