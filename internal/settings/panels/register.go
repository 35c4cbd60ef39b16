package panels

import (
	"errors"

	"tenantdesk.io/console/internal/settings"
)

var errNoPreferenceStore = errors.New("preference store is required")

// PreferenceKeys lists every preference key the built-in panels read or write.
func PreferenceKeys() []string {
	return []string{PrefAPIHeaderName, PrefAllowedDomain, PrefUsersCanLoginWithGoogle}
}

// Register adds the built-in panel kinds to r.
func Register(r *settings.PanelRegistry) error {
	if err := r.Register(settings.Descriptor{
		Key:         GoogleLoginKey,
		DisplayName: "Users can login with Google",
		Description: "Let users sign in with Google accounts, optionally restricted to one e-mail domain.",
		Fields:      GoogleLoginFields(),
	}, func(deps settings.Deps) (settings.Panel, error) {
		if deps.Preferences == nil || deps.System == nil {
			return nil, errors.New("google login panel needs preference and system stores")
		}
		return settings.NewStagedPanel(GoogleLoginKey, GoogleLoginFields(), NewGoogleLogin(deps.Preferences, deps.System)), nil
	}); err != nil {
		return err
	}

	return r.Register(settings.Descriptor{
		Key:         AuthHeaderKey,
		DisplayName: "Custom API Authorization Header",
		Description: "Header name used for the bearer token on API requests.",
		Fields:      []string{PrefAPIHeaderName},
	}, func(deps settings.Deps) (settings.Panel, error) {
		if deps.Preferences == nil {
			return nil, errNoPreferenceStore
		}
		return settings.NewStagedPanel(AuthHeaderKey, []string{PrefAPIHeaderName}, NewAuthHeader(deps.Preferences)), nil
	})
}
