package panels

import (
	"context"
	"fmt"
	"strings"

	"tenantdesk.io/console/internal/settings"
)

// GoogleLoginKey is the registry key of the Google sign-in panel.
const GoogleLoginKey = "google_login"

// Google sign-in preference keys and panel fields.
const (
	PrefUsersCanLoginWithGoogle = "users_can_login_with_google"
	PrefAllowedDomain           = "allowed_domain"
	FieldGoogleClientID         = "google_client_id"
)

// MaskedClientID stands in for a stored client id, which is never read back.
var MaskedClientID = strings.Repeat("*", 20)

// GoogleLogin governs whether users may sign in with Google, the allowed
// e-mail domain and the OAuth client id.
type GoogleLogin struct {
	prefs  settings.PreferenceStore
	system settings.SystemConfigStore
}

// NewGoogleLogin creates the panel backend.
func NewGoogleLogin(prefs settings.PreferenceStore, system settings.SystemConfigStore) *GoogleLogin {
	return &GoogleLogin{prefs: prefs, system: system}
}

// GoogleLoginFields are the keys a Google login panel accepts.
func GoogleLoginFields() []string {
	return []string{PrefUsersCanLoginWithGoogle, PrefAllowedDomain, FieldGoogleClientID}
}

func (g *GoogleLogin) Seed(ctx context.Context) (settings.State, error) {
	values, err := g.prefs.GetByFields(ctx, []string{PrefUsersCanLoginWithGoogle, PrefAllowedDomain})
	if err != nil {
		return nil, err
	}
	enabled := boolValue(values[PrefUsersCanLoginWithGoogle])
	clientID := ""
	if enabled {
		clientID = MaskedClientID
	}
	return settings.State{
		PrefUsersCanLoginWithGoogle: enabled,
		PrefAllowedDomain:           stringValue(values[PrefAllowedDomain]),
		FieldGoogleClientID:         clientID,
	}, nil
}

func (g *GoogleLogin) Defaults() settings.State {
	return settings.State{
		PrefUsersCanLoginWithGoogle: false,
		PrefAllowedDomain:           "",
		FieldGoogleClientID:         "",
	}
}

func (g *GoogleLogin) Validate(state settings.State) error {
	ve := &settings.ValidationError{}
	if boolValue(state[PrefUsersCanLoginWithGoogle]) {
		ve.Violations = append(ve.Violations,
			settings.CheckValue(FieldGoogleClientID, stringValue(state[FieldGoogleClientID]), "required,max=300")...)
		ve.Violations = append(ve.Violations,
			settings.CheckValue(PrefAllowedDomain, stringValue(state[PrefAllowedDomain]), "omitempty,fqdn")...)
	}
	return ve.OrNil()
}

// Persist clears and sets through distinct calls: disabling writes the
// preference pair and then blanks the client id; enabling writes both
// values, leaving the client id alone while it still shows the mask.
func (g *GoogleLogin) Persist(ctx context.Context, state settings.State) error {
	if !boolValue(state[PrefUsersCanLoginWithGoogle]) {
		if err := g.prefs.UpdatePreferences(ctx, map[string]any{
			PrefUsersCanLoginWithGoogle: false,
			PrefAllowedDomain:           "",
		}); err != nil {
			return fmt.Errorf("disable google login: %w", err)
		}
		if err := g.system.UpdateSystem(ctx, map[string]string{
			settings.SystemGoogleAuthClientID: "",
		}); err != nil {
			return fmt.Errorf("clear google client id: %w", err)
		}
		return nil
	}

	if err := g.prefs.UpdatePreferences(ctx, map[string]any{
		PrefUsersCanLoginWithGoogle: true,
		PrefAllowedDomain:           stringValue(state[PrefAllowedDomain]),
	}); err != nil {
		return fmt.Errorf("enable google login: %w", err)
	}
	clientID := stringValue(state[FieldGoogleClientID])
	if clientID == MaskedClientID {
		return nil
	}
	if err := g.system.UpdateSystem(ctx, map[string]string{
		settings.SystemGoogleAuthClientID: clientID,
	}); err != nil {
		return fmt.Errorf("set google client id: %w", err)
	}
	return nil
}
