package panels

import (
	"context"
	"fmt"

	"tenantdesk.io/console/internal/settings"
)

// AuthHeaderKey is the registry key of the API header panel.
const AuthHeaderKey = "auth_header"

// PrefAPIHeaderName names the header carrying API bearer tokens.
const PrefAPIHeaderName = "api_header_name"

// AuthHeader lets admins rename the API authorization header.
type AuthHeader struct {
	prefs settings.PreferenceStore
}

func NewAuthHeader(prefs settings.PreferenceStore) *AuthHeader {
	return &AuthHeader{prefs: prefs}
}

func (a *AuthHeader) Seed(ctx context.Context) (settings.State, error) {
	values, err := a.prefs.GetByFields(ctx, []string{PrefAPIHeaderName})
	if err != nil {
		return nil, err
	}
	return settings.State{PrefAPIHeaderName: stringValue(values[PrefAPIHeaderName])}, nil
}

func (a *AuthHeader) Defaults() settings.State {
	return settings.State{PrefAPIHeaderName: ""}
}

func (a *AuthHeader) Validate(state settings.State) error {
	ve := &settings.ValidationError{
		Violations: settings.CheckValue(PrefAPIHeaderName, stringValue(state[PrefAPIHeaderName]), "omitempty,max=64,httptoken"),
	}
	return ve.OrNil()
}

func (a *AuthHeader) Persist(ctx context.Context, state settings.State) error {
	if err := a.prefs.UpdatePreferences(ctx, map[string]any{
		PrefAPIHeaderName: stringValue(state[PrefAPIHeaderName]),
	}); err != nil {
		return fmt.Errorf("update api header name: %w", err)
	}
	return nil
}
