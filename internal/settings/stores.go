package settings

import "context"

// PreferenceStore reads and writes system preferences by key.
type PreferenceStore interface {
	// GetByFields returns the stored values for names. Missing keys are absent.
	GetByFields(ctx context.Context, names []string) (map[string]any, error)
	UpdatePreferences(ctx context.Context, patch map[string]any) error
}

// System configuration keys accepted by SystemConfigStore.
const (
	SystemGoogleAuthClientID = "GoogleAuthClientId"
)

// SystemConfigStore writes system-level secrets such as OAuth client ids.
type SystemConfigStore interface {
	UpdateSystem(ctx context.Context, values map[string]string) error
}

// Deps are the collaborators panel factories draw from.
type Deps struct {
	Preferences PreferenceStore
	System      SystemConfigStore
}
