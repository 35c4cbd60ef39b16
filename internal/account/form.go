// Package account implements the self-service and admin account edit flows.
//
// Both flows run a single settings panel through a settings.Coordinator: the
// form is staged, validated against a per-mode constraint table, reconciled
// into a patch and persisted with one UserStore call.
package account

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"tenantdesk.io/console/internal/domain"
	"tenantdesk.io/console/internal/settings"
)

// UserStore reads and patches accounts.
type UserStore interface {
	FetchUser(ctx context.Context, id int64) (*domain.AccountSubject, error)
	// UpdateUser applies patch. A nil value clears the column.
	UpdateUser(ctx context.Context, id int64, patch settings.PendingPatch) error
}

// Derived state keys that are not raw form fields.
const (
	StateSSOEnabled = "ssoEnabled"
	StateQuota      = "quota"
)

// Form is one account form submission.
type Form struct {
	Fields []settings.Field
	// SSOEnabled is the editor's SSO toggle; nil keeps the stored flag.
	SSOEnabled *bool
	// Quota is the admin quota composite; nil when the form has none.
	Quota *settings.QuotaSetting
}

// FormFromMap splits a decoded JSON body into raw fields and derived values.
func FormFromMap(m map[string]any) (Form, error) {
	var f Form
	rest := make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case StateSSOEnabled:
			b, err := parseToggle(v)
			if err != nil {
				return Form{}, err
			}
			f.SSOEnabled = &b
		case StateQuota:
			q, err := settings.ParseQuota(v)
			if err != nil {
				return Form{}, err
			}
			f.Quota = q
		default:
			rest[k] = v
		}
	}
	f.Fields = settings.FieldsFromMap(rest)
	return f, nil
}

// parseToggle accepts a JSON boolean or a checkbox-style string.
func parseToggle(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, fmt.Errorf("%s: %q is not a boolean", StateSSOEnabled, t)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%s must be a boolean", StateSSOEnabled)
	}
}

// FormFromValues reads a urlencoded or multipart form. The quota composite
// arrives as quota.enabled and quota.limit.
func FormFromValues(values url.Values) (Form, error) {
	var f Form
	rest := url.Values{}
	quota := map[string]any{}
	for k, vs := range values {
		v := ""
		if len(vs) > 0 {
			v = vs[0]
		}
		switch k {
		case StateSSOEnabled:
			b, err := parseToggle(v)
			if err != nil {
				return Form{}, err
			}
			f.SSOEnabled = &b
		case StateQuota + ".enabled":
			quota["enabled"] = v
		case StateQuota + ".limit":
			quota["limit"] = v
		default:
			rest[k] = vs
		}
	}
	if len(quota) > 0 {
		q, err := settings.ParseQuota(quota)
		if err != nil {
			return Form{}, err
		}
		f.Quota = q
	}
	f.Fields = settings.FieldsFromValues(rest)
	return f, nil
}

// State converts the form into a panel update.
func (f Form) State() settings.State {
	s := settings.State{}
	for _, field := range f.Fields {
		s[field.Name] = field.Value
	}
	if f.SSOEnabled != nil {
		s[StateSSOEnabled] = *f.SSOEnabled
	}
	if f.Quota != nil {
		s[StateQuota] = *f.Quota
	}
	return s
}
