package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ReadOnlyPrefix marks display-only form fields that are never submitted.
const ReadOnlyPrefix = "ro:"

// Field names with special handling.
const (
	FieldUsername          = "username"
	FieldPassword          = "password"
	FieldRole              = "role"
	FieldUserLang          = "userLang"
	FieldUseSocialProvider = "use_social_provider"
	FieldDailyMessageLimit = "dailyMessageLimit"
)

// Field is one editable value collected from a submission.
type Field struct {
	Name     string
	Value    any
	ReadOnly bool
}

// NewField builds a Field, deriving ReadOnly from the name prefix.
func NewField(name string, value any) Field {
	return Field{Name: name, Value: value, ReadOnly: IsReadOnlyName(name)}
}

// IsReadOnlyName reports whether name carries the read-only prefix.
// Only the prefix counts; "ro:" elsewhere in a name is ordinary.
func IsReadOnlyName(name string) bool {
	return strings.HasPrefix(name, ReadOnlyPrefix)
}

// FieldsFromValues converts a parsed form into fields, first value per key,
// in key order.
func FieldsFromValues(values url.Values) []Field {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		var v any
		if vs := values[k]; len(vs) > 0 {
			v = vs[0]
		}
		fields = append(fields, NewField(k, v))
	}
	return fields
}

// FieldsFromMap converts decoded JSON or panel state into fields in key order.
func FieldsFromMap(m map[string]any) []Field {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, NewField(k, m[k]))
	}
	return fields
}

// QuotaSetting is the enabled flag plus numeric limit editors see for the
// single nullable dailyMessageLimit attribute.
type QuotaSetting struct {
	Enabled bool `json:"enabled"`
	Limit   int  `json:"limit"`
}

// MaxQuotaLimit is the largest limit the users table can store (INTEGER).
const MaxQuotaLimit = math.MaxInt32

// DefaultQuotaLimit seeds the limit input when no limit is set.
const DefaultQuotaLimit = 10

// QuotaFromLimit seeds a QuotaSetting from a stored limit.
func QuotaFromLimit(limit *int) QuotaSetting {
	if limit == nil {
		return QuotaSetting{Enabled: false, Limit: DefaultQuotaLimit}
	}
	return QuotaSetting{Enabled: true, Limit: *limit}
}

// ParseQuota accepts a QuotaSetting, a pointer to one, or a decoded JSON object.
func ParseQuota(v any) (*QuotaSetting, error) {
	switch q := v.(type) {
	case nil:
		return nil, nil
	case QuotaSetting:
		return &q, nil
	case *QuotaSetting:
		return q, nil
	case map[string]any:
		out := &QuotaSetting{}
		if raw, ok := q["enabled"]; ok {
			b, err := toBool(raw)
			if err != nil {
				return nil, fmt.Errorf("quota.enabled: %w", err)
			}
			out.Enabled = b
		}
		if raw, ok := q["limit"]; ok && raw != nil && raw != "" {
			n, err := toInt(raw)
			if err != nil {
				return nil, fmt.Errorf("quota.limit: %w", err)
			}
			out.Limit = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported quota value %T", v)
	}
}

// ReconcilePolicy carries the derived inputs that are not raw form fields.
type ReconcilePolicy struct {
	// SSOOptOut is set when an SSO-backed subject had SSO switched off.
	SSOOptOut bool
	// Quota, when present, collapses into dailyMessageLimit.
	Quota *QuotaSetting
}

// PendingPatch is the minimal update sent to a store. A key mapped to nil is
// an explicit clear, distinct from an absent key.
type PendingPatch map[string]any

// Has reports whether key is present, including explicit nulls.
func (p PendingPatch) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// IsExplicitNull reports whether key is present with a nil value.
func (p PendingPatch) IsExplicitNull(key string) bool {
	v, ok := p[key]
	return ok && v == nil
}

// Keys returns the patch keys sorted.
func (p PendingPatch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the value of key when it is a string.
func (p PendingPatch) String(key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

// Bool reads key as a boolean. Form values such as "on" are accepted.
func (p PendingPatch) Bool(key string) (bool, error) {
	return toBool(p[key])
}

// Int reads key as an integer. An explicit null yields nil.
func (p PendingPatch) Int(key string) (*int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	n, err := toInt(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// JSON encodes the patch; explicit nulls survive as JSON null.
func (p PendingPatch) JSON() ([]byte, error) {
	return json.Marshal(map[string]any(p))
}

// Reconcile turns collected fields into a patch. It never fails.
//
// Rules, in order: empty or nil raw values are dropped; read-only names are
// dropped; an SSO opt-out forces use_social_provider=false; a quota composite
// becomes dailyMessageLimit (the limit when enabled, explicit nil otherwise).
func Reconcile(fields []Field, policy ReconcilePolicy) PendingPatch {
	patch := PendingPatch{}
	for _, f := range fields {
		if isBlank(f.Value) {
			continue
		}
		if f.ReadOnly || IsReadOnlyName(f.Name) {
			continue
		}
		patch[f.Name] = f.Value
	}

	if policy.SSOOptOut {
		patch[FieldUseSocialProvider] = false
	}

	if policy.Quota != nil {
		if policy.Quota.Enabled {
			patch[FieldDailyMessageLimit] = policy.Quota.Limit
		} else {
			patch[FieldDailyMessageLimit] = nil
		}
	}

	return patch
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case *string:
		return t == nil || *t == ""
	case json.RawMessage:
		return len(t) == 0 || string(t) == "null"
	default:
		return false
	}
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		if t == "on" {
			return true, nil
		}
		if t == "" {
			return false, nil
		}
		return strconv.ParseBool(t)
	default:
		return false, fmt.Errorf("not a boolean: %T", v)
	}
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("not an integer: %v", t)
		}
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		return int(n), err
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
