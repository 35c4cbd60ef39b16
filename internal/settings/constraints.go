package settings

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Mode selects which constraints apply to an account form.
type Mode string

const (
	// ModeSSO: the subject signs in through a social provider and keeps it.
	ModeSSO Mode = "sso"
	// ModeLocal: the subject uses a local password.
	ModeLocal Mode = "local"
	// ModeSSOOptOut: an SSO subject is being switched to a local password.
	ModeSSOOptOut Mode = "sso_opt_out"
)

var allModes = []Mode{ModeSSO, ModeLocal, ModeSSOOptOut}

// ModeFor derives the form mode from the persisted flag and the editor toggle.
func ModeFor(usesSocialProvider, ssoEnabled bool) Mode {
	if !usesSocialProvider {
		return ModeLocal
	}
	if ssoEnabled {
		return ModeSSO
	}
	return ModeSSOOptOut
}

var (
	usernamePattern   = regexp.MustCompile(`^[a-z0-9_-]+$`)
	headerTokenRegexp = regexp.MustCompile("^[!#$%&'*+\\-.^_`|~0-9A-Za-z]+$")

	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the custom rules registered:
// "username" (lowercase letters, digits, '_' and '-') and "httptoken".
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernamePattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("httptoken", func(fl validator.FieldLevel) bool {
			return headerTokenRegexp.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// CheckValue validates one value against a validator tag and returns the
// violations, named after field.
func CheckValue(field string, value any, tag string) []FieldViolation {
	if value == nil {
		value = ""
	}
	err := Validator().Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldViolation{{Field: field, Rule: "invalid", Message: fmt.Sprintf("%s is invalid", field)}}
	}
	out := make([]FieldViolation, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldViolation{Field: field, Rule: fe.Tag(), Message: describe(field, fe)})
	}
	return out
}

func describe(field string, fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(strings.Fields(fe.Param()), ", "))
	case "username":
		return fmt.Sprintf("%s may only contain lowercase letters, numbers, underscores and hyphens", field)
	case "fqdn":
		return fmt.Sprintf("%s must be a domain name", field)
	case "httptoken":
		return fmt.Sprintf("%s must be a valid HTTP header name", field)
	default:
		return fmt.Sprintf("%s failed rule %s", field, fe.Tag())
	}
}

// Rule is the constraint on one field in one mode.
// A locked field mirrors a disabled input: it is removed before reconciliation.
type Rule struct {
	Tag    string
	Locked bool
}

// Standard account field rules.
var (
	LockedRule           = Rule{Locked: true}
	UsernameRule         = Rule{Tag: "required,min=2,max=100,username"}
	OptionalPasswordRule = Rule{Tag: "omitempty,min=8,max=256"}
	RequiredPasswordRule = Rule{Tag: "required,min=8,max=256"}
	RoleRule             = Rule{Tag: "required,oneof=default manager admin"}
)

// LanguageRule accepts an empty value or one of langs.
func LanguageRule(langs []string) Rule {
	return Rule{Tag: "omitempty,oneof=" + strings.Join(langs, " ")}
}

// ConstraintTable holds per-field rules keyed by mode. It is evaluated once
// per submission, before reconciliation.
type ConstraintTable struct {
	order []string
	rules map[string]map[Mode]Rule
}

// NewConstraintTable creates an empty table.
func NewConstraintTable() *ConstraintTable {
	return &ConstraintTable{rules: map[string]map[Mode]Rule{}}
}

// Set assigns rule to field for the given modes, or every mode when none given.
func (t *ConstraintTable) Set(field string, rule Rule, modes ...Mode) *ConstraintTable {
	if len(modes) == 0 {
		modes = allModes
	}
	byMode, ok := t.rules[field]
	if !ok {
		byMode = map[Mode]Rule{}
		t.rules[field] = byMode
		t.order = append(t.order, field)
	}
	for _, m := range modes {
		byMode[m] = rule
	}
	return t
}

// Fields returns the governed field names in declaration order.
func (t *ConstraintTable) Fields() []string {
	return append([]string(nil), t.order...)
}

// Rule returns the rule for field in mode.
func (t *ConstraintTable) Rule(field string, mode Mode) (Rule, bool) {
	byMode, ok := t.rules[field]
	if !ok {
		return Rule{}, false
	}
	r, ok := byMode[mode]
	return r, ok
}

// Check validates fields for mode and returns them with locked fields removed.
// Read-only fields pass through untouched. Unknown fields, broken rules and an
// enabled quota below 1 produce a *ValidationError.
func (t *ConstraintTable) Check(mode Mode, fields []Field, quota *QuotaSetting) ([]Field, error) {
	ve := &ValidationError{}
	values := make(map[string]any, len(fields))
	kept := make([]Field, 0, len(fields))

	for _, f := range fields {
		if f.ReadOnly || IsReadOnlyName(f.Name) {
			kept = append(kept, f)
			continue
		}
		if _, known := t.rules[f.Name]; !known {
			ve.Add(f.Name, "unknown", fmt.Sprintf("%s is not an editable field", f.Name))
			continue
		}
		if rule, _ := t.Rule(f.Name, mode); rule.Locked {
			continue
		}
		if _, seen := values[f.Name]; !seen {
			values[f.Name] = f.Value
		}
		kept = append(kept, f)
	}

	for _, name := range t.order {
		rule, ok := t.Rule(name, mode)
		if !ok || rule.Locked || rule.Tag == "" {
			continue
		}
		ve.Violations = append(ve.Violations, CheckValue(name, values[name], rule.Tag)...)
	}

	if quota != nil && quota.Enabled {
		switch {
		case quota.Limit < 1:
			ve.Add(FieldDailyMessageLimit, "min", FieldDailyMessageLimit+" must be at least 1")
		case quota.Limit > MaxQuotaLimit:
			ve.Add(FieldDailyMessageLimit, "max",
				fmt.Sprintf("%s must be at most %d", FieldDailyMessageLimit, MaxQuotaLimit))
		}
	}

	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	return kept, nil
}
