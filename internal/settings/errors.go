package settings

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSaveInProgress rejects a save request while a cycle is running.
	ErrSaveInProgress = errors.New("save already in progress")
	// ErrClosed is returned by operations on a closed panel or coordinator.
	ErrClosed = errors.New("edit surface closed")
	// ErrPanelNotFound is returned for an unknown panel key.
	ErrPanelNotFound = errors.New("panel not found")
	// ErrDuplicatePanel rejects a second panel with the same key.
	ErrDuplicatePanel = errors.New("panel already registered")
	// ErrUnknownField rejects a staged key the panel does not govern.
	ErrUnknownField = errors.New("field not governed by panel")
	// ErrSessionNotFound is returned for an unknown or expired edit session.
	ErrSessionNotFound = errors.New("edit session not found")

	errNoCompletion = errors.New("panel returned without signalling completion")
)

// LoadError records a failed panel seed. It never leaves the panel.
type LoadError struct {
	Panel string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load panel %s: %v", e.Panel, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// FieldViolation is one broken field constraint.
type FieldViolation struct {
	Panel   string `json:"panel,omitempty"`
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError collects field violations found before reconciliation.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a violation.
func (e *ValidationError) Add(field, rule, message string) {
	e.Violations = append(e.Violations, FieldViolation{Field: field, Rule: rule, Message: message})
}

// Empty reports whether no violation was recorded.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Violations) == 0
}

// Merge appends other's violations tagged with panel.
func (e *ValidationError) Merge(panel string, other *ValidationError) {
	if other == nil {
		return
	}
	for _, v := range other.Violations {
		if v.Panel == "" {
			v.Panel = panel
		}
		e.Violations = append(e.Violations, v)
	}
}

// Fields returns the distinct field names with violations, sorted.
func (e *ValidationError) Fields() []string {
	seen := map[string]struct{}{}
	for _, v := range e.Violations {
		seen[v.Field] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// OrNil returns e as an error, or nil when it holds no violation.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

// CommitError reports a backend rejection for one panel.
// The panel stays dirty; retries are up to the caller.
type CommitError struct {
	Panel string
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit panel %s: %v", e.Panel, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// AssetError reports a failed profile asset operation.
type AssetError struct {
	Op  string // upload, remove, fetch
	Err error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("profile asset %s: %v", e.Op, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }

// CommitErrors extracts every CommitError from a (possibly joined) error.
func CommitErrors(err error) []*CommitError {
	if err == nil {
		return nil
	}
	var out []*CommitError
	var walk func(error)
	walk = func(err error) {
		if ce, ok := err.(*CommitError); ok {
			out = append(out, ce)
			return
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}
			return
		}
		if next := errors.Unwrap(err); next != nil {
			walk(next)
		}
	}
	walk(err)
	return out
}
