package domain

import (
	"fmt"
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleDefault Role = "default"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// AllRoles lists roles from least to most privileged.
var AllRoles = []Role{RoleDefault, RoleManager, RoleAdmin}

// ParseRole converts a raw value into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleDefault, RoleManager, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleManager:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank()
}

// CanAssign reports whether actor may set target as another account's role.
// Only admins hand out the admin role; managers may assign default or manager.
func CanAssign(actor, target Role) bool {
	switch actor {
	case RoleAdmin:
		return true
	case RoleManager:
		return target != RoleAdmin
	default:
		return false
	}
}

// CanEdit reports whether actor may edit an account holding role subject.
func CanEdit(actor, subject Role) bool {
	if actor == RoleDefault {
		return false
	}
	return actor.rank() >= subject.rank()
}

// AssignableRoles returns the roles actor may offer in a role picker.
func AssignableRoles(actor Role) []Role {
	out := make([]Role, 0, len(AllRoles))
	for _, r := range AllRoles {
		if CanAssign(actor, r) {
			out = append(out, r)
		}
	}
	return out
}

// AccountSubject is the account being edited.
// A nil DailyMessageLimit means unlimited.
type AccountSubject struct {
	ID                 int64     `json:"id"`
	Username           string    `json:"username"`
	Role               Role      `json:"role"`
	UsesSocialProvider bool      `json:"use_social_provider"`
	DailyMessageLimit  *int      `json:"dailyMessageLimit"`
	UserLang           string    `json:"userLang,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so edit sessions never alias a caller's snapshot.
func (s *AccountSubject) Clone() *AccountSubject {
	if s == nil {
		return nil
	}
	c := *s
	if s.DailyMessageLimit != nil {
		limit := *s.DailyMessageLimit
		c.DailyMessageLimit = &limit
	}
	return &c
}

// HasQuota reports whether a daily message limit is in force.
func (s *AccountSubject) HasQuota() bool {
	return s.DailyMessageLimit != nil
}
