// Package seed loads users and preferences from a YAML file into the stores.
//
// Applying a file is idempotent: users whose name is taken are skipped and
// preferences are upserted.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"tenantdesk.io/console/internal/domain"
	apperrors "tenantdesk.io/console/internal/pkg/errors"
	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/repository"
	"tenantdesk.io/console/internal/settings"
)

// File is the seed document.
type File struct {
	Users       []User            `yaml:"users"`
	Preferences map[string]any    `yaml:"preferences"`
	System      map[string]string `yaml:"system"`
}

// User is one account to create.
type User struct {
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	Role              string `yaml:"role"`
	UseSocialProvider bool   `yaml:"use_social_provider"`
	DailyMessageLimit *int   `yaml:"daily_message_limit"`
	UserLang          string `yaml:"user_lang"`
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads and parses the seed document at path.
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer fh.Close()
	return Parse(fh)
}

func (f *File) validate() error {
	seen := map[string]bool{}
	for i, u := range f.Users {
		if u.Username == "" {
			return fmt.Errorf("users[%d]: username is required", i)
		}
		if seen[u.Username] {
			return fmt.Errorf("users[%d]: duplicate username %q", i, u.Username)
		}
		seen[u.Username] = true
		if u.Password == "" && !u.UseSocialProvider {
			return fmt.Errorf("users[%d]: password is required for local accounts", i)
		}
		if u.Role != "" {
			if _, err := domain.ParseRole(u.Role); err != nil {
				return fmt.Errorf("users[%d]: %w", i, err)
			}
		}
		if u.DailyMessageLimit != nil && *u.DailyMessageLimit < 1 {
			return fmt.Errorf("users[%d]: daily_message_limit must be at least 1", i)
		}
	}
	return nil
}

// UserCreator creates accounts.
type UserCreator interface {
	Create(ctx context.Context, in repository.NewUser) (*domain.AccountSubject, error)
}

// Target names the stores a seed file is applied to. Nil stores are skipped.
type Target struct {
	Users       UserCreator
	Preferences settings.PreferenceStore
	System      settings.SystemConfigStore
}

// Result counts what Apply did.
type Result struct {
	Created int
	Skipped int
}

// Apply writes f into t.
func Apply(ctx context.Context, t Target, f *File) (Result, error) {
	var res Result
	log := logger.Named("seed")

	if t.Users != nil {
		for _, u := range f.Users {
			role := domain.RoleDefault
			if u.Role != "" {
				role = domain.Role(u.Role)
			}
			_, err := t.Users.Create(ctx, repository.NewUser{
				Username:           u.Username,
				Password:           u.Password,
				Role:               role,
				UsesSocialProvider: u.UseSocialProvider,
				DailyMessageLimit:  u.DailyMessageLimit,
				UserLang:           u.UserLang,
			})
			switch {
			case errors.Is(err, apperrors.ErrConflict):
				res.Skipped++
				log.Debug("Seed user exists, skipped", zap.String("username", u.Username))
			case err != nil:
				return res, fmt.Errorf("seed user %q: %w", u.Username, err)
			default:
				res.Created++
			}
		}
	}

	if t.Preferences != nil && len(f.Preferences) > 0 {
		if err := t.Preferences.UpdatePreferences(ctx, f.Preferences); err != nil {
			return res, fmt.Errorf("seed preferences: %w", err)
		}
	}
	if t.System != nil && len(f.System) > 0 {
		if err := t.System.UpdateSystem(ctx, f.System); err != nil {
			return res, fmt.Errorf("seed system config: %w", err)
		}
	}

	log.Info("Seed applied",
		zap.Int("users_created", res.Created),
		zap.Int("users_skipped", res.Skipped),
		zap.Int("preferences", len(f.Preferences)),
	)
	return res, nil
}
