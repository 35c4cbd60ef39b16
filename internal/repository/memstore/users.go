// Package memstore holds in-process stores for the memory storage driver and
// for tests. They honour the same contracts as the PostgreSQL repositories.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"golang.org/x/crypto/bcrypt"

	"tenantdesk.io/console/internal/domain"
	apperrors "tenantdesk.io/console/internal/pkg/errors"
	"tenantdesk.io/console/internal/repository"
	"tenantdesk.io/console/internal/settings"
)

// userRecord is the stored document. Its JSON names match patch keys so a
// PendingPatch applies as an RFC 7386 merge patch.
type userRecord struct {
	ID                 int64     `json:"id"`
	Username           string    `json:"username"`
	PasswordHash       string    `json:"password_hash,omitempty"`
	Role               string    `json:"role"`
	UsesSocialProvider bool      `json:"use_social_provider"`
	DailyMessageLimit  *int      `json:"dailyMessageLimit,omitempty"`
	UserLang           string    `json:"userLang,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (r userRecord) subject() *domain.AccountSubject {
	s := &domain.AccountSubject{
		ID:                 r.ID,
		Username:           r.Username,
		Role:               domain.Role(r.Role),
		UsesSocialProvider: r.UsesSocialProvider,
		UserLang:           r.UserLang,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.DailyMessageLimit != nil {
		n := *r.DailyMessageLimit
		s.DailyMessageLimit = &n
	}
	return s
}

// Users is an in-memory UserStore.
type Users struct {
	mu         sync.RWMutex
	docs       map[int64][]byte
	nextID     int64
	bcryptCost int
	now        func() time.Time
}

func NewUsers(cost int) *Users {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &Users{docs: map[int64][]byte{}, bcryptCost: cost, now: time.Now}
}

// Create inserts a user. A taken username yields ErrConflict.
func (s *Users) Create(_ context.Context, in repository.NewUser) (*domain.AccountSubject, error) {
	role := in.Role
	if role == "" {
		role = domain.RoleDefault
	}
	rec := userRecord{
		Username:           in.Username,
		Role:               string(role),
		UsesSocialProvider: in.UsesSocialProvider,
		DailyMessageLimit:  in.DailyMessageLimit,
		UserLang:           in.UserLang,
	}
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		rec.PasswordHash = string(hash)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usernameTaken(in.Username, 0) {
		return nil, fmt.Errorf("create user %q: %w", in.Username, apperrors.ErrConflict)
	}
	s.nextID++
	rec.ID = s.nextID
	rec.CreatedAt = s.now().UTC()
	rec.UpdatedAt = rec.CreatedAt

	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode user: %w", err)
	}
	s.docs[rec.ID] = doc
	return rec.subject(), nil
}

func (s *Users) FetchUser(_ context.Context, id int64) (*domain.AccountSubject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.load(id)
	if err != nil {
		return nil, err
	}
	return rec.subject(), nil
}

func (s *Users) FetchByUsername(_ context.Context, username string) (*domain.AccountSubject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id := range s.docs {
		rec, err := s.load(id)
		if err != nil {
			return nil, err
		}
		if rec.Username == username {
			return rec.subject(), nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", username, apperrors.ErrNotFound)
}

// UpdateUser merges patch into the stored document. Explicit nulls remove
// the key, which clears dailyMessageLimit.
func (s *Users) UpdateUser(_ context.Context, id int64, patch settings.PendingPatch) error {
	merge, err := s.mergeDoc(patch)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("user %d: %w", id, apperrors.ErrNotFound)
	}
	if name, ok := patch.String(settings.FieldUsername); ok && s.usernameTaken(name, id) {
		return fmt.Errorf("update user %d: username taken: %w", id, apperrors.ErrConflict)
	}

	merged, err := jsonpatch.MergePatch(doc, merge)
	if err != nil {
		return fmt.Errorf("apply patch to user %d: %w", id, err)
	}
	var rec userRecord
	if err := json.Unmarshal(merged, &rec); err != nil {
		return fmt.Errorf("decode user %d: %w", id, err)
	}
	rec.UpdatedAt = s.now().UTC()
	out, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode user %d: %w", id, err)
	}
	s.docs[id] = out
	return nil
}

// mergeDoc normalises patch values and renames password to its hash.
func (s *Users) mergeDoc(patch settings.PendingPatch) ([]byte, error) {
	doc := make(map[string]any, len(patch))
	for _, key := range patch.Keys() {
		switch key {
		case settings.FieldUsername, settings.FieldUserLang:
			v, ok := patch.String(key)
			if !ok {
				return nil, fmt.Errorf("patch %s: want string, got %T", key, patch[key])
			}
			doc[key] = v
		case settings.FieldPassword:
			v, ok := patch.String(key)
			if !ok {
				return nil, fmt.Errorf("patch %s: want string, got %T", key, patch[key])
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(v), s.bcryptCost)
			if err != nil {
				return nil, fmt.Errorf("hash password: %w", err)
			}
			doc["password_hash"] = string(hash)
		case settings.FieldRole:
			v, _ := patch.String(key)
			role, err := domain.ParseRole(v)
			if err != nil {
				return nil, fmt.Errorf("patch %s: %w", key, err)
			}
			doc[key] = string(role)
		case settings.FieldUseSocialProvider:
			b, err := patch.Bool(key)
			if err != nil {
				return nil, fmt.Errorf("patch %s: %w", key, err)
			}
			doc[key] = b
		case settings.FieldDailyMessageLimit:
			n, err := patch.Int(key)
			if err != nil {
				return nil, fmt.Errorf("patch %s: %w", key, err)
			}
			if n == nil {
				doc[key] = nil
			} else {
				doc[key] = *n
			}
		default:
			return nil, fmt.Errorf("patch %s: %w", key, settings.ErrUnknownField)
		}
	}
	return json.Marshal(doc)
}

// VerifyPassword reports whether password matches the stored hash.
func (s *Users) VerifyPassword(_ context.Context, id int64, password string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.load(id)
	if err != nil {
		return false, err
	}
	if rec.PasswordHash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) == nil, nil
}

func (s *Users) load(id int64) (userRecord, error) {
	doc, ok := s.docs[id]
	if !ok {
		return userRecord{}, fmt.Errorf("user %d: %w", id, apperrors.ErrNotFound)
	}
	var rec userRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return userRecord{}, fmt.Errorf("decode user %d: %w", id, err)
	}
	return rec, nil
}

func (s *Users) usernameTaken(name string, except int64) bool {
	for id := range s.docs {
		if id == except {
			continue
		}
		rec, err := s.load(id)
		if err == nil && rec.Username == name {
			return true
		}
	}
	return false
}
