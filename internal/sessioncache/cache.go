// Package sessioncache mirrors the signed-in user's display profile so other
// surfaces reflect account edits without refetching the user.
package sessioncache

import (
	"context"
	"sync"
)

// Profile is the cached display profile of a signed-in user.
type Profile struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	UserLang string `json:"userLang,omitempty"`
}

// Partial carries only the fields to change; nil means keep.
type Partial struct {
	Username *string
	Role     *string
	UserLang *string
}

// Cache is the collaborator account flows update after a successful edit.
type Cache interface {
	Update(ctx context.Context, userID int64, p Partial) error
	Get(ctx context.Context, userID int64) (Profile, bool)
	Put(ctx context.Context, p Profile) error
}

// Memory is a process-local Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[int64]Profile
}

func NewMemory() *Memory {
	return &Memory{entries: map[int64]Profile{}}
}

// Update applies p to a cached profile. Users not in the cache are skipped.
func (m *Memory) Update(_ context.Context, userID int64, p Partial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[userID]
	if !ok {
		return nil
	}
	if p.Username != nil {
		cur.Username = *p.Username
	}
	if p.Role != nil {
		cur.Role = *p.Role
	}
	if p.UserLang != nil {
		cur.UserLang = *p.UserLang
	}
	m.entries[userID] = cur
	return nil
}

func (m *Memory) Get(_ context.Context, userID int64) (Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.entries[userID]
	return p, ok
}

func (m *Memory) Put(_ context.Context, p Profile) error {
	m.mu.Lock()
	m.entries[p.UserID] = p
	m.mu.Unlock()
	return nil
}
