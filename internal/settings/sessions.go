package settings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tenantdesk.io/console/internal/pkg/logger"
	"tenantdesk.io/console/internal/pkg/metrics"
)

// Session is one open settings edit surface: a coordinator seeded from a
// fresh load, owned by a single user.
type Session struct {
	ID          string
	OwnerID     int64
	Coordinator *Coordinator
	CreatedAt   time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SessionManager keeps open edit sessions and expires idle ones.
type SessionManager struct {
	registry *PanelRegistry
	deps     Deps
	pool     Submitter
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates a manager. pool may be nil, in which case
// commits run inline.
func NewSessionManager(registry *PanelRegistry, deps Deps, pool Submitter, ttl time.Duration) *SessionManager {
	return &SessionManager{
		registry: registry,
		deps:     deps,
		pool:     pool,
		ttl:      ttl,
		now:      time.Now,
		log:      logger.Named("settings.sessions"),
		sessions: map[string]*Session{},
	}
}

// Open builds the requested panels (all when keys is empty), loads them and
// returns a new session.
func (m *SessionManager) Open(ctx context.Context, ownerID int64, keys ...string) (*Session, error) {
	panels, err := m.registry.Build(m.deps, keys...)
	if err != nil {
		return nil, err
	}

	var opts []CoordinatorOption
	if m.pool != nil {
		opts = append(opts, WithPool(m.pool))
	}
	coord := NewCoordinator(opts...)
	for _, p := range panels {
		if err := coord.Register(p); err != nil {
			coord.Close()
			return nil, fmt.Errorf("register panel: %w", err)
		}
	}
	coord.Load(ctx)

	id, err := uuid.NewV7()
	if err != nil {
		coord.Close()
		return nil, fmt.Errorf("generate session id: %w", err)
	}
	now := m.now()
	s := &Session{
		ID:          id.String(),
		OwnerID:     ownerID,
		Coordinator: coord,
		CreatedAt:   now,
		lastSeen:    now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	metrics.OpenSessions.Inc()

	m.log.Debug("Settings session opened",
		zap.String("session_id", s.ID),
		zap.Int64("owner_id", ownerID),
		zap.Int("panels", len(panels)),
	)
	return s, nil
}

// Get returns an open session owned by ownerID. Sessions of other owners
// are reported as not found.
func (m *SessionManager) Get(id string, ownerID int64) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || s.OwnerID != ownerID {
		return nil, ErrSessionNotFound
	}
	now := m.now()
	if m.expired(s, now) {
		m.remove(id)
		return nil, ErrSessionNotFound
	}
	s.touch(now)
	return s, nil
}

// Close discards a session.
func (m *SessionManager) Close(id string, ownerID int64) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || s.OwnerID != ownerID {
		return ErrSessionNotFound
	}
	m.remove(id)
	return nil
}

func (m *SessionManager) remove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	s.Coordinator.Close()
	metrics.OpenSessions.Dec()
}

func (m *SessionManager) expired(s *Session, now time.Time) bool {
	if m.ttl <= 0 || s.Coordinator.Saving() {
		return false
	}
	return now.Sub(s.idleSince()) > m.ttl
}

// Expire closes idle sessions and returns how many were closed.
// Sessions with a save cycle running are kept.
func (m *SessionManager) Expire() int {
	now := m.now()
	m.mu.Lock()
	var stale []string
	for id, s := range m.sessions {
		if m.expired(s, now) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.remove(id)
	}
	if len(stale) > 0 {
		m.log.Info("Expired idle settings sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Run expires idle sessions every interval until ctx is done.
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Expire()
		}
	}
}

// CloseAll discards every session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.remove(id)
	}
}

// Len returns the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
