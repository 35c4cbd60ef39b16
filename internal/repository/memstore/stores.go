package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenantdesk.io/console/internal/asset"
	"tenantdesk.io/console/internal/repository"
)

// Preferences is an in-memory PreferenceStore with a key allow list.
// Values round-trip through JSON like the JSONB column does.
type Preferences struct {
	mu      sync.RWMutex
	allowed map[string]struct{}
	values  map[string][]byte
}

func NewPreferences(keys []string) *Preferences {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}
	return &Preferences{allowed: allowed, values: map[string][]byte{}}
}

func (p *Preferences) GetByFields(_ context.Context, names []string) (map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]any, len(names))
	for _, name := range names {
		raw, ok := p.values[name]
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode preference %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// UpdatePreferences writes all of patch or none of it.
func (p *Preferences) UpdatePreferences(_ context.Context, patch map[string]any) error {
	encoded := make(map[string][]byte, len(patch))
	for k, v := range patch {
		if _, ok := p.allowed[k]; !ok {
			return fmt.Errorf("%w: %s", repository.ErrUnknownPreference, k)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode preference %s: %w", k, err)
		}
		encoded[k] = raw
	}
	p.mu.Lock()
	for k, raw := range encoded {
		p.values[k] = raw
	}
	p.mu.Unlock()
	return nil
}

// System is an in-memory SystemConfigStore.
type System struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewSystem() *System {
	return &System{values: map[string]string{}}
}

func (s *System) UpdateSystem(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
	return nil
}

func (s *System) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key], nil
}

type storedAsset struct {
	ref          asset.Ref
	data         []byte
	supersededAt time.Time
}

// Assets is an in-memory asset.Store.
type Assets struct {
	mu         sync.Mutex
	live       map[int64]*storedAsset
	superseded []*storedAsset
	now        func() time.Time
}

func NewAssets() *Assets {
	return &Assets{live: map[int64]*storedAsset{}, now: time.Now}
}

func (a *Assets) UploadPfp(_ context.Context, userID int64, data []byte, contentType string) (asset.Ref, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return asset.Ref{}, fmt.Errorf("generate asset id: %w", err)
	}
	ref := asset.Ref{
		ID:          id.String(),
		UserID:      userID,
		ContentType: contentType,
		Size:        int64(len(data)),
		URL:         asset.URLFor(userID, id.String()),
		CreatedAt:   a.now().UTC(),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.supersede(userID)
	a.live[userID] = &storedAsset{ref: ref, data: append([]byte(nil), data...)}
	return ref, nil
}

func (a *Assets) RemovePfp(_ context.Context, userID int64) error {
	a.mu.Lock()
	a.supersede(userID)
	a.mu.Unlock()
	return nil
}

func (a *Assets) FetchPfp(_ context.Context, userID int64) (*asset.Ref, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cur, ok := a.live[userID]
	if !ok {
		return nil, nil
	}
	ref := cur.ref
	return &ref, nil
}

func (a *Assets) ReadPfp(_ context.Context, userID int64) (asset.Ref, []byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cur, ok := a.live[userID]
	if !ok {
		return asset.Ref{}, nil, asset.ErrNoAsset
	}
	return cur.ref, append([]byte(nil), cur.data...), nil
}

// PurgeSuperseded drops pictures superseded before cutoff.
func (a *Assets) PurgeSuperseded(_ context.Context, cutoff time.Time) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := a.superseded[:0]
	var purged int64
	for _, s := range a.superseded {
		if s.supersededAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, s)
	}
	a.superseded = kept
	return purged, nil
}

func (a *Assets) supersede(userID int64) {
	cur, ok := a.live[userID]
	if !ok {
		return
	}
	cur.supersededAt = a.now()
	a.superseded = append(a.superseded, cur)
	delete(a.live, userID)
}

// Audit is an append-only in-memory audit log.
type Audit struct {
	mu      sync.RWMutex
	entries []repository.AuditEntry
	now     func() time.Time
}

func NewAudit() *Audit {
	return &Audit{now: time.Now}
}

func (a *Audit) Append(_ context.Context, e repository.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	e.CreatedAt = a.now().UTC()
	a.entries = append(a.entries, e)
	return nil
}

// ListByResource returns the newest entries for one resource first.
func (a *Audit) ListByResource(_ context.Context, resourceType, resourceID string, limit int) ([]repository.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []repository.AuditEntry
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := a.entries[i]
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	return out, nil
}
