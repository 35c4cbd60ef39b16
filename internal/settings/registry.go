package settings

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Descriptor describes a panel kind to admin clients.
type Descriptor struct {
	Key         string   `json:"key"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Fields      []string `json:"fields"`
}

// Factory builds a fresh panel instance for one edit session.
type Factory func(deps Deps) (Panel, error)

type registration struct {
	desc    Descriptor
	factory Factory
}

// PanelRegistry stores the available panel kinds.
type PanelRegistry struct {
	mu    sync.RWMutex
	kinds map[string]registration
}

// NewPanelRegistry creates an empty registry.
func NewPanelRegistry() *PanelRegistry {
	return &PanelRegistry{kinds: map[string]registration{}}
}

// Register adds a panel kind. Duplicate keys are rejected.
func (r *PanelRegistry) Register(desc Descriptor, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("panel factory is nil")
	}
	key := strings.TrimSpace(desc.Key)
	if key == "" {
		return fmt.Errorf("panel key is empty")
	}
	desc.Key = key
	if strings.TrimSpace(desc.DisplayName) == "" {
		desc.DisplayName = key
	}
	desc.Fields = append([]string(nil), desc.Fields...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePanel, key)
	}
	r.kinds[key] = registration{desc: desc, factory: factory}
	return nil
}

// Get returns the descriptor registered under key.
func (r *PanelRegistry) Get(key string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.kinds[strings.TrimSpace(key)]
	return reg.desc, ok
}

// List returns all descriptors sorted by key.
func (r *PanelRegistry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]Descriptor, 0, len(r.kinds))
	for _, reg := range r.kinds {
		items = append(items, reg.desc)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items
}

// Build instantiates the named panel kinds, or every kind in key order when
// keys is empty.
func (r *PanelRegistry) Build(deps Deps, keys ...string) ([]Panel, error) {
	if len(keys) == 0 {
		for _, d := range r.List() {
			keys = append(keys, d.Key)
		}
	}

	r.mu.RLock()
	regs := make([]registration, 0, len(keys))
	for _, k := range keys {
		reg, ok := r.kinds[strings.TrimSpace(k)]
		if !ok {
			r.mu.RUnlock()
			return nil, fmt.Errorf("%w: %s", ErrPanelNotFound, k)
		}
		regs = append(regs, reg)
	}
	r.mu.RUnlock()

	panels := make([]Panel, 0, len(regs))
	for _, reg := range regs {
		p, err := reg.factory(deps)
		if err != nil {
			return nil, fmt.Errorf("build panel %s: %w", reg.desc.Key, err)
		}
		panels = append(panels, p)
	}
	return panels, nil
}
