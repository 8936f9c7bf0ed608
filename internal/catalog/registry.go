package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry stores item definitions keyed by id and hands out numeric ids for
// compact snapshots.
type Registry struct {
	mu     sync.RWMutex
	items  map[string]ItemDefinition
	byID   map[int64]string
	nextID int64
}

// NewRegistry constructs a registry seeded with defs. Invalid or duplicate
// seeds are skipped.
func NewRegistry(defs ...ItemDefinition) *Registry {
	r := &Registry{
		items: make(map[string]ItemDefinition, len(defs)),
		byID:  make(map[int64]string, len(defs)),
	}
	for _, d := range defs {
		_ = r.Register(d)
	}
	return r
}

// Register inserts or updates a definition. The use-action tag is resolved
// here so callers never compare strings later.
func (r *Registry) Register(def ItemDefinition) error {
	if def.ID == "" {
		return errors.New("catalog: item definition missing id")
	}
	if def.Value < 0 {
		return fmt.Errorf("catalog: item %s has negative value", def.ID)
	}
	use, err := ParseUseKind(def.UseAction)
	if err != nil {
		return fmt.Errorf("catalog: item %s: %w", def.ID, err)
	}
	def.Use = use

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.items[def.ID]; ok {
		if def.NumericID == 0 {
			def.NumericID = existing.NumericID
		} else if existing.NumericID != def.NumericID {
			return errors.New("catalog: numeric id mismatch for existing item")
		}
	}
	if def.NumericID == 0 {
		r.nextID++
		def.NumericID = r.nextID
	} else {
		if def.NumericID < 0 {
			return errors.New("catalog: numeric id must be positive")
		}
		if owner, collision := r.byID[def.NumericID]; collision && owner != def.ID {
			return errors.New("catalog: numeric id already assigned to another item")
		}
		if def.NumericID > r.nextID {
			r.nextID = def.NumericID
		}
	}

	r.items[def.ID] = def
	r.byID[def.NumericID] = def.ID
	return nil
}

// Definition returns the definition for id.
func (r *Registry) Definition(id string) (ItemDefinition, bool) {
	if r == nil {
		return ItemDefinition{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.items[id]
	return d, ok
}

// ByNumericID resolves a numeric handle back to its definition.
func (r *Registry) ByNumericID(n int64) (ItemDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byID[n]
	if !ok {
		return ItemDefinition{}, false
	}
	d, ok := r.items[id]
	return d, ok
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Export copies registry contents sorted by numeric id, suitable for sending
// to clients.
func (r *Registry) Export() []ItemDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ItemDefinition, 0, len(r.items))
	for _, d := range r.items {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NumericID < out[j].NumericID
	})
	return out
}
