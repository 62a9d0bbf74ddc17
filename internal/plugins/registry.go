package plugins

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrPluginExists    = errors.New("plugin already exists")
	ErrPluginNil       = errors.New("plugin is nil")
	ErrInvalidMetadata = errors.New("invalid plugin metadata")
)

// Registry stores plugin factories by stable identifier.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Factory
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Factory)}
}

// ValidateMetadata checks required metadata fields and id format.
func ValidateMetadata(meta Metadata) error {
	id := strings.TrimSpace(meta.ID)
	name := strings.TrimSpace(meta.Name)
	if id == "" || name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidMetadata)
	}
	if !isValidID(id) {
		return fmt.Errorf("%w: invalid id format %q", ErrInvalidMetadata, id)
	}
	return nil
}

// Register adds a factory to the registry.
func (r *Registry) Register(f Factory) error {
	if f == nil {
		return ErrPluginNil
	}
	meta := f.Metadata()
	if err := ValidateMetadata(meta); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[meta.ID]; ok {
		return fmt.Errorf("%w: %s", ErrPluginExists, meta.ID)
	}
	r.items[meta.ID] = f
	return nil
}

// Resolve returns a factory by id.
func (r *Registry) Resolve(id string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.items[id]
	return f, ok
}

// Names returns registered ids in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.items))
	for id := range r.items {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Catalog returns the metadata of every registered plugin, ordered by id.
func (r *Registry) Catalog() []Metadata {
	ids := r.Names()
	out := make([]Metadata, 0, len(ids))
	for _, id := range ids {
		if f, ok := r.Resolve(id); ok {
			out = append(out, f.Metadata())
		}
	}
	return out
}

func isValidID(id string) bool {
	if id == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if (i == 0 || i == len(id)-1) && isSep {
			return false
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
