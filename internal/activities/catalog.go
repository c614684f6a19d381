package activities

import (
	"sort"
	"sync"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Factory builds a fresh activity instance.
type Factory func() Activity

// TypeInfo summarises a registered activity type.
type TypeInfo struct {
	Type     string   `json:"type"`
	Outcomes []string `json:"outcomes,omitempty"`
	Blocking bool     `json:"blocking,omitempty"`
}

// Catalog resolves activity type names to runnable instances. Thread-safe.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under typeName. Returns error on duplicate name.
func (c *Catalog) Register(typeName string, f Factory) error {
	if typeName == "" {
		return schema.NewError(schema.ErrCodeValidation, "activity type name is empty")
	}
	if f == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "factory for %q is nil", typeName)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[typeName]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "activity type %q already registered", typeName)
	}
	c.factories[typeName] = f
	return nil
}

// InstantiateActivity returns a new instance of typeName, or false when the
// type is not registered.
func (c *Catalog) InstantiateActivity(typeName string) (Activity, bool) {
	c.mu.RLock()
	f, ok := c.factories[typeName]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

// Has checks if a type is registered.
func (c *Catalog) Has(typeName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.factories[typeName]
	return ok
}

// Count returns the number of registered types.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.factories)
}

// List describes every registered type, sorted by name.
func (c *Catalog) List() []TypeInfo {
	c.mu.RLock()
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)

	infos := make([]TypeInfo, 0, len(names))
	for _, name := range names {
		act, ok := c.InstantiateActivity(name)
		if !ok {
			continue
		}
		_, blocking := act.(Blocking)
		infos = append(infos, TypeInfo{
			Type:     name,
			Outcomes: act.Outcomes(nil),
			Blocking: blocking,
		})
	}
	return infos
}
