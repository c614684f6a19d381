package store

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/rendis/flowgraph/pkg/schema"
)

// CachedDefinitions caches GetDefinition results of another DefinitionStore.
// Writes go through and invalidate the cached entry.
type CachedDefinitions struct {
	next  DefinitionStore
	cache *gocache.Cache
}

var _ DefinitionStore = (*CachedDefinitions)(nil)

// NewCachedDefinitions wraps next with a TTL cache. A non-positive ttl
// caches without expiration.
func NewCachedDefinitions(next DefinitionStore, ttl time.Duration) *CachedDefinitions {
	expiry := ttl
	if expiry <= 0 {
		expiry = gocache.NoExpiration
	}
	return &CachedDefinitions{
		next:  next,
		cache: gocache.New(expiry, 10*time.Minute),
	}
}

func (c *CachedDefinitions) GetDefinition(ctx context.Context, id string) (*schema.WorkflowType, error) {
	if v, ok := c.cache.Get(id); ok {
		return cloneDefinition(v.(*schema.WorkflowType))
	}
	def, err := c.next.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	cp, err := cloneDefinition(def)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(id, cp)
	return def, nil
}

func (c *CachedDefinitions) SaveDefinition(ctx context.Context, def *schema.WorkflowType) error {
	c.cache.Delete(def.ID)
	return c.next.SaveDefinition(ctx, def)
}

func (c *CachedDefinitions) ListDefinitions(ctx context.Context) ([]*schema.WorkflowType, error) {
	return c.next.ListDefinitions(ctx)
}

func (c *CachedDefinitions) DeleteDefinition(ctx context.Context, id string) error {
	c.cache.Delete(id)
	return c.next.DeleteDefinition(ctx, id)
}

// Len returns the number of cached definitions.
func (c *CachedDefinitions) Len() int { return c.cache.ItemCount() }
