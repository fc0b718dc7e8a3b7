package usecase

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/allisson/propflow/internal/webhook/domain"
)

// EndpointCache keeps recent endpoint lookups in memory. Entries carry sealed
// secrets exactly as read from the repository.
type EndpointCache struct {
	cache *cache.Cache
}

// NewEndpointCache creates an EndpointCache. A ttl of zero or less disables caching.
func NewEndpointCache(ttl time.Duration) *EndpointCache {
	if ttl <= 0 {
		return &EndpointCache{}
	}
	return &EndpointCache{cache: cache.New(ttl, 2*ttl)}
}

func tenantKey(tenantID string) string { return "tenant:" + tenantID }

func endpointKey(id uuid.UUID) string { return "endpoint:" + id.String() }

// Tenant returns the cached endpoints of tenantID.
func (c *EndpointCache) Tenant(tenantID string) ([]*domain.Endpoint, bool) {
	if c.cache == nil {
		return nil, false
	}
	v, ok := c.cache.Get(tenantKey(tenantID))
	if !ok {
		return nil, false
	}
	return v.([]*domain.Endpoint), true
}

// SetTenant caches the endpoints of tenantID.
func (c *EndpointCache) SetTenant(tenantID string, endpoints []*domain.Endpoint) {
	if c.cache == nil {
		return
	}
	c.cache.SetDefault(tenantKey(tenantID), endpoints)
}

// Endpoint returns the cached endpoint with id.
func (c *EndpointCache) Endpoint(id uuid.UUID) (*domain.Endpoint, bool) {
	if c.cache == nil {
		return nil, false
	}
	v, ok := c.cache.Get(endpointKey(id))
	if !ok {
		return nil, false
	}
	return v.(*domain.Endpoint), true
}

// SetEndpoint caches one endpoint.
func (c *EndpointCache) SetEndpoint(endpoint *domain.Endpoint) {
	if c.cache == nil {
		return
	}
	c.cache.SetDefault(endpointKey(endpoint.ID), endpoint)
}

// Invalidate drops the tenant list and the endpoint entry.
func (c *EndpointCache) Invalidate(tenantID string, id uuid.UUID) {
	if c.cache == nil {
		return
	}
	c.cache.Delete(tenantKey(tenantID))
	c.cache.Delete(endpointKey(id))
}
