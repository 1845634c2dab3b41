// internal/platforms/registry.go
package platforms

import (
	"fmt"
	"sync"

	"courier-gateway/internal/common/logger"
)

// Factory builds an adapter for one platform instance from its decrypted
// credentials.
type Factory func(creds Credentials) (Adapter, error)

// Registry maps platform-type strings to factories and caches one adapter
// instance per (tenant, platform instance). The cache has compute-if-absent
// semantics: a duplicate creation on a cache-miss race is wasteful but safe,
// so no global lock is held around factory calls.
type Registry struct {
	factories map[string]Factory
	cache     sync.Map // cacheKey -> Adapter
	log       logger.Logger
}

func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		log:       log,
	}
}

// Register installs a factory for a platform-type string. Not safe to call
// concurrently with GetOrCreate; registration happens once at startup.
func (r *Registry) Register(platformType string, factory Factory) {
	r.factories[platformType] = factory
}

// Get returns the cached adapter for the key, or nil.
func (r *Registry) Get(tenantID, platformID string) Adapter {
	if v, ok := r.cache.Load(cacheKey(tenantID, platformID)); ok {
		return v.(Adapter)
	}
	return nil
}

// GetOrCreate returns the cached adapter for (tenantID, platformID) or builds
// one via the platform type's factory.
func (r *Registry) GetOrCreate(tenantID, platformID, platformType string, creds Credentials) (Adapter, error) {
	key := cacheKey(tenantID, platformID)
	if v, ok := r.cache.Load(key); ok {
		return v.(Adapter), nil
	}

	factory, ok := r.factories[platformType]
	if !ok {
		return nil, fmt.Errorf("no provider registered for platform type %q", platformType)
	}

	adapter, err := factory(creds)
	if err != nil {
		return nil, err
	}

	actual, loaded := r.cache.LoadOrStore(key, adapter)
	if loaded {
		// Lost the race; the extra instance is dropped.
		return actual.(Adapter), nil
	}
	r.log.Debug("adapter created", map[string]interface{}{
		"platformId":   platformID,
		"platformType": platformType,
	})
	return adapter, nil
}

// Evict removes a cached adapter, e.g. after credentials rotate.
func (r *Registry) Evict(tenantID, platformID string) {
	r.cache.Delete(cacheKey(tenantID, platformID))
}

func cacheKey(tenantID, platformID string) string {
	return tenantID + "/" + platformID
}
