package skin_cache

import "github.com/Carmen-Shannon/oxy-anim/engine/logging"

// SkinCacheBuilderOption is a functional option for configuring a SkinCache during construction.
type SkinCacheBuilderOption func(*skinCache)

// WithSettings sets the cache capacity settings.
//
// Parameters:
//   - settings: the settings
//
// Returns:
//   - SkinCacheBuilderOption: a function that applies the settings option to a cache
func WithSettings(settings Settings) SkinCacheBuilderOption {
	return func(c *skinCache) {
		c.settings = settings
	}
}

// WithBackend sets the skinning backend.
//
// Parameters:
//   - backend: the backend; the cache releases it on Close
//
// Returns:
//   - SkinCacheBuilderOption: a function that applies the backend option to a cache
func WithBackend(backend SkinningBackend) SkinCacheBuilderOption {
	return func(c *skinCache) {
		c.backend = backend
	}
}

// WithLogger sets the logger used for eviction diagnostics.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - SkinCacheBuilderOption: a function that applies the logger option to a cache
func WithLogger(logger logging.Logger) SkinCacheBuilderOption {
	return func(c *skinCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}
