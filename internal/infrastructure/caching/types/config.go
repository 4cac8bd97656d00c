package types

import "time"

// CacheConfig carries the TTLs the stores consult on reads.
type CacheConfig struct {
	SessionTTL time.Duration
	GroupTTL   time.Duration
	FlowTTL    time.Duration
}

// DefaultCacheConfig mirrors the documented retention defaults.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		SessionTTL: 365 * 24 * time.Hour,
		GroupTTL:   365 * 24 * time.Hour,
		FlowTTL:    24 * time.Hour,
	}
}
