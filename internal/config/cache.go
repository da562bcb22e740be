package config

import (
    "strings"
    "time"
)

// PrefsCacheConfig controls the Redis cache in front of the preference
// match endpoint.  Matches are stored under Prefix:date:digest for TTL.
type PrefsCacheConfig struct {
    Enabled bool
    TTL     time.Duration
    Prefix  string
}

// LoadPrefsCacheConfig reads PREFS_CACHE_ENABLED, PREFS_CACHE_TTL and
// PREFS_CACHE_PREFIX.
func LoadPrefsCacheConfig() PrefsCacheConfig {
    return PrefsCacheConfig{
        Enabled: envBool("PREFS_CACHE_ENABLED", true),
        TTL:     envDur("PREFS_CACHE_TTL", 60*time.Second),
        Prefix:  strings.TrimSuffix(envStr("PREFS_CACHE_PREFIX", "prefs"), ":"),
    }
}
