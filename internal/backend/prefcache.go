package backend

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// PrefCache stores preference-match results in Redis.  A nil *PrefCache,
// or one without a client, is a disabled cache: every lookup misses and
// writes are dropped.
type PrefCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewPrefCache returns a cache backed by rdb.  It returns nil when rdb is
// nil so callers can pass the result straight into Options.
func NewPrefCache(rdb *redis.Client, ttl time.Duration, prefix string) *PrefCache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if prefix == "" {
		prefix = "prefs"
	}
	return &PrefCache{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (p *PrefCache) enabled() bool { return p != nil && p.rdb != nil }

// Get returns cached ids for date and prefs.
func (p *PrefCache) Get(ctx context.Context, date string, prefs []string) ([]uint64, bool) {
	if !p.enabled() {
		return nil, false
	}
	bs, err := p.rdb.Get(ctx, p.key(date, prefs)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("prefcache: get failed: %v", err)
		}
		return nil, false
	}
	var ids []uint64
	if err := json.Unmarshal(bs, &ids); err != nil {
		return nil, false
	}
	return ids, true
}

// Set stores ids for date and prefs.
func (p *PrefCache) Set(ctx context.Context, date string, prefs []string, ids []uint64) {
	if !p.enabled() {
		return
	}
	bs, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := p.rdb.Set(ctx, p.key(date, prefs), bs, p.ttl).Err(); err != nil {
		log.Printf("prefcache: set failed: %v", err)
	}
}

// InvalidateDate drops every cached result for date.  Furniture moved on a
// date changes which units are free, so matches for that date are stale.
func (p *PrefCache) InvalidateDate(ctx context.Context, date string) {
	if !p.enabled() || date == "" {
		return
	}
	iter := p.rdb.Scan(ctx, 0, p.datePrefix(date)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("prefcache: scan failed: %v", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := p.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Printf("prefcache: delete failed: %v", err)
	}
}

func (p *PrefCache) datePrefix(date string) string {
	return fmt.Sprintf("%s:%s:", p.prefix, date)
}

// key hashes the sorted preference codes so the order the reservation
// lists them in does not matter.
func (p *PrefCache) key(date string, prefs []string) string {
	return p.datePrefix(date) + PrefsDigest(prefs)
}

// PrefsDigest returns a stable digest of a set of preference codes.
func PrefsDigest(prefs []string) string {
	sorted := append([]string(nil), prefs...)
	for i := range sorted {
		sorted[i] = strings.ToLower(strings.TrimSpace(sorted[i]))
	}
	sort.Strings(sorted)
	sum := sha1.Sum([]byte(strings.Join(sorted, ",")))
	return fmt.Sprintf("%x", sum[:])
}
