// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"sync"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

// DefaultCacheTTL is how long a query's results stay fresh. Search results
// for skill topics barely change within an hour.
const DefaultCacheTTL = 3600 * time.Second

type cacheEntry struct {
	resources []datatypes.Resource
	expiresAt time.Time
}

// queryCache is a TTL cache keyed by normalized query string. Expired
// entries are pruned lazily on write.
type queryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func newQueryCache(ttl time.Duration) *queryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &queryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *queryCache) get(key string) ([]datatypes.Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	out := make([]datatypes.Resource, len(entry.resources))
	copy(out, entry.resources)
	return out, true
}

func (c *queryCache) set(key string, resources []datatypes.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	stored := make([]datatypes.Resource, len(resources))
	copy(stored, resources)
	c.entries[key] = cacheEntry{resources: stored, expiresAt: now.Add(c.ttl)}
}
