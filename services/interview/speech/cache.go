// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package speech

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// audioCacheMaxEntries bounds the synthesis cache. Audio payloads run tens
// of kilobytes each, so 50 entries stays within a few megabytes.
const audioCacheMaxEntries = 50

// cacheableMaxLen restricts caching to short texts; long interview
// questions are session-specific and would just churn the cache.
const cacheableMaxLen = 100

// commonPhrases mark the interstitial lines the interviewer reuses across
// sessions. Only texts containing one of these are worth caching.
var commonPhrases = []string{
	"thank you",
	"tell me about",
	"could you",
	"let's",
	"great",
	"okay",
	"welcome",
	"next question",
	"one moment",
	"good luck",
}

// audioCache is a bounded in-memory synthesis cache keyed by
// (text, voice, speed). Eviction is oldest-insertion-first.
type audioCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	order   []string
}

func newAudioCache() *audioCache {
	return &audioCache{entries: make(map[string][]byte)}
}

// cacheKey hashes the request tuple; md5 is fine for a cache key.
func cacheKey(text, voice string, speed float64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%.2f", text, voice, speed)))
	return hex.EncodeToString(sum[:])
}

// cacheable reports whether a synthesis request qualifies for caching.
func cacheable(text string) bool {
	if len(text) >= cacheableMaxLen {
		return false
	}
	low := strings.ToLower(text)
	for _, p := range commonPhrases {
		if strings.Contains(low, p) {
			return true
		}
	}
	return false
}

func (c *audioCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	audio, ok := c.entries[key]
	return audio, ok
}

func (c *audioCache) set(key string, audio []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		return
	}
	for len(c.entries) >= audioCacheMaxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = audio
	c.order = append(c.order, key)
}

func (c *audioCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
