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
	"fmt"
	"strings"
	"testing"
)

func TestCacheable(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Thank you for joining me today.", true},
		{"Welcome! Let's begin.", true},
		{"Describe a distributed system you built.", false},
		// Common phrase but too long.
		{"Thank you. " + strings.Repeat("More detail please. ", 10), false},
		{"", false},
	}
	for _, tc := range cases {
		if got := cacheable(tc.text); got != tc.want {
			t.Errorf("cacheable(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestCacheKeyDistinguishesTuple(t *testing.T) {
	base := cacheKey("hello", "Patrick", 1.0)
	if cacheKey("hello", "Patrick", 1.5) == base {
		t.Error("speed must change the key")
	}
	if cacheKey("hello", "Joanna", 1.0) == base {
		t.Error("voice must change the key")
	}
	if cacheKey("hello there", "Patrick", 1.0) == base {
		t.Error("text must change the key")
	}
	if cacheKey("hello", "Patrick", 1.0) != base {
		t.Error("identical tuples must agree")
	}
}

func TestAudioCacheEvictsOldestFirst(t *testing.T) {
	c := newAudioCache()
	for i := 0; i < audioCacheMaxEntries+5; i++ {
		c.set(fmt.Sprintf("key-%d", i), []byte{byte(i)})
	}
	if c.len() != audioCacheMaxEntries {
		t.Fatalf("cache size %d, want %d", c.len(), audioCacheMaxEntries)
	}
	if _, ok := c.get("key-0"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.get(fmt.Sprintf("key-%d", audioCacheMaxEntries+4)); !ok {
		t.Error("newest entry should be resident")
	}
}

func TestAudioCacheDuplicateSetKeepsFirst(t *testing.T) {
	c := newAudioCache()
	c.set("k", []byte("first"))
	c.set("k", []byte("second"))
	audio, ok := c.get("k")
	if !ok || string(audio) != "first" {
		t.Errorf("duplicate set should be a no-op, got %q", audio)
	}
	if c.len() != 1 {
		t.Errorf("expected 1 entry, got %d", c.len())
	}
}
