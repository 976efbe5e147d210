// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import "time"

// Metadata is a typed-accessor map for provider-specific claims and audit
// details. The zero value is usable with Get/Has; use NewMetadata or Set
// before writing.
type Metadata map[string]any

// NewMetadata returns an empty, writable Metadata.
func NewMetadata() Metadata {
	return make(Metadata)
}

// Set stores a value and returns the map for chaining:
//
//	md := NewMetadata().Set("department", "eng").Set("mfa_verified", true)
func (m Metadata) Set(key string, value any) Metadata {
	if m == nil {
		m = make(Metadata)
	}
	m[key] = value
	return m
}

// Get returns the raw value and whether it exists.
func (m Metadata) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// GetString returns the value when it is a string.
func (m Metadata) GetString(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt returns the value when it is an int.
func (m Metadata) GetInt(key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(int)
	return n, ok
}

// GetFloat64 returns the value when it is a float64.
func (m Metadata) GetFloat64(key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// GetBool returns the value when it is a bool.
func (m Metadata) GetBool(key string) (bool, bool) {
	v, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetTime returns the value when it is a time.Time.
func (m Metadata) GetTime(key string) (time.Time, bool) {
	v, ok := m[key]
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

// Has reports whether the key exists.
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Clone returns a shallow copy; nil clones to nil.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge copies other's entries over m's and returns m.
func (m Metadata) Merge(other Metadata) Metadata {
	if m == nil {
		m = make(Metadata, len(other))
	}
	for k, v := range other {
		m[k] = v
	}
	return m
}

// Len returns the entry count.
func (m Metadata) Len() int { return len(m) }
