// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"testing"
	"time"
)

func TestNopAuthProviderIsAnonymous(t *testing.T) {
	p := &NopAuthProvider{}
	for _, token := range []string{"", "any-token", "Bearer xyz"} {
		info, err := p.Validate(context.Background(), token)
		if err != nil {
			t.Fatalf("Validate(%q) failed: %v", token, err)
		}
		if info.UserID != AnonymousUserID {
			t.Errorf("Validate(%q).UserID = %q, want %q", token, info.UserID, AnonymousUserID)
		}
		if !info.Anonymous() {
			t.Errorf("Validate(%q) should be anonymous", token)
		}
	}
}

func TestAuthInfoAnonymous(t *testing.T) {
	var nilInfo *AuthInfo
	if !nilInfo.Anonymous() {
		t.Error("nil AuthInfo must be anonymous")
	}
	if (&AuthInfo{UserID: "user-1"}).Anonymous() {
		t.Error("named user is not anonymous")
	}
}

func TestAuthInfoHasRole(t *testing.T) {
	info := &AuthInfo{UserID: "u", Roles: []string{"viewer", "coach"}}
	if !info.HasRole("coach") {
		t.Error("expected coach role")
	}
	if info.HasRole("admin") {
		t.Error("unexpected admin role")
	}
}

func TestNopAuthzAllowsEverything(t *testing.T) {
	p := &NopAuthzProvider{}
	err := p.Authorize(context.Background(), AuthzRequest{
		User:         &AuthInfo{UserID: AnonymousUserID},
		Action:       "cleanup",
		ResourceType: "session",
	})
	if err != nil {
		t.Errorf("nop authz should allow all actions, got %v", err)
	}
}

func TestNopAuditLogger(t *testing.T) {
	l := &NopAuditLogger{}
	ctx := context.Background()
	if err := l.Log(ctx, AuditEvent{EventType: AuditSessionCreated}); err != nil {
		t.Error(err)
	}
	events, err := l.Query(ctx, AuditFilter{UserID: "u"})
	if err != nil || events != nil {
		t.Errorf("nop query should return nothing, got %v, %v", events, err)
	}
	if err := l.Flush(ctx); err != nil {
		t.Error(err)
	}
}

func TestServiceOptionsNormalize(t *testing.T) {
	opts := ServiceOptions{}.Normalize()
	if opts.AuthProvider == nil || opts.AuthzProvider == nil || opts.AuditLogger == nil {
		t.Fatal("Normalize must fill every nil seam")
	}

	custom := &NopAuthProvider{}
	opts = ServiceOptions{AuthProvider: custom}.Normalize()
	if opts.AuthProvider != custom {
		t.Error("Normalize must not replace provided implementations")
	}
}

func TestMetadataAccessors(t *testing.T) {
	now := time.Now()
	md := NewMetadata().
		Set("department", "engineering").
		Set("attempts", 3).
		Set("score", 0.9).
		Set("mfa_verified", true).
		Set("issued_at", now)

	if s, ok := md.GetString("department"); !ok || s != "engineering" {
		t.Errorf("GetString = %q, %v", s, ok)
	}
	if n, ok := md.GetInt("attempts"); !ok || n != 3 {
		t.Errorf("GetInt = %d, %v", n, ok)
	}
	if f, ok := md.GetFloat64("score"); !ok || f != 0.9 {
		t.Errorf("GetFloat64 = %f, %v", f, ok)
	}
	if b, ok := md.GetBool("mfa_verified"); !ok || !b {
		t.Errorf("GetBool = %v, %v", b, ok)
	}
	if ts, ok := md.GetTime("issued_at"); !ok || !ts.Equal(now) {
		t.Errorf("GetTime = %v, %v", ts, ok)
	}

	// Wrong type lookups miss rather than panic.
	if _, ok := md.GetString("attempts"); ok {
		t.Error("GetString on int should miss")
	}
	if md.Has("missing") {
		t.Error("Has on absent key")
	}
}

func TestMetadataCloneAndMerge(t *testing.T) {
	base := NewMetadata().Set("a", 1)
	clone := base.Clone()
	clone.Set("a", 2)
	if v, _ := base.GetInt("a"); v != 1 {
		t.Error("clone must not alias the original")
	}

	merged := base.Merge(NewMetadata().Set("b", 2))
	if merged.Len() != 2 || !merged.Has("b") {
		t.Errorf("merge result wrong: %v", merged)
	}

	var nilMD Metadata
	if nilMD.Clone() != nil {
		t.Error("nil clones to nil")
	}
	if got := nilMD.Merge(NewMetadata().Set("x", 1)); !got.Has("x") {
		t.Error("merge into nil must allocate")
	}
}
