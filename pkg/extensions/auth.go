// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// AnonymousUserID is the identity assigned to callers with no (or an
// unverifiable) bearer token. Interview endpoints never require more.
const AnonymousUserID = "anonymous"

// ErrUnauthorized is returned when authentication or authorization fails.
// Implementations should wrap it with additional context:
//
//	return nil, fmt.Errorf("token expired: %w", extensions.ErrUnauthorized)
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo is the identity returned after successful authentication.
// Metadata carries provider-specific claims without widening the struct.
type AuthInfo struct {
	// UserID is the only required field; AnonymousUserID for guests.
	UserID string

	// Email may be empty when the provider does not expose it.
	Email string

	// Roles lists group memberships for authorization decisions.
	Roles []string

	// Metadata holds additional claims ("mfa_verified", "department", ...).
	Metadata Metadata
}

// Anonymous reports whether this identity is the guest user.
func (a *AuthInfo) Anonymous() bool {
	return a == nil || a.UserID == "" || a.UserID == AnonymousUserID
}

// HasRole checks membership in a single role.
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates bearer tokens and returns the caller's identity.
//
// Implementations must be safe for concurrent use. The default
// NopAuthProvider maps every token, including none at all, to the anonymous
// user; hosted deployments validate against their identity provider and
// return ErrUnauthorized for bad tokens.
type AuthProvider interface {
	// Validate checks the token and returns the caller's identity.
	// The token format is implementation-specific (JWT, API key, session id).
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest describes one (subject, action, resource) permission check.
type AuthzRequest struct {
	// User comes from AuthProvider.Validate.
	User *AuthInfo

	// Action is the operation: "create", "read", "end", "cleanup".
	Action string

	// ResourceType is the category: "session", "speech_task", "resume".
	ResourceType string

	// ResourceID is the specific instance; empty checks the type generally.
	ResourceID string
}

// AuthzProvider checks whether a user may perform an action.
// Implementations must be safe for concurrent use.
type AuthzProvider interface {
	// Authorize returns nil when permitted, ErrUnauthorized (or wrapped)
	// when denied.
	Authorize(ctx context.Context, req AuthzRequest) error
}

// NopAuthProvider authenticates everyone as the anonymous user. Interview
// sessions work without accounts; identity only gates the session-listing
// endpoint and audit attribution.
type NopAuthProvider struct{}

// Validate ignores the token and returns the anonymous identity.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{UserID: AnonymousUserID}, nil
}

// NopAuthzProvider allows every action.
type NopAuthzProvider struct{}

// Authorize always returns nil.
func (p *NopAuthzProvider) Authorize(_ context.Context, _ AuthzRequest) error {
	return nil
}

var (
	_ AuthProvider  = (*NopAuthProvider)(nil)
	_ AuthzProvider = (*NopAuthzProvider)(nil)
)
