// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the seams through which deployments plug in
// authentication, authorization, and audit logging.
//
// # Design Philosophy
//
// The interview service works out of the box with no identity
// infrastructure: every caller is the "anonymous" user, all actions are
// allowed, and audit events are discarded. Hosted deployments provide real
// implementations of these interfaces and inject them via ServiceOptions.
//
// # Extension Categories
//
//   - auth.go: token validation and authorization (AuthProvider, AuthzProvider)
//   - audit.go: compliance audit logging (AuditLogger)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
package extensions

// ServiceOptions groups the extension points handed to the service
// constructor. Nil fields fall back to the no-op defaults.
//
// Example:
//
//	// Local: use defaults
//	opts := extensions.DefaultOptions()
//
//	// Hosted: inject implementations
//	opts := extensions.ServiceOptions{
//	    AuthProvider: okta.NewProvider(cfg),
//	    AuditLogger:  splunk.NewAuditor(cfg),
//	}
type ServiceOptions struct {
	// AuthProvider validates bearer tokens.
	// Default: NopAuthProvider (everyone is "anonymous").
	AuthProvider AuthProvider

	// AuthzProvider checks permissions.
	// Default: NopAuthzProvider (all actions allowed).
	AuthzProvider AuthzProvider

	// AuditLogger records security-relevant session events.
	// Default: NopAuditLogger (discards everything).
	AuditLogger AuditLogger
}

// DefaultOptions returns the no-op configuration used by local deployments.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider:  &NopAuthProvider{},
		AuthzProvider: &NopAuthzProvider{},
		AuditLogger:   &NopAuditLogger{},
	}
}

// Normalize fills nil fields with the no-op defaults so callers can pass a
// partially populated ServiceOptions.
func (opts ServiceOptions) Normalize() ServiceOptions {
	if opts.AuthProvider == nil {
		opts.AuthProvider = &NopAuthProvider{}
	}
	if opts.AuthzProvider == nil {
		opts.AuthzProvider = &NopAuthzProvider{}
	}
	if opts.AuditLogger == nil {
		opts.AuditLogger = &NopAuditLogger{}
	}
	return opts
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}
