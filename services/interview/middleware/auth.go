// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the interview service.
//
// This package contains middleware for authentication, panic recovery with
// correlation ids, post-request session auto-save, and request metrics. It
// integrates with the extensions package to support enterprise features.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization header,
// validates it using the configured AuthProvider, and stores the resulting
// AuthInfo in the Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	AuthMiddleware
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   ├─► provider.Validate(ctx, token)
//	   │
//	   └─► Store AuthInfo in context
//	           │
//	           ▼
//	       Handler (retrieves via GetAuthInfo)
//
// # Open Source Behavior
//
// When using NopAuthProvider (default), all requests are authenticated as
// "anonymous". Interviews work without accounts; identity only gates the
// session-listing endpoint and audit attribution.
//
// # Enterprise Behavior
//
// Enterprise implementations validate tokens against identity providers
// (Okta, Auth0, Azure AD) and return real user identity information.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/AleutianAI/AleutianInterview/pkg/extensions"
	"github.com/gin-gonic/gin"
)

// authInfoKey is the context key for storing AuthInfo.
// Using a namespaced key prevents collisions with other context values.
const authInfoKey = "aleutian_auth_info"

// SetAuthInfo stores the authenticated user info in the Gin context.
// Called by AuthMiddleware after successful authentication.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated user info from the Gin context.
// Returns nil if AuthMiddleware did not run or stored nothing; nil is safe
// to treat as the anonymous user via AuthInfo.Anonymous.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// UserID returns the authenticated user id, or the anonymous id when the
// request carries no verified identity.
func UserID(c *gin.Context) string {
	info := GetAuthInfo(c)
	if info.Anonymous() {
		return extensions.AnonymousUserID
	}
	return info.UserID
}

// AuthMiddleware creates a Gin middleware that authenticates requests.
//
// The middleware expects tokens in the Authorization header:
//
//	Authorization: Bearer <token>
//
// If the header is missing or malformed, the token passed to Validate is the
// empty string. NopAuthProvider accepts this and returns the anonymous user,
// so session endpoints keep working with no credentials at all.
func AuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		authInfo, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, extensions.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
				return
			}
			// Provider failures, network issues, and the like.
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
			})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}

// extractBearerToken extracts the token from the Authorization header.
// Returns empty string if the header is missing or malformed. The "Bearer"
// prefix is case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
