// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/AleutianInterview/pkg/extensions"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/registry"
	"github.com/AleutianAI/AleutianInterview/services/interview/session"
	"github.com/AleutianAI/AleutianInterview/services/interview/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// rejectingAuthProvider denies every token.
type rejectingAuthProvider struct{}

func (p *rejectingAuthProvider) Validate(_ context.Context, token string) (*extensions.AuthInfo, error) {
	return nil, fmt.Errorf("token %q rejected: %w", token, extensions.ErrUnauthorized)
}

func TestAuthMiddlewareAnonymousDefault(t *testing.T) {
	router := gin.New()
	router.Use(AuthMiddleware(&extensions.NopAuthProvider{}))
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), extensions.AnonymousUserID)
}

func TestAuthMiddlewareRejectsBadToken(t *testing.T) {
	router := gin.New()
	router.Use(AuthMiddleware(&rejectingAuthProvider{}))
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer ABC123", "ABC123"},
		{"Basic dXNlcjpwYXNz", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			c.Request.Header.Set("Authorization", tc.header)
		}
		assert.Equal(t, tc.want, extractBearerToken(c), "header %q", tc.header)
	}
}

func TestRecoveryConvertsPanic(t *testing.T) {
	router := gin.New()
	router.Use(Recovery())
	router.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "request_id")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRecoveryAssignsRequestID(t *testing.T) {
	router := gin.New()
	router.Use(Recovery())
	var seen string
	router.GET("/ok", func(c *gin.Context) {
		seen = RequestID(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
}

func TestAutoSaveFlushesDirtySession(t *testing.T) {
	gateway := store.NewMemoryStore()
	reg := registry.New(gateway, session.Deps{})

	id, err := reg.CreateSession(context.Background(), "", datatypes.SessionConfig{JobRole: "SRE"})
	require.NoError(t, err)

	// Dirty the session without saving.
	require.NoError(t, reg.WithSession(context.Background(), id, func(m *session.Manager) error {
		m.ResetSession()
		return nil
	}))

	router := gin.New()
	router.Use(AutoSave(reg))
	router.POST("/touch", func(c *gin.Context) {
		MarkSessionTouched(c, id)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/touch", nil))
	require.Equal(t, http.StatusOK, w.Code)

	mgr, err := reg.GetSessionManager(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, mgr.NeedsSave(), "auto-save should have cleared the dirty flag")
}

func TestTouchedSessionFallsBackToHeader(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set(SessionHeader, "header-session")
	assert.Equal(t, "header-session", TouchedSession(c))

	MarkSessionTouched(c, "explicit-session")
	assert.Equal(t, "explicit-session", TouchedSession(c))
}

func TestEndpointGroup(t *testing.T) {
	cases := map[string]string{
		"/interview/session":           "session",
		"/interview/session/ping":      "session",
		"/interview/message":           "interview",
		"/api/speech-to-text":          "speech",
		"/api/text-to-speech":          "speech",
		"/files/upload-resume":         "files",
		"/health":                      "system",
		"":                             "unknown",
		"/interview/sessions":          "session",
		"/api/speech/usage-stats":      "speech",
		"/api/speech-to-text/status/x": "speech",
	}
	for path, want := range cases {
		assert.Equal(t, want, endpointGroup(path), "path %q", path)
	}
}
