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
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDKey is the context key for the per-request correlation id.
const requestIDKey = "aleutian_request_id"

// RequestID returns the correlation id assigned by Recovery, or "" when the
// middleware did not run.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Recovery assigns every request a correlation id (also echoed in the
// X-Request-ID response header) and converts panics into a 500 carrying that
// id, logging the panic with stack context. It replaces gin.Recovery so
// clients always get a reference they can quote back to operators.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		defer func() {
			if r := recover(); r != nil {
				slog.Error("Request handler panicked",
					"request_id", requestID,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"panic", r,
					"stack", string(debug.Stack()))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "internal server error",
					"request_id": requestID,
				})
			}
		}()

		c.Next()
	}
}
