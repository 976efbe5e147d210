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
	"strings"

	"github.com/AleutianAI/AleutianInterview/services/interview/observability"
	"github.com/gin-gonic/gin"
)

// RequestMetrics records one counter increment per completed request,
// labeled by endpoint group and success (status < 400). No-op when metrics
// were not initialized.
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		m := observability.DefaultMetrics
		if m == nil {
			return
		}
		m.RecordRequest(endpointGroup(c.FullPath()), c.Writer.Status() < 400)
	}
}

// endpointGroup maps a route path to its coarse metrics label. Individual
// paths would explode label cardinality; groups keep dashboards stable.
func endpointGroup(path string) string {
	switch {
	case path == "":
		return "unknown"
	case strings.HasPrefix(path, "/interview/session"):
		return "session"
	case strings.HasPrefix(path, "/interview"):
		return "interview"
	case strings.HasPrefix(path, "/api/speech") || strings.HasPrefix(path, "/api/text-to-speech"):
		return "speech"
	case strings.HasPrefix(path, "/files"):
		return "files"
	default:
		return "system"
	}
}
