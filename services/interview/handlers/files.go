// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianInterview/pkg/extensions"
	"github.com/AleutianAI/AleutianInterview/services/interview/resume"
	"github.com/gin-gonic/gin"
)

// UploadResume handles POST /files/upload-resume (multipart field "file").
// The extracted text is returned to the client, which passes it back in the
// session-creation request; nothing is stored server-side.
func UploadResume(auditLog extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
			return
		}

		contentType := file.Header.Get("Content-Type")
		if err := resume.ValidateUpload(file.Filename, contentType); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := resume.ValidateSize(int(file.Size)); err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			return
		}

		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": resume.ErrProcessingFailed.Error()})
			return
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, resume.MaxFileSize+1))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": resume.ErrProcessingFailed.Error()})
			return
		}
		if err := resume.ValidateSize(len(data)); err != nil {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			return
		}

		text, err := resume.ExtractText(contentType, data)
		if err != nil {
			slog.Warn("Resume extraction failed",
				"filename", file.Filename, "content_type", contentType, "error", err)
			audit(c, auditLog, extensions.AuditResumeUploaded, "upload", "resume", file.Filename, "error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": resume.ErrProcessingFailed.Error()})
			return
		}

		cleaned, err := resume.ValidateExtractedText(text)
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, resume.ErrTextTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		audit(c, auditLog, extensions.AuditResumeUploaded, "upload", "resume", file.Filename, "success")
		slog.Info("Resume processed",
			"filename", file.Filename, "text_length", len(cleaned))
		c.JSON(http.StatusOK, gin.H{
			"filename":    file.Filename,
			"resume_text": cleaned,
			"message":     "resume processed successfully",
		})
	}
}
