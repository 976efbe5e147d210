// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resume extracts text from uploaded résumé files (PDF, DOCX, TXT)
// with the security guards the upload endpoint depends on: filename
// hygiene, size caps, and extracted-content sanity checks.
package resume

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Upload limits.
const (
	MaxFileSize       = 10 * 1024 * 1024
	MaxTextLength     = 1000 * 1024
	MinTextLength     = 10
	MaxFilenameLength = 255
)

// Validation errors. Handlers map these to 400/413; anything else from
// extraction is a 500 with ErrProcessingFailed's message.
var (
	ErrFilenameRequired = errors.New("filename is required")
	ErrFilenameTooLong  = fmt.Errorf("filename is too long, maximum length is %d characters", MaxFilenameLength)
	ErrFilenameUnsafe   = errors.New("invalid filename, please use a simple filename without paths")
	ErrUnsupportedType  = errors.New("unsupported file type, please upload a PDF, DOCX, or TXT file")
	ErrFileTooLarge     = fmt.Errorf("file size exceeds the maximum limit of %d MB", MaxFileSize/(1024*1024))
	ErrTextTooLarge     = fmt.Errorf("extracted text exceeds the maximum limit of %d KB", MaxTextLength/1024)
	ErrEmptyContent     = errors.New("the uploaded file appears to be empty or contains no readable text")
	ErrProcessingFailed = errors.New("failed to process the uploaded file, please try again with a different file")
)

// Content types accepted by the upload endpoint.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ContentTypeTXT  = "text/plain"
)

var allowedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".txt":  true,
}

var allowedContentTypes = map[string]bool{
	ContentTypePDF:  true,
	ContentTypeDOCX: true,
	ContentTypeTXT:  true,
}

// ValidateUpload checks the filename and declared content type before any
// bytes are read.
func ValidateUpload(filename, contentType string) error {
	if err := validateFilename(filename); err != nil {
		return err
	}
	// Some clients send parameters after the media type.
	base, _, _ := strings.Cut(contentType, ";")
	if !allowedContentTypes[strings.TrimSpace(base)] {
		return ErrUnsupportedType
	}
	if !allowedExtensions[strings.ToLower(filepath.Ext(filename))] {
		return ErrUnsupportedType
	}
	return nil
}

func validateFilename(filename string) error {
	if filename == "" {
		return ErrFilenameRequired
	}
	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}
	if strings.Contains(filename, "..") ||
		strings.Contains(filename, "/") ||
		strings.Contains(filename, "\\") {
		slog.Warn("Suspicious upload filename rejected", "filename", filename)
		return ErrFilenameUnsafe
	}
	return nil
}

// ValidateSize rejects payloads over the upload cap.
func ValidateSize(size int) error {
	if size > MaxFileSize {
		return ErrFileTooLarge
	}
	return nil
}

// ValidateExtractedText trims and bounds the extracted text. Oversized text
// is rejected before trimming; too-short text after.
func ValidateExtractedText(text string) (string, error) {
	if len(text) > MaxTextLength {
		return "", ErrTextTooLarge
	}
	clean := strings.TrimSpace(text)
	if len(clean) < MinTextLength {
		return "", ErrEmptyContent
	}
	return clean, nil
}
