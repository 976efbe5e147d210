// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resume

import (
	"archive/zip"
	"bytes"
	"compress/zlib"
	"errors"
	"strings"
	"testing"
)

func TestValidateUploadFilenameGuards(t *testing.T) {
	cases := []struct {
		name     string
		filename string
		want     error
	}{
		{"empty", "", ErrFilenameRequired},
		{"too long", strings.Repeat("a", 256) + ".pdf", ErrFilenameTooLong},
		{"traversal", "../../etc/passwd.pdf", ErrFilenameUnsafe},
		{"forward slash", "dir/resume.pdf", ErrFilenameUnsafe},
		{"backslash", `dir\resume.pdf`, ErrFilenameUnsafe},
		{"clean", "resume.pdf", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUpload(tc.filename, ContentTypePDF)
			if !errors.Is(err, tc.want) {
				t.Errorf("ValidateUpload(%q) = %v, want %v", tc.filename, err, tc.want)
			}
		})
	}
}

func TestValidateUploadTypeGuards(t *testing.T) {
	if err := ValidateUpload("resume.exe", "application/octet-stream"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("binary upload should be rejected, got %v", err)
	}
	// Extension must agree with an allowed type even when the declared
	// content type is fine.
	if err := ValidateUpload("resume.exe", ContentTypePDF); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("mismatched extension should be rejected, got %v", err)
	}
	if err := ValidateUpload("resume.txt", "text/plain; charset=utf-8"); err != nil {
		t.Errorf("content-type parameters should be tolerated, got %v", err)
	}
}

func TestValidateSize(t *testing.T) {
	if err := ValidateSize(MaxFileSize); err != nil {
		t.Errorf("size at the limit should pass, got %v", err)
	}
	if err := ValidateSize(MaxFileSize + 1); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("oversized file should be rejected, got %v", err)
	}
}

func TestValidateExtractedText(t *testing.T) {
	got, err := ValidateExtractedText("  Senior engineer, ten years of Go.  ")
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(got, " ") || strings.HasSuffix(got, " ") {
		t.Errorf("text should be trimmed: %q", got)
	}

	if _, err := ValidateExtractedText("   hi   "); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("short text should be rejected, got %v", err)
	}
	if _, err := ValidateExtractedText(strings.Repeat("x", MaxTextLength+1)); !errors.Is(err, ErrTextTooLarge) {
		t.Errorf("oversized text should be rejected, got %v", err)
	}
}

func TestExtractTXT(t *testing.T) {
	text, err := ExtractText(ContentTypeTXT, []byte("plain resume body"))
	if err != nil || text != "plain resume body" {
		t.Errorf("got %q, %v", text, err)
	}
	if _, err := ExtractText(ContentTypeTXT, []byte{0xff, 0xfe, 0x00}); err == nil {
		t.Error("invalid UTF-8 should be rejected")
	}
}

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtractDOCX(t *testing.T) {
	doc := buildDOCX(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Jane Doe</w:t></w:r></w:p>
    <w:p><w:r><w:t>Backend engineer, </w:t></w:r><w:r><w:t>Go and Rust.</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	text, err := ExtractText(ContentTypeDOCX, doc)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "Jane Doe") {
		t.Errorf("missing first paragraph: %q", text)
	}
	if !strings.Contains(text, "Backend engineer, Go and Rust.") {
		t.Errorf("runs within a paragraph must concatenate: %q", text)
	}
	if !strings.Contains(text, "Jane Doe\n") {
		t.Errorf("paragraphs should break lines: %q", text)
	}
}

func TestExtractDOCXRejectsGarbage(t *testing.T) {
	if _, err := ExtractText(ContentTypeDOCX, []byte("not a zip archive")); err == nil {
		t.Error("non-zip payload should fail")
	}
	empty := buildDOCX(t, "")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if _, err := zw.Create("word/other.xml"); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	if _, err := ExtractText(ContentTypeDOCX, buf.Bytes()); err == nil {
		t.Error("archive without document body should fail")
	}
	_ = empty
}

func buildPDF(t *testing.T, content string) []byte {
	t.Helper()
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	zw.Close()

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n1 0 obj\n<< /Filter /FlateDecode >>\nstream\n")
	buf.Write(compressed.Bytes())
	buf.WriteString("\nendstream\nendobj\n%%EOF")
	return buf.Bytes()
}

func TestExtractPDF(t *testing.T) {
	pdf := buildPDF(t, `BT /F1 12 Tf (Jane Doe) Tj (Staff engineer \(backend\)) Tj ET`)
	text, err := ExtractText(ContentTypePDF, pdf)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "Jane Doe") {
		t.Errorf("missing literal string: %q", text)
	}
	if !strings.Contains(text, "Staff engineer (backend)") {
		t.Errorf("escaped parentheses must survive: %q", text)
	}
}

func TestExtractPDFNoStreams(t *testing.T) {
	if _, err := ExtractText(ContentTypePDF, []byte("%PDF-1.4 empty")); err == nil {
		t.Error("PDF without content streams should fail")
	}
}
