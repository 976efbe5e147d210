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
	"compress/flate"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ExtractText dispatches on the declared content type. The returned text is
// raw; callers run it through ValidateExtractedText.
func ExtractText(contentType string, data []byte) (string, error) {
	base, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(base) {
	case ContentTypeTXT:
		return extractTXT(data)
	case ContentTypeDOCX:
		return extractDOCX(data)
	case ContentTypePDF:
		return extractPDF(data)
	default:
		return "", ErrUnsupportedType
	}
}

func extractTXT(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text file is not valid UTF-8")
	}
	return string(data), nil
}

// extractDOCX pulls the run text out of word/document.xml. Paragraph ends
// become newlines so the text keeps its visual structure.
func extractDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("could not open DOCX container: %w", err)
	}

	var doc *zip.File
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", fmt.Errorf("DOCX container has no document body")
	}

	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("could not read DOCX body: %w", err)
	}
	defer rc.Close()

	var out strings.Builder
	decoder := xml.NewDecoder(rc)
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("malformed DOCX body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
	return out.String(), nil
}

// extractPDF is a best-effort text scan: it inflates each Flate content
// stream and collects the literal strings of the text-showing operators.
// Layout-heavy or image-only PDFs yield little text, which the extracted-
// text validation then rejects with a clear message.
func extractPDF(data []byte) (string, error) {
	var out strings.Builder
	rest := data
	found := false
	for {
		start := bytes.Index(rest, []byte("stream"))
		if start < 0 {
			break
		}
		chunk := rest[start+len("stream"):]
		// The stream keyword is followed by an EOL before the data.
		chunk = bytes.TrimPrefix(chunk, []byte("\r\n"))
		chunk = bytes.TrimPrefix(chunk, []byte("\n"))

		end := bytes.Index(chunk, []byte("endstream"))
		if end < 0 {
			break
		}
		if inflated, err := inflate(chunk[:end]); err == nil {
			found = true
			collectPDFStrings(&out, inflated)
		}
		rest = chunk[end+len("endstream"):]
	}
	if !found {
		return "", fmt.Errorf("no readable content streams in PDF")
	}
	return out.String(), nil
}

func inflate(data []byte) ([]byte, error) {
	// zlib wrapper if present, raw deflate otherwise.
	var r io.Reader
	if len(data) > 2 && data[0] == 0x78 {
		r = flate.NewReader(bytes.NewReader(data[2:]))
	} else {
		r = flate.NewReader(bytes.NewReader(data))
	}
	return io.ReadAll(r)
}

// collectPDFStrings appends the parenthesized literals that feed the Tj/TJ
// text operators, honoring backslash escapes.
func collectPDFStrings(out *strings.Builder, content []byte) {
	depth := 0
	var current strings.Builder
	for i := 0; i < len(content); i++ {
		c := content[i]
		switch {
		case c == '\\' && depth > 0 && i+1 < len(content):
			i++
			switch content[i] {
			case 'n':
				current.WriteByte('\n')
			case 't':
				current.WriteByte('\t')
			case '(', ')', '\\':
				current.WriteByte(content[i])
			}
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 && current.Len() > 0 {
				out.WriteString(current.String())
				out.WriteByte(' ')
				current.Reset()
			}
		case depth > 0:
			current.WriteByte(c)
		}
	}
}
