// Package docxextract pulls plain text out of DOCX content. A DOCX file
// is a ZIP archive; the document body lives in word/document.xml as
// paragraphs of runs of text elements.
package docxextract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

// ExtractText extracts plain text from DOCX content, one line per
// paragraph.
func ExtractText(content []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx archive failed: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml failed: %w", err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml failed: %w", err)
		}

		var doc documentXML
		if err := xml.Unmarshal(raw, &doc); err != nil {
			return "", fmt.Errorf("parse document.xml failed: %w", err)
		}

		var sb strings.Builder
		for i, para := range doc.Body.Paragraphs {
			if i > 0 {
				sb.WriteString("\n")
			}
			for _, r := range para.Runs {
				for _, t := range r.Text {
					sb.WriteString(t.Content)
				}
			}
		}
		return sb.String(), nil
	}
	return "", fmt.Errorf("docx has no word/document.xml")
}
