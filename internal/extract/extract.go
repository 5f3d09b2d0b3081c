// Package extract fetches a document by reference and produces clean
// plain text, independent of the source format.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode"

	"policyrag/internal/model"
	"policyrag/internal/pkg/docxextract"
	"policyrag/internal/pkg/pdfextract"
)

var (
	ErrFetch             = errors.New("document fetch failed")
	ErrUnsupportedFormat = errors.New("unsupported document format")
	ErrEmptyDocument     = errors.New("document contains no extractable text")
)

const (
	FormatPDF  = "pdf"
	FormatDOCX = "docx"
	FormatTXT  = "txt"
)

const maxDocumentSize = 10 << 20 // 10 MiB

type Extractor struct {
	httpClient *http.Client
}

func New(fetchTimeout time.Duration) *Extractor {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &Extractor{
		httpClient: &http.Client{Timeout: fetchTimeout},
	}
}

// Extract fetches the referenced document, extracts its text and
// normalizes it for chunking. The reference must be an HTTP(S) URL.
func (e *Extractor) Extract(ctx context.Context, reference string) (model.RawText, error) {
	content, contentType, err := e.fetch(ctx, reference)
	if err != nil {
		return model.RawText{}, err
	}

	format := detectFormat(reference, contentType)
	if format == "" {
		return model.RawText{}, fmt.Errorf("%w: reference %q, content type %q", ErrUnsupportedFormat, reference, contentType)
	}

	var text string
	switch format {
	case FormatPDF:
		text, err = pdfextract.ExtractText(content)
	case FormatDOCX:
		text, err = docxextract.ExtractText(content)
	case FormatTXT:
		text = string(content)
	}
	if err != nil {
		return model.RawText{}, fmt.Errorf("extract %s text failed: %w", format, err)
	}

	text = Sanitize(text)
	if text == "" {
		return model.RawText{}, fmt.Errorf("%w: %s", ErrEmptyDocument, reference)
	}
	return model.RawText{Text: text, Format: format}, nil
}

func (e *Extractor) fetch(ctx context.Context, reference string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reference, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrFetch, err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: status %d from %s", ErrFetch, resp.StatusCode, reference)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}
	if len(content) > maxDocumentSize {
		return nil, "", fmt.Errorf("%w: document exceeds %d bytes", ErrFetch, maxDocumentSize)
	}
	return content, resp.Header.Get("Content-Type"), nil
}

// detectFormat resolves the document format from the reference's path
// extension first, falling back to the response content type. Returns ""
// when neither is recognized.
func detectFormat(reference, contentType string) string {
	if u, err := url.Parse(reference); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".pdf":
			return FormatPDF
		case ".docx":
			return FormatDOCX
		case ".txt":
			return FormatTXT
		}
	}

	mime := contentType
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(strings.ToLower(mime))
	switch {
	case mime == "application/pdf":
		return FormatPDF
	case mime == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return FormatDOCX
	case strings.HasPrefix(mime, "text/"):
		return FormatTXT
	}
	return ""
}

// Sanitize strips control characters and invalid UTF-8, then collapses
// all whitespace runs to single spaces so chunk offsets are stable.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == unicode.ReplacementChar {
			return -1
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
