// Package extract turns an uploaded resume file into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// ErrUnsupported is returned for file types no extractor understands.
var ErrUnsupported = errors.New("unsupported file type")

// Extractor reads the file at path and returns its text content.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Format identifies how a file should be read.
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatText    Format = "text"
	FormatUnknown Format = ""
)

const (
	sniffBytes       = 512
	maxTextFileBytes = 10 << 20
)

// DetectFormat picks a format from the file extension, falling back to the
// leading bytes when the extension is missing or unknown.
func DetectFormat(name string, head []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	case ".txt", ".md", ".markdown":
		return FormatText
	}

	if bytes.HasPrefix(head, []byte("%PDF-")) {
		return FormatPDF
	}
	mime := http.DetectContentType(head)
	switch {
	case strings.HasPrefix(mime, "application/pdf"):
		return FormatPDF
	case strings.HasPrefix(mime, "text/plain"):
		return FormatText
	}
	return FormatUnknown
}

// Local extracts text in-process: PDF via ledongthuc/pdf, DOCX via
// nguyenthenguyen/docx and plain text or Markdown as-is.
type Local struct{}

// NewLocal returns the in-process extractor.
func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	head, err := readHead(path)
	if err != nil {
		return "", err
	}

	switch DetectFormat(path, head) {
	case FormatPDF:
		return extractPDF(path)
	case FormatDOCX:
		return extractDOCX(path)
	case FormatText:
		return extractText(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	buf := make([]byte, sniffBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return buf[:n], nil
}

// extractPDF concatenates the plain text of every page. The pdf package
// panics on some malformed inputs, so the panic is turned into an error.
func extractPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reading pdf: malformed document: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading pdf page %d: %w", i, err)
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return normalizeWhitespace(b.String()), nil
}

var (
	xmlTags     = regexp.MustCompile(`<[^>]+>`)
	inlineSpace = regexp.MustCompile(`[ \t\r\f\v]+`)
)

func extractDOCX(path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fmt.Errorf("reading docx: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	content = strings.ReplaceAll(content, "<w:tab/>", "\t")
	content = xmlTags.ReplaceAllString(content, "")
	return normalizeWhitespace(unescapeXML(content)), nil
}

var xmlEntities = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&amp;", "&",
)

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}

func extractText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxTextFileBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return string(data), nil
}

// normalizeWhitespace collapses runs of spaces and tabs, trims every line
// and drops blank lines.
func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = inlineSpace.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
