// Package export renders a principal's saved ideas as Markdown, HTML or PDF.
package export

import (
	"errors"
	"time"

	"ideaforge/api/internal/idea"
)

// Format represents the export output format
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

// ParseFormat accepts the query-string spelling; "" means Markdown.
func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case "", FormatMarkdown, "markdown":
		return FormatMarkdown, nil
	case FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", idea.InvalidRequest("format", "format must be md, html, or pdf")
	}
}

// Request contains parameters for an export operation
type Request struct {
	Owner    idea.Principal
	Category idea.Category
	Format   Format
}

// Result contains the export output
type Result struct {
	Data       []byte
	Filename   string
	MimeType   string
	Count      int
	ArchiveKey string
	CreatedAt  time.Time
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrArchiveDisabled is returned by a nil archiver.
	ErrArchiveDisabled = errors.New("export archive disabled")
)
