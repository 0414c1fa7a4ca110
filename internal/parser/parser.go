package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Document is the text of one input file, ready for segmentation. Text is
// newline-delimited; blocks such as paragraphs or pages are separated by a
// blank line.
type Document struct {
	Title    string            `json:"title"`
	Text     string            `json:"-"`
	Metadata map[string]string `json:"metadata"`
	Pages    int               `json:"pages,omitempty"`
}

// Parser converts raw document bytes into a Document.
type Parser interface {
	Parse(r io.Reader, filename string) (*Document, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// Options tweaks parser behaviour.
type Options struct {
	PDFFallbackPdftotext bool
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	return ForFileWithOptions(filename, Options{PDFFallbackPdftotext: true})
}

func ForFileWithOptions(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// baseTitle strips directories and the extension from a filename.
func baseTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func newDocument(filename, format string) *Document {
	return &Document{
		Title: baseTitle(filename),
		Metadata: map[string]string{
			"filename": filepath.Base(filename),
			"format":   format,
		},
	}
}

// blocks accumulates text blocks separated by a blank line.
type blocks struct {
	sb strings.Builder
}

func (b *blocks) add(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if b.sb.Len() > 0 {
		b.sb.WriteString("\n\n")
	}
	b.sb.WriteString(s)
}

func (b *blocks) String() string { return b.sb.String() }
