package parser

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser handles PDF files. It tries the Go library first,
// then falls back to pdftotext if available.
type PDFParser struct {
	FallbackPdftotext bool
}

// pdfInfoKeys are the Info dictionary entries copied into Document.Metadata.
var pdfInfoKeys = map[string]string{
	"Title":        "title",
	"Author":       "author",
	"Subject":      "subject",
	"Creator":      "creator",
	"Producer":     "producer",
	"CreationDate": "creation_date",
	"ModDate":      "mod_date",
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*Document, error) {
	// ledongthuc/pdf wants a file, and so does pdftotext.
	tmp, err := os.CreateTemp("", "lossrun-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	doc := newDocument(filename, "pdf")

	pages, info, err := extractPDFText(tmpPath)
	if err == nil && strings.TrimSpace(strings.Join(pages, "")) == "" && p.FallbackPdftotext {
		// Some generators lay text out in ways the library cannot read.
		err = fmt.Errorf("no text layer found")
	}
	if err != nil && p.FallbackPdftotext {
		var text string
		text, err = extractPdftotext(tmpPath)
		pages = strings.Split(text, "\f")
		doc.Metadata["extractor"] = "pdftotext"
	} else {
		doc.Metadata["extractor"] = "go"
	}
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	for k, v := range info {
		doc.Metadata[k] = v
	}
	if title := info["title"]; title != "" {
		doc.Title = title
	}

	var out blocks
	for _, page := range pages {
		out.add(page)
	}
	doc.Text = out.String()
	doc.Pages = len(pages)
	doc.Metadata["pages"] = itoa(len(pages))
	return doc, nil
}

// extractPDFText returns the plain text of each page and the document's Info
// dictionary.
func extractPDFText(path string) ([]string, map[string]string, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	info := make(map[string]string)
	infoDict := reader.Trailer().Key("Info")
	for key, name := range pdfInfoKeys {
		if v := strings.TrimSpace(infoDict.Key(key).Text()); v != "" {
			info[name] = v
		}
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, info, nil
}

func extractPdftotext(path string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return strings.TrimSuffix(string(out), "\f"), nil
}
