package parser

import (
	"bufio"
	"io"
	"strings"
)

// TextParser handles plain text files. Line structure is kept; runs of blank
// lines collapse to one.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out blocks
	var current strings.Builder
	lines := 0

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			if current.Len() > 0 {
				out.add(current.String())
				current.Reset()
			}
			continue
		}
		lines++
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		out.add(current.String())
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	doc := newDocument(filename, "txt")
	doc.Text = out.String()
	doc.Metadata["lines"] = itoa(lines)
	return doc, nil
}
