package parser

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// HTMLParser handles HTML files. Table rows are flattened to one line with
// cells separated by " | ", which keeps loss-run tables readable.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc := newDocument(filename, "html")
	if title := findTitle(root); title != "" {
		doc.Title = title
	}

	var out blocks
	var rows []string
	tableRows := 0
	flushRows := func() {
		if len(rows) > 0 {
			out.add(strings.Join(rows, "\n"))
			rows = rows[:0]
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer", "header", "noscript":
				return
			case "h1", "h2", "h3", "h4", "h5", "h6", "p", "li", "blockquote", "pre", "caption":
				flushRows()
				out.add(textContent(n))
				return
			case "tr":
				if row := rowText(n); row != "" {
					rows = append(rows, row)
					tableRows++
				}
				return
			case "table":
				flushRows()
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					walk(c)
				}
				flushRows()
				return
			case "br":
				return
			}
		}
		if n.Type == html.TextNode && n.Parent != nil && isLooseTextParent(n.Parent.Data) {
			out.add(collapseSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findBody(root); body != nil {
		walk(body)
	} else {
		walk(root)
	}
	flushRows()

	doc.Text = out.String()
	doc.Metadata["table_rows"] = itoa(tableRows)
	return doc, nil
}

// isLooseTextParent reports whether text directly inside this element is
// content rather than whitespace between structural tags.
func isLooseTextParent(tag string) bool {
	switch tag {
	case "body", "div", "section", "article", "main", "span", "td", "th":
		return true
	}
	return false
}

func rowText(tr *html.Node) string {
	var cells []string
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			cells = append(cells, textContent(c))
		}
	}
	if strings.TrimSpace(strings.Join(cells, "")) == "" {
		return ""
	}
	return strings.Join(cells, " | ")
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			buf.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			buf.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return collapseSpace(buf.String())
}

// collapseSpace squeezes runs of spaces and tabs inside each line and drops
// blank lines.
func collapseSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
