package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSVParser handles CSV files. Each data row becomes one line of
// "Header: value" pairs so the model sees column names next to values.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*Document, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	doc := newDocument(filename, "csv")
	if len(records) == 0 {
		doc.Metadata["rows"] = "0"
		return doc, nil
	}

	headers := records[0]
	dataRows := records[1:]

	var text strings.Builder
	text.WriteString("Headers: " + strings.Join(headers, ", ") + "\n")
	for _, row := range dataRows {
		for j, cell := range row {
			if j < len(headers) && headers[j] != "" {
				text.WriteString(headers[j] + ": " + cell)
			} else {
				text.WriteString(cell)
			}
			if j < len(row)-1 {
				text.WriteString(", ")
			}
		}
		text.WriteString("\n")
	}

	doc.Text = strings.TrimRight(text.String(), "\n")
	doc.Metadata["rows"] = itoa(len(dataRows))
	doc.Metadata["columns"] = itoa(len(headers))
	return doc, nil
}

func itoa(n int) string { return strconv.Itoa(n) }
