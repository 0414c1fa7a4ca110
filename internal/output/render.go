package output

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dgallion1/lossrun/internal/lossrun"
)

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// Markdown renders the human-readable loss run report.
func Markdown(r *lossrun.Report) string {
	if r == nil {
		r = lossrun.Empty()
	}
	var sb strings.Builder
	sb.WriteString("# Insurance Loss Run Report\n\n")
	fmt.Fprintf(&sb, "**Policy Number:** %s\n", orNA(r.PolicyNumber))
	fmt.Fprintf(&sb, "**Insured Name:** %s\n\n", orNA(r.InsuredName))
	sb.WriteString("## Losses:\n")
	if len(r.Losses) == 0 {
		sb.WriteString("\n_No losses reported._\n")
	}
	for _, l := range r.Losses {
		fmt.Fprintf(&sb, "- **Claim Number:** %s\n", orNA(l.ClaimNumber))
		fmt.Fprintf(&sb, "  - **Date of Loss:** %s\n", orNA(l.DateOfLoss))
		fmt.Fprintf(&sb, "  - **Amount:** %s\n", orNA(l.Amount))
		fmt.Fprintf(&sb, "  - **Description:** %s\n\n", orNA(l.Description))
	}
	return sb.String()
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// HTML renders Markdown source into a standalone HTML page.
func HTML(title, source string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(source), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&buf, "<title>%s</title>\n", html.EscapeString(title))
	buf.WriteString("</head>\n<body>\n")
	buf.Write(body.Bytes())
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}

const lossSheet = "Losses"

// XLSX builds a workbook with one row per loss.
func XLSX(r *lossrun.Report) ([]byte, error) {
	if r == nil {
		r = lossrun.Empty()
	}
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(lossSheet); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}
	idx, _ := f.GetSheetIndex(lossSheet)
	f.SetActiveSheet(idx)
	// Drop the default sheet so the workbook opens on the losses.
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"Policy Number", "Insured Name", "Claim Number", "Date of Loss", "Amount", "Description"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(lossSheet, cell, h)
	}
	for i, l := range r.Losses {
		row := i + 2
		values := []string{r.PolicyNumber, r.InsuredName, l.ClaimNumber, l.DateOfLoss, l.Amount, l.Description}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(lossSheet, cell, v)
		}
	}

	_ = f.SetColWidth(lossSheet, "A", "B", 22)
	_ = f.SetColWidth(lossSheet, "C", "D", 16)
	_ = f.SetColWidth(lossSheet, "E", "E", 14)
	_ = f.SetColWidth(lossSheet, "F", "F", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
