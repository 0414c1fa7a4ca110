package output

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dgallion1/lossrun/internal/analytics"
	"github.com/dgallion1/lossrun/internal/cost"
	"github.com/dgallion1/lossrun/internal/lossrun"
)

// Written maps each kind to the file saved for it.
type Written map[Kind]string

// Writer turns results into files through a Manager.
type Writer struct {
	manager *Manager
	schema  *jsonschema.Schema
	log     *slog.Logger
}

func NewWriter(m *Manager, log *slog.Logger) (*Writer, error) {
	schema, err := compileReportSchema()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Writer{manager: m, schema: schema, log: log}, nil
}

// Manager returns the underlying manager.
func (w *Writer) Manager() *Manager { return w.manager }

// WriteReport validates r and saves it as JSON, Markdown, HTML and XLSX.
// Nothing is written when validation fails.
func (w *Writer) WriteReport(r *lossrun.Report, prefix string) (Written, error) {
	if r == nil {
		r = lossrun.Empty()
	}
	if r.Losses == nil {
		r = r.Clone()
		r.Losses = []lossrun.Loss{}
	}
	data, err := json.MarshalIndent(r, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	if err := validate(w.schema, data); err != nil {
		return nil, err
	}

	md := Markdown(r)
	page, err := HTML("Insurance Loss Run Report", md)
	if err != nil {
		return nil, err
	}
	book, err := XLSX(r)
	if err != nil {
		return nil, err
	}

	out := Written{}
	for _, f := range []struct {
		kind Kind
		data []byte
	}{
		{KindJSON, data},
		{KindMarkdown, []byte(md)},
		{KindHTML, page},
		{KindXLSX, book},
	} {
		path, err := w.manager.Save(f.kind, prefix, f.data)
		if err != nil {
			return out, err
		}
		out[f.kind] = path
	}
	w.log.Info("report written", "prefix", prefix, "losses", len(r.Losses), "json", out[KindJSON])
	return out, nil
}

// WriteCost saves the cost report as JSON plus a Markdown rendering.
func (w *Writer) WriteCost(c cost.Report, prefix string) (Written, error) {
	return w.writePair(KindCost, c, c.Markdown(), prefix, "_cost")
}

// WriteAnalytics saves the analytics summary as JSON plus a Markdown rendering.
func (w *Writer) WriteAnalytics(s analytics.Summary, prefix string) (Written, error) {
	return w.writePair(KindAnalytics, s, s.Markdown(), prefix, "_analytics")
}

// WriteSummary saves an arbitrary run summary as JSON.
func (w *Writer) WriteSummary(v any, prefix string) (string, error) {
	return w.SaveJSON(KindSummary, prefix, v)
}

// SaveJSON marshals v with indentation and saves it under kind.
func (w *Writer) SaveJSON(kind Kind, prefix string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", kind, err)
	}
	return w.manager.Save(kind, prefix, data)
}

// writePair saves v under kind and md in the markdown dir, whose prefix gets
// suffix so it does not collide with the report's own Markdown file.
func (w *Writer) writePair(kind Kind, v any, md, prefix, suffix string) (Written, error) {
	out := Written{}
	path, err := w.SaveJSON(kind, prefix, v)
	if err != nil {
		return out, err
	}
	out[kind] = path
	mdPath, err := w.manager.Save(KindMarkdown, prefix+suffix, []byte(md))
	if err != nil {
		return out, err
	}
	out[KindMarkdown] = mdPath
	return out, nil
}
