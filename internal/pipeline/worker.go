package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/lossrun/internal/analytics"
	"github.com/dgallion1/lossrun/internal/cost"
	"github.com/dgallion1/lossrun/internal/history"
	"github.com/dgallion1/lossrun/internal/output"
	"github.com/dgallion1/lossrun/internal/parser"
)

// WorkerDeps wires a Worker. Writer and History are optional; without them
// results stay in memory only.
type WorkerDeps struct {
	Processor *Processor
	Writer    *output.Writer
	History   *history.Store
	Prices    cost.PriceTable
	Model     string
	Parse     parser.Options
	Log       *slog.Logger
}

// Worker processes a single document job.
type Worker struct {
	processor *Processor
	writer    *output.Writer
	history   *history.Store
	prices    cost.PriceTable
	model     string
	parseOpts parser.Options
	log       *slog.Logger
}

func NewWorker(d WorkerDeps) *Worker {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		processor: d.Processor,
		writer:    d.Writer,
		history:   d.History,
		prices:    d.Prices,
		model:     d.Model,
		parseOpts: d.Parse,
		log:       log,
	}
}

// RunFile reads path and processes it synchronously, for the CLI.
func (w *Worker) RunFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	job := NewJob(filepath.Base(path), data)
	if err := w.Process(ctx, job); err != nil {
		return job.Result(), err
	}
	return job.Result(), nil
}

// Process runs the full extraction pipeline for a job. The job's status
// reflects the outcome; the returned error is for synchronous callers.
func (w *Worker) Process(ctx context.Context, job *Job) error {
	log := w.log.With("job_id", job.ID, "filename", job.Filename)

	fail := func(phase string, err error) error {
		log.Error("job failed", "phase", phase, "error", err)
		job.AddError(fmt.Sprintf("%s: %s", phase, err))
		job.SetStatus(StatusFailed, phase)
		return err
	}

	// Phase 1: Parse
	job.SetStatus(StatusParsing, "parsing")
	p, err := parser.ForFileWithOptions(job.Filename, w.parseOpts)
	if err != nil {
		return fail("parsing", err)
	}
	doc, err := p.Parse(bytes.NewReader(job.FileData()), job.Filename)
	if err != nil {
		return fail("parsing", fmt.Errorf("parse: %w", err))
	}
	job.releaseFileData()
	job.SetDocument(doc.Title, ContentHashHex([]byte(doc.Text)))
	log.Info("parsed document", "title", doc.Title, "bytes", len(doc.Text), "pages", doc.Pages)

	// Phase 2: Extract
	job.SetStatus(StatusExtracting, "extracting")
	outcome, err := w.processor.ProcessObserved(ctx, doc.Text, job)
	if err != nil {
		if outcome != nil {
			log.Info("tokens spent on failed job", "total_tokens", outcome.Usage.TotalTokens)
		}
		return fail("extracting", err)
	}

	// Phase 3: Write
	job.SetStatus(StatusWriting, "writing")
	snap := job.Snapshot()
	status := StatusCompleted
	if outcome.Partial() {
		status = StatusPartial
	}
	res := &Result{
		JobID:     job.ID,
		Filename:  job.Filename,
		Title:     snap.Title,
		Status:    status,
		Report:    outcome.Report,
		Usage:     outcome.Usage,
		Cost:      cost.Calculate(w.model, outcome.Usage, w.prices),
		Analytics: analytics.Summarize(outcome.Report),
		Chunks:    outcome.Chunks,
		Failures:  outcome.Failures,
		Outputs:   map[string]string{},
	}

	if w.writer != nil {
		if err := w.writeOutputs(res); err != nil {
			return fail("writing", err)
		}
	}

	if w.history != nil {
		run, err := w.history.Save(ctx, history.Run{
			Filename:     job.Filename,
			ContentHash:  snap.ContentHash,
			Model:        w.model,
			Status:       string(status),
			Report:       res.Report,
			Usage:        res.Usage,
			Cost:         res.Cost.TotalCost,
			ChunksTotal:  res.Chunks,
			ChunksFailed: len(res.Failures),
		})
		if err != nil {
			// The outputs exist already; history is best effort.
			log.Warn("history save failed", "error", err)
			job.AddError(fmt.Sprintf("history: %s", err))
		} else {
			res.RunID = run.ID
		}
	}

	job.SetResult(res)
	job.SetStatus(status, "done")
	log.Info("job finished",
		"status", status,
		"losses", len(res.Report.Losses),
		"chunks", res.Chunks,
		"failed_chunks", len(res.Failures),
		"total_tokens", res.Usage.TotalTokens,
		"cost", res.Cost.TotalCost.StringFixed(4),
	)
	return nil
}

func (w *Worker) writeOutputs(res *Result) error {
	prefix := outputPrefix(res.Filename)

	written, err := w.writer.WriteReport(res.Report, prefix)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	for kind, path := range written {
		res.Outputs[kind.Dir()] = path
	}

	written, err = w.writer.WriteCost(res.Cost, prefix)
	if err != nil {
		return fmt.Errorf("write cost: %w", err)
	}
	res.Outputs["cost"] = written[output.KindCost]
	res.Outputs["cost_markdown"] = written[output.KindMarkdown]

	written, err = w.writer.WriteAnalytics(res.Analytics, prefix)
	if err != nil {
		return fmt.Errorf("write analytics: %w", err)
	}
	res.Outputs["analytics"] = written[output.KindAnalytics]
	res.Outputs["analytics_markdown"] = written[output.KindMarkdown]

	path, err := w.writer.WriteSummary(res, prefix)
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	res.Outputs["summary"] = path
	return nil
}

// outputPrefix names output files after the source document.
func outputPrefix(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		return "report"
	}
	return stem
}

// IsExtractionFailure reports whether err means the document yielded nothing,
// as opposed to an I/O or parse problem.
func IsExtractionFailure(err error) bool {
	return errors.Is(err, ErrNoUsableChunks)
}
