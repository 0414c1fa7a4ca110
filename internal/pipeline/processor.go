package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/lossrun/internal/chunker"
	"github.com/dgallion1/lossrun/internal/extract"
	"github.com/dgallion1/lossrun/internal/logging"
	"github.com/dgallion1/lossrun/internal/lossrun"
)

// ErrNoUsableChunks is matched by every ExtractionError.
var ErrNoUsableChunks = errors.New("no chunk produced a usable result")

// ExtractionError reports that a document yielded nothing: either it had no
// text to segment or every chunk failed.
type ExtractionError struct {
	Chunks   int
	Failures []ChunkFailure
}

func (e *ExtractionError) Error() string {
	if e.Chunks == 0 {
		return "extraction failed: document has no text"
	}
	msg := fmt.Sprintf("extraction failed: all %d chunks failed", e.Chunks)
	if len(e.Failures) > 0 {
		msg += fmt.Sprintf(" (chunk %d: %s)", e.Failures[0].Index, e.Failures[0].Message)
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return ErrNoUsableChunks }

// Failure reasons.
const (
	ReasonServiceError  = "service_error"
	ReasonUnrecoverable = "unrecoverable"
	ReasonCanceled      = "canceled"
)

// ChunkFailure records why one chunk contributed nothing.
type ChunkFailure struct {
	Index   int    `json:"index"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// ChunkOutcome is the result of extracting one chunk.
type ChunkOutcome struct {
	Index    int
	Report   *lossrun.Report // nil on failure
	Usage    extract.Usage
	Attempts int
	Latency  time.Duration
	Err      error
}

// Outcome is the result of processing one document.
type Outcome struct {
	Report   *lossrun.Report `json:"report"`
	Usage    extract.Usage   `json:"usage"`
	Chunks   int             `json:"chunks"`
	Failures []ChunkFailure  `json:"failures"`
}

// Partial reports whether some, but not all, chunks failed.
func (o *Outcome) Partial() bool {
	return o != nil && o.Report != nil && len(o.Failures) > 0
}

// Observer is told about progress while a document is processed. ChunkDone
// may be called from several goroutines at once.
type Observer interface {
	ChunksPlanned(n int)
	ChunkDone(o ChunkOutcome)
}

type ProcessorConfig struct {
	ChunkSize     int
	Concurrency   int
	RetryAttempts int
	RetryDelay    time.Duration
}

// Processor turns document text into one merged report: segment, prompt,
// complete, recover, merge.
type Processor struct {
	client extract.Client
	cfg    ProcessorConfig
	rec    logging.Recorder
}

func NewProcessor(client extract.Client, cfg ProcessorConfig, rec logging.Recorder) *Processor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if rec == nil {
		rec = logging.Nop{}
	}
	return &Processor{client: client, cfg: cfg, rec: rec}
}

// ProcessText returns the merged report for text.
func (p *Processor) ProcessText(ctx context.Context, text string) (*lossrun.Report, error) {
	out, err := p.Process(ctx, text)
	if err != nil {
		return nil, err
	}
	return out.Report, nil
}

// Process is ProcessText with usage and per-chunk failures. The Outcome is
// returned even on error so callers can account for the tokens spent.
func (p *Processor) Process(ctx context.Context, text string) (*Outcome, error) {
	return p.ProcessObserved(ctx, text, nil)
}

// ProcessObserved is Process with progress reported to obs, which may be nil.
func (p *Processor) ProcessObserved(ctx context.Context, text string, obs Observer) (*Outcome, error) {
	chunks := chunker.Segment(text, p.cfg.ChunkSize)
	p.rec.Record("extraction.start",
		"chunks", len(chunks),
		"bytes", len(text),
		"est_tokens", chunker.EstimateTokens(text),
		"concurrency", p.cfg.Concurrency,
	)
	if obs != nil {
		obs.ChunksPlanned(len(chunks))
	}

	outcomes := make([]ChunkOutcome, len(chunks))
	ran := make([]bool, len(chunks))
	done := func(o ChunkOutcome) {
		outcomes[o.Index] = o
		ran[o.Index] = true
		if obs != nil {
			obs.ChunkDone(o)
		}
	}

	if p.cfg.Concurrency <= 1 {
		for _, c := range chunks {
			if ctx.Err() != nil {
				break
			}
			done(p.extractChunk(ctx, c))
		}
	} else {
		var g errgroup.Group
		g.SetLimit(p.cfg.Concurrency)
		for _, c := range chunks {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				done(p.extractChunk(ctx, c))
				return nil
			})
		}
		_ = g.Wait()
	}
	ctxErr := ctx.Err()

	out := &Outcome{Chunks: len(chunks), Failures: []ChunkFailure{}}
	merger := extract.NewMerger()
	succeeded := 0
	for i, o := range outcomes {
		if !ran[i] {
			// The context was canceled first.
			continue
		}
		out.Usage = out.Usage.Add(o.Usage)
		if o.Err != nil {
			out.Failures = append(out.Failures, ChunkFailure{
				Index:   o.Index,
				Reason:  failureReason(o.Err),
				Message: o.Err.Error(),
				Err:     o.Err,
			})
			continue
		}
		merger.Add(o.Report)
		succeeded++
	}

	if ctxErr != nil {
		p.rec.Record("extraction.canceled", "chunks", len(chunks), "completed", succeeded, "error", ctxErr)
		return out, fmt.Errorf("extraction canceled: %w", ctxErr)
	}
	if succeeded == 0 {
		err := &ExtractionError{Chunks: len(chunks), Failures: out.Failures}
		p.rec.Record("extraction.failed", "chunks", len(chunks), "error", err.Error())
		return out, err
	}

	out.Report = merger.Result()
	p.rec.Record("extraction.complete",
		"chunks", len(chunks),
		"failed", len(out.Failures),
		"losses", len(out.Report.Losses),
		"total_tokens", out.Usage.TotalTokens,
	)
	return out, nil
}

// extractChunk runs one chunk through the client, retrying transient
// failures, and recovers a report from the response.
func (p *Processor) extractChunk(ctx context.Context, c chunker.Chunk) ChunkOutcome {
	start := time.Now()
	prompt := extract.BuildPrompt(c.Text)
	o := ChunkOutcome{Index: c.Index}

	completion, err := retry.DoWithData(func() (extract.Completion, error) {
		o.Attempts++
		if o.Attempts > 1 {
			p.rec.Record("chunk.retry", "chunk", c.Index, "attempt", o.Attempts)
		}
		comp, err := p.client.Complete(ctx, prompt)
		o.Usage = o.Usage.Add(comp.Usage)
		return comp, err
	}, retryOptions(ctx, p.cfg.RetryAttempts, p.cfg.RetryDelay)...)
	o.Latency = time.Since(start)

	if err != nil {
		o.Err = err
		p.rec.Record("chunk.failed",
			"chunk", c.Index,
			"reason", failureReason(err),
			"attempts", o.Attempts,
			"error", err.Error(),
		)
		return o
	}

	report := extract.Recover(completion.Content)
	if report == nil {
		o.Err = extract.ErrUnrecoverable
		p.rec.Record("chunk.failed",
			"chunk", c.Index,
			"reason", ReasonUnrecoverable,
			"response_bytes", len(completion.Content),
		)
		return o
	}

	o.Report = report
	p.rec.Record("chunk.extracted",
		"chunk", c.Index,
		"losses", len(report.Losses),
		"tokens", o.Usage.TotalTokens,
		"latency_ms", o.Latency.Milliseconds(),
	)
	return o
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, extract.ErrUnrecoverable):
		return ReasonUnrecoverable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	default:
		return ReasonServiceError
	}
}
