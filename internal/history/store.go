// Package history keeps a record of every extraction run in SQLite so
// statistics can be aggregated across documents.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/dgallion1/lossrun/internal/extract"
	"github.com/dgallion1/lossrun/internal/lossrun"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Run is one processed document.
type Run struct {
	ID           string          `json:"id"`
	Filename     string          `json:"filename"`
	ContentHash  string          `json:"content_hash,omitempty"`
	Model        string          `json:"model,omitempty"`
	Status       string          `json:"status,omitempty"`
	Report       *lossrun.Report `json:"report"`
	Usage        extract.Usage   `json:"usage"`
	Cost         decimal.Decimal `json:"cost"`
	ChunksTotal  int             `json:"chunks_total"`
	ChunksFailed int             `json:"chunks_failed"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Aggregate is the roll-up over every stored run.
type Aggregate struct {
	Runs             int             `json:"runs"`
	Losses           int             `json:"losses"`
	DistinctPolicies int             `json:"distinct_policies"`
	TotalTokens      int64           `json:"total_tokens"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	ChunksTotal      int             `json:"chunks_total"`
	ChunksFailed     int             `json:"chunks_failed"`
}

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases intact.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure history db: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts run. An empty ID gets a new UUID and a zero CreatedAt is set
// to now; the stored run is returned.
func (s *Store) Save(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC()
	if run.Report == nil {
		run.Report = lossrun.Empty()
	}
	report, err := json.Marshal(run.Report)
	if err != nil {
		return Run{}, fmt.Errorf("marshal report: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, filename, content_hash, model, status, policy_number, insured_name, loss_count, report,
		 prompt_tokens, completion_tokens, total_tokens, cost, chunks_total, chunks_failed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.Filename, run.ContentHash, run.Model, run.Status,
		run.Report.PolicyNumber, run.Report.InsuredName, len(run.Report.Losses), string(report),
		run.Usage.PromptTokens, run.Usage.CompletionTokens, run.Usage.TotalTokens,
		run.Cost.String(), run.ChunksTotal, run.ChunksFailed,
		run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Run{}, fmt.Errorf("save run: %w", err)
	}
	return run, nil
}

const runColumns = `id, filename, content_hash, model, status, report,
	prompt_tokens, completion_tokens, total_tokens, cost, chunks_total, chunks_failed, created_at`

// Get returns one run by ID.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Aggregate totals every stored run.
func (s *Store) Aggregate(ctx context.Context) (Aggregate, error) {
	var agg Aggregate
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(loss_count), 0),
		       COUNT(DISTINCT NULLIF(policy_number, '')),
		       COALESCE(SUM(total_tokens), 0),
		       COALESCE(SUM(chunks_total), 0),
		       COALESCE(SUM(chunks_failed), 0)
		FROM runs
	`).Scan(&agg.Runs, &agg.Losses, &agg.DistinctPolicies, &agg.TotalTokens, &agg.ChunksTotal, &agg.ChunksFailed)
	if err != nil {
		return Aggregate{}, fmt.Errorf("aggregate runs: %w", err)
	}

	// Costs are stored as decimal strings; SQLite would sum them as floats.
	rows, err := s.db.QueryContext(ctx, `SELECT cost FROM runs`)
	if err != nil {
		return Aggregate{}, fmt.Errorf("query costs: %w", err)
	}
	defer rows.Close()
	agg.TotalCost = decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return Aggregate{}, fmt.Errorf("scan cost: %w", err)
		}
		if d, err := decimal.NewFromString(raw); err == nil {
			agg.TotalCost = agg.TotalCost.Add(d)
		}
	}
	return agg, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run       Run
		report    string
		cost      string
		createdAt string
	)
	err := sc.Scan(&run.ID, &run.Filename, &run.ContentHash, &run.Model, &run.Status, &report,
		&run.Usage.PromptTokens, &run.Usage.CompletionTokens, &run.Usage.TotalTokens,
		&cost, &run.ChunksTotal, &run.ChunksFailed, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	run.Report = lossrun.Empty()
	if err := json.Unmarshal([]byte(report), run.Report); err != nil {
		return Run{}, fmt.Errorf("decode report for run %s: %w", run.ID, err)
	}
	if run.Cost, err = decimal.NewFromString(cost); err != nil {
		run.Cost = decimal.Zero
	}
	if run.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Run{}, fmt.Errorf("parse created_at for run %s: %w", run.ID, err)
	}
	return run, nil
}
