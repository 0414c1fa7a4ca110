package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/lossrun/internal/config"
	"github.com/dgallion1/lossrun/internal/cost"
	"github.com/dgallion1/lossrun/internal/extract"
	"github.com/dgallion1/lossrun/internal/history"
	"github.com/dgallion1/lossrun/internal/logging"
	"github.com/dgallion1/lossrun/internal/output"
	"github.com/dgallion1/lossrun/internal/parser"
	"github.com/dgallion1/lossrun/internal/pipeline"
)

// app holds everything the commands share.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	client  *extract.OpenAIClient
	stats   *extract.Stats
	outputs *output.Manager
	history *history.Store
	worker  *pipeline.Worker
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return cfg, log, nil
}

// newApp wires the extraction stack. withStore controls whether outputs and
// history are written.
func newApp(ctx context.Context, cfg config.Config, log *slog.Logger, withStore bool) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, stats: extract.NewStats(time.Hour)}
	a.client = extract.NewOpenAIClient(extract.OpenAIConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.RequestTimeout,
		Stats:       a.stats,
	})

	processor := pipeline.NewProcessor(a.client, pipeline.ProcessorConfig{
		ChunkSize:     cfg.ChunkSize,
		Concurrency:   cfg.Concurrency,
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}, logging.NewSlogRecorder(log.With("component", "extract")))

	deps := pipeline.WorkerDeps{
		Processor: processor,
		Prices:    priceTable(cfg.Pricing),
		Model:     cfg.Model,
		Parse:     parser.Options{PDFFallbackPdftotext: cfg.PDFFallbackPdftotext},
		Log:       log,
	}

	if withStore {
		a.outputs = output.NewManager(cfg.OutputDir)
		if err := a.outputs.EnsureDirs(); err != nil {
			a.Close()
			return nil, err
		}
		writer, err := output.NewWriter(a.outputs, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		store, err := history.Open(ctx, cfg.HistoryDB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.history = store
		deps.Writer = writer
		deps.History = store
	}

	a.worker = pipeline.NewWorker(deps)
	return a, nil
}

func (a *app) Close() {
	if a.history != nil {
		a.history.Close()
	}
	if a.client != nil {
		a.client.Close()
	}
}

func priceTable(prices map[string]config.Price) cost.PriceTable {
	table := make(cost.PriceTable, len(prices))
	for model, p := range prices {
		table[model] = cost.NewPrice(p.PromptPer1K, p.CompletionPer1K)
	}
	return table
}
