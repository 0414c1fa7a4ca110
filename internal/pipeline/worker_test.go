package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/lossrun/internal/cost"
	"github.com/dgallion1/lossrun/internal/history"
	"github.com/dgallion1/lossrun/internal/logging"
	"github.com/dgallion1/lossrun/internal/output"
)

type workerFixture struct {
	worker  *Worker
	client  *fakeClient
	history *history.Store
	outDir  string
}

func newWorkerFixture(t *testing.T, client *fakeClient) *workerFixture {
	t.Helper()
	dir := t.TempDir()

	writer, err := output.NewWriter(output.NewManager(filepath.Join(dir, "out")), logging.Discard())
	require.NoError(t, err)

	store, err := history.Open(context.Background(), filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	w := NewWorker(WorkerDeps{
		Processor: newTestProcessor(client, ProcessorConfig{}, nil),
		Writer:    writer,
		History:   store,
		Prices:    cost.PriceTable{"gpt-4": cost.NewPrice(0.03, 0.06)},
		Model:     "gpt-4",
		Log:       logging.Discard(),
	})
	return &workerFixture{worker: w, client: client, history: store, outDir: filepath.Join(dir, "out")}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestWorker_RunFileCompleted(t *testing.T) {
	client := newFakeClient().
		on(markA, ok(`{"policy_number": "P1", "insured_name": "Acme", "losses": [{"claim_number": "C1", "date_of_loss": "2024-01-01", "amount": "$1,000"}]}`)).
		on(markB, ok(`{"losses": [{"claim_number": "C2", "amount": "$500"}]}`)).
		on(markC, ok(`{}`))
	f := newWorkerFixture(t, client)

	res, err := f.worker.RunFile(context.Background(), writeFile(t, "acme_losses.txt", threeChunks))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "acme_losses.txt", res.Filename)
	require.Len(t, res.Report.Losses, 2)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, int64(45), res.Usage.TotalTokens)

	// 30 prompt tokens at 0.03/1K plus 15 completion tokens at 0.06/1K.
	assert.True(t, res.Cost.TotalCost.Equal(decimal.RequireFromString("0.0018")), res.Cost.TotalCost.String())
	assert.True(t, res.Analytics.TotalAmount.Equal(decimal.NewFromInt(1500)))

	for _, key := range []string{"json", "markdown", "html", "xlsx", "cost", "cost_markdown", "analytics", "analytics_markdown", "summary"} {
		path := res.Outputs[key]
		require.NotEmpty(t, path, key)
		assert.FileExists(t, path)
		assert.Contains(t, filepath.Base(path), "acme_losses")
	}

	require.NotEmpty(t, res.RunID)
	run, err := f.history.Get(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 3, run.ChunksTotal)
	assert.NotEmpty(t, run.ContentHash)
}

func TestWorker_PartialJob(t *testing.T) {
	client := newFakeClient().
		on(markA, ok(`{"losses": [{"claim_number": "C1"}]}`)).
		on(markB, fails(500))
	f := newWorkerFixture(t, client)

	job := NewJob("partial.txt", []byte(threeChunks))
	require.NoError(t, f.worker.Process(context.Background(), job))

	snap := job.Snapshot()
	assert.Equal(t, StatusPartial, snap.Status)
	assert.Equal(t, 1, snap.Progress.ChunksFailed)
	assert.Equal(t, 1, snap.Progress.LossesFound)

	res := job.Result()
	require.NotNil(t, res)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Index)
	assert.Nil(t, job.FileData(), "upload is released after parsing")
}

func TestWorker_ExtractionFailure(t *testing.T) {
	client := newFakeClient().
		on(markA, ok(`{`)).
		on(markB, ok(`{`)).
		on(markC, ok(`{`))
	f := newWorkerFixture(t, client)

	job := NewJob("bad.txt", []byte(threeChunks))
	err := f.worker.Process(context.Background(), job)
	require.Error(t, err)
	assert.True(t, IsExtractionFailure(err))

	snap := job.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "extracting", snap.Phase)
	assert.Nil(t, job.Result())

	agg, err := f.history.Aggregate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, agg.Runs)

	files, err := output.NewManager(f.outDir).List(output.KindJSON)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWorker_UnsupportedFormat(t *testing.T) {
	f := newWorkerFixture(t, newFakeClient())

	job := NewJob("losses.exe", []byte("MZ"))
	err := f.worker.Process(context.Background(), job)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, job.Snapshot().Status)
	assert.Equal(t, "parsing", job.Snapshot().Phase)
	assert.Zero(t, f.client.totalCalls())
}

func TestWorker_WithoutWriterOrHistory(t *testing.T) {
	client := newFakeClient().on(markA, ok(`{"policy_number": "P1"}`))
	w := NewWorker(WorkerDeps{Processor: newTestProcessor(client, ProcessorConfig{}, nil)})

	job := NewJob("plain.txt", []byte(threeChunks))
	require.NoError(t, w.Process(context.Background(), job))

	res := job.Result()
	require.NotNil(t, res)
	assert.Equal(t, "P1", res.Report.PolicyNumber)
	assert.Empty(t, res.Outputs)
	assert.Empty(t, res.RunID)
	assert.False(t, res.Cost.Priced)
}

func TestWorker_RunFileMissing(t *testing.T) {
	f := newWorkerFixture(t, newFakeClient())
	_, err := f.worker.RunFile(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestOutputPrefix(t *testing.T) {
	assert.Equal(t, "acme", outputPrefix("/tmp/acme.pdf"))
	assert.Equal(t, "loss.run", outputPrefix("loss.run.docx"))
	assert.Equal(t, "report", outputPrefix(""))
}

func TestOrchestrator_ProcessesSubmittedJobs(t *testing.T) {
	client := newFakeClient().on(markA, ok(`{"policy_number": "P1"}`))
	w := NewWorker(WorkerDeps{Processor: newTestProcessor(client, ProcessorConfig{}, nil), Log: logging.Discard()})
	o := NewOrchestrator(OrchestratorConfig{Workers: 2, QueueSize: 4}, w, logging.Discard())
	o.Start(context.Background())
	defer o.Stop()

	job := NewJob("doc.txt", []byte(threeChunks))
	require.NoError(t, o.Submit(job))
	assert.Same(t, job, o.GetJob(job.ID))

	require.Eventually(t, func() bool {
		return o.GetJob(job.ID).Snapshot().Status.Done()
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusCompleted, job.Snapshot().Status)
	assert.Same(t, w.processor, o.Processor())
}

func TestOrchestrator_QueueFull(t *testing.T) {
	w := NewWorker(WorkerDeps{Processor: newTestProcessor(newFakeClient(), ProcessorConfig{}, nil)})
	// Not started: nothing drains the queue.
	o := NewOrchestrator(OrchestratorConfig{Workers: 1, QueueSize: 1}, w, logging.Discard())

	require.NoError(t, o.Submit(NewJob("a.txt", nil)))
	assert.Equal(t, 1, o.QueueDepth())

	overflow := NewJob("b.txt", nil)
	err := o.Submit(overflow)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, StatusFailed, overflow.Snapshot().Status)
	assert.Equal(t, "queue_full", overflow.Snapshot().Phase)
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	w := NewWorker(WorkerDeps{Processor: newTestProcessor(newFakeClient(), ProcessorConfig{}, nil)})
	o := NewOrchestrator(OrchestratorConfig{}, w, logging.Discard())
	o.Start(context.Background())
	o.Stop()
	o.Stop() // idempotent

	assert.ErrorIs(t, o.Submit(NewJob("late.txt", nil)), ErrStopped)
}
