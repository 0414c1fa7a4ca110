package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/lossrun/internal/extract"
	"github.com/dgallion1/lossrun/internal/history"
	"github.com/dgallion1/lossrun/internal/logging"
	"github.com/dgallion1/lossrun/internal/output"
	"github.com/dgallion1/lossrun/internal/pipeline"
)

const testKey = "test-key"

// stubClient answers every prompt with the same content, or fails when the
// chunk text contains failMarker.
type stubClient struct {
	mu         sync.Mutex
	content    string
	failMarker string
	calls      int
}

func (c *stubClient) Complete(_ context.Context, prompt string) (extract.Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failMarker != "" && strings.Contains(prompt, c.failMarker) {
		return extract.Completion{}, &extract.ServiceError{StatusCode: 400, Message: "bad request"}
	}
	return extract.Completion{
		Content: c.content,
		Usage:   extract.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}, nil
}

type testEnv struct {
	server  *Server
	client  *stubClient
	outputs *output.Manager
	history *history.Store
}

func newTestEnv(t *testing.T, content string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	log := logging.Discard()

	client := &stubClient{content: content}
	manager := output.NewManager(filepath.Join(dir, "output"))
	writer, err := output.NewWriter(manager, log)
	require.NoError(t, err)
	store, err := history.Open(context.Background(), filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	processor := pipeline.NewProcessor(client, pipeline.ProcessorConfig{ChunkSize: 1500}, nil)
	worker := pipeline.NewWorker(pipeline.WorkerDeps{
		Processor: processor,
		Writer:    writer,
		History:   store,
		Model:     "gpt-4",
		Log:       log,
	})
	orch := pipeline.NewOrchestrator(pipeline.OrchestratorConfig{Workers: 2, QueueSize: 10}, worker, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)

	stats := extract.NewStats(time.Hour)
	stats.Record(250, extract.Usage{TotalTokens: 120})

	srv := NewServer(Deps{
		Orchestrator:   orch,
		Outputs:        manager,
		History:        store,
		Stats:          stats,
		Model:          "gpt-4",
		APIKey:         testKey,
		MaxUploadBytes: 1 << 20,
		Log:            log,
	})
	return &testEnv{server: srv, client: client, outputs: manager, history: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func multipartFile(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

const lossJSON = `{"policy_number": "P1", "insured_name": "Acme", "losses": [{"claim_number": "C1", "date_of_loss": "2024-01-01", "amount": "$1,000", "description": "Hail"}]}`

func TestHealth_NoAuth(t *testing.T) {
	env := newTestEnv(t, lossJSON)

	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, lossJSON)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic " + testKey},
		{"wrong key", "Bearer nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.server.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestAuth_EmptyServerKeyRejectsEverything(t *testing.T) {
	handler := AuthMiddleware("", logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExtract_UploadLifecycle(t *testing.T) {
	env := newTestEnv(t, lossJSON)

	body, ct := multipartFile(t, "file", "acme.txt", "Policy P1\nClaim C1 2024-01-01 $1,000 Hail\n")
	rec := env.do(t, http.MethodPost, "/api/extract", body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	accepted := decode(t, rec)
	jobID, _ := accepted["job_id"].(string)
	require.NotEmpty(t, jobID)
	assert.Equal(t, "/api/extract/"+jobID+"/status", accepted["poll_url"])

	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/api/extract/"+jobID+"/status", nil, "")
		status, _ := decode(t, rec)["status"].(string)
		return pipeline.JobStatus(status).Done()
	}, 5*time.Second, 10*time.Millisecond)

	rec = env.do(t, http.MethodGet, "/api/extract/"+jobID+"/result", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, pipeline.StatusCompleted, res.Status)
	assert.Equal(t, "P1", res.Report.PolicyNumber)
	require.Len(t, res.Report.Losses, 1)
	assert.NotEmpty(t, res.Outputs["json"])
	assert.NotEmpty(t, res.RunID)
}

func TestExtract_Rejections(t *testing.T) {
	env := newTestEnv(t, lossJSON)

	body, ct := multipartFile(t, "file", "malware.exe", "MZ")
	rec := env.do(t, http.MethodPost, "/api/extract", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "unsupported file type")

	body, ct = multipartFile(t, "other", "a.txt", "x")
	rec = env.do(t, http.MethodPost, "/api/extract", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = multipartFile(t, "file", "big.txt", strings.Repeat("x", (1<<20)+10))
	rec = env.do(t, http.MethodPost, "/api/extract", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestExtract_Batch(t *testing.T) {
	env := newTestEnv(t, lossJSON)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range map[string]string{"a.txt": "claim one", "b.csv": "claim,amount\nC1,$5\n", "c.bin": "??"} {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, _ = fw.Write([]byte(content))
	}
	require.NoError(t, mw.Close())

	rec := env.do(t, http.MethodPost, "/api/extract/batch", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, rec.Code)

	jobs, _ := decode(t, rec)["jobs"].([]any)
	require.Len(t, jobs, 3)
	accepted, rejected := 0, 0
	for _, j := range jobs {
		m := j.(map[string]any)
		if _, ok := m["job_id"]; ok {
			accepted++
		} else {
			rejected++
			assert.Equal(t, "c.bin", m["filename"])
		}
	}
	assert.Equal(t, 2, accepted)
	assert.Equal(t, 1, rejected)
}

func TestExtractText(t *testing.T) {
	env := newTestEnv(t, lossJSON)

	rec := env.do(t, http.MethodPost, "/api/extract/text", bytes.NewBufferString(`{"text": "Claim C1 $1,000"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "completed", body["status"])
	report := body["report"].(map[string]any)
	assert.Equal(t, "P1", report["policy_number"])
	assert.EqualValues(t, 120, body["usage"].(map[string]any)["total_tokens"])
}

func TestExtractText_Errors(t *testing.T) {
	env := newTestEnv(t, `{"policy_number": `)

	rec := env.do(t, http.MethodPost, "/api/extract/text", bytes.NewBufferString(`{"text": "  "}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/extract/text", bytes.NewBufferString(`not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/extract/text", bytes.NewBufferString(`{"text": "Claim C1"}`), "application/json")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Contains(t, body["error"], "extraction failed")
	assert.Len(t, body["failures"], 1)
}

func TestExtractStatusAndResult_UnknownJob(t *testing.T) {
	env := newTestEnv(t, lossJSON)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/extract/nope/status", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/extract/nope/result", nil, "").Code)
}

func TestExtractResult_FailedJob(t *testing.T) {
	env := newTestEnv(t, lossJSON)
	env.client.failMarker = "poison"

	body, ct := multipartFile(t, "file", "bad.txt", "poison pill")
	rec := env.do(t, http.MethodPost, "/api/extract", body, ct)
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decode(t, rec)["job_id"].(string)

	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/api/extract/"+jobID+"/result", nil, "")
		return rec.Code == http.StatusUnprocessableEntity
	}, 5*time.Second, 10*time.Millisecond)
}

func TestOutputs(t *testing.T) {
	env := newTestEnv(t, lossJSON)

	path, err := env.outputs.Save(output.KindMarkdown, "acme", []byte("# Report\n"))
	require.NoError(t, err)
	name := filepath.Base(path)

	rec := env.do(t, http.MethodGet, "/api/outputs?kind=markdown", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "markdown", body["kind"])
	assert.EqualValues(t, 1, body["count"])

	rec = env.do(t, http.MethodGet, "/api/outputs", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, decode(t, rec)["count"])

	rec = env.do(t, http.MethodGet, "/api/outputs?kind=pdf", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/outputs/markdown/"+name, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# Report\n", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/outputs/markdown/missing.md", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/outputs/markdown/"+name, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, name, decode(t, rec)["deleted"])

	rec = env.do(t, http.MethodDelete, "/api/outputs/markdown/"+name, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, lossJSON)

	_, err := env.history.Save(context.Background(), history.Run{Filename: "a.pdf", Usage: extract.Usage{TotalTokens: 10}})
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/history?limit=5", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["runs"], 1)
	assert.EqualValues(t, 1, body["aggregate"].(map[string]any)["runs"])

	rec = env.do(t, http.MethodGet, "/api/history?limit=zero", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLLMStats(t *testing.T) {
	env := newTestEnv(t, lossJSON)

	rec := env.do(t, http.MethodGet, "/api/stats/llm", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "gpt-4", body["model"])
	assert.EqualValues(t, 1, body["stats"].(map[string]any)["count"])
}

func TestOptionalDepsUnavailable(t *testing.T) {
	env := newTestEnv(t, lossJSON)
	srv := NewServer(Deps{Orchestrator: env.server.orchestrator, APIKey: testKey, Log: logging.Discard()})
	env.server = srv

	for _, path := range []string{"/api/outputs", "/api/history", "/api/stats/llm", "/api/outputs/json/x.json"} {
		rec := env.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "unnamed", sanitizeFilename(""))
	assert.Equal(t, "report.pdf", sanitizeFilename("C:/Users/me/report.pdf"))
}
