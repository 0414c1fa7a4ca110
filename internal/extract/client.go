package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client sends one prompt to the completion service.
type Client interface {
	Complete(ctx context.Context, prompt string) (Completion, error)
}

// Completion is the raw answer to one prompt.
type Completion struct {
	Content string
	Usage   Usage
	Model   string
	Latency time.Duration
}

type OpenAIConfig struct {
	APIKey      string
	BaseURL     string // Optional; defaults to the public API
	Model       string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
	HTTPClient  *http.Client // Optional (tests)
	Stats       *Stats       // Optional; receives latency and usage per call
}

// OpenAIClient implements Client with the chat completions endpoint.
type OpenAIClient struct {
	client      openai.Client
	httpClient  *http.Client
	model       string
	maxTokens   int64
	temperature float64
	stats       *Stats
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	// Retries are the pipeline's decision, not the SDK's.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		client:      openai.NewClient(opts...),
		httpClient:  httpClient,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		stats:       cfg.Stats,
	}
}

// Complete sends the system instruction and prompt and returns the first
// choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemInstruction),
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		return Completion{Latency: latency}, mapOpenAIError(err)
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if c.stats != nil {
		c.stats.Record(latency.Milliseconds(), usage)
	}

	if len(resp.Choices) == 0 {
		return Completion{Usage: usage, Latency: latency}, &ServiceError{Message: "no choices in response", Err: ErrEmptyResponse}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return Completion{Usage: usage, Latency: latency}, &ServiceError{Message: "empty message content", Err: ErrEmptyResponse}
	}

	return Completion{
		Content: content,
		Usage:   usage,
		Model:   resp.Model,
		Latency: latency,
	}, nil
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Close releases idle connections.
func (c *OpenAIClient) Close() {
	c.httpClient.CloseIdleConnections()
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return &ServiceError{StatusCode: apiErr.StatusCode, Message: msg, Err: err}
	}
	return &ServiceError{Message: fmt.Sprintf("request failed: %v", err), Err: err}
}

var _ Client = (*OpenAIClient)(nil)
