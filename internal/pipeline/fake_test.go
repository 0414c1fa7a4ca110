package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/dgallion1/lossrun/internal/extract"
)

// reply is one scripted answer from the fake client.
type reply struct {
	content string
	err     error
}

// fakeClient answers prompts by matching a marker in the chunk text. Each
// marker has a queue of replies; the last one repeats.
type fakeClient struct {
	mu      sync.Mutex
	script  map[string][]reply
	calls   map[string]int
	total   int
	usage   extract.Usage
	blockOn string // marker whose call waits for ctx cancellation
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		script: make(map[string][]reply),
		calls:  make(map[string]int),
		usage:  extract.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func (f *fakeClient) on(marker string, replies ...reply) *fakeClient {
	f.script[marker] = replies
	return f
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (extract.Completion, error) {
	f.mu.Lock()
	f.total++
	var marker string
	for m := range f.script {
		if strings.Contains(prompt, m) {
			marker = m
			break
		}
	}
	n := f.calls[marker]
	f.calls[marker]++
	replies := f.script[marker]
	block := marker != "" && marker == f.blockOn
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return extract.Completion{}, &extract.ServiceError{Err: ctx.Err()}
	}
	if len(replies) == 0 {
		return extract.Completion{Content: "{}", Usage: f.usage}, nil
	}
	r := replies[min(n, len(replies)-1)]
	if r.err != nil {
		return extract.Completion{}, r.err
	}
	return extract.Completion{Content: r.content, Usage: f.usage}, nil
}

func (f *fakeClient) callsFor(marker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[marker]
}

func (f *fakeClient) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// threeChunks is a document that segments into exactly three chunks at size
// 20, each carrying its own marker.
const threeChunks = "aaaaaaaaaaaaaaaaaaa\nbbbbbbbbbbbbbbbbbbb\nccccccccccccccccccc"

const (
	markA = "aaaaaaaaaa"
	markB = "bbbbbbbbbb"
	markC = "cccccccccc"
)
