package agent

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/internal/datetime"
	"github.com/haasonsaas/opsassist/internal/identity"
	"github.com/haasonsaas/opsassist/internal/reply"
	"github.com/haasonsaas/opsassist/pkg/models"
)

var seoul = datetime.MustLoadLocation("Asia/Seoul")

// fixedNow is Wednesday 2025-03-12 10:00 KST.
var fixedNow = time.Date(2025, 3, 12, 10, 0, 0, 0, seoul)

var testCaller = identity.Caller{UserID: "u1", StoreID: "s1", StoreName: "강남점"}

// loopTestProvider replays canned responses, one per Complete call. When
// completeFunc is set it decides every response instead.
type loopTestProvider struct {
	responses    [][]*CompletionChunk
	completeFunc func(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	calls    atomic.Int32
	mu       sync.Mutex
	requests []*CompletionRequest
}

func (p *loopTestProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	idx := int(p.calls.Add(1)) - 1
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.completeFunc != nil {
		return p.completeFunc(ctx, req)
	}
	var chunks []*CompletionChunk
	if idx < len(p.responses) {
		chunks = p.responses[idx]
	} else {
		chunks = textChunks("더 이상 응답이 없습니다")
	}
	return replay(chunks), nil
}

func (p *loopTestProvider) Name() string        { return "test" }
func (p *loopTestProvider) Models() []Model     { return nil }
func (p *loopTestProvider) SupportsTools() bool { return true }

func (p *loopTestProvider) request(i int) *CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

// replay returns a closed, buffered stream so no goroutine outlives the call.
func replay(chunks []*CompletionChunk) <-chan *CompletionChunk {
	ch := make(chan *CompletionChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func textChunks(text string) []*CompletionChunk {
	return []*CompletionChunk{{Text: text}, {Done: true, InputTokens: 10, OutputTokens: 5}}
}

func callChunks(calls ...models.OperationCall) []*CompletionChunk {
	out := make([]*CompletionChunk, 0, len(calls)+1)
	for i := range calls {
		out = append(out, &CompletionChunk{Call: &calls[i]})
	}
	return append(out, &CompletionChunk{Done: true})
}

func call(id, name, input string) models.OperationCall {
	if input == "" {
		input = "{}"
	}
	return models.OperationCall{CallID: id, Name: name, Input: json.RawMessage(input)}
}

// funcOperator adapts a function to Operator and counts invocations.
type funcOperator struct {
	fn    func(ctx context.Context, caller identity.Caller, call models.OperationCall) models.OperationResult
	count atomic.Int32
}

func (o *funcOperator) Execute(ctx context.Context, caller identity.Caller, call models.OperationCall) models.OperationResult {
	o.count.Add(1)
	return o.fn(ctx, caller, call)
}

func okOperator() *funcOperator {
	return &funcOperator{fn: func(_ context.Context, _ identity.Caller, call models.OperationCall) models.OperationResult {
		return okResult(call.CallID, `{"message":"`+call.Name+` 조회 완료","count":1}`)
	}}
}

func okResult(id, payload string) models.OperationResult {
	return models.OperationResult{CallID: id, Payload: json.RawMessage(payload)}
}

func errResult(id, payload string) models.OperationResult {
	return models.OperationResult{CallID: id, Payload: json.RawMessage(payload), IsError: true}
}

func newTestPrompt(vocab *Vocabulary) *PromptBuilder {
	dates := datetime.NewResolver(seoul).WithClock(func() time.Time { return fixedNow })
	return NewPromptBuilder(catalog.Default(), dates, reply.DefaultPolicy(), vocab)
}

func newTestLoop(t *testing.T, provider LLMProvider, operator Operator, config *LoopConfig) *Loop {
	t.Helper()
	if config == nil {
		config = DefaultLoopConfig()
	}
	if config.Executor == nil {
		config.Executor = DefaultExecutorConfig()
	}
	config.Executor.RetryBackoff = time.Millisecond
	loop, err := NewLoop(provider, operator, newTestPrompt(nil), config)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	return loop
}
