package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/opsassist/internal/agent"
	"github.com/haasonsaas/opsassist/internal/agent/toolconv"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// DefaultOpenAIModel is used when neither the config nor the request names a
// model.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIProvider implements agent.LLMProvider for the Chat Completions API.
//
// It also serves any OpenAI-compatible endpoint (Azure OpenAI deployments
// behind a gateway, OpenRouter, a local Ollama) through BaseURL.
//
// Differences from the Anthropic provider:
//   - The system prompt is the first message of the array
//   - Operation calls stream incrementally per index and are emitted once the
//     choice finishes
//   - Each operation result is a separate "tool" message
type OpenAIProvider struct {
	client       *openai.Client
	base         BaseProvider
	defaultModel string
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	// APIKey is required.
	APIKey string

	// BaseURL overrides the API endpoint, e.g. https://openrouter.ai/api/v1.
	BaseURL string

	// MaxRetries for transient failures. Negative disables retries.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base of the exponential backoff.
	// Default: 1s
	RetryDelay time.Duration

	// DefaultModel is used when the request has no model.
	// Default: gpt-4o
	DefaultModel string
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = DefaultOpenAIModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if base := strings.TrimSpace(config.BaseURL); base != "" {
		clientConfig.BaseURL = strings.TrimSuffix(base, "/")
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		base:         NewBaseProvider("openai", config.MaxRetries, config.RetryDelay),
		defaultModel: config.DefaultModel,
	}, nil
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Models returns the GPT models known to work with the operation surface.
func (p *OpenAIProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000},
		{ID: "gpt-4o-mini", Name: "GPT-4o mini", ContextSize: 128000},
		{ID: "gpt-4.1", Name: "GPT-4.1", ContextSize: 1047576},
	}
}

// SupportsTools returns true.
func (p *OpenAIProvider) SupportsTools() bool {
	return true
}

// Complete streams one model reply. Opening the stream is retried; once the
// stream is open failures are reported as an error chunk.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := p.getModel(req.Model)
	messages, err := p.convertMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("openai: failed to convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:         model,
		Messages:      messages,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toolconv.ToOpenAITools(req.Tools)
		if req.ToolChoice == agent.ToolChoiceNone {
			chatReq.ToolChoice = "none"
		}
	}

	var stream *openai.ChatCompletionStream
	err = p.base.Retry(ctx, IsRetryable, func() error {
		var openErr error
		stream, openErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		return p.wrapError(openErr, model)
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, chunks, model)
	return chunks, nil
}

// processStream accumulates text and per-index call fragments. Calls are
// emitted in index order when the choice finishes or the stream ends.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk, model string) {
	defer close(chunks)
	defer stream.Close()

	calls := make(map[int]*models.OperationCall)
	arguments := make(map[int]*strings.Builder)
	var inputTokens, outputTokens int

	flushCalls := func() bool {
		indexes := make([]int, 0, len(calls))
		for idx := range calls {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)
		for _, idx := range indexes {
			call := calls[idx]
			if call.Name == "" {
				continue
			}
			call.Input = normalizeCallInput(arguments[idx].String())
			if !send(ctx, chunks, &agent.CompletionChunk{Call: call}) {
				return false
			}
		}
		calls = make(map[int]*models.OperationCall)
		arguments = make(map[int]*strings.Builder)
		return true
	}

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if !flushCalls() {
				return
			}
			send(ctx, chunks, &agent.CompletionChunk{
				Done:         true,
				InputTokens:  inputTokens,
				OutputTokens: outputTokens,
			})
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			} else {
				err = p.wrapError(err, model)
			}
			send(ctx, chunks, &agent.CompletionChunk{Error: err})
			return
		}

		if response.Usage != nil {
			inputTokens = response.Usage.PromptTokens
			outputTokens = response.Usage.CompletionTokens
		}
		if len(response.Choices) == 0 {
			continue
		}

		choice := response.Choices[0]
		if choice.Delta.Content != "" {
			if !send(ctx, chunks, &agent.CompletionChunk{Text: choice.Delta.Content}) {
				return
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if calls[idx] == nil {
				calls[idx] = &models.OperationCall{}
				arguments[idx] = &strings.Builder{}
			}
			if tc.ID != "" {
				calls[idx].CallID = tc.ID
			}
			if tc.Function.Name != "" {
				calls[idx].Name = tc.Function.Name
			}
			arguments[idx].WriteString(tc.Function.Arguments)
		}

		if choice.FinishReason == openai.FinishReasonToolCalls {
			if !flushCalls() {
				return
			}
		}
	}
}

// convertMessages prepends the system prompt and expands tool messages into
// one "tool" message per result.
func (p *OpenAIProvider) convertMessages(messages []agent.CompletionMessage, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case string(models.RoleTool):
			for _, res := range msg.Results {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    string(res.Payload),
					ToolCallID: res.CallID,
				})
			}

		case string(models.RoleAssistant):
			out := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, call := range msg.Calls {
				args := string(call.Input)
				if strings.TrimSpace(args) == "" {
					args = "{}"
				}
				if !json.Valid([]byte(args)) {
					return nil, fmt.Errorf("invalid operation input for %s", call.Name)
				}
				out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
					ID:   call.CallID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: args,
					},
				})
			}
			result = append(result, out)

		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}
	return result, nil
}

func (p *OpenAIProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

// wrapError converts go-openai errors into *ProviderError.
func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		if code == "" {
			code = apiErr.Type
		}
		return newHTTPError("openai", model, apiErr.HTTPStatusCode, code, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return newHTTPError("openai", model, reqErr.HTTPStatusCode, "", "", err)
	}

	return NewProviderError("openai", model, err)
}
