// Package providers implements agent.LLMProvider for the reasoning engine
// vendors the assistant can run against.
//
// Every provider streams text and complete operation calls over a channel,
// retries transient failures before the first chunk is delivered and reports
// vendor failures as *ProviderError.
//
//	provider, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	})
//	if err != nil {
//	    return err
//	}
//	chunks, err := provider.Complete(ctx, &agent.CompletionRequest{
//	    System:   system,
//	    Messages: []agent.CompletionMessage{{Role: "user", Content: "지난주 매출 알려줘"}},
//	    Tools:    agent.ToolsFromCatalog(catalog.Default()),
//	})
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/opsassist/internal/agent"
	"github.com/haasonsaas/opsassist/internal/agent/toolconv"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// DefaultAnthropicModel is used when neither the config nor the request
// names a model.
const DefaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicProvider implements agent.LLMProvider for Anthropic's Messages API.
//
// Operation calls arrive as tool_use content blocks whose input is streamed
// as partial JSON; the provider accumulates the fragments and emits one
// chunk per complete call. Operation results are sent back as tool_result
// blocks inside a user message.
//
// AnthropicProvider is safe for concurrent use.
type AnthropicProvider struct {
	client       anthropic.Client
	base         BaseProvider
	defaultModel string
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	// APIKey is required.
	APIKey string

	// BaseURL overrides the API endpoint (proxies, tests).
	BaseURL string

	// MaxRetries for transient failures. Negative disables retries.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base of the exponential backoff.
	// Default: 1s
	RetryDelay time.Duration

	// DefaultModel is used when the request has no model.
	// Default: claude-sonnet-4-20250514
	DefaultModel string
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = DefaultAnthropicModel
	}

	// The SDK retries on its own; retries are owned by BaseProvider instead.
	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(options...),
		base:         NewBaseProvider("anthropic", config.MaxRetries, config.RetryDelay),
		defaultModel: config.DefaultModel,
	}, nil
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Models returns the Claude models known to work with the operation surface.
func (p *AnthropicProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextSize: 200000},
	}
}

// SupportsTools returns true.
func (p *AnthropicProvider) SupportsTools() bool {
	return true
}

// Complete streams one model reply. Request conversion errors are returned
// immediately; API failures arrive as an error chunk.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := p.getModel(req.Model)
	params, err := p.buildParams(req, model)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)

		emitted := false
		err := p.base.Retry(ctx, func(err error) bool {
			return !emitted && IsRetryable(err)
		}, func() error {
			stream := p.client.Messages.NewStreaming(ctx, params)
			defer stream.Close()
			return p.processStream(ctx, stream, chunks, model, &emitted)
		})
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			send(ctx, chunks, &agent.CompletionChunk{Error: err})
		}
	}()

	return chunks, nil
}

func (p *AnthropicProvider) buildParams(req *agent.CompletionRequest, model string) (anthropic.MessageNewParams, error) {
	messages, err := p.convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(p.getMaxTokens(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := toolconv.ToAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, fmt.Errorf("anthropic: failed to convert tools: %w", err)
		}
		params.Tools = tools
		if req.ToolChoice == agent.ToolChoiceNone {
			none := anthropic.NewToolChoiceNoneParam()
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &none}
		}
	}
	return params, nil
}

// maxEmptyStreamEvents bounds consecutive events that carry nothing before
// the stream is treated as malformed.
const maxEmptyStreamEvents = 300

// processStream converts SSE events into chunks. emitted is set once any
// chunk has reached the consumer, after which the request is not retried.
func (p *AnthropicProvider) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *agent.CompletionChunk, model string, emitted *bool) error {
	var currentCall *models.OperationCall
	var currentInput strings.Builder
	var inputTokens, outputTokens int
	emptyEvents := 0

	emit := func(chunk *agent.CompletionChunk) error {
		if !send(ctx, chunks, chunk) {
			return ctx.Err()
		}
		*emitted = true
		return nil
	}

	for stream.Next() {
		event := stream.Current()
		processed := false

		switch event.Type {
		case "message_start":
			if usage := event.AsMessageStart().Message.Usage; usage.InputTokens > 0 {
				inputTokens = int(usage.InputTokens)
			}
			processed = true

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentCall = &models.OperationCall{CallID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
				processed = true
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					if err := emit(&agent.CompletionChunk{Text: delta.Text}); err != nil {
						return err
					}
					processed = true
				}
			case "input_json_delta":
				if delta.PartialJSON != "" {
					currentInput.WriteString(delta.PartialJSON)
					processed = true
				}
			}

		case "content_block_stop":
			if currentCall != nil {
				currentCall.Input = normalizeCallInput(currentInput.String())
				if err := emit(&agent.CompletionChunk{Call: currentCall}); err != nil {
					return err
				}
				currentCall = nil
				processed = true
			}

		case "message_delta":
			if usage := event.AsMessageDelta().Usage; usage.OutputTokens > 0 {
				outputTokens = int(usage.OutputTokens)
			}
			processed = true

		case "message_stop":
			return emit(&agent.CompletionChunk{
				Done:         true,
				InputTokens:  inputTokens,
				OutputTokens: outputTokens,
			})

		case "error":
			return p.wrapError(errors.New("anthropic stream error"), model)
		}

		if processed {
			emptyEvents = 0
			continue
		}
		emptyEvents++
		if emptyEvents >= maxEmptyStreamEvents {
			return p.wrapError(fmt.Errorf("stream appears malformed: received %d consecutive empty events", emptyEvents), model)
		}
	}

	if err := stream.Err(); err != nil {
		return p.wrapError(err, model)
	}
	// A stream that ends without message_stop still completes the reply.
	return emit(&agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens})
}

// convertMessages maps the conversation onto Anthropic content blocks.
// Tool messages become user messages of tool_result blocks; messages without
// any block are dropped because the API rejects empty content.
func (p *AnthropicProvider) convertMessages(messages []agent.CompletionMessage) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, res := range msg.Results {
			content = append(content, anthropic.NewToolResultBlock(res.CallID, string(res.Payload), res.IsError))
		}
		for _, call := range msg.Calls {
			var input map[string]any
			if len(call.Input) > 0 {
				if err := json.Unmarshal(call.Input, &input); err != nil {
					return nil, fmt.Errorf("invalid operation input for %s: %w", call.Name, err)
				}
			}
			if input == nil {
				input = map[string]any{}
			}
			content = append(content, anthropic.NewToolUseBlock(call.CallID, input, call.Name))
		}

		if len(content) == 0 {
			continue
		}
		if msg.Role == string(models.RoleAssistant) {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}

	return result, nil
}

func (p *AnthropicProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *AnthropicProvider) getMaxTokens(maxTokens int) int {
	if maxTokens <= 0 {
		return 4096
	}
	return maxTokens
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

// wrapError converts SDK errors into *ProviderError, keeping the HTTP status,
// error type and request id.
func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return NewProviderError("anthropic", model, err)
	}

	var payload anthropicErrorPayload
	if raw := apiErr.RawJSON(); raw != "" {
		_ = json.Unmarshal([]byte(raw), &payload)
	}
	message := payload.Error.Message
	if message == "" {
		message = "anthropic request failed"
	}
	providerErr := newHTTPError("anthropic", model, apiErr.StatusCode, payload.Error.Type, message, err)
	providerErr.RequestID = apiErr.RequestID
	if payload.RequestID != "" {
		providerErr.RequestID = payload.RequestID
	}
	return providerErr
}

// normalizeCallInput returns the streamed input, or an empty object when the
// model sent none.
func normalizeCallInput(raw string) json.RawMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(raw)
}
