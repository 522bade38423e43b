package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/haasonsaas/opsassist/internal/agent"
	"github.com/haasonsaas/opsassist/internal/agent/toolconv"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// DefaultGoogleModel is used when neither the config nor the request names a
// model.
const DefaultGoogleModel = "gemini-2.0-flash"

// GoogleProvider implements agent.LLMProvider for the Gemini API.
//
// Gemini returns function calls as whole parts, so no argument accumulation
// is needed. Calls without an id get a generated one; function responses are
// matched back to calls by id and carry the operation name Gemini requires.
type GoogleProvider struct {
	client       *genai.Client
	base         BaseProvider
	defaultModel string
}

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
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
	// Default: gemini-2.0-flash
	DefaultModel string
}

// NewGoogleProvider creates a Gemini provider.
func NewGoogleProvider(config GoogleConfig) (*GoogleProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = DefaultGoogleModel
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(config.BaseURL); base != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}

	return &GoogleProvider{
		client:       client,
		base:         NewBaseProvider("google", config.MaxRetries, config.RetryDelay),
		defaultModel: config.DefaultModel,
	}, nil
}

// Name returns "google".
func (p *GoogleProvider) Name() string {
	return "google"
}

// Models returns the Gemini models known to work with the operation surface.
func (p *GoogleProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextSize: 1048576},
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", ContextSize: 1048576},
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", ContextSize: 1048576},
	}
}

// SupportsTools returns true.
func (p *GoogleProvider) SupportsTools() bool {
	return true
}

// Complete streams one model reply. The request is retried only while
// nothing has been delivered to the consumer.
func (p *GoogleProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := p.getModel(req.Model)
	contents, err := p.convertMessages(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("google: failed to convert messages: %w", err)
	}
	config := p.buildConfig(req)

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)

		emitted := false
		var usage *genai.GenerateContentResponseUsageMetadata
		err := p.base.Retry(ctx, func(err error) bool {
			return !emitted && IsRetryable(err)
		}, func() error {
			stream := p.client.Models.GenerateContentStream(ctx, model, contents, config)
			var streamErr error
			usage, streamErr = p.processStream(ctx, stream, chunks, &emitted)
			return p.wrapError(streamErr, model)
		})
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			send(ctx, chunks, &agent.CompletionChunk{Error: err})
			return
		}

		done := &agent.CompletionChunk{Done: true}
		if usage != nil {
			done.InputTokens = int(usage.PromptTokenCount)
			done.OutputTokens = int(usage.CandidatesTokenCount)
		}
		send(ctx, chunks, done)
	}()

	return chunks, nil
}

// processStream forwards text and function call parts. It returns the last
// usage metadata seen.
func (p *GoogleProvider) processStream(ctx context.Context, stream iter.Seq2[*genai.GenerateContentResponse, error], chunks chan<- *agent.CompletionChunk, emitted *bool) (*genai.GenerateContentResponseUsageMetadata, error) {
	var usage *genai.GenerateContentResponseUsageMetadata

	emit := func(chunk *agent.CompletionChunk) error {
		if !send(ctx, chunks, chunk) {
			return ctx.Err()
		}
		*emitted = true
		return nil
	}

	for resp, err := range stream {
		if err != nil {
			return usage, err
		}
		if resp == nil {
			continue
		}
		if resp.UsageMetadata != nil {
			usage = resp.UsageMetadata
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" && !part.Thought {
					if err := emit(&agent.CompletionChunk{Text: part.Text}); err != nil {
						return usage, err
					}
				}
				if part.FunctionCall != nil {
					if err := emit(&agent.CompletionChunk{Call: functionCallToOperation(part.FunctionCall)}); err != nil {
						return usage, err
					}
				}
			}
		}
	}
	return usage, nil
}

func functionCallToOperation(fc *genai.FunctionCall) *models.OperationCall {
	input, err := json.Marshal(fc.Args)
	if err != nil || fc.Args == nil {
		input = []byte("{}")
	}
	id := fc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	return &models.OperationCall{CallID: id, Name: fc.Name, Input: input}
}

// convertMessages maps the conversation onto Gemini contents. Operation
// results become function responses on the user side.
func (p *GoogleProvider) convertMessages(messages []agent.CompletionMessage) ([]*genai.Content, error) {
	names := make(map[string]string)
	for _, msg := range messages {
		for _, call := range msg.Calls {
			names[call.CallID] = call.Name
		}
	}

	result := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == string(models.RoleAssistant) {
			content.Role = genai.RoleModel
		}

		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}

		for _, call := range msg.Calls {
			args := map[string]any{}
			if len(call.Input) > 0 {
				if err := json.Unmarshal(call.Input, &args); err != nil {
					return nil, fmt.Errorf("invalid operation input for %s: %w", call.Name, err)
				}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{ID: call.CallID, Name: call.Name, Args: args},
			})
		}

		for _, res := range msg.Results {
			var response map[string]any
			if err := json.Unmarshal(res.Payload, &response); err != nil {
				response = map[string]any{"result": string(res.Payload)}
			}
			if res.IsError {
				response["isError"] = true
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       res.CallID,
					Name:     names[res.CallID],
					Response: response,
				},
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result, nil
}

func (p *GoogleProvider) buildConfig(req *agent.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		maxTokens := min(req.MaxTokens, math.MaxInt32)
		// #nosec G115 -- bounded by min above
		config.MaxOutputTokens = int32(maxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = toolconv.ToGeminiTools(req.Tools)
		if req.ToolChoice == agent.ToolChoiceNone {
			config.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeNone},
			}
		}
	}
	return config
}

func (p *GoogleProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

// wrapError converts genai errors into *ProviderError. The SDK reports HTTP
// failures as genai.APIError; gRPC-style errors are classified from their
// text.
func (p *GoogleProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if _, ok := GetProviderError(err); ok {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return newHTTPError("google", model, apiErr.Code, apiErr.Status, apiErr.Message, err)
	}
	return NewProviderError("google", model, err)
}
