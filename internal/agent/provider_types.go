package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/pkg/models"
)

// LLMProvider is a reasoning engine backend.
//
// Implementations translate CompletionRequest into the vendor API and stream
// back text and complete operation calls. They must be safe for concurrent
// use; one provider instance serves every request.
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []Model

	// SupportsTools returns whether the provider supports tool use.
	SupportsTools() bool
}

// CompletionRequest contains all parameters for one model call.
type CompletionRequest struct {
	// Model overrides the provider default when set.
	Model string `json:"model"`

	// System is the system prompt.
	System string `json:"system,omitempty"`

	// Messages is the conversation in chronological order.
	Messages []CompletionMessage `json:"messages"`

	// Tools is the operation surface offered to the model. Empty disables
	// tool use for the call.
	Tools []Tool `json:"-"`

	// ToolChoice restricts tool use when Tools is set. ToolChoiceNone keeps
	// the tool definitions, which some vendors require once the
	// conversation holds calls and results, while forbidding new calls.
	ToolChoice ToolChoice `json:"tool_choice,omitempty"`

	// MaxTokens limits the response length. Zero uses the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// ToolChoice controls whether the model may call operations.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide. It is the zero value.
	ToolChoiceAuto ToolChoice = ""

	// ToolChoiceNone forbids calls for this request.
	ToolChoiceNone ToolChoice = "none"
)

// CompletionMessage is one message of the provider-facing conversation.
// Role is "user", "assistant" or "tool".
type CompletionMessage struct {
	Role    string                   `json:"role"`
	Content string                   `json:"content,omitempty"`
	Calls   []models.OperationCall   `json:"calls,omitempty"`
	Results []models.OperationResult `json:"results,omitempty"`
}

// CompletionChunk is one element of a streaming response.
type CompletionChunk struct {
	// Text is a partial response text.
	Text string `json:"text,omitempty"`

	// Call is a complete operation call.
	Call *models.OperationCall `json:"call,omitempty"`

	// Done marks the end of the stream.
	Done bool `json:"done,omitempty"`

	// Error terminates the stream.
	Error error `json:"-"`

	// InputTokens and OutputTokens are set on the final chunk when known.
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Model describes an available model.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContextSize int    `json:"context_size"`
}

// Tool is an operation definition as offered to the model.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
}

type catalogTool struct {
	def catalog.Definition
}

func (t catalogTool) Name() string            { return t.def.Name }
func (t catalogTool) Description() string     { return t.def.Description }
func (t catalogTool) Schema() json.RawMessage { return t.def.JSONSchema() }

// ToolsFromCatalog exposes every catalog operation as a Tool.
func ToolsFromCatalog(cat *catalog.Catalog) []Tool {
	defs := cat.List()
	tools := make([]Tool, len(defs))
	for i, def := range defs {
		tools[i] = catalogTool{def: def}
	}
	return tools
}

// turnsToMessages converts conversation turns into provider messages.
func turnsToMessages(turns []models.Turn) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, CompletionMessage{
			Role:    string(t.Role),
			Content: t.Text,
			Calls:   t.Calls,
			Results: t.Results,
		})
	}
	return out
}
