package providers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/haasonsaas/opsassist/internal/agent"
	"github.com/haasonsaas/opsassist/internal/catalog"
	"github.com/haasonsaas/opsassist/pkg/models"
)

func newTestGoogle(t *testing.T) *GoogleProvider {
	t.Helper()
	provider, err := NewGoogleProvider(GoogleConfig{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	return provider
}

func TestNewGoogleProvider(t *testing.T) {
	if _, err := NewGoogleProvider(GoogleConfig{}); err == nil {
		t.Error("expected error for missing API key")
	}
	provider := newTestGoogle(t)
	if provider.getModel("") != DefaultGoogleModel {
		t.Errorf("expected default model, got %q", provider.getModel(""))
	}
	if provider.Name() != "google" || !provider.SupportsTools() || len(provider.Models()) == 0 {
		t.Error("unexpected provider metadata")
	}
}

func TestGoogleConvertMessages(t *testing.T) {
	provider := newTestGoogle(t)
	contents, err := provider.convertMessages([]agent.CompletionMessage{
		{Role: "user", Content: "이번 달 급여"},
		{Role: "assistant", Calls: []models.OperationCall{
			{CallID: "c1", Name: "get_payslips", Input: json.RawMessage(`{"date_range":"this_month"}`)},
		}},
		{Role: "tool", Results: []models.OperationResult{
			{CallID: "c1", Payload: json.RawMessage(`{"error":"db down"}`), IsError: true},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	if contents[1].Role != genai.RoleModel {
		t.Errorf("expected model role for assistant, got %q", contents[1].Role)
	}
	call := contents[1].Parts[0].FunctionCall
	if call == nil || call.Name != "get_payslips" || call.Args["date_range"] != "this_month" {
		t.Errorf("unexpected function call %+v", call)
	}
	resp := contents[2].Parts[0].FunctionResponse
	if resp == nil || resp.Name != "get_payslips" || resp.ID != "c1" {
		t.Fatalf("unexpected function response %+v", resp)
	}
	if resp.Response["isError"] != true || resp.Response["error"] != "db down" {
		t.Errorf("expected error payload to be kept, got %v", resp.Response)
	}
}

func TestGoogleConvertMessages_NonObjectPayload(t *testing.T) {
	provider := newTestGoogle(t)
	contents, err := provider.convertMessages([]agent.CompletionMessage{
		{Role: "assistant", Calls: []models.OperationCall{{CallID: "c1", Name: "get_stores"}}},
		{Role: "tool", Results: []models.OperationResult{{CallID: "c1", Payload: json.RawMessage(`[1,2]`)}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp := contents[1].Parts[0].FunctionResponse
	if resp.Response["result"] != "[1,2]" {
		t.Errorf("expected wrapped payload, got %v", resp.Response)
	}
}

func TestGoogleBuildConfig(t *testing.T) {
	provider := newTestGoogle(t)
	config := provider.buildConfig(&agent.CompletionRequest{
		System:    "system",
		MaxTokens: 512,
		Tools:     agent.ToolsFromCatalog(catalog.Default()),
	})
	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "system" {
		t.Error("expected system instruction")
	}
	if config.MaxOutputTokens != 512 {
		t.Errorf("expected 512 max tokens, got %d", config.MaxOutputTokens)
	}
	if len(config.Tools) != 1 || len(config.Tools[0].FunctionDeclarations) != len(catalog.Default().List()) {
		t.Error("expected one declaration per operation")
	}

	if config.ToolConfig != nil {
		t.Error("expected no tool config by default")
	}

	closing := provider.buildConfig(&agent.CompletionRequest{
		Tools:      agent.ToolsFromCatalog(catalog.Default()),
		ToolChoice: agent.ToolChoiceNone,
	})
	if len(closing.Tools) != 1 {
		t.Error("expected declarations on the closing request")
	}
	if closing.ToolConfig == nil || closing.ToolConfig.FunctionCallingConfig == nil ||
		closing.ToolConfig.FunctionCallingConfig.Mode != genai.FunctionCallingConfigModeNone {
		t.Errorf("expected function calling mode NONE, got %+v", closing.ToolConfig)
	}

	empty := provider.buildConfig(&agent.CompletionRequest{})
	if empty.SystemInstruction != nil || empty.Tools != nil || empty.ToolConfig != nil {
		t.Error("expected empty config")
	}
}

func TestFunctionCallToOperation(t *testing.T) {
	call := functionCallToOperation(&genai.FunctionCall{Name: "get_stores"})
	if !strings.HasPrefix(call.CallID, "call_") {
		t.Errorf("expected generated id, got %q", call.CallID)
	}
	if string(call.Input) != "{}" {
		t.Errorf("expected empty object input, got %s", call.Input)
	}

	call = functionCallToOperation(&genai.FunctionCall{ID: "fc1", Name: "get_orders", Args: map[string]any{"limit": 5}})
	if call.CallID != "fc1" || string(call.Input) != `{"limit":5}` {
		t.Errorf("unexpected call %+v", call)
	}
}

func TestGoogleWrapError(t *testing.T) {
	provider := newTestGoogle(t)

	wrapped := provider.wrapError(errors.New("rpc error: resource exhausted"), "gemini-2.0-flash")
	providerErr, ok := GetProviderError(wrapped)
	if !ok {
		t.Fatalf("expected ProviderError, got %T", wrapped)
	}
	if providerErr.Status != 0 || providerErr.Reason != ReasonRateLimit {
		t.Errorf("unexpected error %+v", providerErr)
	}

	apiErr := provider.wrapError(genai.APIError{Code: http.StatusServiceUnavailable, Message: "overloaded", Status: "UNAVAILABLE"}, "gemini-2.0-flash")
	providerErr, _ = GetProviderError(apiErr)
	if providerErr == nil || providerErr.Reason != ReasonServerError || !IsRetryable(apiErr) {
		t.Errorf("expected retryable server error, got %+v", providerErr)
	}
}
