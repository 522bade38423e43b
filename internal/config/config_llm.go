package config

import "time"

type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`

	// BaseURL points the provider at a compatible gateway (OpenRouter,
	// Ollama, an Azure proxy).
	BaseURL string `yaml:"base_url"`

	// MaxRetries for transient failures. Negative disables retries.
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// Provider returns the settings of the default provider.
func (c LLMConfig) Provider() (string, LLMProviderConfig) {
	return c.DefaultProvider, c.Providers[c.DefaultProvider]
}

// AssistantConfig tunes the conversation loop and operation dispatch.
type AssistantConfig struct {
	// MaxRounds is the number of tool rounds before the loop apologizes.
	MaxRounds int `yaml:"max_rounds"`

	// MaxTokens limits each model response.
	MaxTokens int `yaml:"max_tokens"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	ModelTimeout     time.Duration `yaml:"model_timeout"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
	MaxConcurrency   int           `yaml:"max_concurrency"`

	// OperationRetries is the number of extra attempts for transient
	// failures of read-only operations.
	OperationRetries *int `yaml:"operation_retries"`

	// Timezone is an IANA name or a fixed offset such as "+09:00".
	Timezone string `yaml:"timezone"`

	// VocabularyFile is optional prompt text, reloaded when it changes.
	VocabularyFile string `yaml:"vocabulary_file"`
}

// PolicyConfig overrides the user-facing wording.
type PolicyConfig struct {
	RefusalMessage     string   `yaml:"refusal_message"`
	ApologyMessage     string   `yaml:"apology_message"`
	NoAnswerMessage    string   `yaml:"no_answer_message"`
	UnsupportedPhrases []string `yaml:"unsupported_phrases"`
}
