package ai

import (
	"errors"
	"time"

	"github.com/hrygo/chatrelay/internal/profile"
)

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider    string // openai, deepseek, ollama, anthropic
	Model       string // gpt-4o-mini
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 1000
	Temperature float32 // default: 0.7
	MaxRetries  int     // default: 2
	RetryDelay  time.Duration
}

// NewLLMConfigFromProfile creates the model configuration from profile.
func NewLLMConfigFromProfile(p *profile.Profile) *LLMConfig {
	cfg := &LLMConfig{
		Provider:    p.LLMProvider,
		Model:       p.LLMModel,
		MaxTokens:   p.LLMMaxTokens,
		Temperature: p.LLMTemperature,
	}

	switch p.LLMProvider {
	case "deepseek":
		cfg.APIKey = p.DeepSeekAPIKey
		cfg.BaseURL = p.DeepSeekBaseURL
	case "openai":
		cfg.APIKey = p.OpenAIAPIKey
		cfg.BaseURL = p.OpenAIBaseURL
	case "ollama":
		cfg.BaseURL = p.OllamaBaseURL
	case "anthropic":
		cfg.APIKey = p.AnthropicAPIKey
	}

	cfg.applyDefaults()
	return cfg
}

func (c *LLMConfig) applyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1000
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
}

// Validate validates the configuration.
func (c *LLMConfig) Validate() error {
	if c.Provider == "" {
		return errors.New("LLM provider is required")
	}
	if c.Model == "" {
		return errors.New("LLM model is required")
	}
	if c.Provider != "ollama" && c.APIKey == "" {
		return errors.New("LLM API key is required")
	}
	if c.Provider == "ollama" && c.BaseURL == "" {
		return errors.New("ollama base URL is required")
	}
	return nil
}
