package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/chatrelay/internal/profile"
)

// TestNewLLMConfigFromProfile_DeepSeek tests DeepSeek configuration.
func TestNewLLMConfigFromProfile_DeepSeek(t *testing.T) {
	prof := &profile.Profile{
		LLMProvider:     "deepseek",
		LLMModel:        "deepseek-chat",
		DeepSeekAPIKey:  "deepseek-key",
		DeepSeekBaseURL: "https://api.deepseek.com",
		OpenAIAPIKey:    "openai-key",
	}

	cfg := NewLLMConfigFromProfile(prof)

	assert.Equal(t, "deepseek", cfg.Provider)
	assert.Equal(t, "deepseek-chat", cfg.Model)
	assert.Equal(t, "deepseek-key", cfg.APIKey)
	assert.Equal(t, "https://api.deepseek.com", cfg.BaseURL)
	assert.NoError(t, cfg.Validate())
}

// TestNewLLMConfigFromProfile_Ollama tests that Ollama needs no key.
func TestNewLLMConfigFromProfile_Ollama(t *testing.T) {
	prof := &profile.Profile{
		LLMProvider:   "ollama",
		LLMModel:      "llama3",
		OllamaBaseURL: "http://localhost:11434/v1",
	}

	cfg := NewLLMConfigFromProfile(prof)

	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, "http://localhost:11434/v1", cfg.BaseURL)
	assert.NoError(t, cfg.Validate())
}

// TestNewLLMConfigFromProfile_Anthropic tests Anthropic configuration.
func TestNewLLMConfigFromProfile_Anthropic(t *testing.T) {
	prof := &profile.Profile{
		LLMProvider:     "anthropic",
		LLMModel:        "claude-3-5-haiku-latest",
		AnthropicAPIKey: "anthropic-key",
	}

	cfg := NewLLMConfigFromProfile(prof)

	assert.Equal(t, "anthropic-key", cfg.APIKey)
	assert.Empty(t, cfg.BaseURL)
}

// TestNewLLMConfigFromProfile_Defaults tests request defaults.
func TestNewLLMConfigFromProfile_Defaults(t *testing.T) {
	cfg := NewLLMConfigFromProfile(&profile.Profile{LLMProvider: "openai", LLMModel: "gpt-4o-mini"})

	assert.Equal(t, 1000, cfg.MaxTokens)
	assert.InDelta(t, 0.7, cfg.Temperature, 0.0001)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)

	// 缺少 API Key
	assert.Error(t, cfg.Validate())
}

// TestNewLLMConfigFromProfile_Overrides tests explicit request settings.
func TestNewLLMConfigFromProfile_Overrides(t *testing.T) {
	cfg := NewLLMConfigFromProfile(&profile.Profile{
		LLMProvider:    "openai",
		LLMModel:       "gpt-4o",
		OpenAIAPIKey:   "k",
		LLMMaxTokens:   256,
		LLMTemperature: 0.2,
	})

	assert.Equal(t, 256, cfg.MaxTokens)
	assert.InDelta(t, 0.2, cfg.Temperature, 0.0001)
}
