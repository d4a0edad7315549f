package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewModelClient tests client creation.
func TestNewModelClient(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *LLMConfig
		expectError bool
	}{
		{
			name:        "DeepSeek config",
			cfg:         &LLMConfig{Provider: "deepseek", Model: "deepseek-chat", APIKey: "test-key", BaseURL: "https://api.deepseek.com"},
			expectError: false,
		},
		{
			name:        "OpenAI config",
			cfg:         &LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "test-key"},
			expectError: false,
		},
		{
			name:        "Ollama config",
			cfg:         &LLMConfig{Provider: "ollama", Model: "llama3", BaseURL: "http://localhost:11434/v1"},
			expectError: false,
		},
		{
			name:        "Anthropic config",
			cfg:         &LLMConfig{Provider: "anthropic", Model: "claude-3-5-haiku-latest", APIKey: "test-key"},
			expectError: false,
		},
		{
			name:        "Unsupported provider",
			cfg:         &LLMConfig{Provider: "unsupported"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModelClient(tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLLMConfigValidate(t *testing.T) {
	assert.NoError(t, (&LLMConfig{Provider: "openai", Model: "m", APIKey: "k"}).Validate())
	assert.NoError(t, (&LLMConfig{Provider: "ollama", Model: "m", BaseURL: "http://x"}).Validate())
	assert.Error(t, (&LLMConfig{Provider: "openai", Model: "m"}).Validate())
	assert.Error(t, (&LLMConfig{Provider: "ollama", Model: "m"}).Validate())
	assert.Error(t, (&LLMConfig{Model: "m", APIKey: "k"}).Validate())
	assert.Error(t, (&LLMConfig{Provider: "openai", APIKey: "k"}).Validate())
}

func TestUsageAdd(t *testing.T) {
	sum := Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}.Add(Usage{PromptTokens: 20, CompletionTokens: 2, TotalTokens: 22})
	assert.Equal(t, Usage{PromptTokens: 30, CompletionTokens: 7, TotalTokens: 37}, sum)
}

func TestOpenAIClientComplete(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "calculate", "arguments": "{\"expression\":\"2+2\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20}
		}`)
	}))
	defer server.Close()

	client, err := NewModelClient(&LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	messages := []Message{
		SystemPrompt("be brief"),
		UserMessage("earlier"),
		AssistantMessage("", ToolCall{ID: "call_0", Name: "get_current_time", Arguments: "{}"}),
		ToolMessage("call_0", "Current date and time: 2026-01-01 10:00:00"),
		AssistantMessage("It is ten."),
		UserMessage("what is 2+2"),
	}
	tools := []ToolDefinition{{
		Name:        "calculate",
		Description: "Perform mathematical calculations",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"expression": map[string]any{"type": "string"}},
			"required":   []string{"expression"},
		},
	}}

	completion, err := client.Complete(context.Background(), messages, tools)
	require.NoError(t, err)

	assert.Equal(t, "tool_calls", completion.FinishReason)
	require.Len(t, completion.ToolCalls, 1)
	assert.Equal(t, ToolCall{ID: "call_1", Name: "calculate", Arguments: `{"expression":"2+2"}`}, completion.ToolCalls[0])
	assert.Equal(t, 20, completion.Usage.TotalTokens)

	// Request shape
	sent := captured["messages"].([]any)
	require.Len(t, sent, 6)
	assistant := sent[2].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	assert.Len(t, assistant["tool_calls"].([]any), 1)
	toolMsg := sent[3].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_0", toolMsg["tool_call_id"])
	assert.Len(t, captured["tools"].([]any), 1)
}

func TestOpenAIClientOmitsToolsWhenEmpty(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}],"usage":{"total_tokens":3}}`)
	}))
	defer server.Close()

	client, err := NewModelClient(&LLMConfig{Provider: "deepseek", Model: "deepseek-chat", APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	completion, err := client.Complete(context.Background(), []Message{UserMessage("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello!", completion.Content)
	assert.Empty(t, completion.ToolCalls)
	_, hasTools := captured["tools"]
	assert.False(t, hasTools)
}

func TestOpenAIClientRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewModelClient(&LLMConfig{
		Provider:   "openai",
		Model:      "gpt-4o-mini",
		APIKey:     "k",
		BaseURL:    server.URL,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), []Message{UserMessage("hi")}, nil)
	assert.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnthropicClientComplete(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "toolu_1", "name": "weather_search", "input": {"location": "Paris"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 30, "output_tokens": 12}
		}`)
	}))
	defer server.Close()

	client, err := NewModelClient(&LLMConfig{Provider: "anthropic", Model: "claude-3-5-haiku-latest", APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	messages := []Message{
		SystemPrompt("be brief"),
		UserMessage("time and maths?"),
		AssistantMessage("", ToolCall{ID: "a", Name: "get_current_time", Arguments: "{}"}, ToolCall{ID: "b", Name: "calculate", Arguments: `{"expression":"1+1"}`}),
		ToolMessage("a", "Current date and time: 2026-01-01 10:00:00"),
		ToolMessage("b", "Calculation: 1+1 = 2"),
		AssistantMessage("Ten o'clock, and 2."),
		UserMessage("weather in Paris?"),
	}
	tools := []ToolDefinition{{
		Name:        "weather_search",
		Description: "Search for weather information",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"location": map[string]any{"type": "string"}},
			"required":   []any{"location"},
		},
	}}

	completion, err := client.Complete(context.Background(), messages, tools)
	require.NoError(t, err)

	assert.Equal(t, "Let me check.", completion.Content)
	assert.Equal(t, "tool_use", completion.FinishReason)
	require.Len(t, completion.ToolCalls, 1)
	assert.Equal(t, "toolu_1", completion.ToolCalls[0].ID)
	assert.Equal(t, "weather_search", completion.ToolCalls[0].Name)
	assert.JSONEq(t, `{"location":"Paris"}`, completion.ToolCalls[0].Arguments)
	assert.Equal(t, 42, completion.Usage.TotalTokens)

	// System prompt is lifted out and both tool results share one user message.
	assert.NotNil(t, captured["system"])
	sent := captured["messages"].([]any)
	require.Len(t, sent, 5)
	results := sent[2].(map[string]any)
	assert.Equal(t, "user", results["role"])
	assert.Len(t, results["content"].([]any), 2)
	assert.Len(t, captured["tools"].([]any), 1)
}
