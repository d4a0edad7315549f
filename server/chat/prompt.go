package chat

import (
	"encoding/json"
	"time"

	"github.com/hrygo/chatrelay/plugin/ai"
)

const (
	// SystemPreamble opens every model request.
	SystemPreamble = `You are a helpful AI assistant with access to various tools. You can:
- Perform calculations using the calculate tool
- Search the web for current information using web_search
- Get current time using get_current_time
- Get weather information using weather_search

When a user asks a question that requires using tools, use the appropriate tool and then provide a helpful response based on the tool's output. Always be helpful and informative in your responses.`

	// ApologyMessage answers a turn whose model call failed.
	ApologyMessage = "I apologize, but I'm experiencing technical difficulties. Please try again later."

	sessionTitleLayout = "2006-01-02 15:04"
)

// DefaultSessionTitle derives a title from the creation time.
func DefaultSessionTitle(t time.Time) string {
	return "Chat Session " + t.Format(sessionTitleLayout)
}

// contextNote renders the conversation context as a system message. An empty
// context yields no note.
func contextNote(data map[string]any) (ai.Message, bool) {
	if len(data) == 0 {
		return ai.Message{}, false
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ai.Message{}, false
	}
	return ai.SystemPrompt("User context: " + string(raw)), true
}
