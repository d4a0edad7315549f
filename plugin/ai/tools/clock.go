package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/hrygo/chatrelay/plugin/ai"
)

// Clock reports the current local date and time.
type Clock struct {
	now func() time.Time
}

// NewClock creates a Clock. A nil now defaults to time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        "get_current_time",
		Description: "Get the current date and time",
		Parameters:  objectSchema(nil),
	}
}

func (c *Clock) Run(_ context.Context, _ map[string]any) (string, error) {
	return fmt.Sprintf("Current date and time: %s", c.now().Format("2006-01-02 15:04:05")), nil
}
