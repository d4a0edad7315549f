package tools

import (
	"net/http"
	"time"

	"github.com/hrygo/chatrelay/plugin/ai/timeout"
)

// Config configures the built-in tools.
type Config struct {
	WeatherAPIKey  string
	SearchBaseURL  string
	WeatherBaseURL string
	HTTPClient     *http.Client
	Now            func() time.Time
}

// NewDefaultExecutor creates an Executor holding the built-in tools:
// web_search, calculate, get_current_time and weather_search.
func NewDefaultExecutor(cfg Config, opts ...ExecutorOption) *Executor {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout.ToolHTTPTimeout}
	}

	e := NewExecutor(opts...)
	for _, tool := range []Tool{
		NewWebSearch(cfg.SearchBaseURL, client),
		Calculator{},
		NewClock(cfg.Now),
		NewWeather(cfg.WeatherAPIKey, cfg.WeatherBaseURL, client),
	} {
		if err := e.Register(tool); err != nil {
			// Built-in schemas are static.
			panic(err)
		}
	}
	return e
}
