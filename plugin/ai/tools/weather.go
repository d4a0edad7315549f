package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/hrygo/chatrelay/plugin/ai"
)

// DefaultWeatherURL is the OpenWeatherMap current weather endpoint.
const DefaultWeatherURL = "http://api.openweathermap.org/data/2.5/weather"

// Weather reports current conditions from OpenWeatherMap.
type Weather struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewWeather creates a Weather tool. Without an API key every lookup returns
// an explanation instead of calling the provider.
func NewWeather(apiKey, baseURL string, client *http.Client) *Weather {
	if baseURL == "" {
		baseURL = DefaultWeatherURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Weather{apiKey: apiKey, baseURL: baseURL, client: client}
}

func (w *Weather) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        "weather_search",
		Description: "Search for weather information",
		Parameters: objectSchema(map[string]string{
			"location": "The location to get weather for",
		}, "location"),
	}
}

func (w *Weather) Run(ctx context.Context, args map[string]any) (string, error) {
	location := stringArg(args, "location")
	if w.apiKey == "" {
		return fmt.Sprintf("I can't get weather information for '%s' right now. To enable weather searches, set CHATRELAY_WEATHER_API_KEY to a free API key from openweathermap.org.", location), nil
	}

	params := url.Values{}
	params.Set("q", location)
	params.Set("appid", w.apiKey)
	params.Set("units", "metric")

	body, status, err := getBody(ctx, w.client, w.baseURL, params)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return fmt.Sprintf("Sorry, I couldn't get weather information for '%s'.", location), nil
	}

	fields := gjson.GetManyBytes(body, "main.temp", "weather.0.description", "main.humidity")
	for _, f := range fields {
		if !f.Exists() {
			return "", errors.New("malformed weather response")
		}
	}
	return fmt.Sprintf("Weather in %s:\nTemperature: %s°C\nCondition: %s\nHumidity: %d%%",
		location,
		strconv.FormatFloat(fields[0].Float(), 'f', -1, 64),
		fields[1].String(),
		fields[2].Int(),
	), nil
}

func (w *Weather) FormatError(args map[string]any, err error) string {
	return fmt.Sprintf("Error getting weather for '%s': %v", stringArg(args, "location"), err)
}
