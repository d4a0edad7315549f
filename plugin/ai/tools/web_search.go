package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/hrygo/chatrelay/plugin/ai"
)

// DefaultSearchURL is the DuckDuckGo Instant Answer endpoint.
const DefaultSearchURL = "https://api.duckduckgo.com/"

// WebSearch looks up instant answers from DuckDuckGo.
type WebSearch struct {
	baseURL string
	client  *http.Client
}

// NewWebSearch creates a WebSearch tool. Empty baseURL uses DefaultSearchURL.
func NewWebSearch(baseURL string, client *http.Client) *WebSearch {
	if baseURL == "" {
		baseURL = DefaultSearchURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &WebSearch{baseURL: baseURL, client: client}
}

func (w *WebSearch) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for current information",
		Parameters: objectSchema(map[string]string{
			"query": "The search query",
		}, "query"),
	}
}

func (w *WebSearch) Run(ctx context.Context, args map[string]any) (string, error) {
	query := stringArg(args, "query")

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	body, status, err := getBody(ctx, w.client, w.baseURL, params)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return fmt.Sprintf("Sorry, I couldn't perform the web search for '%s' at the moment.", query), nil
	}

	if abstract := gjson.GetBytes(body, "Abstract").String(); abstract != "" {
		source := gjson.GetBytes(body, "AbstractURL").String()
		if source == "" {
			source = "N/A"
		}
		return fmt.Sprintf("Search results for '%s':\n\n%s\n\nSource: %s", query, abstract, source), nil
	}
	if answer := gjson.GetBytes(body, "Answer").String(); answer != "" {
		return fmt.Sprintf("Answer for '%s':\n\n%s", query, answer), nil
	}
	return fmt.Sprintf("I couldn't find specific information for '%s'. You might want to try a different search term or check a specific website.", query), nil
}

func (w *WebSearch) FormatError(_ map[string]any, err error) string {
	return fmt.Sprintf("Error performing web search: %v", err)
}

// getBody performs a GET and returns the body and status code.
func getBody(ctx context.Context, client *http.Client, base string, params url.Values) ([]byte, int, error) {
	endpoint, err := url.Parse(base)
	if err != nil {
		return nil, 0, errors.Wrap(err, "invalid endpoint")
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to build request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "failed to read response")
	}
	return body, resp.StatusCode, nil
}
