package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const duckDuckGoEndpoint = "https://api.duckduckgo.com/"

type webSearchArgs struct {
	Query string `json:"query" description:"Search query"`
}

type duckDuckGoResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// WebSearchOptions configures the web_search tool.
type WebSearchOptions struct {
	Client     *http.Client
	Endpoint   string
	MaxResults int
}

// NewWebSearchTool creates the web_search tool backed by the DuckDuckGo
// Instant Answer API.
func NewWebSearchTool(optFns ...func(o *WebSearchOptions)) *FunctionTool {
	opts := WebSearchOptions{
		Client:     &http.Client{Timeout: 15 * time.Second},
		Endpoint:   duckDuckGoEndpoint,
		MaxResults: 5,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return NewFunctionToolFromStruct(
		"web_search",
		"Search the web and return summarized results",
		webSearchArgs{},
		func(ctx context.Context, args map[string]any) (*Result, error) {
			query := strings.TrimSpace(stringArg(args, "query"))
			if query == "" {
				return nil, fmt.Errorf("query must not be empty")
			}

			endpoint := opts.Endpoint + "?" + url.Values{
				"q":           {query},
				"format":      {"json"},
				"no_redirect": {"1"},
				"no_html":     {"1"},
			}.Encode()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("web search: %w", err)
			}
			resp, err := opts.Client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("web search: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("web search: unexpected status %d", resp.StatusCode)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return nil, fmt.Errorf("web search: %w", err)
			}
			var parsed duckDuckGoResponse
			if err := json.Unmarshal(body, &parsed); err != nil {
				return nil, fmt.Errorf("web search: decode response: %w", err)
			}

			return NewResult(formatSearchResults(query, parsed, opts.MaxResults)), nil
		},
	)
}

func formatSearchResults(query string, parsed duckDuckGoResponse, maxResults int) string {
	var b strings.Builder

	if parsed.Answer != "" {
		fmt.Fprintf(&b, "Answer: %s\n", parsed.Answer)
	}
	if parsed.AbstractText != "" {
		fmt.Fprintf(&b, "%s\n", parsed.AbstractText)
		if parsed.AbstractURL != "" {
			fmt.Fprintf(&b, "Source: %s\n", parsed.AbstractURL)
		}
	}

	count := 0
	for _, topic := range parsed.RelatedTopics {
		if topic.Text == "" || count >= maxResults {
			continue
		}
		fmt.Fprintf(&b, "- %s", topic.Text)
		if topic.FirstURL != "" {
			fmt.Fprintf(&b, " (%s)", topic.FirstURL)
		}
		b.WriteString("\n")
		count++
	}

	if b.Len() == 0 {
		return "No results found for: " + query
	}
	return strings.TrimRight(b.String(), "\n")
}
