package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// SearchOutput is the raw result fed back to the model for a search_web
// invocation.
type SearchOutput struct {
	Query       string         `json:"query"`
	Results     []SearchResult `json:"results"`
	ResultCount int            `json:"result_count"`
	Engine      string         `json:"engine"`
}

// SearchProvider executes a web search. Search results are inherently
// non-deterministic, so search_web is exempt from the pure-tool
// idempotence expectation that applies to market data lookups.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) (*SearchOutput, error)
}

// SearchEngineConfig holds the credentials and endpoints for the
// supported search engines. Engines without credentials are skipped by
// the fallback chain.
type SearchEngineConfig struct {
	Preferred string // "serpapi", "googleapi" or "bingapi"

	SerpAPIKey     string
	SerpAPIBaseURL string // default: "https://serpapi.com/search"

	GoogleKey     string
	GoogleCX      string
	GoogleBaseURL string // default: "https://www.googleapis.com/customsearch/v1"

	BingKey     string
	BingBaseURL string // default: "https://api.bing.microsoft.com/v7.0/search"
}

// MultiEngineSearch is a SearchProvider that tries the preferred engine
// first and falls back to any other engine with credentials configured.
type MultiEngineSearch struct {
	config SearchEngineConfig
	client *http.Client
	logger *logrus.Entry
}

// NewMultiEngineSearch creates a search provider over the configured
// engines. Default endpoint URLs are filled in when unset so tests can
// point engines at local fixtures.
func NewMultiEngineSearch(config SearchEngineConfig, client *http.Client, logger *logrus.Logger) *MultiEngineSearch {
	if config.SerpAPIBaseURL == "" {
		config.SerpAPIBaseURL = "https://serpapi.com/search"
	}
	if config.GoogleBaseURL == "" {
		config.GoogleBaseURL = "https://www.googleapis.com/customsearch/v1"
	}
	if config.BingBaseURL == "" {
		config.BingBaseURL = "https://api.bing.microsoft.com/v7.0/search"
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MultiEngineSearch{config: config, client: client, logger: logger.WithField("tool", "search_web")}
}

func (m *MultiEngineSearch) enabled(engine string) bool {
	switch engine {
	case "serpapi":
		return m.config.SerpAPIKey != ""
	case "googleapi":
		return m.config.GoogleKey != "" && m.config.GoogleCX != ""
	case "bingapi":
		return m.config.BingKey != ""
	}
	return false
}

// Search runs the query against the preferred engine, falling back to the
// first other engine with credentials when the preferred one is not
// configured.
func (m *MultiEngineSearch) Search(ctx context.Context, query string, limit int) (*SearchOutput, error) {
	if limit <= 0 {
		limit = 5
	}

	engine := m.config.Preferred
	if !m.enabled(engine) {
		engine = ""
		for _, candidate := range []string{"serpapi", "googleapi", "bingapi"} {
			if m.enabled(candidate) {
				engine = candidate
				m.logger.WithField("engine", candidate).Info("Using fallback search engine")
				break
			}
		}
	}

	switch engine {
	case "serpapi":
		return m.searchSerpAPI(ctx, query, limit)
	case "googleapi":
		return m.searchGoogle(ctx, query, limit)
	case "bingapi":
		return m.searchBing(ctx, query, limit)
	default:
		return nil, fmt.Errorf("no search engine configured")
	}
}

func (m *MultiEngineSearch) searchSerpAPI(ctx context.Context, query string, limit int) (*SearchOutput, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", limit))
	params.Set("api_key", m.config.SerpAPIKey)
	params.Set("engine", "google")

	var payload struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Source  string `json:"source"`
		} `json:"organic_results"`
	}
	if err := m.getJSON(ctx, m.config.SerpAPIBaseURL+"?"+params.Encode(), nil, &payload); err != nil {
		return nil, fmt.Errorf("serpapi search: %w", err)
	}

	results := make([]SearchResult, 0, limit)
	for _, item := range payload.OrganicResults {
		if len(results) >= limit {
			break
		}
		results = append(results, SearchResult{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: item.Snippet,
			Source:  item.Source,
		})
	}

	return &SearchOutput{Query: query, Results: results, ResultCount: len(results), Engine: "serpapi"}, nil
}

func (m *MultiEngineSearch) searchGoogle(ctx context.Context, query string, limit int) (*SearchOutput, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", limit))
	params.Set("key", m.config.GoogleKey)
	params.Set("cx", m.config.GoogleCX)

	var payload struct {
		Items []struct {
			Title       string `json:"title"`
			Link        string `json:"link"`
			Snippet     string `json:"snippet"`
			DisplayLink string `json:"displayLink"`
		} `json:"items"`
	}
	if err := m.getJSON(ctx, m.config.GoogleBaseURL+"?"+params.Encode(), nil, &payload); err != nil {
		return nil, fmt.Errorf("google search: %w", err)
	}

	results := make([]SearchResult, 0, limit)
	for _, item := range payload.Items {
		if len(results) >= limit {
			break
		}
		results = append(results, SearchResult{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: item.Snippet,
			Source:  item.DisplayLink,
		})
	}

	return &SearchOutput{Query: query, Results: results, ResultCount: len(results), Engine: "googleapi"}, nil
}

func (m *MultiEngineSearch) searchBing(ctx context.Context, query string, limit int) (*SearchOutput, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", fmt.Sprintf("%d", limit))

	headers := map[string]string{"Ocp-Apim-Subscription-Key": m.config.BingKey}

	var payload struct {
		WebPages struct {
			Value []struct {
				Name        string `json:"name"`
				URL         string `json:"url"`
				Snippet     string `json:"snippet"`
				DisplayURL  string `json:"displayUrl"`
				DateCrawled string `json:"dateLastCrawled"`
			} `json:"value"`
		} `json:"webPages"`
	}
	if err := m.getJSON(ctx, m.config.BingBaseURL+"?"+params.Encode(), headers, &payload); err != nil {
		return nil, fmt.Errorf("bing search: %w", err)
	}

	results := make([]SearchResult, 0, limit)
	for _, item := range payload.WebPages.Value {
		if len(results) >= limit {
			break
		}
		results = append(results, SearchResult{
			Title:   item.Name,
			Link:    item.URL,
			Snippet: item.Snippet,
			Source:  item.DisplayURL,
		})
	}

	return &SearchOutput{Query: query, Results: results, ResultCount: len(results), Engine: "bingapi"}, nil
}

func (m *MultiEngineSearch) getJSON(ctx context.Context, rawURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// RegisterSearchTool appends the dynamic search_web tool to the registry.
// Callers gate this on the search feature flag; when disabled the tool is
// absent from both the catalog and the model's tool schema.
func RegisterSearchTool(r *Registry, provider SearchProvider) {
	def := Definition{
		Name:        "search_web",
		Description: "Search the web for information",
		Parameters: map[string]Param{
			"query": {
				Type:        "string",
				Description: "The query to search for",
			},
			"limit": {
				Type:        "integer",
				Description: "Number of results to return",
				Default:     5,
			},
		},
	}

	r.Register(def, func(ctx context.Context, args map[string]any, tc Context) (any, error) {
		query := StringArg(args, "query", "")
		limit := IntArg(args, "limit", 5)

		output, err := provider.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return output, nil
	})
}
