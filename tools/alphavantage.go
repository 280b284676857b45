package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
)

// barsPerRange maps the price-history range argument to a trailing bar
// count on the daily series (trading days).
var barsPerRange = map[string]int{
	"1m": 22,
	"3m": 66,
	"6m": 132,
	"1y": 252,
	"5y": 1260,
}

// fundamentalsKeys filters the company overview down to the keys relevant
// for a given report type. Unlisted types return the full overview.
var fundamentalsKeys = map[string][]string{
	"key_metrics": {
		"MarketCapitalization", "PERatio", "PEGRatio", "PriceToBookRatio",
		"EPS", "DividendYield", "Beta", "52WeekHigh", "52WeekLow",
	},
	"performance": {
		"ProfitMargin", "OperatingMarginTTM", "ReturnOnAssetsTTM",
		"ReturnOnEquityTTM", "QuarterlyEarningsGrowthYOY", "QuarterlyRevenueGrowthYOY",
	},
	"income": {
		"RevenueTTM", "GrossProfitTTM", "EBITDA", "DilutedEPSTTM",
	},
}

// AlphaVantageClient is a StockProvider backed by the Alpha Vantage HTTP
// API.
type AlphaVantageClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *logrus.Entry
}

// NewAlphaVantageClient creates a provider for the given API key. baseURL
// is overridable for tests; empty selects the public endpoint.
func NewAlphaVantageClient(apiKey, baseURL string, client *http.Client, logger *logrus.Logger) *AlphaVantageClient {
	if baseURL == "" {
		baseURL = "https://www.alphavantage.co/query"
	}
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AlphaVantageClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
		logger:  logger.WithField("provider", "alphavantage"),
	}
}

func (a *AlphaVantageClient) get(ctx context.Context, params url.Values, out any) error {
	params.Set("apikey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("alphavantage status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// SearchStocks resolves a keyword to candidate symbols via SYMBOL_SEARCH.
func (a *AlphaVantageClient) SearchStocks(ctx context.Context, query string) ([]StockInfo, error) {
	params := url.Values{}
	params.Set("function", "SYMBOL_SEARCH")
	params.Set("keywords", query)

	var payload struct {
		BestMatches []map[string]string `json:"bestMatches"`
	}
	if err := a.get(ctx, params, &payload); err != nil {
		return nil, fmt.Errorf("symbol search: %w", err)
	}

	results := make([]StockInfo, 0, len(payload.BestMatches))
	for _, match := range payload.BestMatches {
		results = append(results, StockInfo{
			Symbol:   match["1. symbol"],
			Name:     match["2. name"],
			Exchange: match["4. region"],
			Currency: match["8. currency"],
		})
	}

	a.logger.WithFields(logrus.Fields{
		"query":   query,
		"matches": len(results),
	}).Debug("Symbol search completed")

	return results, nil
}

// GetStockInfo fetches the latest quote via GLOBAL_QUOTE. A symbol with
// no quote yields (nil, nil) so callers can report not-found as data.
func (a *AlphaVantageClient) GetStockInfo(ctx context.Context, symbol string) (*StockInfo, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)

	var payload struct {
		GlobalQuote map[string]string `json:"Global Quote"`
	}
	if err := a.get(ctx, params, &payload); err != nil {
		return nil, fmt.Errorf("global quote: %w", err)
	}

	quoted := payload.GlobalQuote["01. symbol"]
	if quoted == "" {
		return nil, nil
	}

	price, _ := strconv.ParseFloat(payload.GlobalQuote["05. price"], 64)
	return &StockInfo{
		Symbol:        quoted,
		Price:         price,
		ChangePercent: payload.GlobalQuote["10. change percent"],
	}, nil
}

// GetPriceHistory fetches a TIME_SERIES_* function and returns the
// trailing bars for the requested range, oldest first.
func (a *AlphaVantageClient) GetPriceHistory(ctx context.Context, symbol, interval, priceRange string) (*PriceHistory, error) {
	function := "TIME_SERIES_DAILY"
	seriesKey := "Time Series (Daily)"
	switch interval {
	case "weekly":
		function = "TIME_SERIES_WEEKLY"
		seriesKey = "Weekly Time Series"
	case "monthly":
		function = "TIME_SERIES_MONTHLY"
		seriesKey = "Monthly Time Series"
	}

	params := url.Values{}
	params.Set("function", function)
	params.Set("symbol", symbol)
	params.Set("outputsize", "full")

	var payload map[string]json.RawMessage
	if err := a.get(ctx, params, &payload); err != nil {
		return nil, fmt.Errorf("price history: %w", err)
	}

	var series map[string]map[string]string
	if raw, ok := payload[seriesKey]; ok {
		if err := json.Unmarshal(raw, &series); err != nil {
			return nil, fmt.Errorf("price history: decode series: %w", err)
		}
	}
	if len(series) == 0 {
		return nil, nil
	}

	dates := make([]string, 0, len(series))
	for date := range series {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	limit := barsPerRange[priceRange]
	if limit == 0 {
		limit = barsPerRange["1m"]
	}
	if limit < len(dates) {
		dates = dates[len(dates)-limit:]
	}

	bars := make([]PricePoint, 0, len(dates))
	for _, date := range dates {
		bar := series[date]
		open, _ := strconv.ParseFloat(bar["1. open"], 64)
		high, _ := strconv.ParseFloat(bar["2. high"], 64)
		low, _ := strconv.ParseFloat(bar["3. low"], 64)
		closePrice, _ := strconv.ParseFloat(bar["4. close"], 64)
		volume, _ := strconv.ParseInt(bar["5. volume"], 10, 64)
		bars = append(bars, PricePoint{
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}

	return &PriceHistory{Symbol: symbol, Interval: interval, Data: bars}, nil
}

// GetFundamentals fetches the company OVERVIEW, optionally filtered to a
// report-type key subset.
func (a *AlphaVantageClient) GetFundamentals(ctx context.Context, symbol, reportType string) (map[string]any, error) {
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", symbol)

	var overview map[string]any
	if err := a.get(ctx, params, &overview); err != nil {
		return nil, fmt.Errorf("fundamentals: %w", err)
	}

	keys, ok := fundamentalsKeys[reportType]
	if !ok || reportType == "all" {
		return overview, nil
	}

	filtered := make(map[string]any, len(keys))
	for _, key := range keys {
		if value, exists := overview[key]; exists {
			filtered[key] = value
		}
	}
	return filtered, nil
}

// GetMarketNews fetches headlines via NEWS_SENTIMENT, optionally scoped
// to one ticker.
func (a *AlphaVantageClient) GetMarketNews(ctx context.Context, symbol string, limit int) ([]NewsItem, error) {
	if limit <= 0 {
		limit = 5
	}

	params := url.Values{}
	params.Set("function", "NEWS_SENTIMENT")
	if symbol != "" {
		params.Set("tickers", symbol)
	}
	params.Set("limit", strconv.Itoa(limit))

	var payload struct {
		Feed []struct {
			Title         string `json:"title"`
			URL           string `json:"url"`
			Summary       string `json:"summary"`
			Source        string `json:"source"`
			TimePublished string `json:"time_published"`
			Sentiment     string `json:"overall_sentiment_label"`
		} `json:"feed"`
	}
	if err := a.get(ctx, params, &payload); err != nil {
		return nil, fmt.Errorf("market news: %w", err)
	}

	news := make([]NewsItem, 0, limit)
	for _, item := range payload.Feed {
		if len(news) >= limit {
			break
		}
		news = append(news, NewsItem{
			Title:       item.Title,
			URL:         item.URL,
			Summary:     item.Summary,
			Source:      item.Source,
			PublishedAt: item.TimePublished,
			Sentiment:   item.Sentiment,
		})
	}
	return news, nil
}

var _ StockProvider = (*AlphaVantageClient)(nil)
