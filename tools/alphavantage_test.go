package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alphaVantageFixture(t *testing.T, handler func(function string, w http.ResponseWriter, r *http.Request)) *AlphaVantageClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "demo-key", r.URL.Query().Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		handler(r.URL.Query().Get("function"), w, r)
	}))
	t.Cleanup(server.Close)
	return NewAlphaVantageClient("demo-key", server.URL, server.Client(), testLogger())
}

func TestAlphaVantageSearchStocks(t *testing.T) {
	client := alphaVantageFixture(t, func(function string, w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "SYMBOL_SEARCH", function)
		assert.Equal(t, "apple", r.URL.Query().Get("keywords"))
		w.Write([]byte(`{
			"bestMatches": [
				{"1. symbol": "AAPL", "2. name": "Apple Inc", "4. region": "United States", "8. currency": "USD"},
				{"1. symbol": "APLE", "2. name": "Apple Hospitality", "4. region": "United States", "8. currency": "USD"}
			]
		}`))
	})

	results, err := client.SearchStocks(context.Background(), "apple")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "AAPL", results[0].Symbol)
	assert.Equal(t, "Apple Inc", results[0].Name)
	assert.Equal(t, "USD", results[0].Currency)
}

func TestAlphaVantageGetStockInfo(t *testing.T) {
	client := alphaVantageFixture(t, func(function string, w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GLOBAL_QUOTE", function)
		w.Write([]byte(`{
			"Global Quote": {
				"01. symbol": "AAPL",
				"05. price": "231.5000",
				"10. change percent": "1.25%"
			}
		}`))
	})

	info, err := client.GetStockInfo(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "AAPL", info.Symbol)
	assert.InDelta(t, 231.5, info.Price, 0.001)
	assert.Equal(t, "1.25%", info.ChangePercent)
}

func TestAlphaVantageGetStockInfoNotFound(t *testing.T) {
	client := alphaVantageFixture(t, func(function string, w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Global Quote": {}}`))
	})

	info, err := client.GetStockInfo(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestAlphaVantageGetPriceHistory(t *testing.T) {
	client := alphaVantageFixture(t, func(function string, w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "TIME_SERIES_DAILY", function)

		var entries []string
		for day := 1; day <= 30; day++ {
			entries = append(entries, fmt.Sprintf(
				`"2025-06-%02d": {"1. open": "%d", "2. high": "%d", "3. low": "%d", "4. close": "%d", "5. volume": "1000"}`,
				day, day, day+1, day-1, day))
		}
		w.Write([]byte(`{"Time Series (Daily)": {` + strings.Join(entries, ",") + `}}`))
	})

	history, err := client.GetPriceHistory(context.Background(), "AAPL", "daily", "1m")
	require.NoError(t, err)
	require.NotNil(t, history)

	// 1m keeps the trailing 22 trading days, oldest first.
	require.Len(t, history.Data, 22)
	assert.Equal(t, "2025-06-09", history.Data[0].Date)
	assert.Equal(t, "2025-06-30", history.Data[len(history.Data)-1].Date)
	assert.InDelta(t, 30.0, history.Data[len(history.Data)-1].Close, 0.001)
	assert.Equal(t, int64(1000), history.Data[0].Volume)
}

func TestAlphaVantageGetPriceHistoryWeeklySeriesKey(t *testing.T) {
	client := alphaVantageFixture(t, func(function string, w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "TIME_SERIES_WEEKLY", function)
		w.Write([]byte(`{"Weekly Time Series": {
			"2025-06-06": {"1. open": "10", "2. high": "11", "3. low": "9", "4. close": "10.5", "5. volume": "500"}
		}}`))
	})

	history, err := client.GetPriceHistory(context.Background(), "AAPL", "weekly", "1m")
	require.NoError(t, err)
	require.NotNil(t, history)
	require.Len(t, history.Data, 1)
	assert.Equal(t, "weekly", history.Interval)
}

func TestAlphaVantageGetPriceHistoryEmptySeries(t *testing.T) {
	client := alphaVantageFixture(t, func(function string, w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Note": "rate limited"}`))
	})

	history, err := client.GetPriceHistory(context.Background(), "AAPL", "daily", "1m")
	require.NoError(t, err)
	assert.Nil(t, history)
}

func TestAlphaVantageGetFundamentalsFiltered(t *testing.T) {
	client := alphaVantageFixture(t, func(function string, w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "OVERVIEW", function)
		w.Write([]byte(`{
			"Symbol": "AAPL",
			"PERatio": "31.2",
			"EPS": "7.4",
			"RevenueTTM": "400000000000",
			"Description": "very long text"
		}`))
	})

	metrics, err := client.GetFundamentals(context.Background(), "AAPL", "key_metrics")
	require.NoError(t, err)
	assert.Equal(t, "31.2", metrics["PERatio"])
	assert.Equal(t, "7.4", metrics["EPS"])
	assert.NotContains(t, metrics, "Description")
	assert.NotContains(t, metrics, "RevenueTTM")
}

func TestAlphaVantageGetFundamentalsAllReturnsFullOverview(t *testing.T) {
	client := alphaVantageFixture(t, func(function string, w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Symbol": "AAPL", "Description": "kept"}`))
	})

	overview, err := client.GetFundamentals(context.Background(), "AAPL", "all")
	require.NoError(t, err)
	assert.Equal(t, "kept", overview["Description"])
}

func TestAlphaVantageGetMarketNews(t *testing.T) {
	client := alphaVantageFixture(t, func(function string, w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "NEWS_SENTIMENT", function)
		assert.Equal(t, "AAPL", r.URL.Query().Get("tickers"))
		w.Write([]byte(`{
			"feed": [
				{"title": "N1", "url": "https://n1", "summary": "s1", "source": "src", "time_published": "20250601T120000", "overall_sentiment_label": "Bullish"},
				{"title": "N2", "url": "https://n2", "summary": "s2", "source": "src", "time_published": "20250601T130000", "overall_sentiment_label": "Neutral"},
				{"title": "N3", "url": "https://n3", "summary": "s3", "source": "src", "time_published": "20250601T140000", "overall_sentiment_label": "Bearish"}
			]
		}`))
	})

	news, err := client.GetMarketNews(context.Background(), "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, news, 2)
	assert.Equal(t, "N1", news[0].Title)
	assert.Equal(t, "Bullish", news[0].Sentiment)
}
