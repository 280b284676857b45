package tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// risingBars produces n daily bars with strictly increasing closes.
func risingBars(n int, start, step float64) []PricePoint {
	bars := make([]PricePoint, 0, n)
	for i := 0; i < n; i++ {
		close := start + step*float64(i)
		bars = append(bars, PricePoint{
			Date:  fmt.Sprintf("2025-06-%02d", i+1),
			Open:  close - 0.5,
			High:  close + 1,
			Low:   close - 1,
			Close: close,
		})
	}
	return bars
}

func TestAnalyzeHistoryUptrend(t *testing.T) {
	bars := risingBars(25, 100, 1)

	analysis := analyzeHistory("TEST", bars)

	assert.Equal(t, "up", analysis.Trend)
	assert.Greater(t, analysis.MA5, analysis.MA20)
	assert.Equal(t, bars[len(bars)-1].Close, analysis.LatestClose)
	assert.Equal(t, bars[0].Low, analysis.Support)
	assert.Equal(t, bars[len(bars)-1].High, analysis.Resistance)
	assert.InDelta(t, 24.0, analysis.ChangePct, 0.01)
	assert.Equal(t, "2025-06-01..2025-06-25", analysis.SamplePeriod)
}

func TestAnalyzeHistoryDowntrendSignalsSell(t *testing.T) {
	bars := risingBars(25, 100, 1)
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	for i := range bars {
		bars[i].Date = fmt.Sprintf("2025-06-%02d", i+1)
	}

	analysis := analyzeHistory("TEST", bars)
	assert.Equal(t, "down", analysis.Trend)
	// A steady slide leaves the latest close below the band floor.
	assert.Contains(t, []string{"sell", "oversold"}, analysis.Signal)
}

func TestAnalyzeHistoryFlatSeriesIsNeutral(t *testing.T) {
	bars := risingBars(25, 100, 0)

	analysis := analyzeHistory("TEST", bars)
	assert.Equal(t, "sideways", analysis.Trend)
	assert.Equal(t, "neutral", analysis.Signal)
	assert.InDelta(t, 0.0, analysis.ChangePct, 0.001)
}

func TestMovingAverageShrinksWindow(t *testing.T) {
	bars := risingBars(3, 10, 10) // closes 10, 20, 30

	assert.InDelta(t, 20.0, movingAverage(bars, 20), 0.001)
	assert.InDelta(t, 25.0, movingAverage(bars, 2), 0.001)
	assert.Equal(t, 0.0, movingAverage(nil, 5))
}

// recordingUsage counts IncrementUsage calls.
type recordingUsage struct {
	calls int
	users []string
}

func (r *recordingUsage) IncrementUsage(ctx context.Context, userID string) error {
	r.calls++
	r.users = append(r.users, userID)
	return nil
}

// scriptedProvider returns canned market data for handler tests.
type scriptedProvider struct {
	history *PriceHistory
	err     error
}

func (p *scriptedProvider) SearchStocks(ctx context.Context, query string) ([]StockInfo, error) {
	return nil, nil
}

func (p *scriptedProvider) GetStockInfo(ctx context.Context, symbol string) (*StockInfo, error) {
	return nil, nil
}

func (p *scriptedProvider) GetPriceHistory(ctx context.Context, symbol, interval, priceRange string) (*PriceHistory, error) {
	return p.history, p.err
}

func (p *scriptedProvider) GetFundamentals(ctx context.Context, symbol, reportType string) (map[string]any, error) {
	return nil, nil
}

func (p *scriptedProvider) GetMarketNews(ctx context.Context, symbol string, limit int) ([]NewsItem, error) {
	return nil, nil
}

func TestAnalyzeStockToolRecordsUsage(t *testing.T) {
	r := NewRegistry(time.Second, testLogger())
	provider := &scriptedProvider{history: &PriceHistory{
		Symbol:   "AAPL",
		Interval: "daily",
		Data:     risingBars(25, 100, 1),
	}}
	RegisterStockTools(r, provider)

	usage := &recordingUsage{}
	result, err := r.Execute(context.Background(), "analyze_stock",
		map[string]any{"symbol": "AAPL"},
		Context{UserID: "u1", Usage: usage, Logger: testLogger().WithField("test", t.Name())})
	require.NoError(t, err)

	assert.Equal(t, 1, usage.calls)
	assert.Equal(t, []string{"u1"}, usage.users)

	payload, ok := result.(map[string]any)
	require.True(t, ok)
	analysis, ok := payload["analysis"].(*StockAnalysis)
	require.True(t, ok)
	assert.Equal(t, "AAPL", analysis.Symbol)
}

func TestStockToolSchemaRequiredLists(t *testing.T) {
	r := NewRegistry(time.Second, testLogger())
	RegisterStockTools(r, &scriptedProvider{})

	requiredFor := func(name string) []string {
		t.Helper()
		for _, def := range r.List() {
			if def.Name == name {
				required, ok := def.Schema()["required"].([]string)
				require.True(t, ok)
				return required
			}
		}
		t.Fatalf("tool %s not registered", name)
		return nil
	}

	assert.Equal(t, []string{"query"}, requiredFor("search_stocks"))
	assert.Equal(t, []string{"symbol"}, requiredFor("get_stock_price_history"))
	assert.Equal(t, []string{"symbol"}, requiredFor("get_stock_fundamentals"))
	// Both news parameters are optional or defaulted.
	assert.Empty(t, requiredFor("get_market_news"))
}

func TestAnalyzeStockToolEmptyHistoryIsData(t *testing.T) {
	r := NewRegistry(time.Second, testLogger())
	RegisterStockTools(r, &scriptedProvider{history: &PriceHistory{Symbol: "GHOST"}})

	result, err := r.Execute(context.Background(), "analyze_stock",
		map[string]any{"symbol": "GHOST"}, Context{})
	require.NoError(t, err)

	payload, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, payload["error"], "no price history")
}
