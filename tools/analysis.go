package tools

import (
	"context"
	"fmt"
)

// StockAnalysis is the rule-based assessment produced by analyze_stock.
type StockAnalysis struct {
	Symbol       string  `json:"symbol"`
	LatestClose  float64 `json:"latest_close"`
	MA5          float64 `json:"ma5"`
	MA20         float64 `json:"ma20"`
	Trend        string  `json:"trend"`
	Signal       string  `json:"signal"`
	Support      float64 `json:"support"`
	Resistance   float64 `json:"resistance"`
	ChangePct    float64 `json:"change_pct"`
	SamplePeriod string  `json:"sample_period"`
}

// registerAnalysisTool appends analyze_stock to the catalog. The handler
// records billable usage for the caller before computing signals, so
// later tool calls in the same round observe the updated counter.
func registerAnalysisTool(r *Registry, provider StockProvider) {
	r.Register(Definition{
		Name:        "analyze_stock",
		Description: "Analyze a stock using moving-average rules and provide trend signals",
		Parameters: map[string]Param{
			"symbol": {
				Type:        "string",
				Description: "Stock symbol (use search_stocks to find it)",
			},
			"analysis_mode": {
				Type:        "string",
				Description: "Analysis mode",
				Enum:        []string{"rule"},
				Default:     "rule",
			},
			"data_source": dataSourceParam,
		},
	}, func(ctx context.Context, args map[string]any, tc Context) (any, error) {
		symbol := StringArg(args, "symbol", "")

		if tc.Usage != nil {
			if err := tc.Usage.IncrementUsage(ctx, tc.UserID); err != nil {
				return nil, fmt.Errorf("record usage: %w", err)
			}
		}

		history, err := provider.GetPriceHistory(ctx, symbol, "daily", "3m")
		if err != nil {
			return nil, err
		}
		if history == nil || len(history.Data) == 0 {
			return map[string]any{"error": fmt.Sprintf("no price history for: %s", symbol)}, nil
		}

		analysis := analyzeHistory(symbol, history.Data)
		return map[string]any{"analysis": analysis}, nil
	})
}

// analyzeHistory derives moving averages, a trend label and a buy/sell
// signal from an oldest-first series of daily bars.
func analyzeHistory(symbol string, bars []PricePoint) *StockAnalysis {
	latest := bars[len(bars)-1]

	ma5 := movingAverage(bars, 5)
	ma20 := movingAverage(bars, 20)

	trend := "sideways"
	if ma5 > ma20*1.01 {
		trend = "up"
	} else if ma5 < ma20*0.99 {
		trend = "down"
	}

	// Signal thresholds mirror the classic 20-day band: more than 5%
	// above the MA20 is overbought, more than 5% below is oversold.
	signal := "neutral"
	switch {
	case ma20 > 0 && latest.Close > ma20*1.05:
		signal = "overbought"
	case ma20 > 0 && latest.Close < ma20*0.95:
		signal = "oversold"
	case trend == "up":
		signal = "buy"
	case trend == "down":
		signal = "sell"
	}

	support, resistance := latest.Low, latest.High
	for _, bar := range bars {
		if bar.Low < support {
			support = bar.Low
		}
		if bar.High > resistance {
			resistance = bar.High
		}
	}

	changePct := 0.0
	if first := bars[0].Close; first > 0 {
		changePct = (latest.Close - first) / first * 100
	}

	return &StockAnalysis{
		Symbol:       symbol,
		LatestClose:  latest.Close,
		MA5:          ma5,
		MA20:         ma20,
		Trend:        trend,
		Signal:       signal,
		Support:      support,
		Resistance:   resistance,
		ChangePct:    changePct,
		SamplePeriod: fmt.Sprintf("%s..%s", bars[0].Date, latest.Date),
	}
}

// movingAverage computes the mean close over the trailing window,
// shrinking the window when fewer bars are available.
func movingAverage(bars []PricePoint, window int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if window > len(bars) {
		window = len(bars)
	}
	sum := 0.0
	for _, bar := range bars[len(bars)-window:] {
		sum += bar.Close
	}
	return sum / float64(window)
}
