package tools

import (
	"context"
	"fmt"
)

// StockInfo is the normalized stock descriptor returned by lookups.
type StockInfo struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Exchange      string  `json:"exchange,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	Price         float64 `json:"price,omitempty"`
	ChangePercent string  `json:"change_percent,omitempty"`
}

// PricePoint is one bar of historical price data.
type PricePoint struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// PriceHistory is an ordered series of price bars, oldest first.
type PriceHistory struct {
	Symbol   string       `json:"symbol"`
	Interval string       `json:"interval"`
	Data     []PricePoint `json:"data"`
}

// NewsItem is one market news headline.
type NewsItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Summary     string `json:"summary"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
	Sentiment   string `json:"sentiment,omitempty"`
}

// StockProvider supplies market data to the stock tools. Implementations
// are pure with respect to identical inputs within a market session, which
// keeps the lookup tools idempotent for the dispatcher.
type StockProvider interface {
	SearchStocks(ctx context.Context, query string) ([]StockInfo, error)
	GetStockInfo(ctx context.Context, symbol string) (*StockInfo, error)
	GetPriceHistory(ctx context.Context, symbol, interval, priceRange string) (*PriceHistory, error)
	GetFundamentals(ctx context.Context, symbol, reportType string) (map[string]any, error)
	GetMarketNews(ctx context.Context, symbol string, limit int) ([]NewsItem, error)
}

var dataSourceParam = Param{
	Type:        "string",
	Description: "Market data source",
	Enum:        []string{"alphavantage"},
	Default:     "alphavantage",
}

// RegisterStockTools appends the static stock tool catalog to the
// registry in its fixed declaration order: search_stocks, get_stock_info,
// get_stock_price_history, analyze_stock, get_market_news,
// get_stock_fundamentals.
func RegisterStockTools(r *Registry, provider StockProvider) {
	r.Register(Definition{
		Name:        "search_stocks",
		Description: "Search for stocks by keyword, name, symbol or industry",
		Parameters: map[string]Param{
			"query": {
				Type:        "string",
				Description: "Search keyword: a stock name, symbol or industry",
			},
			"data_source": dataSourceParam,
		},
	}, func(ctx context.Context, args map[string]any, tc Context) (any, error) {
		query := StringArg(args, "query", "")
		results, err := provider.SearchStocks(ctx, query)
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": results}, nil
	})

	r.Register(Definition{
		Name:        "get_stock_info",
		Description: "Get detailed information about a stock",
		Parameters: map[string]Param{
			"symbol": {
				Type:        "string",
				Description: "Stock symbol (use search_stocks to find it)",
			},
			"data_source": dataSourceParam,
		},
	}, func(ctx context.Context, args map[string]any, tc Context) (any, error) {
		symbol := StringArg(args, "symbol", "")
		stock, err := provider.GetStockInfo(ctx, symbol)
		if err != nil {
			return nil, err
		}
		if stock == nil {
			// Not-found is data the model can react to, not a failure.
			return map[string]any{"error": fmt.Sprintf("stock not found: %s", symbol)}, nil
		}
		return map[string]any{"stock": stock}, nil
	})

	r.Register(Definition{
		Name:        "get_stock_price_history",
		Description: "Get historical price data for a stock",
		Parameters: map[string]Param{
			"symbol": {
				Type:        "string",
				Description: "Stock symbol (use search_stocks to find it)",
			},
			"interval": {
				Type:        "string",
				Description: "Bar interval",
				Enum:        []string{"daily", "weekly", "monthly"},
				Default:     "daily",
			},
			"range": {
				Type:        "string",
				Description: "Time range",
				Enum:        []string{"1m", "3m", "6m", "1y", "5y"},
				Default:     "1m",
			},
			"data_source": dataSourceParam,
		},
	}, func(ctx context.Context, args map[string]any, tc Context) (any, error) {
		symbol := StringArg(args, "symbol", "")
		interval := StringArg(args, "interval", "daily")
		priceRange := StringArg(args, "range", "1m")

		history, err := provider.GetPriceHistory(ctx, symbol, interval, priceRange)
		if err != nil {
			return nil, err
		}
		if history == nil || len(history.Data) == 0 {
			return map[string]any{"error": fmt.Sprintf("no price history for: %s", symbol)}, nil
		}
		return map[string]any{"history": history.Data}, nil
	})

	registerAnalysisTool(r, provider)

	r.Register(Definition{
		Name:        "get_market_news",
		Description: "Get market news and announcements",
		Parameters: map[string]Param{
			"symbol": {
				Type:        "string",
				Description: "Related stock symbol, optional (use search_stocks to find it)",
				Optional:    true,
			},
			"limit": {
				Type:        "integer",
				Description: "Number of news items to return",
				Default:     5,
			},
		},
	}, func(ctx context.Context, args map[string]any, tc Context) (any, error) {
		symbol := StringArg(args, "symbol", "")
		limit := IntArg(args, "limit", 5)

		news, err := provider.GetMarketNews(ctx, symbol, limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"news": news}, nil
	})

	r.Register(Definition{
		Name:        "get_stock_fundamentals",
		Description: "Get fundamental data for a stock, including financials and valuation metrics",
		Parameters: map[string]Param{
			"symbol": {
				Type:        "string",
				Description: "Stock symbol (use search_stocks to find it)",
			},
			"report_type": {
				Type:        "string",
				Description: "Report type, all for everything",
				Enum:        []string{"all", "balance_sheet", "income", "cash_flow", "performance", "key_metrics"},
				Default:     "all",
			},
			"data_source": dataSourceParam,
		},
	}, func(ctx context.Context, args map[string]any, tc Context) (any, error) {
		symbol := StringArg(args, "symbol", "")
		reportType := StringArg(args, "report_type", "all")

		fundamentals, err := provider.GetFundamentals(ctx, symbol, reportType)
		if err != nil {
			return nil, err
		}
		return map[string]any{"fundamentals": fundamentals}, nil
	})
}
