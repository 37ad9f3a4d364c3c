package data

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
)

// minPricePoints is the shortest history accepted from the provider.
const minPricePoints = 30

// PriceData holds the close price series for a ticker
type PriceData struct {
	Ticker         string      `json:"ticker"`
	Closes         []float64   `json:"closes"`
	Dates          []time.Time `json:"dates"`
	YearsRequested int         `json:"years_requested"`
	YearsAvail     float64     `json:"years_avail"`
	Partial        bool        `json:"partial"`
}

// Fetcher loads daily close prices for one ticker.
type Fetcher interface {
	FetchPrices(ctx context.Context, ticker string, years int) (*PriceData, error)
}

type yahooResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// YahooClient downloads historical daily close prices from Yahoo Finance.
// Requests are paced by a shared limiter and concurrent requests for the same
// ticker and range share one download.
type YahooClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	group   singleflight.Group
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

// NewYahooClient creates a client. rps <= 0 disables pacing.
func NewYahooClient(baseURL string, rps float64, timeout time.Duration, log zerolog.Logger) *YahooClient {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &YahooClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
		log:     log.With().Str("component", "yahoo").Logger(),
		now:     time.Now,
	}
}

// FetchPrices downloads `years` of daily closes for ticker.
func (c *YahooClient) FetchPrices(ctx context.Context, ticker string, years int) (*PriceData, error) {
	key := fmt.Sprintf("%s|%d", ticker, years)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// The download outlives any single caller that shares it.
		dctx, cancel := c.downloadContext(ctx)
		defer cancel()
		return c.fetch(dctx, ticker, years)
	})

	select {
	case <-ctx.Done():
		return nil, apperrors.NewProviderError("yahoo", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.log.Debug().Str("ticker", ticker).Msg("shared in-flight download")
		}
		return res.Val.(*PriceData), nil
	}
}

func (c *YahooClient) downloadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.timeout > 0 {
		// leave room for the limiter wait on top of the HTTP timeout
		return context.WithTimeout(detached, 2*c.timeout)
	}
	return context.WithCancel(detached)
}

func (c *YahooClient) fetch(ctx context.Context, ticker string, years int) (*PriceData, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperrors.NewProviderError("yahoo", err)
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%dy", c.baseURL, ticker, years)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.NewProviderError("yahoo", err)
	}
	// Yahoo requires a user-agent header
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; FrontierApp/1.0)")

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.NewProviderError("yahoo", fmt.Errorf("network error fetching %s: %w", ticker, err))
	}
	defer resp.Body.Close()

	var yr yahooResponse
	if err := json.NewDecoder(resp.Body).Decode(&yr); err != nil {
		return nil, apperrors.NewProviderError("yahoo",
			fmt.Errorf("failed to decode response for %s (status %d): %w", ticker, resp.StatusCode, err))
	}
	c.log.Debug().Str("ticker", ticker).Int("status", resp.StatusCode).
		Dur("elapsed", c.now().Sub(start)).Msg("chart response")

	if yr.Chart.Error != nil {
		return nil, apperrors.NewProviderError("yahoo",
			fmt.Errorf("Yahoo Finance error for %s: %s", ticker, yr.Chart.Error.Description))
	}
	if len(yr.Chart.Result) == 0 {
		return nil, apperrors.NewProviderError("yahoo",
			fmt.Errorf("no data returned for ticker %s, please check if it is valid", ticker))
	}

	result := yr.Chart.Result[0]
	quotes := result.Indicators.Quote
	if len(quotes) == 0 {
		return nil, apperrors.NewProviderError("yahoo", fmt.Errorf("no quote data for %s", ticker))
	}

	var prices []float64
	var dates []time.Time
	for i, px := range quotes[0].Close {
		if px == nil || i >= len(result.Timestamp) {
			continue
		}
		if math.IsNaN(*px) || *px <= 0 {
			continue
		}
		prices = append(prices, *px)
		dates = append(dates, time.Unix(result.Timestamp[i], 0).UTC())
	}

	if len(prices) < minPricePoints {
		return nil, apperrors.NewProviderError("yahoo", fmt.Errorf(
			"not enough price data for %s (got %d points, need at least %d)", ticker, len(prices), minPricePoints))
	}

	symbol := result.Meta.Symbol
	if symbol == "" {
		symbol = ticker
	}
	pd := &PriceData{
		Ticker:         symbol,
		Closes:         prices,
		Dates:          dates,
		YearsRequested: years,
	}
	markPartial(pd, c.now())
	return pd, nil
}

// markPartial flags histories that start well after the requested window.
func markPartial(pd *PriceData, now time.Time) {
	if len(pd.Dates) == 0 {
		return
	}
	pd.YearsAvail = now.Sub(pd.Dates[0]).Hours() / (24 * 365.25)
	// Allow a month of slack for weekends, holidays and listing delays.
	pd.Partial = pd.YearsAvail < float64(pd.YearsRequested)-1.0/12
}

// FetchResult is the outcome of fetching one ticker.
type FetchResult struct {
	Ticker string
	Data   *PriceData
	Err    error
}

// FetchAll fetches tickers concurrently. Results keep the order of tickers and a
// failure for one ticker does not stop the others.
func FetchAll(ctx context.Context, f Fetcher, tickers []string, years int) []FetchResult {
	results := make([]FetchResult, len(tickers))
	var wg sync.WaitGroup

	for i, ticker := range tickers {
		wg.Add(1)
		go func(i int, ticker string) {
			defer wg.Done()
			pd, err := f.FetchPrices(ctx, ticker, years)
			results[i] = FetchResult{Ticker: ticker, Data: pd, Err: err}
		}(i, ticker)
	}
	wg.Wait()

	return results
}
