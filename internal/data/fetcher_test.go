package data

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
)

var chartStart = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)

// chartBody builds a Yahoo chart payload with n daily closes. A nil entry in
// the payload marks a day without a close.
func chartBody(symbol string, n int, nullAt int) map[string]interface{} {
	ts := make([]int64, n)
	closes := make([]interface{}, n)
	for i := 0; i < n; i++ {
		ts[i] = chartStart.AddDate(0, 0, i).Unix()
		closes[i] = 100 + float64(i)
	}
	if nullAt >= 0 && nullAt < n {
		closes[nullAt] = nil
	}
	return map[string]interface{}{
		"chart": map[string]interface{}{
			"result": []interface{}{
				map[string]interface{}{
					"meta":      map[string]interface{}{"symbol": symbol},
					"timestamp": ts,
					"indicators": map[string]interface{}{
						"quote": []interface{}{map[string]interface{}{"close": closes}},
					},
				},
			},
			"error": nil,
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *YahooClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewYahooClient(srv.URL, 0, 5*time.Second, zerolog.Nop())
	c.now = func() time.Time { return chartStart.AddDate(0, 0, 60) }
	return c
}

func TestYahooClient_FetchPrices(t *testing.T) {
	var gotPath, gotRange, gotAgent string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRange = r.URL.Query().Get("range")
		gotAgent = r.Header.Get("User-Agent")
		json.NewEncoder(w).Encode(chartBody("AAPL", 45, 10))
	})

	pd, err := c.FetchPrices(context.Background(), "AAPL", 2)
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/AAPL", gotPath)
	assert.Equal(t, "2y", gotRange)
	assert.NotEmpty(t, gotAgent)

	assert.Equal(t, "AAPL", pd.Ticker)
	assert.Len(t, pd.Closes, 44, "null closes are skipped")
	assert.Len(t, pd.Dates, 44)
	assert.Equal(t, 100.0, pd.Closes[0])
	assert.Equal(t, 111.0, pd.Closes[10])
	assert.True(t, pd.Dates[0].Equal(chartStart))
	assert.True(t, pd.Partial)
	assert.Equal(t, 2, pd.YearsRequested)
	assert.InDelta(t, 60.0/365.25, pd.YearsAvail, 1e-9)
}

func TestYahooClient_ProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"chart error", map[string]interface{}{
			"chart": map[string]interface{}{
				"result": nil,
				"error":  map[string]string{"code": "Not Found", "description": "No data found, symbol may be delisted"},
			},
		}},
		{"empty result", map[string]interface{}{"chart": map[string]interface{}{"result": []interface{}{}}}},
		{"too few points", chartBody("XYZ", minPricePoints-1, -1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(tt.body)
			})

			_, err := c.FetchPrices(context.Background(), "XYZ", 1)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeProviderError))
			assert.Equal(t, http.StatusBadGateway, apperrors.GetHTTPStatusCode(err))
		})
	}
}

func TestYahooClient_SharedDownloadSurvivesCancelledCaller(t *testing.T) {
	var hits atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		json.NewEncoder(w).Encode(chartBody("MSFT", 45, -1))
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.FetchPrices(firstCtx, "MSFT", 1)
		firstErr <- err
	}()
	<-started

	type result struct {
		pd  *PriceData
		err error
	}
	second := make(chan result, 1)
	go func() {
		pd, err := c.FetchPrices(context.Background(), "MSFT", 1)
		second <- result{pd, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	err := <-firstErr
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Len(t, res.pd.Closes, 45)
	assert.Equal(t, int32(1), hits.Load(), "both callers share one download")
}

func TestYahooClient_UndecodableBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>rate limited</html>"))
	})

	_, err := c.FetchPrices(context.Background(), "AAPL", 1)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryProvider))
}

func TestMarkPartial(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	full := &PriceData{YearsRequested: 2, Dates: []time.Time{now.AddDate(-2, 0, 10)}}
	markPartial(full, now)
	assert.False(t, full.Partial, "a few days short is within slack")

	short := &PriceData{YearsRequested: 2, Dates: []time.Time{now.AddDate(-1, 0, 0)}}
	markPartial(short, now)
	assert.True(t, short.Partial)
	assert.InDelta(t, 1.0, short.YearsAvail, 0.01)
}

type stubFetcher struct {
	calls  atomic.Int32
	series map[string]*PriceData
}

func (s *stubFetcher) FetchPrices(_ context.Context, ticker string, years int) (*PriceData, error) {
	s.calls.Add(1)
	pd, ok := s.series[ticker]
	if !ok {
		return nil, apperrors.NewProviderError("stub", errors.New("unknown ticker "+ticker))
	}
	cp := *pd
	cp.YearsRequested = years
	return &cp, nil
}

func TestFetchAll_KeepsOrderAndFailures(t *testing.T) {
	f := &stubFetcher{series: map[string]*PriceData{
		"A": {Ticker: "A", Closes: []float64{1, 2}},
		"C": {Ticker: "C", Closes: []float64{3, 4}},
	}}

	results := FetchAll(context.Background(), f, []string{"A", "B", "C"}, 3)
	require.Len(t, results, 3)

	assert.Equal(t, "A", results[0].Ticker)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 3, results[0].Data.YearsRequested)

	assert.Equal(t, "B", results[1].Ticker)
	assert.Error(t, results[1].Err)
	assert.Nil(t, results[1].Data)

	assert.Equal(t, "C", results[2].Ticker)
	assert.Equal(t, []float64{3, 4}, results[2].Data.Closes)
	assert.Equal(t, int32(3), f.calls.Load())
}
