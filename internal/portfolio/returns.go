package portfolio

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
)

// DefaultPeriodsPerYear is the conventional number of trading days in a year.
const DefaultPeriodsPerYear = 252

// ReturnKind selects how period-over-period returns are derived from prices.
type ReturnKind string

const (
	// SimpleReturns uses p[t]/p[t-1] - 1.
	SimpleReturns ReturnKind = "simple"
	// LogReturns uses ln(p[t]/p[t-1]).
	LogReturns ReturnKind = "log"
)

// PriceHistory is an aligned snapshot of closing prices for a fixed asset set.
// Prices[a][t] is the price of Assets[a] at period t. A NaN price marks a missing
// observation; the returns touching it are dropped.
type PriceHistory struct {
	Assets []string
	Dates  []time.Time
	Prices [][]float64
}

// NewPriceHistory validates and wraps an aligned price snapshot. dates may be nil.
func NewPriceHistory(assets []string, dates []time.Time, prices [][]float64) (*PriceHistory, error) {
	if len(assets) == 0 {
		return nil, apperrors.NewInsufficientDataError(0, 0)
	}
	if len(prices) != len(assets) {
		return nil, apperrors.NewAssetMismatchError(
			fmt.Sprintf("got %d price series for %d assets", len(prices), len(assets)))
	}

	seen := make(map[string]bool, len(assets))
	for _, a := range assets {
		if a == "" {
			return nil, apperrors.NewAssetMismatchError("asset identifiers must not be empty")
		}
		if seen[a] {
			return nil, apperrors.NewDuplicateAssetError(a)
		}
		seen[a] = true
	}

	periods := len(prices[0])
	for i, series := range prices {
		if len(series) != periods {
			return nil, apperrors.NewAssetMismatchError(fmt.Sprintf(
				"%s has %d prices, %s has %d", assets[i], len(series), assets[0], periods))
		}
		for t, p := range series {
			if math.IsNaN(p) {
				continue
			}
			if math.IsInf(p, 0) || p <= 0 {
				return nil, apperrors.NewInvalidPriceError(assets[i], t, p)
			}
		}
	}

	if dates != nil {
		if len(dates) != periods {
			return nil, apperrors.NewAssetMismatchError(
				fmt.Sprintf("got %d dates for %d prices", len(dates), periods))
		}
		for t := 1; t < len(dates); t++ {
			if !dates[t].After(dates[t-1]) {
				return nil, apperrors.NewAssetMismatchError(
					fmt.Sprintf("dates are not strictly increasing at index %d", t))
			}
		}
	}

	return &PriceHistory{Assets: assets, Dates: dates, Prices: prices}, nil
}

// Periods returns the number of price observations per asset.
func (h *PriceHistory) Periods() int {
	if len(h.Prices) == 0 {
		return 0
	}
	return len(h.Prices[0])
}

// ReturnMatrix holds period returns, one row per period and one column per asset.
type ReturnMatrix struct {
	Assets []string
	// Dates holds the closing date of each return period when the history had dates.
	Dates []time.Time
	data  *mat.Dense
}

// NewReturnMatrix builds a matrix from rows of per-asset returns.
func NewReturnMatrix(assets []string, rows [][]float64) (*ReturnMatrix, error) {
	if len(assets) == 0 {
		return nil, apperrors.NewInsufficientDataError(0, len(rows))
	}
	rm := &ReturnMatrix{Assets: assets}
	if len(rows) == 0 {
		return rm, nil
	}
	data := make([]float64, 0, len(rows)*len(assets))
	for i, row := range rows {
		if len(row) != len(assets) {
			return nil, apperrors.NewAssetMismatchError(
				fmt.Sprintf("return row %d has %d values for %d assets", i, len(row), len(assets)))
		}
		for _, r := range row {
			if math.IsNaN(r) || math.IsInf(r, 0) {
				return nil, apperrors.NewAssetMismatchError(
					fmt.Sprintf("return row %d contains a non-finite value", i))
			}
		}
		data = append(data, row...)
	}
	rm.data = mat.NewDense(len(rows), len(assets), data)
	return rm, nil
}

// Returns derives the return matrix. Rows with any undefined return are dropped.
func (h *PriceHistory) Returns(kind ReturnKind) (*ReturnMatrix, error) {
	if kind == "" {
		kind = SimpleReturns
	}
	if kind != SimpleReturns && kind != LogReturns {
		return nil, apperrors.NewInvalidConfigError("returnKind", fmt.Sprintf("unknown kind %q", kind))
	}

	n := len(h.Assets)
	rm := &ReturnMatrix{Assets: h.Assets}
	var data []float64
	row := make([]float64, n)
	rows := 0

	for t := 1; t < h.Periods(); t++ {
		ok := true
		for a := 0; a < n; a++ {
			prev, cur := h.Prices[a][t-1], h.Prices[a][t]
			if math.IsNaN(prev) || math.IsNaN(cur) {
				ok = false
				break
			}
			if kind == LogReturns {
				row[a] = math.Log(cur / prev)
			} else {
				row[a] = cur/prev - 1
			}
			if math.IsInf(row[a], 0) || math.IsNaN(row[a]) {
				return nil, apperrors.NewInvalidPriceError(h.Assets[a], t, cur)
			}
		}
		if !ok {
			continue
		}
		data = append(data, row...)
		if h.Dates != nil {
			rm.Dates = append(rm.Dates, h.Dates[t])
		}
		rows++
	}

	if rows > 0 {
		rm.data = mat.NewDense(rows, n, data)
	}
	return rm, nil
}

// Dims returns the number of periods and assets.
func (m *ReturnMatrix) Dims() (periods, assets int) {
	if m.data == nil {
		return 0, len(m.Assets)
	}
	return m.data.Dims()
}

// Column returns a copy of the return series of asset a.
func (m *ReturnMatrix) Column(a int) []float64 {
	periods, _ := m.Dims()
	if periods == 0 {
		return nil
	}
	return mat.Col(nil, a, m.data)
}

// AssetStats holds annualized stats for one asset
type AssetStats struct {
	Asset            string  `json:"asset"`
	AnnualReturn     float64 `json:"annual_return"`
	AnnualVolatility float64 `json:"annual_volatility"`
}

// ReturnStatistics holds the annualized mean return vector and covariance matrix.
// It is immutable once built and safe to share between goroutines.
type ReturnStatistics struct {
	assets         []string
	expectedReturn []float64
	covariance     *mat.SymDense
	periods        int
	periodsPerYear int
}

// ComputeStatistics annualizes the mean and sample covariance of a return matrix.
func ComputeStatistics(returns *ReturnMatrix, periodsPerYear int) (*ReturnStatistics, error) {
	if periodsPerYear <= 0 {
		return nil, apperrors.NewInvalidConfigError("periodsPerYear", "must be positive")
	}
	periods, n := returns.Dims()
	if n < 1 || periods < 2 {
		return nil, apperrors.NewInsufficientDataError(n, periods)
	}

	scale := float64(periodsPerYear)
	mu := make([]float64, n)
	col := make([]float64, periods)
	for a := 0; a < n; a++ {
		mat.Col(col, a, returns.data)
		mu[a] = stat.Mean(col, nil) * scale
	}

	var sample mat.SymDense
	stat.CovarianceMatrix(&sample, returns.data, nil)
	cov := mat.NewSymDense(n, nil)
	cov.ScaleSym(scale, &sample)

	return &ReturnStatistics{
		assets:         append([]string(nil), returns.Assets...),
		expectedReturn: mu,
		covariance:     cov,
		periods:        periods,
		periodsPerYear: periodsPerYear,
	}, nil
}

// NewStatistics wraps already annualized statistics.
func NewStatistics(assets []string, expectedReturn []float64, covariance [][]float64) (*ReturnStatistics, error) {
	n := len(assets)
	if n == 0 {
		return nil, apperrors.NewInsufficientDataError(0, 0)
	}
	if len(expectedReturn) != n || len(covariance) != n {
		return nil, apperrors.NewAssetMismatchError(fmt.Sprintf(
			"got %d expected returns and %d covariance rows for %d assets", len(expectedReturn), len(covariance), n))
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		if len(covariance[i]) != n {
			return nil, apperrors.NewAssetMismatchError(fmt.Sprintf("covariance row %d has %d columns", i, len(covariance[i])))
		}
		if !isFinite(expectedReturn[i]) {
			return nil, apperrors.NewAssetMismatchError(fmt.Sprintf("expected return of %s is not finite", assets[i]))
		}
		for j := i; j < n; j++ {
			v := covariance[i][j]
			if !isFinite(v) || math.Abs(v-covariance[j][i]) > 1e-12 {
				return nil, apperrors.NewAssetMismatchError(
					fmt.Sprintf("covariance must be finite and symmetric (entry %d,%d)", i, j))
			}
			cov.SetSym(i, j, v)
		}
		if covariance[i][i] < 0 {
			return nil, apperrors.NewAssetMismatchError(fmt.Sprintf("negative variance for %s", assets[i]))
		}
	}

	return &ReturnStatistics{
		assets:         append([]string(nil), assets...),
		expectedReturn: append([]float64(nil), expectedReturn...),
		covariance:     cov,
		periodsPerYear: DefaultPeriodsPerYear,
	}, nil
}

// Assets returns the asset identifiers in column order.
func (s *ReturnStatistics) Assets() []string { return append([]string(nil), s.assets...) }

// NumAssets returns the number of assets.
func (s *ReturnStatistics) NumAssets() int { return len(s.assets) }

// Periods returns the number of return periods the statistics were derived from.
// It is zero for statistics built with NewStatistics.
func (s *ReturnStatistics) Periods() int { return s.periods }

// PeriodsPerYear returns the annualization factor.
func (s *ReturnStatistics) PeriodsPerYear() int { return s.periodsPerYear }

// ExpectedReturn returns a copy of the annualized mean return vector.
func (s *ReturnStatistics) ExpectedReturn() []float64 {
	return append([]float64(nil), s.expectedReturn...)
}

// Covariance returns the annualized covariance entry for assets i and j.
func (s *ReturnStatistics) Covariance(i, j int) float64 { return s.covariance.At(i, j) }

// CovarianceMatrix returns a copy of the annualized covariance matrix.
func (s *ReturnStatistics) CovarianceMatrix() [][]float64 {
	n := len(s.assets)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = s.covariance.At(i, j)
		}
	}
	return out
}

// Correlation returns the correlation matrix implied by the covariance.
// Pairs involving a zero-variance asset have correlation 0.
func (s *ReturnStatistics) Correlation() [][]float64 {
	n := len(s.assets)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			if i == j {
				out[i][j] = 1
				continue
			}
			d := math.Sqrt(s.covariance.At(i, i) * s.covariance.At(j, j))
			if d > 0 {
				out[i][j] = s.covariance.At(i, j) / d
			}
		}
	}
	return out
}

// AssetStats returns per-asset annualized return and volatility.
func (s *ReturnStatistics) AssetStats() []AssetStats {
	stats := make([]AssetStats, len(s.assets))
	for i, a := range s.assets {
		stats[i] = AssetStats{
			Asset:            a,
			AnnualReturn:     s.expectedReturn[i],
			AnnualVolatility: math.Sqrt(s.covariance.At(i, i)),
		}
	}
	return stats
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
