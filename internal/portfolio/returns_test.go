package portfolio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
)

func mustHistory(t *testing.T, assets []string, prices ...[]float64) *PriceHistory {
	t.Helper()
	h, err := NewPriceHistory(assets, nil, prices)
	require.NoError(t, err)
	return h
}

func TestReturns(t *testing.T) {
	h := mustHistory(t, []string{"A"}, []float64{100, 110, 121})

	simple, err := h.Returns(SimpleReturns)
	require.NoError(t, err)
	got := simple.Column(0)
	require.Len(t, got, 2)
	for i := range got {
		if math.Abs(got[i]-0.1) > 1e-12 {
			t.Errorf("at index %d: expected 0.1, got %f", i, got[i])
		}
	}

	logs, err := h.Returns(LogReturns)
	require.NoError(t, err)
	for i, r := range logs.Column(0) {
		if math.Abs(r-math.Log(1.1)) > 1e-12 {
			t.Errorf("at index %d: expected %f, got %f", i, math.Log(1.1), r)
		}
	}
}

func TestReturns_DropsUndefinedRows(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	h, err := NewPriceHistory(
		[]string{"A", "B"},
		[]time.Time{day(1), day(2), day(3), day(4)},
		[][]float64{
			{100, math.NaN(), 110, 121},
			{50, 51, 52, 53},
		},
	)
	require.NoError(t, err)

	rm, err := h.Returns(SimpleReturns)
	require.NoError(t, err)

	periods, assets := rm.Dims()
	assert.Equal(t, 1, periods)
	assert.Equal(t, 2, assets)
	assert.Equal(t, []time.Time{day(4)}, rm.Dates)
	assert.InDelta(t, 0.1, rm.Column(0)[0], 1e-12)
	assert.InDelta(t, 53.0/52-1, rm.Column(1)[0], 1e-12)
}

func TestReturns_UnknownKind(t *testing.T) {
	h := mustHistory(t, []string{"A"}, []float64{1, 2})
	_, err := h.Returns("weird")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidConfig))
}

func TestReturns_OverflowingRatio(t *testing.T) {
	h := mustHistory(t, []string{"A", "B"},
		[]float64{100, 101, 102},
		[]float64{1e-300, 1e300, 1e300},
	)

	for _, kind := range []ReturnKind{SimpleReturns, LogReturns} {
		_, err := h.Returns(kind)
		require.Error(t, err, kind)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidPrice), "%s: got %v", kind, err)
		assert.True(t, apperrors.IsUserError(err))
	}
}

func TestNewPriceHistory_Validation(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name   string
		assets []string
		dates  []time.Time
		prices [][]float64
		code   string
	}{
		{"no assets", nil, nil, nil, apperrors.CodeInsufficientData},
		{"series count", []string{"A", "B"}, nil, [][]float64{{1, 2}}, apperrors.CodeAssetMismatch},
		{"duplicate", []string{"A", "A"}, nil, [][]float64{{1, 2}, {1, 2}}, apperrors.CodeDuplicateAsset},
		{"empty id", []string{""}, nil, [][]float64{{1, 2}}, apperrors.CodeAssetMismatch},
		{"ragged", []string{"A", "B"}, nil, [][]float64{{1, 2, 3}, {1, 2}}, apperrors.CodeAssetMismatch},
		{"zero price", []string{"A"}, nil, [][]float64{{1, 0, 3}}, apperrors.CodeInvalidPrice},
		{"negative price", []string{"A"}, nil, [][]float64{{1, -2, 3}}, apperrors.CodeInvalidPrice},
		{"infinite price", []string{"A"}, nil, [][]float64{{1, math.Inf(1)}}, apperrors.CodeInvalidPrice},
		{"date count", []string{"A"}, []time.Time{day(1)}, [][]float64{{1, 2}}, apperrors.CodeAssetMismatch},
		{"dates out of order", []string{"A"}, []time.Time{day(2), day(1)}, [][]float64{{1, 2}}, apperrors.CodeAssetMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPriceHistory(tt.assets, tt.dates, tt.prices)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, tt.code), "got %v", err)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInput))
		})
	}
}

func TestComputeStatistics(t *testing.T) {
	// 3 days of prices for 2 assets
	h := mustHistory(t, []string{"A", "B"},
		[]float64{100, 105, 110}, // 5% then ~4.76%
		[]float64{100, 110, 121}, // 10% then 10%
	)
	rm, err := h.Returns(SimpleReturns)
	require.NoError(t, err)

	stats, err := ComputeStatistics(rm, DefaultPeriodsPerYear)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, stats.Assets())
	assert.Equal(t, 2, stats.Periods())
	assert.Equal(t, 252, stats.PeriodsPerYear())

	rA := []float64{0.05, 110.0/105 - 1}
	meanA := (rA[0] + rA[1]) / 2
	mu := stats.ExpectedReturn()
	assert.InDelta(t, meanA*252, mu[0], 1e-9)
	assert.InDelta(t, 0.1*252, mu[1], 1e-9)

	// sample variance with n-1 = 1
	varA := (rA[0]-meanA)*(rA[0]-meanA) + (rA[1]-meanA)*(rA[1]-meanA)
	assert.InDelta(t, varA*252, stats.Covariance(0, 0), 1e-12)
	assert.InDelta(t, 0, stats.Covariance(1, 1), 1e-12)

	// Check cov matrix symmetry
	if math.Abs(stats.Covariance(0, 1)-stats.Covariance(1, 0)) > 1e-15 {
		t.Errorf("cov matrix not symmetric: %f != %f", stats.Covariance(0, 1), stats.Covariance(1, 0))
	}

	as := stats.AssetStats()
	require.Len(t, as, 2)
	assert.Equal(t, "B", as[1].Asset)
	assert.Equal(t, mu[1], as[1].AnnualReturn)
	assert.InDelta(t, math.Sqrt(varA*252), as[0].AnnualVolatility, 1e-12)
}

func TestComputeStatistics_InsufficientData(t *testing.T) {
	// A single price gives no returns at all.
	h := mustHistory(t, []string{"A", "B"}, []float64{100}, []float64{50})
	rm, err := h.Returns(SimpleReturns)
	require.NoError(t, err)

	_, err = ComputeStatistics(rm, DefaultPeriodsPerYear)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInsufficientData))

	// Two prices give one return, still not enough for a variance.
	h = mustHistory(t, []string{"A"}, []float64{100, 101})
	rm, err = h.Returns(SimpleReturns)
	require.NoError(t, err)
	_, err = ComputeStatistics(rm, DefaultPeriodsPerYear)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInsufficientData))
}

func TestComputeStatistics_PeriodsPerYear(t *testing.T) {
	rm, err := NewReturnMatrix([]string{"A"}, [][]float64{{0.01}, {0.03}})
	require.NoError(t, err)

	_, err = ComputeStatistics(rm, 0)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))

	monthly, err := ComputeStatistics(rm, 12)
	require.NoError(t, err)
	assert.InDelta(t, 0.02*12, monthly.ExpectedReturn()[0], 1e-12)
	assert.InDelta(t, 0.0002*12, monthly.Covariance(0, 0), 1e-12)
}

func TestCorrelation(t *testing.T) {
	rm, err := NewReturnMatrix([]string{"A", "B", "C"}, [][]float64{
		{0.01, 0.02, -0.01},
		{0.02, 0.04, -0.02},
		{-0.01, -0.02, 0.01},
	})
	require.NoError(t, err)
	stats, err := ComputeStatistics(rm, DefaultPeriodsPerYear)
	require.NoError(t, err)

	corr := stats.Correlation()
	assert.InDelta(t, 1, corr[0][1], 1e-9)
	assert.InDelta(t, -1, corr[0][2], 1e-9)
	assert.Equal(t, 1.0, corr[2][2])
}

func TestNewStatistics_Validation(t *testing.T) {
	_, err := NewStatistics([]string{"A", "B"}, []float64{0.1, 0.2}, [][]float64{{0.04, 0.01}, {0.02, 0.09}})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAssetMismatch))

	_, err = NewStatistics([]string{"A"}, []float64{0.1, 0.2}, [][]float64{{0.04}})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAssetMismatch))

	_, err = NewStatistics([]string{"A"}, []float64{0.1}, [][]float64{{-0.04}})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAssetMismatch))

	stats, err := NewStatistics([]string{"A", "B"}, []float64{0.1, 0.2}, [][]float64{{0.04, 0.01}, {0.01, 0.09}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.04, 0.01}, {0.01, 0.09}}, stats.CovarianceMatrix())
}
