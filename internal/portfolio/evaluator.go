package portfolio

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
)

// weightTolerance is how far a weight vector's sum may drift from 1.
const weightTolerance = 1e-9

// PortfolioResult is one evaluated weight vector.
type PortfolioResult struct {
	Seq     int       `json:"seq"`
	Weights []float64 `json:"weights"`
	Return  float64   `json:"return"`
	Risk    float64   `json:"risk"`
	Sharpe  float64   `json:"sharpe"`
}

// Degenerate reports whether the Sharpe ratio is undefined (+Inf or NaN) because
// the portfolio has zero risk.
func (r PortfolioResult) Degenerate() bool {
	return !isFinite(r.Sharpe)
}

// Evaluate computes annualized return, risk and Sharpe ratio for weights w.
//
// Negative variances from rounding are clamped to zero. When risk is zero the
// Sharpe ratio is +Inf if the return beats the risk-free rate and NaN otherwise.
// Evaluate panics if len(w) differs from the number of assets.
func Evaluate(w []float64, stats *ReturnStatistics, riskFreeRate float64) PortfolioResult {
	ret := floats.Dot(w, stats.expectedReturn)

	v := mat.NewVecDense(len(w), w)
	variance := mat.Inner(v, stats.covariance, v)
	if variance < 0 {
		variance = 0
	}
	risk := math.Sqrt(variance)

	var sharpe float64
	switch {
	case risk > 0:
		sharpe = (ret - riskFreeRate) / risk
	case ret > riskFreeRate:
		sharpe = math.Inf(1)
	default:
		sharpe = math.NaN()
	}

	return PortfolioResult{
		Weights: w,
		Return:  ret,
		Risk:    risk,
		Sharpe:  sharpe,
	}
}

// ValidateWeights checks that w is a long-only, fully-invested vector over n assets.
func ValidateWeights(w []float64, n int) error {
	if len(w) != n {
		return apperrors.NewAssetMismatchError(fmt.Sprintf("got %d weights for %d assets", len(w), n))
	}
	for i, x := range w {
		if !(x >= 0) || math.IsInf(x, 0) {
			return apperrors.NewInvalidConfigError("weights", fmt.Sprintf("weight %d is %v", i, x))
		}
	}
	if sum := floats.Sum(w); math.Abs(sum-1) > weightTolerance {
		return apperrors.NewInvalidConfigError("weights", fmt.Sprintf("weights sum to %v, not 1", sum))
	}
	return nil
}

// NormalizeWeights returns a copy of w scaled to sum to 1.
func NormalizeWeights(w []float64) ([]float64, error) {
	out := append([]float64(nil), w...)
	for i, x := range out {
		if !(x >= 0) || math.IsInf(x, 0) {
			return nil, apperrors.NewInvalidConfigError("weights", fmt.Sprintf("weight %d is %v", i, x))
		}
	}
	if !normalize(out) {
		return nil, apperrors.NewInvalidConfigError("weights", "weights must have a positive sum")
	}
	return out, nil
}
