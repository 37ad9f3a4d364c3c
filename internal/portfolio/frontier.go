package portfolio

import (
	"math"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
)

// defaultEnvelopeBins is the number of risk buckets used by Envelope when none is given.
const defaultEnvelopeBins = 60

// Selection points at the optimal portfolios inside a result set.
type Selection struct {
	MaxSharpe      *PortfolioResult
	MinRisk        *PortfolioResult
	MaxSharpeIndex int
	MinRiskIndex   int
}

// Select scans a frozen result set for the maximum-Sharpe and minimum-risk draws.
//
// Non-finite Sharpe ratios never win the maximum. Ties go to the lowest sequence
// number, so the selection is a pure function of the set regardless of its order.
func Select(results []PortfolioResult) (Selection, error) {
	if len(results) == 0 {
		return Selection{}, apperrors.NewEmptyResultSetError()
	}

	sharpeIdx, riskIdx := -1, -1
	for i := range results {
		r := &results[i]

		if isFinite(r.Sharpe) {
			if sharpeIdx < 0 || better(r.Sharpe, r.Seq, results[sharpeIdx].Sharpe, results[sharpeIdx].Seq) {
				sharpeIdx = i
			}
		}

		if !math.IsNaN(r.Risk) {
			if riskIdx < 0 || better(-r.Risk, r.Seq, -results[riskIdx].Risk, results[riskIdx].Seq) {
				riskIdx = i
			}
		}
	}

	if sharpeIdx < 0 || riskIdx < 0 {
		return Selection{}, apperrors.NewZeroRiskError(len(results))
	}

	return Selection{
		MaxSharpe:      &results[sharpeIdx],
		MinRisk:        &results[riskIdx],
		MaxSharpeIndex: sharpeIdx,
		MinRiskIndex:   riskIdx,
	}, nil
}

// better reports whether score a (sequence sa) beats score b (sequence sb).
func better(a float64, sa int, b float64, sb int) bool {
	return a > b || (a == b && sa < sb)
}

// FrontierPoint is a point on the upper boundary of the sampled cloud.
type FrontierPoint struct {
	Risk    float64   `json:"risk"`
	Return  float64   `json:"return"`
	Weights []float64 `json:"weights"`
}

// Envelope approximates the efficient frontier from the sampled cloud: the
// highest-return draw in each of bins equal-width risk buckets, keeping only
// points whose return rises with risk.
func Envelope(results []PortfolioResult, bins int) []FrontierPoint {
	if bins <= 0 {
		bins = defaultEnvelopeBins
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range results {
		if !isFinite(r.Risk) || !isFinite(r.Return) {
			continue
		}
		lo = math.Min(lo, r.Risk)
		hi = math.Max(hi, r.Risk)
	}
	if lo > hi {
		return nil
	}

	best := make([]int, bins)
	for i := range best {
		best[i] = -1
	}
	width := hi - lo
	for i, r := range results {
		if !isFinite(r.Risk) || !isFinite(r.Return) {
			continue
		}
		b := 0
		if width > 0 {
			b = int((r.Risk - lo) / width * float64(bins))
			if b >= bins {
				b = bins - 1
			}
		}
		if best[b] < 0 || better(r.Return, r.Seq, results[best[b]].Return, results[best[b]].Seq) {
			best[b] = i
		}
	}

	var points []FrontierPoint
	for _, i := range best {
		if i < 0 {
			continue
		}
		r := results[i]
		if len(points) > 0 && r.Return <= points[len(points)-1].Return {
			continue
		}
		points = append(points, FrontierPoint{Risk: r.Risk, Return: r.Return, Weights: r.Weights})
	}
	return points
}
