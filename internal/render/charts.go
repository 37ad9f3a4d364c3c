// Package render draws PNG charts of simulation results.
package render

import (
	"errors"
	"fmt"
	"math"

	"github.com/vicanso/go-charts/v2"

	"github.com/frontier-mc/frontier/internal/portfolio"
)

const (
	chartWidth  = 900
	chartHeight = 540
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("render: no data to plot")

// FrontierChart draws the upper envelope of the simulated cloud as a line of
// annual return (y, %) against risk (x, %). The max-Sharpe and min-risk
// portfolios, when given, are pinned at the risk bucket nearest to them.
func FrontierChart(points []portfolio.FrontierPoint, maxSharpe, minRisk *portfolio.PortfolioResult) ([]byte, error) {
	if len(points) == 0 {
		return nil, ErrNoData
	}
	if len(points) == 1 {
		// a line needs two points
		points = []portfolio.FrontierPoint{points[0], points[0]}
	}

	values := make([]float64, len(points))
	xLabels := make([]string, len(points))
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for i, p := range points {
		values[i] = p.Return * 100
		xLabels[i] = fmt.Sprintf("%.1f%%", p.Risk*100)
		yMin = math.Min(yMin, values[i])
		yMax = math.Max(yMax, values[i])
	}

	series := [][]float64{values}
	labels := []string{"Frontier"}
	for _, m := range []struct {
		name string
		r    *portfolio.PortfolioResult
	}{{"Max Sharpe", maxSharpe}, {"Min Risk", minRisk}} {
		if m.r == nil {
			continue
		}
		marker := markerSeries(points, m.r)
		y := m.r.Return * 100
		yMin = math.Min(yMin, y)
		yMax = math.Max(yMax, y)
		series = append(series, marker)
		labels = append(labels, m.name)
	}

	pad := math.Max((yMax-yMin)*0.1, 0.5)
	yMin, yMax = math.Floor(yMin-pad), math.Ceil(yMax+pad)

	subtitle := "return % vs risk %"
	if maxSharpe != nil && minRisk != nil {
		subtitle = fmt.Sprintf("max sharpe %.2f @ %.1f%% risk • min risk %.1f%%",
			maxSharpe.Sharpe, maxSharpe.Risk*100, minRisk.Risk*100)
	}

	splitNum := len(points) / 8
	if splitNum < 3 {
		splitNum = 3
	}

	opts := []charts.OptionFunc{
		charts.TitleTextOptionFunc("Efficient Frontier", subtitle),
		charts.LegendLabelsOptionFunc(labels, charts.PositionRight),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        xLabels,
			SplitNumber: splitNum,
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(chartWidth),
		charts.HeightOptionFunc(chartHeight),
		charts.PNGTypeOption(),
	}
	// Marker series are null except at one index, so their min is the pin.
	for i := 1; i < len(series); i++ {
		opts = append(opts, charts.MarkPointOptionFunc(i, charts.SeriesMarkDataTypeMin))
	}

	p, err := charts.LineRender(series, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to render frontier chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}

// markerSeries is a series that is null everywhere except at the point whose
// risk is closest to r, where it holds r's annual return in %.
func markerSeries(points []portfolio.FrontierPoint, r *portfolio.PortfolioResult) []float64 {
	out := make([]float64, len(points))
	best := 0
	for i, p := range points {
		out[i] = charts.GetNullValue()
		if math.Abs(p.Risk-r.Risk) < math.Abs(points[best].Risk-r.Risk) {
			best = i
		}
	}
	out[best] = r.Return * 100
	return out
}

// WeightsChart draws the allocation of the max-Sharpe and min-risk portfolios
// side by side, one bar group per asset.
func WeightsChart(assets []string, maxSharpe, minRisk []float64) ([]byte, error) {
	if len(assets) == 0 {
		return nil, ErrNoData
	}
	if len(maxSharpe) != len(assets) || len(minRisk) != len(assets) {
		return nil, fmt.Errorf("render: %d assets but %d and %d weights", len(assets), len(maxSharpe), len(minRisk))
	}

	percent := func(w []float64) []float64 {
		out := make([]float64, len(w))
		for i, x := range w {
			out[i] = x * 100
		}
		return out
	}

	p, err := charts.BarRender(
		[][]float64{percent(maxSharpe), percent(minRisk)},
		charts.TitleTextOptionFunc("Optimal Allocations", "weight %"),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: assets}),
		charts.LegendOptionFunc(charts.LegendOption{
			Data: []string{"Max Sharpe", "Min Risk"},
			Left: charts.PositionRight,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(chartWidth),
		charts.HeightOptionFunc(chartHeight),
		charts.PNGTypeOption(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render weights chart: %w", err)
	}

	return p.Bytes()
}
