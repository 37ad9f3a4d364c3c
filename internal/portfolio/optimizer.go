package portfolio

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
)

// Config holds everything a run needs besides the price data.
type Config struct {
	NumSimulations int
	RiskFreeRate   float64
	PeriodsPerYear int
	// Seed makes the run reproducible; nil seeds from the clock.
	Seed       *uint64
	Workers    int
	Sampler    SamplerKind
	ReturnKind ReturnKind
	Progress   ProgressFunc
}

// DefaultConfig returns the settings of the original app: 20000 draws, a 2%
// risk-free rate and daily prices.
func DefaultConfig() Config {
	return Config{
		NumSimulations: 20000,
		RiskFreeRate:   0.02,
		PeriodsPerYear: DefaultPeriodsPerYear,
		Workers:        1,
		Sampler:        UniformSampling,
		ReturnKind:     SimpleReturns,
	}
}

// Validate rejects configurations that cannot produce a frontier.
func (c Config) Validate() error {
	if c.NumSimulations < 1 {
		return apperrors.NewInvalidConfigError("numSimulations", "must be at least 1")
	}
	if c.PeriodsPerYear <= 0 {
		return apperrors.NewInvalidConfigError("periodsPerYear", "must be positive")
	}
	if !isFinite(c.RiskFreeRate) {
		return apperrors.NewInvalidConfigError("riskFreeRate", "must be finite")
	}
	if c.Workers < 0 {
		return apperrors.NewInvalidConfigError("workers", "must not be negative")
	}
	switch c.Sampler {
	case "", UniformSampling, DirichletSampling:
	default:
		return apperrors.NewInvalidConfigError("sampler", fmt.Sprintf("unknown kind %q", c.Sampler))
	}
	switch c.ReturnKind {
	case "", SimpleReturns, LogReturns:
	default:
		return apperrors.NewInvalidConfigError("returnKind", fmt.Sprintf("unknown kind %q", c.ReturnKind))
	}
	return nil
}

// Result holds everything returned to the caller
type Result struct {
	Assets    []string
	Stats     *ReturnStatistics
	Frontier  []PortfolioResult
	MaxSharpe *PortfolioResult
	MinRisk   *PortfolioResult
	// Seed is the seed actually used, so a clock-seeded run can be replayed.
	Seed uint64
}

// Optimize derives statistics from prices, runs the simulation and selects the
// optimal portfolios. Input and configuration errors are returned before any draw.
func Optimize(ctx context.Context, history *PriceHistory, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	returns, err := history.Returns(cfg.ReturnKind)
	if err != nil {
		return nil, err
	}
	stats, err := ComputeStatistics(returns, cfg.PeriodsPerYear)
	if err != nil {
		return nil, fmt.Errorf("compute statistics: %w", err)
	}

	return Simulate(ctx, stats, cfg)
}

// Simulate runs the draws against precomputed statistics.
func Simulate(ctx context.Context, stats *ReturnStatistics, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := uint64(time.Now().UnixNano())
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	engine, err := NewEngine(EngineConfig{
		NumSimulations: cfg.NumSimulations,
		RiskFreeRate:   cfg.RiskFreeRate,
		Seed:           seed,
		Workers:        cfg.Workers,
		Sampler:        cfg.Sampler,
		Progress:       cfg.Progress,
	})
	if err != nil {
		return nil, err
	}

	frontier, err := engine.Run(ctx, stats)
	if err != nil {
		return nil, err
	}

	sel, err := Select(frontier)
	if err != nil {
		return nil, err
	}

	return &Result{
		Assets:    stats.Assets(),
		Stats:     stats,
		Frontier:  frontier,
		MaxSharpe: sel.MaxSharpe,
		MinRisk:   sel.MinRisk,
		Seed:      seed,
	}, nil
}
