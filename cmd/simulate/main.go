// Command simulate runs the Monte Carlo frontier search over a CSV of prices.
//
//	simulate -prices prices.csv -n 20000 -seed 42 -out cloud.csv
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/frontier-mc/frontier/internal/config"
	"github.com/frontier-mc/frontier/internal/data"
	apperrors "github.com/frontier-mc/frontier/internal/errors"
	"github.com/frontier-mc/frontier/internal/logging"
	"github.com/frontier-mc/frontier/internal/portfolio"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if apperrors.IsUserError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// summary is the machine-readable output of a run.
type summary struct {
	Assets    []string               `json:"assets"`
	Seed      uint64                 `json:"seed"`
	Draws     int                    `json:"draws"`
	Periods   int                    `json:"periods"`
	MaxSharpe optimum                `json:"max_sharpe"`
	MinRisk   optimum                `json:"min_risk"`
	Stats     []portfolio.AssetStats `json:"asset_stats"`
}

type optimum struct {
	Seq     int                `json:"seq"`
	Weights map[string]float64 `json:"weights"`
	Return  float64            `json:"return"`
	Risk    float64            `json:"risk"`
	Sharpe  *float64           `json:"sharpe"`
}

func newOptimum(assets []string, r *portfolio.PortfolioResult) optimum {
	o := optimum{Seq: r.Seq, Return: r.Return, Risk: r.Risk, Weights: make(map[string]float64, len(assets))}
	for i, a := range assets {
		o.Weights[a] = r.Weights[i]
	}
	if !r.Degenerate() {
		s := r.Sharpe
		o.Sharpe = &s
	}
	return o
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	defaults := portfolio.DefaultConfig()
	if cfg, err := config.LoadConfig(); err == nil {
		defaults.NumSimulations = cfg.Simulation.DefaultSimulations
		defaults.RiskFreeRate = cfg.Simulation.RiskFreeRate
		defaults.PeriodsPerYear = cfg.Simulation.PeriodsPerYear
		defaults.Workers = cfg.Simulation.Workers
		defaults.Sampler = portfolio.SamplerKind(cfg.Simulation.Sampler)
		defaults.ReturnKind = portfolio.ReturnKind(cfg.Simulation.ReturnKind)
	}

	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg := defaults
	var (
		pricesPath string
		outPath    string
		seedStr    string
		sampler    string
		returns    string
		logLevel   string
		asJSON     bool
		quiet      bool
	)
	fs.StringVar(&pricesPath, "prices", "-", "CSV of prices: date column then one column per asset (- for stdin)")
	fs.IntVar(&cfg.NumSimulations, "n", defaults.NumSimulations, "number of random portfolios")
	fs.Float64Var(&cfg.RiskFreeRate, "rf", defaults.RiskFreeRate, "annual risk-free rate")
	fs.IntVar(&cfg.PeriodsPerYear, "ppy", defaults.PeriodsPerYear, "return periods per year")
	fs.IntVar(&cfg.Workers, "workers", defaults.Workers, "parallel workers")
	fs.StringVar(&seedStr, "seed", "", "random seed (default: from the clock)")
	fs.StringVar(&sampler, "sampler", string(defaults.Sampler), "weight sampler: uniform | dirichlet")
	fs.StringVar(&returns, "returns", string(defaults.ReturnKind), "return kind: simple | log")
	fs.StringVar(&outPath, "out", "", "optional: write every simulated portfolio to CSV")
	fs.StringVar(&logLevel, "log-level", "info", "log level")
	fs.BoolVar(&asJSON, "json", false, "print the summary as JSON")
	fs.BoolVar(&quiet, "q", false, "no progress output")
	if err := fs.Parse(args); err != nil {
		return apperrors.NewInvalidConfigError("flags", err.Error())
	}

	log := logging.Component(logging.New(logLevel, "text", stderr), "simulate")

	cfg.Sampler = portfolio.SamplerKind(sampler)
	cfg.ReturnKind = portfolio.ReturnKind(returns)
	if seedStr != "" {
		seed, err := strconv.ParseUint(seedStr, 10, 64)
		if err != nil {
			return apperrors.NewInvalidConfigError("seed", "must be an unsigned integer")
		}
		cfg.Seed = &seed
	}
	if !quiet {
		cfg.Progress = progressLine(stderr)
	}

	in := stdin
	if pricesPath != "-" {
		f, err := os.Open(pricesPath)
		if err != nil {
			return fmt.Errorf("open prices: %w", err)
		}
		defer f.Close()
		in = f
	}

	history, err := data.ReadPricesCSV(in)
	if err != nil {
		return fmt.Errorf("read prices: %w", err)
	}
	log.Debug().Strs("assets", history.Assets).Int("periods", history.Periods()).Msg("loaded prices")

	res, err := portfolio.Optimize(ctx, history, cfg)
	if !quiet {
		fmt.Fprintln(stderr)
	}
	if err != nil {
		return err
	}
	log.Info().Uint64("seed", res.Seed).Int("draws", len(res.Frontier)).Msg("simulation finished")

	if outPath != "" {
		if err := writeCloud(outPath, res); err != nil {
			return err
		}
		log.Info().Str("path", outPath).Msg("wrote simulated portfolios")
	}

	sum := summary{
		Assets:    res.Assets,
		Seed:      res.Seed,
		Draws:     len(res.Frontier),
		Periods:   res.Stats.Periods(),
		MaxSharpe: newOptimum(res.Assets, res.MaxSharpe),
		MinRisk:   newOptimum(res.Assets, res.MinRisk),
		Stats:     res.Stats.AssetStats(),
	}
	if asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	printSummary(stdout, res)
	return nil
}

func writeCloud(path string, res *portfolio.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := data.WriteFrontierCSV(f, res.Assets, res.Frontier); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// progressLine redraws a percentage on one terminal line.
func progressLine(w io.Writer) portfolio.ProgressFunc {
	return func(fraction float64) {
		fmt.Fprintf(w, "\rsimulating... %3.0f%%", fraction*100)
	}
}

func printSummary(w io.Writer, res *portfolio.Result) {
	fmt.Fprintf(w, "assets: %s   draws: %d   seed: %d\n\n", strings.Join(res.Assets, ", "), len(res.Frontier), res.Seed)

	fmt.Fprintf(w, "%-8s %10s %10s\n", "asset", "return", "vol")
	for _, s := range res.Stats.AssetStats() {
		fmt.Fprintf(w, "%-8s %9.2f%% %9.2f%%\n", s.Asset, s.AnnualReturn*100, s.AnnualVolatility*100)
	}
	fmt.Fprintln(w)

	for _, row := range []struct {
		label string
		r     *portfolio.PortfolioResult
	}{
		{"max sharpe", res.MaxSharpe},
		{"min risk", res.MinRisk},
	} {
		sharpe := "n/a"
		if !row.r.Degenerate() {
			sharpe = fmt.Sprintf("%.3f", row.r.Sharpe)
		}
		fmt.Fprintf(w, "%-10s return %6.2f%%  risk %6.2f%%  sharpe %s  (draw #%d)\n",
			row.label, row.r.Return*100, row.r.Risk*100, sharpe, row.r.Seq)
		for i, a := range res.Assets {
			fmt.Fprintf(w, "    %-8s %6.2f%%\n", a, row.r.Weights[i]*100)
		}
	}
}
