package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/frontier-mc/frontier/internal/data"
	apperrors "github.com/frontier-mc/frontier/internal/errors"
	"github.com/frontier-mc/frontier/internal/logging"
	"github.com/frontier-mc/frontier/internal/portfolio"
	"github.com/frontier-mc/frontier/internal/render"
	"github.com/frontier-mc/frontier/internal/storage"
)

const maxYears = 100

// AnalyzeRequest is the JSON body for the analyze endpoint
type AnalyzeRequest struct {
	Tickers          []string           `json:"tickers"`
	Years            int                `json:"years"`
	RiskFreeRate     *float64           `json:"risk_free_rate"`
	Simulations      int                `json:"simulations"`
	Seed             *uint64            `json:"seed"`
	Sampler          string             `json:"sampler"`
	CurrentPortfolio map[string]float64 `json:"current_portfolio"`
}

// PortfolioJSON is a portfolio as sent to clients. Sharpe is null when risk is
// zero and the ratio is undefined.
type PortfolioJSON struct {
	Seq     int       `json:"seq"`
	Weights []float64 `json:"weights"`
	Return  float64   `json:"return"`
	Risk    float64   `json:"risk"`
	Sharpe  *float64  `json:"sharpe"`
}

func toPortfolioJSON(r portfolio.PortfolioResult) PortfolioJSON {
	p := PortfolioJSON{Seq: r.Seq, Weights: r.Weights, Return: r.Return, Risk: r.Risk}
	if !r.Degenerate() {
		sharpe := r.Sharpe
		p.Sharpe = &sharpe
	}
	return p
}

// AnalyzeResponse is the full JSON response
type AnalyzeResponse struct {
	RunID                 string                    `json:"run_id,omitempty"`
	Tickers               []string                  `json:"tickers"`
	Seed                  uint64                    `json:"seed"`
	NumSimulations        int                       `json:"num_simulations"`
	RiskFreeRate          float64                   `json:"risk_free_rate"`
	Periods               int                       `json:"periods"`
	AssetStats            []portfolio.AssetStats    `json:"asset_stats"`
	Correlation           [][]float64               `json:"correlation"`
	MonteCarloPoints      []PortfolioJSON           `json:"monte_carlo_points"`
	FrontierPoints        []portfolio.FrontierPoint `json:"frontier_points"`
	MaxSharpe             PortfolioJSON             `json:"max_sharpe"`
	MinVariance           PortfolioJSON             `json:"min_variance"`
	CurrentPortfolioStats *PortfolioJSON            `json:"current_portfolio_stats,omitempty"`
	Warnings              []string                  `json:"warnings,omitempty"`
	Error                 string                    `json:"error,omitempty"`
}

// RunResponse is a stored run as sent to clients.
type RunResponse struct {
	ID             string                    `json:"id"`
	CreatedAt      time.Time                 `json:"created_at"`
	Assets         []string                  `json:"assets"`
	Years          int                       `json:"years"`
	NumSimulations int                       `json:"num_simulations"`
	RiskFreeRate   float64                   `json:"risk_free_rate"`
	Seed           uint64                    `json:"seed"`
	Sampler        string                    `json:"sampler"`
	ReturnKind     string                    `json:"return_kind"`
	MaxSharpe      PortfolioJSON             `json:"max_sharpe"`
	MinVariance    PortfolioJSON             `json:"min_variance"`
	FrontierPoints []portfolio.FrontierPoint `json:"frontier_points"`
	AssetStats     []portfolio.AssetStats    `json:"asset_stats"`
	Warnings       []string                  `json:"warnings"`
	DurationMs     int64                     `json:"duration_ms"`
}

func toRunResponse(r *storage.Run) RunResponse {
	return RunResponse{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt,
		Assets:         r.Assets,
		Years:          r.Years,
		NumSimulations: r.NumSimulations,
		RiskFreeRate:   r.RiskFreeRate,
		Seed:           r.Seed,
		Sampler:        r.Sampler,
		ReturnKind:     r.ReturnKind,
		MaxSharpe:      toPortfolioJSON(r.MaxSharpe),
		MinVariance:    toPortfolioJSON(r.MinRisk),
		FrontierPoints: r.Envelope,
		AssetStats:     r.AssetStats,
		Warnings:       r.Warnings,
		DurationMs:     r.Duration.Milliseconds(),
	}
}

// handleHealth returns a simple health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// normalizeTickers uppercases, trims and de-duplicates tickers, keeping order.
func normalizeTickers(raw []string) []string {
	seen := map[string]bool{}
	var tickers []string
	for _, t := range raw {
		up := strings.ToUpper(strings.TrimSpace(t))
		if up != "" && !seen[up] {
			seen[up] = true
			tickers = append(tickers, up)
		}
	}
	return tickers
}

// simulationConfig merges request overrides onto the configured defaults.
func (s *Server) simulationConfig(req *AnalyzeRequest) (portfolio.Config, error) {
	sim := s.cfg.Simulation
	cfg := portfolio.DefaultConfig()
	cfg.NumSimulations = sim.DefaultSimulations
	cfg.RiskFreeRate = sim.RiskFreeRate
	cfg.PeriodsPerYear = sim.PeriodsPerYear
	cfg.Workers = sim.Workers
	cfg.Sampler = portfolio.SamplerKind(sim.Sampler)
	cfg.ReturnKind = portfolio.ReturnKind(sim.ReturnKind)
	cfg.Seed = req.Seed

	switch {
	case req.Simulations < 0:
		return cfg, apperrors.NewInvalidConfigError("simulations", "must be positive")
	case req.Simulations > sim.MaxSimulations:
		return cfg, apperrors.NewInvalidConfigError("simulations",
			fmt.Sprintf("maximum %d simulations allowed", sim.MaxSimulations))
	case req.Simulations > 0:
		cfg.NumSimulations = req.Simulations
	}
	if req.RiskFreeRate != nil {
		cfg.RiskFreeRate = *req.RiskFreeRate
	}
	if req.Sampler != "" {
		cfg.Sampler = portfolio.SamplerKind(strings.ToLower(req.Sampler))
	}
	return cfg, cfg.Validate()
}

// handleAnalyze handles POST /api/analyze
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	var req AnalyzeRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, apperrors.NewInvalidConfigError("body", "invalid JSON body: "+err.Error()))
		return
	}

	tickers := normalizeTickers(req.Tickers)
	if len(tickers) < 2 {
		respondError(w, apperrors.NewInvalidConfigError("tickers", "please provide at least 2 tickers to compute a frontier"))
		return
	}
	if len(tickers) > s.cfg.Data.MaxTickers {
		respondError(w, apperrors.NewInvalidConfigError("tickers",
			fmt.Sprintf("maximum %d tickers allowed", s.cfg.Data.MaxTickers)))
		return
	}

	years := req.Years
	if years < 1 {
		years = s.cfg.Data.Years
	}
	if years > maxYears {
		respondError(w, apperrors.NewInvalidConfigError("years",
			fmt.Sprintf("maximum %d years of historical data allowed", maxYears)))
		return
	}

	simCfg, err := s.simulationConfig(&req)
	if err != nil {
		respondError(w, err)
		return
	}

	// Check for fetch errors and partial data
	var errMsgs, warnings []string
	var series []*data.PriceData
	for _, res := range data.FetchAll(ctx, s.fetcher, tickers, years) {
		if res.Err != nil {
			errMsgs = append(errMsgs, fmt.Sprintf("%s: %s", res.Ticker, causeMessage(res.Err)))
			log.Warn().Err(res.Err).Str("ticker", res.Ticker).Msg("fetch failed")
			continue
		}
		if res.Data.Partial {
			warnings = append(warnings, fmt.Sprintf(
				"%s: only ~%.1f years of data available (requested %d years), using available data",
				res.Data.Ticker, res.Data.YearsAvail, res.Data.YearsRequested,
			))
			log.Info().Str("ticker", res.Data.Ticker).Float64("years_avail", res.Data.YearsAvail).
				Int("years_requested", res.Data.YearsRequested).Msg("partial data")
		}
		series = append(series, res.Data)
	}

	if len(series) < 2 {
		respondError(w, apperrors.NewProviderError("yahoo", fmt.Errorf(
			"could not fetch enough data to compute the frontier: %s", strings.Join(errMsgs, "; "))))
		return
	}

	history, err := data.Align(series)
	if err != nil {
		respondError(w, err)
		return
	}

	simCfg.Progress = logging.Progress(*log, "simulation progress", 0.25)
	start := time.Now()
	result, err := portfolio.Optimize(ctx, history, simCfg)
	if err != nil {
		log.Warn().Err(err).Strs("assets", history.Assets).Msg("simulation failed")
		respondError(w, err)
		return
	}
	elapsed := time.Since(start)
	log.Info().Strs("assets", result.Assets).Int("draws", len(result.Frontier)).
		Uint64("seed", result.Seed).Dur("elapsed", elapsed).Msg("simulation finished")

	envelope := portfolio.Envelope(result.Frontier, 0)
	points := make([]PortfolioJSON, len(result.Frontier))
	for i, p := range result.Frontier {
		points[i] = toPortfolioJSON(p)
	}

	resp := AnalyzeResponse{
		Tickers:          result.Assets,
		Seed:             result.Seed,
		NumSimulations:   simCfg.NumSimulations,
		RiskFreeRate:     simCfg.RiskFreeRate,
		Periods:          result.Stats.Periods(),
		AssetStats:       result.Stats.AssetStats(),
		Correlation:      result.Stats.Correlation(),
		MonteCarloPoints: points,
		FrontierPoints:   envelope,
		MaxSharpe:        toPortfolioJSON(*result.MaxSharpe),
		MinVariance:      toPortfolioJSON(*result.MinRisk),
	}

	// Warn about any failed tickers
	if len(errMsgs) > 0 {
		resp.Error = "some tickers failed: " + strings.Join(errMsgs, "; ")
	}

	// Optional: current portfolio comparison
	if len(req.CurrentPortfolio) > 0 {
		current, warning := evaluateCurrent(req.CurrentPortfolio, result, simCfg.RiskFreeRate)
		resp.CurrentPortfolioStats = current
		if warning != "" {
			warnings = append(warnings, warning)
		}
	}
	resp.Warnings = warnings

	if s.runs != nil {
		run := &storage.Run{
			Assets:         result.Assets,
			Years:          years,
			NumSimulations: simCfg.NumSimulations,
			RiskFreeRate:   simCfg.RiskFreeRate,
			Seed:           result.Seed,
			Sampler:        string(simCfg.Sampler),
			ReturnKind:     string(simCfg.ReturnKind),
			MaxSharpe:      *result.MaxSharpe,
			MinRisk:        *result.MinRisk,
			Envelope:       envelope,
			AssetStats:     resp.AssetStats,
			Warnings:       warnings,
			Duration:       elapsed,
		}
		if err := s.runs.SaveRun(ctx, run); err != nil {
			log.Error().Err(err).Msg("failed to save run")
		} else {
			resp.RunID = run.ID
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

// evaluateCurrent evaluates the caller's holdings against the run's statistics.
// Tickers missing from holdings get zero weight.
func evaluateCurrent(holdings map[string]float64, result *portfolio.Result, rf float64) (*PortfolioJSON, string) {
	upper := make(map[string]float64, len(holdings))
	for t, w := range holdings {
		upper[strings.ToUpper(strings.TrimSpace(t))] += w
	}

	weights := make([]float64, len(result.Assets))
	for i, t := range result.Assets {
		weights[i] = upper[t]
	}
	weights, err := portfolio.NormalizeWeights(weights)
	if err != nil {
		return nil, "current portfolio ignored: " + apperrors.Categorize(err).Message
	}

	eval := portfolio.Evaluate(weights, result.Stats, rf)
	if math.IsNaN(eval.Return) || math.IsNaN(eval.Risk) {
		return nil, "current portfolio ignored: could not evaluate weights"
	}
	eval.Seq = -1
	p := toPortfolioJSON(eval)
	return &p, ""
}

func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*storage.Run, bool) {
	id := mux.Vars(r)["id"]
	if s.runs == nil {
		respondError(w, apperrors.NewNotFoundError("run", id))
		return nil, false
	}
	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return nil, false
	}
	return run, true
}

// handleListRuns handles GET /api/runs
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondJSON(w, http.StatusOK, []RunResponse{})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, apperrors.NewInvalidConfigError("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]RunResponse, len(runs))
	for i, run := range runs {
		out[i] = toRunResponse(run)
	}
	respondJSON(w, http.StatusOK, out)
}

// handleGetRun handles GET /api/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toRunResponse(run))
}

// handleDeleteRun handles DELETE /api/runs/{id}
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if s.runs == nil {
		respondError(w, apperrors.NewNotFoundError("run", id))
		return
	}
	if err := s.runs.DeleteRun(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFrontierChart handles GET /api/runs/{id}/chart.png
func (s *Server) handleFrontierChart(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	img, err := render.FrontierChart(run.Envelope, &run.MaxSharpe, &run.MinRisk)
	if err != nil {
		respondError(w, apperrors.NewInternalError("failed to render chart", err))
		return
	}
	writePNG(w, img)
}

// handleWeightsChart handles GET /api/runs/{id}/weights.png
func (s *Server) handleWeightsChart(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	img, err := render.WeightsChart(run.Assets, run.MaxSharpe.Weights, run.MinRisk.Weights)
	if err != nil {
		respondError(w, apperrors.NewInternalError("failed to render chart", err))
		return
	}
	writePNG(w, img)
}

func writePNG(w http.ResponseWriter, img []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}
