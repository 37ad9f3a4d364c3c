package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
	"github.com/frontier-mc/frontier/internal/portfolio"
)

const defaultListLimit = 50

// timeLayout has fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is the persisted summary of one analysis. The full cloud of draws is not
// stored; the envelope is enough to redraw the frontier.
type Run struct {
	ID             string                    `json:"id"`
	CreatedAt      time.Time                 `json:"created_at"`
	Assets         []string                  `json:"assets"`
	Years          int                       `json:"years"`
	NumSimulations int                       `json:"num_simulations"`
	RiskFreeRate   float64                   `json:"risk_free_rate"`
	Seed           uint64                    `json:"seed"`
	Sampler        string                    `json:"sampler"`
	ReturnKind     string                    `json:"return_kind"`
	MaxSharpe      portfolio.PortfolioResult `json:"-"`
	MinRisk        portfolio.PortfolioResult `json:"-"`
	Envelope       []portfolio.FrontierPoint `json:"envelope"`
	AssetStats     []portfolio.AssetStats    `json:"asset_stats"`
	Warnings       []string                  `json:"warnings"`
	Duration       time.Duration             `json:"-"`
}

// storedResult mirrors PortfolioResult with a nullable Sharpe ratio, since
// JSON has no encoding for +Inf or NaN.
type storedResult struct {
	Seq     int       `json:"seq"`
	Weights []float64 `json:"weights"`
	Return  float64   `json:"return"`
	Risk    float64   `json:"risk"`
	Sharpe  *float64  `json:"sharpe"`
}

func toStored(r portfolio.PortfolioResult) storedResult {
	s := storedResult{Seq: r.Seq, Weights: r.Weights, Return: r.Return, Risk: r.Risk}
	if !math.IsInf(r.Sharpe, 0) && !math.IsNaN(r.Sharpe) {
		sharpe := r.Sharpe
		s.Sharpe = &sharpe
	}
	return s
}

func (s storedResult) result() portfolio.PortfolioResult {
	r := portfolio.PortfolioResult{Seq: s.Seq, Weights: s.Weights, Return: s.Return, Risk: s.Risk, Sharpe: math.NaN()}
	if s.Sharpe != nil {
		r.Sharpe = *s.Sharpe
	}
	return r
}

// SaveRun assigns an id and creation time to run and inserts it.
func (s *Store) SaveRun(ctx context.Context, run *Run) error {
	run.ID = uuid.NewString()
	run.CreatedAt = s.now().UTC()
	if run.Warnings == nil {
		run.Warnings = []string{}
	}

	var blobs [6][]byte
	for i, v := range []interface{}{
		run.Assets, toStored(run.MaxSharpe), toStored(run.MinRisk), run.Envelope, run.AssetStats, run.Warnings,
	} {
		b, err := json.Marshal(v)
		if err != nil {
			return apperrors.NewStorageError("encode run", err)
		}
		blobs[i] = b
	}

	_, err := s.sql.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, assets_json, years, num_simulations, risk_free_rate, seed,
			sampler, return_kind, max_sharpe_json, min_risk_json, envelope_json, asset_stats_json,
			warnings_json, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.Format(timeLayout), string(blobs[0]), run.Years, run.NumSimulations,
		run.RiskFreeRate, int64(run.Seed), run.Sampler, run.ReturnKind, string(blobs[1]), string(blobs[2]),
		string(blobs[3]), string(blobs[4]), string(blobs[5]), run.Duration.Milliseconds(),
	)
	if err != nil {
		return apperrors.NewStorageError("insert run", err)
	}

	s.log.Debug().Str("run_id", run.ID).Strs("assets", run.Assets).Msg("saved run")
	return nil
}

const runColumns = `id, created_at, assets_json, years, num_simulations, risk_free_rate, seed, sampler,
	return_kind, max_sharpe_json, min_risk_json, envelope_json, asset_stats_json, warnings_json, duration_ms`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r                          Run
		created                    string
		seed, durationMs           int64
		assets, maxSharpe, minRisk string
		env, assetStats, warnings  string
		sMax, sMin                 storedResult
	)
	err := row.Scan(&r.ID, &created, &assets, &r.Years, &r.NumSimulations, &r.RiskFreeRate, &seed,
		&r.Sampler, &r.ReturnKind, &maxSharpe, &minRisk, &env, &assetStats, &warnings, &durationMs)
	if err != nil {
		return nil, err
	}

	if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		raw string
		dst interface{}
	}{
		{assets, &r.Assets},
		{maxSharpe, &sMax},
		{minRisk, &sMin},
		{env, &r.Envelope},
		{assetStats, &r.AssetStats},
		{warnings, &r.Warnings},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, err
		}
	}

	r.Seed = uint64(seed)
	r.MaxSharpe = sMax.result()
	r.MinRisk = sMin.result()
	r.Duration = time.Duration(durationMs) * time.Millisecond
	return &r, nil
}

// GetRun loads one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.sql.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("run", id)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("get run", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first. limit <= 0 uses a default.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.sql.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs ORDER BY created_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, apperrors.NewStorageError("list runs", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("list runs", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("list runs", err)
	}
	return runs, nil
}

// DeleteRun removes a run.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.sql.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return apperrors.NewStorageError("delete run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("run", id)
	}
	return nil
}
