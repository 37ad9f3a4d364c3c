package portfolio

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
)

func twoAssetStats(t *testing.T) *ReturnStatistics {
	return mustStats(t, []float64{0.1, 0.2}, [][]float64{
		{0.04, 0},
		{0, 0.09},
	})
}

type progressLog struct {
	mu    sync.Mutex
	calls []float64
}

func (p *progressLog) record(f float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, f)
}

func TestNewEngine_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  EngineConfig
	}{
		{"zero simulations", EngineConfig{NumSimulations: 0}},
		{"negative simulations", EngineConfig{NumSimulations: -5}},
		{"negative workers", EngineConfig{NumSimulations: 10, Workers: -1}},
		{"unknown sampler", EngineConfig{NumSimulations: 10, Sampler: "halton"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEngine(tt.cfg)
			require.Error(t, err)
			assert.True(t, apperrors.IsCategory(err, apperrors.CategoryConfiguration))
		})
	}
}

func TestEngine_Run(t *testing.T) {
	engine, err := NewEngine(EngineConfig{NumSimulations: 3000, Seed: 42})
	require.NoError(t, err)

	results, err := engine.Run(context.Background(), twoAssetStats(t))
	require.NoError(t, err)
	require.Len(t, results, 3000)

	for i, r := range results {
		assert.Equal(t, i, r.Seq)
		assert.True(t, isSimplexPoint(r.Weights, 2))
		assert.GreaterOrEqual(t, r.Risk, 0.0)
	}
}

func TestEngine_DeterministicAcrossRunsAndWorkers(t *testing.T) {
	stats := twoAssetStats(t)
	run := func(workers int, kind SamplerKind) []PortfolioResult {
		engine, err := NewEngine(EngineConfig{
			NumSimulations: 5000,
			RiskFreeRate:   0.01,
			Seed:           1234,
			Workers:        workers,
			Sampler:        kind,
		})
		require.NoError(t, err)
		results, err := engine.Run(context.Background(), stats)
		require.NoError(t, err)
		return results
	}

	for _, kind := range []SamplerKind{UniformSampling, DirichletSampling} {
		first := run(1, kind)
		assert.Equal(t, first, run(1, kind), "%s: same seed must repeat", kind)
		assert.Equal(t, first, run(4, kind), "%s: worker count must not change results", kind)
	}
}

func TestEngine_DifferentSeedsDiffer(t *testing.T) {
	stats := twoAssetStats(t)
	a, _ := NewEngine(EngineConfig{NumSimulations: 10, Seed: 1})
	b, _ := NewEngine(EngineConfig{NumSimulations: 10, Seed: 2})

	ra, err := a.Run(context.Background(), stats)
	require.NoError(t, err)
	rb, err := b.Run(context.Background(), stats)
	require.NoError(t, err)
	assert.NotEqual(t, ra[0].Weights, rb[0].Weights)
}

func TestEngine_ProgressSingleDraw(t *testing.T) {
	var log progressLog
	engine, err := NewEngine(EngineConfig{NumSimulations: 1, Seed: 9, Progress: log.record})
	require.NoError(t, err)

	results, err := engine.Run(context.Background(), twoAssetStats(t))
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, []float64{1}, log.calls)
}

func TestEngine_ProgressCadence(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		workers   int
		wantCalls int
	}{
		{"below one hundred", 7, 1, 7},
		{"not a multiple of cadence", 250, 1, 84},
		{"just under two hundred", 199, 1, 100},
		{"exact hundreds", 10000, 1, 100},
		{"parallel", 10000, 4, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log progressLog
			engine, err := NewEngine(EngineConfig{
				NumSimulations: tt.n,
				Seed:           5,
				Workers:        tt.workers,
				Progress:       log.record,
			})
			require.NoError(t, err)

			_, err = engine.Run(context.Background(), twoAssetStats(t))
			require.NoError(t, err)

			require.NotEmpty(t, log.calls)
			if tt.wantCalls >= 0 {
				assert.Len(t, log.calls, tt.wantCalls)
			}
			assert.LessOrEqual(t, len(log.calls), 101)

			completions := 0
			for i, f := range log.calls {
				assert.Greater(t, f, 0.0)
				assert.LessOrEqual(t, f, 1.0)
				if i > 0 {
					assert.Greater(t, f, log.calls[i-1], "progress must increase")
				}
				if f == 1 {
					completions++
				}
			}
			assert.Equal(t, 1, completions)
			assert.Equal(t, 1.0, log.calls[len(log.calls)-1])
		})
	}
}

func TestEngine_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine, err := NewEngine(EngineConfig{NumSimulations: 100, Seed: 1})
	require.NoError(t, err)

	results, err := engine.Run(ctx, twoAssetStats(t))
	assert.Nil(t, results)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeSimulationCancelled))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_CancelledMidRunDiscardsResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var log progressLog
	engine, err := NewEngine(EngineConfig{
		NumSimulations: 10000,
		Seed:           1,
		Progress: func(f float64) {
			log.record(f)
			if f >= 0.5 {
				cancel()
			}
		},
	})
	require.NoError(t, err)

	results, err := engine.Run(ctx, twoAssetStats(t))
	assert.Nil(t, results)
	require.True(t, apperrors.IsCode(err, apperrors.CodeSimulationCancelled))

	cat := apperrors.Categorize(err)
	assert.Equal(t, 10000, cat.Details["total"])
	assert.Less(t, cat.Details["completed"], 10000)
	assert.NotContains(t, log.calls, 1.0)
}
