package portfolio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
)

// drawsPerStream is the number of consecutive draws sharing one random stream.
// Chunking by a fixed size keeps results identical for any worker count.
const drawsPerStream = 1024

// ProgressFunc receives the completed fraction of a run, in (0, 1].
type ProgressFunc func(fraction float64)

// EngineConfig configures a simulation run.
type EngineConfig struct {
	NumSimulations int
	RiskFreeRate   float64
	Seed           uint64
	// Workers is the number of goroutines drawing in parallel; 0 means 1.
	Workers  int
	Sampler  SamplerKind
	Progress ProgressFunc
}

// Engine runs Monte Carlo draws of weight vectors against fixed statistics.
type Engine struct {
	cfg EngineConfig
}

// NewEngine validates cfg and returns an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.NumSimulations < 1 {
		return nil, apperrors.NewInvalidConfigError("numSimulations", "must be at least 1")
	}
	if cfg.Workers < 0 {
		return nil, apperrors.NewInvalidConfigError("workers", "must not be negative")
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	if !isFinite(cfg.RiskFreeRate) {
		return nil, apperrors.NewInvalidConfigError("riskFreeRate", "must be finite")
	}
	if _, err := NewSampler(cfg.Sampler, 1, rand.NewSource(0)); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Run performs NumSimulations draws and returns them ordered by sequence number.
// If ctx is cancelled mid-run the partial results are discarded.
func (e *Engine) Run(ctx context.Context, stats *ReturnStatistics) ([]PortfolioResult, error) {
	total := e.cfg.NumSimulations
	results := make([]PortfolioResult, total)
	progress := newProgressReporter(total, e.cfg.Progress)

	chunks := (total + drawsPerStream - 1) / drawsPerStream
	workers := e.cfg.Workers
	if workers > chunks {
		workers = chunks
	}

	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				k := int(next.Add(1) - 1)
				if k >= chunks {
					return nil
				}
				if err := e.runChunk(gctx, stats, k, results, progress); err != nil {
					return err
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewCancelledError(progress.completed(), total, err)
		}
		return nil, err
	}
	return results, nil
}

func (e *Engine) runChunk(ctx context.Context, stats *ReturnStatistics, k int, results []PortfolioResult, progress *progressReporter) error {
	sampler, err := NewSampler(e.cfg.Sampler, stats.NumAssets(), rand.NewSource(streamSeed(e.cfg.Seed, k)))
	if err != nil {
		return err
	}

	start := k * drawsPerStream
	end := start + drawsPerStream
	if end > len(results) {
		end = len(results)
	}

	done := ctx.Done()
	for seq := start; seq < end; seq++ {
		select {
		case <-done:
			return ctx.Err()
		default:
		}

		w, err := sampler.Sample(nil)
		if err != nil {
			return err
		}
		r := Evaluate(w, stats, e.cfg.RiskFreeRate)
		r.Seq = seq
		results[seq] = r
		progress.advance()
	}
	return nil
}

// progressReporter calls fn at most 100 times plus once on completion, with a
// monotonically increasing fraction. The final call reports exactly 1.
type progressReporter struct {
	total   int64
	cadence int64
	fn      ProgressFunc

	done atomic.Int64
	mu   sync.Mutex
	last int64
}

func newProgressReporter(total int, fn ProgressFunc) *progressReporter {
	cadence := (total + 99) / 100
	if cadence < 1 {
		cadence = 1
	}
	return &progressReporter{total: int64(total), cadence: int64(cadence), fn: fn}
}

func (p *progressReporter) advance() {
	n := p.done.Add(1)
	if p.fn == nil || (n%p.cadence != 0 && n != p.total) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// A worker that crossed an earlier mark may arrive after a later one.
	if n <= p.last {
		return
	}
	p.last = n
	p.fn(float64(n) / float64(p.total))
}

func (p *progressReporter) completed() int {
	return int(p.done.Load())
}
