package portfolio

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	apperrors "github.com/frontier-mc/frontier/internal/errors"
)

// SamplerKind selects the weight sampling scheme.
type SamplerKind string

const (
	// UniformSampling normalizes independent U[0,1) draws.
	UniformSampling SamplerKind = "uniform"
	// DirichletSampling draws from the flat Dirichlet distribution.
	DirichletSampling SamplerKind = "dirichlet"
)

// maxSampleAttempts bounds resampling of a draw whose raw components sum to zero.
const maxSampleAttempts = 8

// Sampler produces long-only, fully-invested weight vectors.
type Sampler interface {
	// Sample fills dst (reallocated when its length is wrong) with weights that are
	// non-negative and sum to 1.
	Sample(dst []float64) ([]float64, error)
	NumAssets() int
}

// NewSampler returns a sampler of the given kind over n assets drawing from src.
func NewSampler(kind SamplerKind, n int, src rand.Source) (Sampler, error) {
	if n < 1 {
		return nil, apperrors.NewInvalidConfigError("numAssets", "must be at least 1")
	}
	switch kind {
	case "", UniformSampling:
		return NewUniformSampler(n, src), nil
	case DirichletSampling:
		return NewDirichletSampler(n, src), nil
	default:
		return nil, apperrors.NewInvalidConfigError("sampler", fmt.Sprintf("unknown kind %q", kind))
	}
}

// UniformSampler draws n independent uniforms and divides by their sum.
//
// The resulting distribution on the simplex is not uniform: it puts more mass
// near the centre (equal weights) than near the vertices, so corner allocations
// such as 100% in one asset are approached but rarely sampled closely. Use
// DirichletSampler for uniform coverage.
type UniformSampler struct {
	n    int
	dist distuv.Uniform
}

// NewUniformSampler creates a UniformSampler.
func NewUniformSampler(n int, src rand.Source) *UniformSampler {
	return &UniformSampler{
		n:    n,
		dist: distuv.Uniform{Min: 0, Max: 1, Src: src},
	}
}

// NumAssets returns the weight vector length.
func (s *UniformSampler) NumAssets() int { return s.n }

// Sample draws one weight vector, resampling if the raw sum is exactly zero.
func (s *UniformSampler) Sample(dst []float64) ([]float64, error) {
	dst = resize(dst, s.n)
	for attempt := 0; attempt < maxSampleAttempts; attempt++ {
		for i := range dst {
			dst[i] = s.dist.Rand()
		}
		if normalize(dst) {
			return dst, nil
		}
	}
	return nil, apperrors.NewDegenerateSampleError(maxSampleAttempts)
}

// DirichletSampler draws from Dirichlet(1, ..., 1), the uniform distribution on
// the simplex.
type DirichletSampler struct {
	n    int
	dist *distmv.Dirichlet
}

// NewDirichletSampler creates a DirichletSampler.
func NewDirichletSampler(n int, src rand.Source) *DirichletSampler {
	alpha := make([]float64, n)
	for i := range alpha {
		alpha[i] = 1
	}
	return &DirichletSampler{n: n, dist: distmv.NewDirichlet(alpha, src)}
}

// NumAssets returns the weight vector length.
func (s *DirichletSampler) NumAssets() int { return s.n }

// Sample draws one weight vector.
func (s *DirichletSampler) Sample(dst []float64) ([]float64, error) {
	dst = resize(dst, s.n)
	for attempt := 0; attempt < maxSampleAttempts; attempt++ {
		s.dist.Rand(dst)
		if normalize(dst) {
			return dst, nil
		}
	}
	return nil, apperrors.NewDegenerateSampleError(maxSampleAttempts)
}

// normalize scales w to sum to 1 and reports false when that is impossible.
func normalize(w []float64) bool {
	sum := floats.Sum(w)
	if !(sum > 0) || math.IsInf(sum, 0) {
		return false
	}
	// Divide rather than scale by 1/sum so a lone weight comes out as exactly 1.
	for i := range w {
		w[i] /= sum
	}
	return true
}

func resize(dst []float64, n int) []float64 {
	if len(dst) != n {
		return make([]float64, n)
	}
	return dst
}

// streamSeed derives an independent seed for stream k from a run seed (splitmix64).
func streamSeed(seed uint64, k int) uint64 {
	z := seed + uint64(k+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
