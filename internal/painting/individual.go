// Package painting defines the Individual, a candidate painting made of a
// fixed number of strokes, and the stroke-level operators applied to it.
package painting

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"gonum.org/v1/gonum/floats"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
	"github.com/copyleftdev/SBRGA/internal/stroke"
)

// WeightedShare is the fraction of strokes seeded by importance-weighted
// sampling; the rest are seeded uniformly so low-importance areas get paint.
const WeightedShare = 0.95

// Individual is an ordered set of strokes. Slot order is paint order.
type Individual struct {
	Strokes []stroke.Stroke
}

// Len returns the stroke count.
func (ind *Individual) Len() int { return len(ind.Strokes) }

// Clone returns an Individual with its own stroke slice. Skeletons are
// immutable and stay shared.
func (ind *Individual) Clone() *Individual {
	return &Individual{Strokes: slices.Clone(ind.Strokes)}
}

// Equal reports whether both individuals hold identical strokes in every slot.
func (ind *Individual) Equal(o *Individual) bool {
	return Distance(ind, o) == 0
}

// SeedSampler draws seed pixel indices. Weighted draws are proportional to
// importance and never return a zero-importance pixel.
type SeedSampler struct {
	cumulative []float64
	total      float64
}

// NewSeedSampler prepares cumulative weights for importance. It fails with
// DegenerateSampling when no pixel has positive importance.
func NewSeedSampler(importance []float64) (*SeedSampler, error) {
	if len(importance) == 0 {
		return nil, perrors.New(perrors.KindDegenerateSampling, "empty importance field").
			WithComponent("painting")
	}
	cum := floats.CumSum(make([]float64, len(importance)), importance)
	total := cum[len(cum)-1]
	if !(total > 0) || math.IsInf(total, 0) {
		return nil, perrors.Errorf(perrors.KindDegenerateSampling,
			"importance field sums to %v; weighted seed sampling is undefined", total).
			WithComponent("painting")
	}
	return &SeedSampler{cumulative: cum, total: total}, nil
}

// Weighted draws an index with probability proportional to its importance.
func (s *SeedSampler) Weighted(rng *rand.Rand) int {
	target := rng.Float64() * s.total
	return sort.Search(len(s.cumulative), func(i int) bool {
		return s.cumulative[i] > target
	})
}

// Uniform draws any index with equal probability.
func (s *SeedSampler) Uniform(rng *rand.Rand) int {
	return rng.IntN(len(s.cumulative))
}

// Builder constructs random Individuals of a fixed stroke count.
type Builder struct {
	synth     *stroke.Synthesizer
	sampler   *SeedSampler
	strokeNum int
}

// NewBuilder validates the importance field and returns a Builder.
func NewBuilder(synth *stroke.Synthesizer, strokeNum int) (*Builder, error) {
	if strokeNum <= 0 {
		return nil, perrors.Errorf(perrors.KindInvalidConfig, "stroke count must be positive, got %d", strokeNum).
			WithComponent("painting")
	}
	sampler, err := NewSeedSampler(synth.Fields().Importance)
	if err != nil {
		return nil, err
	}
	return &Builder{synth: synth, sampler: sampler, strokeNum: strokeNum}, nil
}

// StrokeNum returns the stroke count of every built Individual.
func (b *Builder) StrokeNum() int { return b.strokeNum }

// New builds one Individual. The result depends only on the state of rng.
func (b *Builder) New(rng *rand.Rand) *Individual {
	weighted := int(float64(b.strokeNum) * WeightedShare)
	strokes := make([]stroke.Stroke, 0, b.strokeNum)
	for i := 0; i < b.strokeNum; i++ {
		var seed int
		if i < weighted {
			seed = b.sampler.Weighted(rng)
		} else {
			seed = b.sampler.Uniform(rng)
		}
		strokes = append(strokes, b.synth.Synthesize(rng, seed))
	}

	slices.SortStableFunc(strokes, func(a, b stroke.Stroke) int {
		return cmp.Compare(a.Importance, b.Importance)
	})
	return &Individual{Strokes: strokes}
}
