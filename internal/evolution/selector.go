package evolution

import (
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// RankSelector draws population ranks with replacement. Rank i (0 is best)
// has weight 1/(i+bias); a larger bias flattens the distribution.
type RankSelector struct {
	cumulative []float64
}

// NewRankSelector prepares a selector over n ranks. bias must be positive.
func NewRankSelector(n int, bias float64) *RankSelector {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / (float64(i) + bias)
	}
	return &RankSelector{cumulative: floats.CumSum(w, w)}
}

// Pick returns a rank in [0, n).
func (s *RankSelector) Pick(rng *rand.Rand) int {
	total := s.cumulative[len(s.cumulative)-1]
	target := rng.Float64() * total
	i := sort.Search(len(s.cumulative), func(i int) bool {
		return s.cumulative[i] > target
	})
	return min(i, len(s.cumulative)-1)
}

// Weight returns the normalized selection probability of rank i.
func (s *RankSelector) Weight(i int) float64 {
	total := s.cumulative[len(s.cumulative)-1]
	prev := 0.0
	if i > 0 {
		prev = s.cumulative[i-1]
	}
	return (s.cumulative[i] - prev) / total
}
