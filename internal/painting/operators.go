package painting

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
)

// CrossoverMask marks the stroke slots swapped between two parents.
type CrossoverMask []bool

// NewCrossoverMask returns a mask of length n with exactly n/2 slots set.
func NewCrossoverMask(n int) CrossoverMask {
	m := make(CrossoverMask, n)
	for i := 0; i < n/2; i++ {
		m[i] = true
	}
	return m
}

// Shuffle permutes the mask in place.
func (m CrossoverMask) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(m), func(i, j int) { m[i], m[j] = m[j], m[i] })
}

// Count returns the number of set slots.
func (m CrossoverMask) Count() int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

// Crossover swaps the masked slots between a and b in place. Applying the
// same mask twice restores both. a and b must not be the same Individual;
// callers clone parents first.
func Crossover(a, b *Individual, mask CrossoverMask) error {
	if a.Len() != len(mask) || b.Len() != len(mask) {
		return perrors.Errorf(perrors.KindInvalidConfig,
			"crossover length mismatch: a=%d b=%d mask=%d", a.Len(), b.Len(), len(mask)).
			WithOperation("crossover").
			WithComponent("painting")
	}
	for i, swap := range mask {
		if swap {
			a.Strokes[i], b.Strokes[i] = b.Strokes[i], a.Strokes[i]
		}
	}
	return nil
}

// Mutate replaces each slot of ind, independently with probability p, by the
// same slot of donor. It returns the number of replaced slots.
func Mutate(ind, donor *Individual, p float64, rng *rand.Rand) (int, error) {
	if ind.Len() != donor.Len() {
		return 0, perrors.Errorf(perrors.KindInvalidConfig,
			"mutation length mismatch: individual=%d donor=%d", ind.Len(), donor.Len()).
			WithOperation("mutate").
			WithComponent("painting")
	}
	if p < 0 || p > 1 {
		return 0, perrors.Errorf(perrors.KindInvalidConfig, "mutation probability %v outside [0,1]", p).
			WithOperation("mutate").
			WithComponent("painting")
	}

	coin := distuv.Bernoulli{P: p, Src: rng}
	replaced := 0
	for i := range ind.Strokes {
		if coin.Rand() == 1 {
			ind.Strokes[i] = donor.Strokes[i]
			replaced++
		}
	}
	return replaced, nil
}

// Distance counts the stroke slots in which a and b differ. Slots present in
// only one of them count as different.
func Distance(a, b *Individual) int {
	n := min(a.Len(), b.Len())
	d := max(a.Len(), b.Len()) - n
	for i := 0; i < n; i++ {
		if !a.Strokes[i].Equal(b.Strokes[i]) {
			d++
		}
	}
	return d
}
