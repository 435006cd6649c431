package evolution

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
)

func TestRankSelectorFrequencyDecreasesWithRank(t *testing.T) {
	const n, draws = 10, 200000
	sel := NewRankSelector(n, 2)
	rng := NewRand(1)

	counts := make([]int, n)
	for i := 0; i < draws; i++ {
		r := sel.Pick(rng)
		require.True(t, r >= 0 && r < n)
		counts[r]++
	}

	for i := 1; i < n; i++ {
		assert.GreaterOrEqual(t, counts[i-1], counts[i], "rank %d picked more often than rank %d", i, i-1)
		assert.Greater(t, sel.Weight(i-1), sel.Weight(i))
	}
	assert.InDelta(t, sel.Weight(0), float64(counts[0])/draws, 0.01)
}

func TestRankSelectorBiasFlattens(t *testing.T) {
	steep := NewRankSelector(10, 1)
	flat := NewRankSelector(10, 1000)
	assert.Greater(t, steep.Weight(0)/steep.Weight(9), flat.Weight(0)/flat.Weight(9))
	assert.InDelta(t, 0.1, flat.Weight(5), 0.001)
}

func TestStagnationCountdown(t *testing.T) {
	s := NewStagnation(2, 1)

	assert.False(t, s.Check(true))
	assert.Equal(t, 1, s.Remaining())
	assert.False(t, s.Check(false), "progress does not reset or decrement")
	assert.Equal(t, 1, s.Remaining())
	assert.False(t, s.Check(true))
	assert.True(t, s.Check(true))
	assert.Equal(t, 1, s.Remaining())
	assert.False(t, s.Check(true))
	assert.True(t, s.Check(true))
}

func TestStagnationFiresAfterLimitPlusOne(t *testing.T) {
	for _, limit := range []int{0, 1, 5} {
		s := NewStagnation(limit, 0)
		fired := 0
		for i := 0; i < limit; i++ {
			if s.Check(true) {
				fired++
			}
		}
		assert.Zero(t, fired, "limit %d", limit)
		assert.True(t, s.Check(true), "limit %d", limit)
	}
}

func TestCheckpointSchedule(t *testing.T) {
	tests := []struct {
		name     string
		explicit []int
		step     int
		gens     int
		want     []int
	}{
		{"union", []int{5, 3, 0, 12}, 4, 10, []int{3, 4, 5, 8}},
		{"step only", nil, 3, 9, []int{3, 6, 9}},
		{"explicit only", []int{2, 2, 1}, 0, 5, []int{1, 2}},
		{"none", nil, 0, 5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckpointSchedule(tt.explicit, tt.step, tt.gens))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	atMinimum := DefaultConfig()
	atMinimum.AlphaWeight = MinAlphaWeight
	require.NoError(t, atMinimum.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"stroke num", func(c *Config) { c.StrokeNum = 0 }},
		{"thickness", func(c *Config) { c.StrokeThickness = 0 }},
		{"population", func(c *Config) { c.PopulationSize = 1 }},
		{"generations", func(c *Config) { c.Generations = -1 }},
		{"bias", func(c *Config) { c.CrossoverBias = 0 }},
		{"mutation", func(c *Config) { c.MutationProbability = 1.1 }},
		{"stagnation", func(c *Config) { c.StagnationRecovery = -1 }},
		{"elite", func(c *Config) { c.EliteFraction = 0 }},
		{"alpha weight zero", func(c *Config) { c.AlphaWeight = 0 }},
		{"alpha weight below minimum", func(c *Config) { c.AlphaWeight = 50 }},
		{"alpha weight NaN", func(c *Config) { c.AlphaWeight = math.NaN() }},
		{"alpha weight infinite", func(c *Config) { c.AlphaWeight = math.Inf(1) }},
		{"workers", func(c *Config) { c.Workers = -2 }},
		{"checkpoint", func(c *Config) { c.Checkpoints = []int{-1} }},
		{"strategy", func(c *Config) { c.Strategy = "nope" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, perrors.Is(err, perrors.ErrInvalidConfig))
		})
	}
}

func TestSortPopulation(t *testing.T) {
	pop := []Scored{{Score: 3}, {Score: 1}, {Score: 2}}
	require.NoError(t, SortPopulation(pop))
	assert.Equal(t, []float64{1, 2, 3}, []float64{pop[0].Score, pop[1].Score, pop[2].Score})
}
