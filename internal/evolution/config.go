package evolution

import (
	"math"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
)

// Strategy names accepted by StrategyByName.
const (
	StrategyMergeTruncate = "merge-truncate"
	StrategyElitistSplit  = "elitist-split"
)

// MinAlphaWeight is the smallest accepted alpha-deficiency weight.
const MinAlphaWeight = 100

// Config contains the run parameters of an Engine.
type Config struct {
	// Strokes per Individual
	StrokeNum int `json:"stroke_num" yaml:"stroke_num"`
	// Multiplier applied to every sampled stroke thickness
	StrokeThickness float64 `json:"stroke_thickness" yaml:"stroke_thickness"`
	// Individuals kept between generations
	PopulationSize int `json:"population_size" yaml:"population_size"`
	// Generation limit
	Generations int `json:"generations" yaml:"generations"`
	// Rank-bias constant; rank i is selected with weight 1/(i+CrossoverBias)
	CrossoverBias float64 `json:"crossover_bias" yaml:"crossover_bias"`
	// Per-stroke replacement probability during mutation and remutation
	MutationProbability float64 `json:"mutation_probability" yaml:"mutation_probability"`
	// Stagnant generations tolerated before a remutation
	StagnationLimit int `json:"stagnation_limit" yaml:"stagnation_limit"`
	// Countdown value after a remutation
	StagnationRecovery int `json:"stagnation_recovery" yaml:"stagnation_recovery"`
	// Strategy name, see StrategyByName
	Strategy string `json:"strategy" yaml:"strategy"`
	// Share of the population kept as parents by the elitist-split strategy
	EliteFraction float64 `json:"elite_fraction" yaml:"elite_fraction"`
	// Weight of the alpha-deficiency term of the loss
	AlphaWeight float64 `json:"alpha_weight" yaml:"alpha_weight"`
	// Goroutine bound for parallel phases; 0 means GOMAXPROCS
	Workers int `json:"workers" yaml:"workers"`
	// Random seed; equal seeds and inputs give equal runs
	Seed uint64 `json:"seed" yaml:"seed"`
	// Generations at which the best Individual is checkpointed
	Checkpoints []int `json:"checkpoints,omitempty" yaml:"checkpoints,omitempty"`
	// Checkpoint every CheckpointStep generations; 0 disables
	CheckpointStep int `json:"checkpoint_step" yaml:"checkpoint_step"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		StrokeNum:           10000,
		StrokeThickness:     1.0,
		PopulationSize:      250,
		Generations:         100,
		CrossoverBias:       50,
		MutationProbability: 0.35,
		StagnationLimit:     50,
		StagnationRecovery:  25,
		Strategy:            StrategyMergeTruncate,
		EliteFraction:       0.5,
		AlphaWeight:         500,
	}
}

// Validate checks that every parameter is in range.
func (c Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return perrors.Errorf(perrors.KindInvalidConfig, format, args...).
			WithOperation("validate").
			WithComponent("evolution")
	}

	switch {
	case c.StrokeNum <= 0:
		return invalid("stroke_num must be positive, got %d", c.StrokeNum)
	case !(c.StrokeThickness > 0):
		return invalid("stroke_thickness must be positive, got %v", c.StrokeThickness)
	case c.PopulationSize < 2:
		return invalid("population_size must be at least 2, got %d", c.PopulationSize)
	case c.Generations < 0:
		return invalid("generations must not be negative, got %d", c.Generations)
	case !(c.CrossoverBias > 0):
		return invalid("crossover_bias must be positive, got %v", c.CrossoverBias)
	case !(c.MutationProbability >= 0 && c.MutationProbability <= 1):
		return invalid("mutation_probability must be in [0,1], got %v", c.MutationProbability)
	case c.StagnationLimit < 0 || c.StagnationRecovery < 0:
		return invalid("stagnation countdowns must not be negative, got %d/%d", c.StagnationLimit, c.StagnationRecovery)
	case !(c.EliteFraction > 0 && c.EliteFraction <= 1):
		return invalid("elite_fraction must be in (0,1], got %v", c.EliteFraction)
	case !(c.AlphaWeight >= MinAlphaWeight) || math.IsInf(c.AlphaWeight, 0):
		return invalid("alpha_weight must be a finite value of at least %v, got %v", MinAlphaWeight, c.AlphaWeight)
	case c.Workers < 0:
		return invalid("workers must not be negative, got %d", c.Workers)
	case c.CheckpointStep < 0:
		return invalid("checkpoint_step must not be negative, got %d", c.CheckpointStep)
	}
	for _, g := range c.Checkpoints {
		if g < 0 {
			return invalid("checkpoint generation %d is negative", g)
		}
	}
	if _, err := StrategyByName(c.Strategy); err != nil {
		return err
	}
	return nil
}
