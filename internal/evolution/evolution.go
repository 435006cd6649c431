// Package evolution runs the genetic loop that evolves a population of
// Individuals toward the guidance fields.
package evolution

import (
	"context"
	"time"

	"github.com/copyleftdev/SBRGA/internal/painting"
)

// Scorer scores Individuals. Lower is better.
type Scorer interface {
	// ScoreAll returns one score per Individual, index-aligned with inds.
	ScoreAll(ctx context.Context, inds []*painting.Individual) ([]float64, error)
}

// Strategy produces the next generation from the current one.
type Strategy interface {
	// Name identifies the strategy in logs and run parameters
	Name() string

	// Step returns the next population, sorted best first and sized
	// env.Config.PopulationSize. pop is sorted best first and must not be
	// modified.
	Step(ctx context.Context, env *Env, pop []Scored) ([]Scored, error)
}

// Checkpointer persists intermediate results.
type Checkpointer interface {
	Checkpoint(ind *painting.Individual, generation int) error
}

// CheckpointFunc adapts a function to Checkpointer.
type CheckpointFunc func(ind *painting.Individual, generation int) error

// Checkpoint implements Checkpointer.
func (f CheckpointFunc) Checkpoint(ind *painting.Individual, generation int) error {
	return f(ind, generation)
}

// Observer receives per-generation statistics. Observers are called from the
// goroutine running the engine and must not block for long.
type Observer interface {
	ObserveGeneration(stats GenerationStats)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(stats GenerationStats)

// ObserveGeneration implements Observer.
func (f ObserverFunc) ObserveGeneration(stats GenerationStats) { f(stats) }

// Scored pairs an Individual with its loss.
type Scored struct {
	Individual *painting.Individual
	Score      float64
}

// GenerationStats summarises one completed generation. Generation 0 is the
// initial population.
type GenerationStats struct {
	Generation  int           `json:"generation" csv:"generation"`
	BestScore   float64       `json:"best_score" csv:"best_score"`
	MeanScore   float64       `json:"mean_score" csv:"mean_score"`
	StdScore    float64       `json:"std_score" csv:"std_score"`
	WorstScore  float64       `json:"worst_score" csv:"worst_score"`
	Stagnation  int           `json:"stagnation" csv:"stagnation"`
	Remutated   bool          `json:"remutated" csv:"remutated"`
	Evaluations int           `json:"evaluations" csv:"evaluations"`
	Seconds     float64       `json:"seconds" csv:"seconds"`
	Duration    time.Duration `json:"-" csv:"-"`
}

// Result contains the outcome of a run.
type Result struct {
	// Best is the lowest-loss Individual found
	Best *painting.Individual
	// Score is the loss of Best
	Score float64
	// InitialBest is the best loss of the initial population
	InitialBest float64
	// Generations is the number of completed generations
	Generations int
	// Remutations counts stagnation-triggered remutation events
	Remutations int
	// Stopped is true when the run ended before the generation limit
	Stopped bool
	History  []GenerationStats
	Duration time.Duration
}
