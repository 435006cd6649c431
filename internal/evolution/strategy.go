package evolution

import (
	"cmp"
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"

	"github.com/sourcegraph/conc/pool"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
	"github.com/copyleftdev/SBRGA/internal/painting"
)

// Env is the shared state a Strategy works with. It is owned by the Engine
// and used from one goroutine at a time.
type Env struct {
	Config  Config
	Builder *painting.Builder
	Scorer  Scorer
	// Rng is the master random source. Parallel work draws per-task seeds
	// from it so results do not depend on scheduling.
	Rng *rand.Rand

	evaluations int
}

// NewRand returns a deterministic generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func (env *Env) workers() int {
	if env.Config.Workers > 0 {
		return env.Config.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// NewIndividuals builds n random Individuals in parallel.
func (env *Env) NewIndividuals(ctx context.Context, n int) ([]*painting.Individual, error) {
	seeds := make([]uint64, n)
	for i := range seeds {
		seeds[i] = env.Rng.Uint64()
	}

	out := make([]*painting.Individual, n)
	p := pool.New().WithMaxGoroutines(env.workers()).WithContext(ctx)
	for i, seed := range seeds {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = env.Builder.New(NewRand(seed))
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Score scores inds and returns them paired with their losses, unsorted.
func (env *Env) Score(ctx context.Context, inds []*painting.Individual) ([]Scored, error) {
	scores, err := env.Scorer.ScoreAll(ctx, inds)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(inds) {
		return nil, perrors.Errorf(perrors.KindRendererFailure, "scorer returned %d scores for %d individuals",
			len(scores), len(inds)).
			WithOperation("score").
			WithComponent("evolution")
	}
	env.evaluations += len(inds)

	out := make([]Scored, len(inds))
	for i := range inds {
		out[i] = Scored{Individual: inds[i], Score: scores[i]}
	}
	return out, nil
}

// Mutated returns, for each base, a copy mutated against a fresh random
// donor. Donors are built in parallel; the bases are not modified.
func (env *Env) Mutated(ctx context.Context, bases []*painting.Individual) ([]*painting.Individual, error) {
	donors, err := env.NewIndividuals(ctx, len(bases))
	if err != nil {
		return nil, err
	}
	out := make([]*painting.Individual, len(bases))
	for i, base := range bases {
		child := base.Clone()
		if _, err := painting.Mutate(child, donors[i], env.Config.MutationProbability, env.Rng); err != nil {
			return nil, err
		}
		out[i] = child
	}
	return out, nil
}

// crossPair clones both parents and swaps half of their strokes.
func (env *Env) crossPair(a, b *painting.Individual) (*painting.Individual, *painting.Individual, error) {
	ca, cb := a.Clone(), b.Clone()
	mask := painting.NewCrossoverMask(ca.Len())
	mask.Shuffle(env.Rng)
	if err := painting.Crossover(ca, cb, mask); err != nil {
		return nil, nil, err
	}
	return ca, cb, nil
}

// SortPopulation sorts pop best first. NaN scores are rejected.
func SortPopulation(pop []Scored) error {
	for i, s := range pop {
		if math.IsNaN(s.Score) {
			return perrors.Errorf(perrors.KindNumericInstability, "individual %d scored NaN", i).
				WithOperation("sort").
				WithComponent("evolution")
		}
	}
	slices.SortStableFunc(pop, func(a, b Scored) int {
		return cmp.Compare(a.Score, b.Score)
	})
	return nil
}

// StrategyByName returns the named Strategy. An empty name selects
// merge-truncate.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "", StrategyMergeTruncate:
		return MergeTruncate{}, nil
	case StrategyElitistSplit:
		return ElitistSplit{}, nil
	default:
		return nil, perrors.Errorf(perrors.KindInvalidConfig, "unknown strategy %q", name).
			WithComponent("evolution")
	}
}

// MergeTruncate breeds a full set of offspring by rank-biased selection and
// crossover, merges them with the current population and keeps the best.
type MergeTruncate struct{}

// Name implements Strategy.
func (MergeTruncate) Name() string { return StrategyMergeTruncate }

// Step implements Strategy.
func (MergeTruncate) Step(ctx context.Context, env *Env, pop []Scored) ([]Scored, error) {
	size := env.Config.PopulationSize
	sel := NewRankSelector(len(pop), env.Config.CrossoverBias)

	children := make([]*painting.Individual, 0, size+1)
	for len(children) < size {
		a := pop[sel.Pick(env.Rng)].Individual
		b := pop[sel.Pick(env.Rng)].Individual
		ca, cb, err := env.crossPair(a, b)
		if err != nil {
			return nil, err
		}
		children = append(children, ca, cb)
	}
	children = children[:size]

	scored, err := env.Score(ctx, children)
	if err != nil {
		return nil, err
	}

	merged := make([]Scored, 0, len(pop)+len(scored))
	merged = append(merged, pop...)
	merged = append(merged, scored...)
	if err := SortPopulation(merged); err != nil {
		return nil, err
	}
	return merged[:size], nil
}

// ElitistSplit keeps the top EliteFraction of the population and refills the
// rest with crossed, then mutated, children of uniformly chosen elites.
type ElitistSplit struct{}

// Name implements Strategy.
func (ElitistSplit) Name() string { return StrategyElitistSplit }

// Step implements Strategy.
func (ElitistSplit) Step(ctx context.Context, env *Env, pop []Scored) ([]Scored, error) {
	size := env.Config.PopulationSize
	elite := min(max(1, int(float64(size)*env.Config.EliteFraction)), len(pop))
	need := size - elite
	if need <= 0 {
		return slices.Clone(pop[:size]), nil
	}

	crossed := make([]*painting.Individual, 0, need+1)
	for len(crossed) < need {
		a := pop[env.Rng.IntN(elite)].Individual
		b := pop[env.Rng.IntN(elite)].Individual
		ca, cb, err := env.crossPair(a, b)
		if err != nil {
			return nil, err
		}
		crossed = append(crossed, ca, cb)
	}

	children, err := env.Mutated(ctx, crossed[:need])
	if err != nil {
		return nil, err
	}
	scored, err := env.Score(ctx, children)
	if err != nil {
		return nil, err
	}

	next := make([]Scored, 0, size)
	next = append(next, pop[:elite]...)
	next = append(next, scored...)
	if err := SortPopulation(next); err != nil {
		return nil, err
	}
	return next, nil
}
