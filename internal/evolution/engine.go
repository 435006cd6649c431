package evolution

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
	"github.com/copyleftdev/SBRGA/internal/fitness"
	"github.com/copyleftdev/SBRGA/internal/guidance"
	"github.com/copyleftdev/SBRGA/internal/painting"
	"github.com/copyleftdev/SBRGA/internal/render"
	"github.com/copyleftdev/SBRGA/internal/stroke"
)

// Engine runs the evolutionary loop.
type Engine struct {
	// Configuration
	config   Config
	strategy Strategy

	// Collaborators
	builder      *painting.Builder
	scorer       Scorer
	checkpointer Checkpointer
	observers    []Observer
	logger       *zap.Logger

	// Best solution found and per-generation history, readable while running
	mu      sync.RWMutex
	best    *Scored
	history []GenerationStats

	// For graceful stop between generations
	stop atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrategy overrides the strategy named in the Config.
func WithStrategy(s Strategy) Option {
	return func(e *Engine) { e.strategy = s }
}

// WithCheckpointer sets the collaborator called at scheduled generations.
func WithCheckpointer(c Checkpointer) Option {
	return func(e *Engine) { e.checkpointer = c }
}

// WithObserver adds an Observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an Engine. builder must produce Individuals of
// config.StrokeNum strokes.
func NewEngine(config Config, builder *painting.Builder, scorer Scorer, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if builder.StrokeNum() != config.StrokeNum {
		return nil, perrors.Errorf(perrors.KindInvalidConfig, "builder makes %d strokes, config wants %d",
			builder.StrokeNum(), config.StrokeNum).
			WithComponent("evolution")
	}

	strategy, err := StrategyByName(config.Strategy)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:   config,
		strategy: strategy,
		builder:  builder,
		scorer:   scorer,
		logger:   zap.NewNop(),
		history:  make([]GenerationStats, 0, min(config.Generations+1, 1024)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewForFields wires the stroke synthesizer, Individual builder and fitness
// evaluator for fields and returns an Engine over them.
func NewForFields(fields *guidance.Fields, r render.Renderer, config Config, opts ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	synth := stroke.NewSynthesizer(fields, config.StrokeThickness, stroke.DefaultParams())
	builder, err := painting.NewBuilder(synth, config.StrokeNum)
	if err != nil {
		return nil, err
	}
	evaluator := fitness.NewEvaluator(r, fields,
		fitness.WithAlphaWeight(config.AlphaWeight),
		fitness.WithWorkers(config.Workers),
	)
	return NewEngine(config, builder, evaluator, opts...)
}

// Config returns the run parameters.
func (e *Engine) Config() Config { return e.config }

// Best returns the best Individual found so far.
func (e *Engine) Best() (Scored, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.best == nil {
		return Scored{}, false
	}
	return *e.best, true
}

// History returns a copy of the per-generation statistics recorded so far.
func (e *Engine) History() []GenerationStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]GenerationStats, len(e.history))
	copy(out, e.history)
	return out
}

// Stop asks Run to return after the current generation.
func (e *Engine) Stop() {
	e.stop.Store(true)
}

// Run evolves the population until the generation limit, Stop, or ctx is
// done. Stopping early still returns the best Individual found so far; an
// error is returned only when no Individual was scored or a phase failed.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	cfg := e.config
	env := &Env{
		Config:  cfg,
		Builder: e.builder,
		Scorer:  e.scorer,
		Rng:     NewRand(cfg.Seed),
	}

	e.logger.Info("starting run",
		zap.String("strategy", e.strategy.Name()),
		zap.Int("population_size", cfg.PopulationSize),
		zap.Int("stroke_num", cfg.StrokeNum),
		zap.Int("generations", cfg.Generations),
		zap.Uint64("seed", cfg.Seed),
	)

	genStart := time.Now()
	inds, err := env.NewIndividuals(ctx, cfg.PopulationSize)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.KindOf(err), "building initial population").WithOperation("initialize")
	}
	pop, err := env.Score(ctx, inds)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.KindOf(err), "scoring initial population").WithOperation("initialize")
	}
	if err := SortPopulation(pop); err != nil {
		return nil, err
	}

	stagnation := NewStagnation(cfg.StagnationLimit, cfg.StagnationRecovery)
	e.record(env, pop, 0, stagnation.Remaining(), false, time.Since(genStart))

	result := &Result{InitialBest: pop[0].Score}
	checkpoints := make(map[int]bool)
	for _, g := range CheckpointSchedule(cfg.Checkpoints, cfg.CheckpointStep, cfg.Generations) {
		checkpoints[g] = true
	}

	for g := 1; g <= cfg.Generations; g++ {
		select {
		case <-ctx.Done():
			result.Stopped = true
		default:
		}
		if e.stop.Load() {
			result.Stopped = true
		}
		if result.Stopped {
			break
		}

		genStart = time.Now()
		env.evaluations = 0
		top := pop[0].Individual

		next, err := e.strategy.Step(ctx, env, pop)
		if err != nil {
			if ctx.Err() != nil {
				result.Stopped = true
				break
			}
			return nil, perrors.Wrapf(err, perrors.KindOf(err), "generation %d", g).WithOperation("step")
		}
		pop = next

		remutated := false
		if stagnation.Check(painting.Distance(pop[0].Individual, top) == 0) {
			pop, err = e.remutate(ctx, env, pop)
			if err != nil {
				if ctx.Err() != nil {
					result.Stopped = true
					break
				}
				return nil, perrors.Wrapf(err, perrors.KindOf(err), "generation %d", g).WithOperation("remutate")
			}
			remutated = true
			result.Remutations++
		}

		result.Generations = g
		e.record(env, pop, g, stagnation.Remaining(), remutated, time.Since(genStart))

		if checkpoints[g] && e.checkpointer != nil {
			best, _ := e.Best()
			if err := e.checkpointer.Checkpoint(best.Individual, g); err != nil {
				return nil, perrors.Wrapf(err, perrors.KindRendererFailure, "checkpoint at generation %d", g).
					WithOperation("checkpoint").
					WithComponent("evolution")
			}
		}
	}

	if !result.Stopped {
		if err := e.finalPass(ctx, env, pop); err != nil {
			return nil, err
		}
	}

	best, _ := e.Best()
	result.Best = best.Individual
	result.Score = best.Score
	result.History = e.History()
	result.Duration = time.Since(start)

	e.logger.Info("run finished",
		zap.Float64("final_score", result.Score),
		zap.Float64("initial_best", result.InitialBest),
		zap.Int("generations", result.Generations),
		zap.Int("remutations", result.Remutations),
		zap.Bool("stopped", result.Stopped),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// remutate keeps the best Individual and replaces everyone else with a
// mutated clone of it.
func (e *Engine) remutate(ctx context.Context, env *Env, pop []Scored) ([]Scored, error) {
	best := pop[0]
	bases := make([]*painting.Individual, len(pop)-1)
	for i := range bases {
		bases[i] = best.Individual
	}

	children, err := env.Mutated(ctx, bases)
	if err != nil {
		return nil, err
	}
	scored, err := env.Score(ctx, children)
	if err != nil {
		return nil, err
	}

	next := make([]Scored, 0, len(pop))
	next = append(next, best)
	next = append(next, scored...)
	if err := SortPopulation(next); err != nil {
		return nil, err
	}

	e.logger.Debug("population remutated",
		zap.Float64("best_score", next[0].Score),
		zap.Int("children", len(children)),
	)
	return next, nil
}

// finalPass rescores the whole population and makes sure the best of it is
// the recorded best.
func (e *Engine) finalPass(ctx context.Context, env *Env, pop []Scored) error {
	inds := make([]*painting.Individual, len(pop))
	for i := range pop {
		inds[i] = pop[i].Individual
	}
	final, err := env.Score(ctx, inds)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return perrors.Wrap(err, perrors.KindOf(err), "final scoring pass").WithOperation("finalize")
	}
	if err := SortPopulation(final); err != nil {
		return err
	}
	e.updateBest(final[0])
	return nil
}

// record updates the best Individual and appends the generation statistics.
func (e *Engine) record(env *Env, pop []Scored, generation, stagnation int, remutated bool, d time.Duration) {
	scores := make([]float64, len(pop))
	for i := range pop {
		scores[i] = pop[i].Score
	}
	mean, std := stat.MeanStdDev(scores, nil)

	stats := GenerationStats{
		Generation:  generation,
		BestScore:   pop[0].Score,
		MeanScore:   mean,
		StdScore:    std,
		WorstScore:  pop[len(pop)-1].Score,
		Stagnation:  stagnation,
		Remutated:   remutated,
		Evaluations: env.evaluations,
		Seconds:     d.Seconds(),
		Duration:    d,
	}

	e.updateBest(pop[0])
	e.mu.Lock()
	e.history = append(e.history, stats)
	e.mu.Unlock()

	e.logger.Info("generation complete",
		zap.Int("generation", generation),
		zap.Float64("best_score", stats.BestScore),
		zap.Float64("mean_score", stats.MeanScore),
		zap.Int("stagnation", stagnation),
		zap.Bool("remutated", remutated),
		zap.Duration("duration", d),
	)
	for _, o := range e.observers {
		o.ObserveGeneration(stats)
	}
}

func (e *Engine) updateBest(s Scored) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.best == nil || s.Score < e.best.Score {
		e.best = &Scored{Individual: s.Individual, Score: s.Score}
	}
}
