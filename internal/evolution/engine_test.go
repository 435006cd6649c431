package evolution

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
	"github.com/copyleftdev/SBRGA/internal/guidance"
	"github.com/copyleftdev/SBRGA/internal/painting"
	"github.com/copyleftdev/SBRGA/internal/render"
	"github.com/copyleftdev/SBRGA/internal/stroke"
)

var gray = colorful.Color{R: 0.5, G: 0.5, B: 0.5}

// constScorer gives every Individual the same score, so the top of the
// population never changes.
type constScorer struct {
	score float64
	calls atomic.Int64
}

func (s *constScorer) ScoreAll(_ context.Context, inds []*painting.Individual) ([]float64, error) {
	s.calls.Add(int64(len(inds)))
	out := make([]float64, len(inds))
	for i := range out {
		out[i] = s.score
	}
	return out, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StrokeNum = 8
	cfg.PopulationSize = 10
	cfg.Generations = 5
	cfg.CrossoverBias = 2
	cfg.Seed = 7
	cfg.Workers = 2
	return cfg
}

func testBuilder(t *testing.T, n int) *painting.Builder {
	t.Helper()
	b, err := painting.NewBuilder(stroke.NewSynthesizer(guidance.Gradient(8, 8), 1, stroke.DefaultParams()), n)
	require.NoError(t, err)
	return b
}

func uniformGray() *guidance.Fields {
	return guidance.Uniform(4, 4, gray, r2.Vec{X: 1}, 1)
}

func TestEndToEndSmallCanvas(t *testing.T) {
	e, err := NewForFields(uniformGray(), render.NewCPU(), testConfig())
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Best)

	assert.Equal(t, 8, res.Best.Len())
	assert.False(t, math.IsNaN(res.Score) || math.IsInf(res.Score, 0))
	assert.LessOrEqual(t, res.Score, res.InitialBest)
	assert.Equal(t, 5, res.Generations)
	assert.False(t, res.Stopped)

	require.Len(t, res.History, 6)
	initial := res.History[0]
	assert.Equal(t, 0, initial.Generation)
	assert.Equal(t, 10, initial.Evaluations)
	assert.LessOrEqual(t, res.Score, initial.BestScore)

	best, ok := e.Best()
	require.True(t, ok)
	assert.Equal(t, res.Score, best.Score)
}

func TestRunIsDeterministic(t *testing.T) {
	run := func() *Result {
		e, err := NewForFields(uniformGray(), render.NewCPU(), testConfig())
		require.NoError(t, err)
		res, err := e.Run(context.Background())
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.Score, b.Score)
	assert.True(t, a.Best.Equal(b.Best))
}

func TestBestNeverRegresses(t *testing.T) {
	for _, name := range []string{StrategyMergeTruncate, StrategyElitistSplit} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Strategy = name
			cfg.Generations = 8
			cfg.StagnationLimit = 1
			cfg.StagnationRecovery = 0

			e, err := NewForFields(guidance.Gradient(6, 6), render.NewCPU(), cfg)
			require.NoError(t, err)
			res, err := e.Run(context.Background())
			require.NoError(t, err)

			for i := 1; i < len(res.History); i++ {
				assert.LessOrEqual(t, res.History[i].BestScore, res.History[i-1].BestScore,
					"generation %d regressed", i)
			}
			assert.Equal(t, res.History[len(res.History)-1].BestScore, res.Score)
		})
	}
}

func TestStagnationTriggersRemutation(t *testing.T) {
	cfg := testConfig()
	cfg.Generations = 6
	cfg.StagnationLimit = 2
	cfg.StagnationRecovery = 1

	scorer := &constScorer{score: 1}
	e, err := NewEngine(cfg, testBuilder(t, cfg.StrokeNum), scorer)
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)

	var fired []int
	for _, s := range res.History {
		if s.Remutated {
			fired = append(fired, s.Generation)
		}
	}
	// Limit 2: three unchanged checks trigger the first remutation, then the
	// recovery value of 1 triggers one every second generation.
	assert.Equal(t, []int{3, 5}, fired)
	assert.Equal(t, 2, res.Remutations)
	assert.Equal(t, 1, res.History[3].Stagnation)

	// Initial 10, then 10 offspring per generation, 9 remutated children
	// twice and the final pass.
	assert.Equal(t, int64(10+6*10+2*9+10), scorer.calls.Load())
}

func TestStopReturnsBestSoFar(t *testing.T) {
	cfg := testConfig()
	cfg.Generations = 50

	var e *Engine
	stopAt := ObserverFunc(func(s GenerationStats) {
		if s.Generation == 2 {
			e.Stop()
		}
	})
	e, err := NewForFields(uniformGray(), render.NewCPU(), cfg, WithObserver(stopAt))
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Equal(t, 2, res.Generations)
	require.NotNil(t, res.Best)
	assert.Equal(t, 8, res.Best.Len())
	assert.Len(t, e.History(), 3)
}

func TestContextCancelReturnsBestSoFar(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.Generations = 50
	e, err := NewForFields(uniformGray(), render.NewCPU(), cfg,
		WithObserver(ObserverFunc(func(s GenerationStats) {
			if s.Generation == 1 {
				cancel()
			}
		})))
	require.NoError(t, err)

	res, err := e.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Equal(t, 1, res.Generations)
	assert.NotNil(t, res.Best)
}

func TestCheckpointsFollowSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Checkpoints = []int{1}
	cfg.CheckpointStep = 2

	var got []int
	cp := CheckpointFunc(func(ind *painting.Individual, g int) error {
		require.NotNil(t, ind)
		got = append(got, g)
		return nil
	})
	e, err := NewEngine(cfg, testBuilder(t, cfg.StrokeNum), &constScorer{score: 3}, WithCheckpointer(cp))
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4}, got)
}

func TestCheckpointFailureSurfaces(t *testing.T) {
	cfg := testConfig()
	cfg.CheckpointStep = 1

	cp := CheckpointFunc(func(*painting.Individual, int) error { return errors.New("disk full") })
	e, err := NewEngine(cfg, testBuilder(t, cfg.StrokeNum), &constScorer{score: 3}, WithCheckpointer(cp))
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrRendererFailure))
}

func TestNaNScoreFailsFast(t *testing.T) {
	cfg := testConfig()
	e, err := NewEngine(cfg, testBuilder(t, cfg.StrokeNum), &constScorer{score: math.NaN()})
	require.NoError(t, err)

	_, err = e.Run(context.Background())
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrNumericInstability))
}

func TestNewEngineValidation(t *testing.T) {
	cfg := testConfig()
	_, err := NewEngine(cfg, testBuilder(t, 3), &constScorer{})
	assert.True(t, perrors.Is(err, perrors.ErrInvalidConfig))

	_, err = NewForFields(guidance.Uniform(4, 4, gray, r2.Vec{}, 0), render.NewCPU(), cfg)
	assert.True(t, perrors.Is(err, perrors.ErrDegenerateSampling))

	cfg.Strategy = "annealing"
	_, err = NewForFields(uniformGray(), render.NewCPU(), cfg)
	assert.True(t, perrors.Is(err, perrors.ErrInvalidConfig))
}
