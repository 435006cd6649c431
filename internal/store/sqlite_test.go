package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/SBRGA/internal/evolution"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s := NewSQLiteStore("file::memory:")
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	cfg := evolution.DefaultConfig()
	cfg.Seed = 42
	cfg.Checkpoints = []int{5}
	require.NoError(t, s.CreateRun(ctx, Run{ID: "r1", Status: StatusPending, Config: cfg, Output: "out.png"}))

	got, ok, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, cfg, got.Config)
	assert.Equal(t, "out.png", got.Output)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.Terminal())

	got.Status = StatusCompleted
	got.BestScore = 12.5
	got.Generations = 7
	require.NoError(t, s.UpdateRun(ctx, got))

	updated, ok, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12.5, updated.BestScore)
	assert.Equal(t, 7, updated.Generations)
	assert.True(t, updated.Terminal())
	assert.True(t, updated.CreatedAt.Equal(got.CreatedAt))

	_, ok, err = s.GetRun(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, s.UpdateRun(ctx, Run{ID: "missing", Status: StatusFailed}))
	assert.Error(t, s.CreateRun(ctx, Run{ID: "r1", Status: StatusPending}), "duplicate id")
}

func TestGenerationsAreOrdered(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateRun(ctx, Run{ID: "r1", Status: StatusRunning}))

	for _, g := range []int{2, 0, 1} {
		require.NoError(t, s.AppendGeneration(ctx, "r1", evolution.GenerationStats{
			Generation: g,
			BestScore:  float64(10 - g),
			MeanScore:  20,
			Remutated:  g == 1,
			Seconds:    0.25,
		}))
	}
	require.NoError(t, s.AppendGeneration(ctx, "r1", evolution.GenerationStats{Generation: 2, BestScore: 7.5}))

	gens, err := s.ListGenerations(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, gens, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{gens[0].Generation, gens[1].Generation, gens[2].Generation})
	assert.True(t, gens[1].Remutated)
	assert.Equal(t, 250*time.Millisecond, gens[0].Duration)
	assert.Equal(t, 7.5, gens[2].BestScore)

	none, err := s.ListGenerations(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "runs.db")

	s := NewSQLiteStore(dsn)
	require.NoError(t, s.Init(ctx))
	require.NoError(t, s.CreateRun(ctx, Run{ID: "r1", Status: StatusRunning}))
	require.NoError(t, s.Close())

	s = NewSQLiteStore(dsn)
	require.NoError(t, s.Init(ctx))
	defer s.Close()
	_, ok, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUninitializedStore(t *testing.T) {
	s := NewSQLiteStore("")
	assert.Error(t, s.Init(context.Background()))
	_, _, err := s.GetRun(context.Background(), "x")
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}
