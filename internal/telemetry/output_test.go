package telemetry

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/SBRGA/internal/evolution"
)

func TestOutputManagerRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	require.NoError(t, err)

	cfg := evolution.DefaultConfig()
	cfg.Checkpoints = []int{10, 20}
	params := Params{
		RunID:     "abc",
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Inputs:    Inputs{Color: "c.png", Direction: "d.png", Importance: "i.png"},
		Output:    "out.png",
		SaveWidth: 800,
		Config:    cfg,
	}
	require.NoError(t, om.WriteParams(params))

	var obs evolution.Observer = om
	obs.ObserveGeneration(evolution.GenerationStats{Generation: 0, BestScore: 10.5, MeanScore: 12, Evaluations: 4})
	obs.ObserveGeneration(evolution.GenerationStats{Generation: 1, BestScore: 9.25, Remutated: true, Seconds: 0.5})
	require.NoError(t, om.Close())

	got, err := ReadParams(dir)
	require.NoError(t, err)
	assert.Equal(t, params.RunID, got.RunID)
	assert.True(t, params.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, params.Inputs, got.Inputs)
	assert.Equal(t, cfg, got.Config)

	rows, err := ReadGenerations(dir)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 10.5, rows[0].BestScore)
	assert.Equal(t, 4, rows[0].Evaluations)
	assert.True(t, rows[1].Remutated)
	assert.Equal(t, 0.5, rows[1].Seconds)

	raw, err := os.ReadFile(filepath.Join(dir, GenerationsFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "generation,best_score")
}

func TestNilOutputManagerIsDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	require.NoError(t, err)
	assert.Nil(t, om)

	assert.NoError(t, om.WriteParams(Params{}))
	om.ObserveGeneration(evolution.GenerationStats{})
	assert.NoError(t, om.Close())
	assert.Equal(t, "", om.Dir())
}

func TestPlotHistory(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	require.NoError(t, err)
	defer om.Close()

	history := []evolution.GenerationStats{
		{Generation: 0, BestScore: 10, MeanScore: 14},
		{Generation: 1, BestScore: 8, MeanScore: 11},
		{Generation: 2, BestScore: 7.5, MeanScore: 9},
	}
	require.NoError(t, om.WritePlot(history, "run"))

	f, err := os.Open(om.Path(PlotFile))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Greater(t, cfg.Width, 0)

	assert.Error(t, PlotHistory(nil, "empty", filepath.Join(dir, "empty.png")))

	var disabled *OutputManager
	assert.NoError(t, disabled.WritePlot(history, "off"))
}
