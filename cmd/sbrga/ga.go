package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/copyleftdev/SBRGA/internal/config"
	"github.com/copyleftdev/SBRGA/internal/evolution"
	"github.com/copyleftdev/SBRGA/internal/guidance"
	"github.com/copyleftdev/SBRGA/internal/logging"
	"github.com/copyleftdev/SBRGA/internal/painting"
	"github.com/copyleftdev/SBRGA/internal/render"
	"github.com/copyleftdev/SBRGA/internal/telemetry"
)

// guidanceFlags are shared by every command that reads guidance images.
type guidanceFlags struct {
	color, direction, importance string
}

func (g *guidanceFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.color, "color", "", "Colour map image (required)")
	fs.StringVar(&g.direction, "direction", "", "Direction map image (required)")
	fs.StringVar(&g.importance, "importance", "", "Importance map image (required)")
}

func (g *guidanceFlags) load() (*guidance.Fields, error) {
	if g.color == "" || g.direction == "" || g.importance == "" {
		return nil, errors.New("--color, --direction and --importance are required")
	}
	return guidance.LoadFiles(g.color, g.direction, g.importance)
}

// intList parses a comma separated list of integers.
type intList []int

func (l *intList) String() string {
	parts := make([]string, len(*l))
	for i, v := range *l {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func (l *intList) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid generation %q", part)
		}
		*l = append(*l, v)
	}
	return nil
}

func runGA(args []string, logger *logging.Logger) error {
	defaults, err := config.LoadPainting()
	if err != nil {
		return fmt.Errorf("loading painting defaults: %w", err)
	}
	cfg := defaults.Evolution()

	fs := flag.NewFlagSet("ga", flag.ExitOnError)
	var g guidanceFlags
	g.register(fs)
	output := fs.String("output", "out.png", "Output PNG path")
	saveWidth := fs.Int("save-width", 0, "Output width (<= 0 = colour map width)")
	saveHeight := fs.Int("save-height", 0, "Output height (<= 0 = colour map height)")
	telemetryDir := fs.String("telemetry", "", "Directory for params.yaml and generations.csv (empty = off)")
	var checkpoints intList
	fs.Var(&checkpoints, "checkpoints", "Comma separated generations to checkpoint")
	fs.IntVar(&cfg.CheckpointStep, "checkpoint-step", 0, "Checkpoint every N generations (0 = off)")
	fs.Uint64Var(&cfg.Seed, "seed", 0, "Random seed (0 = time based)")
	fs.IntVar(&cfg.StrokeNum, "strokes", cfg.StrokeNum, "Strokes per Individual")
	fs.Float64Var(&cfg.StrokeThickness, "thickness", cfg.StrokeThickness, "Stroke thickness multiplier")
	fs.IntVar(&cfg.PopulationSize, "population", cfg.PopulationSize, "Population size")
	fs.IntVar(&cfg.Generations, "generations", cfg.Generations, "Generation limit")
	fs.Float64Var(&cfg.CrossoverBias, "bias", cfg.CrossoverBias, "Rank-selection bias constant")
	fs.Float64Var(&cfg.MutationProbability, "mutation", cfg.MutationProbability, "Per-stroke mutation probability")
	fs.IntVar(&cfg.StagnationLimit, "stagnation-limit", cfg.StagnationLimit, "Stagnant generations before remutation")
	fs.IntVar(&cfg.StagnationRecovery, "stagnation-recovery", cfg.StagnationRecovery, "Countdown after a remutation")
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "merge-truncate or elitist-split")
	fs.Float64Var(&cfg.EliteFraction, "elite", cfg.EliteFraction, "Elite share for elitist-split")
	fs.Float64Var(&cfg.AlphaWeight, "alpha-weight", cfg.AlphaWeight, "Weight of uncovered canvas in the loss")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Goroutine bound (0 = GOMAXPROCS)")
	fs.Parse(args)

	cfg.Checkpoints = checkpoints
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fields, err := g.load()
	if err != nil {
		return err
	}

	om, err := telemetry.NewOutputManager(*telemetryDir)
	if err != nil {
		return err
	}
	defer om.Close()
	runID := uuid.NewString()
	if err := om.WriteParams(telemetry.Params{
		RunID:      runID,
		StartedAt:  time.Now().UTC(),
		Inputs:     telemetry.Inputs{Color: g.color, Direction: g.direction, Importance: g.importance},
		Output:     *output,
		SaveWidth:  *saveWidth,
		SaveHeight: *saveHeight,
		Config:     cfg,
	}); err != nil {
		return err
	}

	renderer := render.NewCPU()
	saver := render.NewPNGSaver(renderer, fields.Dims, render.SaveDims(fields.Dims, *saveWidth, *saveHeight))
	zapLogger := logging.NewZapLogger(logger.ForRun(runID))
	defer zapLogger.Sync()

	engine, err := evolution.NewForFields(fields, renderer, cfg,
		evolution.WithLogger(zapLogger),
		evolution.WithObserver(om),
		evolution.WithCheckpointer(evolution.CheckpointFunc(func(ind *painting.Individual, gen int) error {
			zapLogger.Info("writing checkpoint", zap.Int("generation", gen), zap.String("path", render.CheckpointPath(*output, gen)))
			return saver.Checkpoint(ind, *output, gen)
		})),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}
	if err := saver.Save(result.Best, *output); err != nil {
		return err
	}
	if err := om.WritePlot(result.History, *output); err != nil {
		logger.Warn("Writing fitness plot failed", map[string]interface{}{"error": err.Error()})
	}

	logger.Info("Painting saved", map[string]interface{}{
		"output":       *output,
		"final_score":  result.Score,
		"initial_best": result.InitialBest,
		"generations":  result.Generations,
		"remutations":  result.Remutations,
		"stopped":      result.Stopped,
		"duration":     result.Duration.String(),
	})
	return nil
}
