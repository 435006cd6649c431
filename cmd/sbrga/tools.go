package main

import (
	"errors"
	"flag"
	"image"
	"time"

	"github.com/copyleftdev/SBRGA/internal/config"
	"github.com/copyleftdev/SBRGA/internal/evolution"
	"github.com/copyleftdev/SBRGA/internal/guidance"
	"github.com/copyleftdev/SBRGA/internal/logging"
	"github.com/copyleftdev/SBRGA/internal/painting"
	"github.com/copyleftdev/SBRGA/internal/render"
	"github.com/copyleftdev/SBRGA/internal/stroke"
)

func runCreateIndividual(args []string, logger *logging.Logger) error {
	defaults, err := config.LoadPainting()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("create-individual", flag.ExitOnError)
	var g guidanceFlags
	g.register(fs)
	output := fs.String("output", "individual.png", "Output PNG path")
	strokes := fs.Int("strokes", defaults.StrokeNum, "Strokes in the Individual")
	thickness := fs.Float64("thickness", defaults.StrokeThickness, "Stroke thickness multiplier")
	seed := fs.Uint64("seed", 0, "Random seed (0 = time based)")
	saveWidth := fs.Int("save-width", 0, "Output width (<= 0 = colour map width)")
	saveHeight := fs.Int("save-height", 0, "Output height (<= 0 = colour map height)")
	fs.Parse(args)

	fields, err := g.load()
	if err != nil {
		return err
	}
	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

	synth := stroke.NewSynthesizer(fields, *thickness, stroke.DefaultParams())
	builder, err := painting.NewBuilder(synth, *strokes)
	if err != nil {
		return err
	}
	ind := builder.New(evolution.NewRand(*seed))

	saver := render.NewPNGSaver(render.NewCPU(), fields.Dims, render.SaveDims(fields.Dims, *saveWidth, *saveHeight))
	if err := saver.Save(ind, *output); err != nil {
		return err
	}
	logger.Info("Individual saved", map[string]interface{}{
		"output":  *output,
		"strokes": ind.Len(),
		"seed":    *seed,
	})
	return nil
}

// ioFlags parses the --input/--output pair of the map conversion commands.
func ioFlags(name string, args []string, extra func(fs *flag.FlagSet)) (input, output string, err error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	in := fs.String("input", "", "Input image (required)")
	out := fs.String("output", "", "Output PNG path (required)")
	if extra != nil {
		extra(fs)
	}
	fs.Parse(args)
	if *in == "" || *out == "" {
		return "", "", errors.New("--input and --output are required")
	}
	return *in, *out, nil
}

func convertMap(name string, args []string, logger *logging.Logger, convert func(image.Image) *image.NRGBA) error {
	input, output, err := ioFlags(name, args, nil)
	if err != nil {
		return err
	}
	src, err := guidance.DecodeFile(input)
	if err != nil {
		return err
	}
	if err := render.WritePNG(output, convert(src)); err != nil {
		return err
	}
	logger.Info("Direction map saved", map[string]interface{}{"input": input, "output": output})
	return nil
}

func runDirmapNormal(args []string, logger *logging.Logger) error {
	return convertMap("dirmap-normal", args, logger, guidance.FromNormalMap)
}

func runDirmapEdge(args []string, logger *logging.Logger) error {
	return convertMap("dirmap-edge", args, logger, guidance.FromEdgeMap)
}

func runVisualizeDirmap(args []string, logger *logging.Logger) error {
	var spacing int
	var scale float64
	input, output, err := ioFlags("visualize-dirmap", args, func(fs *flag.FlagSet) {
		fs.IntVar(&spacing, "spacing", 8, "Glyph spacing in map pixels")
		fs.Float64Var(&scale, "scale", 4, "Output scale")
	})
	if err != nil {
		return err
	}

	dir, err := guidance.DecodeFile(input)
	if err != nil {
		return err
	}
	// Only the direction channel is drawn.
	fields, err := guidance.FromImages(dir, dir, dir)
	if err != nil {
		return err
	}

	if err := render.WritePNG(output, render.DirectionOverlay(fields, spacing, scale)); err != nil {
		return err
	}
	logger.Info("Direction overlay saved", map[string]interface{}{"input": input, "output": output})
	return nil
}
