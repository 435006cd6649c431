package telemetry

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/copyleftdev/SBRGA/internal/evolution"
)

// PlotFile is the fitness curve written next to generations.csv.
const PlotFile = "fitness.png"

// PlotHistory draws the best and mean score of every generation and saves
// the plot to path. The image format follows the file extension.
func PlotHistory(history []evolution.GenerationStats, title, path string) error {
	if len(history) == 0 {
		return errors.New("no generations to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Loss"

	bestPts := make(plotter.XYs, len(history))
	meanPts := make(plotter.XYs, len(history))
	for i, g := range history {
		bestPts[i].X = float64(g.Generation)
		bestPts[i].Y = g.BestScore
		meanPts[i].X = float64(g.Generation)
		meanPts[i].Y = g.MeanScore
	}

	bestLine, err := plotter.NewLine(bestPts)
	if err != nil {
		return fmt.Errorf("best line: %w", err)
	}
	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return fmt.Errorf("mean line: %w", err)
	}
	meanLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(plotter.NewGrid(), bestLine, meanLine)
	p.Legend.Add("best", bestLine)
	p.Legend.Add("mean", meanLine)
	p.Legend.Top = true

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

// WritePlot saves the fitness curve of history into the run directory.
func (om *OutputManager) WritePlot(history []evolution.GenerationStats, title string) error {
	if om == nil {
		return nil
	}
	return PlotHistory(history, title, om.Path(PlotFile))
}
