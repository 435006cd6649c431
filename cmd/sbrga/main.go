// Command sbrga paints images with evolved brush strokes and prepares the
// direction maps that guide them.
package main

import (
	"fmt"
	"os"

	"github.com/copyleftdev/SBRGA/internal/config"
	"github.com/copyleftdev/SBRGA/internal/logging"
)

type command struct {
	name  string
	usage string
	run   func(args []string, logger *logging.Logger) error
}

var commands = []command{
	{"ga", "evolve a painting from colour, direction and importance maps", runGA},
	{"create-individual", "render one random Individual", runCreateIndividual},
	{"dirmap-normal", "derive a direction map from a tangent-space normal map", runDirmapNormal},
	{"dirmap-edge", "derive a direction map from an edge or luminance map", runDirmapEdge},
	{"visualize-dirmap", "draw a direction map as line glyphs", runVisualizeDirmap},
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: sbrga <command> [flags]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-18s %s\n", c.name, c.usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:   config.GetEnv("LOG_LEVEL", "info"),
		Format:  config.GetEnv("LOG_FORMAT", "text"),
		Output:  "stderr",
		Service: "sbrga",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	name := os.Args[1]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(os.Args[2:], logger.WithField(logging.FieldCommand, name)); err != nil {
			logger.Error("Command failed", map[string]interface{}{
				logging.FieldCommand: name,
				"error":              err.Error(),
			})
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}
