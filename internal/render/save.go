package render

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	perrors "github.com/copyleftdev/SBRGA/internal/errors"
	"github.com/copyleftdev/SBRGA/internal/guidance"
	"github.com/copyleftdev/SBRGA/internal/painting"
)

// PNGSaver renders Individuals at a fixed output size and writes them as PNG.
type PNGSaver struct {
	Renderer Renderer
	// Source is the guidance size the stroke geometry was built against.
	Source guidance.Dims
	// Target is the output size. An empty Target means Source.
	Target guidance.Dims
}

// SaveDims returns the output size for a width and height request. A
// non-positive side selects the source size.
func SaveDims(src guidance.Dims, width, height int) guidance.Dims {
	dst := guidance.Dims{Width: width, Height: height}
	if dst.Empty() {
		return src
	}
	return dst
}

// NewPNGSaver returns a saver for geometry built against src, written at dst.
func NewPNGSaver(r Renderer, src, dst guidance.Dims) *PNGSaver {
	return &PNGSaver{Renderer: r, Source: src, Target: SaveDims(src, dst.Width, dst.Height)}
}

// Save renders ind and writes it to path, creating parent directories.
func (s *PNGSaver) Save(ind *painting.Individual, path string) error {
	target := SaveDims(s.Source, s.Target.Width, s.Target.Height)
	img, err := s.Renderer.Render(ind, s.Source, target)
	if err != nil {
		return perrors.Wrap(err, perrors.KindRendererFailure, "rendering output").
			WithOperation("save").
			WithComponent("render")
	}
	defer Release(s.Renderer, img)

	return WritePNG(path, img)
}

// Checkpoint saves ind under CheckpointPath(base, generation).
func (s *PNGSaver) Checkpoint(ind *painting.Individual, base string, generation int) error {
	return s.Save(ind, CheckpointPath(base, generation))
}

// CheckpointPath returns the path of the snapshot taken at generation:
// "out.png" becomes "out.gen-12.png".
func CheckpointPath(base string, generation int) string {
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".png"
	}
	return fmt.Sprintf("%s.gen-%d%s", strings.TrimSuffix(base, filepath.Ext(base)), generation, ext)
}

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return perrors.Wrapf(err, perrors.KindRendererFailure, "creating %s", dir).
				WithOperation("save").
				WithComponent("render")
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return perrors.Wrapf(err, perrors.KindRendererFailure, "creating %s", path).
			WithOperation("save").
			WithComponent("render")
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return perrors.Wrapf(err, perrors.KindRendererFailure, "encoding %s", path).
			WithOperation("save").
			WithComponent("render")
	}
	if err := f.Close(); err != nil {
		return perrors.Wrapf(err, perrors.KindRendererFailure, "closing %s", path).
			WithOperation("save").
			WithComponent("render")
	}
	return nil
}
