// Package telemetry writes the run output directory: the run parameters as
// YAML and one CSV row of statistics per generation.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/SBRGA/internal/evolution"
)

// File names inside a run directory.
const (
	ParamsFile      = "params.yaml"
	GenerationsFile = "generations.csv"
)

// Inputs names the guidance images a run was started from.
type Inputs struct {
	Color      string `yaml:"color"`
	Direction  string `yaml:"direction"`
	Importance string `yaml:"importance"`
}

// Params is the record written to params.yaml.
type Params struct {
	RunID      string           `yaml:"run_id"`
	StartedAt  time.Time        `yaml:"started_at"`
	Inputs     Inputs           `yaml:"inputs"`
	Output     string           `yaml:"output"`
	SaveWidth  int              `yaml:"save_width,omitempty"`
	SaveHeight int              `yaml:"save_height,omitempty"`
	Config     evolution.Config `yaml:"config"`
}

// OutputManager handles structured run output with CSV logging. A nil
// OutputManager discards everything.
type OutputManager struct {
	dir string

	mu                 sync.Mutex
	generationsFile    *os.File
	generationsHeaders bool
	err                error
}

// NewOutputManager creates dir and opens generations.csv in it.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, GenerationsFile))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", GenerationsFile, err)
	}
	return &OutputManager{dir: dir, generationsFile: f}, nil
}

// Dir returns the run directory.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Path joins name onto the run directory.
func (om *OutputManager) Path(name string) string {
	return filepath.Join(om.Dir(), name)
}

// WriteParams saves the run parameters as YAML.
func (om *OutputManager) WriteParams(p Params) error {
	if om == nil {
		return nil
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}
	if err := os.WriteFile(om.Path(ParamsFile), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", ParamsFile, err)
	}
	return nil
}

// WriteGeneration appends one statistics row to generations.csv.
func (om *OutputManager) WriteGeneration(stats evolution.GenerationStats) error {
	if om == nil {
		return nil
	}
	om.mu.Lock()
	defer om.mu.Unlock()

	records := []evolution.GenerationStats{stats}
	if !om.generationsHeaders {
		// First write includes headers
		if err := gocsv.Marshal(records, om.generationsFile); err != nil {
			return fmt.Errorf("writing generation: %w", err)
		}
		om.generationsHeaders = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, om.generationsFile); err != nil {
		return fmt.Errorf("writing generation: %w", err)
	}
	return nil
}

// ObserveGeneration implements evolution.Observer. The first write error is
// kept and returned by Close.
func (om *OutputManager) ObserveGeneration(stats evolution.GenerationStats) {
	if err := om.WriteGeneration(stats); err != nil {
		om.mu.Lock()
		if om.err == nil {
			om.err = err
		}
		om.mu.Unlock()
	}
}

// Close closes the CSV file and reports any deferred write error.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	om.mu.Lock()
	defer om.mu.Unlock()

	closeErr := om.generationsFile.Close()
	if om.err != nil {
		return om.err
	}
	return closeErr
}

// ReadParams loads params.yaml from dir.
func ReadParams(dir string) (*Params, error) {
	data, err := os.ReadFile(filepath.Join(dir, ParamsFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ParamsFile, err)
	}
	var p Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ParamsFile, err)
	}
	return &p, nil
}

// ReadGenerations loads generations.csv from dir.
func ReadGenerations(dir string) ([]evolution.GenerationStats, error) {
	f, err := os.Open(filepath.Join(dir, GenerationsFile))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", GenerationsFile, err)
	}
	defer f.Close()

	var rows []evolution.GenerationStats
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", GenerationsFile, err)
	}
	return rows, nil
}
