package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/SBRGA/internal/evolution"
)

// Painting holds the default run parameters; requests may override them.
type Painting struct {
	StrokeNum           int     `env:"PAINT_STROKE_NUM" envDefault:"10000" yaml:"stroke_num"`
	StrokeThickness     float64 `env:"PAINT_STROKE_THICKNESS" envDefault:"1.0" yaml:"stroke_thickness"`
	PopulationSize      int     `env:"PAINT_POPULATION_SIZE" envDefault:"250" yaml:"population_size"`
	Generations         int     `env:"PAINT_GENERATIONS" envDefault:"100" yaml:"generations"`
	CrossoverBias       float64 `env:"PAINT_CROSSOVER_BIAS" envDefault:"50" yaml:"crossover_bias"`
	MutationProbability float64 `env:"PAINT_MUTATION_PROBABILITY" envDefault:"0.35" yaml:"mutation_probability"`
	StagnationLimit     int     `env:"PAINT_STAGNATION_LIMIT" envDefault:"50" yaml:"stagnation_limit"`
	StagnationRecovery  int     `env:"PAINT_STAGNATION_RECOVERY" envDefault:"25" yaml:"stagnation_recovery"`
	Strategy            string  `env:"PAINT_STRATEGY" envDefault:"merge-truncate" yaml:"strategy"`
	EliteFraction       float64 `env:"PAINT_ELITE_FRACTION" envDefault:"0.5" yaml:"elite_fraction"`
	AlphaWeight         float64 `env:"PAINT_ALPHA_WEIGHT" envDefault:"500" yaml:"alpha_weight"`
	Workers             int     `env:"PAINT_WORKERS" envDefault:"0" yaml:"workers"`
}

// Evolution returns the engine configuration for these defaults.
func (p Painting) Evolution() evolution.Config {
	c := evolution.DefaultConfig()
	c.StrokeNum = p.StrokeNum
	c.StrokeThickness = p.StrokeThickness
	c.PopulationSize = p.PopulationSize
	c.Generations = p.Generations
	c.CrossoverBias = p.CrossoverBias
	c.MutationProbability = p.MutationProbability
	c.StagnationLimit = p.StagnationLimit
	c.StagnationRecovery = p.StagnationRecovery
	c.Strategy = p.Strategy
	c.EliteFraction = p.EliteFraction
	c.AlphaWeight = p.AlphaWeight
	c.Workers = p.Workers
	return c
}

// LoadPainting parses only the painting defaults from the environment.
func LoadPainting() (Painting, error) {
	var p Painting
	err := env.Parse(&p)
	return p, err
}

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Database struct {
		DSN string `env:"DB_DSN"`
	}
	Output struct {
		Dir string `env:"OUTPUT_DIR" envDefault:"data/runs"`
	}
	Painting Painting
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	if cfg.Database.DSN == "" {
		if err := os.MkdirAll("data", 0755); err != nil {
			return nil, err
		}
		cfg.Database.DSN = "file:" + filepath.Join("data", "sbrga.db")
	}

	return cfg, nil
}

// GetEnv returns the value of the environment variable or the default value
func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt returns the value of the environment variable as int or the default value
func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := GetEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// GetEnvAsFloat returns the value of the environment variable as float64 or the default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := strings.TrimSpace(GetEnv(key, ""))
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
