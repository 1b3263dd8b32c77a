package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	OutputBucket string  `yaml:"output_bucket"`
	OutputPath   string  `yaml:"output_path"`
	JobDir       string  `yaml:"job_dir"`
	DataDir      string  `yaml:"data_dir"`
	BatchSize    int     `yaml:"batch_size"`
	Epochs       int     `yaml:"epochs"`
	Seed         int64   `yaml:"seed"`
	LearningRate float64 `yaml:"learning_rate"`
	HiddenUnits  int     `yaml:"hidden_units"`
	LogLevel     string  `yaml:"log_level"`
	LogFormat    string  `yaml:"log_format"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	OutputBucket string
	OutputPath   string
	JobDir       string
	DataDir      string
	BatchSize    int
	Epochs       int
	Seed         int64
	LearningRate float64
	HiddenUnits  int
	LogLevel     string
	LogFormat    string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		JobDir:       ".",
		DataDir:      "data/mnist",
		BatchSize:    64,
		Epochs:       30,
		Seed:         1,
		LearningRate: 0.001,
		HiddenUnits:  128,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load reads a Config from a YAML file, starting from the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.OutputBucket != "" {
		c.OutputBucket = o.OutputBucket
	}
	if o.OutputPath != "" {
		c.OutputPath = o.OutputPath
	}
	if o.JobDir != "" {
		c.JobDir = o.JobDir
	}
	if o.DataDir != "" {
		c.DataDir = o.DataDir
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.HiddenUnits > 0 {
		c.HiddenUnits = o.HiddenUnits
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		c.LogFormat = o.LogFormat
	}
}

// Validate verifies the config is runnable. It runs before any data is
// fetched so a missing bucket or path fails immediately.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.OutputBucket == "" {
		return errors.New("output bucket is required")
	}
	if c.OutputPath == "" {
		return errors.New("output path is required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.Epochs <= 0 {
		return fmt.Errorf("epochs must be > 0 (got %d)", c.Epochs)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", c.LearningRate)
	}
	if c.HiddenUnits <= 0 {
		return fmt.Errorf("hidden_units must be > 0 (got %d)", c.HiddenUnits)
	}
	if c.JobDir == "" {
		c.JobDir = "."
	}
	if c.DataDir == "" {
		c.DataDir = "data/mnist"
	}
	return nil
}
