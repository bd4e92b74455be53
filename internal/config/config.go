// Package config loads the YAML configuration for the facekit tools.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for the face indexing tools.
type Config struct {
	Models    Models    `yaml:"models"`
	Detection Detection `yaml:"detection"`
	Logging   Logging   `yaml:"logging"`
}

// Models names the ONNX model files.
type Models struct {
	Detector   string `yaml:"detector"`
	Recognizer string `yaml:"recognizer"`
}

// Detection holds detector tuning.
type Detection struct {
	// ScoreThreshold is the minimum detection confidence in [0,1].
	ScoreThreshold float32 `yaml:"score_threshold"`
	// MaxFaces caps faces per photo by box area; 0 means unlimited.
	MaxFaces int `yaml:"max_faces"`
}

// Logging selects the logger mode.
type Logging struct {
	Development bool `yaml:"development"`
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Models: Models{
			Detector:   "models/scrfd_10g.onnx",
			Recognizer: "models/arcface.onnx",
		},
		Detection: Detection{
			ScoreThreshold: 0.5,
		},
	}
}

// Load reads a YAML config file over the defaults and validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.Models.Detector == "" {
		return fmt.Errorf("models.detector is required")
	}
	if c.Models.Recognizer == "" {
		return fmt.Errorf("models.recognizer is required")
	}
	if c.Detection.ScoreThreshold < 0 || c.Detection.ScoreThreshold > 1 {
		return fmt.Errorf("detection.score_threshold must be in [0,1], got %g", c.Detection.ScoreThreshold)
	}
	if c.Detection.MaxFaces < 0 {
		return fmt.Errorf("detection.max_faces must not be negative, got %d", c.Detection.MaxFaces)
	}
	return nil
}
