package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "models/scrfd_10g.onnx", cfg.Models.Detector)
	assert.Equal(t, "models/arcface.onnx", cfg.Models.Recognizer)
	assert.InDelta(t, 0.5, cfg.Detection.ScoreThreshold, 1e-6)
	assert.Equal(t, 0, cfg.Detection.MaxFaces)
	assert.False(t, cfg.Logging.Development)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
models:
  detector: /opt/models/det.onnx
  recognizer: /opt/models/rec.onnx
detection:
  score_threshold: 0.35
  max_faces: 16
logging:
  development: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/models/det.onnx", cfg.Models.Detector)
	assert.Equal(t, "/opt/models/rec.onnx", cfg.Models.Recognizer)
	assert.InDelta(t, 0.35, cfg.Detection.ScoreThreshold, 1e-6)
	assert.Equal(t, 16, cfg.Detection.MaxFaces)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
detection:
  score_threshold: 0.7
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// Unset keys fall back to the defaults.
	assert.Equal(t, "models/scrfd_10g.onnx", cfg.Models.Detector)
	assert.InDelta(t, 0.7, cfg.Detection.ScoreThreshold, 1e-6)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "models: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "threshold one", mutate: func(c *Config) { c.Detection.ScoreThreshold = 1 }, ok: true},
		{name: "empty detector", mutate: func(c *Config) { c.Models.Detector = "" }, ok: false},
		{name: "empty recognizer", mutate: func(c *Config) { c.Models.Recognizer = "" }, ok: false},
		{name: "threshold negative", mutate: func(c *Config) { c.Detection.ScoreThreshold = -0.1 }, ok: false},
		{name: "threshold above one", mutate: func(c *Config) { c.Detection.ScoreThreshold = 1.5 }, ok: false},
		{name: "negative max faces", mutate: func(c *Config) { c.Detection.MaxFaces = -1 }, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
