package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config must validate, got %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tile size", func(c *Config) { c.Slide.TileWidth = 0 }},
		{"unknown backend", func(c *Config) { c.Classifier.Backend = "magic" }},
		{"band mismatch", func(c *Config) { c.Classifier.Cutpoints = []float64{10, 20} }},
		{"ollama without model", func(c *Config) { c.Classifier.Backend = "ollama" }},
		{"zero downsample", func(c *Config) { c.Classifier.Downsample = 0 }},
		{"negative workers", func(c *Config) { c.Executor.Workers = -1 }},
		{"negative min area", func(c *Config) { c.Assembly.MinAreaPixels = -1 }},
		{"unknown format", func(c *Config) { c.Output.Format = "xml" }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Classifier.Backend = "ollama"
	cfg.Classifier.Model = "llava"
	cfg.Assembly.MinAreaPixels = 250

	path := filepath.Join(t.TempDir(), "config.json")
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Classifier.Model != "llava" || loaded.Assembly.MinAreaPixels != 250 {
		t.Errorf("round trip lost values: %+v", loaded)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("loaded config must validate, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.json"); err == nil {
		t.Error("expected error for missing file")
	}
}
