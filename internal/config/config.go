package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the application configuration
type Config struct {
	Slide      SlideConfig      `json:"slide"`
	Classifier ClassifierConfig `json:"classifier"`
	Executor   ExecutorConfig   `json:"executor"`
	Assembly   AssemblyConfig   `json:"assembly"`
	Output     OutputConfig     `json:"output"`
}

// SlideConfig holds configuration for slide access
type SlideConfig struct {
	MinLevelSize int `json:"min_level_size"`
	TileWidth    int `json:"tile_width"`
	TileHeight   int `json:"tile_height"`
}

// ClassConfig describes one output class of the classifier
type ClassConfig struct {
	Name    string   `json:"name"`
	Color   [3]uint8 `json:"color,omitempty"`
	Ignored bool     `json:"ignored,omitempty"`
}

// ClassifierConfig selects and configures the classification backend
type ClassifierConfig struct {
	Backend    string        `json:"backend"`
	Downsample float64       `json:"downsample"`
	Classes    []ClassConfig `json:"classes"`
	// Cutpoints apply to the intensity backend
	Cutpoints []float64 `json:"cutpoints,omitempty"`
	// OllamaURL and Model apply to the ollama backend
	OllamaURL string `json:"ollama_url,omitempty"`
	Model     string `json:"model,omitempty"`
}

// ExecutorConfig holds configuration for the tile executor
type ExecutorConfig struct {
	Workers int `json:"workers"`
}

// AssemblyConfig holds configuration for object assembly
type AssemblyConfig struct {
	MinAreaPixels float64 `json:"min_area_pixels"`
	Split         bool    `json:"split"`
	AsAnnotations bool    `json:"as_annotations"`
}

// OutputConfig holds configuration for result output
type OutputConfig struct {
	Format        string `json:"format"`
	OutputDir     string `json:"output_dir"`
	Thumbnail     bool   `json:"thumbnail"`
	ThumbnailSize int    `json:"thumbnail_size"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Slide: SlideConfig{
			MinLevelSize: 256,
			TileWidth:    256,
			TileHeight:   256,
		},
		Classifier: ClassifierConfig{
			Backend:    "intensity",
			Downsample: 1.0,
			Classes: []ClassConfig{
				{Name: "tissue", Color: [3]uint8{200, 50, 50}},
				{Name: "background", Color: [3]uint8{230, 230, 230}, Ignored: true},
			},
			Cutpoints: []float64{220},
			OllamaURL: "http://localhost:11434",
		},
		Executor: ExecutorConfig{
			Workers: 0, // one per CPU
		},
		Assembly: AssemblyConfig{
			MinAreaPixels: 0,
			Split:         false,
			AsAnnotations: false,
		},
		Output: OutputConfig{
			Format:        "json",
			OutputDir:     "./output",
			Thumbnail:     false,
			ThumbnailSize: 512,
		},
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Slide.MinLevelSize < 1 {
		return fmt.Errorf("slide.min_level_size must be positive")
	}

	if c.Slide.TileWidth < 1 || c.Slide.TileHeight < 1 {
		return fmt.Errorf("slide tile size must be positive")
	}

	switch c.Classifier.Backend {
	case "intensity":
		if len(c.Classifier.Classes) != len(c.Classifier.Cutpoints)+1 {
			return fmt.Errorf("classifier needs %d classes for %d cutpoints, has %d",
				len(c.Classifier.Cutpoints)+1, len(c.Classifier.Cutpoints), len(c.Classifier.Classes))
		}
	case "ollama":
		if c.Classifier.OllamaURL == "" {
			return fmt.Errorf("classifier.ollama_url is required for the ollama backend")
		}
		if c.Classifier.Model == "" {
			return fmt.Errorf("classifier.model is required for the ollama backend")
		}
	default:
		return fmt.Errorf("classifier.backend must be intensity or ollama, got %q", c.Classifier.Backend)
	}

	if c.Classifier.Downsample <= 0 {
		return fmt.Errorf("classifier.downsample must be positive")
	}

	if len(c.Classifier.Classes) == 0 {
		return fmt.Errorf("classifier.classes cannot be empty")
	}

	if c.Executor.Workers < 0 {
		return fmt.Errorf("executor.workers cannot be negative")
	}

	if c.Assembly.MinAreaPixels < 0 {
		return fmt.Errorf("assembly.min_area_pixels cannot be negative")
	}

	if c.Output.Format != "json" && c.Output.Format != "wkt" {
		return fmt.Errorf("output.format must be json or wkt, got %q", c.Output.Format)
	}

	if c.Output.Thumbnail && c.Output.ThumbnailSize < 1 {
		return fmt.Errorf("output.thumbnail_size must be positive")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "slide-analyzer", "config.json")
}
