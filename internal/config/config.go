package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/sprite-extractor/pkg/export"
	"github.com/menta2k/sprite-extractor/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Grid        types.GridSettings   `json:"grid" yaml:"grid"`
	Auto        types.AutoSettings   `json:"auto" yaml:"auto"`
	Manual      types.ManualSettings `json:"manual" yaml:"manual"`
	Preferences PreferencesConfig    `json:"preferences" yaml:"preferences"`
	Preview     PreviewConfig        `json:"preview" yaml:"preview"`
	Export      export.Options       `json:"export" yaml:"export"`
	Naming      NamingConfig         `json:"naming" yaml:"naming"`
	Logging     LoggingConfig        `json:"logging" yaml:"logging"`
}

// PreferencesConfig holds editor-wide preferences
type PreferencesConfig struct {
	Prefix         string `json:"prefix" yaml:"prefix"`
	Mode           string `json:"mode" yaml:"mode"`
	ShowThumbnails bool   `json:"show_thumbnails" yaml:"show_thumbnails"`
	ThumbnailSize  int    `json:"thumbnail_size" yaml:"thumbnail_size"`
}

// PreviewConfig holds configuration for the AUTO preview scheduler
type PreviewConfig struct {
	DelayMS      int    `json:"delay_ms" yaml:"delay_ms"`
	DiscardStale bool   `json:"discard_stale" yaml:"discard_stale"`
	Engine       string `json:"engine" yaml:"engine"`
}

// NamingConfig holds configuration for model-assisted naming
type NamingConfig struct {
	Backend     string `json:"backend" yaml:"backend"`
	URL         string `json:"url" yaml:"url"`
	Model       string `json:"model" yaml:"model"`
	BatchSize   int    `json:"batch_size" yaml:"batch_size"`
	RateLimitMS int    `json:"rate_limit_ms" yaml:"rate_limit_ms"`
}

// LoggingConfig holds configuration for the console and file log sinks
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level"`
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Grid:   types.DefaultGridSettings(),
		Auto:   types.DefaultAutoSettings(),
		Manual: types.DefaultManualSettings(),
		Preferences: PreferencesConfig{
			Prefix:         types.DefaultPrefix,
			Mode:           string(types.SourceManual),
			ShowThumbnails: true,
			ThumbnailSize:  64,
		},
		Preview: PreviewConfig{
			DelayMS: 300,
			Engine:  "native",
		},
		Export: export.DefaultOptions(),
		Naming: NamingConfig{
			Backend:     "ollama",
			URL:         "http://localhost:11434",
			Model:       "llava",
			BatchSize:   10,
			RateLimitMS: 6000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

func isYAML(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadFromFile loads configuration from a JSON or YAML file. Missing fields
// keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if isYAML(filename) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile saves configuration as JSON, or YAML for .yaml/.yml names
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(filename) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
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
	switch c.Grid.CalculationMode {
	case types.CalcPixel:
		if c.Grid.Width <= 0 || c.Grid.Height <= 0 {
			return fmt.Errorf("grid.width and grid.height must be positive")
		}
	case types.CalcCount:
		if c.Grid.Columns <= 0 || c.Grid.Rows <= 0 {
			return fmt.Errorf("grid.columns and grid.rows must be positive")
		}
	default:
		return fmt.Errorf("grid.calculation_mode must be PIXEL or COUNT")
	}
	if err := validInteraction("grid", c.Grid.InteractionMode); err != nil {
		return err
	}
	if c.Grid.Gap < 0 {
		return fmt.Errorf("grid.gap cannot be negative")
	}

	if c.Auto.Threshold < 1 || c.Auto.Threshold > 254 {
		return fmt.Errorf("auto.threshold must be between 1 and 254")
	}
	if c.Auto.MinArea < 0 {
		return fmt.Errorf("auto.min_area cannot be negative")
	}
	if c.Auto.Margin < 0 {
		return fmt.Errorf("auto.margin cannot be negative")
	}
	if err := validInteraction("auto", c.Auto.InteractionMode); err != nil {
		return err
	}

	if c.Manual.MaintainAspectRatio && (c.Manual.AspectRatioX <= 0 || c.Manual.AspectRatioY <= 0) {
		return fmt.Errorf("manual.aspect_ratio_x and manual.aspect_ratio_y must be positive")
	}

	if strings.TrimSpace(c.Preferences.Prefix) == "" {
		return fmt.Errorf("preferences.prefix cannot be empty")
	}
	if _, err := types.ParseSource(c.Preferences.Mode); err != nil {
		return fmt.Errorf("preferences.mode: %w", err)
	}

	if c.Preview.DelayMS < 0 {
		return fmt.Errorf("preview.delay_ms cannot be negative")
	}

	if _, err := export.ParseFormat(string(c.Export.Format)); err != nil {
		return fmt.Errorf("export.format: %w", err)
	}
	if c.Export.Quality < 1 || c.Export.Quality > 100 {
		return fmt.Errorf("export.quality must be between 1 and 100")
	}
	switch strings.ToLower(c.Export.Manifest) {
	case "", "json", "yaml", "yml":
	default:
		return fmt.Errorf("export.manifest must be json, yaml or empty")
	}

	switch c.Naming.Backend {
	case "ollama", "llamacpp":
	default:
		return fmt.Errorf("naming.backend must be ollama or llamacpp")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error")
	}
	return nil
}

func validInteraction(section string, m types.InteractionMode) error {
	switch m {
	case types.InteractGenerate, types.InteractSelect:
		return nil
	}
	return fmt.Errorf("%s.interaction_mode must be GENERATE or SELECT", section)
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "sprite-extractor", "config.json")
}
