package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Weights are the per-signal evidence weights used by the relationship scanner.
type Weights struct {
	ServiceName     float64 `yaml:"service_name"`
	ServiceProvider float64 `yaml:"service_provider"`
	SDKPattern      float64 `yaml:"sdk_pattern"`
	Endpoint        float64 `yaml:"endpoint"`
	EnvVar          float64 `yaml:"env_var"`
	Import          float64 `yaml:"import"`
	PackageName     float64 `yaml:"package_name"`
	ScopedPart      float64 `yaml:"scoped_part"`
}

type Config struct {
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Crawler struct {
		MaxFileSize int64    `yaml:"max_file_size"`
		Ignore      []string `yaml:"ignore"`
	} `yaml:"crawler"`
	Rules struct {
		Path      string `yaml:"path"`       // base rule document, embedded defaults when empty
		PluginDir string `yaml:"plugin_dir"` // *.json documents merged over the base
	} `yaml:"rules"`
	Detection struct {
		Threshold    float64 `yaml:"threshold"`
		Workers      int     `yaml:"workers"`
		WindowBefore int     `yaml:"window_before"`
		WindowAfter  int     `yaml:"window_after"`
		Weights      Weights `yaml:"weights"`
	} `yaml:"detection"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Storage.Path = "repograph.db"
	cfg.Log.Level = "info"
	cfg.Crawler.MaxFileSize = 1 << 20
	cfg.Detection.Threshold = 0.3
	cfg.Detection.Workers = 8
	cfg.Detection.WindowBefore = 50
	cfg.Detection.WindowAfter = 200
	cfg.Detection.Weights = Weights{
		ServiceName:     0.3,
		ServiceProvider: 0.2,
		SDKPattern:      0.4,
		Endpoint:        0.5,
		EnvVar:          0.3,
		Import:          0.6,
		PackageName:     0.4,
		ScopedPart:      0.3,
	}
	return &cfg
}

// LoadConfig reads path over the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if db := os.Getenv("REPOGRAPH_DB"); db != "" {
		cfg.Storage.Path = db
	}
	if level := os.Getenv("REPOGRAPH_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if dir := os.Getenv("REPOGRAPH_RULES_PLUGIN_DIR"); dir != "" {
		cfg.Rules.PluginDir = dir
	}
	if raw := os.Getenv("REPOGRAPH_THRESHOLD"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid REPOGRAPH_THRESHOLD %q: %w", raw, err)
		}
		cfg.Detection.Threshold = t
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the detectors cannot work with.
func (c *Config) Validate() error {
	if c.Detection.Threshold < 0 || c.Detection.Threshold > 1 {
		return fmt.Errorf("detection.threshold must be within [0,1], got %v", c.Detection.Threshold)
	}
	if c.Detection.Workers < 1 {
		c.Detection.Workers = 1
	}
	if c.Detection.WindowBefore < 0 || c.Detection.WindowAfter < 0 {
		return fmt.Errorf("detection windows must not be negative")
	}
	if c.Crawler.MaxFileSize <= 0 {
		return fmt.Errorf("crawler.max_file_size must be positive, got %d", c.Crawler.MaxFileSize)
	}
	return c.Detection.Weights.validate()
}

// validate requires every weight in (0,1]; evidence outside that range is
// never recorded.
func (w Weights) validate() error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"service_name", w.ServiceName},
		{"service_provider", w.ServiceProvider},
		{"sdk_pattern", w.SDKPattern},
		{"endpoint", w.Endpoint},
		{"env_var", w.EnvVar},
		{"import", w.Import},
		{"package_name", w.PackageName},
		{"scoped_part", w.ScopedPart},
	} {
		if f.value <= 0 || f.value > 1 {
			return fmt.Errorf("detection.weights.%s must be within (0,1], got %v", f.name, f.value)
		}
	}
	return nil
}
