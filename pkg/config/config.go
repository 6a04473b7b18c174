package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/falk/agbsave-go/pkg/fs"
	"github.com/falk/agbsave-go/pkg/mac"
)

// Config holds the tool's settings. Zero fields take the defaults.
type Config struct {
	KeysFile       string  `yaml:"keys_file"`
	LogLevel       string  `yaml:"log_level"`
	OracleAttempts int     `yaml:"oracle_attempts"`
	SidecarSuffix  string  `yaml:"sidecar_suffix"`
	Archive        Archive `yaml:"archive"`
}

// Archive configures backup archives.
type Archive struct {
	Method string `yaml:"method"`
	Level  int    `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:       "info",
		OracleAttempts: mac.DefaultAttempts,
		SidecarSuffix:  fs.DefaultSidecarSuffix,
		Archive: Archive{
			Method: fs.MethodDeflate,
			Level:  6,
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.OracleAttempts < 1 {
		return fmt.Errorf("oracle_attempts must be at least 1, got %d", c.OracleAttempts)
	}
	switch c.Archive.Method {
	case fs.MethodDeflate:
		if c.Archive.Level < -2 || c.Archive.Level > 9 {
			return fmt.Errorf("deflate level must be between -2 and 9, got %d", c.Archive.Level)
		}
	case fs.MethodZstd:
		if c.Archive.Level < 1 || c.Archive.Level > 22 {
			return fmt.Errorf("zstd level must be between 1 and 22, got %d", c.Archive.Level)
		}
	default:
		return fmt.Errorf("unknown archive method %q", c.Archive.Method)
	}
	return nil
}
