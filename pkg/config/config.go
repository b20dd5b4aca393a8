// Package config loads and validates the engine's YAML configuration.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the engine configuration.
type Config struct {
	// DataDir receives flushed segments and, when enabled, the WAL.
	DataDir string `yaml:"data_dir" validate:"required"`
	// PrimaryKey names the record field used as primary key.
	PrimaryKey string `yaml:"primary_key" validate:"required"`
	// Columns is the record schema; must include PrimaryKey.
	Columns []string `yaml:"columns" validate:"required,min=1"`
	// MaxRecords bounds the write buffer.
	MaxRecords int `yaml:"max_records" validate:"gte=0"`
	// BloomFalsePositiveRate sizes segment filters; 0 picks the default.
	BloomFalsePositiveRate float64 `yaml:"bloom_false_positive_rate" validate:"gte=0,lt=1"`
	// EnableWAL turns on the write-ahead log in front of the buffer.
	EnableWAL bool `yaml:"enable_wal"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DataDir:    "data",
		PrimaryKey: "id",
		Columns:    []string{"id"},
		MaxRecords: 50000,
		LogLevel:   "info",
	}
}

// Load reads a YAML config file and validates it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration's constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	found := false
	for _, col := range c.Columns {
		if col == c.PrimaryKey {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("config: primary_key %q is not listed in columns", c.PrimaryKey)
	}
	return nil
}
