package config

import (
	"bytes"
	"fmt"
	"os"

	"go.uber.org/multierr"
	yaml "gopkg.in/yaml.v3"

	"styleinspect/internal/css"
)

// Config holds configuration options for stylesheet inspection
type Config struct {
	// Specificity selects how rule specificity is compared: "weighted"
	// (a*100 + b*10 + c) or "tuple" (lexicographic).
	Specificity string `yaml:"specificity"`

	// IDFastPath resolves a left-most #id selector part through the id index
	IDFastPath bool `yaml:"id_fast_path"`

	// BaseDir resolves relative stylesheet hrefs of the inspected document
	BaseDir string `yaml:"base_dir,omitempty"`

	// MaxImportDepth bounds @import nesting
	MaxImportDepth int `yaml:"max_import_depth"`

	// InlineStyle adds the element's style attribute to computed styles
	InlineStyle bool `yaml:"inline_style"`

	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Specificity:    css.SpecificityWeighted.String(),
		IDFastPath:     true,
		MaxImportDepth: 8,
		InlineStyle:    true,
		Logging: LoggingConfig{
			ConsoleLogger: LoggerConfig{Level: "normal"},
			FileLogger:    LoggerConfig{Level: "none"},
		},
	}
}

// Load reads the configuration at path on top of the defaults. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return &cfg, nil
}

// Unmarshal decodes data over cfg and validates the result. Unknown keys are
// rejected.
func Unmarshal(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode configuration data: %w", err)
	}
	return cfg.Validate()
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs error
	if _, err := css.ParseSpecificityMode(c.Specificity); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.MaxImportDepth < 0 {
		errs = multierr.Append(errs, fmt.Errorf("max_import_depth must not be negative, got %d", c.MaxImportDepth))
	}
	if c.BaseDir != "" {
		if fi, err := os.Stat(c.BaseDir); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("base_dir: %w", err))
		} else if !fi.IsDir() {
			errs = multierr.Append(errs, fmt.Errorf("base_dir %q is not a directory", c.BaseDir))
		}
	}
	errs = multierr.Append(errs, c.Logging.validate())
	return errs
}

// SpecificityMode returns the parsed specificity comparison, falling back to
// weighted for values Validate would reject.
func (c *Config) SpecificityMode() css.SpecificityMode {
	mode, err := css.ParseSpecificityMode(c.Specificity)
	if err != nil {
		return css.SpecificityWeighted
	}
	return mode
}

// Dump renders cfg as YAML.
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}
