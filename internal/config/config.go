// Package config loads sheetcalc settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full sheetcalc configuration.
type Config struct {
	Grid    GridConfig    `yaml:"grid"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GridConfig bounds the addressable sheet.
type GridConfig struct {
	Rows    int `yaml:"rows" validate:"gt=0"`
	Columns int `yaml:"columns" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// MetricsConfig controls the Prometheus collectors. Addr is only used by
// the repl command; empty disables the endpoint.
type MetricsConfig struct {
	Namespace string `yaml:"namespace" validate:"required"`
	Addr      string `yaml:"addr"`
}

// configValidate reports fields by their YAML path, e.g. grid.rows.
var configValidate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Grid: GridConfig{
			Rows:    10000,
			Columns: 10000,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Namespace: "sheetcalc",
		},
	}
}

// Load reads path on top of the defaults. An empty path returns the
// defaults unchanged. Fields missing from the file keep their default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	err := configValidate.Struct(c)
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, describe(fe))
	}
	return errors.Join(errs...)
}

func describe(fe validator.FieldError) error {
	// Namespace is "Config.grid.rows"; drop the struct name.
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	switch fe.Tag() {
	case "gt":
		return fmt.Errorf("%s must be positive, got %v", field, fe.Value())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "required":
		return fmt.Errorf("%s must not be empty", field)
	default:
		return fmt.Errorf("%s failed %s validation", field, fe.Tag())
	}
}
