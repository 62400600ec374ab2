// YAML config loader with CUE validation
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// History configures optional telemetry history sinks.
type History struct {
	File             string `yaml:"file"`
	SQLite           string `yaml:"sqlite"`
	GreptimeEndpoint string `yaml:"greptime_endpoint"`
	GreptimeDatabase string `yaml:"greptime_database"`
	GreptimeTable    string `yaml:"greptime_table"`
}

// Config is the optional client configuration file. Command-line flags
// override any value set here; the persisted preference store overrides the
// address when the operator saved one.
type Config struct {
	Address      string  `yaml:"address"`
	Speed        int     `yaml:"speed"`
	PollInterval string  `yaml:"poll_interval"`
	History      History `yaml:"history"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Speed:        128,
		PollInterval: "1s",
		History: History{
			GreptimeDatabase: "public",
		},
	}
}

// Load reads and validates a YAML config file. Unset fields fall back to
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validate(path, data); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if _, err := cfg.Poll(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Poll parses the poll interval.
func (c *Config) Poll() (time.Duration, error) {
	if c.PollInterval == "" {
		return time.Second, nil
	}
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_interval %q: %w", c.PollInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("poll_interval must be positive, got %q", c.PollInterval)
	}
	return d, nil
}

// validate checks the YAML document against the embedded CUE schema.
func validate(filename string, data []byte) error {
	ctx := cuecontext.New()

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("cannot parse config: %w", err)
	}
	configVal := ctx.BuildFile(file)
	if err := configVal.Err(); err != nil {
		return fmt.Errorf("cannot build config value: %w", err)
	}

	schemaVal := ctx.CompileBytes(schemaSource)
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("cannot compile schema: %w", err)
	}

	if err := schemaVal.Subsume(configVal, cue.Final()); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
