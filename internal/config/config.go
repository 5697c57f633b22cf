// Package config resolves run settings from defaults, an optional YAML file and
// environment variables. Command-line flags are applied on top by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shpitdev/crime-category-etl/pkg/pipeline/schema"
)

// EnvConfigFile names the environment variable holding the YAML config path.
const EnvConfigFile = "CRIMEETL_CONFIG"

type Config struct {
	Input            string        `yaml:"input"`
	OutputDir        string        `yaml:"output_dir"`
	RejectPolicy     string        `yaml:"reject_policy"`
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queue_size"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
	MetricsFile      string        `yaml:"metrics_file"`
	SummaryFile      string        `yaml:"summary_file"`
}

func Default() Config {
	return Config{
		OutputDir:        ".outputs",
		RejectPolicy:     string(schema.RejectPolicyFail),
		Workers:          1,
		QueueSize:        1024,
		ProgressInterval: 5 * time.Second,
	}
}

// Load returns Default overlaid with the YAML file at path (if non-empty) and then
// with environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	var err error
	c.Input = envString("INPUT", c.Input)
	c.OutputDir = envString("OUTPUT_DIR", c.OutputDir)
	c.RejectPolicy = envString("REJECT_POLICY", c.RejectPolicy)
	c.MetricsFile = envString("METRICS_FILE", c.MetricsFile)
	c.SummaryFile = envString("SUMMARY_FILE", c.SummaryFile)
	if c.Workers, err = envInt("WORKERS", c.Workers); err != nil {
		return err
	}
	if c.QueueSize, err = envInt("QUEUE_SIZE", c.QueueSize); err != nil {
		return err
	}
	if c.ProgressInterval, err = envDuration("PROGRESS_INTERVAL", c.ProgressInterval); err != nil {
		return err
	}
	return nil
}

// Validate checks the resolved configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Input) == "" {
		return errors.New("input path is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return errors.New("output directory is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be >= 1, got %d", c.QueueSize)
	}
	if _, err := schema.ParseRejectPolicy(c.RejectPolicy); err != nil {
		return err
	}
	return nil
}

// Policy returns the parsed reject policy. Call Validate first.
func (c Config) Policy() schema.RejectPolicy {
	p, err := schema.ParseRejectPolicy(c.RejectPolicy)
	if err != nil {
		return schema.RejectPolicyFail
	}
	return p
}

func envString(varName, fallback string) string {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
