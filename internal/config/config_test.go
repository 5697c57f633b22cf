package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/shpitdev/crime-category-etl/internal/config"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/schema"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"INPUT", "OUTPUT_DIR", "REJECT_POLICY", "WORKERS", "QUEUE_SIZE", "PROGRESS_INTERVAL", "METRICS_FILE", "SUMMARY_FILE"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "crimeetl.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	got, err := config.Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(config.Default(), got); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
	if got.Policy() != schema.RejectPolicyFail {
		t.Fatalf("expected fail policy by default, got %q", got.Policy())
	}
}

func TestLoadLayers(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
input: data/crime.csv
output_dir: out
reject_policy: skip
workers: 4
progress_interval: 30s
`)
	t.Setenv("WORKERS", "8")
	t.Setenv("SUMMARY_FILE", "summary.json")

	got, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := config.Config{
		Input:            "data/crime.csv",
		OutputDir:        "out",
		RejectPolicy:     "skip",
		Workers:          8,
		QueueSize:        1024,
		ProgressInterval: 30 * time.Second,
		SummaryFile:      "summary.json",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("unknown yaml key", func(t *testing.T) {
		clearEnv(t)
		if _, err := config.Load(writeFile(t, "wokers: 3\n")); err == nil {
			t.Fatalf("expected error")
		}
	})
	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Fatalf("expected error")
		}
	})
	t.Run("bad env int", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("QUEUE_SIZE", "lots")
		if _, err := config.Load(""); err == nil {
			t.Fatalf("expected error")
		}
	})
	t.Run("bad env duration", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PROGRESS_INTERVAL", "soon")
		if _, err := config.Load(""); err == nil {
			t.Fatalf("expected error")
		}
	})
	t.Run("empty file is fine", func(t *testing.T) {
		clearEnv(t)
		if _, err := config.Load(writeFile(t, "")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	base := config.Default()
	base.Input = "data/crime.csv"

	tests := []struct {
		name string
		edit func(*config.Config)
	}{
		{name: "no input", edit: func(c *config.Config) { c.Input = " " }},
		{name: "no output", edit: func(c *config.Config) { c.OutputDir = "" }},
		{name: "zero workers", edit: func(c *config.Config) { c.Workers = 0 }},
		{name: "zero queue", edit: func(c *config.Config) { c.QueueSize = 0 }},
		{name: "bad policy", edit: func(c *config.Config) { c.RejectPolicy = "ignore" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.edit(&c)
			if err := c.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
