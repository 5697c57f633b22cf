package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/shpitdev/crime-category-etl/internal/app"
	"github.com/shpitdev/crime-category-etl/internal/config"
	"github.com/shpitdev/crime-category-etl/internal/logging"
	"github.com/shpitdev/crime-category-etl/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
	case "version":
		_, _ = fmt.Fprintln(os.Stdout, version.Current)
	case "run":
		code = runETL(ctx, os.Args[2:])
	case "verify":
		code = runVerify(os.Args[2:])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		code = 2
	}
	stop()
	os.Exit(code)
}

func runETL(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", os.Getenv(config.EnvConfigFile), "YAML config file (env: "+config.EnvConfigFile+")")
	input := fs.String("input", "", "Input CSV file path (env: INPUT)")
	outputDir := fs.String("output", "", "Output directory for per-category files (env: OUTPUT_DIR, default .outputs)")
	rejectPolicy := fs.String("reject-policy", "", "What to do with malformed rows: fail|skip (env: REJECT_POLICY, default fail)")
	workers := fs.Int("workers", 0, "Category shards; >1 overlaps reading with writing (env: WORKERS, default 1)")
	queueSize := fs.Int("queue-size", 0, "Records buffered per shard (env: QUEUE_SIZE, default 1024)")
	progressInterval := fs.Duration("progress-interval", 0, "Minimum time between progress log lines, 0 disables (env: PROGRESS_INTERVAL, default 5s)")
	metricsFile := fs.String("metrics-file", "", "Write Prometheus metrics to this textfile (env: METRICS_FILE)")
	summaryFile := fs.String("summary-file", "", "Write the ranked summary as JSON to this file (env: SUMMARY_FILE)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input = *input
		case "output":
			cfg.OutputDir = *outputDir
		case "reject-policy":
			cfg.RejectPolicy = *rejectPolicy
		case "workers":
			cfg.Workers = *workers
		case "queue-size":
			cfg.QueueSize = *queueSize
		case "progress-interval":
			cfg.ProgressInterval = *progressInterval
		case "metrics-file":
			cfg.MetricsFile = *metricsFile
		case "summary-file":
			cfg.SummaryFile = *summaryFile
		}
	})
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", err)
		return 2
	}

	logger := logging.New(os.Stderr, fmt.Sprintf("run-%d", time.Now().UnixNano()))
	if _, err := app.Run(ctx, cfg, os.Stdout, logger); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "run failed: %s\n", err)
		return 1
	}
	return 0
}

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	outputDir := fs.String("output", ".outputs", "Output directory produced by run")
	summaryFile := fs.String("summary", "", "Optional summary JSON produced by run --summary-file to compare line counts against")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	counts, err := app.Verify(*outputDir)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "verify failed: %s\n", err)
		return 1
	}
	if *summaryFile != "" {
		sum, err := app.ReadSummaryFile(*summaryFile)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "verify failed: %s\n", err)
			return 1
		}
		if err := app.CompareCounts(counts, sum.Categories); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "verify failed: %s\n", err)
			return 1
		}
	}

	categories := make([]string, 0, len(counts))
	var lines uint64
	for c, n := range counts {
		categories = append(categories, c)
		lines += n
	}
	slices.Sort(categories)
	for _, c := range categories {
		_, _ = fmt.Fprintf(os.Stdout, "%8d  %s\n", counts[c], c)
	}
	_, _ = fmt.Fprintf(os.Stdout, "verified %d category files, %d records\n", len(categories), lines)
	return 0
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `crimeetl: partition a crime incident CSV by primary_type and rank categories

Usage:
  crimeetl <command> [flags]

Commands:
  run      Read the input CSV once, write <primary_type>.txt JSON-lines files, print ranked counts
  verify   Check that every line of every category file belongs to that category
  version  Print the version

Examples:
  crimeetl run --input data/crime.csv --output .outputs
  crimeetl run --config crimeetl.yaml --reject-policy skip --summary-file summary.json
  crimeetl verify --output .outputs --summary summary.json

Environment (run):
  CRIMEETL_CONFIG    YAML config file (keys: input, output_dir, reject_policy, workers,
                     queue_size, progress_interval, metrics_file, summary_file)
  INPUT              Input CSV path
  OUTPUT_DIR         Output directory (default .outputs)
  REJECT_POLICY      fail|skip (default fail)
  WORKERS            Category shards (default 1)
  QUEUE_SIZE         Records buffered per shard (default 1024)
  PROGRESS_INTERVAL  Progress log interval (default 5s)
  METRICS_FILE       Prometheus textfile output path
  SUMMARY_FILE       JSON summary output path

Precedence: flags > environment > config file > defaults.

`)
}
