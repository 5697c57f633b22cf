package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"

	"github.com/shpitdev/crime-category-etl/internal/aggregate"
	"github.com/shpitdev/crime-category-etl/internal/config"
	"github.com/shpitdev/crime-category-etl/internal/etl"
	"github.com/shpitdev/crime-category-etl/internal/logging"
	"github.com/shpitdev/crime-category-etl/internal/metrics"
	localio "github.com/shpitdev/crime-category-etl/pkg/pipeline/io/local"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/schema"
)

// Run executes one pass described by cfg, prints the ranked summary to stdout and
// returns it. Nothing is printed to stdout when the pass fails.
func Run(ctx context.Context, cfg config.Config, stdout io.Writer, logger logging.Logger) (etl.Summary, error) {
	if err := cfg.Validate(); err != nil {
		return etl.Summary{}, err
	}
	if logger == nil {
		logger = logging.Nop
	}
	logger.Infof(
		"run start: input=%s output=%s rejectPolicy=%s workers=%d queueSize=%d",
		cfg.Input,
		cfg.OutputDir,
		cfg.Policy(),
		cfg.Workers,
		cfg.QueueSize,
	)

	src, err := localio.OpenFile(cfg.Input, schema.CrimeRecords)
	if err != nil {
		return etl.Summary{}, err
	}
	defer func() {
		_ = src.Close()
	}()

	m := metrics.New()
	sum, runErr := etl.Run(ctx, src, etl.Options{
		OutputDir:        cfg.OutputDir,
		RejectPolicy:     cfg.Policy(),
		Workers:          cfg.Workers,
		QueueSize:        cfg.QueueSize,
		ProgressInterval: cfg.ProgressInterval,
		Logger:           logger,
		Metrics:          m,
	})
	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warnf("write metrics textfile %s: %v", cfg.MetricsFile, err)
		}
	}
	if runErr != nil {
		logger.Errorf("run failed after %d rows: %v", src.Line(), runErr)
		return etl.Summary{}, runErr
	}

	logger.Infof(
		"run complete: rows=%d accepted=%d rejected=%d categories=%d duration=%s",
		sum.Rows,
		sum.Accepted,
		sum.Rejected,
		len(sum.Categories),
		sum.Elapsed,
	)
	if sum.Rejected > 0 {
		logger.Warnf("%d rows were rejected and excluded from output", sum.Rejected)
	}

	if cfg.SummaryFile != "" {
		if err := WriteSummaryFile(cfg.SummaryFile, sum); err != nil {
			return etl.Summary{}, err
		}
	}
	WriteSummaryTable(stdout, sum.Categories)
	return sum, nil
}

// WriteSummaryTable renders the ranked categories as a table.
func WriteSummaryTable(w io.Writer, categories []aggregate.CategoryAggregate) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row{"primary_type", "arrest_count", "non_arrest_count", "total"})
	for _, agg := range categories {
		t.AppendRow(table.Row{agg.Category, agg.TrueCount, agg.FalseCount, agg.Total()})
	}
	t.Render()
}

// WriteSummaryFile writes sum as indented JSON.
func WriteSummaryFile(path string, sum etl.Summary) error {
	b, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write summary file: %w", err)
	}
	return nil
}

// ReadSummaryFile reads a summary written by WriteSummaryFile.
func ReadSummaryFile(path string) (etl.Summary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return etl.Summary{}, fmt.Errorf("read summary file: %w", err)
	}
	var sum etl.Summary
	if err := json.Unmarshal(b, &sum); err != nil {
		return etl.Summary{}, fmt.Errorf("parse summary file %s: %w", path, err)
	}
	return sum, nil
}
