// Package etl drives one pass over the input: decode every row, route each record to
// its category file, count it, and rank the counts.
package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/shpitdev/crime-category-etl/internal/aggregate"
	"github.com/shpitdev/crime-category-etl/internal/logging"
	"github.com/shpitdev/crime-category-etl/internal/metrics"
	"github.com/shpitdev/crime-category-etl/internal/partition"
	"github.com/shpitdev/crime-category-etl/internal/record"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/core"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/schema"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/worker"
)

type Options struct {
	OutputDir    string
	RejectPolicy schema.RejectPolicy

	// Workers > 1 runs the staged variant: one reader task feeding Workers consumers
	// that each own a disjoint set of categories.
	Workers   int
	QueueSize int

	// ProgressInterval is the minimum time between progress log lines. <=0 disables them.
	ProgressInterval time.Duration

	Logger  logging.Logger
	Metrics *metrics.Run
}

func (o Options) withDefaults() Options {
	if o.OutputDir == "" {
		o.OutputDir = ".outputs"
	}
	if o.RejectPolicy == "" {
		o.RejectPolicy = schema.RejectPolicyFail
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.Logger == nil {
		o.Logger = logging.Nop
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	return o
}

// Summary is the result of a completed pass.
type Summary struct {
	// Categories is ranked by total descending, then category name ascending.
	Categories []aggregate.CategoryAggregate `json:"categories"`
	Rows       uint64                        `json:"rows"`
	Accepted   uint64                        `json:"accepted"`
	Rejected   uint64                        `json:"rejected"`
	Elapsed    time.Duration                 `json:"-"`
}

// Run performs one pass over src.
//
// On success every category file has been committed to opts.OutputDir. If ctx is
// cancelled the pass stops after the current row, the records written so far are
// committed as complete lines, and ctx's error is returned without a summary. On any
// other error no category file is left behind and no summary is returned.
func Run(ctx context.Context, src core.RowSource, opts Options) (Summary, error) {
	opts = opts.withDefaults()
	start := time.Now()

	d := &driver{
		src:      src,
		opts:     opts,
		progress: rate.Sometimes{Interval: opts.ProgressInterval},
	}

	pool := partition.NewPool(opts.OutputDir)
	committed := false
	defer func() {
		if !committed {
			if err := pool.Abort(); err != nil {
				opts.Logger.Warnf("discard partial output: %v", err)
			}
		}
	}()

	var (
		snapshot []aggregate.CategoryAggregate
		err      error
	)
	if opts.Workers == 1 {
		snapshot, err = d.sequential(ctx, pool)
	} else {
		snapshot, err = d.staged(ctx, pool)
	}
	if err != nil {
		if cerr := ctx.Err(); cerr != nil && errors.Is(err, cerr) {
			committed = true
			if err := pool.Commit(); err != nil {
				return Summary{}, errors.Join(cerr, err)
			}
			opts.Logger.Warnf("pass cancelled after %d rows; kept %d categories written so far", d.rows, len(pool.Categories()))
		}
		return Summary{}, err
	}

	if err := pool.Commit(); err != nil {
		return Summary{}, err
	}
	committed = true

	for _, agg := range snapshot {
		c, err := opts.Metrics.RecordsWritten.GetMetricWithLabelValues(agg.Category)
		if err != nil {
			opts.Logger.Warnf("records_written metric for %q: %v", agg.Category, err)
			continue
		}
		c.Add(float64(agg.Total()))
	}
	opts.Metrics.Categories.Set(float64(len(snapshot)))

	return Summary{
		Categories: aggregate.Rank(snapshot),
		Rows:       d.rows,
		Accepted:   d.accepted,
		Rejected:   d.rejected,
		Elapsed:    time.Since(start),
	}, nil
}

type driver struct {
	src      core.RowSource
	opts     Options
	progress rate.Sometimes

	rows     uint64
	accepted uint64
	rejected uint64
}

// next returns the next decoded record, applying the reject policy to rows that fail
// decoding. It returns io.EOF at the end of the input.
func (d *driver) next(ctx context.Context) (record.Record, error) {
	for {
		if err := ctx.Err(); err != nil {
			return record.Record{}, err
		}
		row, line, err := d.src.Next(ctx)
		if err == io.EOF {
			return record.Record{}, io.EOF
		}
		var rec record.Record
		if err == nil {
			rec, err = record.Decode(row)
		}
		var mre *core.MalformedRecordError
		if err != nil && !errors.As(err, &mre) {
			return record.Record{}, err
		}
		d.rows++
		d.opts.Metrics.RowsRead.Inc()
		if mre != nil {
			if mre.Row == 0 {
				mre.Row = line
			}
			if d.opts.RejectPolicy != schema.RejectPolicySkip {
				return record.Record{}, err
			}
			d.rejected++
			d.opts.Metrics.RowsRejected.Inc()
			d.opts.Logger.Warnf("skipping row: %v", err)
			continue
		}

		d.accepted++
		if d.opts.ProgressInterval > 0 {
			d.progress.Do(func() {
				d.opts.Logger.Infof("progress: rows=%d accepted=%d rejected=%d", d.rows, d.accepted, d.rejected)
			})
		}
		return rec, nil
	}
}

func (d *driver) sequential(ctx context.Context, pool *partition.Pool) ([]aggregate.CategoryAggregate, error) {
	agg := aggregate.New()
	for {
		rec, err := d.next(ctx)
		if err == io.EOF {
			return agg.Snapshot(), nil
		}
		if err != nil {
			return nil, err
		}
		if err := pool.Write(rec.PrimaryType, rec); err != nil {
			return nil, err
		}
		agg.Record(rec.PrimaryType, rec.Arrest)
	}
}

func (d *driver) staged(ctx context.Context, pool *partition.Pool) ([]aggregate.CategoryAggregate, error) {
	aggs := make([]*aggregate.Aggregator, d.opts.Workers)
	for i := range aggs {
		aggs[i] = aggregate.New()
	}

	err := worker.RunSharded(ctx,
		func(ctx context.Context) (string, record.Record, error) {
			rec, err := d.next(ctx)
			return rec.PrimaryType, rec, err
		},
		func(_ context.Context, shard int, category string, rec record.Record) error {
			if err := pool.Write(category, rec); err != nil {
				return err
			}
			aggs[shard].Record(category, rec.Arrest)
			return nil
		},
		worker.Options{Workers: d.opts.Workers, QueueSize: d.opts.QueueSize},
	)
	if err != nil {
		return nil, err
	}

	snapshots := make([][]aggregate.CategoryAggregate, len(aggs))
	for i, a := range aggs {
		snapshots[i] = a.Snapshot()
	}
	merged, err := aggregate.Merge(snapshots...)
	if err != nil {
		return nil, fmt.Errorf("merge shard counts: %w", err)
	}
	return merged, nil
}
