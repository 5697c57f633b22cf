package processor

import (
	"context"
	"io"

	"github.com/shpitdev/crime-category-etl/pkg/pipeline/io/local"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/schema"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/worker"
)

// CountByColumn counts rows per value of column, using one shard per worker.
func CountByColumn(ctx context.Context, r io.Reader, contract schema.DatasetContract, column string, workers int) (map[string]int, error) {
	rr, err := local.NewRowReader(r, contract)
	if err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	shards := make([]map[string]int, workers)
	for i := range shards {
		shards[i] = make(map[string]int)
	}
	err = worker.RunSharded(ctx, func(ctx context.Context) (string, struct{}, error) {
		row, _, err := rr.Next(ctx)
		if err != nil {
			return "", struct{}{}, err
		}
		return row[column], struct{}{}, nil
	}, func(_ context.Context, shard int, key string, _ struct{}) error {
		shards[shard][key]++
		return nil
	}, worker.Options{Workers: workers})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int)
	for _, s := range shards {
		for k, v := range s {
			out[k] = v
		}
	}
	return out, nil
}
