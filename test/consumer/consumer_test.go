package consumer

import (
	"context"
	"strings"
	"testing"

	"github.com/shpitdev/crime-category-etl/pkg/pipeline/core"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/io/local"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/schema"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/worker"
)

func TestPublicPackagesCompile(t *testing.T) {
	t.Parallel()

	_ = core.RawRow{}
	_ = &core.MalformedRecordError{}
	if _, err := schema.ParseRejectPolicy("skip"); err != nil {
		t.Fatalf("ParseRejectPolicy failed: %v", err)
	}

	header := strings.Join(schema.CrimeRecords.Columns(), ",") + "\n"
	rr, err := local.NewRowReader(strings.NewReader(header), schema.CrimeRecords)
	if err != nil {
		t.Fatalf("NewRowReader failed: %v", err)
	}

	err = worker.RunSharded(context.Background(), func(ctx context.Context) (string, core.RawRow, error) {
		row, _, err := rr.Next(ctx)
		if err != nil {
			return "", nil, err
		}
		return row["primary_type"], row, nil
	}, func(context.Context, int, string, core.RawRow) error {
		t.Fatalf("unexpected row")
		return nil
	}, worker.Options{Workers: 1})
	if err != nil {
		t.Fatalf("RunSharded failed: %v", err)
	}
}
