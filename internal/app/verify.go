package app

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shpitdev/crime-category-etl/internal/aggregate"
	"github.com/shpitdev/crime-category-etl/internal/partition"
	"github.com/shpitdev/crime-category-etl/internal/record"
)

const maxLineSize = 16 << 20

// Verify checks every category file in dir: each line must decode as a record whose
// primary_type equals the file's category. It returns the line count per category.
func Verify(dir string) (map[string]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read output directory: %w", err)
	}
	counts := make(map[string]uint64)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		category, ok := partition.CategoryFromFileName(e.Name())
		if !ok {
			continue
		}
		n, err := verifyFile(filepath.Join(dir, e.Name()), category)
		if err != nil {
			return nil, err
		}
		counts[category] = n
	}
	return counts, nil
}

func verifyFile(path, category string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	var n uint64
	for sc.Scan() {
		n++
		rec, err := record.ParseLine(sc.Bytes())
		if err != nil {
			return 0, fmt.Errorf("%s line %d: %w", path, n, err)
		}
		if rec.PrimaryType != category {
			return 0, fmt.Errorf("%s line %d: record with primary_type %q does not belong in %q", path, n, rec.PrimaryType, category)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

// CompareCounts checks per-category line counts against a ranked summary.
func CompareCounts(counts map[string]uint64, categories []aggregate.CategoryAggregate) error {
	var problems []string
	expected := make(map[string]uint64, len(categories))
	for _, agg := range categories {
		expected[agg.Category] = agg.Total()
		got, ok := counts[agg.Category]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("%q: missing file, summary total %d", agg.Category, agg.Total()))
		case got != agg.Total():
			problems = append(problems, fmt.Sprintf("%q: %d lines, summary total %d", agg.Category, got, agg.Total()))
		}
	}
	for category, got := range counts {
		if _, ok := expected[category]; !ok {
			problems = append(problems, fmt.Sprintf("%q: %d lines, not in summary", category, got))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return errors.New("output does not match summary: " + strings.Join(problems, "; "))
}
