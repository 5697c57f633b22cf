// Package aggregate counts records per category, split by the arrest flag, and ranks
// the resulting counts.
package aggregate

import (
	"cmp"
	"fmt"
	"slices"
)

// CategoryAggregate holds the flag-split counts for one category.
type CategoryAggregate struct {
	Category   string `json:"primary_type"`
	TrueCount  uint64 `json:"arrest_count"`
	FalseCount uint64 `json:"non_arrest_count"`
}

// Total is the number of records counted for the category.
func (a CategoryAggregate) Total() uint64 {
	return a.TrueCount + a.FalseCount
}

// Aggregator owns the per-category counters for one pass. It is not safe for
// concurrent use; each consumer owns its own Aggregator.
type Aggregator struct {
	index map[string]int
	aggs  []CategoryAggregate
}

func New() *Aggregator {
	return &Aggregator{index: make(map[string]int)}
}

// Record counts one record for category.
func (a *Aggregator) Record(category string, flag bool) {
	i, ok := a.index[category]
	if !ok {
		i = len(a.aggs)
		a.index[category] = i
		a.aggs = append(a.aggs, CategoryAggregate{Category: category})
	}
	if flag {
		a.aggs[i].TrueCount++
	} else {
		a.aggs[i].FalseCount++
	}
}

// Len returns the number of distinct categories seen.
func (a *Aggregator) Len() int {
	return len(a.aggs)
}

// Snapshot returns a copy of the counters in first-seen order.
func (a *Aggregator) Snapshot() []CategoryAggregate {
	return slices.Clone(a.aggs)
}

// Merge concatenates snapshots taken from aggregators that owned disjoint categories.
func Merge(snapshots ...[]CategoryAggregate) ([]CategoryAggregate, error) {
	seen := make(map[string]struct{})
	var out []CategoryAggregate
	for _, snap := range snapshots {
		for _, agg := range snap {
			if _, dup := seen[agg.Category]; dup {
				return nil, fmt.Errorf("category %q counted by more than one aggregator", agg.Category)
			}
			seen[agg.Category] = struct{}{}
			out = append(out, agg)
		}
	}
	return out, nil
}

// Rank orders aggregates by total descending. Equal totals are ordered by category
// name ascending, compared bytewise. The input is not modified.
func Rank(snapshot []CategoryAggregate) []CategoryAggregate {
	out := slices.Clone(snapshot)
	slices.SortFunc(out, func(a, b CategoryAggregate) int {
		if c := cmp.Compare(b.Total(), a.Total()); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return out
}
