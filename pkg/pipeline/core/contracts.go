package core

import "context"

// RawRow is one input row keyed by column name, exactly as read from the source.
type RawRow map[string]string

// Get returns the column value and whether the column was present in the row.
func (r RawRow) Get(col string) (string, bool) {
	v, ok := r[col]
	return v, ok
}

// RowSource yields input rows in file order.
//
// Next returns io.EOF once the source is exhausted. Line is the 1-based data row
// number (the header is not counted).
type RowSource interface {
	Next(ctx context.Context) (row RawRow, line int, err error)
}

// RowSourceFunc adapts a function to the RowSource interface.
type RowSourceFunc func(ctx context.Context) (RawRow, int, error)

func (f RowSourceFunc) Next(ctx context.Context) (RawRow, int, error) {
	return f(ctx)
}
