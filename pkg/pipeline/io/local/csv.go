package local

import (
	"context"
	"encoding/csv"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/shpitdev/crime-category-etl/pkg/pipeline/core"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/schema"
)

// RowReader streams rows of a delimited file with a header row. It holds at most one
// row in memory at a time.
type RowReader struct {
	cr      *csv.Reader
	index   map[string]int
	columns []string
	line    int
}

// NewRowReader reads the header from r and checks it against contract.
func NewRowReader(r io.Reader, contract schema.DatasetContract) (*RowReader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.New("read header: empty input")
		}
		return nil, errors.Wrap(err, "read header")
	}
	index, err := contract.IndexHeader(header)
	if err != nil {
		return nil, errors.Wrap(err, "check header")
	}
	return &RowReader{
		cr:      cr,
		index:   index,
		columns: contract.Columns(),
	}, nil
}

// Next returns the next row in file order, or io.EOF.
//
// Columns absent from a short row are absent from the returned RawRow. A row the CSV
// parser cannot tokenize is reported as a *core.MalformedRecordError so the caller's
// reject policy applies to it; the reader stays usable afterwards.
func (r *RowReader) Next(ctx context.Context) (core.RawRow, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, r.line, err
	}
	rec, err := r.cr.Read()
	if err == io.EOF {
		return nil, r.line, io.EOF
	}
	r.line++
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, r.line, &core.MalformedRecordError{Row: r.line, Reason: "unparseable row", Err: pe.Err}
		}
		return nil, r.line, &core.SourceUnavailableError{Err: errors.Wrapf(err, "read row %d", r.line)}
	}

	row := make(core.RawRow, len(r.columns))
	for _, col := range r.columns {
		i := r.index[col]
		if i < len(rec) {
			row[col] = rec[i]
		}
	}
	return row, r.line, nil
}

// Line returns the number of data rows read so far.
func (r *RowReader) Line() int {
	return r.line
}

// FileSource is a RowReader over an opened file.
type FileSource struct {
	*RowReader
	f *os.File
}

// OpenFile opens path for a sequential scan. Any failure to open the file or read a
// valid header is a *core.SourceUnavailableError.
func OpenFile(path string, contract schema.DatasetContract) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &core.SourceUnavailableError{Path: path, Err: err}
	}
	rr, err := NewRowReader(f, contract)
	if err != nil {
		_ = f.Close()
		return nil, &core.SourceUnavailableError{Path: path, Err: err}
	}
	return &FileSource{RowReader: rr, f: f}, nil
}

func (s *FileSource) Close() error {
	return s.f.Close()
}
