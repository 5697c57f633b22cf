package schema

import (
	"fmt"
	"strings"
)

// RejectPolicy controls what the driver does with rows that fail decoding.
type RejectPolicy string

const (
	// RejectPolicyFail aborts the whole pass on the first malformed row.
	RejectPolicyFail RejectPolicy = "fail"
	// RejectPolicySkip excludes malformed rows from all output and counts them.
	RejectPolicySkip RejectPolicy = "skip"
)

// ParseRejectPolicy normalizes a user-provided policy. Empty means fail.
func ParseRejectPolicy(raw string) (RejectPolicy, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	switch s {
	case "", "fail", "fail-fast", "strict":
		return RejectPolicyFail, nil
	case "skip", "lenient":
		return RejectPolicySkip, nil
	default:
		return "", fmt.Errorf("invalid reject policy %q (expected fail|skip)", raw)
	}
}

// Field types understood by the record decoder. Type selects the conversion and
// Nullable lets an empty or missing column decode as absent.
const (
	TypeString    = "string"
	TypeTimestamp = "timestamp"
	TypeBool      = "bool"
	TypeFloat     = "float"
)

// Field captures the minimal behavior-relevant schema fields.
type Field struct {
	Name     string
	Type     string
	Nullable bool
}

// DatasetContract is the logical schema of the input file.
type DatasetContract struct {
	Fields []Field
}

// Columns returns the field names in contract order.
func (c DatasetContract) Columns() []string {
	out := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		out = append(out, f.Name)
	}
	return out
}

// IndexHeader maps every contract column to its position in header.
//
// Header names are matched after trimming surrounding whitespace. Extra columns are
// ignored; a missing contract column is an error.
func (c DatasetContract) IndexHeader(header []string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}
	index := make(map[string]int, len(c.Fields))
	var missing []string
	for _, f := range c.Fields {
		i, ok := pos[f.Name]
		if !ok {
			missing = append(missing, f.Name)
			continue
		}
		index[f.Name] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required column(s): %s", strings.Join(missing, ", "))
	}
	return index, nil
}

// CrimeRecords is the contract for the crime incident export.
var CrimeRecords = DatasetContract{
	Fields: []Field{
		{Name: "unique_key", Type: TypeString},
		{Name: "case_number", Type: TypeString},
		{Name: "date", Type: TypeTimestamp},
		{Name: "block", Type: TypeString},
		{Name: "primary_type", Type: TypeString},
		{Name: "description", Type: TypeString},
		{Name: "location_description", Type: TypeString},
		{Name: "arrest", Type: TypeBool},
		{Name: "latitude", Type: TypeFloat, Nullable: true},
		{Name: "longitude", Type: TypeFloat, Nullable: true},
	},
}
