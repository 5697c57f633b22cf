package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shpitdev/crime-category-etl/pkg/pipeline/core"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/schema"
)

// TimestampLayout is the fixed textual timestamp format used both for input and for
// the serialized output lines: "YYYY-MM-DD HH:MM:SS <zone>".
const TimestampLayout = "2006-01-02 15:04:05 MST"

// Record is one validated crime incident. Records are values and are not mutated
// after Decode returns.
type Record struct {
	UniqueKey           string
	CaseNumber          string
	Date                time.Time
	Block               string
	PrimaryType         string
	Description         string
	LocationDescription string
	Arrest              bool
	Latitude            *float64
	Longitude           *float64
}

// Decode validates row against schema.CrimeRecords and converts it to a Record.
//
// Every column must hold valid UTF-8. Non-nullable columns must be present and
// non-empty; an empty nullable column decodes as absent. Failures are returned as
// *core.MalformedRecordError naming the offending column. Decode has no side effects.
func Decode(row core.RawRow) (Record, error) {
	var rec Record
	for _, f := range schema.CrimeRecords.Fields {
		v, ok := row.Get(f.Name)
		if !utf8.ValidString(v) {
			return Record{}, &core.MalformedRecordError{Field: f.Name, Reason: "invalid UTF-8"}
		}
		if v == "" {
			if f.Nullable {
				continue
			}
			if !ok {
				return Record{}, &core.MalformedRecordError{Field: f.Name, Reason: "missing required field"}
			}
			return Record{}, &core.MalformedRecordError{Field: f.Name, Reason: "empty required field"}
		}
		if err := rec.set(f, v); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

// set converts raw according to f.Type and stores it in the field named f.Name.
func (r *Record) set(f schema.Field, raw string) error {
	switch f.Type {
	case schema.TypeString:
		if dst := r.text(f.Name); dst != nil {
			*dst = raw
			return nil
		}
	case schema.TypeTimestamp:
		t, err := ParseTimestamp(raw)
		if err != nil {
			return &core.MalformedRecordError{Field: f.Name, Reason: "invalid timestamp", Err: err}
		}
		if f.Name == "date" {
			r.Date = t
			return nil
		}
	case schema.TypeBool:
		b, err := ParseBool(raw)
		if err != nil {
			return &core.MalformedRecordError{Field: f.Name, Reason: "invalid boolean", Err: err}
		}
		if f.Name == "arrest" {
			r.Arrest = b
			return nil
		}
	case schema.TypeFloat:
		v, err := decimal(f.Name, raw)
		if err != nil {
			return err
		}
		switch f.Name {
		case "latitude":
			r.Latitude = v
			return nil
		case "longitude":
			r.Longitude = v
			return nil
		}
	}
	return fmt.Errorf("record has no %s field %q", f.Type, f.Name)
}

func (r *Record) text(col string) *string {
	switch col {
	case "unique_key":
		return &r.UniqueKey
	case "case_number":
		return &r.CaseNumber
	case "block":
		return &r.Block
	case "primary_type":
		return &r.PrimaryType
	case "description":
		return &r.Description
	case "location_description":
		return &r.LocationDescription
	}
	return nil
}

func decimal(col, v string) (*float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, &core.MalformedRecordError{Field: col, Reason: "invalid decimal", Err: err}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &core.MalformedRecordError{Field: col, Reason: fmt.Sprintf("non-finite decimal %q", v)}
	}
	return &f, nil
}

// ParseTimestamp parses s with TimestampLayout.
//
// The zone token must be present, but its value is not interpreted: the wall clock
// is always taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if strings.Contains(s, ".") {
		return time.Time{}, fmt.Errorf("fractional seconds not supported in %q", s)
	}
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
}

// FormatTimestamp renders t in TimestampLayout after converting it to UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseBool accepts exactly "true" and "false".
func ParseBool(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("expected \"true\" or \"false\", got %q", s)
	}
}

// line is the JSON shape of one output line; field order is the column order.
type line struct {
	UniqueKey           string   `json:"unique_key"`
	CaseNumber          string   `json:"case_number"`
	Date                string   `json:"date"`
	Block               string   `json:"block"`
	PrimaryType         string   `json:"primary_type"`
	Description         string   `json:"description"`
	LocationDescription string   `json:"location_description"`
	Arrest              bool     `json:"arrest"`
	Latitude            *float64 `json:"latitude"`
	Longitude           *float64 `json:"longitude"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(line{
		UniqueKey:           r.UniqueKey,
		CaseNumber:          r.CaseNumber,
		Date:                FormatTimestamp(r.Date),
		Block:               r.Block,
		PrimaryType:         r.PrimaryType,
		Description:         r.Description,
		LocationDescription: r.LocationDescription,
		Arrest:              r.Arrest,
		Latitude:            r.Latitude,
		Longitude:           r.Longitude,
	})
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var l line
	if err := json.Unmarshal(b, &l); err != nil {
		return err
	}
	date, err := ParseTimestamp(l.Date)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	*r = Record{
		UniqueKey:           l.UniqueKey,
		CaseNumber:          l.CaseNumber,
		Date:                date,
		Block:               l.Block,
		PrimaryType:         l.PrimaryType,
		Description:         l.Description,
		LocationDescription: l.LocationDescription,
		Arrest:              l.Arrest,
		Latitude:            l.Latitude,
		Longitude:           l.Longitude,
	}
	return nil
}

// AppendLine appends the JSON encoding of r and a trailing newline to dst.
func (r Record) AppendLine(dst []byte) ([]byte, error) {
	b, err := r.MarshalJSON()
	if err != nil {
		return dst, err
	}
	dst = append(dst, b...)
	return append(dst, '\n'), nil
}

// ParseLine decodes one output line written by AppendLine.
func ParseLine(b []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(bytes.TrimRight(b, "\r\n"), &r); err != nil {
		return Record{}, err
	}
	if r.PrimaryType == "" {
		return Record{}, fmt.Errorf("line has empty primary_type")
	}
	return r, nil
}
