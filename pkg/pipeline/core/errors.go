package core

import "fmt"

// SourceUnavailableError means the input could not be opened or read. It is always fatal.
type SourceUnavailableError struct {
	Path string
	Err  error
}

func (e *SourceUnavailableError) Error() string {
	if e == nil || e.Err == nil {
		return "source unavailable"
	}
	if e.Path == "" {
		return fmt.Sprintf("source unavailable: %v", e.Err)
	}
	return fmt.Sprintf("source unavailable: %s: %v", e.Path, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MalformedRecordError reports a row that failed decoding.
type MalformedRecordError struct {
	// Row is the 1-based data row number, 0 when unknown.
	Row    int
	Field  string
	Reason string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	if e == nil {
		return "malformed record"
	}
	msg := "malformed record"
	if e.Row > 0 {
		msg += fmt.Sprintf(" at row %d", e.Row)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(": field %q", e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// OutputDestinationError reports a category destination that could not be created or written.
type OutputDestinationError struct {
	Category string
	Path     string
	Err      error
}

func (e *OutputDestinationError) Error() string {
	if e == nil {
		return "output destination error"
	}
	msg := fmt.Sprintf("output destination error: category=%q", e.Category)
	if e.Path != "" {
		msg += " path=" + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OutputDestinationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
