package logging

import (
	"fmt"
	"io"
	"log"
)

// Logger is the leveled logger used across the pipeline.
type Logger interface {
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

// Nop discards everything.
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}

type runLogger struct {
	logger *log.Logger
	runID  string
}

// New returns a Logger writing to w with standard timestamps. Every line carries
// run=<runID> so that interleaved runs can be told apart.
func New(w io.Writer, runID string) Logger {
	return &runLogger{
		logger: log.New(w, "", log.LstdFlags),
		runID:  runID,
	}
}

func (l *runLogger) printf(level, format string, v ...any) {
	l.logger.Printf("%s run=%s %s", level, l.runID, fmt.Sprintf(format, v...))
}

func (l *runLogger) Infof(format string, v ...any)  { l.printf("INFO ", format, v...) }
func (l *runLogger) Warnf(format string, v ...any)  { l.printf("WARN ", format, v...) }
func (l *runLogger) Errorf(format string, v ...any) { l.printf("ERROR", format, v...) }
