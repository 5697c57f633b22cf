// Package partition routes records to one append-only JSON-lines file per category.
package partition

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/shpitdev/crime-category-etl/internal/record"
	"github.com/shpitdev/crime-category-etl/pkg/pipeline/core"
)

const (
	fileSuffix    = ".txt"
	bufferSize    = 64 << 10
	stagingPrefix = ".staging-"
)

type handle struct {
	category string
	path     string
	f        *os.File
	w        *bufio.Writer
	scratch  []byte
	lines    uint64
}

// Pool owns one output file per category.
//
// Files are written into a staging directory next to the output directory and only
// moved into place by Commit, so an aborted pass leaves no category files behind.
// Write may be called from several goroutines as long as no two goroutines write
// the same category.
type Pool struct {
	dir string

	mu      sync.Mutex
	staging string
	handles map[string]*handle
	closed  bool
}

// NewPool returns a pool that commits into dir. Nothing is created on disk until the
// first Write or Commit.
func NewPool(dir string) *Pool {
	return &Pool{
		dir:     filepath.Clean(dir),
		handles: make(map[string]*handle),
	}
}

// Dir returns the output directory.
func (p *Pool) Dir() string {
	return p.dir
}

// FileName returns the file name used for category.
func FileName(category string) (string, error) {
	name := category + fileSuffix
	if category == "" || category == "." || category == ".." ||
		strings.ContainsAny(category, "/\x00") || strings.ContainsRune(category, filepath.Separator) ||
		!filepath.IsLocal(name) {
		return "", fmt.Errorf("category %q cannot be used as a file name", category)
	}
	return name, nil
}

// CategoryFromFileName is the inverse of FileName.
func CategoryFromFileName(name string) (string, bool) {
	if !strings.HasSuffix(name, fileSuffix) {
		return "", false
	}
	return strings.TrimSuffix(name, fileSuffix), true
}

// Write appends rec as one complete line to the file for category.
func (p *Pool) Write(category string, rec record.Record) error {
	h, err := p.handle(category)
	if err != nil {
		return err
	}
	h.scratch, err = rec.AppendLine(h.scratch[:0])
	if err != nil {
		return &core.OutputDestinationError{Category: category, Path: h.path, Err: fmt.Errorf("encode record: %w", err)}
	}
	if _, err := h.w.Write(h.scratch); err != nil {
		return &core.OutputDestinationError{Category: category, Path: h.path, Err: err}
	}
	h.lines++
	return nil
}

func (p *Pool) handle(category string) (*handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, &core.OutputDestinationError{Category: category, Err: errors.New("pool is closed")}
	}
	if h, ok := p.handles[category]; ok {
		return h, nil
	}

	name, err := FileName(category)
	if err != nil {
		return nil, &core.OutputDestinationError{Category: category, Err: err}
	}
	if err := p.ensureStaging(); err != nil {
		return nil, &core.OutputDestinationError{Category: category, Err: err}
	}
	path := filepath.Join(p.staging, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &core.OutputDestinationError{Category: category, Path: path, Err: err}
	}
	h := &handle{
		category: category,
		path:     path,
		f:        f,
		w:        bufio.NewWriterSize(f, bufferSize),
	}
	p.handles[category] = h
	return h, nil
}

func (p *Pool) ensureStaging() error {
	if p.staging != "" {
		return nil
	}
	parent := filepath.Dir(p.dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create parent of output directory: %w", err)
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(p.dir)+stagingPrefix+"*")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	p.staging = staging
	return nil
}

// Categories returns the categories with an open destination, sorted.
func (p *Pool) Categories() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.handles))
	for c := range p.handles {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Lines returns the number of lines written for category.
func (p *Pool) Lines(category string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.handles[category]; ok {
		return h.lines
	}
	return 0
}

// closeAll flushes and closes every handle, attempting all of them even after a failure.
func (p *Pool) closeAll(flush bool) error {
	var errs []error
	for _, h := range p.handles {
		if flush {
			if err := h.w.Flush(); err != nil {
				errs = append(errs, &core.OutputDestinationError{Category: h.category, Path: h.path, Err: err})
			}
		}
		if err := h.f.Close(); err != nil && flush {
			errs = append(errs, &core.OutputDestinationError{Category: h.category, Path: h.path, Err: err})
		}
	}
	return errors.Join(errs...)
}

// Commit flushes and closes every destination and moves the files into the output
// directory, replacing files of the same name. The output directory is created if
// absent. The pool cannot be used afterwards.
//
// If any file cannot be moved into place, files already moved are taken back out
// and the files they replaced are restored.
func (p *Pool) Commit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("pool is closed")
	}
	p.closed = true
	defer p.removeStaging()

	if err := p.closeAll(true); err != nil {
		return err
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return &core.OutputDestinationError{Path: p.dir, Err: fmt.Errorf("create output directory: %w", err)}
	}

	categories := make([]string, 0, len(p.handles))
	for c := range p.handles {
		categories = append(categories, c)
	}
	slices.Sort(categories)

	for _, c := range categories {
		dst := filepath.Join(p.dir, filepath.Base(p.handles[c].path))
		fi, err := os.Lstat(dst)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return &core.OutputDestinationError{Category: c, Path: dst, Err: err}
		case !fi.Mode().IsRegular():
			return &core.OutputDestinationError{Category: c, Path: dst, Err: errors.New("existing destination is not a regular file")}
		}
	}

	backup := filepath.Join(p.staging, ".replaced")
	var done []move
	for _, c := range categories {
		h := p.handles[c]
		m := move{src: h.path, dst: filepath.Join(p.dir, filepath.Base(h.path))}
		if err := m.apply(backup); err != nil {
			for i := len(done) - 1; i >= 0; i-- {
				done[i].undo()
			}
			return &core.OutputDestinationError{Category: c, Path: m.dst, Err: err}
		}
		done = append(done, m)
	}
	return nil
}

// move is one staged file renamed over its destination. prev holds the replaced
// file while the commit is in progress.
type move struct {
	src, dst, prev string
}

func (m *move) apply(backup string) error {
	if _, err := os.Lstat(m.dst); err == nil {
		if err := os.MkdirAll(backup, 0o755); err != nil {
			return err
		}
		prev := filepath.Join(backup, filepath.Base(m.dst))
		if err := os.Rename(m.dst, prev); err != nil {
			return err
		}
		m.prev = prev
	}
	if err := os.Rename(m.src, m.dst); err != nil {
		m.undo()
		return err
	}
	return nil
}

func (m *move) undo() {
	if _, err := os.Lstat(m.src); err != nil {
		_ = os.Rename(m.dst, m.src)
	}
	if m.prev != "" {
		_ = os.Rename(m.prev, m.dst)
	}
}

// Abort closes every destination and discards everything written by this pool.
// It is safe to call after Commit, in which case it does nothing.
func (p *Pool) Abort() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.closeAll(false)
	p.removeStaging()
	return err
}

func (p *Pool) removeStaging() {
	if p.staging == "" {
		return
	}
	_ = os.RemoveAll(p.staging)
	p.staging = ""
}
